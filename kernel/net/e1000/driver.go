package e1000

import (
	"io"

	"nucleus/kernel"
	"nucleus/kernel/hal"
	"nucleus/kernel/kfmt"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/vmm"
	"nucleus/kernel/pci"
)

// deviceIDs lists the 8254x device ids this driver claims. Intel reused the
// same register layout across the whole Pro/1000 family, so one driver
// binds all of them.
var deviceIDs = []uint16{
	0x100E, // 82540EM, the id QEMU's -device e1000 emulates
	0x100F, // 82545EM
	0x1004, // 82543GC (fiber)
	0x1019, // 82547EI
}

const intelVendorID = 0x8086

// bound is the driver registry the rest of board bring-up walks after
// pci.Enumerate to start up whatever NICs were actually found.
var bound []*Device

// Bound returns the e1000 devices claimed during the last Enumerate pass.
func Bound() []*Device {
	return bound
}

func init() {
	for _, id := range deviceIDs {
		pci.RegisterDriver(intelVendorID, id, probe)
	}
}

var errNoMMIOBar = &kernel.Error{Module: "e1000", Message: "function has no memory-mapped BAR0"}

// probe is the pci.DriverFn registered for every known Pro/1000 device id:
// it maps BAR0, assigns it a real address if the firmware left it
// unprogrammed, brings the device up and wires its completion interrupt
// through hal.AttachIRQ.
func probe(fn *pci.Function, w io.Writer) *kernel.Error {
	bar := fn.Bars[0]
	if bar.Kind != pci.BarMemory32 && bar.Kind != pci.BarMemory64 {
		return errNoMMIOBar
	}

	if bar.Base == 0 {
		base, err := reserveMMIO(bar.Size)
		if err != nil {
			return err
		}
		if err := pci.AssignBAR(fn, 0, uint64(base)); err != nil {
			return err
		}
		bar = fn.Bars[0]
	}

	mmioPage, err := vmm.IdentityMapRegion(pmm.FrameFromAddress(uintptr(bar.Base)), uintptr(bar.Size), vmm.FlagPresent|vmm.FlagRW|vmm.FlagDoNotCache)
	if err != nil {
		return err
	}

	dev := New(deviceName(), mmioPage.Address())
	if err := dev.Init(); err != nil {
		return err
	}

	dev.EnableInterrupts(func(handler func()) {
		hal.AttachIRQ(fn.InterruptLine, handler)
	})

	bound = append(bound, dev)
	kfmt.Fprintf(w, "[e1000] %s bound at %d:%d.%d, MAC %02x:%02x:%02x:%02x:%02x:%02x\n",
		dev.Name, fn.Bus, fn.Device, fn.Func,
		dev.mac[0], dev.mac[1], dev.mac[2], dev.mac[3], dev.mac[4], dev.mac[5])

	return nil
}

// mmioPoolNext is a simple bump pool of physical MMIO addresses handed out
// to BARs the firmware left unprogrammed (seen on some emulated boards).
// Real firmware almost always assigns BARs itself; this pool only exists
// for the fallback path and is never reused once handed out.
var mmioPoolNext uintptr = 0xF000_0000

func reserveMMIO(size uint64) (uintptr, *kernel.Error) {
	aligned := (size + uint64(mem.PageSize) - 1) &^ (uint64(mem.PageSize) - 1)
	base := mmioPoolNext
	mmioPoolNext += uintptr(aligned)
	return base, nil
}

var deviceCounter int

func deviceName() string {
	name := "net" + itoa(deviceCounter)
	deviceCounter++
	return name
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
