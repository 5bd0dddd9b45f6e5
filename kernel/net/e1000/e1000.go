// Package e1000 implements a driver for the Intel Pro/1000 (8254x) family of
// PCI(e) network adapters: descriptor-ring TX/RX, EEPROM-based MAC address
// discovery, PHY register access via MDIC, and interrupt-driven receive
// completion. It is registered with the PCI enumerator (nucleus/kernel/pci)
// by vendor/device id and claims BAR0 as its MMIO window.
package e1000

import (
	"nucleus/kernel"
	"nucleus/kernel/executor"
	"nucleus/kernel/mem/dma"
	"unsafe"
)

var (
	// ErrPayloadTooLarge is returned by SendPacket when the payload exceeds
	// a single descriptor buffer (bufferSize bytes). Fragmenting larger
	// payloads across multiple descriptors is a documented limitation (see
	// design notes) rather than an oversight.
	ErrPayloadTooLarge = &kernel.Error{Module: "e1000", Message: "payload exceeds the 8KiB descriptor buffer"}

	// ErrEepromTimeout is returned when polling the EEPROM/MDIC ready bit
	// exceeds the retry budget.
	ErrEepromTimeout = &kernel.Error{Module: "e1000", Message: "EEPROM read timed out"}

	// ErrPhyError is returned when the PHY reports an error bit on an MDIC
	// access.
	ErrPhyError = &kernel.Error{Module: "e1000", Message: "PHY reported an error"}

	// ErrTxTimeout is returned by TxCompletion.Err when a transmit's
	// descriptor-done bit never sets within txAwaitRetryLimit cooperative
	// polls.
	ErrTxTimeout = &kernel.Error{Module: "e1000", Message: "transmit timed out"}
)

const eepromPollLimit = 10000

// txAwaitRetryLimit bounds how many cooperative re-polls a TxCompletion
// makes before giving up on a transmit, mirroring the bound the async send
// loop in the driver this package is based on uses. It is a var rather than
// a const so tests can shrink it instead of driving the executor through
// the full bound.
var txAwaitRetryLimit = 100000

// rxDescriptor mirrors the 16-byte hardware legacy receive descriptor
// layout. Field order and sizes must not change.
type rxDescriptor struct {
	bufferAddr uint64
	length     uint16
	checksum   uint16
	status     uint8
	errors     uint8
	special    uint16
}

// txDescriptor mirrors the 16-byte hardware legacy transmit descriptor
// layout.
type txDescriptor struct {
	bufferAddr uint64
	length     uint16
	cso        uint8
	cmd        uint8
	status     uint8
	css        uint8
	special    uint16
}

// FrameConsumer receives completed inbound frames. Registered by whatever
// protocol layer sits above the driver (out of scope for this core).
type FrameConsumer func(frame []byte)

// Device represents a single bound Pro/1000 adapter instance, named net0,
// net1, ... in discovery order by the caller that constructs it.
type Device struct {
	Name string
	mmio uintptr
	mac  [6]byte

	rxRing   []rxDescriptor
	rxBufs   []dma.Region
	rxTail   uint32

	txRing []txDescriptor
	txBufs []dma.Region
	txTail uint32

	consumer FrameConsumer

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	allocDMA func(size uintptr) (dma.Region, *kernel.Error)
}

// New constructs a driver instance bound to the given memory-mapped BAR0
// base address.
func New(name string, mmioBase uintptr) *Device {
	return &Device{
		Name:     name,
		mmio:     mmioBase,
		allocDMA: dma.Alloc,
	}
}

func (d *Device) reg(offset uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(d.mmio + offset))
}

func (d *Device) readReg(offset uintptr) uint32 {
	return *d.reg(offset)
}

func (d *Device) writeReg(offset uintptr, value uint32) {
	*d.reg(offset) = value
}

// MAC returns the adapter's six-byte hardware address, populated during
// Init from the EEPROM (or, on EEPROM-less chips, from the Receive Address
// registers; see readMACFallback).
func (d *Device) MAC() [6]byte {
	return d.mac
}

// Init resets the device, reads its MAC address, and brings up the receive
// and transmit rings. The device is left with RX/TX enabled but its
// interrupts masked; EnableInterrupts attaches a handler and unmasks the
// receive causes.
func (d *Device) Init() *kernel.Error {
	d.writeReg(regCTRL, d.readReg(regCTRL)|ctrlReset)
	for i := 0; i < eepromPollLimit && d.readReg(regCTRL)&ctrlReset != 0; i++ {
	}
	d.writeReg(regCTRL, d.readReg(regCTRL)|ctrlSLU)

	if err := d.readMAC(); err != nil {
		return err
	}
	d.programMACFilter()

	if err := d.initRX(); err != nil {
		return err
	}
	if err := d.initTX(); err != nil {
		return err
	}

	return nil
}

// readMAC attempts an EEPROM-based MAC read first; chips that never assert
// the EEPROM-done bit fall back to treating the device as EEPROM-less (the
// Receive Address registers are then expected to already hold a valid
// address programmed by firmware).
func (d *Device) readMAC() *kernel.Error {
	words := make([]uint16, 3)
	for i := range words {
		w, err := d.readEeprom(uint8(i))
		if err != nil {
			return d.readMACFallback()
		}
		words[i] = w
	}

	d.mac[0] = byte(words[0])
	d.mac[1] = byte(words[0] >> 8)
	d.mac[2] = byte(words[1])
	d.mac[3] = byte(words[1] >> 8)
	d.mac[4] = byte(words[2])
	d.mac[5] = byte(words[2] >> 8)
	return nil
}

// readMACFallback reads whatever address firmware already programmed into
// the Receive Address Low/High registers for EEPROM-less chips.
func (d *Device) readMACFallback() *kernel.Error {
	lo := d.readReg(regRAL0)
	hi := d.readReg(regRAH0)

	d.mac[0] = byte(lo)
	d.mac[1] = byte(lo >> 8)
	d.mac[2] = byte(lo >> 16)
	d.mac[3] = byte(lo >> 24)
	d.mac[4] = byte(hi)
	d.mac[5] = byte(hi >> 8)
	return nil
}

func (d *Device) readEeprom(word uint8) (uint16, *kernel.Error) {
	d.writeReg(regEERD, uint32(word)<<8|eerdStart)

	for i := 0; i < eepromPollLimit; i++ {
		v := d.readReg(regEERD)
		if v&eerdDone != 0 || v&eerdDone82544 != 0 {
			return uint16(v >> 16), nil
		}
	}

	return 0, ErrEepromTimeout
}

func (d *Device) programMACFilter() {
	for i := uint32(0); i < 128; i++ {
		d.writeReg(regMTA+uintptr(i)*4, 0)
	}

	lo := uint32(d.mac[0]) | uint32(d.mac[1])<<8 | uint32(d.mac[2])<<16 | uint32(d.mac[3])<<24
	hi := uint32(d.mac[4]) | uint32(d.mac[5])<<8 | raValid
	d.writeReg(regRAL0, lo)
	d.writeReg(regRAH0, hi)
}

// ReadPHY performs an MDIC-mediated read of a PHY register.
func (d *Device) ReadPHY(phy, reg uint8) (uint16, *kernel.Error) {
	mdic := mdicOpRead | uint32(phy)<<21 | uint32(reg)<<16
	d.writeReg(regMDIC, mdic)

	for i := 0; i < eepromPollLimit; i++ {
		v := d.readReg(regMDIC)
		if v&mdicReady == 0 {
			continue
		}
		if v&mdicError != 0 {
			return 0, ErrPhyError
		}
		return uint16(v), nil
	}

	return 0, ErrEepromTimeout
}

func (d *Device) initRX() *kernel.Error {
	ringBytes := uintptr(rxRingSize) * uintptr(unsafe.Sizeof(rxDescriptor{}))
	ringRegion, err := d.allocDMA(ringBytes)
	if err != nil {
		return err
	}

	d.rxRing = unsafe.Slice((*rxDescriptor)(unsafe.Pointer(ringRegion.VirtualBase)), rxRingSize)
	d.rxBufs = make([]dma.Region, rxRingSize)

	for i := range d.rxRing {
		buf, err := d.allocDMA(bufferSize)
		if err != nil {
			return err
		}
		d.rxBufs[i] = buf
		d.rxRing[i] = rxDescriptor{bufferAddr: uint64(buf.PhysicalBase)}
	}

	d.writeReg(regRDBAL, uint32(ringRegion.PhysicalBase))
	d.writeReg(regRDBAH, uint32(ringRegion.PhysicalBase>>32))
	d.writeReg(regRDLEN, uint32(ringBytes))
	d.writeReg(regRDH, 0)
	d.writeReg(regRDT, rxRingSize-1)
	d.rxTail = rxRingSize - 1

	d.writeReg(regRCTL, rctlEN|rctlBAM|rctlBSEX|rctlBSIZE8192|rctlRDMTSHalf)
	return nil
}

func (d *Device) initTX() *kernel.Error {
	ringBytes := uintptr(txRingSize) * uintptr(unsafe.Sizeof(txDescriptor{}))
	ringRegion, err := d.allocDMA(ringBytes)
	if err != nil {
		return err
	}

	d.txRing = unsafe.Slice((*txDescriptor)(unsafe.Pointer(ringRegion.VirtualBase)), txRingSize)
	d.txBufs = make([]dma.Region, txRingSize)

	for i := range d.txRing {
		buf, err := d.allocDMA(bufferSize)
		if err != nil {
			return err
		}
		d.txBufs[i] = buf
	}

	d.writeReg(regTDBAL, uint32(ringRegion.PhysicalBase))
	d.writeReg(regTDBAH, uint32(ringRegion.PhysicalBase>>32))
	d.writeReg(regTDLEN, uint32(ringBytes))
	d.writeReg(regTDH, 0)
	d.writeReg(regTDT, 0)
	d.txTail = 0

	d.writeReg(regTCTL, tctlEN|tctlPSP|tctlRTLC|tctlCT|tctlCOLD)
	return nil
}

// EnableInterrupts registers the device's IRQ handler (via attach, supplied
// by board bring-up's interrupt router) and unmasks receive-completion
// causes.
func (d *Device) EnableInterrupts(attach func(handler func())) {
	attach(func() { d.handleInterrupt() })
	d.writeReg(regIMS, icrRXT0|icrRXDMT0)
	d.readReg(regICR) // clear any causes latched before the handler attached
}

func (d *Device) handleInterrupt() {
	cause := d.readReg(regICR)
	if cause&(icrRXT0|icrRXDMT0) != 0 {
		d.handleRxInterrupt()
	}
}

// handleRxInterrupt walks the RX ring starting at the slot after the last
// delivered descriptor, delivering every descriptor whose hardware-owned
// Descriptor-Done bit is set to the registered FrameConsumer, until it
// either finds a descriptor still owned by hardware or completes a full
// lap of the ring (resolves Open Question (b): the teacher's driver never
// wires up this walk).
func (d *Device) handleRxInterrupt() {
	if d.consumer == nil {
		return
	}

	next := (d.rxTail + 1) % rxRingSize
	for i := uint32(0); i < rxRingSize; i++ {
		desc := &d.rxRing[next]
		if desc.status&rxDescDD == 0 {
			break
		}

		frame := d.rxBufs[next].Bytes()[:desc.length]
		d.consumer(frame)

		desc.status = 0
		d.rxTail = next
		d.writeReg(regRDT, d.rxTail)

		next = (next + 1) % rxRingSize
	}
}

// SetFrameConsumer installs the callback invoked for every completed
// inbound frame.
func (d *Device) SetFrameConsumer(fn FrameConsumer) {
	d.consumer = fn
}

// TxCompletion is the cooperative future SendPacket spawns to track a
// transmit's hardware completion. No blocking primitive exists in this
// kernel outside executor await points or interrupt entry, so waiting for a
// descriptor's Descriptor-Done bit to set is expressed as a Future that
// re-arms its Waker and yields back to the executor between polls, rather
// than busy-spinning the single kernel thread.
type TxCompletion struct {
	dev   *Device
	slot  uint32
	tries int
}

// Poll implements executor.Future.
func (f *TxCompletion) Poll(w *executor.Waker) executor.PollResult {
	if f.dev.txRing[f.slot].status&txDescDD != 0 {
		return executor.Ready
	}

	f.tries++
	if f.tries >= txAwaitRetryLimit {
		return executor.Ready
	}

	w.Wake()
	return executor.Pending
}

// Done reports whether the transmit completed, as opposed to exhausting
// txAwaitRetryLimit. Only meaningful once the executor has polled this
// future to completion (Poll returned executor.Ready).
func (f *TxCompletion) Done() bool {
	return f.dev.txRing[f.slot].status&txDescDD != 0
}

// Err returns ErrTxTimeout if the transmit never completed, or nil
// otherwise. Only meaningful once the executor has polled this future to
// completion (Poll returned executor.Ready).
func (f *TxCompletion) Err() *kernel.Error {
	if f.Done() {
		return nil
	}
	return ErrTxTimeout
}

// SendPacket queues payload for transmission, overwriting its source MAC
// address field (bytes 6:12 of the Ethernet header) with the device's own
// MAC, and spawns a TxCompletion onto exe to track hardware completion.
// Payloads larger than the 8KiB descriptor buffer are rejected synchronously
// with ErrPayloadTooLarge rather than fragmented (see design notes); that is
// the only synchronous failure mode SendPacket itself reports, since
// transmit completion is driven entirely by the executor once this call
// returns.
func (d *Device) SendPacket(exe *executor.Executor, payload []byte) (*TxCompletion, *kernel.Error) {
	if len(payload) > bufferSize {
		return nil, ErrPayloadTooLarge
	}
	if len(payload) >= 12 {
		copy(payload[6:12], d.mac[:])
	}

	buf := d.txBufs[d.txTail].Bytes()
	copy(buf, payload)

	d.txRing[d.txTail] = txDescriptor{
		bufferAddr: uint64(d.txBufs[d.txTail].PhysicalBase),
		length:     uint16(len(payload)),
		cmd:        txDescEOP | txDescIFCS | txDescRS,
	}

	slot := d.txTail
	d.txTail = (d.txTail + 1) % txRingSize
	d.writeReg(regTDT, d.txTail)

	completion := &TxCompletion{dev: d, slot: slot}
	exe.Spawn(completion)
	return completion, nil
}
