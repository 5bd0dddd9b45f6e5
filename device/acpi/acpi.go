// Package acpi locates and maps the ACPI root tables (RSDT/XSDT, FADT, DSDT)
// so that board bring-up can consult them (e.g. to decide whether a device
// described by PCI enumeration is actually present). It is only invoked when
// the build's config.toml sets acpi = true.
package acpi

import (
	"nucleus/device/acpi/table"
	"nucleus/kernel"
	"nucleus/kernel/kfmt"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/vmm"
	"io"
	"unsafe"
)

const (
	acpiRev1     uint8 = 0
	acpiRev2Plus uint8 = 2
)

var (
	errMissingRSDP           = &kernel.Error{Module: "acpi", Message: "could not locate ACPI RSDP"}
	errTableChecksumMismatch = &kernel.Error{Module: "acpi", Message: "detected checksum mismatch while parsing ACPI table header"}

	mapFn         = vmm.Map
	identityMapFn = vmm.IdentityMapRegion
	unmapFn       = vmm.Unmap

	// RDSP must be located in the physical memory region 0xe0000 to 0xfffff
	rsdpLocationLow uintptr = 0xe0000
	rsdpLocationHi  uintptr = 0xfffff
	rsdpAlignment   uintptr = 16

	rsdpSignature = [8]byte{'R', 'S', 'D', ' ', 'P', 'T', 'R', ' '}
	fadtSignature = "FACP"
)

// Tables enumerates and maps the ACPI tables exposed by the firmware. It is
// the entry point board bring-up calls when config.ACPI is enabled.
type Tables struct {
	// rsdtAddr holds the address to the root system descriptor table.
	rsdtAddr uintptr

	// useXSDT specifies if the driver must use the XSDT or the RSDT table.
	useXSDT bool

	// tableMap allows callers to lookup an ACPI table header by its
	// signature. All tables included in this map are mapped into memory.
	tableMap map[string]*table.SDTHeader
}

// Probe locates the RSDP and enumerates the ACPI tables it points to. It
// returns a nil *Tables and errMissingRSDP when the firmware does not expose
// ACPI (the expected outcome on many of the emulated boards this kernel
// targets).
func Probe(w io.Writer) (*Tables, *kernel.Error) {
	rsdtAddr, useXSDT, err := locateRSDT()
	if err != nil {
		return nil, err
	}

	tables := &Tables{rsdtAddr: rsdtAddr, useXSDT: useXSDT}
	if err := tables.enumerate(w); err != nil {
		return nil, err
	}

	tables.printTableInfo(w)
	return tables, nil
}

// Lookup returns the table header registered under the given 4-character
// ACPI signature (e.g. "FACP", "APIC") and whether it was found.
func (t *Tables) Lookup(signature string) (*table.SDTHeader, bool) {
	header, ok := t.tableMap[signature]
	return header, ok
}

func (t *Tables) printTableInfo(w io.Writer) {
	for name, header := range t.tableMap {
		kfmt.Fprintf(w, "%s at 0x%16x %6x (%6s %8s)\n",
			name,
			uintptr(unsafe.Pointer(header)),
			header.Length,
			string(header.OEMID[:]),
			string(header.OEMTableID[:]),
		)
	}
}

// enumerate detects and maps all ACPI tables that are present. Besides the
// table list defined by the RSDP, this method also peeks into the FADT (if
// found) looking for the address of the DSDT.
func (t *Tables) enumerate(w io.Writer) *kernel.Error {
	header, sizeofHeader, err := mapACPITable(t.rsdtAddr)
	if err != nil {
		return err
	}

	t.tableMap = make(map[string]*table.SDTHeader)

	var (
		acpiRev      = header.Revision
		payloadLen   = header.Length - uint32(sizeofHeader)
		sdtAddresses []uintptr
	)

	// RSDT uses 4-byte long pointers whereas the XSDT uses 8-byte long.
	switch t.useXSDT {
	case true:
		sdtAddresses = make([]uintptr, payloadLen>>3)
		for curPtr, i := t.rsdtAddr+sizeofHeader, 0; i < len(sdtAddresses); curPtr, i = curPtr+8, i+1 {
			sdtAddresses[i] = uintptr(*(*uint64)(unsafe.Pointer(curPtr)))
		}
	default:
		sdtAddresses = make([]uintptr, payloadLen>>2)
		for curPtr, i := t.rsdtAddr+sizeofHeader, 0; i < len(sdtAddresses); curPtr, i = curPtr+4, i+1 {
			sdtAddresses[i] = uintptr(*(*uint32)(unsafe.Pointer(curPtr)))
		}
	}

	for _, addr := range sdtAddresses {
		if header, _, err = mapACPITable(addr); err != nil {
			switch err {
			case errTableChecksumMismatch:
				kfmt.Fprintf(w, "%s at 0x%16x %6x [checksum mismatch; skipping]\n",
					string(header.Signature[:]),
					uintptr(unsafe.Pointer(header)),
					header.Length,
				)
				continue
			default:
				return err
			}
		}

		signature := string(header.Signature[:])
		t.tableMap[signature] = header

		// The FADT allows us to lookup the DSDT table address
		if signature == fadtSignature {
			fadt := (*table.FADT)(unsafe.Pointer(header))

			dsdtAddr := uintptr(fadt.Dsdt)
			if acpiRev >= acpiRev2Plus {
				dsdtAddr = uintptr(fadt.Ext.Dsdt)
			}

			if header, _, err = mapACPITable(dsdtAddr); err != nil {
				switch err {
				case errTableChecksumMismatch:
					kfmt.Fprintf(w, "%s at 0x%16x %6x [checksum mismatch; skipping]\n",
						string(header.Signature[:]),
						uintptr(unsafe.Pointer(header)),
						header.Length,
					)
					continue
				default:
					return err
				}
			}

			t.tableMap[string(header.Signature[:])] = header
		}
	}

	return nil
}

// mapACPITable attempts to map and parse the header for the ACPI table
// starting at the given address. It then uses the length field of the header
// to expand the mapping to cover the table contents and verifies the
// checksum before returning a pointer to the table header.
func mapACPITable(tableAddr uintptr) (header *table.SDTHeader, sizeofHeader uintptr, err *kernel.Error) {
	var headerPage vmm.Page

	// Identity-map the table header so we can access its length field
	sizeofHeader = unsafe.Sizeof(table.SDTHeader{})
	if headerPage, err = identityMapFn(pmm.FrameFromAddress(tableAddr), sizeofHeader, vmm.FlagPresent); err != nil {
		return nil, sizeofHeader, err
	}

	// Expand mapping to cover the table contents
	headerPageAddr := headerPage.Address() + vmm.PageOffset(tableAddr)
	header = (*table.SDTHeader)(unsafe.Pointer(headerPageAddr))
	if _, err = identityMapFn(pmm.FrameFromAddress(tableAddr), uintptr(header.Length), vmm.FlagPresent); err != nil {
		return nil, sizeofHeader, err
	}

	if !validTable(headerPageAddr, header.Length) {
		err = errTableChecksumMismatch
	}

	return header, sizeofHeader, err
}

// locateRSDT scans the memory region [rsdpLocationLow, rsdpLocationHi] looking
// for the signature of the root system descriptor pointer (RSDP). If the RSDP
// is found and is valid, locateRSDT returns the physical address of the root
// system descriptor table (RSDT) or the extended system descriptor table
// (XSDT) if the system supports ACPI 2.0+.
func locateRSDT() (uintptr, bool, *kernel.Error) {
	var (
		rsdp  *table.RSDPDescriptor
		rsdp2 *table.ExtRSDPDescriptor
	)

	// Cleanup temporary identity mappings when the function returns
	defer func() {
		for curPage := vmm.PageFromAddress(rsdpLocationLow); curPage <= vmm.PageFromAddress(rsdpLocationHi); curPage++ {
			unmapFn(curPage)
		}
	}()

	// Setup temporary identity mapping so we can scan for the header
	for curPage := vmm.PageFromAddress(rsdpLocationLow); curPage <= vmm.PageFromAddress(rsdpLocationHi); curPage++ {
		if err := mapFn(curPage, pmm.Frame(curPage), vmm.FlagPresent); err != nil {
			return 0, false, err
		}
	}

	// The RSDP should be aligned on a 16-byte boundary
checkNextBlock:
	for curPtr := rsdpLocationLow; curPtr < rsdpLocationHi; curPtr += rsdpAlignment {
		rsdp = (*table.RSDPDescriptor)(unsafe.Pointer(curPtr))
		for i, b := range rsdpSignature {
			if rsdp.Signature[i] != b {
				continue checkNextBlock
			}
		}

		if rsdp.Revision == acpiRev1 {
			if !validTable(curPtr, uint32(unsafe.Sizeof(*rsdp))) {
				continue
			}

			return uintptr(rsdp.RSDTAddr), false, nil
		}

		// System uses ACPI revision > 1 and provides an extended RSDP
		// which can be accessed at the same place.
		rsdp2 = (*table.ExtRSDPDescriptor)(unsafe.Pointer(curPtr))
		if !validTable(curPtr, uint32(unsafe.Sizeof(*rsdp2))) {
			continue
		}

		return uintptr(rsdp2.XSDTAddr), true, nil
	}

	return 0, false, errMissingRSDP
}

// validTable calculates the checksum for an ACPI table of length tableLength
// that starts at tablePtr and returns true if the table is valid.
func validTable(tablePtr uintptr, tableLength uint32) bool {
	var (
		i   uint32
		sum uint8
	)

	for i = 0; i < tableLength; i++ {
		sum += *(*uint8)(unsafe.Pointer(tablePtr + uintptr(i)))
	}

	return sum == 0
}
