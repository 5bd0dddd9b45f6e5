// Package paging exposes the spec-level EditWindow operations
// (MapReadOnly, UnmapPages, MapNewPage, UnmapAndFreePage) on top of the
// kernel's self-mapped page-table walk in nucleus/kernel/mem/vmm. The
// underlying recursive mapping in vmm.walk already IS an edit window — a
// fixed virtual slot whose backing frame is swapped to bring an arbitrary
// page table level into view — so this package only needs to name and
// sequence the operations the spec describes; it does not reimplement
// page-table editing.
package paging

import (
	"nucleus/kernel"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/vmm"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	mapFn      = vmm.Map
	unmapFn    = vmm.Unmap
	allocFrame = pmm.AllocFrame
	freeFrame  = pmm.FreeFrame
	isMappedFn = vmm.IsMapped
)

// MapReadOnly establishes a read-only mapping for the size bytes (rounded up
// to the nearest page) of physical memory starting at physAddr into the
// virtual range starting at virtAddr. It fails with kernel.ErrAlreadyMapped
// if any page in the target range is already present.
func MapReadOnly(virtAddr, physAddr uintptr, size mem.Size) *kernel.Error {
	return mapRange(virtAddr, physAddr, size, vmm.FlagPresent)
}

// MapReadWrite is the read-write counterpart of MapReadOnly.
func MapReadWrite(virtAddr, physAddr uintptr, size mem.Size) *kernel.Error {
	return mapRange(virtAddr, physAddr, size, vmm.FlagPresent|vmm.FlagRW)
}

func mapRange(virtAddr, physAddr uintptr, size mem.Size, flags vmm.PageTableEntryFlag) *kernel.Error {
	size = (size + (mem.PageSize - 1)) & ^(mem.PageSize - 1)
	pageCount := uintptr(size) >> mem.PageShift

	page := vmm.PageFromAddress(virtAddr)
	frame := pmm.FrameFromAddress(physAddr)
	for i := uintptr(0); i < pageCount; i, page, frame = i+1, page+1, frame+1 {
		if isMappedFn(page.Address()) {
			return kernel.ErrAlreadyMapped
		}
		if err := mapFn(page, frame, flags); err != nil {
			return err
		}
	}

	return nil
}

// UnmapPages tears down the mappings for the size bytes (rounded up to the
// nearest page) of virtual memory starting at virtAddr.
func UnmapPages(virtAddr uintptr, size mem.Size) *kernel.Error {
	size = (size + (mem.PageSize - 1)) & ^(mem.PageSize - 1)
	pageCount := uintptr(size) >> mem.PageShift

	page := vmm.PageFromAddress(virtAddr)
	for i := uintptr(0); i < pageCount; i, page = i+1, page+1 {
		if err := unmapFn(page); err != nil {
			return err
		}
	}

	return nil
}

// MapNewPage allocates a fresh physical frame through the physical
// allocator and installs a read-write mapping for it at virtAddr. It fails
// with kernel.ErrAlreadyMapped if virtAddr is already mapped.
func MapNewPage(virtAddr uintptr) *kernel.Error {
	if isMappedFn(virtAddr) {
		return kernel.ErrAlreadyMapped
	}

	frame, err := allocFrame()
	if err != nil {
		return err
	}

	if err := mapFn(vmm.PageFromAddress(virtAddr), frame, vmm.FlagPresent|vmm.FlagRW); err != nil {
		freeFrame(frame)
		return err
	}

	return nil
}

// UnmapAndFreePage is the inverse of MapNewPage: it looks up the frame
// currently backing virtAddr, removes the mapping, and returns the frame to
// the physical allocator.
func UnmapAndFreePage(virtAddr uintptr) *kernel.Error {
	physAddr, err := vmm.Translate(virtAddr)
	if err != nil {
		return err
	}

	if err := unmapFn(vmm.PageFromAddress(virtAddr)); err != nil {
		return err
	}

	freeFrame(pmm.FrameFromAddress(physAddr))
	return nil
}
