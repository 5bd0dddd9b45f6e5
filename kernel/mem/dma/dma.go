// Package dma provides the DMA buffer helper referenced by the design notes:
// a handle pairing a pinned virtual range with the physical address a
// device can be told to read/write directly, backed by the paging and
// physical-frame layers.
package dma

import (
	"nucleus/kernel"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/vmm"
	"unsafe"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	mapRegionFn = vmm.MapRegion
	unmapFn     = vmm.Unmap
)

// Region is a pinned virtual-to-physical mapping suitable for handing a
// buffer's address to a device for DMA. The mapping is stable for the
// lifetime of the Region; callers must call Free when the device no longer
// needs it.
type Region struct {
	VirtualBase  uintptr
	PhysicalBase uintptr
	Size         uintptr
}

// Alloc reserves a contiguous physical range of at least size bytes
// (rounded up to a page boundary) and maps it read-write into the active
// address space.
func Alloc(size uintptr) (Region, *kernel.Error) {
	frameCount := (mem.Size(size) + mem.PageSize - 1) / mem.PageSize
	firstFrame, err := pmm.AllocFrame()
	if err != nil {
		return Region{}, err
	}

	// DMA buffers must be physically contiguous; allocate the remaining
	// frames and verify they extend the run started by firstFrame.
	prev := firstFrame
	for i := mem.Size(1); i < frameCount; i++ {
		f, err := pmm.AllocFrame()
		if err != nil {
			return Region{}, err
		}
		if f != prev+1 {
			return Region{}, kernel.ErrOutOfMemory
		}
		prev = f
	}

	page, err := mapRegionFn(firstFrame, mem.Size(size), vmm.FlagPresent|vmm.FlagRW)
	if err != nil {
		return Region{}, err
	}

	return Region{
		VirtualBase:  page.Address(),
		PhysicalBase: firstFrame.Address(),
		Size:         size,
	}, nil
}

// Free tears down the mapping and returns the backing frames to the
// physical allocator.
func Free(r Region) {
	frameCount := (mem.Size(r.Size) + mem.PageSize - 1) / mem.PageSize
	firstFrame := pmm.FrameFromAddress(r.PhysicalBase)

	page := vmm.PageFromAddress(r.VirtualBase)
	for i := mem.Size(0); i < frameCount; i, page = i+1, page+1 {
		unmapFn(page)
		pmm.FreeFrame(firstFrame + pmm.Frame(i))
	}
}

// Bytes returns a byte slice view over the region's virtual memory.
func (r Region) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(r.VirtualBase)), r.Size)
}
