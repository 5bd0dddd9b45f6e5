// Package kmain wires together the memory, PCI and driver subsystems into
// the sequence board bring-up runs once at boot: bootstrap allocator, then
// the freeing-capable bitmap allocator, paging, the heap, PCI enumeration
// (which drives driver binds, including net/e1000), and finally the
// cooperative executor loop that never returns.
package kmain

import (
	"nucleus/device/acpi"
	"nucleus/kernel"
	"nucleus/kernel/board"
	"nucleus/kernel/executor"
	"nucleus/kernel/goruntime"
	"nucleus/kernel/hal"
	"nucleus/kernel/hal/multiboot"
	"nucleus/kernel/kfmt"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/heap"
	"nucleus/kernel/mem/paging"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/pmm/allocator"
	"nucleus/kernel/mem/vmm"
	"nucleus/kernel/pci"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// heapBase is the fixed virtual address the kernel's own heap starts at, in
// a portion of the higher-half address space that nothing else claims.
const heapBase = 0xFFFF_8000_0000_0000
const initialHeapSize = 4 * uintptr(mem.Mb)

var bitmapAlloc pmm.BitmapAllocator
var kernelHeap heap.Heap

// Kmain is the only Go symbol visible to the rt0 assembly entry point. It
// is not expected to return; if it does, the caller halts the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	allocator.Init(kernelStart, kernelEnd)

	var err *kernel.Error
	if err = bitmapAlloc.Init(allocator.Early(), kernelStart, kernelEnd); err != nil {
		kfmt.Panic(err)
	}
	pmm.SetActiveAllocator(&bitmapAlloc)
	vmm.SetFrameAllocator(pmm.AllocFrame)

	if err = vmm.Init(mem.KernelVMABase); err != nil {
		kfmt.Panic(err)
	}

	if err = goruntime.Init(); err != nil {
		kfmt.Panic(err)
	}

	kfmt.SetOutputSink(hal.Writer())

	if err := board.Active.Validate(); err != nil {
		kfmt.Panic(err)
	}

	bringUpHeap()

	if board.Active.ACPI {
		if _, err := acpi.Probe(hal.Writer()); err != nil {
			kfmt.Printf("[kmain] ACPI probe failed: %s\n", err.Message)
		}
	}

	pci.SetConfigAccess(pci.PortIOConfigAccess{})
	if _, err := pci.Enumerate(hal.Writer()); err != nil {
		kfmt.Panic(err)
	}

	executor.New().Run()

	// Use kfmt.Panic instead of panic to prevent the compiler from treating
	// this call as dead code and eliminating it, since Run above never
	// returns under normal operation.
	kfmt.Panic(errKmainReturned)
}

// bringUpHeap maps and seeds the kernel's dynamic heap. The heap's own
// growth path uses paging.MapNewPage for anything beyond this initial
// range, so it only has to be wired up once, here.
func bringUpHeap() {
	heap.SetPageMapper(paging.MapNewPage)

	for off := uintptr(0); off < initialHeapSize; off += uintptr(mem.PageSize) {
		if err := paging.MapNewPage(heapBase + off); err != nil {
			kfmt.Panic(err)
		}
	}

	kernelHeap.Init(heapBase, initialHeapSize)
}

// Heap returns the kernel's singleton heap allocator, for subsystems that
// need dynamically-sized allocations after bring-up (e.g. PCI driver
// descriptor bookkeeping beyond the fixed DMA rings).
func Heap() *heap.Heap {
	return &kernelHeap
}
