// Package heap implements a best-fit, splitting/coalescing free-list
// allocator layered on top of the paging package's MapNewPage: when the free
// list cannot satisfy a request it grows by reserving a fresh virtual range
// through vma and mapping it page by page.
package heap

import (
	"nucleus/kernel"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/vma"
	"nucleus/kernel/sync"
	"unsafe"
)

var (
	errHeapOutOfMemory = &kernel.Error{Module: "heap", Message: "out of memory"}

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	mapNewPageFn = func(uintptr) *kernel.Error { return nil }
)

// SetPageMapper installs the function used to back newly grown heap pages
// with physical memory. Board bring-up wires this to paging.MapNewPage once
// the paging subsystem is initialized.
func SetPageMapper(fn func(virtAddr uintptr) *kernel.Error) {
	mapNewPageFn = fn
}

// node is an intrusive free-list entry stored at the start of every free
// block. Nodes are kept sorted by ascending address.
type node struct {
	next *node
	size uintptr
}

const nodeSize = unsafe.Sizeof(node{})

// Heap is a free-list allocator over a growable virtual address range.
type Heap struct {
	mu     sync.Spinlock
	vmaAlc vma.Allocator
	head   *node
}

// Init seeds the heap with an initial, already-mapped memory region
// [addr, addr+size) to use as its first free block.
func (h *Heap) Init(addr uintptr, size uintptr) {
	h.vmaAlc.Relocate(addr, addr+size)
	h.head = (*node)(unsafe.Pointer(addr))
	*h.head = node{next: nil, size: size}
}

// Allocate returns a pointer to a block of at least size bytes, aligned to
// align (a power of two), or errHeapOutOfMemory if no block fits even after
// the heap has grown. An error from growing the heap is returned as is.
func (h *Heap) Allocate(size, align uintptr) (uintptr, *kernel.Error) {
	h.mu.Acquire()
	defer h.mu.Release()

	if size < nodeSize {
		size = nodeSize
	}

	if ptr, ok := h.tryAllocateLocked(size, align); ok {
		return ptr, nil
	}

	if err := h.growLocked(size, align); err != nil {
		return 0, err
	}

	if ptr, ok := h.tryAllocateLocked(size, align); ok {
		return ptr, nil
	}

	return 0, errHeapOutOfMemory
}

// tryAllocateLocked scans the free list for the best (smallest sufficient)
// fit, splitting it if the remainder is large enough to hold a node.
func (h *Heap) tryAllocateLocked(size, align uintptr) (uintptr, bool) {
	var (
		prevBest, best           *node
		prev                     *node
		bestPad, bestUsable      uintptr
	)

	for n := h.head; n != nil; prev, n = n, n.next {
		addr := uintptr(unsafe.Pointer(n))
		alignedAddr := (addr + (align - 1)) &^ (align - 1)
		pad := alignedAddr - addr
		if pad != 0 && pad < nodeSize {
			// Not enough room to leave a padding node behind; bump to the
			// next alignment boundary so the padding can become its own
			// free node.
			alignedAddr += align
			pad += align
		}

		if n.size < pad+size {
			continue
		}

		if best == nil || n.size < best.size {
			best, prevBest = n, prev
			bestPad = pad
			bestUsable = n.size
		}
	}

	if best == nil {
		return 0, false
	}

	addr := uintptr(unsafe.Pointer(best))
	allocAddr := addr + bestPad
	remainder := bestUsable - bestPad - size

	// Unlink best from the list first.
	if prevBest == nil {
		h.head = best.next
	} else {
		prevBest.next = best.next
	}

	// Re-insert any leading padding as its own free node.
	if bestPad >= nodeSize {
		pad := (*node)(unsafe.Pointer(addr))
		*pad = node{size: bestPad}
		h.insertLocked(pad)
	}

	// Re-insert any trailing remainder as its own free node.
	if remainder >= nodeSize {
		tail := (*node)(unsafe.Pointer(allocAddr + size))
		*tail = node{size: remainder}
		h.insertLocked(tail)
	}

	return allocAddr, true
}

// insertLocked inserts n into the sorted free list and coalesces it with
// whichever neighbor(s) it now touches.
func (h *Heap) insertLocked(n *node) {
	var prev *node
	cur := h.head
	for cur != nil && uintptr(unsafe.Pointer(cur)) < uintptr(unsafe.Pointer(n)) {
		prev, cur = cur, cur.next
	}

	n.next = cur
	if prev == nil {
		h.head = n
	} else {
		prev.next = n
	}

	// Coalesce with the following neighbor.
	if cur != nil && uintptr(unsafe.Pointer(n))+n.size == uintptr(unsafe.Pointer(cur)) {
		n.size += cur.size
		n.next = cur.next
	}

	// Coalesce with the preceding neighbor.
	if prev != nil && uintptr(unsafe.Pointer(prev))+prev.size == uintptr(unsafe.Pointer(n)) {
		prev.size += n.size
		prev.next = n.next
	}
}

// Deallocate returns a previously allocated block of the given size back to
// the free list, coalescing it with any touching neighbors.
func (h *Heap) Deallocate(ptr uintptr, size uintptr) {
	h.mu.Acquire()
	defer h.mu.Release()

	if size < nodeSize {
		size = nodeSize
	}

	n := (*node)(unsafe.Pointer(ptr))
	*n = node{size: size}
	h.insertLocked(n)
}

// growLocked requests a fresh virtual range at least size+align bytes long,
// maps it page by page via the registered page mapper, and adds it to the
// free list.
func (h *Heap) growLocked(size, align uintptr) *kernel.Error {
	growSize := size + align
	growSize = (growSize + (uintptr(mem.PageSize) - 1)) &^ (uintptr(mem.PageSize) - 1)

	base, err := h.vmaAlc.Allocate(vma.Layout{Size: growSize, Align: uintptr(mem.PageSize)})
	if err != nil {
		return err
	}

	for off := uintptr(0); off < growSize; off += uintptr(mem.PageSize) {
		if err := mapNewPageFn(base + off); err != nil {
			return err
		}
	}

	n := (*node)(unsafe.Pointer(base))
	*n = node{size: growSize}
	h.insertLocked(n)
	return nil
}
