// Package vma implements the bump virtual-address allocator used to reserve
// the kernel's own address space before the heap exists. Unlike
// vmm.EarlyReserveRegion (a one-directional, never-freed reservation used to
// carve out a handful of fixed-purpose regions during boot) Allocator models
// the general-purpose bump allocator this spec requires: a relocatable
// [start,end) window, LIFO-only deallocation, and an optional auto-map mode
// that installs identity 2MiB mappings as the frontier advances.
package vma

import (
	"nucleus/kernel"
	"nucleus/kernel/mem"
)

var (
	// ErrNotRelocatable is returned by Relocate when the allocator has
	// already handed out at least one allocation.
	ErrNotRelocatable = &kernel.Error{Module: "vma", Message: "allocator cannot be relocated once in use"}

	// errLargePageMapFailed indicates that auto-map mode could not install
	// a large-page mapping for the frontier.
	errLargePageMapFailed = &kernel.Error{Module: "vma", Message: "failed to auto-map large page"}
)

// largePageSize is the granularity at which auto-map mode installs mappings.
const largePageSize = uintptr(2 * mem.Mb)

// Layout describes an allocation request: size in bytes and required
// alignment (which must be a power of two).
type Layout struct {
	Size  uintptr
	Align uintptr
}

// LargePageMapper installs an identity mapping for the 2MiB-aligned large
// page that starts at addr. It is supplied by board bring-up code; the
// allocator itself has no page-table access.
type LargePageMapper func(addr uintptr) *kernel.Error

// Allocator is a bump allocator over a contiguous virtual address range. It
// supports LIFO-only deallocation (only the most recent outstanding
// allocation may be freed) and an optional auto-map mode used while
// bootstrapping the kernel's own address space.
type Allocator struct {
	start, end uintptr

	// history records the end-of-region address immediately before each
	// outstanding allocation, most recent last, so Deallocate can verify
	// LIFO ordering and restore end exactly.
	history []uintptr

	autoMap      bool
	mapper       LargePageMapper
	lastMappedTo uintptr
}

// Relocate repositions the allocator to a new [start,end) window. It only
// succeeds if the allocator has never handed out an allocation (start ==
// end and no history), matching the spec's requirement that relocation only
// ever happens once, immediately after the allocator is constructed and
// before the first allocate() call.
func (a *Allocator) Relocate(start, end uintptr) *kernel.Error {
	if a.start != a.end || len(a.history) != 0 {
		return ErrNotRelocatable
	}

	a.start, a.end = start, start
	a.end = end
	a.start = start
	return nil
}

// StartAllocating enables auto-map mode: whenever the frontier crosses a
// 2MiB boundary, mapper is invoked to install an identity mapping for the
// newly entered large page. The large page that holds the frontier when
// StartAllocating is called is taken to be mapped already.
func (a *Allocator) StartAllocating(mapper LargePageMapper) {
	a.autoMap = true
	a.mapper = mapper
	a.lastMappedTo = a.end &^ (largePageSize - 1)
}

// StopAllocating disables auto-map mode and rounds the frontier up to the
// next 2MiB boundary, so that any unused tail of the last large page is
// considered consumed rather than being handed out piecemeal later.
func (a *Allocator) StopAllocating() {
	if !a.autoMap {
		return
	}
	a.autoMap = false
	a.end = (a.end + (largePageSize - 1)) &^ (largePageSize - 1)
}

// Allocate rounds the frontier up to the requested alignment, advances it by
// size bytes, and returns the resulting address. In auto-map mode, crossing
// a 2MiB boundary triggers a call to the installed LargePageMapper for every
// newly entered large page.
func (a *Allocator) Allocate(l Layout) (uintptr, *kernel.Error) {
	base := (a.end + (l.Align - 1)) &^ (l.Align - 1)
	newEnd := base + l.Size

	if a.autoMap {
		for boundary := a.lastMappedTo + largePageSize; boundary < newEnd; boundary += largePageSize {
			if a.mapper == nil {
				return 0, errLargePageMapFailed
			}
			if err := a.mapper(boundary); err != nil {
				return 0, err
			}
			a.lastMappedTo = boundary
		}
	}

	a.history = append(a.history, a.end)
	a.end = newEnd
	return base, nil
}

// Deallocate frees ptr only if it is the most recently handed out,
// still-outstanding allocation (LIFO order). Deallocating a stale pointer
// leaves the allocator state unchanged — the memory is leaked by design,
// matching the bump allocator's documented limitation.
func (a *Allocator) Deallocate(ptr uintptr, l Layout) {
	if len(a.history) == 0 {
		return
	}

	base := (a.history[len(a.history)-1] + (l.Align - 1)) &^ (l.Align - 1)
	if base != ptr {
		return
	}

	a.end = a.history[len(a.history)-1]
	a.history = a.history[:len(a.history)-1]
}

// Frontier returns the current end-of-region address (the next allocation's
// lower bound, before alignment).
func (a *Allocator) Frontier() uintptr {
	return a.end
}
