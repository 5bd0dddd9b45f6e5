package vma

import (
	"nucleus/kernel"
	"testing"
)

func TestAllocatorRelocate(t *testing.T) {
	var a Allocator
	if err := a.Relocate(0x1000, 0x10000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := a.Allocate(Layout{Size: 8, Align: 8}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := a.Relocate(0x2000, 0x20000); err != ErrNotRelocatable {
		t.Fatalf("expected ErrNotRelocatable once the allocator is in use; got %v", err)
	}
}

func TestAllocatorLIFODeallocation(t *testing.T) {
	var a Allocator
	if err := a.Relocate(0x1000, 0x1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p1, err := a.Allocate(Layout{Size: 16, Align: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := a.Allocate(Layout{Size: 32, Align: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frontierAfterBoth := a.Frontier()

	// Deallocating the stale (non-most-recent) allocation must be a no-op.
	a.Deallocate(p1, Layout{Size: 16, Align: 8})
	if a.Frontier() != frontierAfterBoth {
		t.Fatalf("expected stale deallocation to be a no-op; frontier changed from %x to %x", frontierAfterBoth, a.Frontier())
	}

	// Deallocating the most recent allocation rewinds the frontier exactly.
	a.Deallocate(p2, Layout{Size: 32, Align: 8})
	want := p1 + 16
	if a.Frontier() != want {
		t.Fatalf("expected frontier to rewind to %x; got %x", want, a.Frontier())
	}
}

func TestAllocatorAutoMap(t *testing.T) {
	var a Allocator
	if err := a.Relocate(0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var mappedAt []uintptr
	a.StartAllocating(func(addr uintptr) *kernel.Error {
		mappedAt = append(mappedAt, addr)
		return nil
	})

	// Allocate enough to cross two 2MiB boundaries: the frontier moves from
	// 0 to 6MiB, entering the large pages at 2MiB and 4MiB.
	if _, err := a.Allocate(Layout{Size: 3 * largePageSize, Align: 8}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mappedAt) != 2 {
		t.Fatalf("expected 2 large pages to be mapped; got %d (%v)", len(mappedAt), mappedAt)
	}
	for i, addr := range mappedAt {
		if addr != uintptr(i+1)*largePageSize {
			t.Errorf("expected large page %d to be mapped at %x; got %x", i, uintptr(i+1)*largePageSize, addr)
		}
	}

	a.StopAllocating()
	if a.Frontier()%largePageSize != 0 {
		t.Fatalf("expected frontier to be rounded up to a large page boundary after StopAllocating; got %x", a.Frontier())
	}
}
