package pmm

import (
	"nucleus/kernel"
	"nucleus/kernel/hal/multiboot"
	"testing"
	"unsafe"
)

// counterBackingAllocator is a minimal BackingAllocator fake that hands out
// consecutive frames starting at next, mirroring the contiguous-handout
// behavior BitmapAllocator.Init relies on from the real bootstrap allocator.
type counterBackingAllocator struct {
	next Frame
}

func (c *counterBackingAllocator) AllocFrame() (Frame, *kernel.Error) {
	f := c.next
	c.next++
	return f, nil
}

func TestBitmapAllocatorInit(t *testing.T) {
	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&multibootMemoryMap[0])))

	var alloc BitmapAllocator
	backing := &counterBackingAllocator{next: 1}

	// Memory map (see multibootMemoryMap below): [0 - 9fc00] and
	// [100000 - 7fe0000], kernel occupies a single page at 0x2000.
	if err := alloc.Init(backing, 0x2000, 0x2800); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(alloc.regions) != 2 {
		t.Fatalf("expected 2 regions; got %d", len(alloc.regions))
	}

	free := alloc.FreeFrameCount()
	if free == 0 {
		t.Fatal("expected a non-zero number of free frames after init")
	}
}

func TestBitmapAllocatorAllocFreeRoundTrip(t *testing.T) {
	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&multibootMemoryMap[0])))

	var alloc BitmapAllocator
	backing := &counterBackingAllocator{next: 1}
	if err := alloc.Init(backing, 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before := alloc.FreeFrameCount()

	f, err := alloc.AllocFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Valid() {
		t.Fatal("expected a valid frame")
	}

	if got := alloc.FreeFrameCount(); got != before-1 {
		t.Fatalf("expected free count to drop by 1; got %d (was %d)", got, before)
	}

	alloc.FreeFrame(f)
	if got := alloc.FreeFrameCount(); got != before {
		t.Fatalf("expected free count to be restored to %d; got %d", before, got)
	}
}

func TestBitmapAllocatorOutOfMemory(t *testing.T) {
	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&multibootMemoryMap[0])))

	var alloc BitmapAllocator
	backing := &counterBackingAllocator{next: 1}
	if err := alloc.Init(backing, 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var allocated []Frame
	for {
		f, err := alloc.AllocFrame()
		if err != nil {
			if err != errBitmapOutOfMemory {
				t.Fatalf("unexpected error: %v", err)
			}
			break
		}
		allocated = append(allocated, f)
	}

	if len(allocated) == 0 {
		t.Fatal("expected at least one frame to be allocated before exhaustion")
	}
}

// A dump of multiboot data when running under qemu containing only the
// memory region tag.  The dump encodes the following available memory
// regions:
// [     0 -   9fc00] length:    654336
// [100000 - 7fe0000] length: 133038080
var multibootMemoryMap = []byte{
	72, 5, 0, 0, 0, 0, 0, 0,
	6, 0, 0, 0, 160, 0, 0, 0, 24, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 252, 9, 0, 0, 0, 0, 0,
	1, 0, 0, 0, 0, 0, 0, 0, 0, 252, 9, 0, 0, 0, 0, 0,
	0, 4, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 15, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0,
	2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 16, 0, 0, 0, 0, 0,
	0, 0, 238, 7, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 254, 7, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0,
	2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 252, 255, 0, 0, 0, 0,
	0, 0, 4, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0,
	9, 0, 0, 0, 212, 3, 0, 0, 24, 0, 0, 0, 40, 0, 0, 0,
	21, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 27, 0, 0, 0,
	1, 0, 0, 0, 2, 0, 0, 0, 0, 0, 16, 0, 0, 16, 0, 0,
	24, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}
