// Package kernel contains the handful of primitives that every other
// package in the core depends on: the error type used for non-fatal
// variant returns, the raw memory helpers needed before the heap is
// available, and the panic path.
package kernel

import (
	"reflect"
	"unsafe"
)

// Error describes a kernel error. All kernel errors are defined as global
// variables that are pointers to this structure. This requirement stems
// from the fact that the Go allocator is not available to us in the early
// boot path, so we cannot rely on errors.New to build ad-hoc values.
type Error struct {
	// Module is the subsystem that generated the error.
	Module string

	// Message is a short, human readable description of the error.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Well-known error variants shared across the memory, PCI, and driver
// packages. Subsystem-specific packages may define additional variants but
// should reuse these where the taxonomy matches.
var (
	// ErrOutOfMemory is returned when no frame/node satisfies a request.
	ErrOutOfMemory = &Error{Module: "kernel", Message: "out of memory"}

	// ErrAlreadyMapped is returned when a mapping operation targets a
	// virtual page that is already present.
	ErrAlreadyMapped = &Error{Module: "kernel", Message: "virtual address is already mapped"}

	// ErrNotMapped is returned when an unmap or translate operation
	// targets a virtual page that has no mapping.
	ErrNotMapped = &Error{Module: "kernel", Message: "virtual address is not mapped"}

	// ErrAllocationAlignment is returned when the requested alignment
	// cannot be honored within the current region.
	ErrAllocationAlignment = &Error{Module: "kernel", Message: "requested alignment cannot be satisfied"}

	// ErrInvalidConfiguration is returned for unrecognised or
	// inconsistent build-time configuration.
	ErrInvalidConfiguration = &Error{Module: "kernel", Message: "invalid configuration"}
)

// Memset sets size bytes at the given address to the supplied value. The
// implementation is based on bytes.Repeat: instead of looping byte by byte it
// performs log2(size) copies which is considerably faster for the
// page-aligned regions the memory manager deals with.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: addr,
	}))

	target[0] = value
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}

// Memcopy copies size bytes from src to dst. The two regions must not
// overlap.
func Memcopy(src, dst uintptr, size uintptr) {
	if size == 0 {
		return
	}

	srcSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: src,
	}))
	dstSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: dst,
	}))

	copy(dstSlice, srcSlice)
}
