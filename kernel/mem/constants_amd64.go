// +build amd64

package mem

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = 3

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// KernelVMABase is the virtual address the kernel image is linked at,
	// in the canonical higher half of the amd64 address space. vmm uses
	// it to translate the kernel's own ELF section addresses back to the
	// physical frames the bootloader loaded them into.
	KernelVMABase = uintptr(0xFFFFFFFF80000000)
)
