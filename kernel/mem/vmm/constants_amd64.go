// +build amd64

package vmm

import "math"

const (
	// pageLevels indicates the number of page table levels supported by
	// the amd64 architecture (PML4, PDPT, PD, PT).
	pageLevels = 4

	// ptePhysPageMask extracts the physical frame address from a page
	// table entry. For amd64, bits 12-51 hold the physical address.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// tempMappingAddr is a reserved virtual page used for temporary
	// physical page mappings (e.g. accessing an inactive page table).
	// For amd64 this address uses table indices 510, 511, 511, 511.
	tempMappingAddr = uintptr(0xffffff7ffffff000)
)

var (
	// pdtVirtualAddr exploits the recursive mapping installed in the
	// last entry of the top-level page table to access that table
	// itself via ordinary MMU address translation. Setting every page
	// level index to the highest value makes the MMU walk into the
	// recursive entry at every level, eventually landing back on the
	// top-level table.
	pdtVirtualAddr = uintptr(math.MaxUint64 &^ ((1 << 12) - 1))

	// pageLevelBits is the number of virtual address bits consumed by
	// each page level (512 entries per level on amd64).
	pageLevelBits = [pageLevels]uint8{9, 9, 9, 9}

	// pageLevelShifts is the shift required to extract each page level's
	// index from a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

const (
	// FlagPresent is set when the page is resident in memory.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and
	// write-back caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage marks a 2MiB mapping instead of the usual 4KiB one.
	FlagHugePage

	// FlagGlobal prevents the TLB from flushing this page's entry when
	// the active page table is switched.
	FlagGlobal

	// FlagCopyOnWrite is used to implement copy-on-write mappings. This
	// flag and FlagRW are mutually exclusive.
	FlagCopyOnWrite = 1 << 9

	// FlagNoExecute marks a page as containing non-executable data.
	FlagNoExecute = 1 << 63
)
