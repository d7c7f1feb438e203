// Package vm implements the kernel's four-level, 2 MiB-granule page
// table builder and the single-user-page address space model:
// setup_uvm, copy_uvm, free_uvm, and switch_vm. There is no demand
// paging and no shared memory here, so the table walk lazily allocates
// intermediate levels and writes explicit PTE attribute bits through
// the same helper that installs the leaf, across a fixed four 9-bit
// levels of 2 MiB leaves.
package vm

import (
	"polaris/internal/defs"
	"polaris/internal/physalloc"
)

const (
	entriesPerTable = 512
	entryShift      = 9 // log2(entriesPerTable)
	levels          = 4
)

// Entry attribute bits, named after the AArch64 architectural PTE bits
// they represent.
type Entry uint64

const (
	Valid     Entry = 1 << 0
	TablePage Entry = 1 << 1 // set on every non-leaf entry and every leaf
	Accessed  Entry = 1 << 10
	UserMode  Entry = 1 << 6
	Normal    Entry = 0 << 2
	Device    Entry = 1 << 2
	addrMask  Entry = 0x0000fffffffff000
)

// Table is one level of the translation table: 512 8-byte descriptors,
// exactly one 2 MiB (or, for non-leaf levels, one next-level-table) frame.
type Table [entriesPerTable]Entry

// AddressSpace is one process's page table: the root table plus the
// physical address of every frame it owns, so free_uvm can walk and
// release them without re-deriving ownership from the table contents
// alone (an all-zero leaf and an unmapped leaf are indistinguishable from
// the entry bits when VALID is the only marker, so we also track owned
// frames explicitly — a simplification as.go does not need because x86's
// page tables use dedicated present/absent encoding that this simplified
// four-level scheme keeps too, but tracking owned frames makes
// Uvmfree-style teardown a single pass instead of a conditional walk).
type AddressSpace struct {
	root   *Table
	rootPA uintptr
	owned  []uintptr // intermediate tables + user leaf; the root is tracked by rootPA
}

// Switcher installs an address space's root table into the hardware
// translation-table base register and performs the required barriers and
// TLB invalidation. It is implemented by the out-of-scope trap glue; vm
// only calls it.
type Switcher interface {
	InstallTTBR0(rootPA uintptr)
}

func index(va uintptr, level int) int {
	shift := uint(12 + (levels-1-level)*entryShift)
	return int((va >> shift) & (entriesPerTable - 1))
}

// SetupUVM allocates a page-map root, allocates and maps one user frame at
// USERSPACE_BASE, and loads program's contents into it. program must fit
// within one frame.
func SetupUVM(alloc *physalloc.Allocator, userspaceBase uintptr, program []byte) (*AddressSpace, defs.Err_t) {
	if len(program) > physalloc.PageSize {
		return nil, defs.ENOMEM
	}
	as, err := newAddressSpace(alloc)
	if err != 0 {
		return nil, err
	}
	leafPA, ok := alloc.Alloc()
	if !ok {
		as.Free(alloc)
		return nil, defs.ENOMEM
	}
	as.owned = append(as.owned, leafPA)
	copyInto(leafPA, program)
	if !as.mapLeaf(alloc, userspaceBase, leafPA, UserMode|Normal) {
		as.Free(alloc)
		return nil, defs.ENOMEM
	}
	return as, 0
}

// CopyUVM clones the single user page of src into a freshly allocated page
// in a new address space, mapping it identically at userspaceBase.
func CopyUVM(alloc *physalloc.Allocator, userspaceBase uintptr, src *AddressSpace) (*AddressSpace, defs.Err_t) {
	srcPA, ok := src.leafPA(userspaceBase)
	if !ok {
		return nil, defs.EFAULT
	}
	dst, err := newAddressSpace(alloc)
	if err != 0 {
		return nil, err
	}
	dstPA, ok := alloc.Alloc()
	if !ok {
		dst.Free(alloc)
		return nil, defs.ENOMEM
	}
	dst.owned = append(dst.owned, dstPA)
	copyPage(dstPA, srcPA)
	if !dst.mapLeaf(alloc, userspaceBase, dstPA, UserMode|Normal) {
		dst.Free(alloc)
		return nil, defs.ENOMEM
	}
	return dst, 0
}

// Free implements free_uvm: it frees every frame this address space owns
// (leaf and intermediate tables alike), then frees the root.
func (as *AddressSpace) Free(alloc *physalloc.Allocator) {
	for _, pa := range as.owned {
		alloc.Free(pa)
	}
	as.owned = nil
	if as.rootPA != 0 {
		alloc.Free(as.rootPA)
		as.rootPA = 0
		as.root = nil
	}
}

// LoadProgram overwrites the single user page already mapped at
// userspaceBase with program's contents, zeroing the remainder. It is
// used by exec, which reuses the process's existing address space
// rather than allocating a new one: resolves the original
// "clears the user page, loads the file" ordering's fragility by
// having the caller read the new program into a kernel-side scratch
// buffer first and only calling LoadProgram once that read has fully
// succeeded, so a failed read never leaves the page half-cleared.
func (as *AddressSpace) LoadProgram(userspaceBase uintptr, program []byte) defs.Err_t {
	if len(program) > physalloc.PageSize {
		return defs.ENOMEM
	}
	pa, ok := as.leafPA(userspaceBase)
	if !ok {
		return defs.EFAULT
	}
	page := pageAt(pa)
	for i := range page {
		page[i] = 0
	}
	copy(page[:], program)
	return 0
}

// SwitchVM installs this address space via sw and is called by the
// scheduler on every dispatch.
func (as *AddressSpace) SwitchVM(sw Switcher) {
	sw.InstallTTBR0(as.rootPA)
}

// RootPA exposes the physical root address for diagnostics/tests.
func (as *AddressSpace) RootPA() uintptr { return as.rootPA }

func newAddressSpace(alloc *physalloc.Allocator) (*AddressSpace, defs.Err_t) {
	rootPA, ok := alloc.Alloc()
	if !ok {
		return nil, defs.ENOMEM
	}
	as := &AddressSpace{rootPA: rootPA}
	as.root = tableAt(rootPA)
	return as, 0
}

func (as *AddressSpace) mapLeaf(alloc *physalloc.Allocator, va uintptr, leafPA uintptr, attrs Entry) bool {
	t := as.root
	for level := 0; level < levels-1; level++ {
		idx := index(va, level)
		e := t[idx]
		if e&Valid == 0 {
			childPA, ok := alloc.Alloc()
			if !ok {
				return false
			}
			as.owned = append(as.owned, childPA)
			t[idx] = Entry(childPA)&addrMask | Valid | TablePage | Accessed
			e = t[idx]
		}
		t = tableAt(uintptr(e & addrMask))
	}
	idx := index(va, levels-1)
	t[idx] = Entry(leafPA)&addrMask | Valid | TablePage | Accessed | attrs
	return true
}

func (as *AddressSpace) leafPA(va uintptr) (uintptr, bool) {
	t := as.root
	for level := 0; level < levels-1; level++ {
		idx := index(va, level)
		e := t[idx]
		if e&Valid == 0 {
			return 0, false
		}
		t = tableAt(uintptr(e & addrMask))
	}
	idx := index(va, levels-1)
	e := t[idx]
	if e&Valid == 0 {
		return 0, false
	}
	return uintptr(e & addrMask), true
}

// UserBytes returns a byte slice view of the single user page mapped at
// userspaceBase, for syscall argument marshaling (argv layout, read/write
// buffers). It returns ok=false if no user page is mapped there.
func (as *AddressSpace) UserBytes(userspaceBase uintptr) (*physalloc.Page, bool) {
	pa, ok := as.leafPA(userspaceBase)
	if !ok {
		return nil, false
	}
	return pageAt(pa), true
}
