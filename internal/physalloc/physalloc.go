// Package physalloc implements the kernel's physical page allocator: a
// simple O(1) free list over the 2 MiB page frames between the end of
// the loaded kernel image and the end of physical memory.
//
// There is no per-page reference count here: nothing is ever shared
// between processes (fork eagerly copies the one user page instead of
// mapping it copy-on-write), so a reference count would always read 1
// or 0, and is dropped entirely in favor of plain alloc/free.
package physalloc

import "unsafe"

// PageSize is the granule size of every frame this allocator hands
// out: a single 2 MiB translation-table leaf.
const PageSize = 2 << 20

// Page is the raw backing store for one frame.
type Page [PageSize]byte

// freeNode is overlaid on a free page's first bytes to link it into
// the free list: a free page costs nothing extra because its own
// storage holds the link.
type freeNode struct {
	next *freeNode
}

// Allocator hands out and reclaims 2 MiB physical page frames. It is
// not safe for concurrent use by design: every caller must already
// hold IRQs masked, the single-core discipline every shared kernel
// structure in this module relies on instead of locking.
type Allocator struct {
	free  *freeNode
	nfree int
	ntotal int
}

// New carves the region [base, base+size) into PageSize frames and seeds
// the free list with all of them. base and size must be PageSize-aligned.
func New(base uintptr, size uintptr) *Allocator {
	if base%PageSize != 0 || size%PageSize != 0 {
		panic("physalloc.New: misaligned region")
	}
	a := &Allocator{}
	n := int(size / PageSize)
	for i := n - 1; i >= 0; i-- {
		p := base + uintptr(i)*PageSize
		node := (*freeNode)(unsafe.Pointer(p))
		node.next = a.free
		a.free = node
	}
	a.nfree = n
	a.ntotal = n
	return a
}

// Alloc removes and returns one frame from the free list, or ok=false if
// none remain.
func (a *Allocator) Alloc() (addr uintptr, ok bool) {
	if a.free == nil {
		return 0, false
	}
	n := a.free
	a.free = n.next
	a.nfree--
	// zero the frame before handing it out: the spec's single user page is
	// always freshly loaded from a file or copied explicitly, but a zeroed
	// frame keeps any as-yet-unwritten tail bytes deterministic.
	pg := (*Page)(unsafe.Pointer(n))
	for i := range pg {
		pg[i] = 0
	}
	return uintptr(unsafe.Pointer(n)), true
}

// Free returns a previously allocated frame to the free list.
func (a *Allocator) Free(addr uintptr) {
	if addr%PageSize != 0 {
		panic("physalloc.Free: misaligned address")
	}
	node := (*freeNode)(unsafe.Pointer(addr))
	node.next = a.free
	a.free = node
	a.nfree++
}

// NFree reports the number of unallocated frames remaining.
func (a *Allocator) NFree() int { return a.nfree }

// Total reports the number of frames this allocator was seeded with.
func (a *Allocator) Total() int { return a.ntotal }
