package physalloc

import (
	"testing"
	"unsafe"
)

// newTestAllocator carves n page-aligned frames out of real Go-managed
// memory, the same trick cmd/kernel's hostPhysBase uses to stand in for
// the physical address range a board-support package would otherwise
// report: New only ever treats its region as raw bytes, so any aligned
// backing store works in a hosted test.
func newTestAllocator(n int) *Allocator {
	region := make([]byte, (n+1)*PageSize)
	base := uintptr(unsafe.Pointer(&region[0]))
	base = (base + PageSize - 1) &^ (PageSize - 1)
	return New(base, uintptr(n)*PageSize)
}

func TestAllocFreeRoundTrip(t *testing.T) {
	const n = 4
	a := newTestAllocator(n)
	if a.NFree() != n {
		t.Fatalf("NFree = %d, want %d", a.NFree(), n)
	}

	pa, ok := a.Alloc()
	if !ok {
		t.Fatal("Alloc failed unexpectedly")
	}
	if pa%PageSize != 0 {
		t.Fatalf("Alloc returned misaligned address %#x", pa)
	}
	if a.NFree() != n-1 {
		t.Fatalf("NFree after one alloc = %d, want %d", a.NFree(), n-1)
	}

	a.Free(pa)
	if a.NFree() != n {
		t.Fatalf("NFree after free = %d, want %d", a.NFree(), n)
	}
}

func TestAllocExhaustion(t *testing.T) {
	a := newTestAllocator(2)
	if _, ok := a.Alloc(); !ok {
		t.Fatal("first alloc should succeed")
	}
	if _, ok := a.Alloc(); !ok {
		t.Fatal("second alloc should succeed")
	}
	if _, ok := a.Alloc(); ok {
		t.Fatal("third alloc should fail: pool exhausted")
	}
	if a.NFree() != 0 {
		t.Fatalf("NFree = %d, want 0", a.NFree())
	}
}

func TestAllocZeroesFrame(t *testing.T) {
	a := newTestAllocator(1)
	pa, ok := a.Alloc()
	if !ok {
		t.Fatal("Alloc failed unexpectedly")
	}
	page := (*Page)(unsafe.Pointer(pa))
	page[0] = 0xff
	page[PageSize-1] = 0xff
	a.Free(pa)

	pa2, ok := a.Alloc()
	if !ok || pa2 != pa {
		t.Fatalf("expected the freed frame to be reused, got pa2=%#x ok=%v", pa2, ok)
	}
	page2 := (*Page)(unsafe.Pointer(pa2))
	if page2[0] != 0 || page2[PageSize-1] != 0 {
		t.Fatal("Alloc should zero a reused frame before handing it out")
	}
}

func TestTotalIsStable(t *testing.T) {
	a := newTestAllocator(3)
	if a.Total() != 3 {
		t.Fatalf("Total() = %d, want 3", a.Total())
	}
	a.Alloc()
	if a.Total() != 3 {
		t.Fatal("Total() must not change as frames are allocated")
	}
}
