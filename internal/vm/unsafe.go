package vm

import (
	"unsafe"

	"polaris/internal/physalloc"
)

// tableAt and pageAt assume the kernel's identity/direct mapping of
// all of physical memory is already in place before vm is used: a
// kernel virtual base that covers every physical page frame as its
// own virtual address.

func tableAt(pa uintptr) *Table {
	return (*Table)(unsafe.Pointer(pa))
}

func pageAt(pa uintptr) *physalloc.Page {
	return (*physalloc.Page)(unsafe.Pointer(pa))
}

func copyPage(dstPA, srcPA uintptr) {
	dst := pageAt(dstPA)
	src := pageAt(srcPA)
	*dst = *src
}

func copyInto(dstPA uintptr, data []byte) {
	dst := pageAt(dstPA)
	copy(dst[:], data)
}
