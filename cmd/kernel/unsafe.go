package main

import "unsafe"

// ptrOf returns the address of b's backing array, for carving the
// page-aligned region hostPhysBase hands to physalloc.New. Real board
// support code instead reports the linker-provided end-of-kernel-image
// symbol; there is no such symbol in a hosted Go binary.
func ptrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}
