// Command padbin validates a raw flat user binary against this
// kernel's single-page executable format and pads it up to exactly
// one 2 MiB page, in place, so every file placed in a FAT16 image by
// cmd/mkfatimg already matches the size vm.AddressSpace loads into a
// single leaf frame. These binaries carry no header at all — just raw
// instructions starting at offset zero — so there is nothing to
// rewrite; the only post-processing needed is a size check plus
// zero-padding.
package main

import (
	"fmt"
	"os"

	"polaris/internal/physalloc"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: padbin <filename>\n")
	os.Exit(1)
}

func main() {
	if len(os.Args) != 2 {
		usage()
	}
	fn := os.Args[1]

	data, err := os.ReadFile(fn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "padbin: %v\n", err)
		os.Exit(1)
	}
	if len(data) > physalloc.PageSize {
		fmt.Fprintf(os.Stderr, "padbin: %s is %d bytes, exceeds the %d-byte user page\n", fn, len(data), physalloc.PageSize)
		os.Exit(1)
	}
	if len(data) == physalloc.PageSize {
		fmt.Printf("padbin: %s already exactly one page\n", fn)
		return
	}

	padded := make([]byte, physalloc.PageSize)
	copy(padded, data)
	if err := os.WriteFile(fn, padded, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "padbin: writing %v: %v\n", fn, err)
		os.Exit(1)
	}
	fmt.Printf("padbin: padded %s from %d to %d bytes\n", fn, len(data), physalloc.PageSize)
}
