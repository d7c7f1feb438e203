// Package caller prints a one-time diagnostic dump for invariant
// violations, hashing the caller's program-counter chain to recognize
// a previously-seen call path, so that the fatal panic that always
// follows doesn't drown the console in the same stack trace over and
// over during a fuzzing run or a test suite that hits the same bug
// from many call sites. It additionally disassembles the faulting
// instruction at the trap frame's saved PC using golang.org/x/arch's
// ARM64 decoder, since this kernel targets AArch64 specifically.
package caller

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/arch/arm64/arm64asm"
)

// Dumper tracks which call chains have already been reported.
type Dumper struct {
	sync.Mutex
	seen map[uintptr]bool
}

// NewDumper returns a Dumper with no recorded call chains.
func NewDumper() *Dumper {
	return &Dumper{seen: make(map[uintptr]bool)}
}

func (d *Dumper) hash(pcs []uintptr) uintptr {
	var h uintptr
	for _, pc := range pcs {
		h ^= pc*1103515245 + 12345
	}
	return h
}

// DumpOnce prints the current call stack (skipping `skip` innermost
// frames) the first time a given call chain is seen, and reports whether
// it printed anything.
func (d *Dumper) DumpOnce(skip int) bool {
	d.Lock()
	defer d.Unlock()

	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return false
	}
	pcs = pcs[:n]
	h := d.hash(pcs)
	if d.seen[h] {
		return false
	}
	d.seen[h] = true

	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		fmt.Printf("\t%s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		if !more {
			break
		}
	}
	return true
}

// DisasmFaultPC decodes and prints the single ARM64 instruction at raw,
// the bytes saved from the trap frame's PC when a kernel invariant was
// violated inside user-originated code. It is best-effort: a decode
// failure (e.g. raw is not a valid instruction, or fewer than 4 bytes were
// captured) is reported rather than panicking further.
func DisasmFaultPC(raw []byte) string {
	if len(raw) < 4 {
		return "<insufficient bytes for disassembly>"
	}
	inst, err := arm64asm.Decode(raw[:4])
	if err != nil {
		return fmt.Sprintf("<undecodable: %v>", err)
	}
	return inst.String()
}
