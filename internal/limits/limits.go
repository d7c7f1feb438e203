// Package limits gates resource-exhaustion points (no free process
// slot, no free file-table entry) through one small
// atomic counter type, instead of repeating the same "scan for a free
// slot, fail if none" check with no uniform accounting of how close
// the system is to exhaustion.
package limits

import "sync/atomic"

// Counter is a resource limit that can be atomically taken and given back.
type Counter struct {
	cur int64
}

// NewCounter returns a counter seeded with the given capacity.
func NewCounter(capacity int) *Counter {
	return &Counter{cur: int64(capacity)}
}

// Take decrements the counter and reports whether it stayed non-negative.
// On failure the counter is left unchanged.
func (c *Counter) Take() bool {
	if atomic.AddInt64(&c.cur, -1) >= 0 {
		return true
	}
	atomic.AddInt64(&c.cur, 1)
	return false
}

// Give returns one unit to the counter.
func (c *Counter) Give() {
	atomic.AddInt64(&c.cur, 1)
}

// Remaining reports the number of units currently available.
func (c *Counter) Remaining() int {
	return int(atomic.LoadInt64(&c.cur))
}

// Limits bundles the system-wide resource counters threaded through
// proc. Per-process fd-table exhaustion is not tracked here: the fd
// table is a small fixed-size array, and finding its first free slot
// is itself the exhaustion check, with no shared counter to maintain.
// filetable.GlobalTable keeps its own Counter the same way, gating
// open_file's global-slot exhaustion; fatfs's inode cache has no
// counterpart counter because it is sized one-to-one with root
// directory entries (dirIndex bounds and ENOENT on a free/invalid
// slot are the only failure modes there, not exhaustion of a smaller
// shared pool).
type Limits struct {
	Procs *Counter // PROC_TABLE_SIZE-1 (slot 0 is idle, never counted)
}

// New builds the standard Limits set from the configured process table size.
func New(procTableSize int) *Limits {
	return &Limits{
		Procs: NewCounter(procTableSize - 1),
	}
}
