// Package stats provides lightweight, always-on counters for a handful
// of scheduler and filesystem events (context switches, inode cache
// hits), exposed for debugging and tests. Unconditionally enabled
// rather than compiled out, since these counters are cheap atomic
// increments.
package stats

import "sync/atomic"

// Counter is a monotonically increasing event counter.
type Counter struct {
	n int64
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	atomic.AddInt64(&c.n, 1)
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.n)
}
