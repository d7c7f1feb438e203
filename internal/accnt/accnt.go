// Package accnt tracks per-process CPU time: nanosecond counters merged
// under a mutex so a snapshot for reporting is consistent. There is no
// rusage syscall here; get_proc_data reads the fields directly instead.
package accnt

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accnt holds the accounted time for one process. Both fields are
// nanoseconds. The embedded mutex lets Add take a consistent snapshot when
// merging a reaped child's usage into its parent, matching its
// Add/Fetch split.
type Accnt struct {
	UserNs int64
	SysNs  int64
	sync.Mutex
}

// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt) Utadd(delta int64) {
	atomic.AddInt64(&a.UserNs, delta)
}

// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt) Systadd(delta int64) {
	atomic.AddInt64(&a.SysNs, delta)
}

// Now returns the current time in nanoseconds, the clock source every
// other method here measures against.
func (a *Accnt) Now() int64 {
	return time.Now().UnixNano()
}

// Finish adds the time elapsed since since (in nanoseconds) to the
// system-time counter. The scheduler calls this when a process is
// descheduled, and the matching dispatch-time call records since.
func (a *Accnt) Finish(since int64) {
	a.Systadd(a.Now() - since)
}

// Add merges n's counters into a, used when a reaped zombie's accounting
// is folded into its parent for get_proc_data reporting.
func (a *Accnt) Add(n *Accnt) {
	a.Lock()
	a.UserNs += n.UserNs
	a.SysNs += n.SysNs
	a.Unlock()
}

// Snapshot returns a consistent (userNs, sysNs) pair.
func (a *Accnt) Snapshot() (userNs, sysNs int64) {
	a.Lock()
	userNs, sysNs = a.UserNs, a.SysNs
	a.Unlock()
	return
}
