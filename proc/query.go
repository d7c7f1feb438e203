package proc

import "polaris/internal/defs"

// ActivePids implements get_active_pids: every slot that is not UNUSED,
// including the idle process, in slot order.
func (pt *ProcTable) ActivePids() []defs.Pid_t {
	var pids []defs.Pid_t
	for _, p := range pt.slots {
		if p != nil && p.State != Unused {
			pids = append(pids, p.Pid)
		}
	}
	return pids
}

// ProcSnapshot is the query result get_proc_data copies out to
// userspace via statview.ProcInfo.
type ProcSnapshot struct {
	Pid, Ppid      defs.Pid_t
	State          State
	UserNs, SysNs  int64
	Daemon         bool
}

// Snapshot implements get_proc_data(pid): returns the identity,
// lifecycle state, and accounted CPU time of the process named by
// pid, or ok=false if no such process is live.
func (pt *ProcTable) Snapshot(pid defs.Pid_t) (ProcSnapshot, bool) {
	p := pt.byPid(pid)
	if p == nil {
		return ProcSnapshot{}, false
	}
	userNs, sysNs := p.Accnt.Snapshot()
	return ProcSnapshot{
		Pid:    p.Pid,
		Ppid:   p.Ppid,
		State:  p.State,
		UserNs: userNs,
		SysNs:  sysNs,
		Daemon: p.Daemon,
	}, true
}
