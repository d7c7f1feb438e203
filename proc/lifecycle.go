package proc

import (
	"fmt"

	"polaris/filetable"
	"polaris/internal/caller"
	"polaris/internal/defs"
	"polaris/internal/physalloc"
	"polaris/internal/vm"
	"polaris/signal"
)

// AllocNewProcess implements alloc_new_process(): scans slots [1, N)
// for UNUSED, claims a kernel-stack page and a fresh pid, and seeds
// the context frame so the first dispatch returns through the
// trap-return path into EL0 at UserspaceBase with the EL0 stack at the
// top of the user page and interrupts unmasked. Returns nil, ENOMEM if
// the table or the page allocator is exhausted.
func (pt *ProcTable) AllocNewProcess() (*Process, defs.Err_t) {
	if !pt.limits.Procs.Take() {
		return nil, defs.ENOMEM
	}
	slot := -1
	for i := 1; i < len(pt.slots); i++ {
		if pt.slots[i] == nil || pt.slots[i].State == Unused {
			slot = i
			break
		}
	}
	if slot < 0 {
		pt.limits.Procs.Give()
		return nil, defs.ENOMEM
	}
	stackPA, ok := pt.alloc.Alloc()
	if !ok {
		pt.limits.Procs.Give()
		return nil, defs.ENOMEM
	}

	p := &Process{
		Pid:           pt.nextPid,
		State:         Init,
		Fds:           filetable.NewFdTable(),
		slot:          slot,
		kernelStackPA: stackPA,
		kernelSP:      stackPA + uintptr(physalloc.PageSize), // top of the kernel stack, stack grows down
	}
	signal.InitHandlers(&p.Signals)
	p.Frame.ELR = uint64(pt.cfg.UserspaceBase)
	p.Frame.SPEL0 = uint64(pt.cfg.UserspaceBase) + uint64(physalloc.PageSize)
	p.Frame.SPSR = 0 // EL0t, interrupts unmasked

	pt.nextPid++
	pt.slots[slot] = p
	pt.pidIndex.Set(int(p.Pid), slot)
	return p, 0
}

// releaseSlot undoes AllocNewProcess's bookkeeping for a process that
// never made it to READY (a failed fork/exec) or that Wait has just
// reaped.
func (pt *ProcTable) releaseSlot(p *Process) {
	pt.alloc.Free(p.kernelStackPA)
	pt.pidIndex.Del(int(p.Pid))
	pt.slots[p.slot] = nil
	pt.limits.Procs.Give()
}

// Spawn bootstraps a process with no parent to copy_uvm from — the
// system's first process, conventionally pid 1 (init). Every other
// process after the first reaches a mapped address space through
// fork's copy_uvm; AllocNewProcess alone only seeds the context frame
// and claims a kernel stack, so the one caller with no parent to copy
// from needs to call vm.SetupUVM directly instead. This is the
// composition root's counterpart to scenario 1's "Boot,
// spawn init (pid 1)".
func (pt *ProcTable) Spawn(name string, args []string) (*Process, defs.Err_t) {
	p, errno := pt.AllocNewProcess()
	if errno != 0 {
		return nil, errno
	}

	firstCluster, fileSize, errno := pt.fs.Stat(name)
	if errno != 0 {
		pt.releaseSlot(p)
		return nil, errno
	}
	if fileSize > uint32(physalloc.PageSize) {
		pt.releaseSlot(p)
		return nil, defs.ENOMEM
	}
	buf := make([]byte, fileSize)
	n, errno := pt.fs.ReadFile(firstCluster, buf)
	if errno != 0 || uint32(n) != fileSize {
		pt.releaseSlot(p)
		return nil, defs.EFAULT
	}

	as, errno := vm.SetupUVM(pt.alloc, pt.cfg.UserspaceBase, buf)
	if errno != 0 {
		pt.releaseSlot(p)
		return nil, errno
	}
	p.AS = as
	p.Name = name

	daemon := false
	if len(args) > 0 && args[len(args)-1] == "&" {
		daemon = true
		args = args[:len(args)-1]
	}
	argc, argv, errno := layoutArgv(as, pt.cfg.UserspaceBase, args)
	if errno != 0 {
		as.Free(pt.alloc)
		pt.releaseSlot(p)
		return nil, errno
	}
	p.Daemon = daemon
	p.Frame.R[2] = uint64(argc)
	p.Frame.R[1] = uint64(argv)

	p.State = Ready
	pt.readyQue.PushBack(p)
	return p, 0
}

// Fork implements fork(): allocate a new process, copy identity,
// clone the single user page and the fd table, clone the context
// frame with the child's return register zeroed, and enqueue it
// READY. Returns the child pid to the parent, or -1/err on failure.
func (pt *ProcTable) Fork(parent *Process) (defs.Pid_t, defs.Err_t) {
	child, errno := pt.AllocNewProcess()
	if errno != 0 {
		return -1, errno
	}
	child.Name = parent.Name
	child.Ppid = parent.Pid

	as, errno := vm.CopyUVM(pt.alloc, pt.cfg.UserspaceBase, parent.AS)
	if errno != 0 {
		pt.releaseSlot(child)
		return -1, errno
	}
	child.AS = as

	parent.Fds.Each(func(fd defs.Fd_t, globalIdx int) {
		filetable.ShareSlot(child.Fds, pt.files, pt.inodes, fd, globalIdx)
	})

	child.Frame = parent.Frame
	child.Frame.SetReturn(0)

	child.State = Ready
	pt.readyQue.PushBack(child)

	if pt.fgProcess == parent {
		pt.fgProcess = nil
	}

	return child.Pid, 0
}

// Exec implements exec(process, name, args): resolve the named file,
// read it into a kernel scratch buffer, detect and strip a trailing
// "&" daemon marker, and only then clear and repopulate the live user
// page, then lay argv out in it for the new program. If the reload or
// the argv layout fails, the process is forcibly exited with status 1.
// The reload fails, before touching the page, only when no user page is
// mapped at UserspaceBase; the layout fails after the page already
// holds the new program, when the arguments do not fit in it. Neither
// step allocates.
func (pt *ProcTable) Exec(p *Process, name string, args []string) defs.Err_t {
	firstCluster, fileSize, errno := pt.fs.Stat(name)
	if errno != 0 {
		return errno
	}
	if fileSize > uint32(physalloc.PageSize) {
		return defs.ENOMEM
	}
	scratch := make([]byte, fileSize)
	n, errno := pt.fs.ReadFile(firstCluster, scratch)
	if errno != 0 || uint32(n) != fileSize {
		return defs.EFAULT
	}

	daemon := false
	if len(args) > 0 && args[len(args)-1] == "&" {
		daemon = true
		args = args[:len(args)-1]
	}

	if errno := p.AS.LoadProgram(pt.cfg.UserspaceBase, scratch); errno != 0 {
		pt.Exit(p, 1, false)
		return errno
	}

	argc, argv, errno := layoutArgv(p.AS, pt.cfg.UserspaceBase, args)
	if errno != 0 {
		pt.Exit(p, 1, false)
		return errno
	}

	p.Name = name
	p.Daemon = daemon
	p.Frame.ELR = uint64(pt.cfg.UserspaceBase)
	p.Frame.SPEL0 = uint64(pt.cfg.UserspaceBase) + uint64(physalloc.PageSize)
	p.Frame.R[2] = uint64(argc)
	p.Frame.R[1] = uint64(argv)
	return 0
}

// layoutArgv copies argv strings into the top of the user page, above
// a NUL-terminated pointer vector that points at each one, re-laying out the
// arguments at the top of the new user stack. It returns the argument
// count and the user-space address of the pointer vector.
func layoutArgv(as *vm.AddressSpace, userspaceBase uintptr, args []string) (int, uintptr, defs.Err_t) {
	page, ok := as.UserBytes(userspaceBase)
	if !ok {
		return 0, 0, defs.EFAULT
	}
	end := len(page)
	strOffsets := make([]int, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		s := args[i]
		end -= len(s) + 1
		if end < (len(args)+1)*8 {
			return 0, 0, defs.ENOMEM
		}
		copy(page[end:], s)
		page[end+len(s)] = 0
		strOffsets[i] = end
	}
	vecStart := end - (len(args)+1)*8
	if vecStart < 0 {
		return 0, 0, defs.ENOMEM
	}
	for i, off := range strOffsets {
		putUintptr(page[vecStart+i*8:], userspaceBase+uintptr(off))
	}
	putUintptr(page[vecStart+len(args)*8:], 0)
	return len(args), userspaceBase + uintptr(vecStart), 0
}

func putUintptr(b []byte, v uintptr) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

// Exit implements exit(process, status, from_sig_handler): encode the
// status, mark the process KILLED with event = pid (so wait(pid) can
// find it), deliver SIGCHLD with the status to the parent (falling
// back to init only if the parent is gone or itself KILLED; a parent
// that is blocked in wait on a different pid still receives it, and a
// parent not currently blocked on wait finds the status held for its
// next default-SIGCHLD dispatch), reparent children to init, yield
// foreground, wake waiters, enqueue on zombies, and (unless called
// from a signal handler) reschedule.
func (pt *ProcTable) Exit(p *Process, status int, fromSigHandler bool) {
	var encoded int
	if fromSigHandler {
		encoded = status & 0x7f
	} else {
		encoded = (status & 0xff) << 8
	}

	// A process killed via a pending-signal handler is still sitting at
	// the head of ready_que at this point (Schedule hasn't popped it yet):
	// evict it here so Schedule's "is candidate still at the head?" check
	// observes the removal and retries against the new head instead of
	// handing the CPU to a process it just killed. A no-op if p was not
	// on ready_que (the common case of a process exiting while RUNNING).
	pt.readyQue.Remove(p)

	p.State = Killed
	p.Event = defs.Event_t(p.Pid)
	p.WaitStatus = encoded // read back by Wait when this zombie is reaped

	parent := pt.byPid(p.Ppid)
	if parent == nil || parent.State == Killed {
		parent = pt.byPid(InitPid)
	}
	if parent != nil {
		parent.WaitStatus = encoded
		parent.HasWaitStatus = true
		parent.Signals.Raise(defs.SIGCHLD)
		if parent.State == Sleeping {
			pt.waitList.Remove(parent)
			parent.Event = defs.NoEvent
			parent.State = Ready
			pt.readyQue.PushBack(parent)
		}
	}

	pt.children(p.Pid, func(c *Process) {
		c.Ppid = InitPid
	})

	if pt.fgProcess == p {
		pt.fgProcess = nil
	}

	pt.WakeUp(defs.Event_t(fgPausedEvent))
	pt.zombies.PushBack(p)
	pt.WakeUp(zombieCleanupEvent)

	if !fromSigHandler {
		pt.Schedule()
	}
}

// fgPausedEvent and zombieCleanupEvent are the well-known event tags
// processes sleep on while waiting for the foreground slot to free up
// or for a zombie to become reapable.
const (
	fgPausedEvent       defs.Event_t = -1
	zombieCleanupEvent  defs.Event_t = -2
)

// Wait implements wait(pid, wstatus, options): block on
// ZOMBIE_CLEANUP until a reapable zombie matching pid exists (pid ==
// -1 means any child). With WNOHANG set and no match, returns 0
// immediately. Returns -1 if the caller has no matching child at all.
// On reap, frees the child's kernel stack and address space,
// decrements every held FileEntry/inode ref count, writes wstatus if
// non-nil, and frees the slot.
func (pt *ProcTable) Wait(caller *Process, pid defs.Pid_t, wstatus *int, options defs.WaitOption_t) (defs.Pid_t, defs.Err_t) {
	for {
		if !pt.hasChild(caller.Pid, pid) {
			return -1, defs.ECHILD
		}
		if z := pt.findZombie(caller.Pid, pid); z != nil {
			reaped := z.Pid
			if wstatus != nil {
				*wstatus = z.WaitStatus
			}
			pt.reap(z)
			if pid == -1 {
				pt.WakeUp(zombieCleanupEvent)
			}
			return reaped, 0
		}
		if options&defs.WNOHANG != 0 {
			return 0, 0
		}
		pt.Sleep(caller, zombieCleanupEvent)
	}
}

func (pt *ProcTable) hasChild(parent, pid defs.Pid_t) bool {
	found := false
	pt.children(parent, func(c *Process) {
		if pid == -1 || c.Pid == pid {
			found = true
		}
	})
	return found
}

func (pt *ProcTable) findZombie(parent, pid defs.Pid_t) *Process {
	var found *Process
	for _, p := range pt.slots {
		if p == nil || p.State != Killed || p.Ppid != parent {
			continue
		}
		if pid != -1 && p.Pid != pid {
			continue
		}
		found = p
		break
	}
	return found
}

func (pt *ProcTable) reap(z *Process) {
	if z.State != Killed {
		pt.dumper.DumpOnce(1)
		if msg := pt.disasmFault(z); msg != "" {
			fmt.Printf("proc: pid %d last faulted at pc=%#x: %s\n", z.Pid, z.Frame.ELR, msg)
		}
		panic("proc: reap called on a process that is not a zombie")
	}
	pt.zombies.Remove(z)
	pt.alloc.Free(z.kernelStackPA)
	if z.AS != nil {
		z.AS.Free(pt.alloc)
	}
	z.Fds.Each(func(fd defs.Fd_t, globalIdx int) {
		filetable.CloseFile(z.Fds, pt.files, pt.inodes, fd)
	})
	// Fold the zombie's accounted CPU time into its reaping parent
	// before its slot is freed, so get_proc_data can still report it
	// once the child itself is gone.
	if parent := pt.byPid(z.Ppid); parent != nil {
		parent.Accnt.Add(&z.Accnt)
	}
	pt.pidIndex.Del(int(z.Pid))
	pt.slots[z.slot] = nil
	pt.limits.Procs.Give()
}

// disasmFault decodes the single instruction at z's saved trap-frame PC
// (z.Frame.ELR), giving the reap invariant panic above something more
// actionable than a bare stack trace to print. Returns "" if z never
// obtained a mapped user page (e.g. it died during Spawn's load) or its
// saved PC doesn't fall inside that page.
func (pt *ProcTable) disasmFault(z *Process) string {
	if z.AS == nil {
		return ""
	}
	page, ok := z.AS.UserBytes(pt.cfg.UserspaceBase)
	if !ok {
		return ""
	}
	pc := uintptr(z.Frame.ELR)
	base := pt.cfg.UserspaceBase
	if pc < base || pc+4 > base+uintptr(physalloc.PageSize) {
		return ""
	}
	off := pc - base
	return caller.DisasmFaultPC(page[off : off+4])
}

// Kill implements kill(pid, sig): validate sig, then apply one of
// three broadcast modes (pid == -1: everyone except the caller and
// pids {0,1}, plus the SIGTERM-shuts-down-0-and-1 special case and the
// SIGHUP-reap-orphans-and-reset-pid-counter special case; pid == 0:
// the caller's direct children; pid > 0: that one process). Any
// delivered signal that finds its target SLEEP moves it to READY on
// ready_que.
//
// The cleanup loop for SIGHUP's orphan reap uses a distinct index j
// ranging over [0, MaxOpenFiles) for process_table[i].fd_table[j],
// rather than reusing the outer loop counter i for both: reusing i
// would only ever touch fd slot i of each orphan, never the rest of
// that process's open files.
func (pt *ProcTable) Kill(caller *Process, pid defs.Pid_t, sig defs.Signum_t) defs.Err_t {
	if sig <= defs.SIGNONE || int(sig) >= defs.TotalSignals {
		return defs.EINVAL
	}

	switch {
	case pid == -1:
		for _, p := range pt.slots {
			if p == nil || p == caller || p.Pid == IdlePid || p.Pid == InitPid {
				continue
			}
			pt.deliver(p, sig)
		}
		if sig == defs.SIGTERM {
			pt.deliver(pt.Idle(), sig)
			if init := pt.byPid(InitPid); init != nil {
				pt.deliver(init, sig)
			}
		}
		if sig == defs.SIGHUP {
			for i := 0; i < len(pt.slots); i++ {
				p := pt.slots[i]
				if p == nil || p.State != Killed || p.Ppid != InitPid {
					continue
				}
				for j := 0; j < filetable.MaxOpenFiles; j++ {
					globalIdx := p.Fds.Slot(defs.Fd_t(j))
					if globalIdx < 0 {
						continue
					}
					filetable.CloseFile(p.Fds, pt.files, pt.inodes, defs.Fd_t(j))
				}
				pt.reap(p)
			}
			pt.nextPid = 2
		}
		return 0

	case pid == 0:
		pt.children(caller.Pid, func(c *Process) {
			pt.deliver(c, sig)
		})
		return 0

	default:
		target := pt.byPid(pid)
		if target == nil {
			return defs.ESRCH
		}
		pt.deliver(target, sig)
		return 0
	}
}

func (pt *ProcTable) deliver(p *Process, sig defs.Signum_t) {
	p.Signals.Raise(sig)
	if p.State == Sleeping {
		pt.waitList.Remove(p)
		p.Event = defs.NoEvent
		p.State = Ready
		pt.readyQue.PushBack(p)
	}
}
