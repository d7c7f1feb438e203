// Package proc implements the process table, preemptive round-robin
// scheduler, and the full fork/exec/wait/exit/kill/sleep/wake_up
// lifecycle. Err_t return values, a table of fixed-size slots scanned
// for UNUSED/free entries (mem/mem.go, fd/fd.go), and
// queue/hashtable/limits/accnt composed together drive every operation
// below.
package proc

import (
	"polaris/filetable"
	"polaris/internal/caller"
	"polaris/internal/defs"
	"polaris/internal/hashtable"
	"polaris/internal/limits"
	"polaris/internal/physalloc"
	"polaris/internal/queue"
	"polaris/internal/stats"
	"polaris/internal/vm"
	"polaris/signal"
	"polaris/trapglue"
)

// FS is the subset of fatfs.FileSystem exec needs: resolving an 8.3
// path to a cluster chain and reading its bytes. Declared narrowly
// here, the same cross-package-interface style as fs/blk.go's Disk_i,
// so proc's tests can run against a fake filesystem instead of a real
// FAT16 image.
type FS interface {
	Stat(path string) (firstCluster uint16, fileSize uint32, errno defs.Err_t)
	ReadFile(firstCluster uint16, buf []byte) (int, defs.Err_t)
}

// Inodes is the inode-cache surface filetable needs, re-declared here
// so ProcTable can hand it to OpenFile/CloseFile without importing
// fatfs's concrete type.
type Inodes = filetable.Inodes

// ProcTable is the whole process subsystem: the fixed-size slot array,
// the ready/wait/zombie queues, the pid index, and every collaborator
// needed to run the lifecycle operations.
type ProcTable struct {
	cfg   Config
	slots []*Process

	readyQue *queue.Queue
	waitList *queue.Queue
	zombies  *queue.Queue

	pidIndex  *hashtable.Table
	nextPid   defs.Pid_t
	fgProcess *Process
	current   *Process
	shutdown  bool

	alloc  *physalloc.Allocator
	limits *limits.Limits
	files  *filetable.GlobalTable
	inodes Inodes
	fs     FS

	dumper *caller.Dumper

	// ContextSwitches counts every real stack-pointer swap Schedule
	// performs, for cmd/kernel's diagnostic profile dump.
	ContextSwitches stats.Counter

	sw  trapglue.Switcher
	vsw vm.Switcher
}

// Bind supplies the hardware collaborators the scheduler needs for an
// actual context switch: the raw stack-pointer swap and the
// translation-table-base installer. Both are implemented outside this
// module (trap glue a board support package supplies); tests bind
// fakes.
func (pt *ProcTable) Bind(sw trapglue.Switcher, vsw vm.Switcher) {
	pt.sw = sw
	pt.vsw = vsw
}

// New constructs a ProcTable. Slot 0 is pre-populated as the idle
// process: pid 0, state RUNNING while the CPU is otherwise idle.
func New(cfg Config, alloc *physalloc.Allocator, files *filetable.GlobalTable, inodes Inodes, fs FS) *ProcTable {
	pt := &ProcTable{
		cfg:      cfg,
		slots:    make([]*Process, cfg.ProcTableSize),
		readyQue: queue.New(),
		waitList: queue.New(),
		zombies:  queue.New(),
		pidIndex: hashtable.New(cfg.PidHashBuckets),
		nextPid:  1,
		alloc:    alloc,
		limits:   limits.New(cfg.ProcTableSize),
		files:    files,
		inodes:   inodes,
		fs:       fs,
		dumper:   caller.NewDumper(),
	}
	idle := &Process{Pid: IdlePid, Name: "idle", State: Running, Fds: filetable.NewFdTable()}
	signal.InitHandlers(&idle.Signals)
	pt.slots[0] = idle
	pt.current = idle
	return pt
}

// Idle returns the never-enqueued idle process.
func (pt *ProcTable) Idle() *Process { return pt.slots[0] }

// UserspaceBase exposes the fixed virtual address every process's user
// page is mapped at, for syscall handlers that need to translate a
// user-space pointer argument into a kernel-visible slice.
func (pt *ProcTable) UserspaceBase() uintptr { return pt.cfg.UserspaceBase }

// Shutdown reports whether kill(-1, SIGTERM) has asked the system to
// halt once the run queue and wait list both drain.
func (pt *ProcTable) Shutdown() bool { return pt.shutdown }

// bySlot returns the process in slot i, or nil if unused/out of range.
func (pt *ProcTable) bySlot(i int) *Process {
	if i < 0 || i >= len(pt.slots) {
		return nil
	}
	return pt.slots[i]
}

// byPid looks a live process up by pid via the hash index instead of
// scanning every slot.
func (pt *ProcTable) byPid(pid defs.Pid_t) *Process {
	slot, ok := pt.pidIndex.Get(int(pid))
	if !ok {
		return nil
	}
	return pt.bySlot(slot)
}

// children calls f for every live process whose ppid is parent,
// located by a linear scan rather than a second index: a cyclic
// ownership index would need to be kept consistent with reparenting on
// every exit, which this avoids entirely.
func (pt *ProcTable) children(parent defs.Pid_t, f func(*Process)) {
	for _, p := range pt.slots {
		if p != nil && p.State != Unused && p.Ppid == parent {
			f(p)
		}
	}
}

// target adapts a Process plus its owning ProcTable into a
// signal.Target, since ExitFromSignal needs the table's queues and
// collaborators that a bare *Process cannot reach on its own.
type target struct {
	pt *ProcTable
	p  *Process
}

func (t target) ExitFromSignal(status int) {
	t.pt.Exit(t.p, status, true)
}

func (t target) IsInit() bool { return t.p.IsInit() }

func (t target) ConsumeChildStatus() (int, bool) { return t.p.ConsumeChildStatus() }

func (t target) ArrangeHandlerJump(handlerPC uint64, signum defs.Signum_t) {
	t.p.ArrangeHandlerJump(handlerPC, signum)
}
