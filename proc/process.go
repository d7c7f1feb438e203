package proc

import (
	"container/list"

	"polaris/internal/accnt"
	"polaris/internal/vm"
	"polaris/filetable"
	"polaris/internal/defs"
	"polaris/signal"
	"polaris/trapglue"
)

// State is a process-table slot's lifecycle state.
type State int

const (
	Unused State = iota
	Init
	Ready
	Running
	Sleeping
	Killed
)

func (s State) String() string {
	switch s {
	case Unused:
		return "UNUSED"
	case Init:
		return "INIT"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Sleeping:
		return "SLEEP"
	case Killed:
		return "KILLED"
	default:
		return "?"
	}
}

// InitPid is the pid reserved for the init process; orphaned children
// are reparented to it and it is the fallback SIGCHLD recipient.
const InitPid defs.Pid_t = 1

// IdlePid is the pid of the never-enqueued idle process occupying
// slot 0.
const IdlePid defs.Pid_t = 0

// Process is one process-table slot: identity, lifecycle state,
// kernel-stack/address-space ownership, scheduling linkage, signal
// state, wait state, and an fd table.
type Process struct {
	Pid  defs.Pid_t
	Ppid defs.Pid_t
	Name string

	State State
	Event defs.Event_t

	AS    *vm.AddressSpace
	Frame trapglue.Frame

	Daemon bool

	Signals signal.State

	// WaitStatus holds a status word handed to the parent by a child's
	// Exit (consumed by the default SIGCHLD handler), and the encoded exit status this
	// process left behind once it becomes a zombie.
	WaitStatus    int
	HasWaitStatus bool

	Fds    *filetable.FdTable
	Accnt  accnt.Accnt

	// SavedPC holds the pre-signal resume address while a user signal
	// handler runs; the user-space signal trampoline (out of scope
	// here) is expected to restore it via a sigreturn-style syscall
	// once the handler returns.
	SavedPC uint64

	slot          int
	kernelStackPA uintptr
	dispatchedAt  int64

	// kernelSP is this process's saved kernel stack pointer: the value
	// a context-switch primitive reads and writes across a preemption.
	// Seeded to the top of the kernel stack on AllocNewProcess and
	// overwritten by Schedule every time this process is descheduled.
	kernelSP uintptr

	qelem *list.Element
}

// QElem and SetQElem implement queue.Elem, letting a Process sit in
// exactly one of the ready/wait/zombie queues at a time.
func (p *Process) QElem() *list.Element      { return p.qelem }
func (p *Process) SetQElem(e *list.Element)  { p.qelem = e }

// IsInit implements signal.Target.
func (p *Process) IsInit() bool { return p.Pid == InitPid }

// ConsumeChildStatus implements signal.Target: the default SIGCHLD
// handler reads and clears whatever status an exiting child left here.
func (p *Process) ConsumeChildStatus() (int, bool) {
	if !p.HasWaitStatus {
		return 0, false
	}
	p.HasWaitStatus = false
	return p.WaitStatus, true
}

// ArrangeHandlerJump implements signal.Target: it stashes the process's
// current resume address and redirects it to resume in the user
// handler instead, with signum in register 0.
func (p *Process) ArrangeHandlerJump(handlerPC uint64, signum defs.Signum_t) {
	p.SavedPC = p.Frame.ELR
	p.Frame.ELR = handlerPC
	p.Frame.R[0] = uint64(signum)
}
