// Package signal implements the per-process pending-signal bitset and
// handler table: default handlers for every signal number, an
// installable custom handler per signal, and delivery through a
// narrow Target interface rather than a concrete *proc.Process, so
// this package can be tested without importing proc.
package signal

import (
	"reflect"

	"polaris/internal/defs"
)

// TotalSignals is the number of distinct signal numbers this kernel
// knows about, including the reserved zero value.
const TotalSignals = defs.TotalSignals

// Target is the subset of a process's behavior a signal handler needs
// to invoke: synthesizing an exit, reading whether it is the init
// process, and consuming a held child-exit status for SIGCHLD.
type Target interface {
	ExitFromSignal(status int)
	IsInit() bool
	ConsumeChildStatus() (status int, ok bool)

	// ArrangeHandlerJump arranges the trap frame so that on return to
	// EL0, control jumps to handlerPC with signum in register 0 and the
	// original PC stashed for a subsequent sigreturn.
	ArrangeHandlerJump(handlerPC uint64, signum defs.Signum_t)
}

// UserTrampoline builds a Handler that, instead of running kernel logic,
// redirects the target to resume in userspace at handlerPC. Installed via
// SetHandler by the signal syscall.
func UserTrampoline(handlerPC uint64) Handler {
	return func(t Target, signum defs.Signum_t) {
		t.ArrangeHandlerJump(handlerPC, signum)
	}
}

// Handler is a signal handler: either one of the defaults installed by
// InitHandlers, or a user-registered trampoline into userspace.
type Handler func(t Target, signum defs.Signum_t)

// State is one process's signal state: a pending bitset and its
// handler table. The zero value is not ready for use; call InitHandlers
// first.
type State struct {
	pending  uint64
	handlers [defs.TotalSignals]Handler
}

// InitHandlers installs the default handler for every signal number,
// : SIGTERM and SIGINT synthesize an exit with the
// signal number as status; SIGCHLD consumes a parent-held child
// status; SIGHUP exits unless the process is init.
func InitHandlers(s *State) {
	s.handlers[defs.SIGTERM] = defaultTerminate
	s.handlers[defs.SIGINT] = defaultTerminate
	s.handlers[defs.SIGKILL] = defaultTerminate
	s.handlers[defs.SIGCHLD] = defaultChld
	s.handlers[defs.SIGHUP] = defaultHangup
}

func defaultTerminate(t Target, signum defs.Signum_t) {
	t.ExitFromSignal(int(signum))
}

func defaultChld(t Target, _ defs.Signum_t) {
	t.ConsumeChildStatus()
}

func defaultHangup(t Target, signum defs.Signum_t) {
	if !t.IsInit() {
		t.ExitFromSignal(int(signum))
	}
}

// Raise sets the pending bit for signum. Raising SIGNONE is a no-op:
// it is the sentinel "no signal" value, never an actual signal.
func (s *State) Raise(signum defs.Signum_t) {
	if signum == defs.SIGNONE {
		return
	}
	s.pending |= 1 << uint(signum)
}

// SetHandler installs a custom handler for signum, returning the
// previous one (the caller's prior sigaction, for a signal syscall
// that wants to report it).
func (s *State) SetHandler(signum defs.Signum_t, h Handler) Handler {
	old := s.handlers[signum]
	s.handlers[signum] = h
	return old
}

// ResetHandler restores signum's handler to its InitHandlers default,
// for the signal syscall's "handler == null restores default" case.
func (s *State) ResetHandler(signum defs.Signum_t) {
	s.handlers[signum] = defaultHandler(signum)
}

// defaultHandler returns the built-in handler for signum, as installed
// by InitHandlers.
func defaultHandler(signum defs.Signum_t) Handler {
	switch signum {
	case defs.SIGTERM, defs.SIGINT, defs.SIGKILL:
		return defaultTerminate
	case defs.SIGCHLD:
		return defaultChld
	case defs.SIGHUP:
		return defaultHangup
	default:
		return nil
	}
}

// CheckPending implements check_pending_signals(process): for each set
// bit in the pending set, clear it and invoke its handler. If the
// handler is a custom one (not the default installed by InitHandlers),
// the table entry resets to default after this single invocation, per
// "the user library must re-arm". A default handler may
// call t.ExitFromSignal, which the caller is expected to notice (e.g.
// by checking process state) and stop scheduling the target further;
// this function does not itself know how to detect that the target
// died.
func (s *State) CheckPending(t Target) {
	for signum := defs.Signum_t(1); int(signum) < defs.TotalSignals; signum++ {
		bit := uint64(1) << uint(signum)
		if s.pending&bit == 0 {
			continue
		}
		s.pending &^= bit
		h := s.handlers[signum]
		if h == nil {
			continue
		}
		custom := !isDefault(signum, h)
		h(t, signum)
		if custom {
			s.handlers[signum] = defaultHandler(signum)
		}
	}
}

func isDefault(signum defs.Signum_t, h Handler) bool {
	want := defaultHandler(signum)
	return reflect.ValueOf(h).Pointer() == reflect.ValueOf(want).Pointer()
}

// Pending reports whether any signal is currently pending.
func (s *State) Pending() bool {
	return s.pending != 0
}

// Has reports whether signum specifically is pending, without
// clearing it. The scheduler uses this to test the idle process for a
// pending SIGTERM , which must not
// fire on an unrelated signal such as a stray SIGCHLD.
func (s *State) Has(signum defs.Signum_t) bool {
	return s.pending&(1<<uint(signum)) != 0
}
