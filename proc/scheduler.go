package proc

import (
	"fmt"

	"polaris/internal/defs"
	"polaris/internal/queue"
)

// Current returns the process presently occupying the CPU.
func (pt *ProcTable) Current() *Process { return pt.current }

// TriggerScheduler is called by the timer IRQ. It is a no-op when
// ready_que is empty; otherwise it demotes the current process to
// READY, enqueues it (unless it is the idle process, which is never
// enqueued), and calls Schedule.
func (pt *ProcTable) TriggerScheduler() {
	if pt.readyQue.Empty() {
		return
	}
	cur := pt.current
	if cur.Pid != IdlePid {
		cur.State = Ready
		pt.readyQue.PushBack(cur)
	}
	pt.Schedule()
}

// Schedule implements schedule(): pop the next READY process off
// ready_que, running its pending-signal check first and retrying if a
// handler removed it from the queue (e.g. by killing it), falling back
// to the idle process when nothing is runnable. It then performs the
// context switch: accounting, address-space install, and the raw
// stack-pointer swap.
func (pt *ProcTable) Schedule() {
	old := pt.current
	var next *Process

	for !pt.readyQue.Empty() {
		candidate := pt.readyQue.Front().(*Process)
		if pt.Idle().Signals.Has(defs.SIGTERM) {
			fmt.Println("stopping ...")
		}
		pt.checkPendingSignals(candidate)
		if pt.readyQue.Front() == queue.Elem(candidate) { // candidate is still at the head
			pt.readyQue.PopFront()
			next = candidate
			break
		}
		// candidate was removed from the queue by its own signal
		// handler (e.g. killed); retry against the new head.
	}

	if next == nil {
		if pt.waitList.Empty() && pt.Idle().Signals.Has(defs.SIGTERM) {
			pt.shutdown = true
			fmt.Println("Shutting down...")
		}
		next = pt.Idle()
	}

	next.State = Running
	if !next.Daemon && pt.fgProcess == nil {
		pt.fgProcess = next
	}

	if old != nil && old.dispatchedAt != 0 {
		old.Accnt.Finish(old.dispatchedAt)
	}
	next.dispatchedAt = next.Accnt.Now()

	pt.current = next
	if next.AS != nil && pt.vsw != nil {
		next.AS.SwitchVM(pt.vsw)
	}
	if old != nil && old != next && pt.sw != nil {
		oldSP := old.kernelSP
		pt.sw.Swap(&oldSP, next.kernelSP)
		old.kernelSP = oldSP
		pt.ContextSwitches.Inc()
	}
}

// checkPendingSignals wraps candidate as a signal.Target and runs its
// pending bitset "called by the scheduler for the
// candidate process".
func (pt *ProcTable) checkPendingSignals(p *Process) {
	p.Signals.CheckPending(target{pt: pt, p: p})
}

// Sleep implements sleep(event): the caller blocks until woken with a
// matching event. On resumption, if the event field is still set (a
// spurious wakeup), it sleeps again — the kernel convention is that a
// genuine wake clears event to NoEvent first.
func (pt *ProcTable) Sleep(p *Process, event defs.Event_t) {
	for {
		p.State = Sleeping
		p.Event = event
		pt.waitList.PushBack(p)
		pt.Schedule()
		if p.Event == defs.NoEvent {
			return
		}
	}
}

// WakeUp implements wake_up(event): every ready_que process with a
// matching event has its event cleared in place; every wait_list
// process with a matching event is removed, cleared, marked READY,
// and pushed onto ready_que.
func (pt *ProcTable) WakeUp(event defs.Event_t) {
	for _, p := range pt.slots {
		if p != nil && p.State == Ready && p.Event == event {
			p.Event = defs.NoEvent
		}
	}

	var woken []*Process
	pt.waitList.Each(func(e queue.Elem) {
		p := e.(*Process)
		if p.Event == event {
			woken = append(woken, p)
		}
	})
	for _, p := range woken {
		pt.waitList.Remove(p)
		p.Event = defs.NoEvent
		p.State = Ready
		pt.readyQue.PushBack(p)
	}
}
