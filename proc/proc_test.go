package proc

import (
	"testing"
	"unsafe"

	"polaris/filetable"
	"polaris/internal/defs"
	"polaris/internal/physalloc"
)

// fakeFS is a minimal in-memory stand-in for fatfs.FileSystem, just
// enough to let Spawn/Exec resolve a name to bytes without a real
// FAT16 image.
type fakeFS struct {
	byPath map[string]uint16
	data   map[uint16][]byte
	next   uint16
}

func newFakeFS() *fakeFS {
	return &fakeFS{byPath: map[string]uint16{}, data: map[uint16][]byte{}, next: 1}
}

func (f *fakeFS) addFile(path string, content []byte) {
	c := f.next
	f.next++
	f.byPath[path] = c
	f.data[c] = content
}

func (f *fakeFS) Stat(path string) (uint16, uint32, defs.Err_t) {
	c, ok := f.byPath[path]
	if !ok {
		return 0, 0, defs.ENOENT
	}
	return c, uint32(len(f.data[c])), 0
}

func (f *fakeFS) ReadFile(firstCluster uint16, buf []byte) (int, defs.Err_t) {
	d, ok := f.data[firstCluster]
	if !ok {
		return 0, defs.ENOENT
	}
	return copy(buf, d), 0
}

// fakeInodes is a minimal stand-in for fatfs's InodeCache, tracking
// ref counts the same way filetable_test.go's fakeInodes does.
type fakeInodes struct {
	refs map[int]int
}

func newFakeInodes() *fakeInodes {
	return &fakeInodes{refs: map[int]int{}}
}

func (f *fakeInodes) GetInodeEntry(dirIndex int) (int, defs.Err_t) {
	f.refs[dirIndex]++
	return dirIndex, 0
}

func (f *fakeInodes) InodePut(dirIndex int) {
	if f.refs[dirIndex] <= 0 {
		panic("InodePut on ref_count == 0")
	}
	f.refs[dirIndex]--
}

// fakeSwitcher records every kernel-stack swap Schedule requests,
// mirroring syscall/dispatch_test.go's own fakeSwitcher/fakeVMSwitcher
// pair so Schedule's bookkeeping (not just its switch count) is
// exercised without a real hardware collaborator. It leaves *oldSP
// untouched, the same hosted stand-in behavior cmd/kernel's
// hostSwitcher uses, since there is no real register state here to
// capture the outgoing process's current stack pointer from.
type fakeSwitcher struct {
	swaps   int
	lastOld uintptr
	lastNew uintptr
}

func (f *fakeSwitcher) Swap(oldSP *uintptr, newSP uintptr) {
	f.swaps++
	f.lastOld = *oldSP
	f.lastNew = newSP
}

type fakeVMSwitcher struct{ installs int }

func (f *fakeVMSwitcher) InstallTTBR0(rootPA uintptr) { f.installs++ }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ProcTableSize = 8
	cfg.MaxGlobalFiles = 8
	cfg.PidHashBuckets = 17
	return cfg
}

func newTestTable(t *testing.T, fs *fakeFS) *ProcTable {
	t.Helper()
	// 6 frames a process (kernel stack, page-map root, 3 intermediate
	// tables, user page) for each of testConfig's 7 non-idle slots.
	const npages = 48
	region := make([]byte, (npages+1)*physalloc.PageSize)
	base := uintptr(unsafe.Pointer(&region[0]))
	base = (base + physalloc.PageSize - 1) &^ (physalloc.PageSize - 1)
	alloc := physalloc.New(base, npages*physalloc.PageSize)
	files := filetable.NewGlobalTable(8)
	pt := New(testConfig(), alloc, files, newFakeInodes(), fs)
	pt.Bind(&fakeSwitcher{}, &fakeVMSwitcher{})
	return pt
}

func TestSpawnEntersReadyQueue(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("INIT.BIN", []byte("program bytes"))
	pt := newTestTable(t, fs)

	p, errno := pt.Spawn("INIT.BIN", []string{"INIT.BIN"})
	if errno != 0 {
		t.Fatalf("Spawn failed: errno=%d", errno)
	}
	if p.Pid != InitPid {
		t.Fatalf("first spawned process pid = %d, want %d", p.Pid, InitPid)
	}
	if p.State != Ready {
		t.Fatalf("spawned process state = %v, want READY", p.State)
	}
	if pt.readyQue.Len() != 1 {
		t.Fatalf("ready_que length = %d, want 1", pt.readyQue.Len())
	}
}

func TestSpawnDaemonFlagFromTrailingAmpersand(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("DAEMON.BIN", []byte("x"))
	pt := newTestTable(t, fs)

	p, errno := pt.Spawn("DAEMON.BIN", []string{"DAEMON.BIN", "&"})
	if errno != 0 {
		t.Fatalf("Spawn failed: errno=%d", errno)
	}
	if !p.Daemon {
		t.Fatal("trailing & argument should mark the process as a daemon")
	}
	if p.Frame.R[2] != 1 {
		t.Fatalf("argc = %d, want 1 (the & should be stripped)", p.Frame.R[2])
	}
}

func TestSpawnMissingPathFails(t *testing.T) {
	pt := newTestTable(t, newFakeFS())
	if _, errno := pt.Spawn("NOPE.BIN", nil); errno == 0 {
		t.Fatal("Spawn should fail for a file that does not exist")
	}
	if pt.readyQue.Len() != 0 {
		t.Fatal("a failed Spawn must not leave a half-initialized process enqueued")
	}
}

func TestForkClonesAddressSpaceAndEnqueuesChild(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("INIT.BIN", []byte("parent data"))
	pt := newTestTable(t, fs)
	parent, errno := pt.Spawn("INIT.BIN", []string{"INIT.BIN"})
	if errno != 0 {
		t.Fatalf("Spawn failed: errno=%d", errno)
	}

	childPid, errno := pt.Fork(parent)
	if errno != 0 {
		t.Fatalf("Fork failed: errno=%d", errno)
	}
	if childPid == parent.Pid {
		t.Fatal("child must get a distinct pid from its parent")
	}

	child := pt.byPid(childPid)
	if child == nil {
		t.Fatal("forked child not found by pid")
	}
	if child.Ppid != parent.Pid {
		t.Fatalf("child.Ppid = %d, want %d", child.Ppid, parent.Pid)
	}
	if child.State != Ready {
		t.Fatalf("child state = %v, want READY", child.State)
	}
	if child.AS.RootPA() == parent.AS.RootPA() {
		t.Fatal("fork must give the child its own page-map root")
	}
	if child.Frame.R[0] != 0 {
		t.Fatal("the child's return register must be zeroed after fork")
	}
}

func TestForkBeyondProcTableSizeFails(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("INIT.BIN", []byte("x"))
	pt := newTestTable(t, fs)
	parent, errno := pt.Spawn("INIT.BIN", []string{"INIT.BIN"})
	if errno != 0 {
		t.Fatalf("Spawn failed: errno=%d", errno)
	}

	// slots [1, 8) minus the parent's own slot: fill every remaining slot.
	forked := 0
	for {
		if _, errno := pt.Fork(parent); errno != 0 {
			break
		}
		forked++
		if forked > 64 {
			t.Fatal("Fork never failed; table-size limit not enforced")
		}
	}
	if _, errno := pt.Fork(parent); errno == 0 {
		t.Fatal("Fork beyond the process table size should fail")
	}
}

func TestExitDeliversSigchldAndWaitReaps(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("INIT.BIN", []byte("x"))
	pt := newTestTable(t, fs)
	parent, errno := pt.Spawn("INIT.BIN", []string{"INIT.BIN"})
	if errno != 0 {
		t.Fatalf("Spawn failed: errno=%d", errno)
	}
	childPid, errno := pt.Fork(parent)
	if errno != 0 {
		t.Fatalf("Fork failed: errno=%d", errno)
	}
	child := pt.byPid(childPid)

	pt.Exit(child, 7, false) // a direct exit(7) syscall, not a signal-handler exit

	if child.State != Killed {
		t.Fatalf("child state after Exit = %v, want KILLED", child.State)
	}
	// Exit(..., false) reschedules, and Schedule picks the parent off
	// ready_que after running its pending signals: the SIGCHLD that Exit
	// raised has already gone to the default handler, which consumed the
	// child status handed to the parent.
	if pt.Current() != parent {
		t.Fatalf("Exit should reschedule onto the parent, current pid = %d", pt.Current().Pid)
	}
	if parent.Signals.Has(defs.SIGCHLD) || parent.HasWaitStatus {
		t.Fatal("Exit should raise SIGCHLD on the parent, consumed by its default handler on reschedule")
	}
	if parent.WaitStatus != 7<<8 {
		t.Fatalf("parent held child status = %d, want %d", parent.WaitStatus, 7<<8)
	}

	var wstatus int
	reapedPid, errno := pt.Wait(parent, -1, &wstatus, 0)
	if errno != 0 {
		t.Fatalf("Wait failed: errno=%d", errno)
	}
	if reapedPid != childPid {
		t.Fatalf("Wait reaped pid %d, want %d", reapedPid, childPid)
	}
	if wstatus != 7<<8 {
		t.Fatalf("wstatus = %#x, want %#x", wstatus, 7<<8)
	}
	if pt.byPid(childPid) != nil {
		t.Fatal("reaped child should no longer be found by pid")
	}
}

func TestWaitFoldsReapedChildAccountingIntoParent(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("INIT.BIN", []byte("x"))
	pt := newTestTable(t, fs)
	parent, errno := pt.Spawn("INIT.BIN", []string{"INIT.BIN"})
	if errno != 0 {
		t.Fatalf("Spawn failed: errno=%d", errno)
	}
	childPid, errno := pt.Fork(parent)
	if errno != 0 {
		t.Fatalf("Fork failed: errno=%d", errno)
	}
	child := pt.byPid(childPid)
	child.Accnt.Utadd(1000)
	child.Accnt.Systadd(2000)

	parentUserBefore, parentSysBefore := parent.Accnt.Snapshot()

	pt.Exit(child, 0, false)
	if _, errno := pt.Wait(parent, childPid, nil, 0); errno != 0 {
		t.Fatalf("Wait failed: errno=%d", errno)
	}

	userNs, sysNs := parent.Accnt.Snapshot()
	if userNs != parentUserBefore+1000 {
		t.Fatalf("parent UserNs after reap = %d, want %d", userNs, parentUserBefore+1000)
	}
	if sysNs != parentSysBefore+2000 {
		t.Fatalf("parent SysNs after reap = %d, want %d", sysNs, parentSysBefore+2000)
	}
}

func TestWaitNoChildrenReturnsECHILD(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("INIT.BIN", []byte("x"))
	pt := newTestTable(t, fs)
	lonely, errno := pt.Spawn("INIT.BIN", []string{"INIT.BIN"})
	if errno != 0 {
		t.Fatalf("Spawn failed: errno=%d", errno)
	}

	if pid, errno := pt.Wait(lonely, -1, nil, 0); errno != defs.ECHILD || pid != -1 {
		t.Fatalf("Wait(-1) with no children = (%d, %d), want (-1, ECHILD)", pid, errno)
	}
}

func TestWaitWNOHANGWithoutZombieReturnsZero(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("INIT.BIN", []byte("x"))
	pt := newTestTable(t, fs)
	parent, _ := pt.Spawn("INIT.BIN", []string{"INIT.BIN"})
	if _, errno := pt.Fork(parent); errno != 0 {
		t.Fatalf("Fork failed: errno=%d", errno)
	}

	pid, errno := pt.Wait(parent, -1, nil, defs.WNOHANG)
	if errno != 0 || pid != 0 {
		t.Fatalf("Wait(WNOHANG) with a live (non-zombie) child = (%d, %d), want (0, 0)", pid, errno)
	}
}

func TestKillInvalidSignalReturnsEINVAL(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("INIT.BIN", []byte("x"))
	pt := newTestTable(t, fs)
	p, _ := pt.Spawn("INIT.BIN", []string{"INIT.BIN"})

	if errno := pt.Kill(p, p.Pid, 99); errno != defs.EINVAL {
		t.Fatalf("Kill with an out-of-range signal = %d, want EINVAL", errno)
	}
}

func TestKillSleepingProcessMovesItToReady(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("INIT.BIN", []byte("x"))
	pt := newTestTable(t, fs)
	parent, _ := pt.Spawn("INIT.BIN", []string{"INIT.BIN"})
	childPid, errno := pt.Fork(parent)
	if errno != 0 {
		t.Fatalf("Fork failed: errno=%d", errno)
	}
	child := pt.byPid(childPid)

	// Put child to sleep directly, bypassing the blocking Sleep() call
	// (which would not return until woken, and nothing else is running
	// concurrently in this test): set up the same state Sleep would.
	pt.readyQue.Remove(child)
	child.State = Sleeping
	child.Event = 42
	pt.waitList.PushBack(child)

	if errno := pt.Kill(parent, childPid, defs.SIGINT); errno != 0 {
		t.Fatalf("Kill failed: errno=%d", errno)
	}
	if child.State != Ready {
		t.Fatalf("child state after Kill = %v, want READY", child.State)
	}
	if child.Event != defs.NoEvent {
		t.Fatal("Kill should clear the sleeper's event when moving it to ready_que")
	}
}

func TestKillHangupResetsOrphanedZombiesAndPidCounter(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("INIT.BIN", []byte("x"))
	pt := newTestTable(t, fs)
	init, _ := pt.Spawn("INIT.BIN", []string{"INIT.BIN"})

	childPid, errno := pt.Fork(init)
	if errno != 0 {
		t.Fatalf("Fork failed: errno=%d", errno)
	}
	child := pt.byPid(childPid)
	pt.Exit(child, 1, true) // child.Ppid is already InitPid: this is an "orphan" zombie

	if errno := pt.Kill(pt.Idle(), -1, defs.SIGHUP); errno != 0 {
		t.Fatalf("Kill(-1, SIGHUP) failed: errno=%d", errno)
	}
	if pt.byPid(childPid) != nil {
		t.Fatal("SIGHUP should reap orphaned zombies owned by init")
	}
	if pt.nextPid != 2 {
		t.Fatalf("pid counter after SIGHUP = %d, want 2", pt.nextPid)
	}
}

func TestWakeUpMovesMatchingSleeperToReady(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("INIT.BIN", []byte("x"))
	pt := newTestTable(t, fs)
	parent, _ := pt.Spawn("INIT.BIN", []string{"INIT.BIN"})
	childPid, errno := pt.Fork(parent)
	if errno != 0 {
		t.Fatalf("Fork failed: errno=%d", errno)
	}
	child := pt.byPid(childPid)

	pt.readyQue.Remove(child)
	child.State = Sleeping
	child.Event = 7
	pt.waitList.PushBack(child)

	pt.WakeUp(7)

	if child.State != Ready {
		t.Fatalf("state after WakeUp = %v, want READY", child.State)
	}
	if child.Event != defs.NoEvent {
		t.Fatal("WakeUp should clear the woken process's event")
	}
	if pt.readyQue.Len() != 2 { // parent (from Spawn) plus the woken child
		t.Fatalf("ready_que length after WakeUp = %d, want 2", pt.readyQue.Len())
	}
}

func TestScheduleRoundRobinsAndFallsBackToIdle(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("A.BIN", []byte("a"))
	fs.addFile("B.BIN", []byte("b"))
	pt := newTestTable(t, fs)

	a, errno := pt.Spawn("A.BIN", []string{"A.BIN"})
	if errno != 0 {
		t.Fatalf("Spawn A failed: errno=%d", errno)
	}
	b, errno := pt.Spawn("B.BIN", []string{"B.BIN"})
	if errno != 0 {
		t.Fatalf("Spawn B failed: errno=%d", errno)
	}

	pt.Schedule()
	if pt.Current().Pid != a.Pid {
		t.Fatalf("first Schedule picked pid %d, want %d", pt.Current().Pid, a.Pid)
	}
	pt.Schedule()
	if pt.Current().Pid != b.Pid {
		t.Fatalf("second Schedule picked pid %d, want %d", pt.Current().Pid, b.Pid)
	}
	pt.Schedule()
	if pt.Current().Pid != IdlePid {
		t.Fatalf("Schedule with an empty ready_que should fall back to idle, got pid %d", pt.Current().Pid)
	}
}

func TestTriggerSchedulerNoopOnEmptyQueue(t *testing.T) {
	pt := newTestTable(t, newFakeFS())
	before := pt.Current()
	pt.TriggerScheduler()
	if pt.Current() != before {
		t.Fatal("TriggerScheduler must be a no-op when ready_que is empty")
	}
}

func TestExitRemovesKilledCandidateFromReadyQueue(t *testing.T) {
	// A process whose pending SIGTERM fires while it is still the
	// candidate at the head of ready_que (checked by Schedule before
	// popping it) must not be handed the CPU: Exit has to evict it from
	// ready_que so Schedule's head-still-matches check sees the removal
	// and retries.
	fs := newFakeFS()
	fs.addFile("A.BIN", []byte("a"))
	fs.addFile("B.BIN", []byte("b"))
	pt := newTestTable(t, fs)

	a, errno := pt.Spawn("A.BIN", []string{"A.BIN"})
	if errno != 0 {
		t.Fatalf("Spawn A failed: errno=%d", errno)
	}
	b, errno := pt.Spawn("B.BIN", []string{"B.BIN"})
	if errno != 0 {
		t.Fatalf("Spawn B failed: errno=%d", errno)
	}
	a.Signals.Raise(defs.SIGTERM)

	pt.Schedule()
	if a.State != Killed {
		t.Fatalf("A should have been killed by its pending SIGTERM, state = %v", a.State)
	}
	if pt.Current().Pid != b.Pid {
		t.Fatalf("Schedule picked pid %d after killing the head of ready_que, want %d", pt.Current().Pid, b.Pid)
	}
}

func TestScheduleCountsRealContextSwitches(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("A.BIN", []byte("a"))
	pt := newTestTable(t, fs)
	sw := pt.sw.(*fakeSwitcher)

	before := pt.ContextSwitches.Value()
	a, errno := pt.Spawn("A.BIN", []string{"A.BIN"})
	if errno != 0 {
		t.Fatalf("Spawn failed: errno=%d", errno)
	}
	idle := pt.Idle()
	// idle is built by New, not AllocNewProcess, and owns no kernel-stack
	// page: its kernelSP is whatever the switch primitive saves when idle
	// is descheduled, and fakeSwitcher never writes *oldSP.
	idleSP, aSP := idle.kernelSP, a.kernelSP
	if aSP == 0 {
		t.Fatalf("AllocNewProcess did not seed a kernel stack pointer: a=%#x", aSP)
	}

	pt.Schedule() // idle -> A: a real switch
	if sw.lastNew != aSP {
		t.Fatalf("first Swap's newSP = %#x, want A's own kernel SP %#x, not a hardcoded address", sw.lastNew, aSP)
	}
	if idle.kernelSP != idleSP {
		t.Fatalf("idle.kernelSP changed across a switch it was descheduled by: got %#x, want %#x", idle.kernelSP, idleSP)
	}

	pt.Schedule() // A -> idle (ready_que now empty): another real switch
	if sw.lastNew != idleSP {
		t.Fatalf("second Swap's newSP = %#x, want idle's own kernel SP %#x", sw.lastNew, idleSP)
	}
	if a.kernelSP != aSP {
		t.Fatalf("a.kernelSP changed across a switch it was descheduled by: got %#x, want %#x", a.kernelSP, aSP)
	}
	if got := pt.ContextSwitches.Value() - before; got != 2 {
		t.Fatalf("ContextSwitches advanced by %d, want 2", got)
	}
}

func TestReapOnNonZombiePanics(t *testing.T) {
	fs := newFakeFS()
	fs.addFile("A.BIN", []byte("a"))
	pt := newTestTable(t, fs)

	a, errno := pt.Spawn("A.BIN", []string{"A.BIN"})
	if errno != 0 {
		t.Fatalf("Spawn failed: errno=%d", errno)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("reap on a process that is not a zombie should panic")
		}
	}()
	pt.reap(a) // a is Ready, not Killed
}
