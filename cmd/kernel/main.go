// Command kernel is the composition root: it wires physalloc, vm,
// fatfs, filetable, proc, signal, and syscall together and drives the
// idle loop until kill(-1, SIGTERM) asks the system to shut down.
//
// The trap-vector assembly glue, the raw context-switch primitive, and
// the MMIO UART/timer drivers stay out of scope here: a real board
// brings its own implementations of trapglue.Switcher/UART/Timer and
// vm.Switcher to this composition root. This file instead supplies
// small hosted stand-ins — a scheduling simulator, not a hypervisor —
// so the kernel core can be exercised end to end on a development
// machine without any assembly. Swap the four hosted types below for
// board-specific ones to boot on real hardware; nothing else in this
// module needs to change.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"polaris/fatfs"
	"polaris/filetable"
	"polaris/internal/circbuf"
	"polaris/internal/physalloc"
	"polaris/proc"
	"polaris/syscall"
)

// physMemSize is the size of the host-backed region this stand-in
// carves into 2 MiB page frames, standing in for the real
// [kernel-image-end, MEMORY_END) physical region a board's allocator
// would manage.
const physMemSize = 64 * physalloc.PageSize

func main() {
	imagePath := flag.String("image", "", "path to a FAT16 disk image built by mkfatimg")
	initProg := flag.String("init", "INIT.BIN", "8.3 name of the init program inside the image")
	statsProfile := flag.String("statsprofile", "", "if set, write a pprof profile of event counters here on shutdown")
	flag.Parse()

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "kernel: -image is required (build one with cmd/mkfatimg)")
		os.Exit(1)
	}

	disk, err := fatfs.NewFileDisk(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernel: opening disk image: %v\n", err)
		os.Exit(1)
	}
	defer disk.Close()

	fs, err := fatfs.Mount(disk)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernel: mounting FAT16 image: %v\n", err)
		os.Exit(1)
	}

	alloc := physalloc.New(hostPhysBase(), physMemSize)
	cfg := proc.DefaultConfig()
	files := filetable.NewGlobalTable(cfg.MaxGlobalFiles)
	console := circbuf.New(256)

	procs := proc.New(cfg, alloc, files, fs.Inodes, fs)
	procs.Bind(&hostSwitcher{}, &hostVMSwitcher{})

	disp := syscall.New(procs, fs, files, fs.Inodes, &hostUART{}, console)

	timer := &hostTimer{procs: procs, disp: disp}
	timer.ArmTick(10 * time.Millisecond)

	bootInit(procs, *initProg)

	fmt.Println("kernel: booted, entering idle loop")
	for !procs.Shutdown() {
		procs.Schedule()
		time.Sleep(time.Millisecond)
	}
	fmt.Println("Shutting down...")

	if *statsProfile != "" {
		if err := writeStatsProfile(*statsProfile, procs, fs); err != nil {
			fmt.Fprintf(os.Stderr, "kernel: writing stats profile: %v\n", err)
		}
	}
}

// bootInit spawns the first non-idle process (pid 1, init), matching
// scenario 1's "Boot, spawn init (pid 1)".
func bootInit(procs *proc.ProcTable, initProg string) {
	if _, errno := procs.Spawn(initProg, []string{initProg}); errno != 0 {
		fmt.Fprintf(os.Stderr, "kernel: spawning init (%q) failed: errno %d\n", initProg, errno)
		os.Exit(1)
	}
}

// hostSwitcher is a hosted stand-in for the raw kernel-stack-pointer
// swap the real assembly context-switch primitive performs. It cannot
// actually resume a saved register context — there is no real user
// mode on the host — so it only records the requested swap and leaves
// *oldSP untouched, letting proc.Schedule's own per-process kernelSP
// bookkeeping run unmodified for scheduling-logic development and
// testing.
type hostSwitcher struct {
	mu     sync.Mutex
	nswaps int
}

func (s *hostSwitcher) Swap(oldSP *uintptr, newSP uintptr) {
	s.mu.Lock()
	s.nswaps++
	s.mu.Unlock()
}

// hostVMSwitcher is a hosted stand-in for the translation-table-base
// register install vm.Switcher performs on real hardware.
type hostVMSwitcher struct{}

func (hostVMSwitcher) InstallTTBR0(rootPA uintptr) {}

// hostUART stands in for the MMIO console driver: WriteByte relays
// writeu output to the host process's own stdout, and ReadByte reads one
// byte from stdin. Nothing in this composition root calls ReadByte or
// pushes bytes into the console buffer, so getchar never receives input
// here.
type hostUART struct{}

func (hostUART) WriteByte(b byte) { os.Stdout.Write([]byte{b}) }
func (hostUART) ReadByte() (byte, bool) {
	var b [1]byte
	n, err := os.Stdin.Read(b[:])
	if err != nil || n == 0 {
		return 0, false
	}
	return b[0], true
}

// hostTimer fires a Go ticker at the requested period, standing in for
// the hardware preemption timer: each tick wakes sleep_ticks waiters
// and calls trigger_scheduler.
type hostTimer struct {
	procs *proc.ProcTable
	disp  *syscall.Dispatcher
}

func (t *hostTimer) ArmTick(period time.Duration) {
	go func() {
		for range time.Tick(period) {
			t.disp.WakeTick()
			t.procs.TriggerScheduler()
		}
	}()
}

// hostPhysBase carves out physMemSize bytes of host memory and returns
// its address for physalloc.New, standing in for the real physical
// address range between the loaded kernel image and MEMORY_END.
func hostPhysBase() uintptr {
	region := make([]byte, physMemSize+physalloc.PageSize)
	base := alignUp(uintptr(ptrOf(region)), physalloc.PageSize)
	return base
}
