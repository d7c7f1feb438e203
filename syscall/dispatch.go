package syscall

import (
	"polaris/fatfs"
	"polaris/filetable"
	"polaris/internal/circbuf"
	"polaris/internal/defs"
	"polaris/internal/ustr"
	"polaris/proc"
	"polaris/trapglue"
)

// TickEvent is the event every process sleeping in sleep_ticks blocks
// on; the timer driver's ISR calls Dispatcher.WakeTick once per tick.
const TickEvent defs.Event_t = -3

// ConsoleEvent is the event getchar blocks on until the UART ISR has
// pushed a byte into the console's circular buffer.
const ConsoleEvent defs.Event_t = -4

// Handler is one syscall's body: it reads its arguments out of frame
// directly and returns the value to place in register 0.
type Handler func(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64

// Dispatcher bundles the process table and filesystem collaborators
// every syscall handler needs, and the fixed dispatch table itself.
type Dispatcher struct {
	Procs  *proc.ProcTable
	FS     *fatfs.FileSystem
	Files  *filetable.GlobalTable
	Inodes filetable.Inodes
	Uart   trapglue.UART
	Console *circbuf.Circbuf

	table [TotalSyscalls]Handler
}

// New builds a Dispatcher with every syscall index wired to its
// handler.
func New(procs *proc.ProcTable, fs *fatfs.FileSystem, files *filetable.GlobalTable, inodes filetable.Inodes, uart trapglue.UART, console *circbuf.Circbuf) *Dispatcher {
	d := &Dispatcher{Procs: procs, FS: fs, Files: files, Inodes: inodes, Uart: uart, Console: console}
	d.table = [TotalSyscalls]Handler{
		SysWriteu:        sysWriteu,
		SysSleepTicks:    sysSleepTicks,
		SysOpenFile:      sysOpenFile,
		SysCloseFile:     sysCloseFile,
		SysGetFileSize:   sysGetFileSize,
		SysReadFile:      sysReadFile,
		SysFork:          sysFork,
		SysWait:          sysWait,
		SysExec:          sysExec,
		SysExit:          sysExit,
		SysGetchar:       sysGetchar,
		SysGetpid:        sysGetpid,
		SysKill:          sysKill,
		SysSignal:        sysSignal,
		SysGetActivePids: sysGetActivePids,
		SysGetProcData:   sysGetProcData,
		SysReadRootDir:   sysReadRootDir,
	}
	return d
}

// Dispatch is the EL0-svc entry point: it looks up num in the table
// and runs the handler against the current process and trap frame,
// writing the result to register 0 per the trap-frame calling
// convention.
func (d *Dispatcher) Dispatch(num int, frame *trapglue.Frame) {
	if num < 0 || num >= TotalSyscalls || d.table[num] == nil {
		frame.SetReturn(-1)
		return
	}
	ret := d.table[num](d, d.Procs.Current(), frame)
	frame.SetReturn(ret)
}

// WakeTick is called by the external timer driver once per tick,
// waking every process blocked in sleep_ticks by one tick.
func (d *Dispatcher) WakeTick() {
	d.Procs.WakeUp(TickEvent)
}

// WakeConsole is called by the external UART ISR after pushing a byte
// into Console, waking any process blocked in getchar.
func (d *Dispatcher) WakeConsole() {
	d.Procs.WakeUp(ConsoleEvent)
}

// userString reads a NUL-terminated string out of p's single user
// page starting at the user virtual address uva.
func userString(p *proc.Process, userspaceBase uintptr, uva uint64) (string, bool) {
	page, ok := p.AS.UserBytes(userspaceBase)
	if !ok || uva < uint64(userspaceBase) {
		return "", false
	}
	off := int(uva - uint64(userspaceBase))
	if off < 0 || off >= len(page) {
		return "", false
	}
	return ustr.FromNulTerminated(page[off:]).String(), true
}

// userBytes returns a slice view into p's single user page starting
// at uva, up to n bytes (or fewer, if the page ends first).
func userBytes(p *proc.Process, userspaceBase uintptr, uva uint64, n int) ([]byte, bool) {
	page, ok := p.AS.UserBytes(userspaceBase)
	if !ok || uva < uint64(userspaceBase) {
		return nil, false
	}
	off := int(uva - uint64(userspaceBase))
	if off < 0 || off > len(page) {
		return nil, false
	}
	if off+n > len(page) {
		n = len(page) - off
	}
	return page[off : off+n], true
}
