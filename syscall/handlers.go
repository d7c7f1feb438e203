package syscall

import (
	"polaris/filetable"
	"polaris/internal/defs"
	"polaris/internal/statview"
	"polaris/proc"
	"polaris/signal"
	"polaris/trapglue"
)

// Each handler below implements one row of syscall table
// (indices 0-9) or extended indices (10-16). Every
// handler reads its arguments straight out of the trap frame and
// returns the int64 register-0 value Dispatch writes back; none of
// them touch frame.SetReturn themselves.

func sysWriteu(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	n := int(frame.Arg(1))
	data, ok := userBytes(p, d.Procs.UserspaceBase(), frame.Arg(0), n)
	if !ok {
		return -1
	}
	for _, b := range data {
		d.Uart.WriteByte(b)
	}
	return int64(len(data))
}

func sysSleepTicks(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	ticks := int(frame.Arg(0))
	for i := 0; i < ticks; i++ {
		d.Procs.Sleep(p, TickEvent)
	}
	return 0
}

func sysOpenFile(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	path, ok := userString(p, d.Procs.UserspaceBase(), frame.Arg(0))
	if !ok {
		return -1
	}
	fd := filetable.OpenFile(p.Fds, d.Files, d.Inodes, d.FS.Resolve, path, filetable.ModeRead)
	return int64(fd)
}

func sysCloseFile(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	fd := defs.Fd_t(int32(frame.Arg(0)))
	if fd < 0 || p.Fds.Slot(fd) < 0 {
		return -1
	}
	filetable.CloseFile(p.Fds, d.Files, d.Inodes, fd)
	return 0
}

func sysGetFileSize(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	ino, ok := openInode(d, p, defs.Fd_t(int32(frame.Arg(0))))
	if !ok {
		return -1
	}
	return int64(ino.FileSize)
}

func sysReadFile(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	fd := defs.Fd_t(int32(frame.Arg(0)))
	ino, ok := openInode(d, p, fd)
	if !ok {
		return -1
	}
	size := int(frame.Arg(2))
	if size > int(ino.FileSize) {
		size = int(ino.FileSize)
	}
	buf, ok := userBytes(p, d.Procs.UserspaceBase(), frame.Arg(1), size)
	if !ok {
		return -1
	}
	n, errno := d.FS.ReadFile(ino.FirstCluster, buf)
	if errno != 0 {
		return -1
	}
	return int64(n)
}

// openInode resolves fd through the caller's fd table and the global
// open-file table down to the in-core inode it refers to, the shared
// first step of get_file_size and read_file.
func openInode(d *Dispatcher, p *proc.Process, fd defs.Fd_t) (fatInode, bool) {
	k := p.Fds.Slot(fd)
	if k < 0 {
		return fatInode{}, false
	}
	fe := d.Files.Entry(k)
	if fe.InodeIdx < 0 {
		return fatInode{}, false
	}
	ino := d.FS.Inodes.Lookup(fe.InodeIdx)
	return fatInode{FirstCluster: ino.FirstCluster, FileSize: ino.FileSize}, true
}

// fatInode is the narrow view of fatfs.Inode the read path needs,
// named locally so this file does not need to import fatfs's
// unexported internals beyond what fatfs.Inode already exports.
type fatInode struct {
	FirstCluster uint16
	FileSize     uint32
}

func sysFork(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	child, errno := d.Procs.Fork(p)
	if errno != 0 {
		return -1
	}
	return int64(child)
}

func sysWait(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	pid := defs.Pid_t(int32(frame.Arg(0)))
	var wstatus int
	reaped, errno := d.Procs.Wait(p, pid, &wstatus, defs.WaitOption_t(frame.Arg(1)))
	if errno != 0 {
		return -1
	}
	if reaped == 0 {
		return 0 // WNOHANG, nothing reapable yet
	}
	// Pack the reaped pid and its wait-status byte into one return
	// value, since the syscall ABI (unlike proc.Wait's internal
	// pointer out-param) returns a single integer // "exit-status-coded pid".
	return int64(reaped)<<16 | int64(wstatus&0xffff)
}

func sysExec(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	name, ok := userString(p, d.Procs.UserspaceBase(), frame.Arg(0))
	if !ok {
		return -1
	}
	args, ok := readArgv(p, d.Procs.UserspaceBase(), frame.Arg(1))
	if !ok {
		return -1
	}
	if errno := d.Procs.Exec(p, name, args); errno != 0 {
		return -1
	}
	return 0
}

func sysExit(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	status := int(int32(frame.Arg(0)))
	d.Procs.Exit(p, status, false)
	return 0
}

func sysGetchar(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	for {
		if b, ok := d.Console.PopByte(); ok {
			return int64(b)
		}
		d.Procs.Sleep(p, ConsoleEvent)
	}
}

func sysGetpid(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	return int64(p.Pid)
}

func sysKill(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	pid := defs.Pid_t(int32(frame.Arg(0)))
	sig := defs.Signum_t(frame.Arg(1))
	if errno := d.Procs.Kill(p, pid, sig); errno != 0 {
		return -1
	}
	return 0
}

func sysSignal(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	signum := defs.Signum_t(frame.Arg(0))
	if signum <= defs.SIGNONE || int(signum) >= defs.TotalSignals {
		return -1
	}
	handlerPC := frame.Arg(1)
	if handlerPC == 0 {
		p.Signals.ResetHandler(signum)
	} else {
		p.Signals.SetHandler(signum, signal.UserTrampoline(handlerPC))
	}
	return 0
}

func sysGetActivePids(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	max := int(frame.Arg(1))
	pids := d.Procs.ActivePids()
	if len(pids) > max {
		pids = pids[:max]
	}
	buf, ok := userBytes(p, d.Procs.UserspaceBase(), frame.Arg(0), len(pids)*8)
	if !ok {
		return -1
	}
	for i, pid := range pids {
		putUintptr(buf[i*8:], uintptr(pid))
	}
	return int64(len(pids))
}

func sysGetProcData(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	pid := defs.Pid_t(int32(frame.Arg(0)))
	snap, ok := d.Procs.Snapshot(pid)
	if !ok {
		return -1
	}
	info := statview.ProcInfo{
		Pid:    int64(snap.Pid),
		Ppid:   int64(snap.Ppid),
		State:  int64(snap.State),
		UserNs: snap.UserNs,
		SysNs:  snap.SysNs,
		Daemon: boolToInt64(snap.Daemon),
	}
	raw := info.Bytes()
	dst, ok := userBytes(p, d.Procs.UserspaceBase(), frame.Arg(1), len(raw))
	if !ok {
		return -1
	}
	copy(dst, raw)
	return 0
}

func sysReadRootDir(d *Dispatcher, p *proc.Process, frame *trapglue.Frame) int64 {
	idx := int(frame.Arg(0))
	entry, ok := d.FS.DirEntryAt(idx)
	if !ok {
		return -1
	}
	view := statview.DirEntryView{
		FirstCluster: uint32(entry.FirstCluster),
		FileSize:     entry.FileSize,
		Valid:        1,
	}
	copy(view.Name[:], entry.Name[:])
	copy(view.Ext[:], entry.Ext[:])
	raw := view.Bytes()
	dst, ok := userBytes(p, d.Procs.UserspaceBase(), frame.Arg(1), len(raw))
	if !ok {
		return -1
	}
	copy(dst, raw)
	return 0
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// readArgv parses a null-terminated vector of user-space string
// pointers starting at argvPtr, matching exec's userspace argv
// convention .
func readArgv(p *proc.Process, userspaceBase uintptr, argvPtr uint64) ([]string, bool) {
	page, ok := p.AS.UserBytes(userspaceBase)
	if !ok {
		return nil, false
	}
	off := int(argvPtr - uint64(userspaceBase))
	if argvPtr < uint64(userspaceBase) || off < 0 || off > len(page) {
		return nil, false
	}
	var args []string
	for i := 0; ; i++ {
		entryOff := off + i*8
		if entryOff+8 > len(page) {
			return nil, false
		}
		ptr := getUintptr(page[entryOff:])
		if ptr == 0 {
			break
		}
		s, ok := userString(p, userspaceBase, uint64(ptr))
		if !ok {
			return nil, false
		}
		args = append(args, s)
	}
	return args, true
}

func putUintptr(b []byte, v uintptr) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func getUintptr(b []byte) uintptr {
	var v uintptr
	for i := 7; i >= 0; i-- {
		v = v<<8 | uintptr(b[i])
	}
	return v
}
