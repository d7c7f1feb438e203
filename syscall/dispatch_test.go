package syscall

import (
	"testing"
	"unsafe"

	"polaris/fatfs"
	"polaris/filetable"
	"polaris/internal/circbuf"
	"polaris/internal/defs"
	"polaris/internal/physalloc"
	"polaris/proc"
	"polaris/trapglue"
)

// memDisk is a tiny in-memory fatfs.Disk, built the same way
// fatfs_test.go's does: one file, HELLO.TXT, spanning two clusters.
type memDisk struct {
	sectors [][]byte
}

func (d *memDisk) ReadSector(lba int, buf []byte) error {
	copy(buf, d.sectors[lba])
	return nil
}

func (d *memDisk) Stats() string { return "memdisk" }

func le16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func le32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func buildTestImage(t *testing.T, content []byte) *memDisk {
	t.Helper()
	d := &memDisk{sectors: make([][]byte, 16)}
	for i := range d.sectors {
		d.sectors[i] = make([]byte, fatfs.BytesPerSector)
	}

	le32(d.sectors[0][0x1BE+8:], 1) // MBR partition LBA

	bpb := d.sectors[1]
	le16(bpb[11:], fatfs.BytesPerSector)
	bpb[13] = 1 // sectors per cluster
	le16(bpb[14:], 1)
	bpb[16] = 1
	le16(bpb[17:], 16)
	le16(bpb[22:], 1)
	le16(bpb[510:], 0xAA55)

	fat := d.sectors[2]
	le16(fat[2*2:], 3)
	le16(fat[3*2:], 0xFFFF)

	root := d.sectors[3]
	copy(root[0:8], "HELLO   ")
	copy(root[8:11], "TXT")
	root[11] = 0
	le16(root[26:], 2)
	le32(root[28:], uint32(len(content)))

	clusterBytes := fatfs.BytesPerSector
	copy(d.sectors[4][:min(len(content), clusterBytes)], content)
	if len(content) > clusterBytes {
		copy(d.sectors[5][:len(content)-clusterBytes], content[clusterBytes:])
	}
	return d
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// fakeSwitcher/fakeVMSwitcher stand in for the out-of-scope hardware
// context-switch and translation-table-base-register primitives.
type fakeSwitcher struct{ swaps int }

func (f *fakeSwitcher) Swap(oldSP *uintptr, newSP uintptr) { f.swaps++ }

type fakeVMSwitcher struct{ installs int }

func (f *fakeVMSwitcher) InstallTTBR0(rootPA uintptr) { f.installs++ }

type fakeUART struct{ written []byte }

func (f *fakeUART) WriteByte(b byte)         { f.written = append(f.written, b) }
func (f *fakeUART) ReadByte() (byte, bool)   { return 0, false }

func newTestDispatcher(t *testing.T, content []byte) (*Dispatcher, *proc.ProcTable) {
	t.Helper()
	disk := buildTestImage(t, content)
	fs, err := fatfs.Mount(disk)
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	const npages = 32
	region := make([]byte, (npages+1)*physalloc.PageSize)
	base := uintptr(unsafe.Pointer(&region[0]))
	base = (base + physalloc.PageSize - 1) &^ (physalloc.PageSize - 1)
	alloc := physalloc.New(base, npages*physalloc.PageSize)

	cfg := proc.DefaultConfig()
	cfg.ProcTableSize = 8
	files := filetable.NewGlobalTable(8)
	procs := proc.New(cfg, alloc, files, fs.Inodes, fs)
	procs.Bind(&fakeSwitcher{}, &fakeVMSwitcher{})

	uart := &fakeUART{}
	console := circbuf.New(16)
	d := New(procs, fs, files, fs.Inodes, uart, console)
	return d, procs
}

func TestDispatchOpenGetSizeReadClose(t *testing.T) {
	d, procs := newTestDispatcher(t, []byte("hi there"))
	p, errno := procs.Spawn("HELLO.TXT", []string{"HELLO.TXT"})
	if errno != 0 {
		t.Fatalf("Spawn failed: errno=%d", errno)
	}
	procs.Schedule() // installs p as Current()

	frame := &trapglue.Frame{}
	// write the path "HELLO.TXT\0" into the user page so sysOpenFile can
	// read it back via userString, mirroring how a real user-space
	// open() call would have laid it out before the svc trap.
	page, ok := p.AS.UserBytes(procs.UserspaceBase())
	if !ok {
		t.Fatal("no user page mapped for the spawned process")
	}
	copy(page[:], "HELLO.TXT\x00")
	frame.R[0] = uint64(procs.UserspaceBase())

	d.Dispatch(SysOpenFile, frame)
	fd := int64(frame.R[0])
	if fd < 0 {
		t.Fatal("open_file should have succeeded for an existing path")
	}

	frame2 := &trapglue.Frame{R: [31]uint64{uint64(fd)}}
	d.Dispatch(SysGetFileSize, frame2)
	if frame2.R[0] != 8 {
		t.Fatalf("get_file_size = %d, want 8", frame2.R[0])
	}

	readFrame := &trapglue.Frame{}
	readFrame.R[0] = uint64(fd)
	readFrame.R[1] = uint64(procs.UserspaceBase()) + 64 // scratch region past the path bytes
	readFrame.R[2] = 8
	d.Dispatch(SysReadFile, readFrame)
	if readFrame.R[0] != 8 {
		t.Fatalf("read_file returned %d bytes, want 8", readFrame.R[0])
	}
	got := page[64 : 64+8]
	if string(got) != "hi there" {
		t.Fatalf("read_file copied %q, want %q", got, "hi there")
	}

	closeFrame := &trapglue.Frame{R: [31]uint64{uint64(fd)}}
	d.Dispatch(SysCloseFile, closeFrame)
	if closeFrame.R[0] != 0 {
		t.Fatalf("close_file returned %d, want 0", closeFrame.R[0])
	}
}

func TestDispatchGetpid(t *testing.T) {
	d, procs := newTestDispatcher(t, []byte("x"))
	_, errno := procs.Spawn("HELLO.TXT", []string{"HELLO.TXT"})
	if errno != 0 {
		t.Fatalf("Spawn failed: errno=%d", errno)
	}
	procs.Schedule()

	frame := &trapglue.Frame{}
	d.Dispatch(SysGetpid, frame)
	if defs.Pid_t(frame.R[0]) != proc.InitPid {
		t.Fatalf("getpid = %d, want %d", frame.R[0], proc.InitPid)
	}
}

func TestDispatchUnknownSyscallReturnsError(t *testing.T) {
	d, _ := newTestDispatcher(t, []byte("x"))
	frame := &trapglue.Frame{}
	d.Dispatch(999, frame)
	if int64(frame.R[0]) != -1 {
		t.Fatalf("unknown syscall returned %d, want -1", int64(frame.R[0]))
	}
}

func TestDispatchWriteuWritesToUART(t *testing.T) {
	d, procs := newTestDispatcher(t, []byte("x"))
	p, errno := procs.Spawn("HELLO.TXT", []string{"HELLO.TXT"})
	if errno != 0 {
		t.Fatalf("Spawn failed: errno=%d", errno)
	}
	procs.Schedule()

	page, _ := p.AS.UserBytes(procs.UserspaceBase())
	copy(page[:], "console line\n")

	frame := &trapglue.Frame{}
	frame.R[0] = uint64(procs.UserspaceBase())
	frame.R[1] = uint64(len("console line\n"))
	d.Dispatch(SysWriteu, frame)

	uart := d.Uart.(*fakeUART)
	if string(uart.written) != "console line\n" {
		t.Fatalf("UART received %q, want %q", uart.written, "console line\n")
	}
	if int64(frame.R[0]) != int64(len("console line\n")) {
		t.Fatalf("writeu returned %d, want %d", frame.R[0], len("console line\n"))
	}
}
