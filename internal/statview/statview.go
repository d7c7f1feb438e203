// Package statview provides the packed, little-endian struct layouts
// the extended syscalls (get_proc_data, read_root_dir) copy out to
// userspace: a fixed-field record with a Bytes() method exposing its
// underlying storage directly via unsafe, so the syscall layer can
// hand the result straight to the user page without an intermediate
// encoding pass.
package statview

import "unsafe"

// ProcInfo mirrors get_proc_data's result: identity, lifecycle state, and
// accounted CPU time for one process-table slot.
type ProcInfo struct {
	Pid     int64
	Ppid    int64
	State   int64
	UserNs  int64
	SysNs   int64
	Daemon  int64
}

// Bytes exposes the raw little-endian bytes of the record.
func (p *ProcInfo) Bytes() []byte {
	const sz = unsafe.Sizeof(*p)
	sl := (*[sz]byte)(unsafe.Pointer(p))
	return sl[:]
}

// DirEntryView mirrors read_root_dir's result: one FAT16 directory entry's
// queryable fields (the on-disk DirEntry itself is read separately by
// fatfs; this is the export shape for userspace).
type DirEntryView struct {
	Name        [8]byte
	Ext         [3]byte
	FirstCluster uint32
	FileSize    uint32
	Valid       uint32
}

// Bytes exposes the raw little-endian bytes of the record.
func (d *DirEntryView) Bytes() []byte {
	const sz = unsafe.Sizeof(*d)
	sl := (*[sz]byte)(unsafe.Pointer(d))
	return sl[:]
}
