// Package filetable implements the global open-file table and the
// per-process fd table that sits on top of it, tying together fatfs's
// inode cache and proc's fd-table copying on fork/exec/exit.
//
// Every open file is a read-only FAT16 file; nothing pluggable like a
// pipe or socket sits behind an fd here, so a descriptor is just an
// index into the global table plus the open mode it was requested
// with. FileEntry.RefCount is shared across fork so a child's fd
// table and its parent's can point at the same entry without
// duplicating it.
package filetable

import (
	"polaris/internal/defs"
	"polaris/internal/limits"
)

// Open-mode bits an fd can carry. The filesystem is read-only overall,
// but open_file still records the mode a caller asked for so a future
// write path has somewhere to plug in.
const (
	ModeRead = 0x1
)

// MaxOpenFiles is the fixed size of a single process's fd table.
const MaxOpenFiles = 16

// FileEntry is one slot of the global open-file table: a reference to
// an inode plus the entry's own reference count (the number of fd-table
// slots, across all processes, pointing at this entry). InodeIdx < 0
// means the slot is free.
type FileEntry struct {
	InodeIdx int
	RefCount int
	Mode     int
}

func (fe *FileEntry) free() bool {
	return fe.InodeIdx < 0
}

// Inodes is the subset of fatfs's InodeCache that filetable needs:
// GetInodeEntry and InodePut. Declared locally so filetable does not
// import fatfs's concrete type, depending on a narrow interface
// across the package boundary instead of a concrete struct.
type Inodes interface {
	GetInodeEntry(dirIndex int) (int, defs.Err_t)
	InodePut(dirIndex int)
}

// GlobalTable is the system-wide open-file table, sized at boot.
type GlobalTable struct {
	entries []FileEntry
	free    *limits.Counter
}

// NewGlobalTable returns a table with the given number of free slots.
func NewGlobalTable(size int) *GlobalTable {
	t := &GlobalTable{entries: make([]FileEntry, size), free: limits.NewCounter(size)}
	for i := range t.entries {
		t.entries[i].InodeIdx = -1
	}
	return t
}

// Entry returns a copy of the global table's slot k, for syscall
// handlers that need to look up the inode an open fd refers to
// (get_file_size, read_file) without reaching into filetable's
// internals.
func (g *GlobalTable) Entry(k int) FileEntry {
	if k < 0 || k >= len(g.entries) {
		return FileEntry{InodeIdx: -1}
	}
	return g.entries[k]
}

// allocSlot claims a unit from the table's free counter and finds the
// first free FileEntry slot, or returns -1 if the table is full.
func (g *GlobalTable) allocSlot() int {
	if !g.free.Take() {
		return -1
	}
	for i := range g.entries {
		if g.entries[i].free() {
			return i
		}
	}
	g.free.Give() // should be unreachable: the counter tracks len(entries)
	return -1
}

// FdTable is one process's fixed-size table of open fds. A negative
// entry means the fd slot is free; otherwise it is an index into the
// owning GlobalTable.
type FdTable struct {
	slots [MaxOpenFiles]int
}

// NewFdTable returns an fd table with every slot free.
func NewFdTable() *FdTable {
	ft := &FdTable{}
	for i := range ft.slots {
		ft.slots[i] = -1
	}
	return ft
}

func (ft *FdTable) allocFd() defs.Fd_t {
	for i, s := range ft.slots {
		if s < 0 {
			return defs.Fd_t(i)
		}
	}
	return -1
}

// Slot returns the global-table index an fd refers to, or -1 if fd is
// out of range or unused.
func (ft *FdTable) Slot(fd defs.Fd_t) int {
	if fd < 0 || int(fd) >= len(ft.slots) {
		return -1
	}
	return ft.slots[fd]
}

// Each calls f once per occupied fd slot, for fork's cloning walk and
// exit's teardown walk.
func (ft *FdTable) Each(f func(fd defs.Fd_t, globalIdx int)) {
	for i, s := range ft.slots {
		if s >= 0 {
			f(defs.Fd_t(i), s)
		}
	}
}

// OpenFile implements open_file(process, path): resolve path to a
// directory index, obtain an inode reference, claim a global
// file-entry slot and an fd slot, and wire them together. It returns
// -1 on any failure (fd exhaustion, file-table exhaustion, or the path
// not resolving).
func OpenFile(ft *FdTable, g *GlobalTable, inodes Inodes, resolve func(path string) (int, defs.Err_t), path string, mode int) defs.Fd_t {
	fd := ft.allocFd()
	if fd < 0 {
		return -1
	}
	k := g.allocSlot()
	if k < 0 {
		return -1
	}
	dirIndex, errno := resolve(path)
	if errno != 0 {
		g.free.Give()
		return -1
	}
	idx, errno := inodes.GetInodeEntry(dirIndex)
	if errno != 0 {
		g.free.Give()
		return -1
	}
	g.entries[k] = FileEntry{InodeIdx: idx, RefCount: 1, Mode: mode}
	ft.slots[fd] = k
	return fd
}

// CloseFile implements close_file(process, fd): releases the inode via
// InodePut, decrements the file-entry's ref count, frees the fd slot,
// and frees the global slot once the ref count reaches zero. fd < 0
// is a silent no-op.
func CloseFile(ft *FdTable, g *GlobalTable, inodes Inodes, fd defs.Fd_t) {
	if fd < 0 {
		return
	}
	k := ft.Slot(fd)
	if k < 0 {
		return
	}
	fe := &g.entries[k]
	inodes.InodePut(fe.InodeIdx)
	fe.RefCount--
	if fe.RefCount <= 0 {
		fe.InodeIdx = -1
		fe.RefCount = 0
		g.free.Give()
	}
	ft.slots[fd] = -1
}

// ShareSlot wires childFd in a child's (already otherwise-empty) fd
// slot to point at the same global-table entry as an inherited parent
// fd, bumping both FileEntry.RefCount and the underlying inode's
// ref_count by one. fork calls this once per live slot when cloning a
// parent's fd table.
func ShareSlot(child *FdTable, g *GlobalTable, inodes Inodes, fd defs.Fd_t, globalIdx int) {
	fe := &g.entries[globalIdx]
	fe.RefCount++
	_, _ = inodes.GetInodeEntry(fe.InodeIdx) // already-valid inode, cannot fail
	child.slots[fd] = globalIdx
}
