package fatfs

import (
	"polaris/internal/defs"
	"polaris/internal/stats"
)

// Inode is the in-core cache entry for one root-directory entry, keyed
// by directory-entry index. A RefCount of 0 means the slot is free.
type Inode struct {
	DirIndex     int
	FileSize     uint32
	FirstCluster uint16
	Name         [8]byte
	Ext          [3]byte
	RefCount     int
}

func (ino *Inode) free() bool {
	return ino.RefCount == 0
}

// InodeCache is the fixed-size in-core inode table, indexed directly by
// directory-entry index (inode identity is tied to dir_index, so no
// separate allocation scheme is needed: slot i always describes
// root-directory entry i, populated lazily on first reference).
type InodeCache struct {
	slots []Inode
	root  []byte // the raw root-directory region, for (re)population

	// Hits and Misses count GetInodeEntry calls that found the slot
	// already populated versus ones that had to parse it from root,
	// for cmd/kernel's diagnostic profile dump.
	Hits, Misses stats.Counter
}

// NewInodeCache builds a cache with one slot per root-directory entry.
func NewInodeCache(root []byte) *InodeCache {
	n := len(root) / direntSize
	c := &InodeCache{slots: make([]Inode, n), root: root}
	for i := range c.slots {
		c.slots[i].DirIndex = i
	}
	return c
}

// GetInodeEntry implements get_inode_entry: populates the slot from its
// directory entry if it was free, then unconditionally bumps RefCount
// and returns the index. Returns ENOENT if dirIndex is out of range or
// names a free/invalid directory slot.
func (c *InodeCache) GetInodeEntry(dirIndex int) (int, defs.Err_t) {
	if dirIndex < 0 || dirIndex >= len(c.slots) {
		return -1, defs.ENOENT
	}
	ino := &c.slots[dirIndex]
	if ino.free() {
		c.Misses.Inc()
		raw := c.root[dirIndex*direntSize : (dirIndex+1)*direntSize]
		d := parseDirEntry(raw)
		if d.free() || d.invalid() {
			return -1, defs.ENOENT
		}
		ino.Name = d.Name
		ino.Ext = d.Ext
		ino.FirstCluster = d.FirstCluster
		ino.FileSize = d.FileSize
	} else {
		c.Hits.Inc()
	}
	ino.RefCount++
	return dirIndex, 0
}

// InodePut implements inode_put: decrements RefCount, asserting it was
// positive .
func (c *InodeCache) InodePut(dirIndex int) {
	ino := &c.slots[dirIndex]
	if ino.RefCount <= 0 {
		panic("fatfs: inode_put on inode with ref_count == 0")
	}
	ino.RefCount--
}

// Lookup returns a copy of the slot's current contents, for callers
// (open_file, read_root_dir) that only need to read it.
func (c *InodeCache) Lookup(dirIndex int) Inode {
	return c.slots[dirIndex]
}

// NumEntries reports how many directory slots this cache tracks, for
// read_root_dir's iteration bound.
func (c *InodeCache) NumEntries() int {
	return len(c.slots)
}
