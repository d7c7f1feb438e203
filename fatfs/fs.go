package fatfs

import (
	"polaris/internal/defs"
	"polaris/internal/util"
)

// mbrPartitionOffset is the byte offset of the first partition-table
// entry within the MBR sector; mbrLBAOffset is the offset of that
// entry's starting-LBA field within the 16-byte entry.
const (
	mbrPartitionOffset = 0x1BE
	mbrLBAOffset       = 8
)

// FileSystem is the read-only FAT16 reader: it locates the BPB via the
// MBR, loads one FAT copy and the root directory into memory, and
// resolves 8.3 paths to cluster chains.
type FileSystem struct {
	disk Disk
	bpb  BPB

	fatStartLBA  int
	rootStartLBA int
	dataStartLBA int
	rootSectors  int

	fatTable fat
	root     []byte

	Inodes *InodeCache
}

// Mount reads the MBR, locates and validates the BPB, and loads the
// first FAT copy and the whole root directory into memory: both are
// small and read-only, so a lazy block-cache-with-eviction scheme
// would add complexity without benefit here.
func Mount(d Disk) (*FileSystem, error) {
	mbr := make([]byte, BytesPerSector)
	if err := d.ReadSector(0, mbr); err != nil {
		return nil, err
	}
	partBase := le32(mbr[mbrPartitionOffset+mbrLBAOffset:])

	bpbSector := make([]byte, BytesPerSector)
	if err := d.ReadSector(int(partBase), bpbSector); err != nil {
		return nil, err
	}
	bpb := ParseBPB(bpbSector)

	fs := &FileSystem{disk: d, bpb: bpb}
	fs.fatStartLBA = int(partBase) + int(bpb.ReservedSectorCount)
	fatSectors := int(bpb.FATCount) * int(bpb.SectorsPerFAT)
	fs.rootStartLBA = fs.fatStartLBA + fatSectors
	fs.rootSectors = util.Roundup(int(bpb.RootEntryCount)*direntSize, BytesPerSector) / BytesPerSector
	fs.dataStartLBA = fs.rootStartLBA + fs.rootSectors

	fatRaw, err := fs.readSectors(fs.fatStartLBA, int(bpb.SectorsPerFAT))
	if err != nil {
		return nil, err
	}
	fs.fatTable = parseFAT(fatRaw)

	root, err := fs.readSectors(fs.rootStartLBA, fs.rootSectors)
	if err != nil {
		return nil, err
	}
	fs.root = root
	fs.Inodes = NewInodeCache(fs.root)

	return fs, nil
}

func (fs *FileSystem) readSectors(startLBA, n int) ([]byte, error) {
	buf := make([]byte, n*BytesPerSector)
	sec := make([]byte, BytesPerSector)
	for i := 0; i < n; i++ {
		if err := fs.disk.ReadSector(startLBA+i, sec); err != nil {
			return nil, err
		}
		copy(buf[i*BytesPerSector:], sec)
	}
	return buf, nil
}

// clusterLBA returns the starting sector of the given data cluster.
// The first two FAT entries (0 and 1) are reserved, so cluster 2 is
// the first real data cluster (standard FAT16 convention, implied by
// "the first two FAT entries are reserved").
func (fs *FileSystem) clusterLBA(cluster uint16) int {
	spc := int(fs.bpb.SectorsPerCluster)
	return fs.dataStartLBA + (int(cluster)-2)*spc
}

// Resolve implements split_path + search_file: it validates path as a
// bare 8.3 name and looks it up in the root directory, returning the
// directory-entry index search_file would have returned.
func (fs *FileSystem) Resolve(path string) (int, defs.Err_t) {
	name, ext, ok := splitPath(path)
	if !ok {
		return -1, defs.EINVAL
	}
	_, idx, found := searchFile(fs.root, name, ext)
	if !found {
		return -1, defs.ENOENT
	}
	return idx, 0
}

// Stat resolves path and returns the cluster chain head and byte size
// a caller needs to read the whole file, without going through the
// inode cache: used by exec, which loads a program's bytes directly
// rather than holding it open via an fd.
func (fs *FileSystem) Stat(path string) (firstCluster uint16, fileSize uint32, errno defs.Err_t) {
	idx, errno := fs.Resolve(path)
	if errno != 0 {
		return 0, 0, errno
	}
	d, ok := fs.DirEntryAt(idx)
	if !ok {
		return 0, 0, defs.ENOENT
	}
	return d.FirstCluster, d.FileSize, 0
}

// ReadFile implements read_file(first_cluster, buffer, size): it walks
// the cluster chain starting at firstCluster, copying one cluster at a
// time into buf until either len(buf) bytes have been copied (the
// final cluster may be copied only partially) or the chain ends. It
// returns the number of bytes actually copied.
func (fs *FileSystem) ReadFile(firstCluster uint16, buf []byte) (int, defs.Err_t) {
	clusterBytes := int(fs.bpb.SectorsPerCluster) * BytesPerSector
	chain := fs.fatTable.chain(firstCluster)
	copied := 0
	for _, cl := range chain {
		if copied >= len(buf) {
			break
		}
		data, err := fs.readSectors(fs.clusterLBA(cl), int(fs.bpb.SectorsPerCluster))
		if err != nil {
			return copied, defs.EFAULT
		}
		n := util.Min(clusterBytes, len(buf)-copied)
		copy(buf[copied:copied+n], data[:n])
		copied += n
	}
	return copied, 0
}

// DirEntryAt returns the raw on-disk directory entry at index i, for
// read_root_dir's export path.
func (fs *FileSystem) DirEntryAt(i int) (DirEntry, bool) {
	n := len(fs.root) / direntSize
	if i < 0 || i >= n {
		return DirEntry{}, false
	}
	d := parseDirEntry(fs.root[i*direntSize : (i+1)*direntSize])
	return d, !d.free() && !d.invalid()
}

// NumRootEntries reports the capacity of the root directory region.
func (fs *FileSystem) NumRootEntries() int {
	return len(fs.root) / direntSize
}
