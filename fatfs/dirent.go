package fatfs

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"polaris/internal/ustr"
)

var upperCaser = cases.Upper(language.Und)

// Directory-entry attribute bits, per the FAT on-disk format.
const (
	attrReadOnly = 0x01
	attrHidden   = 0x02
	attrSystem   = 0x04
	attrVolumeID = 0x08
	attrLFN      = attrReadOnly | attrHidden | attrSystem | attrVolumeID
	attrInvalid  = attrLFN // the sentinel this reader skips, per the spec
)

const direntSize = 32

// DirEntry mirrors one 32-byte FAT16 directory entry.
type DirEntry struct {
	Name         [8]byte
	Ext          [3]byte
	Attr         uint8
	FirstCluster uint16
	FileSize     uint32
}

// parseDirEntry decodes one 32-byte slot from the root directory region.
func parseDirEntry(raw []byte) DirEntry {
	var d DirEntry
	copy(d.Name[:], raw[0:8])
	copy(d.Ext[:], raw[8:11])
	d.Attr = raw[11]
	d.FirstCluster = le16(raw[26:])
	d.FileSize = le32(raw[28:])
	return d
}

// free reports whether this slot holds no live entry: either never
// written (0x00) or holding a deleted file (0xE5).
func (d DirEntry) free() bool {
	return d.Name[0] == 0x00 || d.Name[0] == 0xE5
}

// invalid reports whether this slot is a long-file-name fragment (all
// four of the read-only, hidden, system and volume-label attribute bits
// set), which this reader's flat 8.3 namespace does not understand;
// search_file skips it the same as a free slot. A plain volume-label
// entry (only the volume-label bit set) is not reported as invalid.
func (d DirEntry) invalid() bool {
	return d.Attr&attrInvalid == attrInvalid
}

// splitPath rejects any path containing a directory separator (only
// bare 8.3 names in the root directory are valid) and splits the
// remainder into an 8-byte space-padded name and 3-byte space-padded
// extension, matching the on-disk DirEntry.Name/Ext layout.
func splitPath(path string) (name [8]byte, ext [3]byte, ok bool) {
	if ustr.Ustr(path).HasSlash() {
		return name, ext, false
	}
	for i := range name {
		name[i] = ' '
	}
	for i := range ext {
		ext[i] = ' '
	}
	base := path
	dot := -1
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			dot = i
		}
	}
	if dot >= 0 {
		base = path[:dot]
		e := path[dot+1:]
		if len(e) > len(ext) {
			return name, ext, false
		}
		copy(ext[:], upperCaser.String(e))
	}
	if len(base) == 0 || len(base) > len(name) {
		return name, ext, false
	}
	copy(name[:], upperCaser.String(base))
	return name, ext, true
}

// searchFile scans the root directory's 32-byte slots linearly for one
// matching name/ext, skipping free and invalid slots, and returns the
// matching entry and its slot index. ok is false if no match was found,
// mirroring the spec's invalid-index sentinel on a miss.
func searchFile(root []byte, name [8]byte, ext [3]byte) (DirEntry, int, bool) {
	n := len(root) / direntSize
	for i := 0; i < n; i++ {
		raw := root[i*direntSize : (i+1)*direntSize]
		d := parseDirEntry(raw)
		if d.free() || d.invalid() {
			continue
		}
		if d.Name == name && d.Ext == ext {
			return d, i, true
		}
	}
	return DirEntry{}, -1, false
}
