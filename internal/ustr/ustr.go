// Package ustr implements an immutable byte string used for paths and
// strings copied in from user memory, which arrive NUL-terminated and
// without Go's string-safety guarantees. There are no dotdot or
// absolute-path helpers: every path this kernel resolves is a bare
// name in a flat root directory, never "." or "..", never containing
// "/".
package ustr

// Ustr is an immutable byte string.
type Ustr []uint8

// Eq reports whether us and s contain the same bytes.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

// New returns an empty Ustr.
func New() Ustr { return Ustr{} }

// FromNulTerminated truncates buf at its first NUL byte, as used when
// copying a path or argv entry in from user memory.
func FromNulTerminated(buf []uint8) Ustr {
	for i, b := range buf {
		if b == 0 {
			return Ustr(buf[:i])
		}
	}
	return Ustr(buf)
}

// IndexByte returns the index of b in us, or -1 if not present.
func (us Ustr) IndexByte(b uint8) int {
	for i, v := range us {
		if v == b {
			return i
		}
	}
	return -1
}

// HasSlash reports whether the path contains a directory separator.
// open_file only accepts bare 8.3 names in the root directory, so
// splitPath rejects any path for which this is true.
func (us Ustr) HasSlash() bool {
	return us.IndexByte('/') >= 0
}

// String converts the Ustr to a Go string.
func (us Ustr) String() string {
	return string(us)
}
