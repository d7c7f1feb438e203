// Package hashtable provides the pid -> process-table-slot index used
// by kill(pid>0) and wait(pid>0) to avoid an O(n) scan of the process
// table on every targeted signal or reap. It is a plain chained-bucket
// table with FNV hashing; this kernel is single-core and every table
// mutation already happens with IRQs masked, so there is no need for
// per-bucket locking.
package hashtable

import "hash/fnv"

type entry struct {
	key   int
	value int
	next  *entry
}

// Table maps int keys (pids) to int values (process-table slots).
type Table struct {
	buckets []*entry
}

// New returns an empty table with the given bucket count.
func New(nbuckets int) *Table {
	if nbuckets <= 0 {
		panic("hashtable.New: nbuckets must be positive")
	}
	return &Table{buckets: make([]*entry, nbuckets)}
}

func (t *Table) bucket(key int) int {
	h := fnv.New32a()
	h.Write([]byte{
		byte(key), byte(key >> 8), byte(key >> 16), byte(key >> 24),
	})
	return int(h.Sum32()) % len(t.buckets)
}

// Get returns the slot stored for key, if any.
func (t *Table) Get(key int) (int, bool) {
	for e := t.buckets[t.bucket(key)]; e != nil; e = e.next {
		if e.key == key {
			return e.value, true
		}
	}
	return 0, false
}

// Set inserts or overwrites the slot stored for key.
func (t *Table) Set(key, value int) {
	b := t.bucket(key)
	for e := t.buckets[b]; e != nil; e = e.next {
		if e.key == key {
			e.value = value
			return
		}
	}
	t.buckets[b] = &entry{key: key, value: value, next: t.buckets[b]}
}

// Del removes key from the table. It is a no-op if key is absent.
func (t *Table) Del(key int) {
	b := t.bucket(key)
	var prev *entry
	for e := t.buckets[b]; e != nil; e = e.next {
		if e.key == key {
			if prev == nil {
				t.buckets[b] = e.next
			} else {
				prev.next = e.next
			}
			return
		}
		prev = e
	}
}
