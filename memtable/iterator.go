package memtable

import "bytes"

// Iterator walks a SkipList's entries in ascending internal-key order so
// a memtable can be flushed straight through a sstable.TableBuilder
// without an intermediate copy. It has the forward-only subset of
// sstable.Iterator's methods (no SeekToLast or Prev), so it does not
// itself implement sstable.Iterator.
type Iterator struct {
	elems []*Element
	pos   int
}

// NewIterator snapshots the skip list's current contents for iteration.
// The snapshot is shallow (entries are not copied, only the slice of
// pointers to them), which is safe because Elements are never mutated
// after Set inserts them.
func NewIterator(s *SkipList) *Iterator {
	return &Iterator{elems: s.All(), pos: -1}
}

func (it *Iterator) Valid() bool { return it.pos >= 0 && it.pos < len(it.elems) }

func (it *Iterator) SeekToFirst() { it.pos = 0 }

func (it *Iterator) Seek(target []byte) {
	// Linear scan comparing raw key bytes: flush only ever calls
	// SeekToFirst, so this only rounds out the forward-iteration methods.
	for i, e := range it.elems {
		if bytes.Compare(e.Key, target) >= 0 {
			it.pos = i
			return
		}
	}
	it.pos = len(it.elems)
}

func (it *Iterator) Next() { it.pos++ }

func (it *Iterator) Key() []byte   { return it.elems[it.pos].Key }
func (it *Iterator) Value() []byte { return it.elems[it.pos].Value }
func (it *Iterator) Err() error    { return nil }
func (it *Iterator) Close() error  { return nil }
