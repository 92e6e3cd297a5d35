package memtable

import (
	"math/rand"
	"time"
	"unsafe"

	"github.com/zjs1224522500/leveldb/dbformat"
)

// SkipList orders entries by internal key under an injected comparator,
// the way a real memtable does: every Set inserts a brand-new node rather
// than overwriting one with an equal user key, since two writes to the
// same user key carry different sequence numbers and are therefore
// different internal keys. Older versions are only ever removed by
// compaction, never by the memtable itself.
type SkipList struct {
	maxLevel int
	p        float64
	level    int
	rand     *rand.Rand
	size     int
	cmp      dbformat.Comparator
	head     *Element
}

// Element is one node: an internal key and its value (or, for a
// deletion marker, an empty value — dbformat.ParseInternalKey's
// ValueType is what distinguishes the two, not a separate flag).
type Element struct {
	Key   []byte
	Value []byte
	next  []*Element
}

// New returns an empty skip list ordered by cmp (normally an
// *dbformat.InternalKeyComparator), with up to maxLevel levels and a
// level-promotion probability of p.
func New(maxLevel int, p float64, cmp dbformat.Comparator) *SkipList {
	return &SkipList{
		maxLevel: maxLevel,
		p:        p,
		level:    1,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cmp:      cmp,
		head:     &Element{next: make([]*Element, maxLevel)},
	}
}

func (s *SkipList) Size() int { return s.size }

// Set inserts a new node for key/value. key is expected to already be a
// full internal key (the WAL/memtable boundary appends the sequence/type
// tag before ever reaching here); keys do not need to arrive in sorted
// order, since every insertion walks the list to find its place.
func (s *SkipList) Set(key, value []byte) {
	curr := s.head
	update := make([]*Element, s.maxLevel)

	for i := s.maxLevel - 1; i >= 0; i-- {
		for curr.next[i] != nil && s.cmp.Compare(curr.next[i].Key, key) < 0 {
			curr = curr.next[i]
		}
		update[i] = curr
	}

	level := s.randomLevel()
	if level > s.level {
		for i := s.level; i < level; i++ {
			update[i] = s.head
		}
		s.level = level
	}

	e := &Element{
		Key:   append([]byte(nil), key...),
		Value: append([]byte(nil), value...),
		next:  make([]*Element, level),
	}
	for i := 0; i < level; i++ {
		e.next[i] = update[i].next[i]
		update[i].next[i] = e
	}

	s.size += len(e.Key) + len(e.Value) +
		int(unsafe.Sizeof(e)) + len(e.next)*int(unsafe.Sizeof((*Element)(nil)))
}

// Seek positions at the first node whose key is >= target, returning nil
// if none exists.
func (s *SkipList) Seek(target []byte) *Element {
	curr := s.head
	for i := s.maxLevel - 1; i >= 0; i-- {
		for curr.next[i] != nil && s.cmp.Compare(curr.next[i].Key, target) < 0 {
			curr = curr.next[i]
		}
	}
	return curr.next[0]
}

// All returns every entry in ascending internal-key order.
func (s *SkipList) All() []*Element {
	var all []*Element
	for curr := s.head.next[0]; curr != nil; curr = curr.next[0] {
		all = append(all, curr)
	}
	return all
}

func (s *SkipList) randomLevel() int {
	level := 1
	for s.rand.Float64() < s.p && level < s.maxLevel {
		level++
	}
	return level
}
