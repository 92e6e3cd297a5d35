package sstable

import (
	"encoding/binary"
	"errors"

	"github.com/zjs1224522500/leveldb/coding"
	"github.com/zjs1224522500/leveldb/dbformat"
)

// Block is a decoded, immutable data or index block: the raw contents
// plus the parsed restart-point offsets trailing them, per spec.md §4.3.
type Block struct {
	data          []byte
	restartOffset uint32 // offset of the restart array within data
	numRestarts   uint32
}

// NewBlock parses the restart trailer out of contents. contents must be
// the full block payload as returned by ReadBlock (trailer included, no
// compression byte/checksum — those are stripped already).
func NewBlock(contents []byte) (*Block, error) {
	if len(contents) < 4 {
		return nil, errors.New("sstable: block too small")
	}
	numRestarts := binary.LittleEndian.Uint32(contents[len(contents)-4:])
	maxRestarts := (uint32(len(contents)) - 4) / 4
	if numRestarts > maxRestarts {
		return nil, errors.New("sstable: block has invalid restart count")
	}
	restartOffset := uint32(len(contents)) - 4 - numRestarts*4
	return &Block{data: contents, restartOffset: restartOffset, numRestarts: numRestarts}, nil
}

func (b *Block) restartPoint(i uint32) uint32 {
	return coding.Fixed32(b.data[b.restartOffset+i*4:])
}

// NewIterator returns an Iterator over the block's entries in key order,
// using cmp to compare keys during Seek's binary search over restart
// points.
func (b *Block) NewIterator(cmp dbformat.Comparator) Iterator {
	if b.numRestarts == 0 {
		return &errIterator{err: errors.New("sstable: empty block")}
	}
	return &blockIterator{block: b, cmp: cmp}
}

// blockIterator walks one Block's entries. next is always the offset of
// the entry that a call to advance() will parse; current is the start
// offset of the entry currently parsed into key/value (valid when valid
// is true); restartIndex is the restart point whose region current
// falls in, kept in step during forward scanning so Prev can always
// find the restart point preceding the current entry without having to
// rescan the whole restart array. valid reports whether key/value
// currently hold a successfully parsed entry.
type blockIterator struct {
	block        *Block
	cmp          dbformat.Comparator
	next         uint32
	current      uint32
	restartIndex uint32
	valid        bool
	key          []byte
	value        []byte
	err          error
}

func (it *blockIterator) Valid() bool   { return it.valid }
func (it *blockIterator) Key() []byte   { return it.key }
func (it *blockIterator) Value() []byte { return it.value }
func (it *blockIterator) Err() error    { return it.err }
func (it *blockIterator) Close() error  { return nil }

func (it *blockIterator) invalidate(err error) {
	it.valid = false
	it.next = it.block.restartOffset
	it.current = it.block.restartOffset
	it.restartIndex = it.block.numRestarts
	it.key = nil
	it.value = nil
	if err != nil {
		it.err = err
	}
}

// advance parses the entry at it.next, the shared prefix of which is
// taken against the previously-parsed key still held in it.key — correct
// because entries are only ever parsed in forward order from a restart
// point, and a restart point's own entry always carries shared == 0.
func (it *blockIterator) advance() {
	if it.next >= it.block.restartOffset {
		it.invalidate(nil)
		return
	}
	start := it.next
	data := it.block.data
	p := data[start:it.block.restartOffset]

	shared, n1, ok := coding.GetVarint32(p)
	if !ok {
		it.invalidate(errors.New("sstable: corrupt block entry"))
		return
	}
	p = p[n1:]
	nonShared, n2, ok := coding.GetVarint32(p)
	if !ok {
		it.invalidate(errors.New("sstable: corrupt block entry"))
		return
	}
	p = p[n2:]
	valueLen, n3, ok := coding.GetVarint32(p)
	if !ok {
		it.invalidate(errors.New("sstable: corrupt block entry"))
		return
	}
	p = p[n3:]
	if uint32(len(p)) < nonShared+valueLen || uint32(len(it.key)) < shared {
		it.invalidate(errors.New("sstable: corrupt block entry"))
		return
	}

	key := make([]byte, shared, shared+nonShared)
	copy(key, it.key[:shared])
	key = append(key, p[:nonShared]...)
	it.key = key
	it.value = p[nonShared : nonShared+valueLen]
	it.valid = true
	it.current = start
	it.next = start + uint32(n1+n2+n3) + nonShared + valueLen

	for it.restartIndex+1 < it.block.numRestarts && it.block.restartPoint(it.restartIndex+1) <= it.current {
		it.restartIndex++
	}
}

func (it *blockIterator) seekToRestartPoint(index uint32) {
	it.key = it.key[:0]
	it.value = nil
	it.valid = false
	it.restartIndex = index
	it.next = it.block.restartPoint(index)
}

func (it *blockIterator) SeekToFirst() {
	it.seekToRestartPoint(0)
	it.advance()
}

func (it *blockIterator) Next() {
	it.advance()
}

// SeekToLast positions at the block's final entry by scanning forward
// from the last restart point, since no backward-parseable encoding
// exists for an individual entry's shared-prefix delta.
func (it *blockIterator) SeekToLast() {
	it.seekToRestartPoint(it.block.numRestarts - 1)
	for {
		it.advance()
		if !it.valid || it.next >= it.block.restartOffset {
			break
		}
	}
}

// Prev repositions at the entry immediately before the current one.
// Since entries are only ever decoded in forward order from a restart
// point (each carrying its key as a shared-prefix delta against the
// one before it), Prev first walks restartIndex back to the restart
// point preceding the current entry, then rescans forward from there
// up to (but not including) the current entry's start offset.
func (it *blockIterator) Prev() {
	if !it.valid {
		return
	}
	original := it.current
	for it.block.restartPoint(it.restartIndex) >= original {
		if it.restartIndex == 0 {
			it.invalidate(nil)
			return
		}
		it.restartIndex--
	}
	it.seekToRestartPoint(it.restartIndex)
	for {
		it.advance()
		if !it.valid || it.next >= original {
			break
		}
	}
}

// Seek positions the iterator at the first entry whose key is >= target,
// by binary-searching the restart points for the last one whose key is <
// target (restart point 0 if none is), then scanning forward from there.
func (it *blockIterator) Seek(target []byte) {
	left, right := uint32(0), it.block.numRestarts-1
	for left < right {
		mid := (left + right + 1) / 2
		it.seekToRestartPoint(mid)
		it.advance()
		if !it.valid {
			it.invalidate(errors.New("sstable: corrupt block entry"))
			return
		}
		if it.cmp.Compare(it.key, target) < 0 {
			left = mid
		} else {
			right = mid - 1
		}
	}

	it.seekToRestartPoint(left)
	for {
		it.advance()
		if !it.valid {
			return
		}
		if it.cmp.Compare(it.key, target) >= 0 {
			return
		}
	}
}
