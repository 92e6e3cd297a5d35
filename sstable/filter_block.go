package sstable

import (
	"github.com/zjs1224522500/leveldb/coding"
	"github.com/zjs1224522500/leveldb/sstable/filter"
)

// filterBaseLg determines the filter block's bucketing granularity: one
// filter is generated per 2^filterBaseLg (2 KiB) of data-block bytes,
// matching spec.md §4.4's base_lg=11 default.
const filterBaseLg = 11
const filterBase = 1 << filterBaseLg

// FilterBlockBuilder accumulates per-block key sets and, at Finish, emits
// one Bloom filter per 2 KiB bucket of data-block bytes plus an offset
// array trailer, per spec.md §4.4. The call sequence must be
// (StartBlock AddKey*)* Finish, matching filter_block.h's contract.
type FilterBlockBuilder struct {
	policy filter.Policy

	keys       [][]byte
	result     []byte
	filterOffsets []uint32
}

// NewFilterBlockBuilder returns a builder using policy to turn each
// bucket's keys into a filter.
func NewFilterBlockBuilder(policy filter.Policy) *FilterBlockBuilder {
	return &FilterBlockBuilder{policy: policy}
}

// StartBlock is called with the offset (within the SST file) of the data
// block about to be written; it generates filters for every 2 KiB bucket
// boundary crossed since the last call.
func (b *FilterBlockBuilder) StartBlock(blockOffset uint64) {
	filterIndex := blockOffset / filterBase
	for uint64(len(b.filterOffsets)) < filterIndex {
		b.generateFilter()
	}
}

// AddKey registers key as a member of the filter bucket currently being
// accumulated.
func (b *FilterBlockBuilder) AddKey(key []byte) {
	b.keys = append(b.keys, append([]byte(nil), key...))
}

// Finish closes out the last (possibly partial) bucket and returns the
// complete filter block: concatenated filters, an offset array pointing
// at each one, the offset array's own offset, and base_lg — per
// spec.md §4.4's trailer layout.
func (b *FilterBlockBuilder) Finish() []byte {
	if len(b.keys) > 0 {
		b.generateFilter()
	}

	arrayOffset := uint32(len(b.result))
	out := append([]byte(nil), b.result...)
	for _, offset := range b.filterOffsets {
		out = coding.PutFixed32(out, offset)
	}
	out = coding.PutFixed32(out, arrayOffset)
	out = append(out, byte(filterBaseLg))
	return out
}

func (b *FilterBlockBuilder) generateFilter() {
	b.filterOffsets = append(b.filterOffsets, uint32(len(b.result)))
	if len(b.keys) == 0 {
		return
	}
	b.result = append(b.result, b.policy.CreateFilter(b.keys)...)
	b.keys = b.keys[:0]
}

// FilterBlockReader wraps a decoded filter block, answering
// bucket-scoped membership queries by blockOffset.
type FilterBlockReader struct {
	policy  filter.Policy
	data    []byte
	offsets []byte // the offset-array region of data
	num     uint32
	baseLg  int
}

// NewFilterBlockReader parses a filter block produced by
// FilterBlockBuilder.Finish.
func NewFilterBlockReader(policy filter.Policy, contents []byte) *FilterBlockReader {
	if len(contents) < 5 {
		return &FilterBlockReader{policy: policy}
	}
	baseLg := int(contents[len(contents)-1])
	arrayOffset := coding.Fixed32(contents[len(contents)-5:])
	if uint64(arrayOffset) > uint64(len(contents)-5) {
		return &FilterBlockReader{policy: policy}
	}
	num := (uint32(len(contents)-5) - arrayOffset) / 4
	return &FilterBlockReader{
		policy: policy,
		data:   contents[:arrayOffset],
		// offsets includes the trailing array_offset word itself: the
		// last filter's limit is read at offsets[(num-1)*4+4], which
		// lands exactly on that word, per spec.md §4.4.
		offsets: contents[arrayOffset : len(contents)-1],
		num:     num,
		baseLg:  baseLg,
	}
}

// KeyMayMatch reports whether key could be present in the data block
// starting at blockOffset. An out-of-range bucket index (a reader
// constructed from a truncated/corrupt block) fails open, returning true
// rather than risk a false negative.
func (r *FilterBlockReader) KeyMayMatch(blockOffset uint64, key []byte) bool {
	if r.policy == nil {
		return true
	}
	index := blockOffset >> uint(r.baseLg)
	if index >= uint64(r.num) {
		return true
	}
	start := coding.Fixed32(r.offsets[index*4:])
	limit := coding.Fixed32(r.offsets[index*4+4:])
	if start > limit || uint64(limit) > uint64(len(r.data)) {
		return true
	}
	return r.policy.KeyMayMatch(key, r.data[start:limit])
}
