package sstable

import (
	"github.com/zjs1224522500/leveldb/coding"
)

// blockRestartInterval is the number of entries between restart points in
// a data or index block, matching spec.md §4.3's default.
const blockRestartInterval = 16

// BlockBuilder accumulates key/value entries into one prefix-compressed
// block, tracking restart points so a reader can binary-search the block
// without decompressing every entry ahead of the one it wants.
type BlockBuilder struct {
	buf            []byte
	restarts       []uint32
	counter        int
	lastKey        []byte
	finished       bool
	restartInterval int
}

// NewBlockBuilder returns a builder that restarts the shared-prefix chain
// every restartInterval entries. A restartInterval of 0 falls back to
// blockRestartInterval.
func NewBlockBuilder(restartInterval int) *BlockBuilder {
	if restartInterval <= 0 {
		restartInterval = blockRestartInterval
	}
	return &BlockBuilder{restarts: []uint32{0}, restartInterval: restartInterval}
}

// Reset clears the builder for reuse.
func (b *BlockBuilder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = b.restarts[:0]
	b.restarts = append(b.restarts, 0)
	b.counter = 0
	b.lastKey = b.lastKey[:0]
	b.finished = false
}

// Empty reports whether any entry has been added since the last Reset.
func (b *BlockBuilder) Empty() bool { return len(b.buf) == 0 }

// CurrentSizeEstimate returns the size the block would have if Finish
// were called right now.
func (b *BlockBuilder) CurrentSizeEstimate() int {
	return len(b.buf) + len(b.restarts)*4 + 4
}

// Add appends key/value to the block being built. Keys must be added in
// strictly increasing order (per the block's comparator); Add does not
// itself enforce this, matching leveldb's BlockBuilder, which instead
// asserts it at a higher layer (the debug-build assertion in
// block_builder.cc) that this port intentionally leaves unchecked.
func (b *BlockBuilder) Add(key, value []byte) {
	var shared int
	if b.counter < b.restartInterval {
		shared = coding.SharedPrefixLen(b.lastKey, key)
	} else {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
		b.counter = 0
	}
	nonShared := len(key) - shared

	b.buf = coding.PutVarint32(b.buf, uint32(shared))
	b.buf = coding.PutVarint32(b.buf, uint32(nonShared))
	b.buf = coding.PutVarint32(b.buf, uint32(len(value)))
	b.buf = append(b.buf, key[shared:]...)
	b.buf = append(b.buf, value...)

	b.lastKey = append(b.lastKey[:0], key...)
	b.counter++
}

// Finish returns the completed block contents: the entries, the restart
// point offset array, and a trailing count of restart points.
func (b *BlockBuilder) Finish() []byte {
	out := append([]byte(nil), b.buf...)
	for _, r := range b.restarts {
		out = coding.PutFixed32(out, r)
	}
	out = coding.PutFixed32(out, uint32(len(b.restarts)))
	b.finished = true
	return out
}
