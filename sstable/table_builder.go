package sstable

import (
	"github.com/klauspost/compress/s2"
	"github.com/zjs1224522500/leveldb/coding"
	"github.com/zjs1224522500/leveldb/dbformat"
	"github.com/zjs1224522500/leveldb/env"
	"github.com/zjs1224522500/leveldb/sstable/filter"
	"github.com/zjs1224522500/leveldb/status"
)

// Options configures a TableBuilder/Table pair. Comparator defaults to
// dbformat.BytewiseComparator; FilterPolicy is optional (nil disables
// filter blocks entirely, matching leveldb's behavior with no policy
// configured). CreateIfMissing, ErrorIfExists, and ParanoidChecks are
// DB-open-time options, consulted by Engine.NewEngine rather than by
// anything in this package — they are still fields on Options, the way
// leveldb carries every recognized option on the same struct regardless
// of which layer actually reads it.
type Options struct {
	Comparator           dbformat.Comparator
	FilterPolicy         filter.Policy
	BlockSize            int
	BlockRestartInterval int
	Compression          CompressionType

	// VerifyChecksums gates ReadBlock's checksum check, per
	// ReadOptions::verify_checksums. Options is built by literal struct
	// construction throughout this repo (see SPEC_FULL.md's
	// Configuration section), so callers that want verification on set
	// this explicitly rather than relying on a default.
	VerifyChecksums bool
	// FillCache gates whether Table.blockReader populates the shared
	// cache on a miss, per ReadOptions::fill_cache.
	FillCache bool

	// CreateIfMissing and ErrorIfExists govern Engine.NewEngine's
	// handling of a not-yet-existing data directory.
	CreateIfMissing bool
	ErrorIfExists   bool
	// ParanoidChecks, when set, makes the memtable's WAL recovery treat
	// any detected corruption as fatal instead of skipping the bad
	// record and continuing the replay, per spec.md's recognized-options list.
	ParanoidChecks bool
}

func (o Options) comparator() dbformat.Comparator {
	if o.Comparator != nil {
		return o.Comparator
	}
	return dbformat.BytewiseComparator{}
}

// internalComparator wraps the user comparator for ordering the internal
// keys actually stored in data/index blocks (user key, then sequence
// number descending), the way leveldb's DBImpl always substitutes an
// InternalKeyComparator for the table/block layer even though Options
// itself is configured with a plain user comparator.
func (o Options) internalComparator() dbformat.Comparator {
	return dbformat.NewInternalKeyComparator(o.comparator())
}

func (o Options) blockSize() int {
	if o.BlockSize > 0 {
		return o.BlockSize
	}
	return 4 * 1024
}

// TableBuilder assembles data blocks, an optional filter block, a
// metaindex block, an index block, and a footer into a single SST file,
// per spec.md §4. Keys must be added in increasing order.
type TableBuilder struct {
	opts   Options
	file   env.WritableFile
	offset uint64

	dataBlock  *BlockBuilder
	indexBlock *BlockBuilder
	filter     *FilterBlockBuilder

	numEntries int
	lastKey    []byte

	pendingIndexEntry bool
	pendingHandle      BlockHandle

	closed bool
	err    status.Status
}

// NewTableBuilder returns a builder that will write to file as entries
// are added.
func NewTableBuilder(opts Options, file env.WritableFile) *TableBuilder {
	b := &TableBuilder{
		opts:       opts,
		file:       file,
		dataBlock:  NewBlockBuilder(opts.BlockRestartInterval),
		indexBlock: NewBlockBuilder(opts.BlockRestartInterval),
	}
	if opts.FilterPolicy != nil {
		b.filter = NewFilterBlockBuilder(opts.FilterPolicy)
		b.filter.StartBlock(0)
	}
	return b
}

// NumEntries returns the number of key/value pairs added so far.
func (b *TableBuilder) NumEntries() int { return b.numEntries }

// FileSize returns the number of bytes written to the underlying file so
// far (an estimate until Finish, since the last data block may still be
// buffered).
func (b *TableBuilder) FileSize() uint64 { return b.offset }

// Add appends a key/value pair. key must be strictly greater than every
// previously added key under the internal-key comparator; an out-of-order
// or repeated key sets an InvalidArgument status that Finish returns.
func (b *TableBuilder) Add(key, value []byte) {
	if !b.err.Ok() {
		return
	}
	if b.numEntries > 0 {
		if b.opts.internalComparator().Compare(key, b.lastKey) <= 0 {
			b.err = status.InvalidArgumentf("sstable: keys added out of order")
			return
		}
	}
	if b.pendingIndexEntry {
		b.indexBlock.Add(b.lastKey, encodeBlockHandle(b.pendingHandle))
		b.pendingIndexEntry = false
	}

	if b.filter != nil {
		// The filter holds user keys, so a lookup tagged with any
		// sequence number probes the same bits.
		b.filter.AddKey(dbformat.ExtractUserKey(key))
	}

	b.lastKey = append(b.lastKey[:0], key...)
	b.numEntries++
	b.dataBlock.Add(key, value)

	if b.dataBlock.CurrentSizeEstimate() >= b.opts.blockSize() {
		b.flush()
	}
}

// flush finishes the current data block, writes it (compressed, if
// enabled), and defers adding its index entry until the next key arrives
// (or Finish is called), per table_builder.cc's pending_index_entry
// pattern — except this port always uses the finished block's own last
// key as the separator, rather than leveldb's FindShortestSeparator
// optimization, which is skipped here as a deliberate simplification.
func (b *TableBuilder) flush() {
	if b.dataBlock.Empty() {
		return
	}
	if !b.err.Ok() {
		return
	}
	handle := b.writeBlock(b.dataBlock)
	if !b.err.Ok() {
		return
	}
	b.pendingHandle = handle
	b.pendingIndexEntry = true
	if b.filter != nil {
		b.filter.StartBlock(b.offset)
	}
}

func (b *TableBuilder) writeBlock(builder *BlockBuilder) BlockHandle {
	raw := builder.Finish()
	compression := b.opts.Compression
	payload := raw
	if compression == SnappyCompression {
		compressed := s2.Encode(nil, raw)
		if len(compressed) < len(raw)-len(raw)/8 {
			payload = compressed
		} else {
			compression = NoCompression
		}
	}
	handle := b.writeRawBlock(payload, compression)
	builder.Reset()
	return handle
}

func (b *TableBuilder) writeRawBlock(data []byte, compression CompressionType) BlockHandle {
	handle := BlockHandle{Offset: b.offset, Size: uint64(len(data))}
	if err := b.file.Append(data); err != nil {
		b.err = status.FromError(err)
		return handle
	}
	trailer := make([]byte, 0, blockTrailerSize)
	trailer = append(trailer, byte(compression))
	crc := coding.CRC32C(data)
	crc = coding.ExtendCRC32C(crc, trailer[:1])
	trailer = coding.PutFixed32(trailer, coding.Mask(crc))
	if err := b.file.Append(trailer); err != nil {
		b.err = status.FromError(err)
		return handle
	}
	b.offset += uint64(len(data) + blockTrailerSize)
	return handle
}

func encodeBlockHandle(h BlockHandle) []byte {
	return h.EncodeTo(nil)
}

// Finish flushes any buffered data, writes the filter, metaindex, and
// index blocks, and the footer. The builder must not be used afterward.
func (b *TableBuilder) Finish() status.Status {
	b.flush()
	if !b.err.Ok() {
		return b.err
	}
	b.closed = true

	var filterHandle BlockHandle
	haveFilter := b.filter != nil
	if haveFilter {
		filterContents := b.filter.Finish()
		filterHandle = b.writeRawBlock(filterContents, NoCompression)
		if !b.err.Ok() {
			return b.err
		}
	}

	metaBuilder := NewBlockBuilder(b.opts.BlockRestartInterval)
	if haveFilter {
		key := "filter." + b.opts.FilterPolicy.Name()
		metaBuilder.Add([]byte(key), encodeBlockHandle(filterHandle))
	}
	metaHandle := b.writeBlock(metaBuilder)
	if !b.err.Ok() {
		return b.err
	}

	if b.pendingIndexEntry {
		b.indexBlock.Add(b.lastKey, encodeBlockHandle(b.pendingHandle))
		b.pendingIndexEntry = false
	}
	indexHandle := b.writeBlock(b.indexBlock)
	if !b.err.Ok() {
		return b.err
	}

	footer := Footer{MetaindexHandle: metaHandle, IndexHandle: indexHandle}
	footerBytes := footer.EncodeTo(nil)
	if err := b.file.Append(footerBytes); err != nil {
		b.err = status.FromError(err)
		return b.err
	}
	b.offset += uint64(len(footerBytes))
	if err := b.file.Flush(); err != nil {
		b.err = status.FromError(err)
	}
	return b.err
}
