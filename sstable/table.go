package sstable

import (
	"github.com/zjs1224522500/leveldb/dbformat"
	"github.com/zjs1224522500/leveldb/env"
	"github.com/zjs1224522500/leveldb/status"
)

// Table is an open, read-only handle on an SST file: its index block
// (kept resident) and, if a filter policy was configured and the file
// carries a matching filter block, a parsed FilterBlockReader.
type Table struct {
	opts   Options
	file   env.RandomAccessFile
	cache  *Cache  // optional, shared block cache
	cacheID uint64 // this table's namespace within cache

	index  *Block
	filter *FilterBlockReader
	footer Footer
}

// Open reads file's footer and index block and, opportunistically, its
// filter block, returning a Table ready to serve Get/NewIterator. size
// must be the file's total length.
func Open(opts Options, file env.RandomAccessFile, size int64) (*Table, status.Status) {
	if size < footerEncodedLength {
		return nil, status.Corruptionf("sstable: file is too short to be a table")
	}
	footerSpace, err := file.ReadAt(size-footerEncodedLength, footerEncodedLength, make([]byte, footerEncodedLength))
	if err != nil {
		return nil, status.FromError(err)
	}
	footer, st := DecodeFooter(footerSpace)
	if !st.Ok() {
		return nil, st
	}

	indexContents, st := ReadBlock(file, opts, footer.IndexHandle)
	if !st.Ok() {
		return nil, st
	}
	indexBlock, err := NewBlock(indexContents.Data)
	if err != nil {
		return nil, status.Corruptionf("sstable: %v", err)
	}

	t := &Table{opts: opts, file: file, index: indexBlock, footer: footer}
	t.readMeta(footer)
	return t, status.OKStatus()
}

// Close releases the underlying file handle.
func (t *Table) Close() error {
	return t.file.Close()
}

// SetCache installs a shared block cache and the namespace id this table
// should use for its cache keys, per spec.md §5's table-scoped cache ids.
func (t *Table) SetCache(cache *Cache, cacheID uint64) {
	t.cache = cache
	t.cacheID = cacheID
}

// readMeta locates and decodes the filter block via the metaindex block,
// swallowing any error: a missing or malformed filter is not fatal, the
// table just loses its fast membership test, per table.cc's ReadMeta.
func (t *Table) readMeta(footer Footer) {
	if t.opts.FilterPolicy == nil {
		return
	}
	contents, st := ReadBlock(t.file, t.opts, footer.MetaindexHandle)
	if !st.Ok() {
		return
	}
	metaBlock, err := NewBlock(contents.Data)
	if err != nil {
		return
	}
	it := metaBlock.NewIterator(dbformat.BytewiseComparator{})
	key := "filter." + t.opts.FilterPolicy.Name()
	it.Seek([]byte(key))
	if !it.Valid() || string(it.Key()) != key {
		return
	}
	handle, _, ok := DecodeBlockHandle(it.Value())
	if !ok {
		return
	}
	filterContents, st := ReadBlock(t.file, t.opts, handle)
	if !st.Ok() {
		return
	}
	t.filter = NewFilterBlockReader(t.opts.FilterPolicy, filterContents.Data)
}

// cacheReleasingIterator wraps an Iterator over a cached block so that
// Close drops the cache reference Lookup or Insert left pinned, per
// spec.md §4.6's "release the cache handle" requirement — without this,
// every block a Table ever read would stay referenced forever and the
// cache's capacity bound would never actually take effect.
type cacheReleasingIterator struct {
	Iterator
	cache *Cache
	key   string
}

func (it *cacheReleasingIterator) Close() error {
	err := it.Iterator.Close()
	it.cache.Release(it.key)
	return err
}

// blockReader returns an iterator over the data block indexValue
// (an encoded BlockHandle, as stored in an index block entry) refers to,
// consulting/populating the shared cache if one is configured.
func (t *Table) blockReader(indexValue []byte) Iterator {
	handle, _, ok := DecodeBlockHandle(indexValue)
	if !ok {
		return &errIterator{err: status.Corruptionf("sstable: bad block handle in index")}
	}

	if t.cache != nil {
		key := cacheKey(t.cacheID, handle.Offset)
		if cached, ok := t.cache.Lookup(key); ok {
			block := cached.(*Block)
			return &cacheReleasingIterator{Iterator: block.NewIterator(t.opts.internalComparator()), cache: t.cache, key: key}
		}
		contents, st := ReadBlock(t.file, t.opts, handle)
		if !st.Ok() {
			return &errIterator{err: st}
		}
		block, err := NewBlock(contents.Data)
		if err != nil {
			return &errIterator{err: status.Corruptionf("sstable: %v", err)}
		}
		if !contents.Cachable || !t.opts.FillCache {
			return block.NewIterator(t.opts.internalComparator())
		}
		t.cache.Insert(key, block, len(contents.Data))
		return &cacheReleasingIterator{Iterator: block.NewIterator(t.opts.internalComparator()), cache: t.cache, key: key}
	}

	contents, st := ReadBlock(t.file, t.opts, handle)
	if !st.Ok() {
		return &errIterator{err: st}
	}
	block, err := NewBlock(contents.Data)
	if err != nil {
		return &errIterator{err: status.Corruptionf("sstable: %v", err)}
	}
	return block.NewIterator(t.opts.internalComparator())
}

// NewIterator returns a two-level iterator over every entry in the table,
// in key order.
func (t *Table) NewIterator() Iterator {
	indexIter := t.index.NewIterator(t.opts.internalComparator())
	return newTwoLevelIterator(indexIter, t.blockReader)
}

// Get looks up lookupKey, an internal key tagged with the sequence number
// and type a caller wants to see at or before (MaxSequenceNumber+TypeValue
// for "give me the newest version"), and returns the first entry sharing
// its user key, the same lookup-key trick the memtable's Get uses: under
// InternalKeyComparator, seeking a key tagged with a higher sequence
// number than any real entry lands just before the newest real version of
// that user key. A filter block, when available, lets a miss skip the
// data block read entirely.
func (t *Table) Get(lookupKey []byte) ([]byte, status.Status) {
	indexIter := t.index.NewIterator(t.opts.internalComparator())
	indexIter.Seek(lookupKey)
	if !indexIter.Valid() {
		return nil, status.NotFoundf("sstable: key not found")
	}

	if t.filter != nil {
		handle, _, ok := DecodeBlockHandle(indexIter.Value())
		if ok && !t.filter.KeyMayMatch(handle.Offset, dbformat.ExtractUserKey(lookupKey)) {
			return nil, status.NotFoundf("sstable: key not found")
		}
	}

	blockIter := t.blockReader(indexIter.Value())
	defer blockIter.Close()
	blockIter.Seek(lookupKey)
	if !blockIter.Valid() {
		if err := blockIter.Err(); err != nil {
			return nil, status.FromError(err)
		}
		return nil, status.NotFoundf("sstable: key not found")
	}

	foundUserKey, _, t2, ok := dbformat.ParseInternalKey(blockIter.Key())
	wantUserKey := dbformat.ExtractUserKey(lookupKey)
	if !ok || t.opts.comparator().Compare(foundUserKey, wantUserKey) != 0 {
		return nil, status.NotFoundf("sstable: key not found")
	}
	if t2 == dbformat.TypeDeletion {
		return nil, status.NotFoundf("sstable: key not found")
	}
	value := append([]byte(nil), blockIter.Value()...)
	return value, status.OKStatus()
}

// ApproximateOffsetOf estimates how many bytes of the file precede key,
// useful for deciding compaction boundaries. Falls back to the
// metaindex handle's offset (close to the end of the file) when key
// falls past every index entry, mirroring table.cc.
func (t *Table) ApproximateOffsetOf(key []byte) uint64 {
	indexIter := t.index.NewIterator(t.opts.internalComparator())
	indexIter.Seek(key)
	if indexIter.Valid() {
		handle, _, ok := DecodeBlockHandle(indexIter.Value())
		if ok {
			return handle.Offset
		}
	}
	return t.footer.MetaindexHandle.Offset
}
