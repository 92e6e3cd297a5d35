package sstable

// Iterator walks a sequence of key/value pairs in order. It is the common
// shape shared by block iterators, the two-level table iterator, and the
// merging iterator compaction uses — mirroring leveldb's Iterator
// interface, minus the seek-to-arbitrary-key variants callers here don't
// need beyond Seek itself.
type Iterator interface {
	// Valid reports whether the iterator is positioned at an entry.
	Valid() bool
	// SeekToFirst positions at the first entry.
	SeekToFirst()
	// SeekToLast positions at the last entry.
	SeekToLast()
	// Seek positions at the first entry whose key is >= target.
	Seek(target []byte)
	// Next moves to the next entry. Valid() must be true before calling.
	Next()
	// Prev moves to the previous entry. Valid() must be true before calling.
	Prev()
	// Key returns the key at the current position. Valid() must be true.
	Key() []byte
	// Value returns the value at the current position. Valid() must be true.
	Value() []byte
	// Err returns any error encountered during iteration.
	Err() error
	// Close releases resources held by the iterator (e.g. a cache handle).
	Close() error
}

// errIterator is a degenerate Iterator that is always invalid and reports
// err, used so a construction failure can still be threaded through code
// that expects an Iterator rather than an (Iterator, error) pair.
type errIterator struct{ err error }

func (e *errIterator) Valid() bool     { return false }
func (e *errIterator) SeekToFirst()    {}
func (e *errIterator) SeekToLast()     {}
func (e *errIterator) Seek([]byte)     {}
func (e *errIterator) Next()           {}
func (e *errIterator) Prev()           {}
func (e *errIterator) Key() []byte     { return nil }
func (e *errIterator) Value() []byte   { return nil }
func (e *errIterator) Err() error      { return e.err }
func (e *errIterator) Close() error    { return nil }
