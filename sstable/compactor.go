package sstable

import (
	"github.com/zjs1224522500/leveldb/dbformat"
	"github.com/zjs1224522500/leveldb/env"
	"github.com/zjs1224522500/leveldb/status"
)

// compact merges two tables, internally sorted by InternalKeyComparator,
// into a single new table at outputPath. When both inputs hold an entry
// for the same user key, the one with the higher sequence number (the
// more recent write) is kept and the other dropped — the same precedence
// InternalKeyComparator gives a memtable scan, just applied across files
// instead of within one skiplist. dropTombstones discards deletion
// markers outright; only safe when merging down into the last level that
// could still shadow an older version of the key.
func compact(e env.Env, opts Options, outputPath string, first, second *Table, dropTombstones bool) (*Table, status.Status) {
	icmp := dbformat.NewInternalKeyComparator(opts.comparator())

	wf, err := e.NewWritableFile(outputPath)
	if err != nil {
		return nil, status.FromError(err)
	}
	builder := NewTableBuilder(opts, wf)

	a := first.NewIterator()
	b := second.NewIterator()
	a.SeekToFirst()
	b.SeekToFirst()

	emit := func(key, value []byte) status.Status {
		_, _, t, ok := dbformat.ParseInternalKey(key)
		if ok && t == dbformat.TypeDeletion && dropTombstones {
			return status.OKStatus()
		}
		builder.Add(key, value)
		return status.OKStatus()
	}

	userCmp := opts.comparator()
	var st status.Status
	for st.Ok() && a.Valid() && b.Valid() {
		au := dbformat.ExtractUserKey(a.Key())
		bu := dbformat.ExtractUserKey(b.Key())
		switch {
		case userCmp.Compare(au, bu) == 0:
			if icmp.Compare(a.Key(), b.Key()) <= 0 {
				st = emit(a.Key(), a.Value())
			} else {
				st = emit(b.Key(), b.Value())
			}
			a.Next()
			b.Next()
		case icmp.Compare(a.Key(), b.Key()) < 0:
			st = emit(a.Key(), a.Value())
			a.Next()
		default:
			st = emit(b.Key(), b.Value())
			b.Next()
		}
	}
	for st.Ok() && a.Valid() {
		st = emit(a.Key(), a.Value())
		a.Next()
	}
	for st.Ok() && b.Valid() {
		st = emit(b.Key(), b.Value())
		b.Next()
	}
	a.Close()
	b.Close()
	if !st.Ok() {
		wf.Close()
		return nil, st
	}

	if fst := builder.Finish(); !fst.Ok() {
		wf.Close()
		return nil, fst
	}
	if err := wf.Close(); err != nil {
		return nil, status.FromError(err)
	}
	if builder.NumEntries() == 0 {
		e.Remove(outputPath)
		return nil, status.OKStatus()
	}

	size, err := e.FileSize(outputPath)
	if err != nil {
		return nil, status.FromError(err)
	}
	rf, err := e.NewRandomAccessFile(outputPath)
	if err != nil {
		return nil, status.FromError(err)
	}
	return Open(opts, rf, size)
}
