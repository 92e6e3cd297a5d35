package sstable

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjs1224522500/leveldb/dbformat"
	"github.com/zjs1224522500/leveldb/env"
)

func writeTestTable(t *testing.T, opts Options, name string, entries []struct {
	key   string
	seq   uint64
	typ   dbformat.ValueType
	value string
}) *Table {
	e := env.Default()
	path := filepath.Join(t.TempDir(), name)
	wf, err := e.NewWritableFile(path)
	require.NoError(t, err)

	builder := NewTableBuilder(opts, wf)
	for _, ent := range entries {
		ikey := dbformat.AppendInternalKey(nil, []byte(ent.key), ent.seq, ent.typ)
		builder.Add(ikey, []byte(ent.value))
	}
	require.True(t, builder.Finish().Ok())
	require.NoError(t, wf.Close())

	size, err := e.FileSize(path)
	require.NoError(t, err)
	rf, err := e.NewRandomAccessFile(path)
	require.NoError(t, err)
	table, st := Open(opts, rf, size)
	require.True(t, st.Ok())
	return table
}

type tableEntry = struct {
	key   string
	seq   uint64
	typ   dbformat.ValueType
	value string
}

func TestCompactMergesDisjointTablesInOrder(t *testing.T) {
	opts := testOptions()
	first := writeTestTable(t, opts, "a.sst", []tableEntry{
		{"apple", 1, dbformat.TypeValue, "a-1"},
		{"cherry", 1, dbformat.TypeValue, "c-1"},
	})
	second := writeTestTable(t, opts, "b.sst", []tableEntry{
		{"banana", 1, dbformat.TypeValue, "b-1"},
		{"date", 1, dbformat.TypeValue, "d-1"},
	})
	defer first.Close()
	defer second.Close()

	out := filepath.Join(t.TempDir(), "merged.sst")
	merged, st := compact(env.Default(), opts, out, first, second, false)
	require.True(t, st.Ok())
	defer merged.Close()

	it := merged.NewIterator()
	defer it.Close()
	it.SeekToFirst()

	var got []string
	for ; it.Valid(); it.Next() {
		uk, _, _, ok := dbformat.ParseInternalKey(it.Key())
		require.True(t, ok)
		got = append(got, string(uk))
	}
	require.Equal(t, []string{"apple", "banana", "cherry", "date"}, got)
}

func TestCompactKeepsNewerSequenceOnSharedKey(t *testing.T) {
	opts := testOptions()
	older := writeTestTable(t, opts, "older.sst", []tableEntry{
		{"key", 1, dbformat.TypeValue, "old-value"},
	})
	newer := writeTestTable(t, opts, "newer.sst", []tableEntry{
		{"key", 5, dbformat.TypeValue, "new-value"},
	})
	defer older.Close()
	defer newer.Close()

	out := filepath.Join(t.TempDir(), "merged.sst")
	merged, st := compact(env.Default(), opts, out, older, newer, false)
	require.True(t, st.Ok())
	defer merged.Close()

	value, st := merged.Get(lookupKey("key", dbformat.MaxSequenceNumber))
	require.True(t, st.Ok())
	require.Equal(t, "new-value", string(value))

	it := merged.NewIterator()
	defer it.Close()
	it.SeekToFirst()
	count := 0
	for ; it.Valid(); it.Next() {
		count++
	}
	require.Equal(t, 1, count, "only the newer version of the shared key should survive")
}

func TestCompactDropsTombstonesWhenRequested(t *testing.T) {
	opts := testOptions()
	first := writeTestTable(t, opts, "first.sst", []tableEntry{
		{"gone", 3, dbformat.TypeDeletion, ""},
	})
	second := writeTestTable(t, opts, "second.sst", []tableEntry{
		{"stays", 1, dbformat.TypeValue, "v"},
	})
	defer first.Close()
	defer second.Close()

	out := filepath.Join(t.TempDir(), "merged.sst")
	merged, st := compact(env.Default(), opts, out, first, second, true)
	require.True(t, st.Ok())
	require.NotNil(t, merged)
	defer merged.Close()

	it := merged.NewIterator()
	defer it.Close()
	it.SeekToFirst()

	var got []string
	for ; it.Valid(); it.Next() {
		uk, _, _, ok := dbformat.ParseInternalKey(it.Key())
		require.True(t, ok)
		got = append(got, string(uk))
	}
	require.Equal(t, []string{"stays"}, got)
}

func TestCompactKeepsTombstonesWhenNotDropping(t *testing.T) {
	opts := testOptions()
	first := writeTestTable(t, opts, "first.sst", []tableEntry{
		{"gone", 3, dbformat.TypeDeletion, ""},
	})
	second := writeTestTable(t, opts, "second.sst", []tableEntry{
		{"stays", 1, dbformat.TypeValue, "v"},
	})
	defer first.Close()
	defer second.Close()

	out := filepath.Join(t.TempDir(), "merged.sst")
	merged, st := compact(env.Default(), opts, out, first, second, false)
	require.True(t, st.Ok())
	defer merged.Close()

	_, st = merged.Get(lookupKey("gone", dbformat.MaxSequenceNumber))
	require.True(t, st.IsNotFound(), "a kept tombstone must still shadow reads through Get")
}

func TestCompactProducesNoOutputWhenEverythingIsDropped(t *testing.T) {
	opts := testOptions()
	only := writeTestTable(t, opts, "only.sst", []tableEntry{
		{"key", 1, dbformat.TypeDeletion, ""},
	})
	empty := writeTestTable(t, opts, "empty-ish.sst", []tableEntry{
		{"other", 1, dbformat.TypeDeletion, ""},
	})
	defer only.Close()
	defer empty.Close()

	out := filepath.Join(t.TempDir(), "merged.sst")
	merged, st := compact(env.Default(), opts, out, only, empty, true)
	require.True(t, st.Ok())
	require.Nil(t, merged)
}

func TestCompactManyKeysInterleaveCorrectly(t *testing.T) {
	opts := testOptions()
	var evens, odds []tableEntry
	for i := 0; i < 40; i++ {
		e := tableEntry{key: fmt.Sprintf("k%03d", i), seq: 1, typ: dbformat.TypeValue, value: fmt.Sprintf("v%d", i)}
		if i%2 == 0 {
			evens = append(evens, e)
		} else {
			odds = append(odds, e)
		}
	}
	first := writeTestTable(t, opts, "evens.sst", evens)
	second := writeTestTable(t, opts, "odds.sst", odds)
	defer first.Close()
	defer second.Close()

	out := filepath.Join(t.TempDir(), "merged.sst")
	merged, st := compact(env.Default(), opts, out, first, second, false)
	require.True(t, st.Ok())
	defer merged.Close()

	it := merged.NewIterator()
	defer it.Close()
	it.SeekToFirst()
	var got []string
	for ; it.Valid(); it.Next() {
		uk, _, _, ok := dbformat.ParseInternalKey(it.Key())
		require.True(t, ok)
		got = append(got, string(uk))
	}
	require.Len(t, got, 40)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1], got[i])
	}
}
