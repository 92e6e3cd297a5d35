package memtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjs1224522500/leveldb/dbformat"
)

func newTestSkipList() *SkipList {
	icmp := dbformat.NewInternalKeyComparator(dbformat.BytewiseComparator{})
	return New(skipListMaxLevel, skipListP, icmp)
}

func TestSkipListSetNeverOverwrites(t *testing.T) {
	s := newTestSkipList()

	k1 := dbformat.AppendInternalKey(nil, []byte("x"), 1, dbformat.TypeValue)
	k2 := dbformat.AppendInternalKey(nil, []byte("x"), 2, dbformat.TypeValue)
	s.Set(k1, []byte("old"))
	s.Set(k2, []byte("new"))

	all := s.All()
	require.Len(t, all, 2, "two distinct internal keys for the same user key must both be kept")
}

func TestSkipListAllIsSortedAscending(t *testing.T) {
	s := newTestSkipList()
	icmp := dbformat.NewInternalKeyComparator(dbformat.BytewiseComparator{})

	keys := [][]byte{
		dbformat.AppendInternalKey(nil, []byte("c"), 1, dbformat.TypeValue),
		dbformat.AppendInternalKey(nil, []byte("a"), 1, dbformat.TypeValue),
		dbformat.AppendInternalKey(nil, []byte("b"), 1, dbformat.TypeValue),
	}
	for _, k := range keys {
		s.Set(k, nil)
	}

	all := s.All()
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		require.Negative(t, icmp.Compare(all[i-1].Key, all[i].Key))
	}
}

func TestSkipListSeekFindsLowerBound(t *testing.T) {
	s := newTestSkipList()
	k5 := dbformat.AppendInternalKey(nil, []byte("e"), 1, dbformat.TypeValue)
	k10 := dbformat.AppendInternalKey(nil, []byte("j"), 1, dbformat.TypeValue)
	s.Set(k5, []byte("five"))
	s.Set(k10, []byte("ten"))

	target := dbformat.AppendInternalKey(nil, []byte("g"), 1, dbformat.TypeValue)
	elem := s.Seek(target)
	require.NotNil(t, elem)
	require.Equal(t, k10, elem.Key)

	beyond := dbformat.AppendInternalKey(nil, []byte("z"), 1, dbformat.TypeValue)
	require.Nil(t, s.Seek(beyond))
}
