package dbformat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternalKeyRoundTrip(t *testing.T) {
	ikey := AppendInternalKey(nil, []byte("hello"), 42, TypeValue)
	userKey, seq, typ, ok := ParseInternalKey(ikey)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), userKey)
	require.Equal(t, uint64(42), seq)
	require.Equal(t, TypeValue, typ)
	require.Equal(t, []byte("hello"), ExtractUserKey(ikey))
}

func TestParseInternalKeyTooShort(t *testing.T) {
	_, _, _, ok := ParseInternalKey([]byte("short"))
	require.False(t, ok)
}

func TestInternalKeyComparatorOrdersByUserKeyThenSeqDescending(t *testing.T) {
	icmp := NewInternalKeyComparator(BytewiseComparator{})

	a := AppendInternalKey(nil, []byte("a"), 1, TypeValue)
	b := AppendInternalKey(nil, []byte("b"), 1, TypeValue)
	require.Negative(t, icmp.Compare(a, b))
	require.Positive(t, icmp.Compare(b, a))

	newer := AppendInternalKey(nil, []byte("k"), 5, TypeValue)
	older := AppendInternalKey(nil, []byte("k"), 2, TypeValue)
	require.Negative(t, icmp.Compare(newer, older), "higher sequence number sorts first")
	require.Zero(t, icmp.Compare(newer, newer))

	sameSeqValue := AppendInternalKey(nil, []byte("k"), 5, TypeValue)
	sameSeqDeletion := AppendInternalKey(nil, []byte("k"), 5, TypeDeletion)
	require.Negative(t, icmp.Compare(sameSeqValue, sameSeqDeletion), "TypeValue sorts before TypeDeletion at equal sequence")
}

func TestMaxSequenceLookupKeyOutranksAnyRealEntry(t *testing.T) {
	icmp := NewInternalKeyComparator(BytewiseComparator{})
	lookup := AppendInternalKey(nil, []byte("k"), MaxSequenceNumber, TypeValue)
	real := AppendInternalKey(nil, []byte("k"), 12345, TypeValue)
	require.Negative(t, icmp.Compare(lookup, real))
}

func TestVersionEditRoundTrip(t *testing.T) {
	var edit VersionEdit
	edit.SetComparatorName("leveldb.BytewiseComparator")
	edit.SetLogNumber(7)
	edit.SetPrevLogNumber(6)
	edit.SetNextFile(9)
	edit.SetLastSequence(100)
	edit.SetCompactPointer(1, []byte("pointer-key"))
	edit.RemoveFile(0, 3)
	edit.AddFile(0, 4, 4096, []byte("aaa"), []byte("zzz"))

	encoded := edit.EncodeTo(nil)

	var decoded VersionEdit
	st := decoded.DecodeFrom(encoded)
	require.True(t, st.Ok())
	require.Equal(t, edit, decoded)
}

func TestVersionEditDecodeRejectsUnknownTag(t *testing.T) {
	var edit VersionEdit
	st := edit.DecodeFrom([]byte{0x63}) // tag 99, never defined
	require.True(t, st.IsCorruption())
}
