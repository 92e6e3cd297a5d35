// Package dbformat defines the internal key format that layers a
// sequence number and value type on top of every user key once it
// crosses into the WAL/memtable/SST boundary, per spec.md §3's
// InternalKey definition. It is the one piece of "out of scope"
// collaborator (the comparator/version-set machinery) that the format
// engine must still speak, since both wal and sstable serialize and
// compare these keys.
package dbformat

import (
	"github.com/zjs1224522500/leveldb/coding"
)

// ValueType distinguishes a live value from a deletion marker inside an
// InternalKey's trailing tag.
type ValueType byte

const (
	TypeDeletion ValueType = 0
	TypeValue    ValueType = 1
)

// MaxSequenceNumber is the largest sequence number representable in the
// 56 bits the tag reserves for it.
const MaxSequenceNumber = (uint64(1) << 56) - 1

// PackSequenceAndType combines a sequence number and a value type into the
// 8-byte tail appended to every user key, sequence in the high 56 bits,
// type in the low 8, matching spec.md §3's InternalKey layout.
func PackSequenceAndType(seq uint64, t ValueType) uint64 {
	return (seq << 8) | uint64(t)
}

// AppendInternalKey appends the internal-key encoding of userKey (with
// sequence seq and type t) to dst and returns the result.
func AppendInternalKey(dst, userKey []byte, seq uint64, t ValueType) []byte {
	dst = append(dst, userKey...)
	dst = coding.PutFixed64(dst, PackSequenceAndType(seq, t))
	return dst
}

// ParseInternalKey splits an internal key back into its user key,
// sequence number, and value type. ok is false if ikey is too short to
// hold the 8-byte tag.
func ParseInternalKey(ikey []byte) (userKey []byte, seq uint64, t ValueType, ok bool) {
	if len(ikey) < 8 {
		return nil, 0, 0, false
	}
	n := len(ikey) - 8
	tag := coding.Fixed64(ikey[n:])
	return ikey[:n], tag >> 8, ValueType(tag & 0xff), true
}

// ExtractUserKey strips the 8-byte sequence/type tag from an internal
// key, returning just the user-supplied bytes.
func ExtractUserKey(ikey []byte) []byte {
	if len(ikey) < 8 {
		return ikey
	}
	return ikey[:len(ikey)-8]
}

// Comparator orders user keys. The default is byte-wise lexicographic,
// per spec.md §5's note that the comparator is plugged in but is
// monomorphic per Table in the hot seek path.
type Comparator interface {
	Compare(a, b []byte) int
	Name() string
}

// BytewiseComparator is the default Comparator: plain lexicographic
// ordering on the raw bytes.
type BytewiseComparator struct{}

func (BytewiseComparator) Compare(a, b []byte) int { return coding.Compare(a, b) }
func (BytewiseComparator) Name() string            { return "leveldb.BytewiseComparator" }

// InternalKeyComparator orders internal keys by user key ascending under
// the wrapped user comparator, then by sequence number descending (so
// that, for equal user keys, the most recent write sorts first) and by
// value type descending as the final tiebreaker, matching spec.md §3.
type InternalKeyComparator struct {
	User Comparator
}

func NewInternalKeyComparator(user Comparator) *InternalKeyComparator {
	if user == nil {
		user = BytewiseComparator{}
	}
	return &InternalKeyComparator{User: user}
}

func (c *InternalKeyComparator) Name() string { return "leveldb.InternalKeyComparator" }

func (c *InternalKeyComparator) Compare(akey, bkey []byte) int {
	r := c.User.Compare(ExtractUserKey(akey), ExtractUserKey(bkey))
	if r != 0 {
		return r
	}
	aNum := tailOf(akey)
	bNum := tailOf(bkey)
	switch {
	case aNum > bNum:
		return -1
	case aNum < bNum:
		return 1
	default:
		return 0
	}
}

func tailOf(ikey []byte) uint64 {
	if len(ikey) < 8 {
		return 0
	}
	return coding.Fixed64(ikey[len(ikey)-8:])
}
