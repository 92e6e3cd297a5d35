package dbformat

import (
	"github.com/zjs1224522500/leveldb/coding"
	"github.com/zjs1224522500/leveldb/status"
)

// VersionEdit tags, per spec.md §6. Tag 8 was retired upstream and is
// deliberately absent here.
const (
	tagComparator      = 1
	tagLogNumber       = 2
	tagNextFileNumber  = 3
	tagLastSequence    = 4
	tagCompactPointer  = 5
	tagDeletedFile     = 6
	tagNewFile         = 7
	tagPrevLogNumber   = 9
)

// CompactPointer records the last key a level has been compacted up to.
type CompactPointer struct {
	Level int
	Key   []byte // internal key
}

// DeletedFile identifies a file removed from a level by an edit.
type DeletedFile struct {
	Level  int
	Number uint64
}

// NewFile describes a file added to a level by an edit, mirroring
// FileMetaData's on-disk fields (spec.md §3); refs and allowed_seeks are
// VersionSet bookkeeping and do not round-trip through the edit record.
type NewFile struct {
	Level    int
	Number   uint64
	FileSize uint64
	Smallest []byte // internal key
	Largest  []byte // internal key
}

// VersionEdit is a manifest delta: the tagged, order-independent record the
// version set appends to describe what changed since the last snapshot.
// Decoding a VersionEdit does not interpret it; applying it to a Version is
// the version set's job (out of scope per spec.md §1).
type VersionEdit struct {
	HasComparator  bool
	Comparator     string
	HasLogNumber   bool
	LogNumber      uint64
	HasNextFile    bool
	NextFileNumber uint64
	HasLastSeq     bool
	LastSequence   uint64
	HasPrevLog     bool
	PrevLogNumber  uint64

	CompactPointers []CompactPointer
	DeletedFiles    []DeletedFile
	NewFiles        []NewFile
}

func (e *VersionEdit) SetComparatorName(name string) {
	e.HasComparator = true
	e.Comparator = name
}

func (e *VersionEdit) SetLogNumber(n uint64) {
	e.HasLogNumber = true
	e.LogNumber = n
}

func (e *VersionEdit) SetPrevLogNumber(n uint64) {
	e.HasPrevLog = true
	e.PrevLogNumber = n
}

func (e *VersionEdit) SetNextFile(n uint64) {
	e.HasNextFile = true
	e.NextFileNumber = n
}

func (e *VersionEdit) SetLastSequence(seq uint64) {
	e.HasLastSeq = true
	e.LastSequence = seq
}

func (e *VersionEdit) SetCompactPointer(level int, key []byte) {
	e.CompactPointers = append(e.CompactPointers, CompactPointer{Level: level, Key: key})
}

func (e *VersionEdit) AddFile(level int, number, fileSize uint64, smallest, largest []byte) {
	e.NewFiles = append(e.NewFiles, NewFile{
		Level: level, Number: number, FileSize: fileSize,
		Smallest: append([]byte(nil), smallest...),
		Largest:  append([]byte(nil), largest...),
	})
}

func (e *VersionEdit) RemoveFile(level int, number uint64) {
	e.DeletedFiles = append(e.DeletedFiles, DeletedFile{Level: level, Number: number})
}

func putLengthPrefixed(dst, s []byte) []byte {
	dst = coding.PutVarint32(dst, uint32(len(s)))
	return append(dst, s...)
}

func getLengthPrefixed(src []byte) ([]byte, int, bool) {
	n, hdr, ok := coding.GetVarint32(src)
	if !ok || hdr+int(n) > len(src) {
		return nil, 0, false
	}
	return src[hdr : hdr+int(n)], hdr + int(n), true
}

// EncodeTo appends the tagged-field encoding of e to dst and returns the
// result. Fields are written in a fixed order (comparator, log number,
// previous log number, next file number, last sequence, then compact
// pointers, deleted files and new files); any order would decode
// correctly, since every field is self-describing, but a fixed order keeps
// encodings reproducible for tests.
func (e *VersionEdit) EncodeTo(dst []byte) []byte {
	if e.HasComparator {
		dst = coding.PutVarint32(dst, tagComparator)
		dst = putLengthPrefixed(dst, []byte(e.Comparator))
	}
	if e.HasLogNumber {
		dst = coding.PutVarint32(dst, tagLogNumber)
		dst = coding.PutVarint64(dst, e.LogNumber)
	}
	if e.HasPrevLog {
		dst = coding.PutVarint32(dst, tagPrevLogNumber)
		dst = coding.PutVarint64(dst, e.PrevLogNumber)
	}
	if e.HasNextFile {
		dst = coding.PutVarint32(dst, tagNextFileNumber)
		dst = coding.PutVarint64(dst, e.NextFileNumber)
	}
	if e.HasLastSeq {
		dst = coding.PutVarint32(dst, tagLastSequence)
		dst = coding.PutVarint64(dst, e.LastSequence)
	}
	for _, cp := range e.CompactPointers {
		dst = coding.PutVarint32(dst, tagCompactPointer)
		dst = coding.PutVarint32(dst, uint32(cp.Level))
		dst = putLengthPrefixed(dst, cp.Key)
	}
	for _, df := range e.DeletedFiles {
		dst = coding.PutVarint32(dst, tagDeletedFile)
		dst = coding.PutVarint32(dst, uint32(df.Level))
		dst = coding.PutVarint64(dst, df.Number)
	}
	for _, nf := range e.NewFiles {
		dst = coding.PutVarint32(dst, tagNewFile)
		dst = coding.PutVarint32(dst, uint32(nf.Level))
		dst = coding.PutVarint64(dst, nf.Number)
		dst = coding.PutVarint64(dst, nf.FileSize)
		dst = putLengthPrefixed(dst, nf.Smallest)
		dst = putLengthPrefixed(dst, nf.Largest)
	}
	return dst
}

// DecodeFrom parses a tagged-field record produced by EncodeTo. Fields may
// appear in any order; an unrecognized tag is a corruption, matching
// spec.md §7's taxonomy (there is no forward-compatible "skip unknown tag"
// path at this layer).
func (e *VersionEdit) DecodeFrom(src []byte) status.Status {
	*e = VersionEdit{}
	for len(src) > 0 {
		tag, n, ok := coding.GetVarint32(src)
		if !ok {
			return status.Corruptionf("VersionEdit: invalid tag")
		}
		src = src[n:]
		switch tag {
		case tagComparator:
			s, m, ok := getLengthPrefixed(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid comparator name")
			}
			e.SetComparatorName(string(s))
			src = src[m:]
		case tagLogNumber:
			v, m, ok := coding.GetVarint64(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid log number")
			}
			e.SetLogNumber(v)
			src = src[m:]
		case tagPrevLogNumber:
			v, m, ok := coding.GetVarint64(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid previous log number")
			}
			e.SetPrevLogNumber(v)
			src = src[m:]
		case tagNextFileNumber:
			v, m, ok := coding.GetVarint64(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid next file number")
			}
			e.SetNextFile(v)
			src = src[m:]
		case tagLastSequence:
			v, m, ok := coding.GetVarint64(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid last sequence number")
			}
			e.SetLastSequence(v)
			src = src[m:]
		case tagCompactPointer:
			level, m, ok := coding.GetVarint32(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid compaction pointer level")
			}
			src = src[m:]
			key, m, ok := getLengthPrefixed(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid compaction pointer key")
			}
			src = src[m:]
			e.SetCompactPointer(int(level), append([]byte(nil), key...))
		case tagDeletedFile:
			level, m, ok := coding.GetVarint32(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid deleted file level")
			}
			src = src[m:]
			number, m, ok := coding.GetVarint64(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid deleted file number")
			}
			src = src[m:]
			e.RemoveFile(int(level), number)
		case tagNewFile:
			level, m, ok := coding.GetVarint32(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid new-file level")
			}
			src = src[m:]
			number, m, ok := coding.GetVarint64(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid new-file number")
			}
			src = src[m:]
			fileSize, m, ok := coding.GetVarint64(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid new-file size")
			}
			src = src[m:]
			smallest, m, ok := getLengthPrefixed(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid new-file smallest key")
			}
			src = src[m:]
			largest, m, ok := getLengthPrefixed(src)
			if !ok {
				return status.Corruptionf("VersionEdit: invalid new-file largest key")
			}
			src = src[m:]
			e.AddFile(int(level), number, fileSize, smallest, largest)
		default:
			return status.Corruptionf("VersionEdit: unknown tag %d", tag)
		}
	}
	return status.OKStatus()
}
