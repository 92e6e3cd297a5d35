package sstable

import (
	"github.com/klauspost/compress/s2"
	"github.com/zjs1224522500/leveldb/coding"
	"github.com/zjs1224522500/leveldb/env"
	"github.com/zjs1224522500/leveldb/status"
)

// CompressionType tags the byte trailing a block's raw contents, per
// spec.md §3.
type CompressionType byte

const (
	NoCompression     CompressionType = 0
	SnappyCompression CompressionType = 1
)

// blockTrailerSize is the compression-type byte plus the 4-byte masked
// CRC32C that follows every block's contents on disk.
const blockTrailerSize = 1 + 4

// tableMagic anchors the footer; the same 64-bit constant spec.md §3
// calls out, split across two little-endian Fixed32 writes.
const tableMagic = 0xdb4775248b80fb57

// maxHandleEncodedLength is the longest a BlockHandle's two varint64
// fields can take (10 bytes each), used to size the footer's padding.
const maxHandleEncodedLength = 10 + 10

// footerEncodedLength is the fixed size of a Footer on disk: both handles
// padded out to maxHandleEncodedLength, plus the 8-byte magic number.
const footerEncodedLength = 2*maxHandleEncodedLength + 8

// BlockHandle points to a block: its offset and size within the table
// file, not counting the trailing compression byte and checksum.
type BlockHandle struct {
	Offset uint64
	Size   uint64
}

// EncodeTo appends the varint64 encoding of h to dst.
func (h BlockHandle) EncodeTo(dst []byte) []byte {
	dst = coding.PutVarint64(dst, h.Offset)
	dst = coding.PutVarint64(dst, h.Size)
	return dst
}

// DecodeBlockHandle parses a BlockHandle from the front of src, returning
// the number of bytes consumed.
func DecodeBlockHandle(src []byte) (BlockHandle, int, bool) {
	offset, n1, ok := coding.GetVarint64(src)
	if !ok {
		return BlockHandle{}, 0, false
	}
	size, n2, ok := coding.GetVarint64(src[n1:])
	if !ok {
		return BlockHandle{}, 0, false
	}
	return BlockHandle{Offset: offset, Size: size}, n1 + n2, true
}

// Footer is the fixed-size trailer anchoring every SST file: the
// metaindex and index block handles, padded out to a known width so it
// can be read without first knowing its own length, followed by the
// magic number.
type Footer struct {
	MetaindexHandle BlockHandle
	IndexHandle     BlockHandle
}

// EncodeTo appends the on-disk encoding of f to dst: both handles,
// zero-padded out to footerEncodedLength-8, then the magic number split
// into low and high Fixed32 halves.
func (f Footer) EncodeTo(dst []byte) []byte {
	start := len(dst)
	dst = f.MetaindexHandle.EncodeTo(dst)
	dst = f.IndexHandle.EncodeTo(dst)
	for len(dst)-start < footerEncodedLength-8 {
		dst = append(dst, 0)
	}
	dst = coding.PutFixed32(dst, uint32(tableMagic&0xffffffff))
	dst = coding.PutFixed32(dst, uint32(tableMagic>>32))
	return dst
}

// DecodeFooter parses a Footer from exactly footerEncodedLength bytes.
func DecodeFooter(src []byte) (Footer, status.Status) {
	if len(src) != footerEncodedLength {
		return Footer{}, status.Corruptionf("sstable: footer has wrong length")
	}
	lo := coding.Fixed32(src[footerEncodedLength-8 : footerEncodedLength-4])
	hi := coding.Fixed32(src[footerEncodedLength-4:])
	magic := uint64(hi)<<32 | uint64(lo)
	if magic != tableMagic {
		return Footer{}, status.Corruptionf("sstable: not a table (bad magic number)")
	}

	meta, n1, ok := DecodeBlockHandle(src)
	if !ok {
		return Footer{}, status.Corruptionf("sstable: bad metaindex block handle")
	}
	idx, _, ok := DecodeBlockHandle(src[n1:])
	if !ok {
		return Footer{}, status.Corruptionf("sstable: bad index block handle")
	}
	return Footer{MetaindexHandle: meta, IndexHandle: idx}, status.OKStatus()
}

// BlockContents is the decoded, decompressed payload of one block, plus
// whether it is safe to retain and cache.
type BlockContents struct {
	Data          []byte
	Cachable      bool
	HeapAllocated bool
}

// ReadBlock reads the block described by handle from file, optionally
// verifies its checksum, and decompresses it if needed. Every
// posixRandomAccessFile read in this module always copies into a fresh
// buffer (env.go never hands back a borrowed slice), so unlike leveldb's
// C++ ReadBlock there is no "aliases the caller's scratch" case to track:
// a successfully read block is always heap-allocated and always
// cachable.
func ReadBlock(file env.RandomAccessFile, opts Options, handle BlockHandle) (BlockContents, status.Status) {
	n := int(handle.Size)
	raw, err := file.ReadAt(int64(handle.Offset), n+blockTrailerSize, make([]byte, n+blockTrailerSize))
	if err != nil {
		return BlockContents{}, status.IOErrorf("sstable: %v", err)
	}
	if len(raw) != n+blockTrailerSize {
		return BlockContents{}, status.Corruptionf("sstable: truncated block read")
	}

	if opts.VerifyChecksums {
		expected := coding.Unmask(coding.Fixed32(raw[n+1:]))
		actual := coding.CRC32C(raw[:n+1])
		if actual != expected {
			return BlockContents{}, status.Corruptionf("sstable: block checksum mismatch")
		}
	}

	switch CompressionType(raw[n]) {
	case NoCompression:
		return BlockContents{Data: raw[:n], Cachable: true, HeapAllocated: true}, status.OKStatus()
	case SnappyCompression:
		decoded, err := s2.Decode(nil, raw[:n])
		if err != nil {
			return BlockContents{}, status.Corruptionf("sstable: corrupted compressed block contents")
		}
		return BlockContents{Data: decoded, Cachable: true, HeapAllocated: true}, status.OKStatus()
	default:
		return BlockContents{}, status.Corruptionf("sstable: bad block type")
	}
}
