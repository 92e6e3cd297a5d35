// Package coding implements the fixed-width and variable-width integer
// encodings and the masked CRC32C checksum shared by the WAL and SST
// formats. Everything here is little-endian, matching the on-disk format.
package coding

import (
	"encoding/binary"
	"hash/crc32"
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// PutFixed32 appends a 4-byte little-endian encoding of v to dst.
func PutFixed32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// Fixed32 decodes a 4-byte little-endian value from the front of src.
func Fixed32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

// PutFixed64 appends an 8-byte little-endian encoding of v to dst.
func PutFixed64(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// Fixed64 decodes an 8-byte little-endian value from the front of src.
func Fixed64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}

// PutVarint32 appends a varint32 encoding of v to dst.
func PutVarint32(dst []byte, v uint32) []byte {
	return PutVarint64(dst, uint64(v))
}

// PutVarint64 appends a varint64 encoding of v to dst.
func PutVarint64(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

// GetVarint32 decodes a varint32 from the front of src, returning the
// value, the number of bytes consumed, and false if src did not contain a
// complete encoding.
func GetVarint32(src []byte) (uint32, int, bool) {
	v, n, ok := GetVarint64(src)
	if !ok || v > uint64(^uint32(0)) {
		return 0, 0, false
	}
	return uint32(v), n, true
}

// GetVarint64 decodes a varint64 from the front of src.
func GetVarint64(src []byte) (uint64, int, bool) {
	v, n := binary.Uvarint(src)
	if n <= 0 {
		return 0, 0, false
	}
	return v, n, true
}

// VarintLength32 returns the number of bytes PutVarint32 would emit for v.
func VarintLength32(v uint32) int { return VarintLength64(uint64(v)) }

// VarintLength64 returns the number of bytes PutVarint64 would emit for v.
func VarintLength64(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// CRC32C returns the Castagnoli CRC32 checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// ExtendCRC32C extends an existing Castagnoli checksum (as returned by
// CRC32C) over additional data, equivalent to CRC32C(old ++ data) without
// re-hashing old. Used to extend a precomputed per-type checksum over a
// record's payload.
func ExtendCRC32C(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, castagnoliTable, data)
}

const maskDelta = 0xa282ead8

// Mask rotates and offsets a CRC so that it is unlikely to collide with
// CRCs embedded in the data itself.
func Mask(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

// Unmask reverses Mask.
func Unmask(maskedCRC uint32) uint32 {
	rot := maskedCRC - maskDelta
	return (rot >> 17) | (rot << 15)
}
