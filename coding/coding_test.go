package coding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixed32RoundTrip(t *testing.T) {
	var buf []byte
	buf = PutFixed32(buf, 0xdeadbeef)
	require.Equal(t, uint32(0xdeadbeef), Fixed32(buf))
}

func TestFixed64RoundTrip(t *testing.T) {
	var buf []byte
	buf = PutFixed64(buf, 0xdb4775248b80fb57)
	require.Equal(t, uint64(0xdb4775248b80fb57), Fixed64(buf))
	require.Equal(t, []byte{0x57, 0xfb, 0x80, 0x8b, 0x24, 0x75, 0x47, 0xdb}, buf)
}

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40, ^uint64(0)}
	for _, v := range values {
		var buf []byte
		buf = PutVarint64(buf, v)
		got, n, ok := GetVarint64(buf)
		require.True(t, ok)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
		require.Equal(t, len(buf), VarintLength64(v))
	}
}

func TestGetVarint32Overflow(t *testing.T) {
	var buf []byte
	buf = PutVarint64(buf, uint64(^uint32(0))+1)
	_, _, ok := GetVarint32(buf)
	require.False(t, ok)
}

func TestCRC32CMaskRoundTrip(t *testing.T) {
	crc := CRC32C([]byte("hello world"))
	masked := Mask(crc)
	require.NotEqual(t, crc, masked)
	require.Equal(t, crc, Unmask(masked))
}

func TestExtendCRC32C(t *testing.T) {
	whole := CRC32C([]byte("ab"))
	part := CRC32C([]byte("a"))
	require.Equal(t, whole, ExtendCRC32C(part, []byte("b")))
}

func TestSharedPrefixLen(t *testing.T) {
	require.Equal(t, 3, SharedPrefixLen([]byte("abcd"), []byte("abce")))
	require.Equal(t, 0, SharedPrefixLen([]byte("a"), []byte("b")))
	require.Equal(t, 2, SharedPrefixLen([]byte("ab"), []byte("ab")))
}
