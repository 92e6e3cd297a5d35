package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjs1224522500/leveldb/coding"
	"github.com/zjs1224522500/leveldb/env"
)

// encodeRawRecord builds one physical record exactly as emitPhysicalRecord
// does, for tests that need to control the raw byte stream directly
// instead of going through a Writer's block-offset bookkeeping.
func encodeRawRecord(t RecordType, payload []byte) []byte {
	crc := coding.ExtendCRC32C(coding.CRC32C([]byte{byte(t)}), payload)
	header := coding.PutFixed32(nil, coding.Mask(crc))
	header = append(header, byte(len(payload)), byte(len(payload)>>8), byte(t))
	return append(header, payload...)
}

func TestWriterReaderRoundTrip(t *testing.T) {
	e := env.Default()
	path := filepath.Join(t.TempDir(), "log")

	wf, err := e.NewWritableFile(path)
	require.NoError(t, err)
	w := NewWriter(wf)

	records := [][]byte{
		[]byte("short"),
		{},
		make([]byte, BlockSize*3+17), // spans several blocks
	}
	for i := range records[2] {
		records[2][i] = byte(i)
	}
	for _, r := range records {
		require.NoError(t, w.AddRecord(r))
	}
	require.NoError(t, wf.Close())

	sf, err := e.NewSequentialFile(path)
	require.NoError(t, err)
	defer sf.Close()

	r := NewReader(sf, nil, true, 0)
	var scratch []byte
	for i, want := range records {
		got, ok := r.ReadRecord(scratch)
		require.True(t, ok, "record %d", i)
		require.Equal(t, want, got)
		scratch = got
	}
	_, ok := r.ReadRecord(scratch)
	require.False(t, ok)
}

func TestReaderReportsChecksumCorruption(t *testing.T) {
	e := env.Default()
	path := filepath.Join(t.TempDir(), "log")

	wf, err := e.NewWritableFile(path)
	require.NoError(t, err)
	w := NewWriter(wf)
	require.NoError(t, w.AddRecord([]byte("hello world")))
	require.NoError(t, wf.Close())

	// Flip a bit inside the payload so the checksum no longer matches.
	rf, err := e.NewRandomAccessFile(path)
	require.NoError(t, err)
	buf, err := rf.ReadAt(0, HeaderSize+11, make([]byte, HeaderSize+11))
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	buf[HeaderSize] ^= 0xff
	wf2, err := e.NewWritableFile(path)
	require.NoError(t, err)
	require.NoError(t, wf2.Append(buf))
	require.NoError(t, wf2.Close())

	sf, err := e.NewSequentialFile(path)
	require.NoError(t, err)
	defer sf.Close()

	var drops int
	reporter := ReporterFunc(func(bytes int, reason string) { drops++ })
	r := NewReader(sf, reporter, true, 0)
	_, ok := r.ReadRecord(nil)
	require.False(t, ok)
	require.Equal(t, 1, drops)
}

// TestWriterForcesSixByteTrailerPadding sizes a first record so that
// exactly 6 bytes remain in the block once it's written — too few to
// hold another header — forcing AddRecord's padding branch to zero-fill
// the trailer and start the next record in a fresh block. Both records
// must still round-trip with no corruption reported.
func TestWriterForcesSixByteTrailerPadding(t *testing.T) {
	e := env.Default()
	path := filepath.Join(t.TempDir(), "log")

	wf, err := e.NewWritableFile(path)
	require.NoError(t, err)
	w := NewWriter(wf)

	first := make([]byte, BlockSize-HeaderSize-6)
	for i := range first {
		first[i] = byte(i)
	}
	require.NoError(t, w.AddRecord(first))
	require.Equal(t, BlockSize-6, w.blockOffset)

	require.NoError(t, w.AddRecord([]byte("bar")))
	require.NoError(t, wf.Close())

	sf, err := e.NewSequentialFile(path)
	require.NoError(t, err)
	defer sf.Close()

	var drops int
	reporter := ReporterFunc(func(bytes int, reason string) { drops++ })
	r := NewReader(sf, reporter, true, 0)

	got, ok := r.ReadRecord(nil)
	require.True(t, ok)
	require.Equal(t, first, got)

	got, ok = r.ReadRecord(got)
	require.True(t, ok)
	require.Equal(t, []byte("bar"), got)

	_, ok = r.ReadRecord(got)
	require.False(t, ok)
	require.Equal(t, 0, drops)
}

// TestReaderToleratesEmbeddedZeroTail builds the raw file bytes by hand
// rather than through a Writer: one record sized to land exactly 6
// bytes short of the block boundary, 6 zero bytes appended manually to
// fill out the trailer, then a second record opening the next block —
// the write-"x"-pad-6-zeros-write-"y" shape, read back and confirmed to
// report no corruption.
func TestReaderToleratesEmbeddedZeroTail(t *testing.T) {
	e := env.Default()
	path := filepath.Join(t.TempDir(), "log")

	x := make([]byte, BlockSize-HeaderSize-6)
	for i := range x {
		x[i] = byte(i)
	}

	var raw []byte
	raw = append(raw, encodeRawRecord(FullType, x)...)
	raw = append(raw, make([]byte, 6)...) // manually-appended trailer padding
	raw = append(raw, encodeRawRecord(FullType, []byte("y"))...)

	wf, err := e.NewWritableFile(path)
	require.NoError(t, err)
	require.NoError(t, wf.Append(raw))
	require.NoError(t, wf.Close())

	sf, err := e.NewSequentialFile(path)
	require.NoError(t, err)
	defer sf.Close()

	var drops int
	reporter := ReporterFunc(func(bytes int, reason string) { drops++ })
	r := NewReader(sf, reporter, true, 0)

	got, ok := r.ReadRecord(nil)
	require.True(t, ok)
	require.Equal(t, x, got)

	got, ok = r.ReadRecord(got)
	require.True(t, ok)
	require.Equal(t, []byte("y"), got)

	_, ok = r.ReadRecord(got)
	require.False(t, ok)
	require.Equal(t, 0, drops, "a zero-filled trailer must never be reported as corruption")
}

// TestReaderTreatsHeaderOnlyTailAsEOF appends a header whose declared
// length claims more payload than actually follows it — the shape left
// behind by a crash mid-AddRecord — and confirms the reader reports
// plain EOF, not corruption.
func TestReaderTreatsHeaderOnlyTailAsEOF(t *testing.T) {
	e := env.Default()
	path := filepath.Join(t.TempDir(), "log")

	full := encodeRawRecord(FullType, []byte("complete"))
	torn := encodeRawRecord(FullType, []byte("this payload never made it to disk"))
	torn = torn[:HeaderSize] // header only, no payload bytes at all

	wf, err := e.NewWritableFile(path)
	require.NoError(t, err)
	require.NoError(t, wf.Append(append(full, torn...)))
	require.NoError(t, wf.Close())

	sf, err := e.NewSequentialFile(path)
	require.NoError(t, err)
	defer sf.Close()

	var drops int
	reporter := ReporterFunc(func(bytes int, reason string) { drops++ })
	r := NewReader(sf, reporter, true, 0)

	got, ok := r.ReadRecord(nil)
	require.True(t, ok)
	require.Equal(t, []byte("complete"), got)

	_, ok = r.ReadRecord(got)
	require.False(t, ok)
	require.Equal(t, 0, drops, "a torn tail record must read as EOF, not corruption")
}

// TestReaderTreatsTruncatedFileAsEOF writes two good records, then
// truncates the file a few bytes short of the second one's end — the
// shape left behind by a crash mid-write — and confirms the first
// record is still returned and the truncated second is silent EOF.
func TestReaderTreatsTruncatedFileAsEOF(t *testing.T) {
	e := env.Default()
	path := filepath.Join(t.TempDir(), "log")

	wf, err := e.NewWritableFile(path)
	require.NoError(t, err)
	w := NewWriter(wf)
	require.NoError(t, w.AddRecord([]byte("complete record")))
	require.NoError(t, w.AddRecord([]byte("record truncated before it lands")))
	require.NoError(t, wf.Close())

	size, err := e.FileSize(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, size-3))

	sf, err := e.NewSequentialFile(path)
	require.NoError(t, err)
	defer sf.Close()

	var drops int
	reporter := ReporterFunc(func(bytes int, reason string) { drops++ })
	r := NewReader(sf, reporter, true, 0)

	got, ok := r.ReadRecord(nil)
	require.True(t, ok)
	require.Equal(t, []byte("complete record"), got)

	_, ok = r.ReadRecord(got)
	require.False(t, ok)
	require.Equal(t, 0, drops, "a truncated tail record must read as EOF, not corruption")
}
