package wal

import (
	"sync"

	"github.com/zjs1224522500/leveldb/coding"
	"github.com/zjs1224522500/leveldb/env"
)

// Writer frames logical records into one or more physical records inside
// 32 KiB blocks and appends them to a single-owner destination file.
// Concurrent use of a Writer is undefined, matching the single-owner
// contract in spec.md §5; the mutex here only protects against accidental
// concurrent calls, not to make the Writer safe to share.
type Writer struct {
	mu          sync.Mutex
	dest        env.WritableFile
	blockOffset int
	typeCRC     [5]uint32
}

// NewWriter wraps dest, a fresh file whose block offset starts at 0; use
// NewWriterAt to resume a log whose length is already known.
func NewWriter(dest env.WritableFile) *Writer {
	return newWriterAt(dest, 0)
}

// NewWriterAt resumes writing to dest whose current length is
// initialOffset, so that block-boundary accounting stays correct.
func NewWriterAt(dest env.WritableFile, initialOffset int64) *Writer {
	return newWriterAt(dest, int(initialOffset%BlockSize))
}

func newWriterAt(dest env.WritableFile, blockOffset int) *Writer {
	w := &Writer{dest: dest, blockOffset: blockOffset}
	for t := 0; t <= int(LastType); t++ {
		w.typeCRC[t] = coding.CRC32C([]byte{byte(t)})
	}
	return w
}

// AddRecord frames payload into one or more physical records and appends
// them to the destination file. An empty payload still emits exactly one
// zero-length Full record.
func (w *Writer) AddRecord(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	left := payload
	begin := true
	for {
		leftover := BlockSize - w.blockOffset
		if leftover < HeaderSize {
			if leftover > 0 {
				if err := w.dest.Append(make([]byte, leftover)); err != nil {
					return err
				}
			}
			w.blockOffset = 0
		}

		avail := BlockSize - w.blockOffset - HeaderSize
		fragLen := len(left)
		if fragLen > avail {
			fragLen = avail
		}

		end := fragLen == len(left)
		var recType RecordType
		switch {
		case begin && end:
			recType = FullType
		case begin && !end:
			recType = FirstType
		case !begin && end:
			recType = LastType
		default:
			recType = MiddleType
		}

		if err := w.emitPhysicalRecord(recType, left[:fragLen]); err != nil {
			return err
		}

		left = left[fragLen:]
		begin = false
		if len(left) == 0 {
			break
		}
	}
	return nil
}

func (w *Writer) emitPhysicalRecord(t RecordType, payload []byte) error {
	if len(payload) > MaxRecordPayload {
		panic("wal: payload too long for a single physical record")
	}
	if w.blockOffset+HeaderSize+len(payload) > BlockSize {
		panic("wal: physical record would straddle a block boundary")
	}

	crc := coding.ExtendCRC32C(w.typeCRC[t], payload)
	masked := coding.Mask(crc)

	header := make([]byte, 0, HeaderSize)
	header = coding.PutFixed32(header, masked)
	header = append(header, byte(len(payload)), byte(len(payload)>>8), byte(t))

	if err := w.dest.Append(header); err != nil {
		return err
	}
	if len(payload) > 0 {
		if err := w.dest.Append(payload); err != nil {
			return err
		}
	}
	if err := w.dest.Flush(); err != nil {
		return err
	}

	w.blockOffset += HeaderSize + len(payload)
	return nil
}
