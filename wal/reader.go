package wal

import (
	"github.com/zjs1224522500/leveldb/coding"
	"github.com/zjs1224522500/leveldb/env"
)

// Reporter receives notice of dropped/corrupt bytes encountered while
// scanning. Implementations vary between "ignore" (crash recovery, where
// a false positive is worse than silence) and "fail" (integrity
// checking, where any corruption should be visible).
type Reporter interface {
	Corruption(bytes int, reason string)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(bytes int, reason string)

func (f ReporterFunc) Corruption(bytes int, reason string) { f(bytes, reason) }

// Reader reassembles logical records from a sequential WAL file,
// tolerating corruption by skipping to the next readable record rather
// than aborting. A Reader is a single-owner, short-lived snapshot of a
// prefix of the log; concurrent use is undefined.
type Reader struct {
	src             env.SequentialFile
	reporter        Reporter
	checksum        bool
	backing         [BlockSize]byte
	buffer          []byte // the unconsumed tail of backing
	eof             bool
	lastRecordOffset int64
	endOfBufferOffset int64
	initialOffset   int64
	resyncing       bool
}

// NewReader constructs a Reader over src, which must already be
// positioned at the start of the file. initialOffset is the byte offset
// to start yielding records from (0 for a full scan); bytes before it are
// skipped without being reported as corrupt even if they turn out to be
// malformed, since a recovery scan from a known-good checkpoint should
// not flag a WAL prefix it never intends to read.
func NewReader(src env.SequentialFile, reporter Reporter, checksum bool, initialOffset int64) *Reader {
	return &Reader{
		src:           src,
		reporter:      reporter,
		checksum:      checksum,
		initialOffset: initialOffset,
		resyncing:     initialOffset > 0,
	}
}

// SkipToInitialBlock advances the source to the block containing
// initialOffset, per spec.md §4.2: a record can never start in the last
// six bytes of a block, so if the offset within its block falls in that
// dead zone, the following block is skipped too.
func (r *Reader) SkipToInitialBlock() error {
	blockStartLocation := r.initialOffset % BlockSize
	blockStart := r.initialOffset - blockStartLocation
	if blockStartLocation > BlockSize-6 {
		blockStart += BlockSize
	}
	r.endOfBufferOffset = blockStart
	if blockStart > 0 {
		if err := r.src.Skip(blockStart); err != nil {
			return err
		}
	}
	return nil
}

// ReadRecord reads the next logical record into scratch (which may be
// reused/grown and is returned as record), returning false at end of
// file. Corruption encountered along the way is reported but does not
// stop the scan; the next readable record, if any, is still returned.
func (r *Reader) ReadRecord(scratch []byte) (record []byte, ok bool) {
	if r.lastRecordOffset < r.initialOffset {
		if err := r.SkipToInitialBlock(); err != nil {
			return nil, false
		}
	}

	scratch = scratch[:0]
	inFragmentedRecord := false
	var prospectiveRecordOffset int64

	for {
		fragment, recType, physOffset := r.readPhysicalRecord()

		// Resync discipline: a reader positioned mid-file via
		// initialOffset may land inside a fragmented record it never
		// saw the start of; drop Middle fragments until a Last (or any
		// non-Middle) record re-establishes a clean boundary.
		if r.resyncing {
			if recType == middleRecord {
				continue
			}
			if recType == lastRecord {
				r.resyncing = false
				continue
			}
			r.resyncing = false
		}

		switch recType {
		case fullRecord:
			if inFragmentedRecord {
				if len(scratch) > 0 {
					r.reportCorruption(len(scratch), "partial record without end(1)")
				}
			}
			prospectiveRecordOffset = physOffset
			scratch = append(scratch[:0], fragment...)
			r.lastRecordOffset = prospectiveRecordOffset
			return scratch, true

		case firstRecord:
			if inFragmentedRecord {
				if len(scratch) > 0 {
					r.reportCorruption(len(scratch), "partial record without end(2)")
				}
			}
			prospectiveRecordOffset = physOffset
			scratch = append(scratch[:0], fragment...)
			inFragmentedRecord = true

		case middleRecord:
			if !inFragmentedRecord {
				r.reportCorruption(len(fragment), "missing start of fragmented record(1)")
			} else {
				scratch = append(scratch, fragment...)
			}

		case lastRecord:
			if !inFragmentedRecord {
				r.reportCorruption(len(fragment), "missing start of fragmented record(2)")
			} else {
				scratch = append(scratch, fragment...)
				r.lastRecordOffset = prospectiveRecordOffset
				return scratch, true
			}

		case eofRecord:
			if inFragmentedRecord {
				// The writer died mid-record; this is expected on crash
				// recovery, not corruption.
				scratch = scratch[:0]
			}
			return nil, false

		case badRecord:
			if inFragmentedRecord {
				r.reportCorruption(len(scratch), "error in middle of record")
				inFragmentedRecord = false
				scratch = scratch[:0]
			}
		}
	}
}

// LastRecordOffset returns the physical offset of the most recently
// returned record's first fragment.
func (r *Reader) LastRecordOffset() int64 { return r.lastRecordOffset }

type physicalRecordKind int

const (
	fullRecord physicalRecordKind = iota
	firstRecord
	middleRecord
	lastRecord
	eofRecord
	badRecord
)

// readPhysicalRecord parses one physical record, refilling the backing
// buffer from src as needed. The returned offset is the file offset of
// the start of the physical record's header.
func (r *Reader) readPhysicalRecord() (fragment []byte, kind physicalRecordKind, offset int64) {
	for {
		if len(r.buffer) < HeaderSize {
			if !r.eof {
				read, err := r.src.Read(r.backing[:])
				r.buffer = read
				r.endOfBufferOffset += int64(len(r.buffer))
				if err != nil || len(r.buffer) < BlockSize {
					r.eof = true
				}
				continue
			}
			// Ran out of data entirely: this is a short/empty tail, not
			// corruption, whether or not any bytes remain.
			r.buffer = nil
			return nil, eofRecord, 0
		}

		headerOffset := r.endOfBufferOffset - int64(len(r.buffer))
		header := r.buffer[:HeaderSize]
		length := int(header[4]) | int(header[5])<<8
		recType := RecordType(header[6])

		if length+HeaderSize > len(r.buffer) {
			dropSize := len(r.buffer)
			r.buffer = nil
			if !r.eof {
				r.reportCorruption(dropSize, "bad record length")
				return nil, badRecord, 0
			}
			// The writer died in the middle of writing the header or
			// the payload; treat as EOF.
			return nil, eofRecord, 0
		}

		if recType == ZeroType && length == 0 {
			r.buffer = nil
			return nil, badRecord, 0
		}

		payload := r.buffer[HeaderSize : HeaderSize+length]
		if r.checksum {
			expected := coding.Unmask(coding.Fixed32(header[:4]))
			actual := coding.CRC32C(r.buffer[6 : HeaderSize+length])
			if actual != expected {
				dropSize := len(r.buffer)
				r.buffer = nil
				r.reportCorruption(dropSize, "checksum mismatch")
				return nil, badRecord, 0
			}
		}

		r.buffer = r.buffer[HeaderSize+length:]

		if headerOffset < r.initialOffset {
			return nil, badRecord, 0
		}

		switch recType {
		case FullType:
			return payload, fullRecord, headerOffset
		case FirstType:
			return payload, firstRecord, headerOffset
		case MiddleType:
			return payload, middleRecord, headerOffset
		case LastType:
			return payload, lastRecord, headerOffset
		default:
			r.reportCorruption(length+HeaderSize, "unknown record type")
			return nil, badRecord, 0
		}
	}
}

func (r *Reader) reportCorruption(bytes int, reason string) {
	if r.reporter == nil {
		return
	}
	// A drop is only reported if it lies at or after initialOffset, so
	// that replaying from a mid-file offset does not spuriously flag
	// earlier bytes the caller never intended to read.
	if r.endOfBufferOffset-int64(bytes) >= r.initialOffset {
		r.reporter.Corruption(bytes, reason)
	}
}
