// Package memtable is the mutable, in-memory write buffer every write
// lands in before it is durable on an SST file: a skip list ordered by
// internal key, backed by a WAL so its contents survive a crash.
package memtable

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/zjs1224522500/leveldb/coding"
	"github.com/zjs1224522500/leveldb/dbformat"
	"github.com/zjs1224522500/leveldb/env"
	"github.com/zjs1224522500/leveldb/status"
	"github.com/zjs1224522500/leveldb/wal"
)

const (
	skipListMaxLevel = 18
	skipListP        = 0.5

	walFileName = "wal.log"
)

// Memtable buffers writes in a skip list ordered by internal key,
// durably logging each one to a WAL file before it becomes visible, per
// spec.md §1's WAL-then-memtable write path.
type Memtable struct {
	mu       sync.RWMutex
	skiplist *SkipList
	log      *wal.Writer
	logFile  env.WritableFile
	size     int
	lastSeq  uint64
}

// Open creates or recovers a Memtable rooted at dir: replaying wal.log if
// one already exists, then reopening it for further appends. When
// paranoidChecks is set, any corruption the WAL reader reports during
// replay fails Open outright instead of being silently skipped, per
// spec.md's recognized paranoid_checks option.
func Open(e env.Env, dir string, paranoidChecks bool) (*Memtable, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("memtable: could not create %s: %w", dir, err)
	}

	icmp := dbformat.NewInternalKeyComparator(dbformat.BytewiseComparator{})
	m := &Memtable{skiplist: New(skipListMaxLevel, skipListP, icmp)}

	logPath := filepath.Join(dir, walFileName)
	if err := m.recover(e, logPath, paranoidChecks); err != nil {
		return nil, err
	}

	logFile, err := e.NewAppendableFile(logPath)
	if err != nil {
		return nil, fmt.Errorf("memtable: could not open %s: %w", logPath, err)
	}
	size, err := e.FileSize(logPath)
	if err != nil {
		return nil, fmt.Errorf("memtable: could not stat %s: %w", logPath, err)
	}
	m.logFile = logFile
	m.log = wal.NewWriterAt(logFile, size)
	return m, nil
}

// recover replays every record in logPath (if it exists) into the skip
// list, restoring lastSeq from the highest sequence number seen. With
// paranoidChecks, a reporter is installed that turns any mid-log
// corruption the reader detects into a fatal recovery error; without it,
// corruption is swallowed the way a torn tail write (the expected result
// of a crash mid-AddRecord) already is.
func (m *Memtable) recover(e env.Env, logPath string, paranoidChecks bool) error {
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return nil
	}

	sf, err := e.NewSequentialFile(logPath)
	if err != nil {
		return fmt.Errorf("memtable: could not open %s for recovery: %w", logPath, err)
	}
	defer sf.Close()

	var corruption error
	var reporter wal.Reporter
	if paranoidChecks {
		reporter = wal.ReporterFunc(func(bytes int, reason string) {
			if corruption == nil {
				corruption = fmt.Errorf("memtable: corruption replaying %s: %s (%d bytes)", logPath, reason, bytes)
			}
		})
	}
	reader := wal.NewReader(sf, reporter, true, 0)

	var scratch []byte
	for {
		record, ok := reader.ReadRecord(scratch)
		if !ok {
			break
		}
		scratch = record

		internalKey, value, ok := decodeLogRecord(record)
		if !ok {
			continue
		}
		if _, seq, _, ok := dbformat.ParseInternalKey(internalKey); ok && seq > m.lastSeq {
			m.lastSeq = seq
		}
		m.skiplist.Set(internalKey, value)
		m.size += len(internalKey) + len(value)
	}
	return corruption
}

// encodeLogRecord frames one WAL record as varint32(len(internalKey)) ||
// internalKey || value, so a single AddRecord carries both the key (with
// its sequence/type tag already attached) and the value in one shot.
func encodeLogRecord(internalKey, value []byte) []byte {
	out := coding.PutVarint32(nil, uint32(len(internalKey)))
	out = append(out, internalKey...)
	out = append(out, value...)
	return out
}

func decodeLogRecord(record []byte) (internalKey, value []byte, ok bool) {
	n, hdr, decOK := coding.GetVarint32(record)
	if !decOK || hdr+int(n) > len(record) {
		return nil, nil, false
	}
	return record[hdr : hdr+int(n)], record[hdr+int(n):], true
}

// Set durably appends a live value for userKey and makes it visible.
func (m *Memtable) Set(userKey, value []byte) error {
	return m.apply(userKey, value, dbformat.TypeValue)
}

// Delete durably appends a deletion marker for userKey. A later Get for
// userKey returns NotFound once this record is the newest one for it,
// shadowing any older value without needing to find and erase it.
func (m *Memtable) Delete(userKey []byte) error {
	return m.apply(userKey, nil, dbformat.TypeDeletion)
}

func (m *Memtable) apply(userKey, value []byte, t dbformat.ValueType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := atomic.AddUint64(&m.lastSeq, 1)
	internalKey := dbformat.AppendInternalKey(nil, userKey, seq, t)

	if err := m.log.AddRecord(encodeLogRecord(internalKey, value)); err != nil {
		return err
	}
	m.skiplist.Set(internalKey, value)
	m.size += len(internalKey) + len(value)
	return nil
}

// Get looks up userKey, returning the most recently written value. A
// live deletion marker as the newest version reports NotFound, the same
// status a caller gets for a key that was never written.
func (m *Memtable) Get(userKey []byte) ([]byte, status.Status) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Seeking a lookup key tagged with the maximum sequence number and
	// TypeValue (which sorts before TypeDeletion at equal seq) lands on
	// the newest real entry for userKey, regardless of how many older
	// versions of it are still buffered underneath.
	lookup := dbformat.AppendInternalKey(nil, userKey, dbformat.MaxSequenceNumber, dbformat.TypeValue)
	elem := m.skiplist.Seek(lookup)
	if elem == nil {
		return nil, status.NotFoundf("memtable: key not found")
	}
	foundUserKey, _, t, ok := dbformat.ParseInternalKey(elem.Key)
	if !ok || (dbformat.BytewiseComparator{}).Compare(foundUserKey, userKey) != 0 {
		return nil, status.NotFoundf("memtable: key not found")
	}
	if t == dbformat.TypeDeletion {
		return nil, status.NotFoundf("memtable: key not found")
	}
	return elem.Value, status.OKStatus()
}

// Size returns an estimate, in bytes, of the memtable's resident data.
func (m *Memtable) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// NewIterator returns an iterator over every internal key currently
// buffered, in ascending order, for flushing to an SST file. SkipList.All
// already returns entries in InternalKeyComparator order, so no sorting
// is needed before handing them to a TableBuilder.
func (m *Memtable) NewIterator() *Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return NewIterator(m.skiplist)
}

// Close flushes and closes the WAL file backing this memtable.
func (m *Memtable) Close() error {
	if err := m.logFile.Sync(); err != nil {
		return err
	}
	return m.logFile.Close()
}
