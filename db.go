package main

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/zjs1224522500/leveldb/dbformat"
	"github.com/zjs1224522500/leveldb/env"
	"github.com/zjs1224522500/leveldb/memtable"
	"github.com/zjs1224522500/leveldb/sstable"
	"github.com/zjs1224522500/leveldb/sstable/filter"
)

// Engine glues the memtable and the on-disk SST layer together behind a
// plain string-keyed Get/Set/Delete surface: every write lands in the
// memtable first, and once it grows past maxMemtableSize it is flushed to
// a new level-0 table and replaced with a fresh, empty one.
type Engine struct {
	env  env.Env
	opts sstable.Options

	memtable        *memtable.Memtable
	sstableManager  *sstable.Manager
	dir             string
	lock            *sync.Mutex
	maxMemtableSize int
}

// NewEngine opens (or recovers) an Engine rooted at dir.
func NewEngine(dir string) (*Engine, error) {
	db := &Engine{
		env:             env.Default(),
		dir:             dir,
		lock:            &sync.Mutex{},
		maxMemtableSize: 1024 * 1024, // 1MB default
		opts: sstable.Options{
			Comparator:           dbformat.BytewiseComparator{},
			FilterPolicy:         filter.NewBloomPolicy(10),
			BlockSize:            4096,
			BlockRestartInterval: 16,
			Compression:          sstable.SnappyCompression,
			VerifyChecksums:      true,
			FillCache:            true,
			CreateIfMissing:      true,
			ParanoidChecks:       false,
		},
	}

	log.Printf("setup data path: %s...\n", db.dir)

	if err := db.checkOpenPreconditions(); err != nil {
		return nil, err
	}

	var err error
	db.memtable, err = memtable.Open(db.env, dir, db.opts.ParanoidChecks)
	if err != nil {
		log.Printf("setup failed: %v", err)
		return nil, err
	}

	db.sstableManager, err = sstable.NewManager(dir, db.opts)
	if err != nil {
		log.Printf("setup failed: %v", err)
		return nil, err
	}

	log.Println("setup done")
	return db, nil
}

// checkOpenPreconditions enforces Options.CreateIfMissing and
// Options.ErrorIfExists against db.dir, before memtable/Manager recovery
// ever touches the filesystem, mirroring leveldb's DB::Open preamble.
func (db *Engine) checkOpenPreconditions() error {
	_, err := os.Stat(db.dir)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if exists && db.opts.ErrorIfExists {
		return fmt.Errorf("leveldb: database %q already exists", db.dir)
	}
	if !exists && !db.opts.CreateIfMissing {
		return fmt.Errorf("leveldb: database %q does not exist (create_if_missing is false)", db.dir)
	}
	return nil
}

// Close flushes the active memtable's WAL and persists the SST manifest.
func (db *Engine) Close() error {
	var firstErr error
	if err := db.memtable.Close(); err != nil {
		firstErr = err
	}
	if err := db.sstableManager.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// internalLookupKey tags userKey with the maximum sequence number so a
// Get against the SST layer, like the memtable's own Get, lands on the
// newest version of the key regardless of how many older ones are still
// resident.
func internalLookupKey(userKey string) []byte {
	return dbformat.AppendInternalKey(nil, []byte(userKey), dbformat.MaxSequenceNumber, dbformat.TypeValue)
}

func (db *Engine) Get(key string) (string, error) {
	db.lock.Lock()
	defer db.lock.Unlock()

	value, st := db.memtable.Get([]byte(key))
	if st.Ok() {
		return string(value), nil
	}
	if !st.IsNotFound() {
		return "", st
	}

	value, st = db.sstableManager.Get(internalLookupKey(key))
	if st.Ok() {
		return string(value), nil
	}
	return "", fmt.Errorf("key does not exist")
}

func (db *Engine) Set(key string, val string) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if err := db.memtable.Set([]byte(key), []byte(val)); err != nil {
		return err
	}
	return db.maybeFlush()
}

func (db *Engine) Delete(key string) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if err := db.memtable.Delete([]byte(key)); err != nil {
		return err
	}
	return db.maybeFlush()
}

func (db *Engine) maybeFlush() error {
	if db.memtable.Size() < db.maxMemtableSize {
		return nil
	}
	log.Println("full table")
	log.Println("loading to disk...")
	if err := db.flushToDisk(); err != nil {
		return err
	}

	old := db.memtable
	next, err := memtable.Open(db.env, db.dir, db.opts.ParanoidChecks)
	if err != nil {
		return err
	}
	db.memtable = next
	return old.Close()
}

// flushToDisk drains the active memtable's skip list through a
// TableBuilder and installs the resulting file at level 0.
func (db *Engine) flushToDisk() error {
	it := db.memtable.NewIterator()
	defer it.Close()
	it.SeekToFirst()
	if !it.Valid() {
		return nil
	}

	path := db.sstableManager.NextLevel0Path()
	wf, err := db.env.NewWritableFile(path)
	if err != nil {
		return err
	}

	builder := sstable.NewTableBuilder(db.opts, wf)
	for ; it.Valid(); it.Next() {
		builder.Add(it.Key(), it.Value())
	}
	if st := builder.Finish(); !st.Ok() {
		wf.Close()
		return st
	}
	if err := wf.Sync(); err != nil {
		return err
	}
	if err := wf.Close(); err != nil {
		return err
	}

	size, err := db.env.FileSize(path)
	if err != nil {
		return err
	}
	rf, err := db.env.NewRandomAccessFile(path)
	if err != nil {
		return err
	}
	table, st := sstable.Open(db.opts, rf, size)
	if !st.Ok() {
		rf.Close()
		return st
	}
	return db.sstableManager.AddTable(table)
}
