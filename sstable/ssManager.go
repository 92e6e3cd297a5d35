package sstable

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/zjs1224522500/leveldb/dbformat"
	"github.com/zjs1224522500/leveldb/env"
	"github.com/zjs1224522500/leveldb/status"
)

// Manager owns the on-disk set of SST files, organized into levels the
// way spec.md §5 describes informally: level 0 receives freshly flushed
// memtables, and any level holding two or more files is compacted
// pairwise into the next one. It persists that layout through a
// VersionEdit-encoded manifest rather than the ad hoc level-count binary
// format a version built directly against raw file counts would use,
// reusing dbformat's tagged-field codec for real instead of leaving it
// unwired.
type Manager struct {
	mu     sync.RWMutex
	env    env.Env
	opts   Options
	levels [][]*Table
	dir    string
	cache  *Cache
}

func createPath(dataPath string) error {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

const manifestFileName = "MANIFEST"

// writeManifestFile persists the current level/file layout as a single
// VersionEdit record holding one AddFile per resident table, written
// without any framing (the manifest is rewritten wholesale on Close, so
// it holds exactly one record).
func (m *Manager) writeManifestFile() error {
	manifestPath := filepath.Join(m.dir, manifestFileName)
	wf, err := m.env.NewWritableFile(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to create manifest file: %w", err)
	}
	defer wf.Close()

	var edit dbformat.VersionEdit
	for level, tables := range m.levels {
		for i, t := range tables {
			smallest, largest := tableKeyRange(t)
			fileSize := t.footer.IndexHandle.Offset + t.footer.IndexHandle.Size + blockTrailerSize + footerEncodedLength
			edit.AddFile(level, uint64(i), fileSize, smallest, largest)
		}
	}
	encoded := edit.EncodeTo(nil)
	return wf.Append(encoded)
}

func tableKeyRange(t *Table) (smallest, largest []byte) {
	it := t.NewIterator()
	defer it.Close()
	it.SeekToFirst()
	if it.Valid() {
		smallest = append([]byte(nil), it.Key()...)
	}
	for it.Valid() {
		largest = append([]byte(nil), it.Key()...)
		it.Next()
	}
	return smallest, largest
}

func (m *Manager) openTable(fullPath string) (*Table, error) {
	size, err := m.env.FileSize(fullPath)
	if err != nil {
		return nil, err
	}
	rf, err := m.env.NewRandomAccessFile(fullPath)
	if err != nil {
		return nil, err
	}
	t, st := Open(m.opts, rf, size)
	if !st.Ok() {
		rf.Close()
		return nil, st
	}
	if m.cache != nil {
		t.SetCache(m.cache, m.cache.NewId())
	}
	return t, nil
}

// recover rebuilds the level layout by scanning <level>.<seq>.sst files
// in the data directory. The manifest written on Close is not read here:
// the files themselves are authoritative, so a missing or stale manifest
// never affects recovery.
func (m *Manager) recover() ([][]*Table, error) {
	files, err := os.ReadDir(m.dir)
	if err != nil {
		return [][]*Table{{}}, nil
	}

	levelFiles := make(map[int][]string)
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sst") {
			continue
		}
		var level, sequence int
		n, err := fmt.Sscanf(file.Name(), "%d.%d.sst", &level, &sequence)
		if n != 2 || err != nil {
			log.Printf("Warning: ignoring file with invalid format: %s", file.Name())
			continue
		}
		levelFiles[level] = append(levelFiles[level], file.Name())
	}

	maxLevel := 0
	for level := range levelFiles {
		if level > maxLevel {
			maxLevel = level
		}
	}

	levels := make([][]*Table, maxLevel+1)
	for level := 0; level <= maxLevel; level++ {
		names := levelFiles[level]
		sort.Strings(names)

		tables := make([]*Table, 0, len(names))
		for _, name := range names {
			t, err := m.openTable(filepath.Join(m.dir, name))
			if err != nil {
				log.Printf("Warning: failed to open SSTable %s: %v", name, err)
				continue
			}
			tables = append(tables, t)
		}
		levels[level] = tables
	}
	return levels, nil
}

// NewManager opens (or initializes) the SST file set rooted at dir.
func NewManager(dir string, opts Options) (*Manager, error) {
	if err := createPath(dir); err != nil {
		return nil, err
	}

	m := &Manager{
		env:   env.Default(),
		opts:  opts,
		dir:   dir,
		cache: NewCache(8 * 1024 * 1024),
	}

	levels, err := m.recover()
	if err != nil {
		return nil, err
	}
	m.levels = levels
	m.logLayout()
	return m, nil
}

func (m *Manager) logLayout() {
	log.Printf("sstable: layout: %d levels", len(m.levels))
	for i, level := range m.levels {
		log.Printf("sstable: level %d: %d tables", i, len(level))
	}
}

// Get looks up an internal key, scanning levels newest (0) to oldest and,
// within a level, the most recently added table first — the same
// recency-first search order a memtable-backed engine uses once it falls
// through to disk.
func (m *Manager) Get(key []byte) ([]byte, status.Status) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for levelIdx, level := range m.levels {
		for i := len(level) - 1; i >= 0; i-- {
			value, st := level[i].Get(key)
			if st.Ok() {
				return value, status.OKStatus()
			}
			if !st.IsNotFound() {
				log.Printf("sstable: error searching level %d table %d: %v", levelIdx, i, st)
			}
		}
	}
	return nil, status.NotFoundf("sstable: key not found")
}

// NextLevel0Path returns the path a freshly flushed memtable should be
// written to, following the same "<level>.<seq>.sst" naming recover scans
// for.
func (m *Manager) NextLevel0Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.levels) == 0 {
		m.levels = append(m.levels, nil)
	}
	return filepath.Join(m.dir, fmt.Sprintf("0.%d.sst", len(m.levels[0])))
}

// AddTable installs a freshly flushed table at level 0 and triggers any
// compaction the new arrival makes necessary.
func (m *Manager) AddTable(t *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.levels) == 0 {
		m.levels = append(m.levels, nil)
	}
	if m.cache != nil {
		t.SetCache(m.cache, m.cache.NewId())
	}
	m.levels[0] = append(m.levels[0], t)

	if err := m.fixLevels(); err != nil {
		return fmt.Errorf("compaction failed: %w", err)
	}
	m.logLayout()
	return nil
}

func (m *Manager) fixLevels() error {
	for levelIdx := 0; levelIdx < len(m.levels); levelIdx++ {
		level := m.levels[levelIdx]
		if len(level) < 2 {
			continue
		}

		log.Printf("sstable: compacting level %d -> level %d", levelIdx, levelIdx+1)
		if len(m.levels) == levelIdx+1 {
			m.levels = append(m.levels, nil)
		}
		nextLevel := levelIdx + 1
		newFilename := filepath.Join(m.dir, fmt.Sprintf("%d.%d.sst", nextLevel, len(m.levels[nextLevel])))

		compacted, err := m.compactTables(level, newFilename, nextLevel == len(m.levels)-1)
		if err != nil {
			return fmt.Errorf("failed to compact level %d: %w", levelIdx, err)
		}
		if compacted != nil {
			m.levels[nextLevel] = append(m.levels[nextLevel], compacted)
		}

		for _, old := range level {
			old.Close()
		}
		m.levels[levelIdx] = nil
	}
	return nil
}

func (m *Manager) compactTables(tables []*Table, outputPath string, dropTombstones bool) (*Table, error) {
	if len(tables) == 0 {
		return nil, nil
	}
	if len(tables) == 1 {
		return tables[0], nil
	}

	merged := tables[0]
	lastTmp := ""
	for i := 1; i < len(tables); i++ {
		if merged == nil {
			// Everything merged so far compacted away to nothing (every
			// entry was a dropped tombstone); carry the next table
			// forward untouched rather than merging against an empty
			// input.
			merged = tables[i]
			continue
		}
		tmpOutput := fmt.Sprintf("%s.tmp.%d", outputPath, i)
		next, st := compact(m.env, m.opts, tmpOutput, merged, tables[i], dropTombstones)
		if !st.Ok() {
			return nil, st
		}
		merged = next
		lastTmp = tmpOutput
	}
	if merged == nil {
		return nil, nil
	}
	if lastTmp == "" {
		// merged still points at one of the original input tables (every
		// actual merge along the way dropped to nothing). The caller is
		// about to Close every table in the input set, so merged can't be
		// handed back as-is; rewrite it through the compactor against
		// itself to produce an independent file at outputPath.
		selfTmp := outputPath + ".tmp.self"
		next, st := compact(m.env, m.opts, selfTmp, merged, merged, dropTombstones)
		if !st.Ok() {
			return nil, st
		}
		if next == nil {
			return nil, nil
		}
		next.Close()
		lastTmp = selfTmp
	}

	if err := os.Rename(lastTmp, outputPath); err != nil {
		return nil, fmt.Errorf("failed to rename compacted SSTable: %w", err)
	}
	return m.openTable(outputPath)
}

// Close persists the manifest, then closes every resident table.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	if err := m.writeManifestFile(); err != nil {
		firstErr = err
	}
	for _, level := range m.levels {
		for _, t := range level {
			if err := t.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	m.levels = nil
	return firstErr
}
