// Package primaryindex implements the Primary Index: an ordered mapping from
// document path to document id, plus the reverse direction, per spec.md
// §4.2. The in-memory structure is a B-tree (github.com/google/btree) kept
// authoritative between flushes; the on-disk file is a length-prefixed
// record snapshot rewritten atomically.
package primaryindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/google/btree"
	"github.com/natefinch/atomic"

	"github.com/jward/cortex/internal/model"
)

const (
	snapshotMagic   = "CPRI"
	snapshotVersion = uint16(1)
)

type entry struct {
	path string
	id   model.DocumentID
}

func lessEntry(a, b entry) bool { return a.path < b.path }

// Index is the Primary Index. A single reader-writer lock guards both the
// B-tree and the reverse map, matching spec.md §5's "one reader-writer lock
// at the index level" rule.
type Index struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[entry]
	byID   map[model.DocumentID]string
	path   string // snapshot file path
	degree int
}

// Open loads the index snapshot at snapshotPath, or starts empty if none
// exists yet.
func Open(snapshotPath string) (*Index, error) {
	idx := &Index{
		tree:   btree.NewG(32, lessEntry),
		byID:   make(map[model.DocumentID]string),
		path:   snapshotPath,
		degree: 32,
	}
	entries, err := readSnapshot(snapshotPath)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		idx.tree.ReplaceOrInsert(e)
		idx.byID[e.id] = e.path
	}
	return idx, nil
}

// Insert records path -> id. It fails with model.ErrPathConflict if path is
// already mapped to a different live id.
func (idx *Index) Insert(id model.DocumentID, path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.tree.Get(entry{path: path}); ok && existing.id != id {
		return fmt.Errorf("path %q: %w", path, model.ErrPathConflict)
	}
	if oldPath, ok := idx.byID[id]; ok && oldPath != path {
		idx.tree.Delete(entry{path: oldPath})
	}
	idx.tree.ReplaceOrInsert(entry{path: path, id: id})
	idx.byID[id] = path
	return nil
}

// Delete removes id (and its path mapping) from the index. It is a no-op if
// id is not present.
func (idx *Index) Delete(id model.DocumentID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	path, ok := idx.byID[id]
	if !ok {
		return
	}
	idx.tree.Delete(entry{path: path})
	delete(idx.byID, id)
}

// LookupByPath returns the id mapped to path, if any.
func (idx *Index) LookupByPath(path string) (model.DocumentID, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.tree.Get(entry{path: path})
	return e.id, ok
}

// PathOf returns the path mapped to id, if any -- the reverse direction.
func (idx *Index) PathOf(id model.DocumentID) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.byID[id]
	return p, ok
}

// PrefixScan returns every (path, id) pair whose path has the given prefix,
// in path order.
func (idx *Index) PrefixScan(prefix string) []PathID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []PathID
	pivot := entry{path: prefix}
	idx.tree.AscendGreaterOrEqual(pivot, func(e entry) bool {
		if !hasPrefix(e.path, prefix) {
			return false
		}
		out = append(out, PathID{Path: e.path, ID: e.id})
		return true
	})
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// PathID is one (path, id) pair returned by PrefixScan.
type PathID struct {
	Path string
	ID   model.DocumentID
}

// ListIDs returns every indexed document id, in path order.
func (idx *Index) ListIDs() []model.DocumentID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := make([]model.DocumentID, 0, idx.tree.Len())
	idx.tree.Ascend(func(e entry) bool {
		ids = append(ids, e.id)
		return true
	})
	return ids
}

// Len reports the number of indexed paths.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// PruneOrphans removes every entry whose id is not reported live by isLive,
// returning the removed ids -- spec.md §4.2's "orphans discovered at startup
// are logged and removed".
func (idx *Index) PruneOrphans(isLive func(model.DocumentID) bool) []model.DocumentID {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var orphans []model.DocumentID
	for id, path := range idx.byID {
		if !isLive(id) {
			orphans = append(orphans, id)
			idx.tree.Delete(entry{path: path})
			delete(idx.byID, id)
		}
	}
	return orphans
}

// Flush rewrites the snapshot file atomically from the current in-memory
// state.
func (idx *Index) Flush() error {
	idx.mu.RLock()
	entries := make([]entry, 0, idx.tree.Len())
	idx.tree.Ascend(func(e entry) bool {
		entries = append(entries, e)
		return true
	})
	idx.mu.RUnlock()
	return writeSnapshot(idx.path, entries)
}

func writeSnapshot(path string, entries []entry) error {
	buf := &bytes.Buffer{}
	buf.WriteString(snapshotMagic)
	writeU16(buf, snapshotVersion)
	writeU32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf.Write(e.id[:])
		writeU32(buf, uint32(len(e.path)))
		buf.WriteString(e.path)
	}
	return atomic.WriteFile(path, bytes.NewReader(buf.Bytes()))
}

func readSnapshot(path string) ([]entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("primaryindex: read snapshot: %w", err)
	}
	r := bytes.NewReader(data)
	magic := make([]byte, 4)
	if _, err := r.Read(magic); err != nil || string(magic) != snapshotMagic {
		return nil, model.NewCorruptedRecordError("primaryindex", path, fmt.Errorf("bad magic"))
	}
	version, err := readU16(r)
	if err != nil {
		return nil, model.NewCorruptedRecordError("primaryindex", path, err)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("primaryindex: unsupported schema version %d", version)
	}
	count, err := readU32(r)
	if err != nil {
		return nil, model.NewCorruptedRecordError("primaryindex", path, err)
	}
	entries := make([]entry, 0, count)
	for i := uint32(0); i < count; i++ {
		var id model.DocumentID
		if _, err := r.Read(id[:]); err != nil {
			return nil, model.NewCorruptedRecordError("primaryindex", path, err)
		}
		plen, err := readU32(r)
		if err != nil {
			return nil, model.NewCorruptedRecordError("primaryindex", path, err)
		}
		pbuf := make([]byte, plen)
		if _, err := r.Read(pbuf); err != nil {
			return nil, model.NewCorruptedRecordError("primaryindex", path, err)
		}
		entries = append(entries, entry{path: string(pbuf), id: id})
	}
	return entries, nil
}

func writeU16(w *bytes.Buffer, v uint16) { var b [2]byte; binary.BigEndian.PutUint16(b[:], v); w.Write(b[:]) }
func writeU32(w *bytes.Buffer, v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); w.Write(b[:]) }

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
