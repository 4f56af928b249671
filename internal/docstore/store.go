// Package docstore implements the Document Store: durable, checksummed,
// crash-safe persistence of document records keyed by identifier. Layout and
// write/read paths follow spec.md §4.1 -- a write-ahead log of sequenced
// records, a sharded data directory holding one canonical file per document,
// and a manifest recording the last durable WAL sequence and the live id
// set.
package docstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
	"time"

	"github.com/jward/cortex/internal/model"
)

// Store is the Document Store. It owns a single WAL-append mutex (walMu) and
// a per-document reader-writer lock sharded by id, so reads of distinct
// documents proceed fully in parallel while writes to any one document and
// every WAL append are serialized -- per spec.md §5.
type Store struct {
	dataDir string

	walMu sync.Mutex // serializes WAL appends; held briefly, never across disk I/O to the data dir
	wal   *walWriter

	mu    sync.RWMutex // guards manifest + docLocks map membership
	man   *manifest
	cache *docCache

	docLocks   map[model.DocumentID]*sync.RWMutex
	docLocksMu sync.Mutex
}

// Open opens (creating if absent) the document store rooted at dataDir,
// replaying the WAL against the manifest's last durable sequence to recover
// any operation that committed to the log but not yet to the data directory.
func Open(dataDir string, cacheSize int) (*Store, error) {
	man, err := readManifest(dataDir)
	if err != nil {
		return nil, fmt.Errorf("docstore: read manifest: %w", err)
	}

	cache, err := newDocCache(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("docstore: init cache: %w", err)
	}

	s := &Store{
		dataDir:  dataDir,
		man:      man,
		cache:    cache,
		docLocks: make(map[model.DocumentID]*sync.RWMutex),
	}

	maxSeq, err := replayAll(dataDir, func(rec walRecord) error {
		if rec.Seq <= man.LastDurableSeq {
			return nil // already applied to the data directory before the last checkpoint
		}
		return s.applyRecord(rec)
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: replay wal: %w", err)
	}
	if maxSeq > man.LastDurableSeq {
		man.LastDurableSeq = maxSeq
		if err := writeManifest(dataDir, man); err != nil {
			return nil, fmt.Errorf("docstore: persist recovered manifest: %w", err)
		}
	}

	wal, err := openWALWriter(dataDir, man.LastDurableSeq+1)
	if err != nil {
		return nil, fmt.Errorf("docstore: open wal writer: %w", err)
	}
	s.wal = wal
	return s, nil
}

// applyRecord replays one WAL record onto the data directory and manifest
// during recovery, bypassing the normal write path (the record is already
// durable in the log).
func (s *Store) applyRecord(rec walRecord) error {
	switch rec.Op {
	case walOpPut:
		var payload docPayload
		if err := gob.NewDecoder(bytes.NewReader(rec.Payload)).Decode(&payload); err != nil {
			return model.NewCorruptedRecordError("docstore", "wal", err)
		}
		doc := &model.Document{
			ID:        rec.DocID,
			Path:      payload.Path,
			Title:     payload.Title,
			Content:   payload.Content,
			Tags:      payload.Tags,
			CreatedAt: unixNanoToTime(payload.CreatedAt),
			UpdatedAt: unixNanoToTime(payload.UpdatedAt),
		}
		if err := writeDocumentFile(s.dataDir, doc); err != nil {
			return err
		}
		s.man.LiveIDs[rec.DocID] = struct{}{}
	case walOpDelete:
		if err := removeDocumentFile(s.dataDir, rec.DocID); err != nil {
			return err
		}
		delete(s.man.LiveIDs, rec.DocID)
	default:
		return fmt.Errorf("docstore: unknown wal op %d during replay", rec.Op)
	}
	return nil
}

func (s *Store) lockFor(id model.DocumentID) *sync.RWMutex {
	s.docLocksMu.Lock()
	defer s.docLocksMu.Unlock()
	l, ok := s.docLocks[id]
	if !ok {
		l = &sync.RWMutex{}
		s.docLocks[id] = l
	}
	return l
}

// appendAndApply serializes rec to the WAL, fsyncs it, applies it to the
// data directory, and updates the manifest's live-id set -- spec.md §4.1's
// five-step write path, steps 1-4 (checkpointing, step 5, happens out of
// band via Sync).
func (s *Store) appendAndApply(op walOpKind, doc *model.Document) error {
	var payloadBuf bytes.Buffer
	if op == walOpPut {
		payload := docPayload{
			Path:      doc.Path,
			Title:     doc.Title,
			Content:   doc.Content,
			Tags:      doc.Tags,
			CreatedAt: doc.CreatedAt.UnixNano(),
			UpdatedAt: doc.UpdatedAt.UnixNano(),
		}
		if err := gob.NewEncoder(&payloadBuf).Encode(payload); err != nil {
			return fmt.Errorf("docstore: encode wal payload: %w", err)
		}
	}

	s.walMu.Lock()
	seq, err := s.wal.append(op, doc.ID, payloadBuf.Bytes())
	s.walMu.Unlock()
	if err != nil {
		return model.WrapIOError("docstore", "wal append", err)
	}

	switch op {
	case walOpPut:
		if err := writeDocumentFile(s.dataDir, doc); err != nil {
			return model.WrapIOError("docstore", "write document file", err)
		}
	case walOpDelete:
		if err := removeDocumentFile(s.dataDir, doc.ID); err != nil {
			return model.WrapIOError("docstore", "remove document file", err)
		}
	}

	s.mu.Lock()
	if op == walOpPut {
		s.man.LiveIDs[doc.ID] = struct{}{}
	} else {
		delete(s.man.LiveIDs, doc.ID)
	}
	if seq > s.man.LastDurableSeq {
		s.man.LastDurableSeq = seq
	}
	s.mu.Unlock()
	return nil
}

// Insert durably persists a brand-new document. doc.ID must be unset; a
// fresh id is assigned. Returns model.ErrAlreadyExists if the id is already
// live (should not happen with a freshly generated id, but guards against
// caller misuse).
func (s *Store) Insert(doc *model.Document) (model.DocumentID, error) {
	if doc.ID.IsZero() {
		doc.ID = model.NewDocumentID()
	}
	s.mu.RLock()
	_, exists := s.man.LiveIDs[doc.ID]
	s.mu.RUnlock()
	if exists {
		return model.DocumentID{}, fmt.Errorf("document %s: %w", doc.ID, model.ErrAlreadyExists)
	}
	if err := model.ValidateDocument(doc); err != nil {
		return model.DocumentID{}, err
	}

	lock := s.lockFor(doc.ID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if err := s.appendAndApply(walOpPut, doc); err != nil {
		return model.DocumentID{}, err
	}
	s.cache.put(doc)
	return doc.ID, nil
}

// Get returns the document for id, reading through the cache to the data
// file on a miss. A CorruptedRecordError is returned verbatim (not wrapped
// further) so callers can distinguish it from NotFound.
func (s *Store) Get(id model.DocumentID) (*model.Document, error) {
	lock := s.lockFor(id)
	lock.RLock()
	defer lock.RUnlock()

	if d, ok := s.cache.get(id); ok {
		return d, nil
	}

	s.mu.RLock()
	_, live := s.man.LiveIDs[id]
	s.mu.RUnlock()
	if !live {
		return nil, fmt.Errorf("document %s: %w", id, model.ErrNotFound)
	}

	doc, err := readDocumentFile(s.dataDir, id)
	if err != nil {
		return nil, err
	}
	s.cache.put(doc)
	return doc, nil
}

// Update replaces the document at id with doc's path/title/content/tags,
// logically a delete-then-insert applied as one transactional WAL record.
// CreatedAt is preserved from the existing record; UpdatedAt is refreshed.
func (s *Store) Update(id model.DocumentID, doc *model.Document) error {
	if err := model.ValidateDocument(doc); err != nil {
		return err
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	_, live := s.man.LiveIDs[id]
	s.mu.RUnlock()
	if !live {
		return fmt.Errorf("document %s: %w", id, model.ErrNotFound)
	}

	existing, err := s.getLocked(id)
	if err != nil {
		return err
	}

	doc.ID = id
	doc.CreatedAt = existing.CreatedAt
	doc.UpdatedAt = time.Now().UTC()

	if err := s.appendAndApply(walOpPut, doc); err != nil {
		return err
	}
	s.cache.put(doc)
	return nil
}

// getLocked reads id's current record assuming the caller already holds
// id's per-document lock.
func (s *Store) getLocked(id model.DocumentID) (*model.Document, error) {
	if d, ok := s.cache.get(id); ok {
		return d, nil
	}
	return readDocumentFile(s.dataDir, id)
}

// Delete removes the document at id. It reports whether a document was
// actually removed (false, nil if id was already absent).
func (s *Store) Delete(id model.DocumentID) (bool, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	_, live := s.man.LiveIDs[id]
	s.mu.RUnlock()
	if !live {
		return false, nil
	}

	if err := s.appendAndApply(walOpDelete, &model.Document{ID: id}); err != nil {
		return false, err
	}
	s.cache.invalidate(id)
	return true, nil
}

// ListAll returns every live document id. Callers wanting full records
// should pair this with Get; ListAll itself avoids loading content into
// memory for ids the caller may not need.
func (s *Store) ListAll() []model.DocumentID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]model.DocumentID, 0, len(s.man.LiveIDs))
	for id := range s.man.LiveIDs {
		ids = append(ids, id)
	}
	return ids
}

// Exists reports whether id is currently live, without the cost of loading
// its content.
func (s *Store) Exists(id model.DocumentID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.man.LiveIDs[id]
	return ok
}

// Sync is the durability barrier: it persists the manifest reflecting the
// current live-id set and last durable sequence, then checkpoints the WAL by
// discarding sealed segments now that the data directory is known durable.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeManifest(s.dataDir, s.man); err != nil {
		return model.WrapIOError("docstore", "write manifest", err)
	}
	s.walMu.Lock()
	err := s.wal.checkpoint()
	s.walMu.Unlock()
	if err != nil {
		return model.WrapIOError("docstore", "wal checkpoint", err)
	}
	return nil
}

// Close flushes durable state and releases the WAL file handle.
func (s *Store) Close() error {
	if err := s.Sync(); err != nil {
		return err
	}
	s.walMu.Lock()
	defer s.walMu.Unlock()
	return s.wal.close()
}
