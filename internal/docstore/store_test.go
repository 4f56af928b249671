package docstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cortex/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), 16)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	doc := &model.Document{Path: "/a.md", Title: "A", Content: []byte("hello world")}
	id, err := s.Insert(doc)
	require.NoError(t, err)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got.Content))
	assert.Equal(t, "/a.md", got.Path)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestInsertRejectsInvalidDocument(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(&model.Document{Path: "", Title: "A"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(model.NewDocumentID())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateBumpsUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Insert(&model.Document{Path: "/a.md", Title: "A", Content: []byte("v1")})
	require.NoError(t, err)
	first, err := s.Get(id)
	require.NoError(t, err)

	err = s.Update(id, &model.Document{Path: "/a.md", Title: "A", Content: []byte("v2")})
	require.NoError(t, err)

	second, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(second.Content))
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "CreatedAt preserved across update")
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt) || second.UpdatedAt.Equal(first.UpdatedAt))
}

func TestUpdateNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(model.NewDocumentID(), &model.Document{Path: "/a.md", Title: "A"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteThenDeleteReportsAbsent(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Insert(&model.Document{Path: "/a.md", Title: "A", Content: []byte("x")})
	require.NoError(t, err)

	removed, err := s.Delete(id)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(id)
	require.NoError(t, err)
	assert.False(t, removed, "second delete reports the document already absent")

	_, err = s.Get(id)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListAllAndExists(t *testing.T) {
	s := newTestStore(t)
	id1, err := s.Insert(&model.Document{Path: "/a.md", Title: "A", Content: []byte("a")})
	require.NoError(t, err)
	id2, err := s.Insert(&model.Document{Path: "/b.md", Title: "B", Content: []byte("b")})
	require.NoError(t, err)

	ids := s.ListAll()
	assert.ElementsMatch(t, []model.DocumentID{id1, id2}, ids)
	assert.True(t, s.Exists(id1))
	assert.False(t, s.Exists(model.NewDocumentID()))
}

func TestSyncThenReopenPreservesState(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16)
	require.NoError(t, err)

	id, err := s.Insert(&model.Document{Path: "/a.md", Title: "A", Content: []byte("hello")})
	require.NoError(t, err)
	require.NoError(t, s.Sync())
	require.NoError(t, s.Close())

	reopened, err := Open(dir, 16)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got.Content))
}

// TestCrashRecoveryReplaysUncommittedWAL simulates Scenario E: a WAL record
// durable on disk but the process never called Sync/Close. Reopening the
// store must recover the document by replaying the WAL.
func TestCrashRecoveryReplaysUncommittedWAL(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16)
	require.NoError(t, err)

	id, err := s.Insert(&model.Document{Path: "/a.md", Title: "A", Content: []byte("hello")})
	require.NoError(t, err)
	// No Sync/Close: simulate a crash immediately after the WAL append by
	// simply discarding this handle and opening a fresh one over the same
	// directory, forcing WAL replay.

	reopened, err := Open(dir, 16)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got.Content))
}

func TestCorruptedDataFileReportsCorruptedRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16)
	require.NoError(t, err)
	id, err := s.Insert(&model.Document{Path: "/a.md", Title: "A", Content: []byte("hello")})
	require.NoError(t, err)
	require.NoError(t, s.Sync())
	require.NoError(t, s.Close())

	path := documentPath(dir, id)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip a byte inside the payload region (past the fixed magic+version+
	// crc+length header) to break the CRC check without corrupting the
	// header itself.
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	reopened, err := Open(dir, 16)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Get(id)
	assert.ErrorIs(t, err, model.ErrCorrupted)
}

func TestDataFileShardedByIDPrefix(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16)
	require.NoError(t, err)
	id, err := s.Insert(&model.Document{Path: "/a.md", Title: "A", Content: []byte("hello")})
	require.NoError(t, err)
	require.NoError(t, s.Sync())

	shard := id.String()[:2]
	_, err = os.Stat(filepath.Join(dir, "documents", shard, id.String()))
	assert.NoError(t, err)
}

func TestConcurrentReadsOfDistinctDocumentsDoNotBlock(t *testing.T) {
	s := newTestStore(t)
	id1, err := s.Insert(&model.Document{Path: "/a.md", Title: "A", Content: []byte("a")})
	require.NoError(t, err)
	id2, err := s.Insert(&model.Document{Path: "/b.md", Title: "B", Content: []byte("b")})
	require.NoError(t, err)

	done := make(chan error, 2)
	go func() { _, err := s.Get(id1); done <- err }()
	go func() { _, err := s.Get(id2); done <- err }()
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}
}
