package primaryindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cortex/internal/model"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "primary.idx"))
	require.NoError(t, err)
	return idx
}

func TestInsertLookupDelete(t *testing.T) {
	idx := newTestIndex(t)
	id := model.NewDocumentID()
	require.NoError(t, idx.Insert(id, "/a.md"))

	got, ok := idx.LookupByPath("/a.md")
	require.True(t, ok)
	assert.Equal(t, id, got)

	path, ok := idx.PathOf(id)
	require.True(t, ok)
	assert.Equal(t, "/a.md", path)

	idx.Delete(id)
	_, ok = idx.LookupByPath("/a.md")
	assert.False(t, ok)
	_, ok = idx.PathOf(id)
	assert.False(t, ok)
}

func TestInsertPathConflict(t *testing.T) {
	idx := newTestIndex(t)
	id1 := model.NewDocumentID()
	id2 := model.NewDocumentID()
	require.NoError(t, idx.Insert(id1, "/a.md"))

	err := idx.Insert(id2, "/a.md")
	assert.ErrorIs(t, err, model.ErrPathConflict)
}

func TestInsertSamePathSameIDIsUpdateNotConflict(t *testing.T) {
	idx := newTestIndex(t)
	id := model.NewDocumentID()
	require.NoError(t, idx.Insert(id, "/a.md"))
	require.NoError(t, idx.Insert(id, "/a.md"))
	assert.Equal(t, 1, idx.Len())
}

func TestReinsertingIDWithNewPathMovesIt(t *testing.T) {
	idx := newTestIndex(t)
	id := model.NewDocumentID()
	require.NoError(t, idx.Insert(id, "/old.md"))
	require.NoError(t, idx.Insert(id, "/new.md"))

	_, ok := idx.LookupByPath("/old.md")
	assert.False(t, ok, "old path mapping is removed once the id moves")
	got, ok := idx.LookupByPath("/new.md")
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.Equal(t, 1, idx.Len())
}

func TestPrefixScan(t *testing.T) {
	idx := newTestIndex(t)
	paths := []string{"/src/a.go", "/src/b.go", "/docs/readme.md"}
	for _, p := range paths {
		require.NoError(t, idx.Insert(model.NewDocumentID(), p))
	}

	results := idx.PrefixScan("/src/")
	require.Len(t, results, 2)
	assert.Equal(t, "/src/a.go", results[0].Path)
	assert.Equal(t, "/src/b.go", results[1].Path)
}

func TestListIDsInPathOrder(t *testing.T) {
	idx := newTestIndex(t)
	idB := model.NewDocumentID()
	idA := model.NewDocumentID()
	require.NoError(t, idx.Insert(idB, "/b.md"))
	require.NoError(t, idx.Insert(idA, "/a.md"))

	ids := idx.ListIDs()
	require.Len(t, ids, 2)
	assert.Equal(t, idA, ids[0])
	assert.Equal(t, idB, ids[1])
}

func TestPruneOrphans(t *testing.T) {
	idx := newTestIndex(t)
	live := model.NewDocumentID()
	orphan := model.NewDocumentID()
	require.NoError(t, idx.Insert(live, "/live.md"))
	require.NoError(t, idx.Insert(orphan, "/orphan.md"))

	removed := idx.PruneOrphans(func(id model.DocumentID) bool { return id == live })
	assert.Equal(t, []model.DocumentID{orphan}, removed)
	assert.Equal(t, 1, idx.Len())
	_, ok := idx.LookupByPath("/orphan.md")
	assert.False(t, ok)
}

func TestFlushAndReopenRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "primary.idx")
	idx, err := Open(path)
	require.NoError(t, err)
	id := model.NewDocumentID()
	require.NoError(t, idx.Insert(id, "/a.md"))
	require.NoError(t, idx.Flush())

	reopened, err := Open(path)
	require.NoError(t, err)
	got, ok := reopened.LookupByPath("/a.md")
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestOpenMissingSnapshotStartsEmpty(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "does-not-exist.idx"))
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
}
