package trigram

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cortex/internal/model"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(t.TempDir(), 0.25)
	require.NoError(t, err)
	return idx
}

func TestQueryFindsIndexedSubstring(t *testing.T) {
	idx := newTestIndex(t)
	id := model.NewDocumentID()
	idx.IndexDocument(id, []byte("hello world"))

	results, err := idx.Query("hello")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
}

func TestQueryMissesAbsentSubstring(t *testing.T) {
	idx := newTestIndex(t)
	idx.IndexDocument(model.NewDocumentID(), []byte("hello world"))

	results, err := idx.Query("goodbye")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryAcrossMultipleDocumentsRanksByPositionalMatch(t *testing.T) {
	idx := newTestIndex(t)
	idOne := model.NewDocumentID()
	idTwo := model.NewDocumentID()
	idx.IndexDocument(idOne, []byte("needle"))
	idx.IndexDocument(idTwo, []byte("needle needle"))

	results, err := idx.Query("needle")
	require.NoError(t, err)
	require.Len(t, results, 2)
	// idTwo contains two occurrences, so it scores higher and ranks first.
	assert.Equal(t, idTwo, results[0].ID)
	assert.Equal(t, idOne, results[1].ID)
}

func TestDeleteRemovesDocumentFromQuery(t *testing.T) {
	idx := newTestIndex(t)
	id := idDoc()
	idx.IndexDocument(id, []byte("hello world"))
	idx.RemoveDocument(id)

	results, err := idx.Query("hello")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func idDoc() model.DocumentID { return model.NewDocumentID() }

func TestWildcardReturnsAllLiveDocuments(t *testing.T) {
	idx := newTestIndex(t)
	id1 := model.NewDocumentID()
	id2 := model.NewDocumentID()
	idx.IndexDocument(id1, []byte("aaa"))
	idx.IndexDocument(id2, []byte("bbb"))

	results, err := idx.Query("*")
	require.NoError(t, err)
	var ids []model.DocumentID
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []model.DocumentID{id1, id2}, ids)
}

func TestShortQueryDegradesToScan(t *testing.T) {
	idx := newTestIndex(t)
	id := model.NewDocumentID()
	idx.IndexDocument(id, []byte("xy hello"))

	results, err := idx.Query("xy")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
}

// TestQuerySatisfiesScanEquivalence is the P5 testable property: for a
// random-ish corpus, content_search(term) must match exactly what a linear
// scan for term across all documents would find, once positions are
// verified (queries of length >= 3).
func TestQuerySatisfiesScanEquivalence(t *testing.T) {
	idx := newTestIndex(t)
	docs := map[model.DocumentID]string{
		model.NewDocumentID(): "the quick brown fox",
		model.NewDocumentID(): "jumps over the lazy dog",
		model.NewDocumentID(): "foxglove is a flower",
		model.NewDocumentID(): "no match here at all",
	}
	for id, content := range docs {
		idx.IndexDocument(id, []byte(content))
	}

	for _, term := range []string{"fox", "the", "over", "zzz"} {
		results, err := idx.Query(term)
		require.NoError(t, err)

		var got []model.DocumentID
		for _, r := range results {
			got = append(got, r.ID)
		}

		var want []model.DocumentID
		for id, content := range docs {
			if strings.Contains(content, term) {
				want = append(want, id)
			}
		}
		assert.ElementsMatch(t, want, got, "query %q", term)
	}
}

func TestCompactionRewritesPostingsOnceThresholdExceeded(t *testing.T) {
	idx := newTestIndex(t)
	var ids []model.DocumentID
	for i := 0; i < 3; i++ {
		id := model.NewDocumentID()
		ids = append(ids, id)
		idx.IndexDocument(id, []byte("shared content token"))
	}
	// Tombstone one of three (33%): past the configured 25% threshold.
	idx.RemoveDocument(ids[0])
	compacted, err := idx.MaybeCompact()
	require.NoError(t, err)
	assert.True(t, compacted, "a 1/3 tombstone fraction exceeds the 0.25 threshold")

	results, err := idx.Query("shared")
	require.NoError(t, err)
	var got []model.DocumentID
	for _, r := range results {
		got = append(got, r.ID)
	}
	assert.ElementsMatch(t, ids[1:], got)
}

func TestFlushAndReopenPreservesPostings(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir, 0.25)
	require.NoError(t, err)
	id := model.NewDocumentID()
	idx.IndexDocument(id, []byte("hello world"))
	require.NoError(t, idx.Flush())

	reopened, err := Open(dir, 0.25)
	require.NoError(t, err)
	results, err := reopened.Query("hello")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
}

func TestWhitespaceOnlyTrigramsExcluded(t *testing.T) {
	idx := newTestIndex(t)
	id := model.NewDocumentID()
	idx.IndexDocument(id, []byte("a   b"))

	results, err := idx.Query("   ")
	require.NoError(t, err)
	assert.Empty(t, results, "an all-whitespace trigram is never indexed, so it cannot match")
}

func TestReindexingDocumentReplacesPriorContent(t *testing.T) {
	idx := newTestIndex(t)
	id := model.NewDocumentID()
	idx.IndexDocument(id, []byte("alpha content"))
	idx.IndexDocument(id, []byte("beta content"))

	results, err := idx.Query("alpha")
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Query("beta")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
}

// TestQueryHandlesRepeatedTrigrams covers queries whose trigram windows
// repeat, where a positional check keyed by distinct-trigram count rather
// than true query offset would undercount the number of windows needed and
// never match at all.
func TestQueryHandlesRepeatedTrigrams(t *testing.T) {
	idx := newTestIndex(t)
	id := model.NewDocumentID()
	idx.IndexDocument(id, []byte("see aaaa and xyxyxy here"))

	results, err := idx.Query("aaaa")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)

	results, err = idx.Query("xyxyxy")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
}

func TestOpenCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "trigram")
	idx, err := Open(dir, 0)
	require.NoError(t, err)
	assert.NotNil(t, idx)
}
