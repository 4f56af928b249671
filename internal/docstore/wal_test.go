package docstore

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cortex/internal/model"
)

func TestWALAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	w, err := openWALWriter(dir, 1)
	require.NoError(t, err)

	id := model.NewDocumentID()
	seq, err := w.append(walOpPut, id, []byte("payload-1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	require.NoError(t, w.close())

	var records []walRecord
	lastSeq, err := replayAll(dir, func(r walRecord) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), lastSeq)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].DocID)
	assert.Equal(t, "payload-1", string(records[0].Payload))
}

// TestWALTornTailIsTruncatedOnRecovery simulates a crash mid-append: the
// last record's trailing bytes are chopped off, leaving a torn write. Replay
// must discard it and recover everything before it, per spec.md §4.1.
func TestWALTornTailIsTruncatedOnRecovery(t *testing.T) {
	dir := t.TempDir()
	w, err := openWALWriter(dir, 1)
	require.NoError(t, err)

	id1 := model.NewDocumentID()
	_, err = w.append(walOpPut, id1, []byte("good-record"))
	require.NoError(t, err)

	id2 := model.NewDocumentID()
	_, err = w.append(walOpPut, id2, []byte("torn-record"))
	require.NoError(t, err)
	require.NoError(t, w.close())

	// Truncate the tail segment to simulate a crash partway through writing
	// the second record's trailing bytes.
	segPath := w.tail.path
	info, err := os.Stat(segPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(segPath, info.Size()-3))

	var ids []model.DocumentID
	_, err = replayAll(dir, func(r walRecord) error {
		ids = append(ids, r.DocID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []model.DocumentID{id1}, ids, "torn second record is discarded, first record survives")
}

func TestWALSegmentsRollAndCheckpointKeepsTail(t *testing.T) {
	dir := t.TempDir()
	w, err := openWALWriter(dir, 1)
	require.NoError(t, err)

	id := model.NewDocumentID()
	_, err = w.append(walOpPut, id, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.roll())
	_, err = w.append(walOpPut, model.NewDocumentID(), []byte("y"))
	require.NoError(t, err)

	assert.Len(t, w.segs, 2)
	require.NoError(t, w.checkpoint())
	assert.Len(t, w.segs, 1, "checkpoint drops sealed segments, keeps the tail")
}
