package trigram

import (
	"bytes"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/jward/cortex/internal/model"
)

const (
	vocabularyMagic   = "CTGV"
	vocabularyVersion = uint16(1)
)

type postingRef struct {
	offset uint32
	length uint32
}

func vocabularyPath(dir string) string { return dir + "/vocabulary" }
func postingsPath(dir string) string   { return dir + "/postings" }

// writeVocabulary flushes the vocabulary table (trigram -> offset/length
// into the postings blob) and the postings blob itself, both atomically.
func writeVocabulary(dir string, vocab map[trigramKey]postingRef, postingsBlob []byte) error {
	vbuf := &bytes.Buffer{}
	vbuf.WriteString(vocabularyMagic)
	putU16(vbuf, vocabularyVersion)
	putU32(vbuf, uint32(len(vocab)))
	for tri, ref := range vocab {
		vbuf.Write(tri[:])
		putU32(vbuf, ref.offset)
		putU32(vbuf, ref.length)
	}
	if err := atomic.WriteFile(vocabularyPath(dir), bytes.NewReader(vbuf.Bytes())); err != nil {
		return fmt.Errorf("trigram: write vocabulary: %w", err)
	}
	if err := atomic.WriteFile(postingsPath(dir), bytes.NewReader(postingsBlob)); err != nil {
		return fmt.Errorf("trigram: write postings: %w", err)
	}
	return nil
}

func readVocabulary(dir string) (map[trigramKey]postingRef, []byte, error) {
	vdata, err := os.ReadFile(vocabularyPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[trigramKey]postingRef), nil, nil
		}
		return nil, nil, fmt.Errorf("trigram: read vocabulary: %w", err)
	}
	postings, err := os.ReadFile(postingsPath(dir))
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("trigram: read postings: %w", err)
	}

	r := bytes.NewReader(vdata)
	magic := make([]byte, 4)
	if _, err := r.Read(magic); err != nil || string(magic) != vocabularyMagic {
		return nil, nil, model.NewCorruptedRecordError("trigram", "vocabulary", fmt.Errorf("bad magic"))
	}
	if _, err := readU16(r); err != nil {
		return nil, nil, err
	}
	count, err := readU32(r)
	if err != nil {
		return nil, nil, err
	}
	vocab := make(map[trigramKey]postingRef, count)
	for i := uint32(0); i < count; i++ {
		var tri trigramKey
		if _, err := r.Read(tri[:]); err != nil {
			return nil, nil, err
		}
		offset, err := readU32(r)
		if err != nil {
			return nil, nil, err
		}
		length, err := readU32(r)
		if err != nil {
			return nil, nil, err
		}
		vocab[tri] = postingRef{offset: offset, length: length}
	}
	return vocab, postings, nil
}
