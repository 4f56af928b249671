package docstore

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/jward/cortex/internal/model"
)

const (
	dataFileMagic   = "CDOC"
	dataFileVersion = uint16(1)
)

// docPayload is the gob-encoded body of a data file. Fields mirror
// model.Document exactly except ID, which is implied by the containing
// file's path and not re-serialized.
type docPayload struct {
	Path      string
	Title     string
	Content   []byte
	Tags      []string
	CreatedAt int64 // unix nanos, for a stable on-disk representation
	UpdatedAt int64
}

// documentPath returns the on-disk location for id: documents/<first two hex
// chars>/<id>, sharding so no single directory holds every document.
func documentPath(dataDir string, id model.DocumentID) string {
	s := id.String()
	return filepath.Join(dataDir, "documents", s[:2], s)
}

// writeDocumentFile serializes d to its canonical single-file format --
// magic | version | crc32c | length-prefixed gob payload -- and installs it
// atomically via the double-write/rename idiom.
func writeDocumentFile(dataDir string, d *model.Document) error {
	path := documentPath(dataDir, d.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create document shard dir: %w", err)
	}

	payload := docPayload{
		Path:      d.Path,
		Title:     d.Title,
		Content:   d.Content,
		Tags:      d.Tags,
		CreatedAt: d.CreatedAt.UnixNano(),
		UpdatedAt: d.UpdatedAt.UnixNano(),
	}
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(payload); err != nil {
		return fmt.Errorf("encode document payload: %w", err)
	}

	buf := &bytes.Buffer{}
	buf.WriteString(dataFileMagic)
	writeU16(buf, dataFileVersion)
	crc := crc32.Checksum(body.Bytes(), walCRC32C)
	writeU32(buf, crc)
	writeU32(buf, uint32(body.Len()))
	buf.Write(body.Bytes())

	if err := atomic.WriteFile(path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("write document file: %w", err)
	}
	return nil
}

// readDocumentFile loads and validates the document stored at id's canonical
// path, returning a CorruptedRecordError (wrapping model.ErrCorrupted) if the
// checksum does not match.
func readDocumentFile(dataDir string, id model.DocumentID) (*model.Document, error) {
	path := documentPath(dataDir, id)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("open document file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, model.NewCorruptedRecordError("docstore", path, err)
	}
	if string(magic) != dataFileMagic {
		return nil, model.NewCorruptedRecordError("docstore", path, fmt.Errorf("bad magic %q", magic))
	}
	version, err := readU16(r)
	if err != nil {
		return nil, model.NewCorruptedRecordError("docstore", path, err)
	}
	if version != dataFileVersion {
		return nil, model.NewCorruptedRecordError("docstore", path, fmt.Errorf("unsupported schema version %d", version))
	}
	wantCRC, err := readU32(r)
	if err != nil {
		return nil, model.NewCorruptedRecordError("docstore", path, err)
	}
	bodyLen, err := readU32(r)
	if err != nil {
		return nil, model.NewCorruptedRecordError("docstore", path, err)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, model.NewCorruptedRecordError("docstore", path, err)
	}
	if gotCRC := crc32.Checksum(body, walCRC32C); gotCRC != wantCRC {
		return nil, model.NewCorruptedRecordError("docstore", path, fmt.Errorf("crc32c mismatch: want %x got %x", wantCRC, gotCRC))
	}

	var payload docPayload
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
		return nil, model.NewCorruptedRecordError("docstore", path, err)
	}

	return &model.Document{
		ID:        id,
		Path:      payload.Path,
		Title:     payload.Title,
		Content:   payload.Content,
		Tags:      payload.Tags,
		CreatedAt: unixNanoToTime(payload.CreatedAt),
		UpdatedAt: unixNanoToTime(payload.UpdatedAt),
	}, nil
}

// removeDocumentFile deletes the on-disk file for id. A missing file is not
// an error -- the caller may be cleaning up after a crash between WAL commit
// and data-file write.
func removeDocumentFile(dataDir string, id model.DocumentID) error {
	err := os.Remove(documentPath(dataDir, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove document file: %w", err)
	}
	return nil
}

func unixNanoToTime(n int64) time.Time { return time.Unix(0, n).UTC() }
