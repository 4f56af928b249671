package docstore

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/jward/cortex/internal/model"
)

const (
	manifestMagic   = "CMAN"
	manifestVersion = uint16(1)
)

// manifest records the last durable WAL sequence and the set of live
// document ids, per spec.md §6. It is written with the double-write idiom
// (new -> fsync -> rename) via natefinch/atomic.
type manifest struct {
	LastDurableSeq uint64
	LiveIDs        map[model.DocumentID]struct{}
}

func newManifest() *manifest {
	return &manifest{LiveIDs: make(map[model.DocumentID]struct{})}
}

func manifestPath(dataDir string) string { return filepath.Join(dataDir, "manifest") }

// writeManifest serializes m and atomically replaces the on-disk manifest
// file. The ids are written in a stable (ascending string) order so two
// writes of the same logical state produce byte-identical files -- useful
// for tests and for diffing snapshots.
func writeManifest(dataDir string, m *manifest) error {
	buf := &bytes.Buffer{}
	buf.WriteString(manifestMagic)
	writeU16(buf, manifestVersion)
	writeU64(buf, m.LastDurableSeq)
	writeU32(buf, uint32(len(m.LiveIDs)))

	ids := make([]model.DocumentID, 0, len(m.LiveIDs))
	for id := range m.LiveIDs {
		ids = append(ids, id)
	}
	sortDocumentIDs(ids)
	for _, id := range ids {
		buf.Write(id[:])
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := atomic.WriteFile(manifestPath(dataDir), bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// readManifest loads the manifest file, returning a fresh empty manifest
// (not an error) if none exists yet -- the expected state for a brand-new
// data_dir.
func readManifest(dataDir string) (*manifest, error) {
	f, err := os.Open(manifestPath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return newManifest(), nil
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read manifest magic: %w", err)
	}
	if string(magic) != manifestMagic {
		return nil, fmt.Errorf("manifest: bad magic %q", magic)
	}
	version, err := readU16(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest version: %w", err)
	}
	if version != manifestVersion {
		return nil, fmt.Errorf("manifest: unsupported schema version %d (refusing to open)", version)
	}
	lastSeq, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest seq: %w", err)
	}
	count, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest count: %w", err)
	}

	m := &manifest{LastDurableSeq: lastSeq, LiveIDs: make(map[model.DocumentID]struct{}, count)}
	idBuf := make([]byte, 16)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return nil, fmt.Errorf("read manifest id %d: %w", i, err)
		}
		var id model.DocumentID
		copy(id[:], idBuf)
		m.LiveIDs[id] = struct{}{}
	}
	return m, nil
}

func sortDocumentIDs(ids []model.DocumentID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && bytes.Compare(ids[j-1][:], ids[j][:]) > 0; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

func writeU16(w *bytes.Buffer, v uint16) { var b [2]byte; binary.BigEndian.PutUint16(b[:], v); w.Write(b[:]) }
func writeU32(w *bytes.Buffer, v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); w.Write(b[:]) }
func writeU64(w *bytes.Buffer, v uint64) { var b [8]byte; binary.BigEndian.PutUint64(b[:], v); w.Write(b[:]) }

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
