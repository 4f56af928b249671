package trigram

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/jward/cortex/internal/model"
)

const (
	ordinalsMagic   = "CTGO"
	ordinalsVersion = uint16(1)
)

// ordinalTable maps each indexed document to a small dense integer so
// posting lists never repeat a 16-byte uuid per hit.
type ordinalTable struct {
	docToOrd map[model.DocumentID]uint32
	ordToDoc map[uint32]model.DocumentID
	next     uint32
}

func newOrdinalTable() *ordinalTable {
	return &ordinalTable{docToOrd: make(map[model.DocumentID]uint32), ordToDoc: make(map[uint32]model.DocumentID)}
}

func (t *ordinalTable) ordinalFor(id model.DocumentID) uint32 {
	if o, ok := t.docToOrd[id]; ok {
		return o
	}
	o := t.next
	t.next++
	t.docToOrd[id] = o
	t.ordToDoc[o] = id
	return o
}

func (t *ordinalTable) lookup(id model.DocumentID) (uint32, bool) {
	o, ok := t.docToOrd[id]
	return o, ok
}

func (t *ordinalTable) docFor(ord uint32) (model.DocumentID, bool) {
	id, ok := t.ordToDoc[ord]
	return id, ok
}

func ordinalsPath(dir string) string { return dir + "/ordinals" }

func writeOrdinals(dir string, t *ordinalTable) error {
	buf := &bytes.Buffer{}
	buf.WriteString(ordinalsMagic)
	putU16(buf, ordinalsVersion)
	putU32(buf, t.next)
	putU32(buf, uint32(len(t.ordToDoc)))
	for ord, id := range t.ordToDoc {
		putU32(buf, ord)
		buf.Write(id[:])
	}
	return atomic.WriteFile(ordinalsPath(dir), bytes.NewReader(buf.Bytes()))
}

func readOrdinals(dir string) (*ordinalTable, error) {
	data, err := os.ReadFile(ordinalsPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return newOrdinalTable(), nil
		}
		return nil, fmt.Errorf("trigram: read ordinals: %w", err)
	}
	r := bytes.NewReader(data)
	magic := make([]byte, 4)
	if _, err := r.Read(magic); err != nil || string(magic) != ordinalsMagic {
		return nil, model.NewCorruptedRecordError("trigram", "ordinals", fmt.Errorf("bad magic"))
	}
	if _, err := readU16(r); err != nil {
		return nil, err
	}
	next, err := readU32(r)
	if err != nil {
		return nil, err
	}
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}
	t := newOrdinalTable()
	t.next = next
	for i := uint32(0); i < count; i++ {
		ord, err := readU32(r)
		if err != nil {
			return nil, err
		}
		var id model.DocumentID
		if _, err := r.Read(id[:]); err != nil {
			return nil, err
		}
		t.ordToDoc[ord] = id
		t.docToOrd[id] = ord
	}
	return t, nil
}

func putU16(w *bytes.Buffer, v uint16) { var b [2]byte; binary.BigEndian.PutUint16(b[:], v); w.Write(b[:]) }
func putU32(w *bytes.Buffer, v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); w.Write(b[:]) }

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
