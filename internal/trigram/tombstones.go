package trigram

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/natefinch/atomic"

	"github.com/jward/cortex/internal/model"
)

const (
	tombstoneMagic   = "CTGT"
	tombstoneVersion = uint16(1)
)

// tombstoneSet tracks document ordinals removed since the last compaction.
// No suitable third-party bitset dependency was found anywhere in the
// example pack, so this bespoke delta-encoded sorted-ordinal set stands in
// for one (see DESIGN.md).
type tombstoneSet map[uint32]struct{}

func (t tombstoneSet) add(ord uint32)    { t[ord] = struct{}{} }
func (t tombstoneSet) has(ord uint32) bool { _, ok := t[ord]; return ok }

func tombstonesPath(dir string) string { return dir + "/tombstones" }

func writeTombstones(dir string, t tombstoneSet) error {
	ords := make([]uint32, 0, len(t))
	for o := range t {
		ords = append(ords, o)
	}
	sort.Slice(ords, func(i, j int) bool { return ords[i] < ords[j] })

	buf := &bytes.Buffer{}
	buf.WriteString(tombstoneMagic)
	putU16(buf, tombstoneVersion)
	putUvarint(buf, uint64(len(ords)))
	var prev uint32
	for _, o := range ords {
		putUvarint(buf, uint64(o-prev))
		prev = o
	}
	return atomic.WriteFile(tombstonesPath(dir), bytes.NewReader(buf.Bytes()))
}

func readTombstones(dir string) (tombstoneSet, error) {
	data, err := os.ReadFile(tombstonesPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return make(tombstoneSet), nil
		}
		return nil, fmt.Errorf("trigram: read tombstones: %w", err)
	}
	r := bytes.NewReader(data)
	magic := make([]byte, 4)
	if _, err := r.Read(magic); err != nil || string(magic) != tombstoneMagic {
		return nil, model.NewCorruptedRecordError("trigram", "tombstones", fmt.Errorf("bad magic"))
	}
	if _, err := readU16(r); err != nil {
		return nil, err
	}
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	set := make(tombstoneSet, count)
	var ord uint32
	for i := uint64(0); i < count; i++ {
		d, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		ord += uint32(d)
		set.add(ord)
	}
	return set, nil
}
