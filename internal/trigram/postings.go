package trigram

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// trigramKey is a 3-byte window of the UTF-8 code-unit stream, per spec.md
// §4.3's "sliding a 3-byte window over the UTF-8 code-unit stream" build
// rule.
type trigramKey [3]byte

// postingEntry is one document's hit list for a trigram: the document's
// dense ordinal (see ordinals.go) plus every byte offset at which the
// trigram occurs, ascending.
type postingEntry struct {
	ordinal   uint32
	positions []int
}

// postingList is kept sorted by ordinal so merges and intersections can walk
// two lists in lockstep.
type postingList []postingEntry

func (pl postingList) indexOf(ordinal uint32) (int, bool) {
	i := sort.Search(len(pl), func(i int) bool { return pl[i].ordinal >= ordinal })
	if i < len(pl) && pl[i].ordinal == ordinal {
		return i, true
	}
	return i, false
}

// insert adds pos to ordinal's entry, creating it if absent, keeping the
// list sorted by ordinal and each entry's positions sorted.
func (pl postingList) insert(ordinal uint32, pos int) postingList {
	i, ok := pl.indexOf(ordinal)
	if ok {
		pl[i].positions = append(pl[i].positions, pos)
		return pl
	}
	entry := postingEntry{ordinal: ordinal, positions: []int{pos}}
	pl = append(pl, postingEntry{})
	copy(pl[i+1:], pl[i:])
	pl[i] = entry
	return pl
}

// remove drops ordinal's entry entirely, returning the new list.
func (pl postingList) remove(ordinal uint32) postingList {
	i, ok := pl.indexOf(ordinal)
	if !ok {
		return pl
	}
	return append(pl[:i], pl[i+1:]...)
}

// encode serializes pl as delta-encoded varints: count, then per entry a
// delta-encoded ordinal (absolute for the first entry), a position count,
// and delta-encoded ascending positions.
func encodePostingList(pl postingList) []byte {
	buf := &bytes.Buffer{}
	putUvarint(buf, uint64(len(pl)))
	var prevOrd uint32
	for _, e := range pl {
		putUvarint(buf, uint64(e.ordinal-prevOrd))
		prevOrd = e.ordinal
		putUvarint(buf, uint64(len(e.positions)))
		var prevPos int
		for _, p := range e.positions {
			putUvarint(buf, uint64(p-prevPos))
			prevPos = p
		}
	}
	return buf.Bytes()
}

func decodePostingList(data []byte) (postingList, error) {
	r := bytes.NewReader(data)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	pl := make(postingList, 0, n)
	var ord uint32
	for i := uint64(0); i < n; i++ {
		delta, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		ord += uint32(delta)
		count, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		positions := make([]int, count)
		var pos int
		for j := uint64(0); j < count; j++ {
			d, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, err
			}
			pos += int(d)
			positions[j] = pos
		}
		pl = append(pl, postingEntry{ordinal: ord, positions: positions})
	}
	return pl, nil
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}
