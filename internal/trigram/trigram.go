// Package trigram implements the Trigram Index: approximate substring search
// over document content, per spec.md §4.3. A vocabulary maps each 3-byte
// window to a posting list of (document, positions) hits; queries derive
// their own trigrams, intersect posting lists smallest-first, and verify
// positional adjacency for queries longer than three bytes.
package trigram

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/jward/cortex/internal/model"
)

const defaultCompactionThreshold = 0.25

// Index is the Trigram Index. A single reader-writer lock guards the entire
// structure, per spec.md §5.
type Index struct {
	mu sync.RWMutex

	dir                 string
	compactionThreshold float64

	ordinals        *ordinalTable
	postings        map[trigramKey]postingList
	tombstones      tombstoneSet
	docTrigramCount map[uint32]int
}

// Open loads (or initializes) the trigram index rooted at dir.
func Open(dir string, compactionThreshold float64) (*Index, error) {
	if compactionThreshold <= 0 {
		compactionThreshold = defaultCompactionThreshold
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("trigram: create dir: %w", err)
	}

	ords, err := readOrdinals(dir)
	if err != nil {
		return nil, err
	}
	vocab, blob, err := readVocabulary(dir)
	if err != nil {
		return nil, err
	}
	tombstones, err := readTombstones(dir)
	if err != nil {
		return nil, err
	}

	postings := make(map[trigramKey]postingList, len(vocab))
	for tri, ref := range vocab {
		pl, err := decodePostingList(blob[ref.offset : ref.offset+ref.length])
		if err != nil {
			return nil, model.NewCorruptedRecordError("trigram", "postings", err)
		}
		postings[tri] = pl
	}

	idx := &Index{
		dir:                 dir,
		compactionThreshold: compactionThreshold,
		ordinals:            ords,
		postings:            postings,
		tombstones:          tombstones,
		docTrigramCount:     make(map[uint32]int),
	}
	for tri, pl := range postings {
		_ = tri
		for _, e := range pl {
			if tombstones.has(e.ordinal) {
				continue
			}
			idx.docTrigramCount[e.ordinal] += len(e.positions)
		}
	}
	return idx, nil
}

// tokenize slides a 3-byte window over content, per spec.md §4.3, returning
// each trigram and its starting byte offset. Windows made entirely of
// whitespace are excluded; everything else -- including windows that are
// not valid UTF-8 boundaries -- is kept, since substring queries must match
// literal byte sequences.
func tokenize(content []byte) map[trigramKey][]int {
	hits := make(map[trigramKey][]int)
	if len(content) < 3 {
		return hits
	}
	for i := 0; i+3 <= len(content); i++ {
		var tri trigramKey
		copy(tri[:], content[i:i+3])
		if isAllWhitespace(tri) {
			continue
		}
		hits[tri] = append(hits[tri], i)
	}
	return hits
}

func isAllWhitespace(tri trigramKey) bool {
	for _, b := range tri {
		switch b {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}

// IndexDocument merges content's trigrams into the posting lists under id's
// ordinal, replacing any previous entry for id: every posting entry left by
// an earlier IndexDocument call for id is dropped first.
func (idx *Index) IndexDocument(id model.DocumentID, content []byte) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if ordinal, ok := idx.ordinals.lookup(id); ok {
		for tri, pl := range idx.postings {
			if pl = pl.remove(ordinal); len(pl) == 0 {
				delete(idx.postings, tri)
			} else {
				idx.postings[tri] = pl
			}
		}
	}
	idx.removeLocked(id)
	idx.insertLocked(id, content)
}

func (idx *Index) insertLocked(id model.DocumentID, content []byte) {
	ordinal := idx.ordinals.ordinalFor(id)
	idx.tombstones.unmark(ordinal)
	hits := tokenize(content)
	for tri, positions := range hits {
		pl := idx.postings[tri]
		sort.Ints(positions)
		entry := postingEntry{ordinal: ordinal, positions: positions}
		i, ok := pl.indexOf(ordinal)
		if ok {
			pl[i] = entry
		} else {
			pl = append(pl, postingEntry{})
			copy(pl[i+1:], pl[i:])
			pl[i] = entry
		}
		idx.postings[tri] = pl
	}
	idx.docTrigramCount[ordinal] = len(hits)
}

// RemoveDocument tombstones id's ordinal. Posting lists are not rewritten
// until the next compaction.
func (idx *Index) RemoveDocument(id model.DocumentID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *Index) removeLocked(id model.DocumentID) {
	ordinal, ok := idx.ordinals.lookup(id)
	if !ok {
		return
	}
	idx.tombstones.add(ordinal)
	delete(idx.docTrigramCount, ordinal)
}

// Result is one ranked hit from Query.
type Result struct {
	ID    model.DocumentID
	Score int // number of positional matches
}

// Query returns document ids whose content contains every trigram of q,
// ranked by positional-match count. q shorter than 3 bytes degrades to an
// unoptimized scan over every live document's raw trigram membership
// (spec.md §4.3's configurable-degradation edge case; this index always
// performs the scan rather than rejecting, since the caller already holds
// content access only through this index).
func (idx *Index) Query(q string) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if q == "*" {
		return idx.allLive(), nil
	}
	qb := []byte(q)
	if len(qb) < 3 {
		return idx.scanShort(qb), nil
	}

	qTrigrams := tokenize(qb)
	if len(qTrigrams) == 0 {
		return nil, nil
	}
	seq := windowTrigrams(qb) // trigram at each query offset, in order, duplicates included

	type keyedList struct {
		tri trigramKey
		pl  postingList
	}
	lists := make([]keyedList, 0, len(qTrigrams))
	for tri := range qTrigrams {
		pl := idx.liveEntries(idx.postings[tri])
		if len(pl) == 0 {
			return nil, nil // a required trigram has no live postings at all
		}
		lists = append(lists, keyedList{tri: tri, pl: pl})
	}
	sort.Slice(lists, func(i, j int) bool { return len(lists[i].pl) < len(lists[j].pl) })

	candidates := make(map[uint32]map[trigramKey]postingEntry)
	for _, e := range lists[0].pl {
		candidates[e.ordinal] = map[trigramKey]postingEntry{lists[0].tri: e}
	}
	for _, kl := range lists[1:] {
		next := make(map[uint32]map[trigramKey]postingEntry)
		for _, e := range kl.pl {
			if byTri, ok := candidates[e.ordinal]; ok {
				byTri[kl.tri] = e
				next[e.ordinal] = byTri
			}
		}
		candidates = next
		if len(candidates) == 0 {
			return nil, nil
		}
	}

	var out []Result
	for ordinal, byTri := range candidates {
		id, ok := idx.ordinals.docFor(ordinal)
		if !ok {
			continue
		}
		score := positionalScore(byTri, seq)
		if score == 0 {
			continue
		}
		out = append(out, Result{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// windowTrigrams returns the trigram at each query offset in order --
// including repeats, unlike tokenize's deduplicated map -- so positional
// verification can check the document for an adjacency chain that matches
// the query's own offsets rather than an arbitrary posting-list order.
func windowTrigrams(q []byte) []trigramKey {
	n := len(q) - 2
	out := make([]trigramKey, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], q[i:i+3])
	}
	return out
}

// positionalScore counts how many document offsets d have, for every query
// offset i, an occurrence of seq[i] at document position d+i -- the
// adjacency check spec.md §4.3 requires for queries longer than three
// bytes. byTri supplies each distinct query trigram's posting entry for the
// candidate document; seq is the full, duplicate-preserving offset sequence
// produced by windowTrigrams.
func positionalScore(byTri map[trigramKey]postingEntry, seq []trigramKey) int {
	if len(seq) == 1 {
		// Single-trigram query: every occurrence is itself a match.
		return len(byTri[seq[0]].positions)
	}
	starts := make(map[int]int) // candidate match start -> consecutive offsets confirmed
	for _, p := range byTri[seq[0]].positions {
		starts[p] = 1
	}
	for i := 1; i < len(seq); i++ {
		want := make(map[int]bool, len(byTri[seq[i]].positions))
		for _, p := range byTri[seq[i]].positions {
			want[p] = true
		}
		next := make(map[int]int)
		for start, run := range starts {
			if want[start+i] {
				next[start] = run + 1
			}
		}
		starts = next
		if len(starts) == 0 {
			return 0
		}
	}
	matches := 0
	for _, run := range starts {
		if run == len(seq) {
			matches++
		}
	}
	return matches
}

func (idx *Index) liveEntries(pl postingList) postingList {
	out := make(postingList, 0, len(pl))
	for _, e := range pl {
		if !idx.tombstones.has(e.ordinal) {
			out = append(out, e)
		}
	}
	return out
}

func (idx *Index) allLive() []Result {
	var out []Result
	for ordinal := range idx.docTrigramCount {
		if idx.tombstones.has(ordinal) {
			continue
		}
		if id, ok := idx.ordinals.docFor(ordinal); ok {
			out = append(out, Result{ID: id, Score: 0})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// scanShort handles queries under 3 bytes by scanning every live document's
// aggregate trigram hit set for a literal byte match -- there being no
// index structure fine-grained enough to do better.
func (idx *Index) scanShort(q []byte) []Result {
	var out []Result
	for tri, pl := range idx.postings {
		if !bytesContain(tri[:], q) {
			continue
		}
		for _, e := range idx.liveEntries(pl) {
			if id, ok := idx.ordinals.docFor(e.ordinal); ok {
				out = append(out, Result{ID: id, Score: len(e.positions)})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func bytesContain(hay, needle []byte) bool {
	if len(needle) == 0 {
		return true
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		if string(hay[i:i+len(needle)]) == string(needle) {
			return true
		}
	}
	return false
}

// tombstoneFraction reports the share of known ordinals that are tombstoned.
func (idx *Index) tombstoneFraction() float64 {
	total := len(idx.ordinals.ordToDoc)
	if total == 0 {
		return 0
	}
	return float64(len(idx.tombstones)) / float64(total)
}

// MaybeCompact rewrites every posting list to drop tombstoned entries if the
// tombstone fraction exceeds the configured threshold, per spec.md §4.3.
// Compaction is single-writer: this method takes the index's write lock
// itself, so the caller must not already hold it.
func (idx *Index) MaybeCompact() (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.tombstoneFraction() <= idx.compactionThreshold {
		return false, nil
	}
	for tri, pl := range idx.postings {
		live := idx.liveEntries(pl)
		if len(live) == 0 {
			delete(idx.postings, tri)
		} else {
			idx.postings[tri] = live
		}
	}
	for ord := range idx.tombstones {
		delete(idx.ordinals.ordToDoc, ord)
		for id, o := range idx.ordinals.docToOrd {
			if o == ord {
				delete(idx.ordinals.docToOrd, id)
			}
		}
	}
	idx.tombstones = make(tombstoneSet)
	return true, nil
}

// Flush persists the vocabulary, postings blob, tombstone set, and ordinal
// table atomically.
func (idx *Index) Flush() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	vocab := make(map[trigramKey]postingRef, len(idx.postings))
	var blob []byte
	for tri, pl := range idx.postings {
		encoded := encodePostingList(pl)
		vocab[tri] = postingRef{offset: uint32(len(blob)), length: uint32(len(encoded))}
		blob = append(blob, encoded...)
	}
	if err := writeVocabulary(idx.dir, vocab, blob); err != nil {
		return err
	}
	if err := writeTombstones(idx.dir, idx.tombstones); err != nil {
		return err
	}
	return writeOrdinals(idx.dir, idx.ordinals)
}

func (t tombstoneSet) unmark(ord uint32) { delete(t, ord) }
