package cortex

import (
	"context"
	"fmt"
	"time"

	"github.com/jward/cortex/internal/depgraph"
	"github.com/jward/cortex/internal/docstore"
	"github.com/jward/cortex/internal/model"
	"github.com/jward/cortex/internal/primaryindex"
	"github.com/jward/cortex/internal/symboltable"
	"github.com/jward/cortex/internal/trigram"
)

// QueryEngine orchestrates content, symbol, and relationship queries over
// the five storage components, generalizing the teacher's single-struct
// QueryBuilder (which held only a *store.Store) into one struct spanning
// the Document Store, Primary Index, Trigram Index, Symbol Table, and
// Dependency Graph, per spec.md §4.6.
type QueryEngine struct {
	docs    *docstore.Store
	primary *primaryindex.Index
	trigram *trigram.Index
	symbols *symboltable.Table
	graph   *depgraph.Graph
	cfg     Config
}

// ContentResult is one hit from ContentSearch.
type ContentResult struct {
	Document *Document
	Score    int
}

// ContentSearch implements spec.md §4.6's content_search: trigram-intersect,
// positional verify, rank, paginate.
func (q *QueryEngine) ContentSearch(ctx context.Context, term string, limit, offset int) ([]ContentResult, error) {
	hits, err := q.trigram.Query(term)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(hits) {
		return nil, nil
	}
	hits = hits[offset:]
	if limit > 0 && limit < len(hits) {
		hits = hits[:limit]
	}

	out := make([]ContentResult, 0, len(hits))
	for _, h := range hits {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		doc, err := q.docs.Get(h.ID)
		if err != nil {
			continue // tombstoned/raced-out document; skip rather than fail the whole query
		}
		out = append(out, ContentResult{Document: doc, Score: h.Score})
	}
	return out, nil
}

// SymbolSearch implements spec.md §4.6's symbol_search.
func (q *QueryEngine) SymbolSearch(name string, kinds []SymbolKind, fuzzy bool, limit int) ([]Symbol, error) {
	syms, err := q.symbols.Lookup(name, kinds, fuzzy)
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(syms) {
		syms = syms[:limit]
	}
	return syms, nil
}

// DocumentGet implements spec.md §4.6's document_get.
func (q *QueryEngine) DocumentGet(id DocumentID) (*Document, error) {
	return q.docs.Get(id)
}

// DocumentList implements spec.md §4.6's document_list: a Primary-Index
// ordered scan, paginated.
func (q *QueryEngine) DocumentList(limit, offset int) ([]*Document, error) {
	ids := q.primary.ListIDs()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]*Document, 0, len(ids))
	for _, id := range ids {
		doc, err := q.docs.Get(id)
		if err != nil {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// resolveTarget resolves a qualified name to exactly one symbol id, failing
// with AmbiguousSymbolError if more than one symbol shares the name and no
// disambiguating path was supplied -- spec.md §4.6's planning rule.
func (q *QueryEngine) resolveTarget(name, disambiguatingPath string) (SymbolID, error) {
	matches, err := q.symbols.Lookup(name, nil, false)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("symbol %q: %w", name, ErrNotFound)
	}
	if disambiguatingPath != "" {
		for _, m := range matches {
			if path, ok := q.primary.PathOf(m.Path); ok && path == disambiguatingPath {
				return m.ID, nil
			}
		}
		return 0, fmt.Errorf("symbol %q: %w", name, ErrNotFound)
	}
	if len(matches) > 1 {
		ids := make([]SymbolID, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return 0, &model.AmbiguousSymbolError{Name: name, Candidates: ids}
	}
	return matches[0].ID, nil
}

// budgetFor resolves a caller-supplied millisecond budget against the
// engine's configured default.
func (q *QueryEngine) budgetFor(budgetMS int) time.Duration {
	if budgetMS <= 0 {
		budgetMS = q.cfg.DefaultQueryBudgetMS
	}
	return time.Duration(budgetMS) * time.Millisecond
}

// Stats is the result of the stats query: aggregate counts and sizes, plus
// the "by kind"/"by relation" breakdowns the Symbol Table and Dependency
// Graph already maintain indices for (spec.md §9's Open Question 3).
type Stats struct {
	DocumentCount   int
	TotalBytes      int64
	SymbolCount     int
	SymbolsByKind   map[SymbolKind]int
	EdgeCount       int
	EdgesByRelation map[EdgeRelation]int
}

// StatsQuery implements spec.md §4.6's stats.
func (q *QueryEngine) StatsQuery() (Stats, error) {
	ids := q.primary.ListIDs()
	var total int64
	for _, id := range ids {
		if d, err := q.docs.Get(id); err == nil {
			total += d.Size()
		}
	}

	byKind, err := q.symbols.CountByKind()
	if err != nil {
		return Stats{}, err
	}
	symbolCount := 0
	for _, c := range byKind {
		symbolCount += c
	}

	byRelation, err := q.graph.CountByRelation()
	if err != nil {
		return Stats{}, err
	}
	edgeCount := 0
	for _, c := range byRelation {
		edgeCount += c
	}

	return Stats{
		DocumentCount:   len(ids),
		TotalBytes:      total,
		SymbolCount:     symbolCount,
		SymbolsByKind:   byKind,
		EdgeCount:       edgeCount,
		EdgesByRelation: byRelation,
	}, nil
}
