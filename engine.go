// Package cortex is a codebase intelligence database: durable document
// storage layered with a primary path index, a trigram content index, a
// symbol table, and a dependency graph, orchestrated by a query engine that
// answers content, symbol, and relationship queries over a corpus of
// documents. Ingestion is transactional across all five components; queries
// are read-only and safe for concurrent use from many goroutines.
package cortex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jward/cortex/internal/depgraph"
	"github.com/jward/cortex/internal/docstore"
	"github.com/jward/cortex/internal/model"
	"github.com/jward/cortex/internal/primaryindex"
	"github.com/jward/cortex/internal/symboltable"
	"github.com/jward/cortex/internal/trigram"
)

// maxInFlightBatches bounds concurrent ingestion transactions, per spec.md
// §5's "ingestion is bounded by a configurable max in-flight batch count".
// Unlike Config's fields, this is an internal tuning constant rather than a
// spec.md §6 option -- §6 enumerates exactly eight recognized options and
// this is not one of them.
const maxInFlightBatches = 64

// Engine is the opaque handle spec.md §6 describes: a single in-process
// object offering every §4.6 operation plus open/sync/close lifecycle
// methods. All operations are thread-safe.
type Engine struct {
	cfg Config

	docs      *docstore.Store
	primary   *primaryindex.Index
	trigram   *trigram.Index
	symbols   *symboltable.Table
	graph     *depgraph.Graph
	extractor SymbolExtractor

	ingestSem chan struct{}
}

// Open opens (creating if absent) the engine rooted at cfg.DataDir.
func Open(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("cortex: %w: data_dir must not be empty", ErrValidation)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("cortex: create data dir: %w", err)
	}

	docs, err := docstore.Open(cfg.DataDir, cfg.CacheSizeDocuments)
	if err != nil {
		return nil, fmt.Errorf("cortex: open document store: %w", err)
	}
	primary, err := primaryindex.Open(filepath.Join(cfg.DataDir, "primary.idx"))
	if err != nil {
		docs.Close()
		return nil, fmt.Errorf("cortex: open primary index: %w", err)
	}
	trig, err := trigram.Open(filepath.Join(cfg.DataDir, "trigram"), cfg.TrigramCompactionThreshold)
	if err != nil {
		docs.Close()
		return nil, fmt.Errorf("cortex: open trigram index: %w", err)
	}
	symbols, err := symboltable.Open(filepath.Join(cfg.DataDir, "symbols", "table"), filepath.Join(cfg.DataDir, "symbols", "fuzzy"))
	if err != nil {
		docs.Close()
		return nil, fmt.Errorf("cortex: open symbol table: %w", err)
	}
	graph, err := depgraph.Open(filepath.Join(cfg.DataDir, "symbols", "table"))
	if err != nil {
		docs.Close()
		symbols.Close()
		return nil, fmt.Errorf("cortex: open dependency graph: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		docs:      docs,
		primary:   primary,
		trigram:   trig,
		symbols:   symbols,
		graph:     graph,
		extractor: cfg.SymbolExtractor,
		ingestSem: make(chan struct{}, maxInFlightBatches),
	}

	if err := e.reconcileOrphans(); err != nil {
		docs.Close()
		symbols.Close()
		graph.Close()
		return nil, err
	}
	return e, nil
}

// reconcileOrphans prunes Primary Index entries whose document id is no
// longer live in the Document Store, per spec.md §4.2's "orphans discovered
// at startup are logged and removed".
func (e *Engine) reconcileOrphans() error {
	for _, id := range e.primary.PruneOrphans(e.docs.Exists) {
		model.Logger.Warn().
			Str("component", "primaryindex").
			Str("document_id", id.String()).
			Msg("pruned orphan entry")
	}
	return nil
}

// lockStep enumerates the fixed writer-lock acquisition order of spec.md
// §5: Document Store -> Primary -> Trigram -> Symbol -> Graph.
type lockStep int

const (
	stepDocStore lockStep = iota + 1
	stepPrimary
	stepTrigram
	stepSymbol
	stepGraph
)

// ingestLock tracks the order in which one ingestion transaction touches
// each component's writer path. acquire panics if called out of the fixed
// order -- spec.md §9's one deliberately-crashing invariant-violating
// condition, rather than silently proceeding with an unordered lock
// acquisition that could deadlock against a concurrent ingest.
type ingestLock struct{ last lockStep }

func (l *ingestLock) acquire(step lockStep) {
	if step <= l.last {
		panic(fmt.Sprintf("cortex: lock-order violation: step %d acquired after step %d", step, l.last))
	}
	l.last = step
}

// Insert ingests a brand-new document: writes it to the Document Store,
// updates the Primary and Trigram indices, invokes the configured
// SymbolExtractor, and merges the resulting symbols and edges into the
// Symbol Table and Dependency Graph. All of this is one logical transaction
// per spec.md §2's ingestion data flow.
func (e *Engine) Insert(ctx context.Context, path, title string, content []byte, tags []string, languageTag string) (DocumentID, error) {
	e.ingestSem <- struct{}{}
	defer func() { <-e.ingestSem }()

	if err := model.ValidateContentSize(content, e.cfg.MaxDocumentBytes); err != nil {
		return DocumentID{}, err
	}

	lock := &ingestLock{}
	lock.acquire(stepDocStore)
	doc := &model.Document{Path: path, Title: title, Content: content, Tags: tags}
	id, err := e.docs.Insert(doc)
	if err != nil {
		return DocumentID{}, err
	}

	lock.acquire(stepPrimary)
	if err := e.primary.Insert(id, path); err != nil {
		e.docs.Delete(id)
		return DocumentID{}, err
	}

	lock.acquire(stepTrigram)
	e.trigram.IndexDocument(id, content)

	if e.extractor != nil {
		if err := e.applyExtraction(ctx, lock, id, path, content, languageTag); err != nil {
			return id, fmt.Errorf("%w: %v", ErrExtractor, err)
		}
	}

	return id, nil
}

// applyExtraction runs the configured extractor and merges its output into
// the Symbol Table and Dependency Graph. Extraction failures do not fail the
// document write (spec.md §4.4): they are returned to the caller wrapped in
// ErrExtractor so callers can surface a degraded-coverage indicator, but the
// document, primary index, and trigram index mutations already committed
// stand.
func (e *Engine) applyExtraction(ctx context.Context, lock *ingestLock, id DocumentID, path string, content []byte, languageTag string) error {
	symbols, edges, err := e.extractor.ExtractSymbols(ctx, path, content, languageTag)
	if err != nil {
		return err
	}
	for i := range symbols {
		symbols[i].Path = id
	}

	// Only real (non-placeholder) symbols belong in the Symbol Table -- an
	// unresolved target name is purely a Dependency Graph bookkeeping device
	// until some document actually defines it, and storing it here would
	// collide with that later, real definition under the same qualified name.
	real := make([]model.Symbol, 0, len(symbols))
	for _, s := range symbols {
		if !s.Unresolved {
			real = append(real, s)
		}
	}

	lock.acquire(stepSymbol)
	if err := e.symbols.UpsertForDocument(id, real); err != nil {
		return err
	}

	lock.acquire(stepGraph)
	resolved := make(map[string]model.SymbolID)
	for _, s := range symbols {
		if !s.Unresolved {
			resolved[s.QualifiedName] = s.ID
		}
	}
	for _, s := range symbols {
		if s.Unresolved {
			if err := e.graph.RegisterPlaceholder(s.ID, s.QualifiedName); err != nil {
				return err
			}
		}
	}
	if err := e.graph.ApplyBatch(id, edges, resolved); err != nil {
		return err
	}

	return nil
}

// Update replaces the document at id, logically a delete-then-insert applied
// as one transaction across every component, per spec.md §3's lifecycle
// rule ("replaced by update... transactionally atomic").
func (e *Engine) Update(ctx context.Context, id DocumentID, path, title string, content []byte, tags []string, languageTag string) error {
	e.ingestSem <- struct{}{}
	defer func() { <-e.ingestSem }()

	if err := model.ValidateContentSize(content, e.cfg.MaxDocumentBytes); err != nil {
		return err
	}

	lock := &ingestLock{}
	lock.acquire(stepDocStore)
	doc := &model.Document{Path: path, Title: title, Content: content, Tags: tags}
	if err := e.docs.Update(id, doc); err != nil {
		return err
	}

	lock.acquire(stepPrimary)
	if err := e.primary.Insert(id, path); err != nil {
		return err
	}

	lock.acquire(stepTrigram)
	e.trigram.IndexDocument(id, content)

	if e.extractor != nil {
		if err := e.applyExtraction(ctx, lock, id, path, content, languageTag); err != nil {
			return fmt.Errorf("%w: %v", ErrExtractor, err)
		}
	}
	return nil
}

// Delete removes the document at id and every symbol and edge it owns, per
// spec.md §3's lifecycle rule ("removing the document removes them").
func (e *Engine) Delete(id DocumentID) (bool, error) {
	e.ingestSem <- struct{}{}
	defer func() { <-e.ingestSem }()

	lock := &ingestLock{}
	lock.acquire(stepDocStore)
	removed, err := e.docs.Delete(id)
	if err != nil || !removed {
		return removed, err
	}

	lock.acquire(stepPrimary)
	e.primary.Delete(id)

	lock.acquire(stepTrigram)
	e.trigram.RemoveDocument(id)

	lock.acquire(stepSymbol)
	if err := e.symbols.DeleteForDocument(id); err != nil {
		return true, err
	}

	lock.acquire(stepGraph)
	if err := e.graph.ApplyBatch(id, nil, nil); err != nil {
		return true, err
	}

	return true, nil
}

// Query returns a QueryEngine bound to this engine's components, mirroring
// the teacher's Engine.Query() *QueryBuilder accessor.
func (e *Engine) Query() *QueryEngine {
	return &QueryEngine{
		docs:    e.docs,
		primary: e.primary,
		trigram: e.trigram,
		symbols: e.symbols,
		graph:   e.graph,
		cfg:     e.cfg,
	}
}

// Sync flushes every component's durable state: the Document Store's
// manifest and WAL checkpoint, a Trigram Index compaction when its tombstone
// threshold is exceeded, and the Primary Index, Trigram Index, and Symbol
// Table fuzzy-lookup snapshots. Symbol rows and Dependency Graph edges
// persist through SQLite's own WAL and need no explicit flush.
func (e *Engine) Sync() error {
	if err := e.docs.Sync(); err != nil {
		return err
	}
	if err := e.primary.Flush(); err != nil {
		return err
	}
	if _, err := e.trigram.MaybeCompact(); err != nil {
		return err
	}
	if err := e.trigram.Flush(); err != nil {
		return err
	}
	if err := e.symbols.Flush(); err != nil {
		return err
	}
	return nil
}

// Close syncs and releases every underlying resource.
func (e *Engine) Close() error {
	if err := e.Sync(); err != nil {
		e.docs.Close()
		e.symbols.Close()
		e.graph.Close()
		return err
	}
	var firstErr error
	if err := e.docs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.symbols.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.graph.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
