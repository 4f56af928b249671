package cortex

import "context"

// SymbolExtractor is the pluggable symbol-and-edge extractor. spec.md §1
// treats extraction as wholly external, named only by this interface: the
// engine invokes it once per document insert/update and merges whatever it
// returns into the Symbol Table and Dependency Graph. With a nil
// SymbolExtractor, inserted and updated documents get no symbols or edges;
// symbol and relationship queries are not disabled and still answer from
// whatever the Symbol Table and Dependency Graph already hold (for example a
// data directory indexed earlier with an extractor). Content and document
// queries are unaffected.
type SymbolExtractor interface {
	ExtractSymbols(ctx context.Context, path string, content []byte, languageTag string) ([]Symbol, []Edge, error)
}

// Config holds every recognized engine option, per spec.md §6.
type Config struct {
	// DataDir is the filesystem directory holding storage, manifest, and
	// indexes. Required.
	DataDir string

	// CacheSizeDocuments is the LRU capacity for the document read cache.
	// Default 1024.
	CacheSizeDocuments int

	// MaxDocumentBytes bounds a single document's content size. Default 16 MiB.
	MaxDocumentBytes int

	// TrigramCompactionThreshold is the tombstone fraction, in (0, 1], past
	// which the Trigram Index rewrites its posting lists. Default 0.25.
	TrigramCompactionThreshold float64

	// DefaultQueryBudgetMS bounds traversal wall-clock time when a query
	// supplies no explicit budget. Default 5000.
	DefaultQueryBudgetMS int

	// DefaultTraversalMaxDepth bounds depth-limited traversals. Default 5.
	DefaultTraversalMaxDepth int

	// DefaultTraversalMaxFrontier bounds the number of nodes any traversal
	// visits. Default 10000.
	DefaultTraversalMaxFrontier int

	// SymbolExtractor is the pluggable extraction callback. May be nil.
	SymbolExtractor SymbolExtractor
}

// withDefaults returns a copy of c with zero-valued fields replaced by
// spec.md §6's documented defaults.
func (c Config) withDefaults() Config {
	if c.CacheSizeDocuments <= 0 {
		c.CacheSizeDocuments = 1024
	}
	if c.MaxDocumentBytes <= 0 {
		c.MaxDocumentBytes = 16 << 20
	}
	if c.TrigramCompactionThreshold <= 0 {
		c.TrigramCompactionThreshold = 0.25
	}
	if c.DefaultQueryBudgetMS <= 0 {
		c.DefaultQueryBudgetMS = 5000
	}
	if c.DefaultTraversalMaxDepth <= 0 {
		c.DefaultTraversalMaxDepth = 5
	}
	if c.DefaultTraversalMaxFrontier <= 0 {
		c.DefaultTraversalMaxFrontier = 10000
	}
	return c
}
