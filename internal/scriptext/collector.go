package scriptext

import (
	"fmt"

	"github.com/jward/cortex/internal/model"
)

// collector accumulates symbols and edges emitted by one script run over one
// document, and resolves qualified names to SymbolIDs the way the engine
// itself expects: every edge endpoint must already be a SymbolID, so name
// resolution happens here rather than downstream.
type collector struct {
	path    model.DocumentID
	byName  map[string]model.SymbolID
	symbols []model.Symbol
	edges   []model.Edge
}

func newCollector(path model.DocumentID) *collector {
	return &collector{path: path, byName: make(map[string]model.SymbolID)}
}

// emitSymbol registers a concrete (non-placeholder) symbol and returns its id.
func (c *collector) emitSymbol(name string, kind model.SymbolKind, span model.Span, signature string) (model.SymbolID, error) {
	if !model.ValidKind(kind) {
		return 0, fmt.Errorf("scriptext: unknown symbol kind %q", kind)
	}
	id := model.DeriveSymbolID(c.path, kind, name, span)
	c.symbols = append(c.symbols, model.Symbol{
		ID:            id,
		QualifiedName: name,
		Kind:          kind,
		Path:          c.path,
		Span:          span,
		Signature:     signature,
	})
	c.byName[name] = id
	return id, nil
}

// resolve looks up a name among symbols already emitted for this document.
func (c *collector) resolve(name string) (model.SymbolID, bool) {
	id, ok := c.byName[name]
	return id, ok
}

// placeholder registers an unresolved stand-in symbol for a name that isn't
// defined in this document (a call to an import, a reference to a type
// defined elsewhere), so the Dependency Graph has something concrete to
// point the edge at until the real definition is ingested.
func (c *collector) placeholder(name string) model.SymbolID {
	if id, ok := c.byName[name]; ok {
		return id
	}
	id := model.DeriveSymbolID(c.path, model.KindOther, name, model.Span{})
	c.symbols = append(c.symbols, model.Symbol{
		ID:            id,
		QualifiedName: name,
		Kind:          model.KindOther,
		Path:          c.path,
		Unresolved:    true,
	})
	c.byName[name] = id
	return id
}

func (c *collector) emitEdge(from, to model.SymbolID, relation model.EdgeRelation, site *model.Site) error {
	if !model.ValidRelation(relation) {
		return fmt.Errorf("scriptext: unknown edge relation %q", relation)
	}
	c.edges = append(c.edges, model.Edge{From: from, To: to, Relation: relation, Site: site})
	return nil
}
