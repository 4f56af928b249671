package cortex

import (
	"context"
	"fmt"
)

// Caller is one direct caller/referencer returned by FindCallers.
type Caller struct {
	Symbol Symbol
	Site   *Site
}

// FindCallers implements spec.md §4.5's find_callers: single-hop reverse
// traversal, restricted to relations (or Calls|References if relations is
// empty, per DESIGN.md's Open Question 1 resolution).
func (q *QueryEngine) FindCallers(targetName, disambiguatingPath string, relations []EdgeRelation) ([]Caller, error) {
	target, err := q.resolveTarget(targetName, disambiguatingPath)
	if err != nil {
		return nil, err
	}
	hits, err := q.graph.FindCallers(target, relations)
	if err != nil {
		return nil, err
	}
	out := make([]Caller, 0, len(hits))
	for _, h := range hits {
		sym, err := q.symbolByID(h.Caller)
		if err != nil {
			continue
		}
		out = append(out, Caller{Symbol: sym, Site: h.Site})
	}
	return out, nil
}

// FindCallees implements spec.md §4.6's find_callees: forward single-hop on
// Calls edges -- the mirror image of FindCallers.
func (q *QueryEngine) FindCallees(targetName, disambiguatingPath string) ([]Symbol, error) {
	target, err := q.resolveTarget(targetName, disambiguatingPath)
	if err != nil {
		return nil, err
	}
	ids, err := q.graph.ForwardCallees(target)
	if err != nil {
		return nil, err
	}
	out := make([]Symbol, 0, len(ids))
	for _, id := range ids {
		if sym, err := q.symbolByID(id); err == nil {
			out = append(out, sym)
		}
	}
	return out, nil
}

// ImpactNode is one discovered node of ImpactAnalysis, resolved to a full
// Symbol.
type ImpactNode struct {
	Symbol   Symbol
	Depth    int
	EdgePath []EdgeRelation
}

// ImpactAnalysis implements spec.md §4.5's impact_analysis: breadth-first
// reverse traversal over all edge kinds, depth-limited, frontier- and
// budget-bounded. Returns the visited set tie-broken by depth then
// qualified name, and whether the traversal was truncated.
func (q *QueryEngine) ImpactAnalysis(ctx context.Context, targetName, disambiguatingPath string, maxDepth int, budgetMS int) ([]ImpactNode, bool, error) {
	target, err := q.resolveTarget(targetName, disambiguatingPath)
	if err != nil {
		return nil, false, err
	}
	if maxDepth <= 0 {
		maxDepth = q.cfg.DefaultTraversalMaxDepth
	}
	nodes, truncated, err := q.graph.ImpactAnalysis(ctx, target, maxDepth, q.cfg.DefaultTraversalMaxFrontier, q.budgetFor(budgetMS))
	if err != nil {
		return nil, false, err
	}
	out := make([]ImpactNode, 0, len(nodes))
	for _, n := range nodes {
		sym, err := q.symbolByID(n.Symbol)
		if err != nil {
			continue
		}
		out = append(out, ImpactNode{Symbol: sym, Depth: n.Depth, EdgePath: n.EdgePath})
	}
	sortImpactNodes(out)
	return out, truncated, nil
}

func sortImpactNodes(nodes []ImpactNode) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0; j-- {
			a, b := nodes[j-1], nodes[j]
			less := a.Depth < b.Depth || (a.Depth == b.Depth && a.Symbol.QualifiedName <= b.Symbol.QualifiedName)
			if less {
				break
			}
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}

// CallChain implements spec.md §4.5's call_chain: bidirectional BFS on
// Calls edges, returning the shortest path or nil if unreachable within
// maxDepth.
func (q *QueryEngine) CallChain(fromName, toName string, maxDepth int) ([]Symbol, error) {
	from, err := q.resolveTarget(fromName, "")
	if err != nil {
		return nil, err
	}
	to, err := q.resolveTarget(toName, "")
	if err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = q.cfg.DefaultTraversalMaxDepth
	}
	path, err := q.graph.CallChain(from, to, maxDepth)
	if err != nil {
		return nil, err
	}
	if path == nil {
		return nil, nil
	}
	out := make([]Symbol, 0, len(path))
	for _, id := range path {
		sym, err := q.symbolByID(id)
		if err != nil {
			return nil, fmt.Errorf("call_chain: resolve path symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, nil
}

// CircularDependencies implements spec.md §4.5's circular_dependencies:
// Tarjan SCC over the full graph, components of size >= 2.
func (q *QueryEngine) CircularDependencies() ([][]Symbol, error) {
	comps, err := q.graph.CircularDependencies()
	if err != nil {
		return nil, err
	}
	out := make([][]Symbol, 0, len(comps))
	for _, comp := range comps {
		var syms []Symbol
		for _, id := range comp {
			if sym, err := q.symbolByID(id); err == nil {
				syms = append(syms, sym)
			}
		}
		out = append(out, syms)
	}
	return out, nil
}

// UnusedSymbols implements spec.md §4.5's unused_symbols: symbols with zero
// incoming non-Contains edges, optionally filtered by kind.
func (q *QueryEngine) UnusedSymbols(kinds []SymbolKind) ([]Symbol, error) {
	ids, err := q.graph.UnusedSymbols()
	if err != nil {
		return nil, err
	}
	out := make([]Symbol, 0, len(ids))
	for _, id := range ids {
		sym, err := q.symbolByID(id)
		if err != nil {
			continue
		}
		if !kindMatches(sym.Kind, kinds) {
			continue
		}
		out = append(out, sym)
	}
	return out, nil
}

func kindMatches(k SymbolKind, kinds []SymbolKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

// Hotspot is one ranked entry of HotPaths.
type Hotspot struct {
	Symbol   Symbol
	InDegree int
}

// HotPaths implements spec.md §4.5's hot_paths: top-k symbols by
// incoming-edge count.
func (q *QueryEngine) HotPaths(k int) ([]Hotspot, error) {
	results, err := q.graph.HotPaths(k)
	if err != nil {
		return nil, err
	}
	out := make([]Hotspot, 0, len(results))
	for _, r := range results {
		sym, err := q.symbolByID(r.Symbol)
		if err != nil {
			continue
		}
		out = append(out, Hotspot{Symbol: sym, InDegree: r.InDegree})
	}
	return out, nil
}

// symbolByID resolves a bare symbol id back to its full record.
func (q *QueryEngine) symbolByID(id SymbolID) (Symbol, error) {
	return q.symbols.ByID(id)
}
