// Package depgraph implements the Dependency Graph: a persistent directed
// multigraph over symbol ids, supporting the relationship queries of
// spec.md §4.5. Edges are stored in the same SQLite database file as the
// Symbol Table (opened through its own connection, as SQLite's WAL mode
// permits), with adjacency bulk-loaded into memory for every traversal --
// never N+1 SQL during a BFS or SCC pass.
package depgraph

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jward/cortex/internal/model"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS edges (
  id              INTEGER PRIMARY KEY,
  document_id     TEXT NOT NULL,
  from_symbol_id  TEXT NOT NULL,
  to_symbol_id    TEXT NOT NULL,
  relation        TEXT NOT NULL,
  site_line       INTEGER,
  site_col        INTEGER,
  state           INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_symbol_id);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_symbol_id);
CREATE INDEX IF NOT EXISTS idx_edges_document ON edges(document_id);

CREATE TABLE IF NOT EXISTS placeholders (
  symbol_id       TEXT PRIMARY KEY,
  qualified_name  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_placeholders_name ON placeholders(qualified_name);
`

const (
	// DefaultMaxFrontier bounds the number of nodes any traversal visits,
	// per spec.md §4.5.
	DefaultMaxFrontier = 10000
	// DefaultMaxDepth bounds impact_analysis when the caller supplies none.
	DefaultMaxDepth = 5
)

// Graph is the Dependency Graph.
type Graph struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open opens (migrating if needed) the dependency graph database at dbPath.
func Open(dbPath string) (*Graph, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("depgraph: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("depgraph: ping database: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("depgraph: migrate: %w", err)
	}
	return &Graph{db: db}, nil
}

func (g *Graph) Close() error { return g.db.Close() }

func symStr(id model.SymbolID) string { return fmt.Sprintf("%d", id) }

// ApplyBatch applies one document's worth of edge changes atomically:
// removes every previously-committed edge for docID, inserts the edges
// produced by the current extraction as Committed, and resolves any
// placeholder whose qualified name now matches a real symbol -- spec.md
// §4.5's "batch either fully commits or is rolled back" and "placeholders
// ... resolved in a single pass" rules.
func (g *Graph) ApplyBatch(docID model.DocumentID, edges []model.Edge, resolvedNames map[string]model.SymbolID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, err := g.db.Begin()
	if err != nil {
		return fmt.Errorf("depgraph: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM edges WHERE document_id = ?`, docID.String()); err != nil {
		return fmt.Errorf("depgraph: delete prior edges: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO edges
		(document_id, from_symbol_id, to_symbol_id, relation, site_line, site_col, state)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("depgraph: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if !model.ValidRelation(e.Relation) {
			return fmt.Errorf("depgraph: %w: unknown relation %q", model.ErrValidation, e.Relation)
		}
		var line, col any
		if e.Site != nil {
			line, col = e.Site.Line, e.Site.Col
		}
		if _, err := stmt.Exec(docID.String(), symStr(e.From), symStr(e.To), string(e.Relation), line, col, int(model.EdgeCommitted)); err != nil {
			return fmt.Errorf("depgraph: insert edge: %w", err)
		}
	}

	for name, realID := range resolvedNames {
		var placeholderStr string
		row := tx.QueryRow(`SELECT symbol_id FROM placeholders WHERE qualified_name = ?`, name)
		if err := row.Scan(&placeholderStr); err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return fmt.Errorf("depgraph: lookup placeholder: %w", err)
		}
		// Each edge that targeted the placeholder gets a new Committed row
		// pointing at the real symbol; the old row is marked Redirected and
		// stays out of every query, per spec.md's terminal-state rule.
		rows, err := tx.Query(`SELECT id, document_id, from_symbol_id, relation, site_line, site_col
			FROM edges WHERE to_symbol_id = ? AND state = ?`, placeholderStr, int(model.EdgeCommitted))
		if err != nil {
			return fmt.Errorf("depgraph: select placeholder edges: %w", err)
		}
		type redirected struct {
			id                    int64
			docID, from, relation string
			line, col             sql.NullInt64
		}
		var toRedirect []redirected
		for rows.Next() {
			var r redirected
			if err := rows.Scan(&r.id, &r.docID, &r.from, &r.relation, &r.line, &r.col); err != nil {
				rows.Close()
				return fmt.Errorf("depgraph: scan placeholder edge: %w", err)
			}
			toRedirect = append(toRedirect, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("depgraph: iterate placeholder edges: %w", err)
		}

		for _, r := range toRedirect {
			if _, err := tx.Exec(`INSERT INTO edges
				(document_id, from_symbol_id, to_symbol_id, relation, site_line, site_col, state)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.docID, r.from, symStr(realID), r.relation, r.line, r.col, int(model.EdgeCommitted)); err != nil {
				return fmt.Errorf("depgraph: insert redirected edge: %w", err)
			}
			if _, err := tx.Exec(`UPDATE edges SET state = ? WHERE id = ?`, int(model.EdgeRedirected), r.id); err != nil {
				return fmt.Errorf("depgraph: mark placeholder edge redirected: %w", err)
			}
		}
		if _, err := tx.Exec(`DELETE FROM placeholders WHERE qualified_name = ?`, name); err != nil {
			return fmt.Errorf("depgraph: remove resolved placeholder: %w", err)
		}
	}

	return tx.Commit()
}

// RegisterPlaceholder records an unresolved target name so a later document
// defining it can redirect edges in one pass.
func (g *Graph) RegisterPlaceholder(id model.SymbolID, qualifiedName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.db.Exec(`INSERT OR IGNORE INTO placeholders (symbol_id, qualified_name) VALUES (?, ?)`,
		symStr(id), qualifiedName)
	if err != nil {
		return fmt.Errorf("depgraph: register placeholder: %w", err)
	}
	return nil
}

// adjacency holds the full committed-edge set loaded once per traversal, in
// both directions, mirroring the teacher's buildCallGraph bulk-load pattern.
type adjacency struct {
	forward map[model.SymbolID][]edgeHit // from -> [(to, relation, site)]
	reverse map[model.SymbolID][]edgeHit // to -> [(from, relation, site)]
}

type edgeHit struct {
	other    model.SymbolID
	relation model.EdgeRelation
	site     *model.Site
}

func (g *Graph) loadAdjacency(relations []model.EdgeRelation) (*adjacency, error) {
	q := `SELECT from_symbol_id, to_symbol_id, relation, site_line, site_col FROM edges WHERE state = ?`
	args := []any{int(model.EdgeCommitted)}
	if len(relations) > 0 {
		placeholders := ""
		for i, r := range relations {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, string(r))
		}
		q += " AND relation IN (" + placeholders + ")"
	}
	rows, err := g.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("depgraph: load adjacency: %w", err)
	}
	defer rows.Close()

	adj := &adjacency{forward: make(map[model.SymbolID][]edgeHit), reverse: make(map[model.SymbolID][]edgeHit)}
	for rows.Next() {
		var fromStr, toStr, relStr string
		var line, col sql.NullInt64
		if err := rows.Scan(&fromStr, &toStr, &relStr, &line, &col); err != nil {
			return nil, fmt.Errorf("depgraph: scan edge: %w", err)
		}
		var from, to uint64
		fmt.Sscanf(fromStr, "%d", &from)
		fmt.Sscanf(toStr, "%d", &to)
		var site *model.Site
		if line.Valid {
			site = &model.Site{Line: int(line.Int64), Col: int(col.Int64)}
		}
		fromID, toID := model.SymbolID(from), model.SymbolID(to)
		adj.forward[fromID] = append(adj.forward[fromID], edgeHit{other: toID, relation: model.EdgeRelation(relStr), site: site})
		adj.reverse[toID] = append(adj.reverse[toID], edgeHit{other: fromID, relation: model.EdgeRelation(relStr), site: site})
	}
	return adj, rows.Err()
}

// CallerInfo is one direct caller returned by FindCallers.
type CallerInfo struct {
	Caller model.SymbolID
	Site   *model.Site
}

// DefaultCallerRelations is the edge-kind filter FindCallers applies when the
// caller supplies none -- the relaxed reading spec.md's find_callers adopts
// (DESIGN.md Open Question 1): Calls and References both count as "calling".
var DefaultCallerRelations = []model.EdgeRelation{model.RelCalls, model.RelReferences}

// FindCallers returns the direct (single-hop) callers/referencers of target,
// restricted to relations (or DefaultCallerRelations if relations is empty).
func (g *Graph) FindCallers(target model.SymbolID, relations []model.EdgeRelation) ([]CallerInfo, error) {
	if len(relations) == 0 {
		relations = DefaultCallerRelations
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	adj, err := g.loadAdjacency(relations)
	if err != nil {
		return nil, err
	}
	var out []CallerInfo
	for _, hit := range adj.reverse[target] {
		out = append(out, CallerInfo{Caller: hit.other, Site: hit.site})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Caller < out[j].Caller })
	return out, nil
}

// ForwardCallees returns the direct (single-hop) callees of from: the
// forward-direction counterpart to FindCallers, restricted to Calls edges.
func (g *Graph) ForwardCallees(from model.SymbolID) ([]model.SymbolID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	adj, err := g.loadAdjacency([]model.EdgeRelation{model.RelCalls})
	if err != nil {
		return nil, err
	}
	var out []model.SymbolID
	for _, hit := range adj.forward[from] {
		out = append(out, hit.other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ImpactNode is one node discovered by ImpactAnalysis.
type ImpactNode struct {
	Symbol   model.SymbolID
	Depth    int
	EdgePath []model.EdgeRelation
}

// ImpactAnalysis performs a breadth-first reverse traversal over all edge
// kinds from target, depth-limited, bounded by maxFrontier and a wall-clock
// budget. Returns the visited set (tie-broken by depth, with the caller
// expected to break further ties by qualified name once symbols are
// resolved at a higher layer) and whether the result was truncated.
func (g *Graph) ImpactAnalysis(ctx context.Context, target model.SymbolID, maxDepth int, maxFrontier int, budget time.Duration) ([]ImpactNode, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxFrontier <= 0 {
		maxFrontier = DefaultMaxFrontier
	}
	adj, err := g.loadAdjacency(nil)
	if err != nil {
		return nil, false, err
	}

	deadline := time.Now().Add(budget)
	visited := map[model.SymbolID]int{target: 0}
	paths := map[model.SymbolID][]model.EdgeRelation{target: nil}
	queue := []model.SymbolID{target}
	truncated := false

	for len(queue) > 0 {
		if ctx.Err() != nil || (budget > 0 && time.Now().After(deadline)) {
			truncated = true
			break
		}
		cur := queue[0]
		queue = queue[1:]
		depth := visited[cur]
		if depth >= maxDepth {
			continue
		}
		for _, hit := range adj.reverse[cur] {
			if _, seen := visited[hit.other]; seen {
				continue
			}
			if len(visited) >= maxFrontier {
				truncated = true
				break
			}
			visited[hit.other] = depth + 1
			paths[hit.other] = append(append([]model.EdgeRelation{}, paths[cur]...), hit.relation)
			queue = append(queue, hit.other)
		}
	}

	out := make([]ImpactNode, 0, len(visited))
	for sym, depth := range visited {
		if sym == target {
			continue
		}
		out = append(out, ImpactNode{Symbol: sym, Depth: depth, EdgePath: paths[sym]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, truncated, nil
}

// CallChain runs a bidirectional BFS over Calls edges from `from` to `to`,
// returning the shortest path (inclusive of both endpoints), or nil if
// unreachable within maxDepth hops.
func (g *Graph) CallChain(from, to model.SymbolID, maxDepth int) ([]model.SymbolID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	adj, err := g.loadAdjacency([]model.EdgeRelation{model.RelCalls})
	if err != nil {
		return nil, err
	}
	if from == to {
		return []model.SymbolID{from}, nil
	}

	fwd := &bfsFrontier{parent: map[model.SymbolID]model.SymbolID{from: from}, layer: []model.SymbolID{from}, root: from}
	bwd := &bfsFrontier{parent: map[model.SymbolID]model.SymbolID{to: to}, layer: []model.SymbolID{to}, root: to}

	// Among every node reached from both sides, pick the lexicographically
	// smallest so CallChain is deterministic across equal-length shortest
	// paths instead of depending on map iteration order.
	meet := func() (model.SymbolID, bool) {
		var best model.SymbolID
		found := false
		for sym := range fwd.parent {
			if _, ok := bwd.parent[sym]; !ok {
				continue
			}
			if !found || sym < best {
				best = sym
				found = true
			}
		}
		return best, found
	}

	for depth := 0; depth < maxDepth; depth++ {
		if sym, ok := meet(); ok {
			return reconstructPath(fwd, bwd, sym), nil
		}
		var expandFwd bool = len(fwd.layer) <= len(bwd.layer)
		var next []model.SymbolID
		if expandFwd {
			for _, sym := range fwd.layer {
				for _, hit := range adj.forward[sym] {
					if _, seen := fwd.parent[hit.other]; seen {
						continue
					}
					fwd.parent[hit.other] = sym
					next = append(next, hit.other)
				}
			}
			sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
			fwd.layer = next
		} else {
			for _, sym := range bwd.layer {
				for _, hit := range adj.reverse[sym] {
					if _, seen := bwd.parent[hit.other]; seen {
						continue
					}
					bwd.parent[hit.other] = sym
					next = append(next, hit.other)
				}
			}
			sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
			bwd.layer = next
		}
		if len(next) == 0 {
			break
		}
	}
	if sym, ok := meet(); ok {
		return reconstructPath(fwd, bwd, sym), nil
	}
	return nil, nil
}

// bfsFrontier is one side of a bidirectional BFS: the set of nodes reached
// so far, their parent pointers back toward root, and the current layer to
// expand next.
type bfsFrontier struct {
	parent map[model.SymbolID]model.SymbolID
	layer  []model.SymbolID
	root   model.SymbolID
}

// reconstructPath walks both frontiers' parent pointers back from meet to
// their respective roots and splices the two halves into one path from
// fwd.root to bwd.root.
func reconstructPath(fwd, bwd *bfsFrontier, meet model.SymbolID) []model.SymbolID {
	var left []model.SymbolID
	for cur := meet; ; {
		left = append(left, cur)
		if cur == fwd.root {
			break
		}
		cur = fwd.parent[cur]
	}
	for i, j := 0, len(left)-1; i < j; i, j = i+1, j-1 {
		left[i], left[j] = left[j], left[i]
	}

	// bwd.parent walks from `to` back toward meet; meet itself is already in
	// left, so start right from meet's immediate backward-frontier parent.
	var right []model.SymbolID
	for cur := meet; cur != bwd.root; {
		next := bwd.parent[cur]
		right = append(right, next)
		cur = next
	}
	return append(left, right...)
}

// CircularDependencies runs Tarjan's SCC algorithm over the full committed
// graph, returning every strongly-connected component of size >= 2.
func (g *Graph) CircularDependencies() ([][]model.SymbolID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	adj, err := g.loadAdjacency(nil)
	if err != nil {
		return nil, err
	}

	nodes := make(map[model.SymbolID]struct{})
	for from, hits := range adj.forward {
		nodes[from] = struct{}{}
		for _, h := range hits {
			nodes[h.other] = struct{}{}
		}
	}
	ordered := make([]model.SymbolID, 0, len(nodes))
	for n := range nodes {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	t := &tarjan{
		adj:     adj,
		index:   make(map[model.SymbolID]int),
		lowlink: make(map[model.SymbolID]int),
		onStack: make(map[model.SymbolID]bool),
	}
	for _, n := range ordered {
		if _, seen := t.index[n]; !seen {
			t.strongConnect(n)
		}
	}

	var out [][]model.SymbolID
	for _, comp := range t.components {
		if len(comp) >= 2 {
			sort.Slice(comp, func(i, j int) bool { return comp[i] < comp[j] })
			out = append(out, comp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out, nil
}

// tarjan holds the running state of Tarjan's strongly-connected-components
// algorithm over adj.forward. strongConnect is recursive, so its call depth
// grows with the longest path it explores.
type tarjan struct {
	adj        *adjacency
	index      map[model.SymbolID]int
	lowlink    map[model.SymbolID]int
	onStack    map[model.SymbolID]bool
	stack      []model.SymbolID
	counter    int
	components [][]model.SymbolID
}

func (t *tarjan) strongConnect(v model.SymbolID) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	neighbors := append([]edgeHit{}, t.adj.forward[v]...)
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].other < neighbors[j].other })
	for _, hit := range neighbors {
		w := hit.other
		if _, seen := t.index[w]; !seen {
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var comp []model.SymbolID
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		t.components = append(t.components, comp)
	}
}

// UnusedSymbols returns every symbol id that appears in at least one
// committed edge and has zero incoming non-Contains edges. A symbol with no
// committed edges at all is unknown to the graph and is not returned. Kind
// filtering happens at the caller, which has access to the Symbol Table.
func (g *Graph) UnusedSymbols() ([]model.SymbolID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	allRows, err := g.db.Query(`SELECT DISTINCT from_symbol_id FROM edges WHERE state = ?
		UNION SELECT DISTINCT to_symbol_id FROM edges WHERE state = ?`, int(model.EdgeCommitted), int(model.EdgeCommitted))
	if err != nil {
		return nil, fmt.Errorf("depgraph: query all symbols: %w", err)
	}
	defer allRows.Close()
	all := make(map[model.SymbolID]struct{})
	for allRows.Next() {
		var s string
		if err := allRows.Scan(&s); err != nil {
			return nil, err
		}
		var id uint64
		fmt.Sscanf(s, "%d", &id)
		all[model.SymbolID(id)] = struct{}{}
	}

	usedRows, err := g.db.Query(`SELECT DISTINCT to_symbol_id FROM edges WHERE state = ? AND relation != ?`,
		int(model.EdgeCommitted), string(model.RelContains))
	if err != nil {
		return nil, fmt.Errorf("depgraph: query used symbols: %w", err)
	}
	defer usedRows.Close()
	used := make(map[model.SymbolID]struct{})
	for usedRows.Next() {
		var s string
		if err := usedRows.Scan(&s); err != nil {
			return nil, err
		}
		var id uint64
		fmt.Sscanf(s, "%d", &id)
		used[model.SymbolID(id)] = struct{}{}
	}

	var out []model.SymbolID
	for id := range all {
		if _, isUsed := used[id]; !isUsed {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// CountByRelation returns the number of committed edges for each relation,
// for the stats query's "edge count by relation" breakdown.
func (g *Graph) CountByRelation() (map[model.EdgeRelation]int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rows, err := g.db.Query(`SELECT relation, COUNT(*) FROM edges WHERE state = ? GROUP BY relation`, int(model.EdgeCommitted))
	if err != nil {
		return nil, fmt.Errorf("depgraph: count by relation: %w", err)
	}
	defer rows.Close()
	out := make(map[model.EdgeRelation]int)
	for rows.Next() {
		var rel string
		var count int
		if err := rows.Scan(&rel, &count); err != nil {
			return nil, err
		}
		out[model.EdgeRelation(rel)] = count
	}
	return out, rows.Err()
}

// HotspotResult is one entry of HotPaths: a symbol and its incoming-edge
// count.
type HotspotResult struct {
	Symbol   model.SymbolID
	InDegree int
}

// HotPaths returns the top-k symbols by incoming-edge count, ranked by
// in-degree descending then by symbol id ascending.
func (g *Graph) HotPaths(k int) ([]HotspotResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rows, err := g.db.Query(`SELECT to_symbol_id, COUNT(*) AS c FROM edges WHERE state = ?
		GROUP BY to_symbol_id ORDER BY c DESC, length(to_symbol_id) ASC, to_symbol_id ASC LIMIT ?`, int(model.EdgeCommitted), k)
	if err != nil {
		return nil, fmt.Errorf("depgraph: hot paths: %w", err)
	}
	defer rows.Close()
	var out []HotspotResult
	for rows.Next() {
		var s string
		var count int
		if err := rows.Scan(&s, &count); err != nil {
			return nil, err
		}
		var id uint64
		fmt.Sscanf(s, "%d", &id)
		out = append(out, HotspotResult{Symbol: model.SymbolID(id), InDegree: count})
	}
	return out, rows.Err()
}
