package depgraph

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cortex/internal/model"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func sym(n uint64) model.SymbolID { return model.SymbolID(n) }

func TestApplyBatchAndFindCallers(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	alpha, beta := sym(1), sym(2)

	edges := []model.Edge{
		{From: alpha, To: beta, Relation: model.RelCalls, Site: &model.Site{Line: 3, Col: 5}},
	}
	require.NoError(t, g.ApplyBatch(doc, edges, nil))

	callers, err := g.FindCallers(beta, nil)
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, alpha, callers[0].Caller)
	require.NotNil(t, callers[0].Site)
	assert.Equal(t, 3, callers[0].Site.Line)
}

func TestFindCallersDefaultsToCallsAndReferences(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	a, b, c := sym(1), sym(2), sym(3)
	edges := []model.Edge{
		{From: a, To: c, Relation: model.RelCalls},
		{From: b, To: c, Relation: model.RelReferences},
		{From: sym(4), To: c, Relation: model.RelImports},
	}
	require.NoError(t, g.ApplyBatch(doc, edges, nil))

	callers, err := g.FindCallers(c, nil)
	require.NoError(t, err)
	var ids []model.SymbolID
	for _, c := range callers {
		ids = append(ids, c.Caller)
	}
	assert.ElementsMatch(t, []model.SymbolID{a, b}, ids, "Imports is excluded from the default relaxed reading")
}

func TestForwardCallees(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	a, b := sym(1), sym(2)
	require.NoError(t, g.ApplyBatch(doc, []model.Edge{{From: a, To: b, Relation: model.RelCalls}}, nil))

	callees, err := g.ForwardCallees(a)
	require.NoError(t, err)
	assert.Equal(t, []model.SymbolID{b}, callees)
}

// TestImpactAnalysisBounded is scenario C: a 6-node chain s1->...->s6,
// impact_analysis("s6", max_depth=3) returns {s5,s4,s3} with depths {1,2,3}.
func TestImpactAnalysisBounded(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	s := make([]model.SymbolID, 7)
	for i := 1; i <= 6; i++ {
		s[i] = sym(uint64(i))
	}
	var edges []model.Edge
	for i := 1; i < 6; i++ {
		edges = append(edges, model.Edge{From: s[i], To: s[i+1], Relation: model.RelCalls})
	}
	require.NoError(t, g.ApplyBatch(doc, edges, nil))

	nodes, truncated, err := g.ImpactAnalysis(context.Background(), s[6], 3, 0, 0)
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, nodes, 3)

	depths := map[model.SymbolID]int{}
	for _, n := range nodes {
		depths[n.Symbol] = n.Depth
	}
	assert.Equal(t, map[model.SymbolID]int{s[5]: 1, s[4]: 2, s[3]: 3}, depths)
}

func TestImpactAnalysisRespectsFrontierBound(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	target := sym(100)
	var edges []model.Edge
	for i := 0; i < 50; i++ {
		edges = append(edges, model.Edge{From: sym(uint64(i)), To: target, Relation: model.RelCalls})
	}
	require.NoError(t, g.ApplyBatch(doc, edges, nil))

	nodes, truncated, err := g.ImpactAnalysis(context.Background(), target, 5, 10, 0)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.LessOrEqual(t, len(nodes), 10)
}

func TestImpactAnalysisRespectsDeadline(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	target := sym(1000)
	var edges []model.Edge
	for i := 0; i < 500; i++ {
		edges = append(edges, model.Edge{From: sym(uint64(i)), To: target, Relation: model.RelCalls})
	}
	require.NoError(t, g.ApplyBatch(doc, edges, nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, truncated, err := g.ImpactAnalysis(ctx, target, 5, 100000, time.Hour)
	require.NoError(t, err)
	assert.True(t, truncated, "an already-expired context truncates the traversal immediately")
}

func TestCallChainShortestPath(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	a, b, c, d := sym(1), sym(2), sym(3), sym(4)
	edges := []model.Edge{
		{From: a, To: b, Relation: model.RelCalls},
		{From: b, To: c, Relation: model.RelCalls},
		{From: c, To: d, Relation: model.RelCalls},
		{From: a, To: d, Relation: model.RelImports}, // not a Calls edge, ignored
	}
	require.NoError(t, g.ApplyBatch(doc, edges, nil))

	path, err := g.CallChain(a, d, 5)
	require.NoError(t, err)
	assert.Equal(t, []model.SymbolID{a, b, c, d}, path)
}

func TestCallChainUnreachableReturnsNil(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	require.NoError(t, g.ApplyBatch(doc, []model.Edge{{From: sym(1), To: sym(2), Relation: model.RelCalls}}, nil))

	path, err := g.CallChain(sym(1), sym(99), 5)
	require.NoError(t, err)
	assert.Nil(t, path)
}

func TestCallChainSameNode(t *testing.T) {
	g := newTestGraph(t)
	path, err := g.CallChain(sym(1), sym(1), 5)
	require.NoError(t, err)
	assert.Equal(t, []model.SymbolID{sym(1)}, path)
}

// TestCircularDependencies is scenario D: edges a->b, b->c, c->a, d->e;
// circular_dependencies() returns one SCC {a,b,c}.
func TestCircularDependencies(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	a, b, c, d, e := sym(1), sym(2), sym(3), sym(4), sym(5)
	edges := []model.Edge{
		{From: a, To: b, Relation: model.RelCalls},
		{From: b, To: c, Relation: model.RelCalls},
		{From: c, To: a, Relation: model.RelCalls},
		{From: d, To: e, Relation: model.RelCalls},
	}
	require.NoError(t, g.ApplyBatch(doc, edges, nil))

	comps, err := g.CircularDependencies()
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.ElementsMatch(t, []model.SymbolID{a, b, c}, comps[0])
}

func TestUnusedSymbols(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	used, unused := sym(1), sym(2)
	caller := sym(3)
	edges := []model.Edge{
		{From: caller, To: used, Relation: model.RelCalls},
		{From: caller, To: unused, Relation: model.RelContains},
	}
	require.NoError(t, g.ApplyBatch(doc, edges, nil))

	ids, err := g.UnusedSymbols()
	require.NoError(t, err)
	assert.Contains(t, ids, unused, "only reached via Contains, so it counts as unused")
	assert.NotContains(t, ids, used)
}

func TestHotPaths(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	hot, cold := sym(1), sym(2)
	var edges []model.Edge
	for i := 0; i < 3; i++ {
		edges = append(edges, model.Edge{From: sym(uint64(10 + i)), To: hot, Relation: model.RelCalls})
	}
	edges = append(edges, model.Edge{From: sym(20), To: cold, Relation: model.RelCalls})
	require.NoError(t, g.ApplyBatch(doc, edges, nil))

	results, err := g.HotPaths(1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hot, results[0].Symbol)
	assert.Equal(t, 3, results[0].InDegree)
}

func TestPlaceholderResolution(t *testing.T) {
	g := newTestGraph(t)
	docA := model.NewDocumentID()
	caller := sym(1)
	placeholder := sym(999)
	require.NoError(t, g.RegisterPlaceholder(placeholder, "external.Func"))
	require.NoError(t, g.ApplyBatch(docA, []model.Edge{{From: caller, To: placeholder, Relation: model.RelCalls}}, nil))

	// Caller resolves through the placeholder before the real symbol exists.
	callers, err := g.FindCallers(placeholder, nil)
	require.NoError(t, err)
	require.Len(t, callers, 1)

	docB := model.NewDocumentID()
	real := sym(42)
	require.NoError(t, g.ApplyBatch(docB, nil, map[string]model.SymbolID{"external.Func": real}))

	callersOfReal, err := g.FindCallers(real, nil)
	require.NoError(t, err)
	require.Len(t, callersOfReal, 1)
	assert.Equal(t, caller, callersOfReal[0].Caller)

	callersOfPlaceholder, err := g.FindCallers(placeholder, nil)
	require.NoError(t, err)
	assert.Empty(t, callersOfPlaceholder, "edges redirected away from the placeholder")
}

func TestApplyBatchRejectsUnknownRelation(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	err := g.ApplyBatch(doc, []model.Edge{{From: sym(1), To: sym(2), Relation: model.EdgeRelation("Bogus")}}, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestApplyBatchReplacesDocumentsPriorEdges(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	require.NoError(t, g.ApplyBatch(doc, []model.Edge{{From: sym(1), To: sym(2), Relation: model.RelCalls}}, nil))
	require.NoError(t, g.ApplyBatch(doc, []model.Edge{{From: sym(1), To: sym(3), Relation: model.RelCalls}}, nil))

	callers2, err := g.FindCallers(sym(2), nil)
	require.NoError(t, err)
	assert.Empty(t, callers2, "re-applying a document's batch drops its old edges")

	callers3, err := g.FindCallers(sym(3), nil)
	require.NoError(t, err)
	require.Len(t, callers3, 1)
}

func TestCountByRelation(t *testing.T) {
	g := newTestGraph(t)
	doc := model.NewDocumentID()
	edges := []model.Edge{
		{From: sym(1), To: sym(2), Relation: model.RelCalls},
		{From: sym(1), To: sym(3), Relation: model.RelCalls},
		{From: sym(1), To: sym(4), Relation: model.RelImports},
	}
	require.NoError(t, g.ApplyBatch(doc, edges, nil))

	counts, err := g.CountByRelation()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.RelCalls])
	assert.Equal(t, 1, counts[model.RelImports])
}
