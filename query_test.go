package cortex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cortex/internal/model"
)

func TestContentSearchPagination(t *testing.T) {
	e := openTestEngine(t, nil)
	for i := 0; i < 5; i++ {
		_, err := e.Insert(context.Background(), "/doc"+string(rune('a'+i))+".md", "doc", []byte("needle here"), nil, "")
		require.NoError(t, err)
	}

	page1, err := e.Query().ContentSearch(context.Background(), "needle", 2, 0)
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page2, err := e.Query().ContentSearch(context.Background(), "needle", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page2, 2)

	page3, err := e.Query().ContentSearch(context.Background(), "needle", 2, 4)
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	beyond, err := e.Query().ContentSearch(context.Background(), "needle", 2, 100)
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestDocumentListPagination(t *testing.T) {
	e := openTestEngine(t, nil)
	for _, p := range []string{"/a.md", "/b.md", "/c.md"} {
		_, err := e.Insert(context.Background(), p, "doc", []byte("x"), nil, "")
		require.NoError(t, err)
	}

	page, err := e.Query().DocumentList(2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "/b.md", page[0].Path)
	assert.Equal(t, "/c.md", page[1].Path)
}

func TestSymbolSearchFuzzy(t *testing.T) {
	extractor := specExtractor{
		"/pkg.go": {{name: "pkg.LongFunctionName", kind: model.KindFunction}},
	}
	e := openTestEngine(t, extractor)
	_, err := e.Insert(context.Background(), "/pkg.go", "pkg", []byte("package pkg"), nil, "go")
	require.NoError(t, err)

	exact, err := e.Query().SymbolSearch("FunctionName", nil, false, 10)
	require.NoError(t, err)
	assert.Empty(t, exact, "exact lookup does not match a substring")

	fuzzy, err := e.Query().SymbolSearch("FunctionName", nil, true, 10)
	require.NoError(t, err)
	require.Len(t, fuzzy, 1)
	assert.Equal(t, "pkg.LongFunctionName", fuzzy[0].QualifiedName)
}

func TestHotPathsRanksByInDegree(t *testing.T) {
	extractor := specExtractor{
		"/hub.go": {
			{name: "hub", kind: model.KindFunction},
			{name: "spoke1", kind: model.KindFunction, calls: []string{"hub"}},
			{name: "spoke2", kind: model.KindFunction, calls: []string{"hub"}},
			{name: "lonely", kind: model.KindFunction},
		},
	}
	e := openTestEngine(t, extractor)
	_, err := e.Insert(context.Background(), "/hub.go", "hub", []byte("package hub"), nil, "go")
	require.NoError(t, err)

	hotspots, err := e.Query().HotPaths(1)
	require.NoError(t, err)
	require.Len(t, hotspots, 1)
	assert.Equal(t, "hub", hotspots[0].Symbol.QualifiedName)
	assert.Equal(t, 2, hotspots[0].InDegree)
}

func TestUnusedSymbolsExcludesCalledNames(t *testing.T) {
	extractor := specExtractor{
		"/a.go": {
			{name: "used", kind: model.KindFunction},
			{name: "unused", kind: model.KindFunction},
			{name: "caller", kind: model.KindFunction, calls: []string{"used"}},
		},
	}
	e := openTestEngine(t, extractor)
	_, err := e.Insert(context.Background(), "/a.go", "a", []byte("package a"), nil, "go")
	require.NoError(t, err)

	unused, err := e.Query().UnusedSymbols(nil)
	require.NoError(t, err)
	var names []string
	for _, s := range unused {
		names = append(names, s.QualifiedName)
	}
	assert.Contains(t, names, "unused")
	assert.Contains(t, names, "caller", "caller has no incoming edges itself")
	assert.NotContains(t, names, "used")
}

func TestCallChainThroughEngine(t *testing.T) {
	extractor := specExtractor{
		"/chain.go": {
			{name: "start", kind: model.KindFunction, calls: []string{"middle"}},
			{name: "middle", kind: model.KindFunction, calls: []string{"end"}},
			{name: "end", kind: model.KindFunction},
		},
	}
	e := openTestEngine(t, extractor)
	_, err := e.Insert(context.Background(), "/chain.go", "chain", []byte("package chain"), nil, "go")
	require.NoError(t, err)

	path, err := e.Query().CallChain("start", "end", 5)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, []string{"start", "middle", "end"}, []string{path[0].QualifiedName, path[1].QualifiedName, path[2].QualifiedName})
}

func TestCallChainNoPathReturnsNil(t *testing.T) {
	extractor := specExtractor{
		"/disjoint.go": {
			{name: "alone1", kind: model.KindFunction},
			{name: "alone2", kind: model.KindFunction},
		},
	}
	e := openTestEngine(t, extractor)
	_, err := e.Insert(context.Background(), "/disjoint.go", "disjoint", []byte("package disjoint"), nil, "go")
	require.NoError(t, err)

	path, err := e.Query().CallChain("alone1", "alone2", 5)
	require.NoError(t, err)
	assert.Nil(t, path)
}
