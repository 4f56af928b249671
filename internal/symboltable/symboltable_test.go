package symboltable

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cortex/internal/model"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	dir := t.TempDir()
	tbl, err := Open(filepath.Join(dir, "table"), filepath.Join(dir, "fuzzy"))
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func makeSymbol(docID model.DocumentID, name string, kind model.SymbolKind, line int) model.Symbol {
	span := model.Span{StartLine: line, StartCol: 1, EndLine: line, EndCol: 10}
	return model.Symbol{
		ID:            model.DeriveSymbolID(docID, kind, name, span),
		QualifiedName: name,
		Kind:          kind,
		Path:          docID,
		Span:          span,
	}
}

func TestUpsertAndByID(t *testing.T) {
	tbl := newTestTable(t)
	docID := model.NewDocumentID()
	sym := makeSymbol(docID, "pkg.Foo", model.KindFunction, 10)

	require.NoError(t, tbl.UpsertForDocument(docID, []model.Symbol{sym}))

	got, err := tbl.ByID(sym.ID)
	require.NoError(t, err)
	assert.Equal(t, "pkg.Foo", got.QualifiedName)
	assert.Equal(t, model.KindFunction, got.Kind)
}

func TestByIDNotFound(t *testing.T) {
	tbl := newTestTable(t)
	_, err := tbl.ByID(model.SymbolID(12345))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpsertReplacesPriorSymbolsForDocument(t *testing.T) {
	tbl := newTestTable(t)
	docID := model.NewDocumentID()
	first := makeSymbol(docID, "pkg.Old", model.KindFunction, 1)
	require.NoError(t, tbl.UpsertForDocument(docID, []model.Symbol{first}))

	second := makeSymbol(docID, "pkg.New", model.KindFunction, 2)
	require.NoError(t, tbl.UpsertForDocument(docID, []model.Symbol{second}))

	_, err := tbl.ByID(first.ID)
	assert.ErrorIs(t, err, model.ErrNotFound, "old symbols for the document are gone")
	got, err := tbl.ByID(second.ID)
	require.NoError(t, err)
	assert.Equal(t, "pkg.New", got.QualifiedName)
}

func TestDeleteForDocumentRemovesOwnedSymbols(t *testing.T) {
	tbl := newTestTable(t)
	docID := model.NewDocumentID()
	sym := makeSymbol(docID, "pkg.Foo", model.KindFunction, 1)
	require.NoError(t, tbl.UpsertForDocument(docID, []model.Symbol{sym}))

	require.NoError(t, tbl.DeleteForDocument(docID))

	syms, err := tbl.ByDocument(docID)
	require.NoError(t, err)
	assert.Empty(t, syms)
}

func TestLookupExactAndKindFilter(t *testing.T) {
	tbl := newTestTable(t)
	docID := model.NewDocumentID()
	fn := makeSymbol(docID, "shared.Name", model.KindFunction, 1)
	ty := makeSymbol(docID, "shared.Name", model.KindStruct, 5)
	require.NoError(t, tbl.UpsertForDocument(docID, []model.Symbol{fn, ty}))

	all, err := tbl.Lookup("shared.Name", nil, false)
	require.NoError(t, err)
	assert.Len(t, all, 2, "overloaded name across kinds both match")

	filtered, err := tbl.Lookup("shared.Name", []model.SymbolKind{model.KindFunction}, false)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, model.KindFunction, filtered[0].Kind)
}

func TestLookupFuzzyMatchesSubstring(t *testing.T) {
	tbl := newTestTable(t)
	docID := model.NewDocumentID()
	sym := makeSymbol(docID, "package.LongFunctionName", model.KindFunction, 1)
	require.NoError(t, tbl.UpsertForDocument(docID, []model.Symbol{sym}))

	results, err := tbl.Lookup("FunctionName", nil, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, sym.ID, results[0].ID)
}

func TestLookupMissNameReturnsEmpty(t *testing.T) {
	tbl := newTestTable(t)
	results, err := tbl.Lookup("nope.Nothing", nil, false)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCountByKind(t *testing.T) {
	tbl := newTestTable(t)
	docID := model.NewDocumentID()
	syms := []model.Symbol{
		makeSymbol(docID, "a", model.KindFunction, 1),
		makeSymbol(docID, "b", model.KindFunction, 2),
		makeSymbol(docID, "c", model.KindStruct, 3),
	}
	require.NoError(t, tbl.UpsertForDocument(docID, syms))

	counts, err := tbl.CountByKind()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.KindFunction])
	assert.Equal(t, 1, counts[model.KindStruct])
}

func TestUpsertRejectsUnknownKind(t *testing.T) {
	tbl := newTestTable(t)
	docID := model.NewDocumentID()
	sym := makeSymbol(docID, "a", model.KindFunction, 1)
	sym.Kind = model.SymbolKind("NotAKind")

	err := tbl.UpsertForDocument(docID, []model.Symbol{sym})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestByDocumentOrdersBySpan(t *testing.T) {
	tbl := newTestTable(t)
	docID := model.NewDocumentID()
	late := makeSymbol(docID, "b", model.KindFunction, 20)
	early := makeSymbol(docID, "a", model.KindFunction, 5)
	require.NoError(t, tbl.UpsertForDocument(docID, []model.Symbol{late, early}))

	syms, err := tbl.ByDocument(docID)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "a", syms[0].QualifiedName)
	assert.Equal(t, "b", syms[1].QualifiedName)
}
