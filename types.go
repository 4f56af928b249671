package cortex

import "github.com/jward/cortex/internal/model"

// These aliases expose the shared data model at the package root, in the
// teacher's type-alias idiom (canopy's root-level types.go), so callers
// never need to import internal/model directly.
type (
	DocumentID   = model.DocumentID
	Document     = model.Document
	SymbolID     = model.SymbolID
	Symbol       = model.Symbol
	SymbolKind   = model.SymbolKind
	Span         = model.Span
	EdgeRelation = model.EdgeRelation
	Edge         = model.Edge
	Site         = model.Site
)

const (
	KindFunction  = model.KindFunction
	KindMethod    = model.KindMethod
	KindStruct    = model.KindStruct
	KindClass     = model.KindClass
	KindEnum      = model.KindEnum
	KindTrait     = model.KindTrait
	KindInterface = model.KindInterface
	KindModule    = model.KindModule
	KindVariable  = model.KindVariable
	KindConstant  = model.KindConstant
	KindTypeAlias = model.KindTypeAlias
	KindMacro     = model.KindMacro
	KindOther     = model.KindOther
)

const (
	RelCalls      = model.RelCalls
	RelImports    = model.RelImports
	RelExtends    = model.RelExtends
	RelImplements = model.RelImplements
	RelContains   = model.RelContains
	RelReferences = model.RelReferences
	RelReturns    = model.RelReturns
	RelTakes      = model.RelTakes
)

// NewDocumentID generates a fresh random document identifier.
func NewDocumentID() DocumentID { return model.NewDocumentID() }

// ParseDocumentID parses the canonical hyphenated string form of a document id.
func ParseDocumentID(s string) (DocumentID, error) { return model.ParseDocumentID(s) }
