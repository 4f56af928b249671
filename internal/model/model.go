// Package model defines the data types shared by every leaf component of the
// engine: the Document Store, Primary Index, Trigram Index, Symbol Table, and
// Dependency Graph all speak in terms of these types, so none of them needs
// to import another's package to agree on what a Document or Symbol is.
package model

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// DocumentID is the opaque 128-bit identifier assigned to a Document at
// insert time.
type DocumentID uuid.UUID

// NewDocumentID generates a fresh random document identifier.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.New())
}

// ParseDocumentID parses the canonical hyphenated string form.
func ParseDocumentID(s string) (DocumentID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return DocumentID{}, fmt.Errorf("parse document id: %w", err)
	}
	return DocumentID(id), nil
}

func (id DocumentID) String() string { return uuid.UUID(id).String() }

// IsZero reports whether id is the zero value (never assigned).
func (id DocumentID) IsZero() bool { return id == DocumentID{} }

// Document is the stored unit: a path-keyed byte blob with metadata.
type Document struct {
	ID        DocumentID
	Path      string
	Title     string
	Content   []byte
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Size returns the authoritative derived byte length of Content.
func (d *Document) Size() int64 { return int64(len(d.Content)) }

// SymbolKind enumerates the kinds of program entity the extractor may
// report. Other is the escape hatch for languages/extractors that surface a
// kind this engine has no dedicated bucket for.
type SymbolKind string

const (
	KindFunction    SymbolKind = "Function"
	KindMethod      SymbolKind = "Method"
	KindStruct      SymbolKind = "Struct"
	KindClass       SymbolKind = "Class"
	KindEnum        SymbolKind = "Enum"
	KindTrait       SymbolKind = "Trait"
	KindInterface   SymbolKind = "Interface"
	KindModule      SymbolKind = "Module"
	KindVariable    SymbolKind = "Variable"
	KindConstant    SymbolKind = "Constant"
	KindTypeAlias   SymbolKind = "TypeAlias"
	KindMacro       SymbolKind = "Macro"
	KindOther       SymbolKind = "Other"
)

// ValidKind reports whether k is one of the enumerated SymbolKind values.
func ValidKind(k SymbolKind) bool {
	switch k {
	case KindFunction, KindMethod, KindStruct, KindClass, KindEnum, KindTrait,
		KindInterface, KindModule, KindVariable, KindConstant, KindTypeAlias,
		KindMacro, KindOther:
		return true
	}
	return false
}

// Span is a 1-indexed, end-inclusive source range.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// SymbolID is a stable identifier derived deterministically from a symbol's
// (path, kind, qualified_name, start_span) tuple, so re-extracting the same
// file reproduces the same ids without a central counter.
type SymbolID uint64

// DeriveSymbolID computes the deterministic id for a symbol's identity
// tuple. Two symbols with the same path, kind, qualified name, and start
// position always collide to the same id -- this is intentional, mirroring
// spec.md's "stable identifier" requirement.
func DeriveSymbolID(path DocumentID, kind SymbolKind, qualifiedName string, start Span) SymbolID {
	h := xxhash.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d:%d", path.String(), kind, qualifiedName, start.StartLine, start.StartCol)
	return SymbolID(h.Sum64())
}

// Symbol is a named program entity extracted from a Document.
type Symbol struct {
	ID            SymbolID
	QualifiedName string
	Kind          SymbolKind
	Path          DocumentID
	Span          Span
	Signature     string
	Unresolved    bool // true for placeholder nodes standing in for unknown names
}

// EdgeRelation enumerates the kinds of relation an Edge may carry.
type EdgeRelation string

const (
	RelCalls      EdgeRelation = "Calls"
	RelImports    EdgeRelation = "Imports"
	RelExtends    EdgeRelation = "Extends"
	RelImplements EdgeRelation = "Implements"
	RelContains   EdgeRelation = "Contains"
	RelReferences EdgeRelation = "References"
	RelReturns    EdgeRelation = "Returns"
	RelTakes      EdgeRelation = "Takes"
)

// ValidRelation reports whether r is one of the enumerated EdgeRelation values.
func ValidRelation(r EdgeRelation) bool {
	switch r {
	case RelCalls, RelImports, RelExtends, RelImplements, RelContains,
		RelReferences, RelReturns, RelTakes:
		return true
	}
	return false
}

// Site is an optional reference point for an Edge.
type Site struct {
	Line int
	Col  int
}

// Edge is a typed relation between two symbols. To may reference a
// placeholder (unresolved) symbol when the extractor reported a call or
// reference to a name not yet present in the symbol table.
type Edge struct {
	From     SymbolID
	To       SymbolID
	Relation EdgeRelation
	Site     *Site
}

// EdgeState is the lifecycle state of a committed graph edge (spec.md
// §4.5's "State machine per edge").
type EdgeState uint8

const (
	EdgeProposed EdgeState = iota
	EdgeCommitted
	EdgeDeleted
	EdgeRedirected
)

func (s EdgeState) String() string {
	switch s {
	case EdgeProposed:
		return "proposed"
	case EdgeCommitted:
		return "committed"
	case EdgeDeleted:
		return "deleted"
	case EdgeRedirected:
		return "redirected"
	default:
		return "unknown"
	}
}
