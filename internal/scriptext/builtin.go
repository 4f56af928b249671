package scriptext

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"

	"github.com/google/uuid"

	"github.com/jward/cortex/internal/model"
)

// GoExtractor is the built-in, script-free fallback extractor for Go source,
// per spec.md §6's "or a small built-in Go-language extractor that needs no
// script at all". It walks go/parser's AST directly rather than going
// through tree-sitter and Risor -- there is no separate third-party Go AST
// library in the example pack to reach for here, and go/parser is the
// standard tool the language itself ships for this exact job.
type GoExtractor struct{}

// ExtractSymbols implements the engine's SymbolExtractor interface for Go
// source. A document whose languageTag is set to anything other than "go",
// or whose languageTag is empty and whose path is not a .go file, is passed
// through with no symbols or edges.
func (GoExtractor) ExtractSymbols(ctx context.Context, path string, content []byte, languageTag string) ([]model.Symbol, []model.Edge, error) {
	if languageTag != "" && languageTag != "go" {
		return nil, nil, nil
	}
	if languageTag == "" {
		if lang, ok := LanguageForPath(path); !ok || lang != "go" {
			return nil, nil, nil
		}
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		// Unparseable source extracts no symbols rather than failing the
		// whole document write -- the engine already treats extractor
		// errors as non-fatal, but a syntax error in one file shouldn't
		// even surface as a degraded-coverage warning for an otherwise
		// valid ingest.
		return nil, nil, nil
	}

	pseudoID := model.DocumentID(uuid.NewSHA1(uuid.Nil, []byte(path)))
	c := newCollector(pseudoID)

	// First pass: every top-level func/type/const/var declaration.
	funcsByName := make(map[string]model.SymbolID)
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			kind := model.KindFunction
			name := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				kind = model.KindMethod
				name = receiverTypeName(d.Recv.List[0].Type) + "." + name
			}
			span := spanOf(fset, d.Pos(), d.End())
			id, err := c.emitSymbol(name, kind, span, funcSignature(d))
			if err == nil {
				funcsByName[d.Name.Name] = id
			}
		case *ast.GenDecl:
			emitGenDecl(c, fset, d)
		}
	}

	// Second pass: direct same-package call edges. Cross-package or
	// cross-file calls resolve to a placeholder keyed by the called name.
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		callerName := fn.Name.Name
		if fn.Recv != nil && len(fn.Recv.List) > 0 {
			callerName = receiverTypeName(fn.Recv.List[0].Type) + "." + callerName
		}
		callerID, ok := c.resolve(callerName)
		if !ok {
			continue
		}
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			name, ok := calleeName(call.Fun)
			if !ok {
				return true
			}
			toID, ok := c.resolve(name)
			if !ok {
				toID = c.placeholder(name)
			}
			pos := fset.Position(call.Pos())
			c.emitEdge(callerID, toID, model.RelCalls, &model.Site{Line: pos.Line, Col: pos.Column})
			return true
		})
	}

	return c.symbols, c.edges, nil
}

func emitGenDecl(c *collector, fset *token.FileSet, d *ast.GenDecl) {
	for _, spec := range d.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			kind := model.KindStruct
			switch s.Type.(type) {
			case *ast.InterfaceType:
				kind = model.KindInterface
			case *ast.StructType:
				kind = model.KindStruct
			default:
				kind = model.KindTypeAlias
			}
			span := spanOf(fset, s.Pos(), s.End())
			c.emitSymbol(s.Name.Name, kind, span, "")
		case *ast.ValueSpec:
			kind := model.KindVariable
			if d.Tok == token.CONST {
				kind = model.KindConstant
			}
			for _, name := range s.Names {
				if name.Name == "_" {
					continue
				}
				span := spanOf(fset, name.Pos(), name.End())
				c.emitSymbol(name.Name, kind, span, "")
			}
		}
	}
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return "?"
	}
}

func calleeName(expr ast.Expr) (string, bool) {
	switch f := expr.(type) {
	case *ast.Ident:
		return f.Name, true
	case *ast.SelectorExpr:
		return f.Sel.Name, true
	default:
		return "", false
	}
}

func funcSignature(d *ast.FuncDecl) string {
	if d.Type == nil {
		return ""
	}
	sig := d.Name.Name + "("
	if d.Type.Params != nil {
		for i, field := range d.Type.Params.List {
			if i > 0 {
				sig += ", "
			}
			sig += fieldTypeName(field.Type)
		}
	}
	return sig + ")"
}

func fieldTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + fieldTypeName(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	case *ast.ArrayType:
		return "[]" + fieldTypeName(t.Elt)
	default:
		return "?"
	}
}

func spanOf(fset *token.FileSet, start, end token.Pos) model.Span {
	s, e := fset.Position(start), fset.Position(end)
	return model.Span{StartLine: s.Line, StartCol: s.Column, EndLine: e.Line, EndCol: e.Column}
}
