package scriptext

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/cortex/internal/model"
)

// makeParseSrcFn creates "parse_src" — parses in-memory source for language
// and returns a proxied *sitter.Tree. Extraction scripts always receive
// source already read by the engine, so unlike the teacher's runtime there
// is no path-reading "parse" variant.
//
// parse_src(source, language) -> Tree
func makeParseSrcFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		srcStr, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("parse_src: source must be a string, got %s", args[0].Type())
		}
		langStr, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("parse_src: language must be a string, got %s", args[1].Type())
		}

		lang, found := grammarFor(langStr.Value())
		if !found {
			return object.Errorf("parse_src: unsupported language %q", langStr.Value())
		}

		parser := sitter.NewParser()
		defer parser.Close()
		parser.SetLanguage(lang)

		src := []byte(srcStr.Value())
		tree, err := parser.ParseCtx(ctx, nil, src)
		if err != nil {
			return object.Errorf("parse_src: tree-sitter parse failed: %v", err)
		}
		ss.store(tree, src, lang)

		proxy, err := object.NewProxy(tree)
		if err != nil {
			return object.Errorf("parse_src: proxy error: %v", err)
		}
		return proxy
	})
}

// makeNodeTextFn creates "node_text" — returns node content as a string,
// since Risor's proxy system cannot convert strings to []byte for
// node.Content([]byte).
//
// node_text(node) -> string
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, err := nodeArg(args[0], "node_text")
		if err != nil {
			return object.Errorf("%v", err)
		}
		src, found := ss.sourceForNode(node)
		if !found {
			return object.Errorf("node_text: no source found for node's tree")
		}
		return object.NewString(node.Content(src))
	})
}

// makeNodeChildFn creates "node_child" — safe wrapper for ChildByFieldName
// returning Risor nil instead of a proxied Go nil pointer.
//
// node_child(node, fieldName) -> Node or nil
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, err := nodeArg(args[0], "node_child")
		if err != nil {
			return object.Errorf("%v", err)
		}
		fieldStr, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("node_child: field must be a string, got %s", args[1].Type())
		}
		child := node.ChildByFieldName(fieldStr.Value())
		if child == nil {
			return object.Nil
		}
		p, err2 := object.NewProxy(child)
		if err2 != nil {
			return object.Errorf("node_child: proxy error: %v", err2)
		}
		return p
	})
}

// makeQueryFn creates "query" — runs a tree-sitter query pattern rooted at
// node and returns a list of capture-name -> Node maps.
//
// query(pattern, node) -> []map[string]any
func makeQueryFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		patternStr, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("query: pattern must be a string, got %s", args[0].Type())
		}
		node, err := nodeArg(args[1], "query")
		if err != nil {
			return object.Errorf("%v", err)
		}

		lang, found := ss.languageForNode(node)
		if !found {
			return object.Errorf("query: no language found for node's tree")
		}
		src, found := ss.sourceForNode(node)
		if !found {
			return object.Errorf("query: no source found for node's tree")
		}

		q, err2 := sitter.NewQuery([]byte(patternStr.Value()), lang)
		if err2 != nil {
			return object.Errorf("query: invalid pattern: %v", err2)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		var results []object.Object
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, src)
			matchMap := make(map[string]object.Object)
			for _, capture := range match.Captures {
				name := q.CaptureNameForId(capture.Index)
				nodeP, perr := object.NewProxy(capture.Node)
				if perr != nil {
					return object.Errorf("query: proxy error for capture %q: %v", name, perr)
				}
				matchMap[name] = nodeP
			}
			results = append(results, object.NewMap(matchMap))
		}
		if results == nil {
			results = []object.Object{}
		}
		return object.NewList(results)
	})
}

func nodeArg(arg object.Object, fn string) (*sitter.Node, error) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, fmt.Errorf("%s: expected proxy (Node), got %s", fn, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, fmt.Errorf("%s: expected *sitter.Node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

// makeEmitSymbolFn creates "emit_symbol" — records a symbol definition and
// returns its numeric id, so the script can reference it in emit_edge calls.
//
// emit_symbol(name, kind, start_line, start_col, end_line, end_col, signature) -> int
func makeEmitSymbolFn(c *collector) *object.Builtin {
	return object.NewBuiltin("emit_symbol", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 7 {
			return object.NewArgsError("emit_symbol", 7, len(args))
		}
		name, err := stringArg(args[0], "emit_symbol", "name")
		if err != nil {
			return object.Errorf("%v", err)
		}
		kind, err := stringArg(args[1], "emit_symbol", "kind")
		if err != nil {
			return object.Errorf("%v", err)
		}
		span, err := spanArgs(args[2:6], "emit_symbol")
		if err != nil {
			return object.Errorf("%v", err)
		}
		sig, err := stringArg(args[6], "emit_symbol", "signature")
		if err != nil {
			return object.Errorf("%v", err)
		}
		id, err := c.emitSymbol(name, model.SymbolKind(kind), span, sig)
		if err != nil {
			return object.Errorf("emit_symbol: %v", err)
		}
		return object.NewInt(int64(id))
	})
}

// makeResolveSymbolFn creates "resolve_symbol" — looks up a name among
// symbols already emitted for the current document.
//
// resolve_symbol(name) -> int or nil
func makeResolveSymbolFn(c *collector) *object.Builtin {
	return object.NewBuiltin("resolve_symbol", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("resolve_symbol", 1, len(args))
		}
		name, err := stringArg(args[0], "resolve_symbol", "name")
		if err != nil {
			return object.Errorf("%v", err)
		}
		id, ok := c.resolve(name)
		if !ok {
			return object.Nil
		}
		return object.NewInt(int64(id))
	})
}

// makePlaceholderFn creates "placeholder" — registers an unresolved stand-in
// symbol for a name this document references but does not define.
//
// placeholder(name) -> int
func makePlaceholderFn(c *collector) *object.Builtin {
	return object.NewBuiltin("placeholder", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("placeholder", 1, len(args))
		}
		name, err := stringArg(args[0], "placeholder", "name")
		if err != nil {
			return object.Errorf("%v", err)
		}
		return object.NewInt(int64(c.placeholder(name)))
	})
}

// makeEmitEdgeFn creates "emit_edge" — records a typed relation between two
// symbol ids, both already returned by emit_symbol/resolve_symbol/placeholder.
//
// emit_edge(from_id, to_id, relation, site_line, site_col)
func makeEmitEdgeFn(c *collector) *object.Builtin {
	return object.NewBuiltin("emit_edge", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 5 {
			return object.NewArgsError("emit_edge", 5, len(args))
		}
		from, err := intArg(args[0], "emit_edge", "from_id")
		if err != nil {
			return object.Errorf("%v", err)
		}
		to, err := intArg(args[1], "emit_edge", "to_id")
		if err != nil {
			return object.Errorf("%v", err)
		}
		rel, err := stringArg(args[2], "emit_edge", "relation")
		if err != nil {
			return object.Errorf("%v", err)
		}
		line, err := intArg(args[3], "emit_edge", "site_line")
		if err != nil {
			return object.Errorf("%v", err)
		}
		col, err := intArg(args[4], "emit_edge", "site_col")
		if err != nil {
			return object.Errorf("%v", err)
		}
		var site *model.Site
		if line > 0 {
			site = &model.Site{Line: int(line), Col: int(col)}
		}
		if err := c.emitEdge(model.SymbolID(from), model.SymbolID(to), model.EdgeRelation(rel), site); err != nil {
			return object.Errorf("emit_edge: %v", err)
		}
		return object.Nil
	})
}

// logObject provides log.info/warn/error methods to extraction scripts.
type logObject struct{ prefix string }

func (l *logObject) Info(msg string)  { fmt.Printf("[%s] INFO: %s\n", l.prefix, msg) }
func (l *logObject) Warn(msg string)  { fmt.Printf("[%s] WARN: %s\n", l.prefix, msg) }
func (l *logObject) Error(msg string) { fmt.Printf("[%s] ERROR: %s\n", l.prefix, msg) }

func stringArg(arg object.Object, fn, field string) (string, error) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", fmt.Errorf("%s: %s must be a string, got %s", fn, field, arg.Type())
	}
	return s.Value(), nil
}

func intArg(arg object.Object, fn, field string) (int64, error) {
	i, ok := arg.(*object.Int)
	if !ok {
		return 0, fmt.Errorf("%s: %s must be an int, got %s", fn, field, arg.Type())
	}
	return i.Value(), nil
}

func spanArgs(args []object.Object, fn string) (model.Span, error) {
	startLine, err := intArg(args[0], fn, "start_line")
	if err != nil {
		return model.Span{}, err
	}
	startCol, err := intArg(args[1], fn, "start_col")
	if err != nil {
		return model.Span{}, err
	}
	endLine, err := intArg(args[2], fn, "end_line")
	if err != nil {
		return model.Span{}, err
	}
	endCol, err := intArg(args[3], fn, "end_col")
	if err != nil {
		return model.Span{}, err
	}
	return model.Span{StartLine: int(startLine), StartCol: int(startCol), EndLine: int(endLine), EndCol: int(endCol)}, nil
}
