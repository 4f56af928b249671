package scriptext

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/cortex/internal/model"
)

// Runtime embeds the Risor VM wiring shared by every extraction run: tree-
// sitter host functions, script loading, and the import resolver. It holds
// no document-specific state -- that lives in the per-call collector -- so
// one Runtime can extract many documents concurrently.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	sources    *sourceStore
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithFS configures the Runtime to load scripts from an fs.FS (e.g. an
// embedded filesystem) instead of scriptsDir.
func WithFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) { r.fsys = fsys }
}

// NewRuntime creates a Runtime that loads extraction scripts from
// scriptsDir (or an fs.FS, if WithFS is supplied).
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{scriptsDir: scriptsDir, sources: newSourceStore()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ExtractionScriptPath returns the conventional path of a language's
// extraction script, mirroring the teacher's extract/<language>.risor
// layout.
func ExtractionScriptPath(language string) string {
	return filepath.Join("extract", language+".risor")
}

// LoadScript reads a .risor file's source, from the configured fs.FS or disk.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("scriptext: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}
	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("scriptext: loading script %s: %w", full, err)
	}
	return string(data), nil
}

// Extract loads and runs the extraction script for language against src,
// collecting every symbol and edge the script emits.
func (r *Runtime) Extract(ctx context.Context, path model.DocumentID, src []byte, language string) ([]model.Symbol, []model.Edge, error) {
	script, err := r.LoadScript(ExtractionScriptPath(language))
	if err != nil {
		return nil, nil, err
	}
	return r.eval(ctx, path, src, language, script)
}

// ExtractSource runs Risor source directly instead of loading it from a
// script file, for tests and inline use.
func (r *Runtime) ExtractSource(ctx context.Context, path model.DocumentID, src []byte, language, source string) ([]model.Symbol, []model.Edge, error) {
	return r.eval(ctx, path, src, language, source)
}

func (r *Runtime) eval(ctx context.Context, path model.DocumentID, src []byte, language, source string) ([]model.Symbol, []model.Edge, error) {
	c := newCollector(path)
	globals := r.buildGlobals(c)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}
	opts = append(opts, risor.WithGlobal("__source", string(src)), risor.WithGlobal("__language", language))

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return nil, nil, fmt.Errorf("scriptext: extraction script: %w", err)
	}
	return c.symbols, c.edges, nil
}

func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{GlobalNames: names, SourceFS: r.fsys, Extensions: []string{".risor"}})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{GlobalNames: names, SourceDir: r.scriptsDir, Extensions: []string{".risor"}})
	}
	return nil
}

func (r *Runtime) buildGlobals(c *collector) map[string]any {
	return map[string]any{
		"parse_src":      makeParseSrcFn(r.sources),
		"node_text":      makeNodeTextFn(r.sources),
		"node_child":     makeNodeChildFn(),
		"query":          makeQueryFn(r.sources),
		"log":            mustProxy(&logObject{prefix: "cortex"}),
		"emit_symbol":    makeEmitSymbolFn(c),
		"resolve_symbol": makeResolveSymbolFn(c),
		"placeholder":    makePlaceholderFn(c),
		"emit_edge":      makeEmitEdgeFn(c),
	}
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("scriptext: proxy error: %v", err))
	}
	return p
}
