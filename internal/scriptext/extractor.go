package scriptext

import (
	"context"

	"github.com/google/uuid"

	"github.com/jward/cortex/internal/model"
)

// Extractor is the reference SymbolExtractor implementation: it loads a
// per-language Risor script and runs it against tree-sitter-parsed source,
// collecting the symbols and edges the script emits via emit_symbol/
// emit_edge. Construct with NewExtractor and assign the result to
// Config.SymbolExtractor.
type Extractor struct {
	runtime *Runtime
}

// NewExtractor returns an Extractor that loads extraction scripts from
// scriptsDir (conventionally extract/<language>.risor, one per language tag).
func NewExtractor(scriptsDir string, opts ...RuntimeOption) *Extractor {
	return &Extractor{runtime: NewRuntime(scriptsDir, opts...)}
}

// ExtractSymbols implements the engine's SymbolExtractor interface. The
// document id is not yet known to the caller at extraction time (the engine
// assigns it separately and overwrites every returned Symbol's Path field),
// so symbol ids are derived from a stable pseudo-id hashed from path --
// deterministic across re-extraction of the same file, which is all
// DeriveSymbolID requires.
func (e *Extractor) ExtractSymbols(ctx context.Context, path string, content []byte, languageTag string) ([]model.Symbol, []model.Edge, error) {
	if languageTag == "" {
		lang, ok := LanguageForPath(path)
		if !ok {
			return nil, nil, nil
		}
		languageTag = lang
	}
	pseudoID := model.DocumentID(uuid.NewSHA1(uuid.Nil, []byte(path)))
	return e.runtime.Extract(ctx, pseudoID, content, languageTag)
}
