// Package symboltable implements the Symbol Table: a persistent, queryable
// store of Symbol records with secondary indices on qualified name, owning
// document, and kind, per spec.md §4.4. Storage follows the teacher's
// SQLite data-access pattern (mattn/go-sqlite3, WAL journal mode), with the
// schema generalized from a file-and-symbol extraction schema to this
// engine's (document, symbol, span) model.
package symboltable

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jward/cortex/internal/model"
	"github.com/jward/cortex/internal/trigram"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS symbols (
  id              INTEGER PRIMARY KEY,
  symbol_id       TEXT NOT NULL UNIQUE,
  document_id     TEXT NOT NULL,
  qualified_name  TEXT NOT NULL,
  kind            TEXT NOT NULL,
  start_line      INTEGER NOT NULL,
  start_col       INTEGER NOT NULL,
  end_line        INTEGER NOT NULL,
  end_col         INTEGER NOT NULL,
  signature       TEXT,
  unresolved      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_symbols_qualified_name ON symbols(qualified_name);
CREATE INDEX IF NOT EXISTS idx_symbols_document_id ON symbols(document_id);
CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind);
`

// Table is the Symbol Table. It owns a single reader-writer lock coordinating
// with the fuzzy-lookup trigram index (spec.md §5's "one lock per index"),
// even though durability itself is delegated to SQLite's own WAL.
type Table struct {
	mu     sync.RWMutex
	db     *sql.DB
	fuzzy  *trigram.Index // indexes qualified_name text for fuzzy lookup
}

// Open opens (migrating if needed) the symbol table database at dbPath, and
// the fuzzy-lookup trigram index rooted at fuzzyDir.
func Open(dbPath, fuzzyDir string) (*Table, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("symboltable: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("symboltable: ping database: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("symboltable: migrate: %w", err)
	}

	fuzzy, err := trigram.Open(fuzzyDir, 0)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("symboltable: open fuzzy index: %w", err)
	}

	return &Table{db: db, fuzzy: fuzzy}, nil
}

func (t *Table) Close() error { return t.db.Close() }

// Flush persists the fuzzy-lookup trigram index's in-memory state to disk.
// The symbols table itself needs no explicit flush since SQLite durability
// runs through its own WAL.
func (t *Table) Flush() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fuzzy.Flush()
}

// UpsertForDocument atomically replaces every symbol previously owned by
// docID with syms, mirroring the teacher's DeleteFileData-then-reinsert
// idiom generalized to a single transaction.
func (t *Table) UpsertForDocument(docID model.DocumentID, syms []model.Symbol) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("symboltable: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM symbols WHERE document_id = ?`, docID.String()); err != nil {
		return fmt.Errorf("symboltable: delete prior symbols: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO symbols
		(symbol_id, document_id, qualified_name, kind, start_line, start_col, end_line, end_col, signature, unresolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("symboltable: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range syms {
		if !model.ValidKind(s.Kind) {
			return fmt.Errorf("symboltable: %w: unknown kind %q", model.ErrValidation, s.Kind)
		}
		unresolved := 0
		if s.Unresolved {
			unresolved = 1
		}
		if _, err := stmt.Exec(
			fmt.Sprintf("%d", s.ID), docID.String(), s.QualifiedName, string(s.Kind),
			s.Span.StartLine, s.Span.StartCol, s.Span.EndLine, s.Span.EndCol,
			s.Signature, unresolved,
		); err != nil {
			return fmt.Errorf("symboltable: insert symbol: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("symboltable: commit: %w", err)
	}

	t.fuzzy.RemoveDocument(docID)
	var names strings.Builder
	for _, s := range syms {
		names.WriteString(s.QualifiedName)
		names.WriteByte('\n')
	}
	t.fuzzy.IndexDocument(docID, []byte(names.String()))
	return nil
}

// DeleteForDocument removes every symbol owned by docID -- invoked when the
// owning document itself is deleted.
func (t *Table) DeleteForDocument(docID model.DocumentID) error {
	return t.UpsertForDocument(docID, nil)
}

// ByID returns the single symbol record for id.
func (t *Table) ByID(id model.SymbolID) (model.Symbol, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows, err := t.db.Query(`SELECT symbol_id, document_id, qualified_name, kind, start_line, start_col, end_line, end_col, signature, unresolved
		FROM symbols WHERE symbol_id = ?`, fmt.Sprintf("%d", id))
	if err != nil {
		return model.Symbol{}, fmt.Errorf("symboltable: lookup by id: %w", err)
	}
	defer rows.Close()
	syms, err := scanSymbols(rows)
	if err != nil {
		return model.Symbol{}, err
	}
	if len(syms) == 0 {
		return model.Symbol{}, fmt.Errorf("symbol %d: %w", id, model.ErrNotFound)
	}
	return syms[0], nil
}

// ByDocument lists every symbol owned by docID.
func (t *Table) ByDocument(docID model.DocumentID) ([]model.Symbol, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows, err := t.db.Query(`SELECT symbol_id, document_id, qualified_name, kind, start_line, start_col, end_line, end_col, signature, unresolved
		FROM symbols WHERE document_id = ? ORDER BY start_line, start_col`, docID.String())
	if err != nil {
		return nil, fmt.Errorf("symboltable: query by document: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// CountByKind returns the number of symbols of each kind, for the stats
// query's "symbol count by kind" breakdown.
func (t *Table) CountByKind() (map[model.SymbolKind]int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows, err := t.db.Query(`SELECT kind, COUNT(*) FROM symbols GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("symboltable: count by kind: %w", err)
	}
	defer rows.Close()
	out := make(map[model.SymbolKind]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		out[model.SymbolKind(kind)] = count
	}
	return out, rows.Err()
}

// Lookup returns symbols matching name, optionally filtered by kinds, using
// an exact qualified_name match unless fuzzy is true, in which case it falls
// back to the trigram-backed fuzzy index over qualified_name text.
func (t *Table) Lookup(name string, kinds []model.SymbolKind, fuzzy bool) ([]model.Symbol, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !fuzzy {
		q := `SELECT symbol_id, document_id, qualified_name, kind, start_line, start_col, end_line, end_col, signature, unresolved
			FROM symbols WHERE qualified_name = ?`
		args := []any{name}
		q, args = appendKindFilter(q, args, kinds)
		rows, err := t.db.Query(q, args...)
		if err != nil {
			return nil, fmt.Errorf("symboltable: lookup: %w", err)
		}
		defer rows.Close()
		return scanSymbols(rows)
	}

	results, err := t.fuzzy.Query(name)
	if err != nil {
		return nil, fmt.Errorf("symboltable: fuzzy lookup: %w", err)
	}
	var out []model.Symbol
	for _, r := range results {
		syms, err := t.byDocumentLocked(r.ID)
		if err != nil {
			return nil, err
		}
		for _, s := range syms {
			if !strings.Contains(s.QualifiedName, name) {
				continue
			}
			if !kindAllowed(s.Kind, kinds) {
				continue
			}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName < out[j].QualifiedName })
	return out, nil
}

func (t *Table) byDocumentLocked(docID model.DocumentID) ([]model.Symbol, error) {
	rows, err := t.db.Query(`SELECT symbol_id, document_id, qualified_name, kind, start_line, start_col, end_line, end_col, signature, unresolved
		FROM symbols WHERE document_id = ?`, docID.String())
	if err != nil {
		return nil, fmt.Errorf("symboltable: query by document: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

func appendKindFilter(q string, args []any, kinds []model.SymbolKind) (string, []any) {
	if len(kinds) == 0 {
		return q, args
	}
	placeholders := make([]string, len(kinds))
	for i, k := range kinds {
		placeholders[i] = "?"
		args = append(args, string(k))
	}
	return q + " AND kind IN (" + strings.Join(placeholders, ",") + ")", args
}

func kindAllowed(k model.SymbolKind, kinds []model.SymbolKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func scanSymbols(rows *sql.Rows) ([]model.Symbol, error) {
	var out []model.Symbol
	for rows.Next() {
		var symbolIDStr, docIDStr, kindStr string
		var s model.Symbol
		var unresolved int
		if err := rows.Scan(&symbolIDStr, &docIDStr, &s.QualifiedName, &kindStr,
			&s.Span.StartLine, &s.Span.StartCol, &s.Span.EndLine, &s.Span.EndCol,
			&s.Signature, &unresolved); err != nil {
			return nil, fmt.Errorf("symboltable: scan row: %w", err)
		}
		var symbolID uint64
		if _, err := fmt.Sscanf(symbolIDStr, "%d", &symbolID); err != nil {
			return nil, fmt.Errorf("symboltable: parse symbol id: %w", err)
		}
		docID, err := model.ParseDocumentID(docIDStr)
		if err != nil {
			return nil, fmt.Errorf("symboltable: parse document id: %w", err)
		}
		s.ID = model.SymbolID(symbolID)
		s.Path = docID
		s.Kind = model.SymbolKind(kindStr)
		s.Unresolved = unresolved != 0
		out = append(out, s)
	}
	return out, rows.Err()
}
