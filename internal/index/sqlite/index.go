package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kestrelsearch/kestrel/internal/domain"
	"github.com/kestrelsearch/kestrel/internal/index"
)

// Compile-time check: Index implements index.Index.
var _ index.Index = (*Index)(nil)

// Index is an FTS5-backed file index. Title and body are tokenized;
// path and file metadata ride along unindexed.
type Index struct {
	db *sql.DB
}

const createTable = `CREATE VIRTUAL TABLE IF NOT EXISTS docs USING fts5(
	title, body,
	path UNINDEXED, size UNINDEXED, mtime UNINDEXED, ctime UNINDEXED, atime UNINDEXED,
	tokenize='unicode61'
)`

// Open creates or opens the index database at path. Use ":memory:"
// for an ephemeral index.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite index: %w", err)
	}
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create fts table: %w", err)
	}
	return &Index{db: db}, nil
}

// Search runs an OR-of-keywords MATCH ranked by bm25.
func (ix *Index) Search(ctx context.Context, keywords []string, limit int) ([]domain.Hit, error) {
	if len(keywords) == 0 {
		return ix.MatchAll(ctx, limit)
	}

	parts := make([]string, 0, len(keywords)*2)
	for _, kw := range keywords {
		term := quoteFTSTerm(kw)
		parts = append(parts, "title:"+term, "body:"+term)
	}
	match := "(" + strings.Join(parts, " OR ") + ")"

	rows, err := ix.db.QueryContext(ctx, `
		SELECT path, title, snippet(docs, 1, '', '', '…', 12), -bm25(docs),
		       size, mtime, ctime, atime
		FROM docs WHERE docs MATCH ?
		ORDER BY bm25(docs) LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()
	return scanHits(rows, true)
}

// MatchAll returns documents without a text predicate.
func (ix *Index) MatchAll(ctx context.Context, limit int) ([]domain.Hit, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT path, title, size, mtime, ctime, atime
		FROM docs LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("fts scan: %w", err)
	}
	defer rows.Close()
	return scanHits(rows, false)
}

// Upsert replaces documents keyed by path.
func (ix *Index) Upsert(ctx context.Context, docs []index.Document) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if _, err := tx.ExecContext(ctx, "DELETE FROM docs WHERE path = ?", doc.Path); err != nil {
			return fmt.Errorf("delete stale doc: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO docs(title, body, path, size, mtime, ctime, atime)
			VALUES(?, ?, ?, ?, ?, ?, ?)`,
			doc.Title, doc.Body, doc.Path, doc.Size, doc.MTime, doc.CTime, doc.ATime)
		if err != nil {
			return fmt.Errorf("insert doc: %w", err)
		}
	}
	return tx.Commit()
}

// Ping verifies the table is queryable.
func (ix *Index) Ping(ctx context.Context) error {
	var n int
	if err := ix.db.QueryRowContext(ctx, "SELECT count(*) FROM docs WHERE 0=1").Scan(&n); err != nil {
		return fmt.Errorf("ping index: %w", err)
	}
	return nil
}

func (ix *Index) Close() error { return ix.db.Close() }

func scanHits(rows *sql.Rows, scored bool) ([]domain.Hit, error) {
	var hits []domain.Hit
	for rows.Next() {
		var h domain.Hit
		var err error
		if scored {
			err = rows.Scan(&h.Path, &h.Title, &h.Snippet, &h.Score,
				&h.Size, &h.MTime, &h.CTime, &h.ATime)
		} else {
			err = rows.Scan(&h.Path, &h.Title, &h.Size, &h.MTime, &h.CTime, &h.ATime)
		}
		if err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// quoteFTSTerm quotes a term for FTS5 MATCH when it contains syntax
// characters, doubling embedded quotes.
func quoteFTSTerm(term string) string {
	need := false
	for _, c := range term {
		switch {
		case c == '"' || c == ':' || c == '*' || c == '(' || c == ')' || c == '^' || c == '-':
			need = true
		case c <= ' ':
			need = true
		}
		if need {
			break
		}
	}
	if !need {
		return term
	}
	esc := strings.ReplaceAll(term, `"`, `""`)
	return `"` + esc + `"`
}
