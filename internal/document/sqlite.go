package document

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"askmydoc/internal/apperr"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    object_key TEXT NOT NULL DEFAULT '',
    extracted_text TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at DESC);
`

// OpenSQLite opens (creating if needed) an embedded database file. ":memory:" is accepted.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	return db, nil
}

type SQLiteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo creates the schema if it does not exist yet.
func NewSQLiteRepo(ctx context.Context, db *sql.DB) (*SQLiteRepo, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("creating documents schema: %w", err)
	}
	return &SQLiteRepo{db: db}, nil
}

func (r *SQLiteRepo) Insert(ctx context.Context, doc *Document) error {
	createdAt := time.Now().UTC()
	query := `INSERT INTO documents (id, name, object_key, extracted_text, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, doc.ID, doc.Name, doc.ObjectKey, doc.ExtractedText, createdAt); err != nil {
		return apperr.Wrap(apperr.ErrPersist, "insert document", err)
	}
	doc.CreatedAt = createdAt
	return nil
}

func (r *SQLiteRepo) Get(ctx context.Context, id string) (*Document, error) {
	d := &Document{}
	query := `SELECT id, name, object_key, extracted_text, created_at FROM documents WHERE id = ?`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Name, &d.ObjectKey, &d.ExtractedText, &d.CreatedAt)
	if err != nil {
		return nil, lookupErr("get document "+id, err)
	}
	return d, nil
}

func (r *SQLiteRepo) GetText(ctx context.Context, id string) (string, error) {
	var text string
	query := `SELECT extracted_text FROM documents WHERE id = ?`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&text); err != nil {
		return "", lookupErr("get document text "+id, err)
	}
	return text, nil
}

func (r *SQLiteRepo) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	query := `SELECT COUNT(1) FROM documents WHERE id = ?`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return false, apperr.Wrap(apperr.ErrUpstream, "check document", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepo) ListRecent(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT id, name, object_key, created_at FROM documents ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, "list documents", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Name, &d.ObjectKey, &d.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.ErrUpstream, "scan document", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *SQLiteRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}
