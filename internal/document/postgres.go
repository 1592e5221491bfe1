package document

import (
	"context"
	"database/sql"
	"errors"

	"askmydoc/internal/apperr"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Insert(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (id, name, object_key, extracted_text) VALUES ($1, $2, $3, $4) RETURNING created_at`
	if err := r.db.QueryRowContext(ctx, query, doc.ID, doc.Name, doc.ObjectKey, doc.ExtractedText).Scan(&doc.CreatedAt); err != nil {
		return apperr.Wrap(apperr.ErrPersist, "insert document", err)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	d := &Document{}
	query := `SELECT id, name, object_key, extracted_text, created_at FROM documents WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Name, &d.ObjectKey, &d.ExtractedText, &d.CreatedAt)
	if err != nil {
		return nil, lookupErr("get document "+id, err)
	}
	return d, nil
}

func (r *PostgresRepo) GetText(ctx context.Context, id string) (string, error) {
	var text string
	query := `SELECT extracted_text FROM documents WHERE id = $1`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&text); err != nil {
		return "", lookupErr("get document text "+id, err)
	}
	return text, nil
}

func (r *PostgresRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, apperr.Wrap(apperr.ErrUpstream, "check document", err)
	}
	return exists, nil
}

func (r *PostgresRepo) ListRecent(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT id, name, object_key, created_at FROM documents ORDER BY created_at DESC LIMIT $1`
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

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM documents`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

func lookupErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.ErrNotFound, op, nil)
	}
	return apperr.Wrap(apperr.ErrUpstream, op, err)
}
