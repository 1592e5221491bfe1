package job

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS failed_jobs (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    handler TEXT NOT NULL,
    payload BLOB NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    retries INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_failed_jobs_document_id ON failed_jobs (document_id);
`

// SQLiteRepo stores failed jobs next to the embedded document store.
type SQLiteRepo struct {
	db *sql.DB
}

func NewSQLiteRepo(ctx context.Context, db *sql.DB) (*SQLiteRepo, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("creating failed_jobs schema: %w", err)
	}
	return &SQLiteRepo{db: db}, nil
}

func (r *SQLiteRepo) Save(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	createdAt := time.Now().UTC()
	query := `INSERT INTO failed_jobs (id, document_id, handler, payload, error, retries, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, job.ID, job.DocumentID, job.Handler, []byte(job.Payload), job.Error, job.Retries, createdAt); err != nil {
		return err
	}
	job.CreatedAt = createdAt
	return nil
}

func (r *SQLiteRepo) List(ctx context.Context) ([]Job, error) {
	query := `SELECT id, document_id, handler, payload, error, retries, created_at FROM failed_jobs ORDER BY created_at DESC, rowid DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *SQLiteRepo) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT id, document_id, handler, payload, error, retries, created_at FROM failed_jobs WHERE id = ?`
	return scanJob(r.db.QueryRowContext(ctx, query, id), id)
}

func (r *SQLiteRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM failed_jobs WHERE id = ?`, id)
	return err
}

func (r *SQLiteRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_jobs`).Scan(&count)
	return count, err
}
