package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
)

var _ repository.DocumentRepository = (*documentRepo)(nil)

type documentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *documentRepo {
	return &documentRepo{pool: pool}
}

const documentColumns = `id, job_id, owner_id, title, body, provenance, type, tags, version, created_at`

// Create relies on the unique job_id: a second insert for the same job is a
// no-op and the stored document is returned.
func (r *documentRepo) Create(ctx context.Context, tx repository.Tx, d *model.Document) (*model.Document, error) {
	const q = `
INSERT INTO documents (` + documentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (job_id) DO NOTHING;`
	if _, err := execSQL(ctx, r.pool, tx, q,
		d.ID, d.JobID, d.OwnerID, d.Title, d.Body, d.Provenance, d.Type, d.Tags, d.Version, d.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return r.FindByJobID(ctx, tx, d.JobID)
}

func (r *documentRepo) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.Document, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+documentColumns+` FROM documents WHERE job_id = $1;`, jobID)
	if err != nil {
		return nil, err
	}
	return scanDocument(row)
}

func (r *documentRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.Document, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := queryRows(ctx, r.pool, tx, `
SELECT `+documentColumns+` FROM documents
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2;`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	err := row.Scan(&d.ID, &d.JobID, &d.OwnerID, &d.Title, &d.Body, &d.Provenance, &d.Type, &d.Tags, &d.Version, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return &d, nil
}
