package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = `id, job_id, owner_id, title, body, provenance, type, tags, version, created_at`

func (r *DocumentRepo) Create(ctx context.Context, tx repository.Tx, d *model.Document) (*model.Document, error) {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	tags, err := json.Marshal(d.Tags)
	if err != nil {
		return nil, err
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO documents (`+documentColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (job_id) DO NOTHING`,
		d.ID, d.JobID, d.OwnerID, d.Title, d.Body, d.Provenance, d.Type, string(tags), d.Version, fmtTime(d.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return r.FindByJobID(ctx, tx, d.JobID)
}

func (r *DocumentRepo) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.Document, error) {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	return scanDocument(ex.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE job_id = ?`, jobID))
}

func (r *DocumentRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.Document, error) {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := ex.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents
WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`, ownerID, limit)
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

func scanDocument(row scanner) (*model.Document, error) {
	var (
		d             model.Document
		tags, created string
	)
	err := row.Scan(&d.ID, &d.JobID, &d.OwnerID, &d.Title, &d.Body, &d.Provenance, &d.Type, &tags, &d.Version, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	if err := json.Unmarshal([]byte(tags), &d.Tags); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	if d.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return &d, nil
}
