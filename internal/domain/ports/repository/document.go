package repository

import (
	"context"

	"agentic-workflow/internal/domain/model"
)

type DocumentRepository interface {
	// Create is idempotent per JobID: if a document already exists for the
	// job it is returned unchanged.
	Create(ctx context.Context, tx Tx, doc *model.Document) (*model.Document, error)
	FindByJobID(ctx context.Context, tx Tx, jobID string) (*model.Document, error)
	ListByOwner(ctx context.Context, tx Tx, ownerID string, limit int) ([]*model.Document, error)
}
