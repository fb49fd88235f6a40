package repository

import (
	"context"

	"agentic-workflow/internal/domain/model"
)

type AgentExecutionRepository interface {
	// Save upserts on (JobID, StepIndex).
	Save(ctx context.Context, tx Tx, exec *model.AgentExecution) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.AgentExecution, error)
	ListByJob(ctx context.Context, tx Tx, jobID string) ([]*model.AgentExecution, error)
}
