package adapter

import (
	"context"

	"agentic-workflow/internal/domain/model"
)

// JobNotifier tells an operator channel that a job reached a terminal state.
type JobNotifier interface {
	NotifyFinished(ctx context.Context, job *model.Job) error
}
