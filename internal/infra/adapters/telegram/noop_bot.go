package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/adapter"
)

var _ adapter.JobNotifier = (*NoopNotifier)(nil)

// NoopNotifier logs completions instead of sending them, for local/dev runs.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: logger}
}

func (n *NoopNotifier) NotifyFinished(ctx context.Context, job *model.Job) error {
	n.log.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("[noop-notify] " + FinishedText(job))
	return nil
}
