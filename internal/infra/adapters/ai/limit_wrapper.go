package ai

import (
	"context"

	"agentic-workflow/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

type limitedAI struct {
	inner adapter.AIServiceAdapter
	sem   chan struct{}
}

// NewLimitedAI caps in-flight reasoning calls. Waiting for a slot honours ctx.
func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int) adapter.AIServiceAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}

func (l *limitedAI) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return adapter.Completion{}, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, req)
}
