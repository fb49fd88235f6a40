package ai

import (
	"context"
	"time"

	"agentic-workflow/internal/domain/ports/adapter"
	"agentic-workflow/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*instrumentedAI)(nil)

type instrumentedAI struct {
	inner    adapter.AIServiceAdapter
	provider string
}

// NewInstrumentedAI records latency and token usage per provider and model.
func NewInstrumentedAI(inner adapter.AIServiceAdapter, provider string) adapter.AIServiceAdapter {
	return &instrumentedAI{inner: inner, provider: provider}
}

func (i *instrumentedAI) ListModels(ctx context.Context) ([]string, error) {
	return i.inner.ListModels(ctx)
}

func (i *instrumentedAI) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	start := time.Now()
	res, err := i.inner.Complete(ctx, req)
	provider, model := i.provider, req.Model
	if res.Provider != "" {
		provider = res.Provider
	}
	if res.Model != "" {
		model = res.Model
	}
	metrics.ObserveAICall(provider, model, res.Usage.PromptTokens, res.Usage.CompletionTokens, res.Usage.TotalTokens,
		time.Since(start), err == nil)
	return res, err
}
