package search

import (
	"context"
	"time"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/adapter"
	"agentic-workflow/internal/infra/metrics"
)

type instrumentedSearch struct {
	inner    adapter.SearchAdapter
	provider string
}

func NewInstrumentedSearch(inner adapter.SearchAdapter, provider string) adapter.SearchAdapter {
	return &instrumentedSearch{inner: inner, provider: provider}
}

func (i *instrumentedSearch) Search(ctx context.Context, query string, maxResults int) (model.SearchResult, error) {
	start := time.Now()
	res, err := i.inner.Search(ctx, query, maxResults)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(res.Results) == 0:
		outcome = "empty"
	}
	metrics.ObserveSearch(i.provider, outcome, time.Since(start))
	return res, err
}
