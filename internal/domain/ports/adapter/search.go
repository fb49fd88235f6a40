package adapter

import (
	"context"

	"agentic-workflow/internal/domain/model"
)

// SearchAdapter is the port for web search. Failures are per query; callers
// record them and carry on.
type SearchAdapter interface {
	Search(ctx context.Context, query string, maxResults int) (model.SearchResult, error)
}
