package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/adapter"
)

const TavilyURL = "https://api.tavily.com/search"

var _ adapter.SearchAdapter = (*TavilyAdapter)(nil)

// TavilyAdapter queries Tavily, which also returns a short synthesized answer.
type TavilyAdapter struct {
	apiKey string
	url    string
	client *http.Client
}

func NewTavilyAdapter(apiKey, url string, client *http.Client) (*TavilyAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("tavily: empty api key")
	}
	if url == "" {
		url = TavilyURL
	}
	return &TavilyAdapter{apiKey: apiKey, url: url, client: orDefaultClient(client)}, nil
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string   `json:"title"`
		URL     string   `json:"url"`
		Content string   `json:"content"`
		Score   *float64 `json:"score"`
	} `json:"results"`
}

func (t *TavilyAdapter) Search(ctx context.Context, query string, maxResults int) (model.SearchResult, error) {
	payload := map[string]any{
		"api_key":             t.apiKey,
		"query":               query,
		"search_depth":        "basic",
		"max_results":         maxResults,
		"include_answer":      true,
		"include_raw_content": false,
		"include_images":      false,
	}
	var resp tavilyResponse
	if err := postJSON(ctx, t.client, t.url, nil, payload, &resp); err != nil {
		return model.SearchResult{}, fmt.Errorf("tavily: %w", err)
	}

	out := model.SearchResult{Query: query, Provider: "tavily", Answer: resp.Answer, Results: []model.SearchHit{}}
	for _, r := range resp.Results {
		out.Results = append(out.Results, model.SearchHit{Title: r.Title, URL: r.URL, Snippet: r.Content, Score: r.Score})
	}
	return out, nil
}
