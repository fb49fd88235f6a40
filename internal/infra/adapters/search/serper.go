package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/adapter"
)

const SerperURL = "https://google.serper.dev/search"

var _ adapter.SearchAdapter = (*SerperAdapter)(nil)

// SerperAdapter queries Google results through serper.dev.
type SerperAdapter struct {
	apiKey string
	url    string
	client *http.Client
}

func NewSerperAdapter(apiKey, url string, client *http.Client) (*SerperAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("serper: empty api key")
	}
	if url == "" {
		url = SerperURL
	}
	return &SerperAdapter{apiKey: apiKey, url: url, client: orDefaultClient(client)}, nil
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *SerperAdapter) Search(ctx context.Context, query string, maxResults int) (model.SearchResult, error) {
	payload := map[string]any{"q": query, "num": maxResults, "gl": "ca", "hl": "en"}
	var resp serperResponse
	if err := postJSON(ctx, s.client, s.url, map[string]string{"X-API-KEY": s.apiKey}, payload, &resp); err != nil {
		return model.SearchResult{}, fmt.Errorf("serper: %w", err)
	}

	out := model.SearchResult{Query: query, Provider: "serper", Results: []model.SearchHit{}}
	for _, r := range resp.Organic {
		if len(out.Results) == maxResults {
			break
		}
		out.Results = append(out.Results, model.SearchHit{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}
