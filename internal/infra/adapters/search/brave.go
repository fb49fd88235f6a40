package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/adapter"
)

const BraveURL = "https://api.search.brave.com/res/v1/web/search"

var _ adapter.SearchAdapter = (*BraveAdapter)(nil)

type BraveAdapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewBraveAdapter(apiKey, baseURL string, client *http.Client) (*BraveAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("brave: empty api key")
	}
	if baseURL == "" {
		baseURL = BraveURL
	}
	return &BraveAdapter{apiKey: apiKey, baseURL: baseURL, client: orDefaultClient(client)}, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *BraveAdapter) Search(ctx context.Context, query string, maxResults int) (model.SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", strconv.Itoa(maxResults))
	q.Set("country", "CA")
	q.Set("search_lang", "en")

	var resp braveResponse
	if err := getJSON(ctx, b.client, b.baseURL+"?"+q.Encode(), map[string]string{"X-Subscription-Token": b.apiKey}, &resp); err != nil {
		return model.SearchResult{}, fmt.Errorf("brave: %w", err)
	}

	out := model.SearchResult{Query: query, Provider: "brave", Results: []model.SearchHit{}}
	for _, r := range resp.Web.Results {
		if len(out.Results) == maxResults {
			break
		}
		out.Results = append(out.Results, model.SearchHit{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return out, nil
}
