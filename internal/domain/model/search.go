package model

// SearchHit is one web result.
type SearchHit struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Snippet string   `json:"snippet"`
	Score   *float64 `json:"score,omitempty"`
}

// SearchResult is the outcome of one search directive. Error is set when the
// query failed; Results is then empty.
type SearchResult struct {
	Query    string      `json:"query"`
	Provider string      `json:"provider,omitempty"`
	Answer   string      `json:"answer,omitempty"`
	Results  []SearchHit `json:"results"`
	Error    string      `json:"error,omitempty"`
}

func (r SearchResult) Failed() bool { return r.Error != "" }
