package usecase

import (
	"fmt"
	"strings"

	"agentic-workflow/internal/domain/model"
)

const noSearchResults = "No results found."

// FormatSearchResult renders one search outcome for the follow-up prompt.
func FormatSearchResult(r model.SearchResult) string {
	if len(r.Results) == 0 {
		return noSearchResults
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Search: \"%s\"\n", r.Query)
	if r.Answer != "" {
		fmt.Fprintf(&b, "Answer: %s\n\n", r.Answer)
	}
	for i, h := range r.Results {
		fmt.Fprintf(&b, "[%d] %s\n    %s\n    %s\n\n", i+1, h.Title, h.Snippet, h.URL)
	}
	return b.String()
}

// FormatSearchBlock renders every outcome into the block appended to the
// follow-up message.
func FormatSearchBlock(results []model.SearchResult) string {
	var b strings.Builder
	b.WriteString("\n\n=== WEB SEARCH RESULTS ===\n\n")
	for _, r := range results {
		b.WriteString(FormatSearchResult(r))
		b.WriteString("\n---\n\n")
	}
	return b.String()
}
