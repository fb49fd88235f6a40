//go:build !integration

package usecase_test

import (
	"reflect"
	"testing"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/usecase"
)

func TestParseSearchDirectives(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"none", "Here is my answer.", nil},
		{"single", "SEARCH: edmonton restaurant market size 2025", []string{"edmonton restaurant market size 2025"}},
		{"case insensitive and indented", "Plan:\n  search:  food trucks  \nSearch: rent prices", []string{"food trucks", "rent prices"}},
		{"crlf", "SEARCH: a\r\nSEARCH: b\r\n", []string{"a", "b"}},
		{"quotes stripped once", `SEARCH: "exact phrase"`, []string{"exact phrase"}},
		{"inner quotes kept", `SEARCH: "a" and "b"`, []string{`"a" and "b"`}},
		{"wrapped with inner quote kept", `SEARCH: "say "hi""`, []string{`"say "hi""`}},
		{"unbalanced quote kept", `SEARCH: "open ended`, []string{`"open ended`}},
		{"mid-line marker ignored", "I would SEARCH: for this later", nil},
		{"empty query ignored", "SEARCH:   \nSEARCH: \"\"", nil},
		{"duplicates kept in order", "SEARCH: x\nSEARCH: y\nSEARCH: x", []string{"x", "y", "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := usecase.ParseSearchDirectives(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatSearchResult(t *testing.T) {
	t.Run("no results", func(t *testing.T) {
		got := usecase.FormatSearchResult(model.SearchResult{Query: "q", Error: "boom"})
		if got != "No results found." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("answer and hits", func(t *testing.T) {
		r := model.SearchResult{
			Query:  "cafes",
			Answer: "Many.",
			Results: []model.SearchHit{
				{Title: "One", Snippet: "first", URL: "https://1"},
				{Title: "Two", Snippet: "second", URL: "https://2"},
			},
		}
		want := "Search: \"cafes\"\nAnswer: Many.\n\n" +
			"[1] One\n    first\n    https://1\n\n" +
			"[2] Two\n    second\n    https://2\n\n"
		got := usecase.FormatSearchResult(r)
		if got != want {
			t.Errorf("got %q\nwant %q", got, want)
		}
		if again := usecase.FormatSearchResult(r); again != got {
			t.Error("formatting is not deterministic")
		}
	})

	t.Run("block wraps every result", func(t *testing.T) {
		block := usecase.FormatSearchBlock([]model.SearchResult{{Query: "a"}, {Query: "b"}})
		want := "\n\n=== WEB SEARCH RESULTS ===\n\nNo results found.\n---\n\nNo results found.\n---\n\n"
		if block != want {
			t.Errorf("got %q", block)
		}
	})
}
