package usecase

import (
	"strings"
)

const searchMarker = "search:"

// ParseSearchDirectives extracts SEARCH queries from a model response.
//
// A directive is a line whose first non-blank characters are "SEARCH:" in any
// case. The query is the rest of the line, trimmed. A query wrapped in double
// quotes with no other quote inside is unwrapped; otherwise quotes are kept
// as written. Empty queries are dropped. Markers that appear mid-line are
// plain text. Order and duplicates are preserved.
func ParseSearchDirectives(text string) []string {
	var queries []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if len(line) < len(searchMarker) || !strings.EqualFold(line[:len(searchMarker)], searchMarker) {
			continue
		}
		q := strings.TrimSpace(line[len(searchMarker):])
		q = unquote(q)
		if q == "" {
			continue
		}
		queries = append(queries, q)
	}
	return queries
}

// unquote drops one pair of surrounding quotes when they wrap the whole query.
func unquote(q string) string {
	if len(q) < 2 || q[0] != '"' || q[len(q)-1] != '"' {
		return q
	}
	inner := q[1 : len(q)-1]
	if strings.Contains(inner, `"`) {
		return q
	}
	return strings.TrimSpace(inner)
}
