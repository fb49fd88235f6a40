package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"agentic-workflow/internal/domain/ports/adapter"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// countTokens approximates the provider tokenizer with cl100k_base. When the
// encoding cannot be loaded it falls back to four characters per token.
var countTokens = func(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// usageOrEstimate keeps provider-reported usage and estimates only when the
// provider returned nothing.
func usageOrEstimate(in, out, total int, req adapter.CompletionRequest, reply string) adapter.Usage {
	if in == 0 && out == 0 && total == 0 {
		in = countTokens(req.System) + countTokens(req.Message)
		for _, m := range req.History {
			in += countTokens(m.Content)
		}
		out = countTokens(reply)
	}
	if total == 0 {
		total = in + out
	}
	return adapter.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: total}
}
