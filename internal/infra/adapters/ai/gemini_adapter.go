package ai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"agentic-workflow/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK. baseURL
// may be empty.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.5-flash"
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}
		if m.Name != "" {
			out = append(out, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	if len(out) == 0 {
		out = []string{g.defaultModel}
	}
	return out, nil
}

// Complete carries the role instructions in SystemInstruction; Gemini has no
// system turn in the history.
func (g *GeminiAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	model := modelOrDefault(req.Model, g.defaultModel)
	maxOut := req.MaxTokens
	if maxOut <= 0 {
		maxOut = g.maxOut
	}

	cfg := &genai.GenerateContentConfig{}
	if maxOut > 0 {
		cfg.MaxOutputTokens = int32(maxOut)
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	contents := toGenAIHistory(req.History)
	contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: req.Message}}})

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return adapter.Completion{}, err
	}

	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return adapter.Completion{}, errors.New("gemini: empty response")
	}
	var in, out, total int
	if resp.UsageMetadata != nil {
		in = int(resp.UsageMetadata.PromptTokenCount)
		out = int(resp.UsageMetadata.CandidatesTokenCount)
		total = int(resp.UsageMetadata.TotalTokenCount)
	}
	return adapter.Completion{
		Text:     sb.String(),
		Usage:    usageOrEstimate(in, out, total, req, sb.String()),
		Provider: "gemini",
		Model:    model,
	}, nil
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs)+1)
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
