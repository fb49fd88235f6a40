package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	oaoption "github.com/openai/openai-go/v2/option"

	"agentic-workflow/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.AIServiceAdapter using the Chat Completions
// API. Any OpenAI-compatible gateway works through BaseURL.
type OpenAIAdapter struct {
	client    openai.Client
	provider  string
	model     string
	maxTokens int
}

func NewOpenAIAdapter(apiKey, baseURL, model string, maxTokens int) (*OpenAIAdapter, error) {
	return newOpenAICompatible("openai", apiKey, baseURL, model, maxTokens)
}

func newOpenAICompatible(provider, apiKey, baseURL, model string, maxTokens int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: empty api key", provider)
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []oaoption.RequestOption{oaoption.WithAPIKey(apiKey), oaoption.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, oaoption.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &OpenAIAdapter{
		client:    openai.NewClient(opts...),
		provider:  provider,
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		// gateways often do not expose /models
		return []string{o.model}, nil
	}
	out := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, m.ID)
	}
	return out, nil
}

func (o *OpenAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	model := modelOrDefault(req.Model, o.model)

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.History {
		if strings.EqualFold(m.Role, "assistant") {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(req.Message))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.maxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return adapter.Completion{}, fmt.Errorf("%s: %w", o.provider, err)
	}
	for _, c := range resp.Choices {
		if c.Message.Content == "" {
			continue
		}
		u := resp.Usage
		return adapter.Completion{
			Text:     c.Message.Content,
			Usage:    usageOrEstimate(int(u.PromptTokens), int(u.CompletionTokens), int(u.TotalTokens), req, c.Message.Content),
			Provider: o.provider,
			Model:    modelOrDefault(resp.Model, model),
		}, nil
	}
	return adapter.Completion{}, errors.New(o.provider + ": no choice content")
}
