package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"agentic-workflow/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*AnthropicAdapter)(nil)

// AnthropicAdapter calls the Messages API directly or through AWS Bedrock.
type AnthropicAdapter struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
	bedrock      bool
}

type AnthropicOptions struct {
	APIKey        string
	BaseURL       string // tests only
	UseBedrock    bool
	BedrockRegion string
	DefaultModel  string
	MaxTokens     int
}

// NewAnthropicAdapter disables the SDK's own retries; NewResilientAI owns that policy.
func NewAnthropicAdapter(ctx context.Context, o AnthropicOptions) (*AnthropicAdapter, error) {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if o.UseBedrock {
		var load []func(*awsconfig.LoadOptions) error
		if o.BedrockRegion != "" {
			load = append(load, awsconfig.WithRegion(o.BedrockRegion))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, load...))
	} else {
		if o.APIKey == "" {
			return nil, errors.New("anthropic: empty api key")
		}
		opts = append(opts, option.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	if o.DefaultModel == "" {
		o.DefaultModel = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
	return &AnthropicAdapter{
		client:       anthropic.NewClient(opts...),
		defaultModel: o.DefaultModel,
		maxTokens:    o.MaxTokens,
		bedrock:      o.UseBedrock,
	}, nil
}

func (a *AnthropicAdapter) ListModels(ctx context.Context) ([]string, error) {
	if a.bedrock {
		return []string{a.defaultModel}, nil
	}
	page, err := a.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, m.ID)
	}
	return out, nil
}

func (a *AnthropicAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	model := modelOrDefault(req.Model, a.defaultModel)
	if a.bedrock {
		model = bedrockModelID(model)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	msgs := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, m := range req.History {
		if strings.EqualFold(m.Role, "assistant") {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Message)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return adapter.Completion{}, fmt.Errorf("anthropic: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return adapter.Completion{
		Text:     sb.String(),
		Usage:    usageOrEstimate(in, out, in+out, req, sb.String()),
		Provider: "anthropic",
		Model:    string(resp.Model),
	}, nil
}

// bedrockModelID maps first-party model names onto cross-region inference profiles.
func bedrockModelID(model string) string {
	if strings.Contains(model, "anthropic.") {
		return model
	}
	switch model {
	case "claude-sonnet-4-5", string(anthropic.ModelClaudeSonnet4_5_20250929):
		return "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
	case string(anthropic.ModelClaudeSonnet4_20250514):
		return "us.anthropic.claude-sonnet-4-20250514-v1:0"
	case "claude-haiku-4-5", string(anthropic.ModelClaudeHaiku4_5_20251001):
		return "us.anthropic.claude-haiku-4-5-20251001-v1:0"
	case string(anthropic.ModelClaudeOpus4_1_20250805):
		return "us.anthropic.claude-opus-4-1-20250805-v1:0"
	}
	return model
}
