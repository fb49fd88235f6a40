package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"agentic-workflow/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

type MultiAIAdapter struct {
	defaultProvider string // e.g., "anthropic"
	byProvider      map[string]adapter.AIServiceAdapter
	modelToProvider map[string]string // explicit overrides
}

// NewMultiAIAdapter does not inject any default model; it only knows a
// default provider. Each provider adapter owns its default model.
func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.AIServiceAdapter,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiAIAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "claude"), strings.Contains(l, "anthropic."):
		return "anthropic"
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

func (m *MultiAIAdapter) pick(model string) adapter.AIServiceAdapter {
	if a := m.byProvider[m.resolveProvider(model)]; a != nil {
		return a
	}
	if a := m.byProvider[m.defaultProvider]; a != nil {
		return a
	}
	// last resort: first available, in a stable order
	names := make([]string, 0, len(m.byProvider))
	for name := range m.byProvider {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if a := m.byProvider[name]; a != nil {
			return a
		}
	}
	return nil
}

func (m *MultiAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(m.modelToProvider)+4)

	for model := range m.modelToProvider {
		if _, ok := seen[model]; !ok {
			seen[model] = struct{}{}
			out = append(out, model)
		}
	}
	for _, a := range m.byProvider {
		list, _ := a.ListModels(ctx)
		for _, name := range list {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MultiAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	a := m.pick(req.Model)
	if a == nil {
		return adapter.Completion{}, fmt.Errorf("no reasoning provider configured for model %q", req.Model)
	}
	return a.Complete(ctx, req)
}
