package ai

import (
	"context"
	"strings"
	"sync"
	"time"

	"agentic-workflow/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*ScriptedAI)(nil)

// ScriptedAI answers without a network call, for local runs and tests.
// Replies are consumed in order; once exhausted it echoes the first line of
// the task.
type ScriptedAI struct {
	mu      sync.Mutex
	replies []string
	delay   time.Duration
	calls   int
}

func NewScriptedAI(delay time.Duration, replies ...string) *ScriptedAI {
	return &ScriptedAI{replies: replies, delay: delay}
}

func (s *ScriptedAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{"scripted"}, nil
}

func (s *ScriptedAI) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *ScriptedAI) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return adapter.Completion{}, ctx.Err()
		}
	}

	s.mu.Lock()
	s.calls++
	var text string
	if len(s.replies) > 0 {
		text, s.replies = s.replies[0], s.replies[1:]
	}
	s.mu.Unlock()

	if text == "" {
		text = "Completed: " + firstTaskLine(req.Message)
	}
	return adapter.Completion{
		Text:     text,
		Usage:    usageOrEstimate(0, 0, 0, req, text),
		Provider: "scripted",
		Model:    "scripted",
	}, nil
}

// firstTaskLine returns the first line of the task, skipping any context
// from earlier steps.
func firstTaskLine(msg string) string {
	if _, task, ok := strings.Cut(msg, "Your task:\n"); ok {
		msg = task
	}
	line, _, _ := strings.Cut(strings.TrimSpace(msg), "\n")
	if len(line) > 120 {
		line = line[:120] + "..."
	}
	return line
}
