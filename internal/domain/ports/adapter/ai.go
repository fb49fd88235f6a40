package adapter

import (
	"context"

	"agentic-workflow/internal/domain/model"
)

// Message represents a chat message.
type Message = model.Message

// Usage for a single reasoning call.
type Usage = model.Usage

// CompletionRequest is one call to the reasoning service: a fixed system
// instruction, the prior turns, and the new user message.
type CompletionRequest struct {
	Model     string
	System    string
	History   []Message
	Message   string
	MaxTokens int
}

// Completion is the assistant text plus usage as reported by the provider.
type Completion struct {
	Text     string
	Usage    Usage
	Provider string
	Model    string
}

// AIServiceAdapter is the port for the reasoning service.
type AIServiceAdapter interface {
	ListModels(ctx context.Context) ([]string, error)

	// Complete fails on transport, auth or quota problems. It must honour ctx
	// cancellation and deadlines.
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}
