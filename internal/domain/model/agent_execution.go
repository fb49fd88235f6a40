package model

import "time"

// Message is one conversation turn sent to the reasoning service.
type Message struct {
	Role    string `json:"role"` // "user", "assistant"
	Content string `json:"content"`
}

// Usage for a single reasoning call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// AgentExecution is the reasoning conversation of one step attempt, kept for
// failed attempts too. It is keyed by (JobID, StepIndex) so re-running a step
// replaces it.
type AgentExecution struct {
	ID          string         `json:"id"`
	JobID       string         `json:"job_id"`
	StepIndex   int            `json:"step_index"`
	Role        Role           `json:"role"`
	History     []Message      `json:"history"`
	SearchTrace []SearchResult `json:"search_trace"`
	Output      string         `json:"output"`
	Error       string         `json:"error,omitempty"`
	Usage       Usage          `json:"usage"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
