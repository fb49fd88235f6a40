package model

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"agentic-workflow/internal/domain"
)

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// ErrorKind classifies why a step failed.
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindReasoning  ErrorKind = "reasoning"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindDependency ErrorKind = "dependency"
	ErrorKindStore      ErrorKind = "store"
)

// Step is one unit of delegated work inside a Job. Its identity is its index.
type Step struct {
	Name             string     `json:"name"`
	Role             Role       `json:"role"`
	Task             string     `json:"task"`
	DependsOn        []string   `json:"depends_on,omitempty"`
	Status           StepStatus `json:"status"`
	Result           string     `json:"result,omitempty"`
	Error            string     `json:"error,omitempty"`
	ErrorKind        ErrorKind  `json:"error_kind,omitempty"`
	AgentExecutionID string     `json:"agent_execution_id,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// StepID returns the positional identifier "step-i".
func StepID(i int) string { return "step-" + strconv.Itoa(i) }

// ParseStepID is the inverse of StepID.
func ParseStepID(id string) (int, error) {
	rest, ok := strings.CutPrefix(id, "step-")
	if !ok {
		return 0, fmt.Errorf("%w: malformed step id %q", domain.ErrInvalidArgument, id)
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 || strconv.Itoa(i) != rest {
		return 0, fmt.Errorf("%w: malformed step id %q", domain.ErrInvalidArgument, id)
	}
	return i, nil
}

// CanTransition reports whether a step may move from one status to another.
// running -> running is allowed so a re-claimed job can restart an interrupted step.
func (s StepStatus) CanTransition(to StepStatus) bool {
	switch s {
	case StepStatusPending:
		return to == StepStatusRunning || to == StepStatusFailed
	case StepStatusRunning:
		return to == StepStatusRunning || to == StepStatusCompleted || to == StepStatusFailed
	default:
		return false
	}
}

func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed
}

// ErrorKindOf maps an execution error onto the kind recorded on the step.
func ErrorKindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, domain.ErrDependencyNotMet):
		return ErrorKindDependency
	case errors.Is(err, domain.ErrReasoning):
		return ErrorKindReasoning
	default:
		return ErrorKindStore
	}
}
