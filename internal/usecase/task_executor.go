package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/adapter"
)

// Compile-time check
var _ TaskExecutor = (*taskExecutor)(nil)

type TaskExecutor interface {
	// Execute runs one step: a reasoning call, at most one round of searches,
	// and a follow-up call when searches ran. A failure after the first call
	// also returns the conversation so far.
	Execute(ctx context.Context, in TaskInput) (*TaskOutput, error)
}

type TaskInput struct {
	Role    model.Role
	Task    string
	Context map[string]string // dependency step id -> result
	History []model.Message
}

type TaskOutput struct {
	Response    string
	SearchTrace []model.SearchResult
	History     []model.Message // full conversation including this step's turns
	Usage       model.Usage
}

type ExecutorConfig struct {
	Model            string
	MaxTokens        int
	CallTimeout      time.Duration
	SearchMaxResults int
}

type taskExecutor struct {
	ai     adapter.AIServiceAdapter
	search adapter.SearchAdapter // nil disables search
	cfg    ExecutorConfig
	log    *zerolog.Logger
}

func NewTaskExecutor(ai adapter.AIServiceAdapter, search adapter.SearchAdapter, cfg ExecutorConfig, logger *zerolog.Logger) *taskExecutor {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Minute
	}
	if cfg.SearchMaxResults <= 0 {
		cfg.SearchMaxResults = 5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	l := logger.With().Str("component", "task_executor").Logger()
	return &taskExecutor{ai: ai, search: search, cfg: cfg, log: &l}
}

func (e *taskExecutor) Execute(ctx context.Context, in TaskInput) (*TaskOutput, error) {
	system, _ := RoleInstructions(in.Role)
	message, err := effectiveMessage(in.Task, in.Context)
	if err != nil {
		return nil, err
	}

	first, err := e.call(ctx, system, in.History, message)
	if err != nil {
		return nil, err
	}
	history := append(append([]model.Message(nil), in.History...),
		model.Message{Role: "user", Content: message},
		model.Message{Role: "assistant", Content: first.Text},
	)
	out := &TaskOutput{Response: first.Text, History: history, Usage: first.Usage, SearchTrace: []model.SearchResult{}}

	queries := ParseSearchDirectives(first.Text)
	if len(queries) == 0 || e.search == nil {
		if len(queries) > 0 {
			e.log.Debug().Int("queries", len(queries)).Str("role", string(in.Role)).Msg("search requested but no search service configured")
		}
		return out, nil
	}

	e.log.Info().Int("queries", len(queries)).Str("role", string(in.Role)).Msg("agent requested searches")
	for _, q := range queries {
		res, err := e.search.Search(ctx, q, e.cfg.SearchMaxResults)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			e.log.Warn().Err(err).Str("query", q).Msg("search failed")
			res = model.SearchResult{Query: q, Error: err.Error(), Results: []model.SearchHit{}}
		}
		if res.Query == "" {
			res.Query = q
		}
		out.SearchTrace = append(out.SearchTrace, res)
	}

	followUp := "Here are the search results:\n" + FormatSearchBlock(out.SearchTrace) + "\n\nComplete your task using this information."
	second, err := e.call(ctx, system, history, followUp)
	if err != nil {
		return out, err
	}
	out.Response = second.Text
	out.Usage = out.Usage.Add(second.Usage)
	out.History = append(out.History,
		model.Message{Role: "user", Content: followUp},
		model.Message{Role: "assistant", Content: second.Text},
	)
	return out, nil
}

// call runs one reasoning request under the per-call deadline and maps its
// failure onto the step error kinds.
func (e *taskExecutor) call(ctx context.Context, system string, history []model.Message, message string) (adapter.Completion, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	c, err := e.ai.Complete(callCtx, adapter.CompletionRequest{
		Model:     e.cfg.Model,
		System:    system,
		History:   history,
		Message:   message,
		MaxTokens: e.cfg.MaxTokens,
	})
	if err == nil {
		return c, nil
	}
	if ctx.Err() != nil {
		return adapter.Completion{}, ctx.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return adapter.Completion{}, fmt.Errorf("%w: reasoning call exceeded %s", domain.ErrTimeout, e.cfg.CallTimeout)
	}
	return adapter.Completion{}, fmt.Errorf("%w: %v", domain.ErrReasoning, err)
}

func effectiveMessage(task string, stepContext map[string]string) (string, error) {
	if len(stepContext) == 0 {
		return task, nil
	}
	raw, err := json.MarshalIndent(stepContext, "", "  ")
	if err != nil {
		return "", err
	}
	return "Context from previous steps:\n" + string(raw) + "\n\nYour task:\n" + task, nil
}
