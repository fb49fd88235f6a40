package ai

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"agentic-workflow/internal/domain/ports/adapter"
	"agentic-workflow/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*resilientAI)(nil)

type ResilienceConfig struct {
	Name            string        // provider label for logs and metrics
	MaxRetries      int           // 0 means a single attempt
	InitialInterval time.Duration // default 500ms
	MaxInterval     time.Duration // default 10s
	BreakerFailures uint32        // consecutive failures that open the breaker
	BreakerTimeout  time.Duration // how long the breaker stays open
}

type resilientAI struct {
	inner adapter.AIServiceAdapter
	cb    *gobreaker.CircuitBreaker
	cfg   ResilienceConfig
	log   *zerolog.Logger
}

// NewResilientAI wraps inner with a circuit breaker and bounded exponential
// retries. Cancellation and an open breaker are never retried.
func NewResilientAI(inner adapter.AIServiceAdapter, cfg ResilienceConfig, logger *zerolog.Logger) adapter.AIServiceAdapter {
	if cfg.Name == "" {
		cfg.Name = "ai"
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	l := logger.With().Str("component", "ai.resilient").Str("provider", cfg.Name).Logger()
	r := &resilientAI{inner: inner, cfg: cfg, log: &l}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			metrics.SetAIBreakerState(name, int(to))
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up says nothing about the provider
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return r
}

func (r *resilientAI) ListModels(ctx context.Context) ([]string, error) {
	return r.inner.ListModels(ctx)
}

func (r *resilientAI) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	var out adapter.Completion
	attempt := 0
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		if attempt > 1 {
			metrics.IncAIRetry(r.cfg.Name)
		}
		res, err := r.cb.Execute(func() (interface{}, error) {
			return r.inner.Complete(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			r.log.Debug().Err(err).Int("attempt", attempt).Msg("reasoning call failed")
			return err
		}
		out = res.(adapter.Completion)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.InitialInterval
	policy.MaxInterval = r.cfg.MaxInterval
	policy.MaxElapsedTime = 0 // bounded by retries and ctx instead
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(r.cfg.MaxRetries, 0))), ctx)

	if err := backoff.Retry(op, b); err != nil {
		return adapter.Completion{}, err
	}
	return out, nil
}
