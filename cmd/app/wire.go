package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"agentic-workflow/internal/config"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/adapter"
	"agentic-workflow/internal/domain/ports/repository"
	aiAdapters "agentic-workflow/internal/infra/adapters/ai"
	"agentic-workflow/internal/infra/adapters/search"
	tele "agentic-workflow/internal/infra/adapters/telegram"
	pg "agentic-workflow/internal/infra/db/postgres"
	"agentic-workflow/internal/infra/db/sqlite"
	"agentic-workflow/internal/infra/memstore"
	"agentic-workflow/internal/infra/metrics"
	red "agentic-workflow/internal/infra/redis"
	"agentic-workflow/internal/usecase"
)

const poolStatsInterval = 15 * time.Second

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg *config.Config
	log *zerolog.Logger

	jobs    repository.JobRepository
	docs    repository.DocumentRepository
	execs   repository.AgentExecutionRepository
	tm      repository.TransactionManager
	events  repository.JobEvents
	limiter usecase.RateLimiter // nil without redis
	locker  red.Locker          // nil unless worker.use_redis_lock

	redis   red.RedisClient
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: logger}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}

	// every committed job change is announced to subscribers
	pub := usecase.NewPublishingJobRepo(a.jobs, a.events, logger)
	a.jobs = pub
	a.tm = pub.TxManager(a.tm)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Database.Driver {
	case "postgres":
		pool, err := pg.NewPgxPool(ctx, &a.cfg.Database)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		go pg.ReportPoolStats(ctx, pool, poolStatsInterval)
		tm := pg.NewTxManager(pool)
		a.tm = tm
		a.jobs = pg.NewJobRepo(pool, tm)
		a.docs = pg.NewDocumentRepo(pool)
		a.execs = pg.NewAgentExecutionRepo(pool)
	case "sqlite":
		db, err := sqlite.Open(ctx, a.cfg.Database.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		go sqlite.ReportPoolStats(ctx, db, poolStatsInterval)
		tm := sqlite.NewTxManager(db)
		a.tm = tm
		a.jobs = sqlite.NewJobRepo(db, tm)
		a.docs = sqlite.NewDocumentRepo(db)
		a.execs = sqlite.NewAgentExecutionRepo(db)
	case "memory":
		a.tm = memstore.NewTxManager()
		a.jobs = memstore.NewJobRepo()
		a.docs = memstore.NewDocumentRepo()
		a.execs = memstore.NewAgentExecutionRepo()
	default:
		return fmt.Errorf("unknown database driver %q", a.cfg.Database.Driver)
	}
	a.log.Info().Str("driver", a.cfg.Database.Driver).Msg("store ready")
	return nil
}

func (a *app) openRedis(ctx context.Context) error {
	if a.cfg.Redis.URL == "" {
		a.events = memstore.NewEvents()
		return nil
	}
	client, err := red.NewClient(ctx, &a.cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	a.redis = client
	a.closers = append(a.closers, func() { _ = client.Close() })

	if a.cfg.Database.Driver != "memory" {
		a.jobs = pg.NewJobRepoCacheDecorator(a.jobs, client, a.cfg.Redis.TTL, a.log)
	}
	a.events = red.NewJobEvents(client, a.log)
	a.limiter = red.NewRateLimiter(client)
	if a.cfg.Worker.UseRedisLock {
		a.locker = red.NewLocker(client)
	}
	a.log.Info().Msg("redis ready")
	return nil
}

func (a *app) workflowUseCase() usecase.WorkflowUseCase {
	w := a.cfg.Workflow
	return usecase.NewWorkflowUseCase(a.jobs, a.docs, a.events, a.limiter, usecase.WorkflowConfig{
		ListLimit:      w.ListLimit,
		TriggerLimit:   w.TriggerLimit,
		TriggerWindow:  w.TriggerWindow,
		MaxStepsPerJob: w.MaxStepsPerJob,
	}, a.log)
}

func (a *app) jobRunner(ctx context.Context, ai adapter.AIServiceAdapter) (usecase.JobRunner, error) {
	if ai == nil {
		var err error
		if ai, err = buildAI(ctx, a.cfg.AI, a.log); err != nil {
			return nil, err
		}
	}
	searcher, err := search.New(a.cfg.Search, a.cfg.SearchKey(), a.redis, a.log)
	if err != nil {
		return nil, err
	}
	if searcher == nil {
		a.log.Info().Msg("no search key configured, SEARCH directives will be ignored")
	}
	exec := usecase.NewTaskExecutor(ai, searcher, usecase.ExecutorConfig{
		Model:            a.cfg.AI.DefaultModel,
		MaxTokens:        a.cfg.AI.MaxTokens,
		CallTimeout:      a.cfg.Workflow.CallTimeout,
		SearchMaxResults: a.cfg.Search.MaxResults,
	}, a.log)
	return usecase.NewJobRunner(a.jobs, a.docs, a.execs, a.tm, exec, usecase.RunnerConfig{
		MaxParallelSteps: a.cfg.Workflow.MaxParallelSteps,
		MaxAttempts:      a.cfg.Worker.MaxAttempts,
		OnStepFinished: func(role model.Role, status model.StepStatus, took time.Duration) {
			metrics.ObserveStep(string(role), string(status), took)
		},
	}, a.log), nil
}

func (a *app) notifier() adapter.JobNotifier {
	tg := a.cfg.Notify.Telegram
	if tg.Token == "" {
		return tele.NewNoopNotifier(a.log)
	}
	n, err := tele.NewBotNotifier(tg.Token, tg.ChatIDs, a.log)
	if err != nil {
		a.log.Warn().Err(err).Msg("telegram notifier disabled")
		return tele.NewNoopNotifier(a.log)
	}
	return n
}

// buildAI wires every provider that has credentials behind the model router,
// each wrapped with retries, a breaker and metrics, and caps concurrency.
func buildAI(ctx context.Context, c config.AIConfig, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	if c.Provider == "scripted" {
		return aiAdapters.NewScriptedAI(0), nil
	}

	byProvider := map[string]adapter.AIServiceAdapter{}
	add := func(name string, a adapter.AIServiceAdapter, err error) error {
		if err != nil {
			return fmt.Errorf("%s adapter: %w", name, err)
		}
		wrapped := aiAdapters.NewResilientAI(a, aiAdapters.ResilienceConfig{
			Name:            name,
			MaxRetries:      c.MaxRetries,
			BreakerFailures: c.BreakerFailures,
			BreakerTimeout:  c.BreakerTimeout,
		}, logger)
		byProvider[name] = aiAdapters.NewInstrumentedAI(wrapped, name)
		return nil
	}
	modelFor := func(provider string) string {
		if c.Provider == provider {
			return c.DefaultModel
		}
		return ""
	}

	if c.AnthropicKey != "" || c.UseBedrock {
		a, err := aiAdapters.NewAnthropicAdapter(ctx, aiAdapters.AnthropicOptions{
			APIKey:        c.AnthropicKey,
			UseBedrock:    c.UseBedrock,
			BedrockRegion: c.BedrockRegion,
			DefaultModel:  modelFor("anthropic"),
			MaxTokens:     c.MaxTokens,
		})
		if err := add("anthropic", a, err); err != nil {
			return nil, err
		}
	}
	if c.OpenAIKey != "" {
		a, err := aiAdapters.NewOpenAIAdapter(c.OpenAIKey, "", modelFor("openai"), c.MaxTokens)
		if err := add("openai", a, err); err != nil {
			return nil, err
		}
	}
	if c.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, c.GeminiKey, "", modelFor("gemini"), c.MaxTokens)
		if err := add("gemini", a, err); err != nil {
			return nil, err
		}
	}
	if c.MetisKey != "" {
		a, err := aiAdapters.NewMetisAdapter(c.MetisKey, c.MetisBaseURL, modelFor("metis"), c.MaxTokens)
		if err := add("metis", a, err); err != nil {
			return nil, err
		}
	}
	if len(byProvider) == 0 {
		return nil, errors.New("no reasoning provider configured: set an ai key or use ai.provider=scripted")
	}
	if _, ok := byProvider[c.Provider]; !ok {
		logger.Warn().Str("provider", c.Provider).Msg("default ai provider has no credentials, routing to another")
	}

	multi := aiAdapters.NewMultiAIAdapter(c.Provider, byProvider, nil)
	return aiAdapters.NewLimitedAI(multi, c.ConcurrentLimit), nil
}
