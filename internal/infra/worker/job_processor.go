package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/adapter"
	"agentic-workflow/internal/domain/ports/repository"
	"agentic-workflow/internal/infra/logging"
	"agentic-workflow/internal/infra/metrics"
	red "agentic-workflow/internal/infra/redis"
	"agentic-workflow/internal/usecase"
)

const notifyTimeout = 10 * time.Second

type ProcessorConfig struct {
	WorkerID     string
	PollInterval time.Duration
	LeaseTTL     time.Duration
}

// JobProcessor claims queued jobs and runs them on a Pool. A job is held
// through a lease that a heartbeat renews until the run returns.
type JobProcessor struct {
	jobs     repository.JobRepository
	runner   usecase.JobRunner
	notifier adapter.JobNotifier
	locker   red.Locker // optional
	cfg      ProcessorConfig
	slots    chan struct{}
	log      *zerolog.Logger
}

func NewJobProcessor(
	jobs repository.JobRepository,
	runner usecase.JobRunner,
	notifier adapter.JobNotifier,
	locker red.Locker,
	cfg ProcessorConfig,
	maxInFlight int,
	logger *zerolog.Logger,
) *JobProcessor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	l := logger.With().Str("component", "job_processor").Str("worker_id", cfg.WorkerID).Logger()
	return &JobProcessor{
		jobs:     jobs,
		runner:   runner,
		notifier: notifier,
		locker:   locker,
		cfg:      cfg,
		slots:    make(chan struct{}, maxInFlight),
		log:      &l,
	}
}

// Start polls until ctx ends. Run it in a goroutine; the pool must be started.
func (p *JobProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Dur("poll", p.cfg.PollInterval).Dur("lease_ttl", p.cfg.LeaseTTL).Msg("job processor started")
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		p.fill(ctx, pool)
		select {
		case <-ctx.Done():
			p.log.Info().Msg("job processor stopping")
			return
		case <-ticker.C:
		}
	}
}

// fill claims jobs while there are free slots and something to claim.
func (p *JobProcessor) fill(ctx context.Context, pool *Pool) {
	for {
		select {
		case p.slots <- struct{}{}:
		default:
			return
		}
		job, err := p.jobs.ClaimNext(ctx, p.cfg.WorkerID, p.cfg.LeaseTTL)
		if err != nil {
			<-p.slots
			if !errors.Is(err, domain.ErrNotFound) && ctx.Err() == nil {
				p.log.Error().Err(err).Msg("failed to claim job")
			}
			return
		}
		metrics.IncJobClaimed()

		err = pool.Submit(func(ctx context.Context) error {
			defer func() { <-p.slots }()
			p.Process(ctx, job)
			return nil
		})
		if err != nil {
			// the lease lapses and the job is claimed again later
			<-p.slots
			p.log.Warn().Err(err).Str("job_id", job.ID).Msg("could not schedule claimed job")
			return
		}
	}
}

// Process runs one claimed job to completion or interruption.
func (p *JobProcessor) Process(ctx context.Context, job *model.Job) {
	ctx = logging.WithWorkerID(logging.WithOwnerID(logging.WithJobID(ctx, job.ID), job.OwnerID), p.cfg.WorkerID)
	log := logging.With(ctx, p.log)

	var lockToken string
	if p.locker != nil {
		token, err := p.locker.TryLock(ctx, red.JobRunKey(job.ID), p.cfg.LeaseTTL)
		if err != nil {
			log.Warn().Err(err).Msg("job is locked by another runner, skipping")
			return
		}
		lockToken = token
		defer func() {
			if err := p.locker.Unlock(context.WithoutCancel(ctx), red.JobRunKey(job.ID), token); err != nil {
				log.Debug().Err(err).Msg("unlock failed")
			}
		}()
	}

	metrics.AddJobsInFlight(1)
	defer metrics.AddJobsInFlight(-1)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		p.heartbeat(runCtx, cancel, job, lockToken)
	}()

	start := time.Now()
	log.Info().Int("attempt", job.Attempts).Msg("processing job")
	final, err := p.runner.Run(runCtx, job)
	cancel(nil)
	<-hbDone

	if err != nil {
		if cause := context.Cause(runCtx); errors.Is(cause, domain.ErrLeaseLost) {
			err = cause
		}
		log.Warn().Err(err).Dur("took", time.Since(start)).Msg("job run interrupted")
		return
	}

	metrics.IncJob(string(final.Status))
	log.Info().Str("status", string(final.Status)).Dur("took", time.Since(start)).Msg("job finished")
	if final.Status.Terminal() {
		p.notify(ctx, final)
	}
}

// heartbeat renews the lease, and the run lock when one is held, every TTL/3.
// It cancels the run once the lease is lost.
func (p *JobProcessor) heartbeat(ctx context.Context, cancel context.CancelCauseFunc, job *model.Job, lockToken string) {
	t := time.NewTicker(p.cfg.LeaseTTL / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			err := p.jobs.RenewLease(ctx, job.ID, p.cfg.WorkerID, job.LeaseEpoch, p.cfg.LeaseTTL)
			switch {
			case err == nil:
				p.extendLock(ctx, job.ID, lockToken)
			case errors.Is(err, domain.ErrLeaseLost):
				cancel(domain.ErrLeaseLost)
				return
			case ctx.Err() != nil:
				return
			default:
				// transient store error; the next beat retries before the lease runs out
				p.log.Warn().Err(err).Str("job_id", job.ID).Msg("lease renewal failed")
			}
		}
	}
}

// extendLock keeps the run lock alive for as long as the lease. The lease is
// what fences writes, so a lost lock is only logged.
func (p *JobProcessor) extendLock(ctx context.Context, jobID, token string) {
	if p.locker == nil || token == "" {
		return
	}
	if err := p.locker.Extend(ctx, red.JobRunKey(jobID), token, p.cfg.LeaseTTL); err != nil && ctx.Err() == nil {
		p.log.Warn().Err(err).Str("job_id", jobID).Msg("run lock renewal failed")
	}
}

func (p *JobProcessor) notify(ctx context.Context, job *model.Job) {
	if p.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := p.notifier.NotifyFinished(nctx, job); err != nil {
		p.log.Warn().Err(err).Str("job_id", job.ID).Msg("completion notification failed")
	}
}
