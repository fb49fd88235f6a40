package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
	"agentic-workflow/internal/infra/metrics"
	red "agentic-workflow/internal/infra/redis"
)

var _ repository.JobRepository = (*jobRepoCacheDecorator)(nil)

// jobRepoCacheDecorator serves FindByID from Redis. Only terminal jobs are
// cached: they can no longer change, so Update passes through and entries
// are never invalidated, only expired.
type jobRepoCacheDecorator struct {
	inner repository.JobRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewJobRepoCacheDecorator(inner repository.JobRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.JobRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &jobRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func jobCacheKey(id string) string { return "job:id:" + id }

func (d *jobRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	return d.inner.Create(ctx, tx, job)
}

func (d *jobRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	// reads inside a transaction must see the transaction's view
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := jobCacheKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var job model.Job
		if json.Unmarshal([]byte(val), &job) == nil {
			metrics.IncCacheRequest("job", "hit")
			return &job, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		metrics.IncCacheRequest("job", "error")
		d.log.Warn().Err(err).Str("job_id", id).Msg("job cache read failed")
	}

	metrics.IncCacheRequest("job", "miss")
	job, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		if b, err := json.Marshal(job); err == nil {
			if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
				metrics.IncCacheRequest("job", "error")
				d.log.Debug().Err(err).Str("job_id", id).Msg("job cache write failed")
			}
		}
	}
	return job, nil
}

func (d *jobRepoCacheDecorator) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.Job, error) {
	return d.inner.ListByOwner(ctx, tx, ownerID, limit)
}

func (d *jobRepoCacheDecorator) Update(ctx context.Context, tx repository.Tx, id string, patch model.JobPatch) (*model.Job, error) {
	return d.inner.Update(ctx, tx, id, patch)
}

func (d *jobRepoCacheDecorator) ClaimNext(ctx context.Context, workerID string, ttl time.Duration) (*model.Job, error) {
	return d.inner.ClaimNext(ctx, workerID, ttl)
}

func (d *jobRepoCacheDecorator) RenewLease(ctx context.Context, id, workerID string, epoch int64, ttl time.Duration) error {
	return d.inner.RenewLease(ctx, id, workerID, epoch, ttl)
}
