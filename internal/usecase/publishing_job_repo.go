package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
)

// PublishingJobRepo announces every committed job change on JobEvents.
// Changes made inside a transaction are announced once it commits, which
// requires running the transaction through TxManager.
type PublishingJobRepo struct {
	repository.JobRepository
	events repository.JobEvents
	log    *zerolog.Logger
}

var _ repository.JobRepository = (*PublishingJobRepo)(nil)

func NewPublishingJobRepo(inner repository.JobRepository, events repository.JobEvents, logger *zerolog.Logger) *PublishingJobRepo {
	return &PublishingJobRepo{JobRepository: inner, events: events, log: logger}
}

type pendingEventsKey struct{}

type pendingEvents struct {
	mu    sync.Mutex
	items [][2]string // owner, job
}

func (p *PublishingJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if err := p.JobRepository.Create(ctx, tx, job); err != nil {
		return err
	}
	p.announce(ctx, tx, job.OwnerID, job.ID)
	return nil
}

func (p *PublishingJobRepo) Update(ctx context.Context, tx repository.Tx, id string, patch model.JobPatch) (*model.Job, error) {
	job, err := p.JobRepository.Update(ctx, tx, id, patch)
	if err != nil {
		return nil, err
	}
	p.announce(ctx, tx, job.OwnerID, job.ID)
	return job, nil
}

func (p *PublishingJobRepo) ClaimNext(ctx context.Context, workerID string, ttl time.Duration) (*model.Job, error) {
	job, err := p.JobRepository.ClaimNext(ctx, workerID, ttl)
	if err != nil {
		return nil, err
	}
	p.announce(ctx, nil, job.OwnerID, job.ID)
	return job, nil
}

func (p *PublishingJobRepo) announce(ctx context.Context, tx repository.Tx, ownerID, jobID string) {
	if tx != nil {
		if q, ok := ctx.Value(pendingEventsKey{}).(*pendingEvents); ok {
			q.mu.Lock()
			q.items = append(q.items, [2]string{ownerID, jobID})
			q.mu.Unlock()
			return
		}
	}
	p.publish(ctx, ownerID, jobID)
}

func (p *PublishingJobRepo) publish(ctx context.Context, ownerID, jobID string) {
	// events are a hint; subscribers re-read the store
	if err := p.events.Publish(context.WithoutCancel(ctx), ownerID, jobID); err != nil {
		p.log.Warn().Err(err).Str("job_id", jobID).Msg("failed to publish job event")
	}
}

// TxManager wraps tm so that events raised inside a transaction are
// published only after it commits.
func (p *PublishingJobRepo) TxManager(tm repository.TransactionManager) repository.TransactionManager {
	return &publishingTxManager{inner: tm, repo: p}
}

type publishingTxManager struct {
	inner repository.TransactionManager
	repo  *PublishingJobRepo
}

func (t *publishingTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	q := &pendingEvents{}
	if err := t.inner.WithTx(context.WithValue(ctx, pendingEventsKey{}, q), txOpt, fn); err != nil {
		return err
	}
	for _, it := range q.items {
		t.repo.publish(ctx, it[0], it[1])
	}
	return nil
}
