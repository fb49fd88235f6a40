package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.JobRepository = (*JobRepo)(nil)

// JobRepo keeps jobs in memory. A single mutex stands in for the row lock.
type JobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	now  func() time.Time
}

func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]*model.Job), now: func() time.Time { return time.Now().UTC() }}
}

func (r *JobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (r *JobRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, j := range r.jobs {
		if j.OwnerID == ownerID {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *JobRepo) Update(ctx context.Context, tx repository.Tx, id string, patch model.JobPatch) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := j.Apply(patch, r.now()); err != nil {
		return nil, err
	}
	return j.Clone(), nil
}

func (r *JobRepo) ClaimNext(ctx context.Context, workerID string, ttl time.Duration) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var next *model.Job
	for _, j := range r.jobs {
		if !j.Claimable(now) {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) ||
			(j.CreatedAt.Equal(next.CreatedAt) && j.ID < next.ID) {
			next = j
		}
	}
	if next == nil {
		return nil, domain.ErrNotFound
	}
	next.Claim(workerID, now, ttl)
	return next.Clone(), nil
}

func (r *JobRepo) RenewLease(ctx context.Context, id, workerID string, epoch int64, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	return j.Renew(workerID, epoch, r.now(), ttl)
}
