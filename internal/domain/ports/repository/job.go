package repository

import (
	"context"
	"time"

	"agentic-workflow/internal/domain/model"
)

type JobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// ListByOwner returns the owner's jobs newest first by CreatedAt.
	ListByOwner(ctx context.Context, tx Tx, ownerID string, limit int) ([]*model.Job, error)
	// Update loads the job under a row lock, applies the patch and writes it
	// back as one atomic change. It returns the updated job.
	Update(ctx context.Context, tx Tx, id string, patch model.JobPatch) (*model.Job, error)
	// ClaimNext atomically leases the oldest claimable job to workerID.
	// Returns domain.ErrNotFound when nothing is claimable.
	ClaimNext(ctx context.Context, workerID string, ttl time.Duration) (*model.Job, error)
	// RenewLease extends a held lease; domain.ErrLeaseLost when it is gone.
	RenewLease(ctx context.Context, id, workerID string, epoch int64, ttl time.Duration) error
}

// JobEvents fans out "this owner's jobs changed" notifications.
type JobEvents interface {
	Publish(ctx context.Context, ownerID, jobID string) error
	// Subscribe delivers job ids for ownerID until cancel is called or ctx ends.
	Subscribe(ctx context.Context, ownerID string) (events <-chan string, cancel func(), err error)
}
