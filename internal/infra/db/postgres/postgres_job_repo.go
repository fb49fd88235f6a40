package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
	now  func() time.Time
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{
		pool: pool,
		tm:   tm,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

const jobColumns = `id, owner_id, workflow_type, params, original_message, document_title, status,
steps, progress, results, error, lease_owner, lease_expires_at, lease_epoch, attempts,
created_at, started_at, completed_at, updated_at`

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	args, err := jobArgs(job)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO workflow_jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19);`

	if _, err := execSQL(ctx, r.pool, tx, q, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM workflow_jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := queryRows(ctx, r.pool, tx, `
SELECT `+jobColumns+` FROM workflow_jobs
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Update locks the row with FOR UPDATE so concurrent step patches from the
// DAG runner merge instead of overwriting each other. Without a caller tx it
// opens its own.
func (r *jobRepo) Update(ctx context.Context, tx repository.Tx, id string, patch model.JobPatch) (*model.Job, error) {
	if tx != nil {
		return r.update(ctx, tx, id, patch)
	}
	var out *model.Job
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = r.update(ctx, tx, id, patch)
		return err
	})
	return out, err
}

func (r *jobRepo) update(ctx context.Context, tx repository.Tx, id string, patch model.JobPatch) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM workflow_jobs WHERE id = $1 FOR UPDATE;`, id)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}
	if err := job.Apply(patch, r.now()); err != nil {
		return nil, err
	}
	if err := r.write(ctx, tx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) write(ctx context.Context, tx repository.Tx, job *model.Job) error {
	args, err := jobArgs(job)
	if err != nil {
		return err
	}
	const q = `
UPDATE workflow_jobs SET
  owner_id = $2, workflow_type = $3, params = $4, original_message = $5, document_title = $6,
  status = $7, steps = $8, progress = $9, results = $10, error = $11,
  lease_owner = $12, lease_expires_at = $13, lease_epoch = $14, attempts = $15,
  created_at = $16, started_at = $17, completed_at = $18, updated_at = $19
WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) ClaimNext(ctx context.Context, workerID string, ttl time.Duration) (*model.Job, error) {
	var claimed *model.Job
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		now := r.now()
		row, err := pickRow(ctx, r.pool, tx, `
SELECT `+jobColumns+` FROM workflow_jobs
WHERE status IN ('pending', 'running')
  AND (lease_expires_at IS NULL OR lease_expires_at <= $1)
ORDER BY created_at, id
LIMIT 1
FOR UPDATE SKIP LOCKED;`, now)
		if err != nil {
			return err
		}
		job, err := scanJob(row)
		if err != nil {
			return err
		}
		job.Claim(workerID, now, ttl)
		if err := r.write(ctx, tx, job); err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRepo) RenewLease(ctx context.Context, id, workerID string, epoch int64, ttl time.Duration) error {
	now := r.now()
	tag, err := execSQL(ctx, r.pool, nil, `
UPDATE workflow_jobs SET lease_expires_at = $4, updated_at = $5
WHERE id = $1 AND lease_owner = $2 AND lease_epoch = $3
  AND status NOT IN ('completed', 'failed');`, id, workerID, epoch, now.Add(ttl), now)
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

func jobArgs(j *model.Job) ([]interface{}, error) {
	params, err := json.Marshal(j.Params)
	if err != nil {
		return nil, err
	}
	steps, err := json.Marshal(j.Steps)
	if err != nil {
		return nil, err
	}
	progress, err := json.Marshal(j.Progress)
	if err != nil {
		return nil, err
	}
	results, err := json.Marshal(j.Results)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		j.ID, j.OwnerID, j.WorkflowType, params, j.OriginalMessage, j.DocumentTitle, string(j.Status),
		steps, progress, results, j.Error, j.LeaseOwner, j.LeaseExpiresAt, j.LeaseEpoch, j.Attempts,
		j.CreatedAt, j.StartedAt, j.CompletedAt, j.UpdatedAt,
	}, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j                                model.Job
		status                           string
		params, steps, progress, results []byte
	)
	err := row.Scan(
		&j.ID, &j.OwnerID, &j.WorkflowType, &params, &j.OriginalMessage, &j.DocumentTitle, &status,
		&steps, &progress, &results, &j.Error, &j.LeaseOwner, &j.LeaseExpiresAt, &j.LeaseEpoch, &j.Attempts,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	j.Status = model.JobStatus(status)
	if err := decodeJSON(params, &j.Params); err != nil {
		return nil, err
	}
	if err := decodeJSON(steps, &j.Steps); err != nil {
		return nil, err
	}
	if err := decodeJSON(progress, &j.Progress); err != nil {
		return nil, err
	}
	if err := decodeJSON(results, &j.Results); err != nil {
		return nil, err
	}
	if j.Results == nil {
		j.Results = map[string]string{}
	}
	return &j, nil
}

func decodeJSON(b []byte, v interface{}) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return nil
}
