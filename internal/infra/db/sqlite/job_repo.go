package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*JobRepo)(nil)

type JobRepo struct {
	db  *sql.DB
	tm  repository.TransactionManager
	now func() time.Time
}

func NewJobRepo(db *sql.DB, tm repository.TransactionManager) *JobRepo {
	return &JobRepo{db: db, tm: tm, now: func() time.Time { return time.Now().UTC() }}
}

const jobColumns = `id, owner_id, workflow_type, params, original_message, document_title, status,
steps, progress, results, error, lease_owner, lease_expires_at, lease_epoch, attempts,
created_at, started_at, completed_at, updated_at`

func (r *JobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	args, err := jobArgs(job)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO workflow_jobs (`+jobColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	return scanJob(ex.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM workflow_jobs WHERE id = ?`, id))
}

func (r *JobRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.Job, error) {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := ex.QueryContext(ctx, `SELECT `+jobColumns+` FROM workflow_jobs
WHERE owner_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, ownerID, limit)
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

func (r *JobRepo) Update(ctx context.Context, tx repository.Tx, id string, patch model.JobPatch) (*model.Job, error) {
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

func (r *JobRepo) update(ctx context.Context, tx repository.Tx, id string, patch model.JobPatch) (*model.Job, error) {
	job, err := r.FindByID(ctx, tx, id)
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

func (r *JobRepo) write(ctx context.Context, tx repository.Tx, job *model.Job) error {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	args, err := jobArgs(job)
	if err != nil {
		return err
	}
	// id goes last for the WHERE clause
	args = append(args[1:], args[0])
	res, err := ex.ExecContext(ctx, `UPDATE workflow_jobs SET
  owner_id = ?, workflow_type = ?, params = ?, original_message = ?, document_title = ?,
  status = ?, steps = ?, progress = ?, results = ?, error = ?,
  lease_owner = ?, lease_expires_at = ?, lease_epoch = ?, attempts = ?,
  created_at = ?, started_at = ?, completed_at = ?, updated_at = ?
WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *JobRepo) ClaimNext(ctx context.Context, workerID string, ttl time.Duration) (*model.Job, error) {
	var claimed *model.Job
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(r.db, tx)
		if err != nil {
			return err
		}
		now := r.now()
		job, err := scanJob(ex.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM workflow_jobs
WHERE status IN ('pending', 'running')
  AND (lease_expires_at IS NULL OR lease_expires_at <= ?)
ORDER BY created_at, id
LIMIT 1`, fmtTime(now)))
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

func (r *JobRepo) RenewLease(ctx context.Context, id, workerID string, epoch int64, ttl time.Duration) error {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `UPDATE workflow_jobs SET lease_expires_at = ?, updated_at = ?
WHERE id = ? AND lease_owner = ? AND lease_epoch = ? AND status NOT IN ('completed', 'failed')`,
		fmtTime(now.Add(ttl)), fmtTime(now), id, workerID, epoch)
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
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
		j.ID, j.OwnerID, j.WorkflowType, string(params), j.OriginalMessage, j.DocumentTitle, string(j.Status),
		string(steps), string(progress), string(results), j.Error, j.LeaseOwner, fmtTimePtr(j.LeaseExpiresAt),
		j.LeaseEpoch, j.Attempts, fmtTime(j.CreatedAt), fmtTimePtr(j.StartedAt), fmtTimePtr(j.CompletedAt),
		fmtTime(j.UpdatedAt),
	}, nil
}

func scanJob(row scanner) (*model.Job, error) {
	var (
		j                                model.Job
		status, created, updated         string
		params, steps, progress, results string
		leaseExp, started, completed     sql.NullString
	)
	err := row.Scan(
		&j.ID, &j.OwnerID, &j.WorkflowType, &params, &j.OriginalMessage, &j.DocumentTitle, &status,
		&steps, &progress, &results, &j.Error, &j.LeaseOwner, &leaseExp, &j.LeaseEpoch, &j.Attempts,
		&created, &started, &completed, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	j.Status = model.JobStatus(status)
	for _, f := range []struct {
		raw string
		dst interface{}
	}{{params, &j.Params}, {steps, &j.Steps}, {progress, &j.Progress}, {results, &j.Results}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
	}
	if j.Results == nil {
		j.Results = map[string]string{}
	}
	if j.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	if j.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	for _, f := range []struct {
		raw sql.NullString
		dst **time.Time
	}{{leaseExp, &j.LeaseExpiresAt}, {started, &j.StartedAt}, {completed, &j.CompletedAt}} {
		if *f.dst, err = parseTimePtr(f.raw); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
	}
	return &j, nil
}
