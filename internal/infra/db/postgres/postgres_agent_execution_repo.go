package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
)

var _ repository.AgentExecutionRepository = (*agentExecutionRepo)(nil)

type agentExecutionRepo struct {
	pool *pgxpool.Pool
}

func NewAgentExecutionRepo(pool *pgxpool.Pool) *agentExecutionRepo {
	return &agentExecutionRepo{pool: pool}
}

const executionColumns = `id, job_id, step_index, role, history, search_trace, output, error, usage, created_at, completed_at`

func (r *agentExecutionRepo) Save(ctx context.Context, tx repository.Tx, e *model.AgentExecution) error {
	history, err := json.Marshal(e.History)
	if err != nil {
		return err
	}
	trace, err := json.Marshal(e.SearchTrace)
	if err != nil {
		return err
	}
	usage, err := json.Marshal(e.Usage)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO agent_executions (` + executionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (job_id, step_index) DO UPDATE SET
  id = EXCLUDED.id,
  role = EXCLUDED.role,
  history = EXCLUDED.history,
  search_trace = EXCLUDED.search_trace,
  output = EXCLUDED.output,
  error = EXCLUDED.error,
  usage = EXCLUDED.usage,
  created_at = EXCLUDED.created_at,
  completed_at = EXCLUDED.completed_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		e.ID, e.JobID, e.StepIndex, string(e.Role), history, trace, e.Output, e.Error, usage, e.CreatedAt, e.CompletedAt)
	if err != nil {
		return fmt.Errorf("save agent execution: %w", err)
	}
	return nil
}

func (r *agentExecutionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.AgentExecution, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+executionColumns+` FROM agent_executions WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanExecution(row)
}

func (r *agentExecutionRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.AgentExecution, error) {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+executionColumns+` FROM agent_executions WHERE job_id = $1 ORDER BY step_index;`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AgentExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExecution(row pgx.Row) (*model.AgentExecution, error) {
	var (
		e                     model.AgentExecution
		role                  string
		history, trace, usage []byte
	)
	err := row.Scan(&e.ID, &e.JobID, &e.StepIndex, &role, &history, &trace, &e.Output, &e.Error, &usage, &e.CreatedAt, &e.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	e.Role = model.Role(role)
	if err := decodeJSON(history, &e.History); err != nil {
		return nil, err
	}
	if err := decodeJSON(trace, &e.SearchTrace); err != nil {
		return nil, err
	}
	if err := decodeJSON(usage, &e.Usage); err != nil {
		return nil, err
	}
	return &e, nil
}
