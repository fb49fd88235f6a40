package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
)

var _ repository.AgentExecutionRepository = (*AgentExecutionRepo)(nil)

type AgentExecutionRepo struct {
	db *sql.DB
}

func NewAgentExecutionRepo(db *sql.DB) *AgentExecutionRepo {
	return &AgentExecutionRepo{db: db}
}

const executionColumns = `id, job_id, step_index, role, history, search_trace, output, error, usage, created_at, completed_at`

func (r *AgentExecutionRepo) Save(ctx context.Context, tx repository.Tx, e *model.AgentExecution) error {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
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
	_, err = ex.ExecContext(ctx, `INSERT INTO agent_executions (`+executionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (job_id, step_index) DO UPDATE SET
  id = excluded.id,
  role = excluded.role,
  history = excluded.history,
  search_trace = excluded.search_trace,
  output = excluded.output,
  error = excluded.error,
  usage = excluded.usage,
  created_at = excluded.created_at,
  completed_at = excluded.completed_at`,
		e.ID, e.JobID, e.StepIndex, string(e.Role), string(history), string(trace), e.Output, e.Error, string(usage),
		fmtTime(e.CreatedAt), fmtTimePtr(e.CompletedAt))
	if err != nil {
		return fmt.Errorf("save agent execution: %w", err)
	}
	return nil
}

func (r *AgentExecutionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.AgentExecution, error) {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	return scanExecution(ex.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM agent_executions WHERE id = ?`, id))
}

func (r *AgentExecutionRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.AgentExecution, error) {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.QueryContext(ctx, `SELECT `+executionColumns+` FROM agent_executions
WHERE job_id = ? ORDER BY step_index`, jobID)
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

func scanExecution(row scanner) (*model.AgentExecution, error) {
	var (
		e                           model.AgentExecution
		role, history, trace, usage string
		created                     string
		completed                   sql.NullString
	)
	err := row.Scan(&e.ID, &e.JobID, &e.StepIndex, &role, &history, &trace, &e.Output, &e.Error, &usage, &created, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	e.Role = model.Role(role)
	for _, f := range []struct {
		raw string
		dst interface{}
	}{{history, &e.History}, {trace, &e.SearchTrace}, {usage, &e.Usage}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	if e.CompletedAt, err = parseTimePtr(completed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return &e, nil
}
