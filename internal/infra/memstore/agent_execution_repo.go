package memstore

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
)

var _ repository.AgentExecutionRepository = (*AgentExecutionRepo)(nil)

type AgentExecutionRepo struct {
	mu     sync.RWMutex
	byStep map[string]*model.AgentExecution // jobID/stepIndex
}

func NewAgentExecutionRepo() *AgentExecutionRepo {
	return &AgentExecutionRepo{byStep: make(map[string]*model.AgentExecution)}
}

func stepKey(jobID string, idx int) string { return jobID + "/" + strconv.Itoa(idx) }

func (r *AgentExecutionRepo) Save(ctx context.Context, tx repository.Tx, exec *model.AgentExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *exec
	r.byStep[stepKey(exec.JobID, exec.StepIndex)] = &cp
	return nil
}

func (r *AgentExecutionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.AgentExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.byStep {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *AgentExecutionRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.AgentExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.AgentExecution
	for _, e := range r.byStep {
		if e.JobID == jobID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StepIndex < out[b].StepIndex })
	return out, nil
}
