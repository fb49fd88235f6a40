//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/adapter"
	"agentic-workflow/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// ---- Mock AIServiceAdapter ----

type MockAI struct {
	mu sync.Mutex

	CompleteFunc func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error)

	Calls []adapter.CompletionRequest
}

var _ adapter.AIServiceAdapter = (*MockAI)(nil)

func (m *MockAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{"claude-sonnet-4-5"}, nil
}

func (m *MockAI) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return adapter.Completion{Text: "ok", Usage: adapter.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}}, nil
}

func (m *MockAI) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// ---- Mock SearchAdapter ----

type MockSearch struct {
	mu         sync.Mutex
	SearchFunc func(ctx context.Context, query string, maxResults int) (model.SearchResult, error)
	Queries    []string
}

var _ adapter.SearchAdapter = (*MockSearch)(nil)

func (m *MockSearch) Search(ctx context.Context, query string, maxResults int) (model.SearchResult, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, query)
	m.mu.Unlock()
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query, maxResults)
	}
	return model.SearchResult{
		Query:   query,
		Results: []model.SearchHit{{Title: "T", URL: "https://example.com", Snippet: "S"}},
	}, nil
}

// ---- Mock RateLimiter ----

type MockLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	Err    error
}

func (m *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[key]++
	return m.counts[key] <= limit, nil
}

// ---- Recording job repository ----

// recordingJobRepo wraps a JobRepository and keeps every successfully applied
// patch together with the job it produced.
type recordingJobRepo struct {
	repository.JobRepository

	mu      sync.Mutex
	patches []model.JobPatch
	snaps   []*model.Job
	failOn  func(p model.JobPatch) error
}

func (r *recordingJobRepo) Update(ctx context.Context, tx repository.Tx, id string, p model.JobPatch) (*model.Job, error) {
	if r.failOn != nil {
		if err := r.failOn(p); err != nil {
			return nil, err
		}
	}
	job, err := r.JobRepository.Update(ctx, tx, id, p)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.patches = append(r.patches, p)
	r.snaps = append(r.snaps, job.Clone())
	r.mu.Unlock()
	return job, nil
}

func (r *recordingJobRepo) progressIndexes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s.Progress.CurrentStepIndex)
	}
	return out
}

// ---- Failing document repository ----

type failingDocRepo struct {
	repository.DocumentRepository
}

func (f failingDocRepo) Create(ctx context.Context, tx repository.Tx, doc *model.Document) (*model.Document, error) {
	return nil, errors.New("disk full")
}
