package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
)

const triggeredMessage = "Workflow started in background"

// Compile-time check
var _ WorkflowUseCase = (*workflowUC)(nil)

type WorkflowUseCase interface {
	TriggerWorkflow(ctx context.Context, ownerID string, req TriggerRequest) (*TriggerResult, error)
	GetJobStatus(ctx context.Context, callerID, jobID string) (*JobStatusView, error)
	ListJobs(ctx context.Context, ownerID string) (*JobList, error)
	// Subscribe streams the owner's full job list, newest first, now and after
	// every change. The channel closes when ctx ends.
	Subscribe(ctx context.Context, ownerID string) (<-chan []*model.Job, error)
	Plan(ctx context.Context, message string) (*PlanResult, error)
	GetDocument(ctx context.Context, callerID, jobID string) (*model.Document, error)
}

// RateLimiter is satisfied by the Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type TriggerRequest struct {
	WorkflowType  string               `json:"workflow_type"`
	Params        model.WorkflowParams `json:"params"`
	Message       string               `json:"message"`
	Steps         []model.Step         `json:"steps"`
	DocumentTitle string               `json:"document_title"`
}

type TriggerResult struct {
	JobID         string `json:"job_id"`
	Message       string `json:"message"`
	EstimatedTime string `json:"estimated_time"`
}

type JobStatusView struct {
	JobID       string          `json:"job_id"`
	Status      model.JobStatus `json:"status"`
	Progress    model.Progress  `json:"progress"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type JobSummary struct {
	*model.Job
	Duration string `json:"duration"`
}

type JobList struct {
	Jobs   []JobSummary `json:"jobs"`
	Active int          `json:"active"`
}

type PlanResult struct {
	Kind   model.WorkflowKind   `json:"kind"`
	Params model.WorkflowParams `json:"params"`
	Steps  []model.Step         `json:"steps"`
}

type WorkflowConfig struct {
	ListLimit      int
	TriggerLimit   int // per owner per window; 0 disables
	TriggerWindow  time.Duration
	MaxStepsPerJob int
}

type workflowUC struct {
	jobs    repository.JobRepository
	docs    repository.DocumentRepository
	events  repository.JobEvents
	limiter RateLimiter // nil disables
	cfg     WorkflowConfig
	log     *zerolog.Logger
}

func NewWorkflowUseCase(
	jobs repository.JobRepository,
	docs repository.DocumentRepository,
	events repository.JobEvents,
	limiter RateLimiter,
	cfg WorkflowConfig,
	logger *zerolog.Logger,
) *workflowUC {
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 50
	}
	if cfg.TriggerWindow <= 0 {
		cfg.TriggerWindow = time.Minute
	}
	return &workflowUC{jobs: jobs, docs: docs, events: events, limiter: limiter, cfg: cfg, log: logger}
}

func TriggerRateKey(ownerID string) string {
	return "rate_limit:trigger:" + ownerID
}

func (u *workflowUC) TriggerWorkflow(ctx context.Context, ownerID string, req TriggerRequest) (*TriggerResult, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if u.limiter != nil && u.cfg.TriggerLimit > 0 {
		ok, err := u.limiter.Allow(ctx, TriggerRateKey(ownerID), u.cfg.TriggerLimit, u.cfg.TriggerWindow)
		if err != nil {
			u.log.Warn().Err(err).Str("owner_id", ownerID).Msg("rate limiter unavailable, allowing trigger")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	workflowType, params, steps, err := resolveSteps(req)
	if err != nil {
		return nil, err
	}
	if u.cfg.MaxStepsPerJob > 0 && len(steps) > u.cfg.MaxStepsPerJob {
		return nil, fmt.Errorf("%w: %d steps exceeds the limit of %d", domain.ErrInvalidArgument, len(steps), u.cfg.MaxStepsPerJob)
	}
	if _, err := ValidateSteps(steps); err != nil {
		return nil, err
	}

	job, err := model.NewJob(ulid.Make().String(), ownerID, workflowType, params, req.Message, req.DocumentTitle, steps)
	if err != nil {
		return nil, err
	}
	if err := u.jobs.Create(ctx, nil, job); err != nil {
		u.log.Error().Err(err).Str("owner_id", ownerID).Msg("failed to create job")
		return nil, err
	}
	u.log.Info().Str("job_id", job.ID).Str("owner_id", ownerID).Str("workflow_type", workflowType).
		Int("steps", len(steps)).Msg("workflow triggered")

	n := len(steps)
	return &TriggerResult{
		JobID:         job.ID,
		Message:       triggeredMessage,
		EstimatedTime: fmt.Sprintf("%d-%d minutes", 2*n, 4*n),
	}, nil
}

// resolveSteps returns the caller's steps as given, or decomposes the
// workflow type (or the classified message) server-side.
func resolveSteps(req TriggerRequest) (string, model.WorkflowParams, []model.Step, error) {
	if len(req.Steps) > 0 {
		return req.WorkflowType, req.Params, req.Steps, nil
	}
	switch kind := model.WorkflowKind(req.WorkflowType); kind {
	case model.WorkflowBusinessCase, model.WorkflowResearch, model.WorkflowSimple:
		params := req.Params
		if params.Task == "" && kind != model.WorkflowBusinessCase {
			params.Task = req.Message
		}
		return req.WorkflowType, params, Decompose(kind, params), nil
	case "":
		if strings.TrimSpace(req.Message) == "" {
			return "", model.WorkflowParams{}, nil, fmt.Errorf("%w: message or steps required", domain.ErrInvalidArgument)
		}
		c := Classify(req.Message)
		return string(c.Kind), c.Params, Decompose(c.Kind, c.Params), nil
	default:
		return "", model.WorkflowParams{}, nil, fmt.Errorf("%w: workflow type %q needs explicit steps", domain.ErrInvalidArgument, req.WorkflowType)
	}
}

func (u *workflowUC) ownedJob(ctx context.Context, callerID, jobID string) (*model.Job, error) {
	if callerID == "" {
		return nil, domain.ErrUnauthenticated
	}
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != callerID {
		return nil, domain.ErrPermissionDenied
	}
	return job, nil
}

func (u *workflowUC) GetJobStatus(ctx context.Context, callerID, jobID string) (*JobStatusView, error) {
	job, err := u.ownedJob(ctx, callerID, jobID)
	if err != nil {
		return nil, err
	}
	return &JobStatusView{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

func (u *workflowUC) ListJobs(ctx context.Context, ownerID string) (*JobList, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthenticated
	}
	jobs, err := u.jobs.ListByOwner(ctx, nil, ownerID, u.cfg.ListLimit)
	if err != nil {
		return nil, err
	}
	out := NewJobList(jobs)
	return &out, nil
}

// NewJobList is the newest-first listing with durations and the active count.
func NewJobList(jobs []*model.Job) JobList {
	out := JobList{Jobs: make([]JobSummary, 0, len(jobs)), Active: model.CountActive(jobs)}
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, JobSummary{Job: j, Duration: j.DurationString()})
	}
	return out
}

func (u *workflowUC) Subscribe(ctx context.Context, ownerID string) (<-chan []*model.Job, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthenticated
	}
	events, cancel, err := u.events.Subscribe(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	first, err := u.jobs.ListByOwner(ctx, nil, ownerID, u.cfg.ListLimit)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan []*model.Job, 1)
	out <- first
	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				jobs, err := u.jobs.ListByOwner(ctx, nil, ownerID, u.cfg.ListLimit)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					u.log.Warn().Err(err).Str("owner_id", ownerID).Msg("failed to reload jobs for subscriber")
					continue
				}
				select {
				case out <- jobs:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (u *workflowUC) Plan(ctx context.Context, message string) (*PlanResult, error) {
	c := Classify(message)
	steps := Decompose(c.Kind, c.Params)
	if _, err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	return &PlanResult{Kind: c.Kind, Params: c.Params, Steps: steps}, nil
}

func (u *workflowUC) GetDocument(ctx context.Context, callerID, jobID string) (*model.Document, error) {
	job, err := u.ownedJob(ctx, callerID, jobID)
	if err != nil {
		return nil, err
	}
	doc, err := u.docs.FindByJobID(ctx, nil, job.ID)
	if errors.Is(err, domain.ErrNotFound) && !job.Status.Terminal() {
		return nil, fmt.Errorf("%w: job %s is still %s", domain.ErrNotFound, job.ID, job.Status)
	}
	return doc, err
}
