//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/infra/memstore"
	"agentic-workflow/internal/usecase"
)

type ucEnv struct {
	jobs   *memstore.JobRepo
	docs   *memstore.DocumentRepo
	events *memstore.Events
	uc     usecase.WorkflowUseCase
}

func newUCEnv(limiter usecase.RateLimiter, cfg usecase.WorkflowConfig) *ucEnv {
	jobs := memstore.NewJobRepo()
	docs := memstore.NewDocumentRepo()
	events := memstore.NewEvents()
	pub := usecase.NewPublishingJobRepo(jobs, events, newTestLogger())
	return &ucEnv{
		jobs:   jobs,
		docs:   docs,
		events: events,
		uc:     usecase.NewWorkflowUseCase(pub, docs, events, limiter, cfg, newTestLogger()),
	}
}

func TestWorkflowUseCase_TriggerWorkflow(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a pending job from explicit steps", func(t *testing.T) {
		env := newUCEnv(nil, usecase.WorkflowConfig{})
		steps := usecase.Decompose(model.WorkflowResearch, model.WorkflowParams{Task: "EVs"})
		res, err := env.uc.TriggerWorkflow(ctx, "owner-1", usecase.TriggerRequest{
			WorkflowType: "research", Message: "research EVs", Steps: steps, DocumentTitle: "EV report",
		})
		if err != nil {
			t.Fatalf("TriggerWorkflow: %v", err)
		}
		if res.Message != "Workflow started in background" || res.EstimatedTime != "6-12 minutes" {
			t.Errorf("unexpected result %+v", res)
		}
		job, err := env.jobs.FindByID(ctx, nil, res.JobID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if job.Status != model.JobStatusPending || job.Progress != (model.Progress{CurrentStepIndex: 0, TotalSteps: 3, Message: "Queued..."}) {
			t.Errorf("unexpected stored job %+v", job)
		}
		if job.DocumentTitle != "EV report" || job.OwnerID != "owner-1" || len(job.ID) != 26 {
			t.Errorf("unexpected job fields %+v", job)
		}
	})

	t.Run("should classify and decompose when no steps are given", func(t *testing.T) {
		env := newUCEnv(nil, usecase.WorkflowConfig{})
		res, err := env.uc.TriggerWorkflow(ctx, "owner-1", usecase.TriggerRequest{
			Message: "I need a business case for a restaurant in Toronto",
		})
		if err != nil {
			t.Fatalf("TriggerWorkflow: %v", err)
		}
		job, _ := env.jobs.FindByID(ctx, nil, res.JobID)
		if job.WorkflowType != "business-case" || len(job.Steps) != 5 || job.Params.Location != "Toronto" {
			t.Errorf("unexpected job %+v", job)
		}
		if res.EstimatedTime != "10-20 minutes" {
			t.Errorf("unexpected estimate %q", res.EstimatedTime)
		}
	})

	t.Run("should reject invalid requests", func(t *testing.T) {
		env := newUCEnv(nil, usecase.WorkflowConfig{MaxStepsPerJob: 2})
		cases := map[string]usecase.TriggerRequest{
			"nothing":        {},
			"unknown type":   {WorkflowType: "poetry", Message: "x"},
			"bad dependency": {Steps: []model.Step{{Name: "a", Role: model.RoleWrite, Task: "t", DependsOn: []string{"step-0"}}}},
			"too many steps": {WorkflowType: "research", Message: "x"},
		}
		for name, req := range cases {
			if _, err := env.uc.TriggerWorkflow(ctx, "owner-1", req); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("%s: expected ErrInvalidArgument, got %v", name, err)
			}
		}
		if _, err := env.uc.TriggerWorkflow(ctx, "", usecase.TriggerRequest{Message: "x"}); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Errorf("expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("should enforce the per-owner rate limit", func(t *testing.T) {
		env := newUCEnv(&MockLimiter{}, usecase.WorkflowConfig{TriggerLimit: 1, TriggerWindow: time.Minute})
		req := usecase.TriggerRequest{Message: "write a haiku"}
		if _, err := env.uc.TriggerWorkflow(ctx, "owner-1", req); err != nil {
			t.Fatalf("first trigger: %v", err)
		}
		if _, err := env.uc.TriggerWorkflow(ctx, "owner-1", req); !errors.Is(err, domain.ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
		if _, err := env.uc.TriggerWorkflow(ctx, "owner-2", req); err != nil {
			t.Errorf("other owners are not limited: %v", err)
		}
	})

	t.Run("should fail open when the limiter is down", func(t *testing.T) {
		env := newUCEnv(&MockLimiter{Err: errors.New("redis down")}, usecase.WorkflowConfig{TriggerLimit: 1})
		if _, err := env.uc.TriggerWorkflow(ctx, "owner-1", usecase.TriggerRequest{Message: "x"}); err != nil {
			t.Errorf("expected trigger to pass, got %v", err)
		}
	})
}

func TestWorkflowUseCase_Queries(t *testing.T) {
	ctx := context.Background()
	env := newUCEnv(nil, usecase.WorkflowConfig{})
	res, err := env.uc.TriggerWorkflow(ctx, "owner-1", usecase.TriggerRequest{Message: "write a haiku"})
	if err != nil {
		t.Fatalf("TriggerWorkflow: %v", err)
	}

	t.Run("GetJobStatus checks ownership", func(t *testing.T) {
		st, err := env.uc.GetJobStatus(ctx, "owner-1", res.JobID)
		if err != nil || st.Status != model.JobStatusPending || st.Progress.TotalSteps != 1 {
			t.Errorf("unexpected status %+v, %v", st, err)
		}
		if _, err := env.uc.GetJobStatus(ctx, "owner-2", res.JobID); !errors.Is(err, domain.ErrPermissionDenied) {
			t.Errorf("expected ErrPermissionDenied, got %v", err)
		}
		if _, err := env.uc.GetJobStatus(ctx, "", res.JobID); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Errorf("expected ErrUnauthenticated, got %v", err)
		}
		if _, err := env.uc.GetJobStatus(ctx, "owner-1", "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListJobs reports active count and durations", func(t *testing.T) {
		list, err := env.uc.ListJobs(ctx, "owner-1")
		if err != nil {
			t.Fatalf("ListJobs: %v", err)
		}
		if list.Active != 1 || len(list.Jobs) != 1 || list.Jobs[0].Duration != "In progress..." {
			t.Errorf("unexpected list %+v", list)
		}
	})

	t.Run("GetDocument is not found until the job completes", func(t *testing.T) {
		if _, err := env.uc.GetDocument(ctx, "owner-1", res.JobID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := env.uc.GetDocument(ctx, "owner-2", res.JobID); !errors.Is(err, domain.ErrPermissionDenied) {
			t.Errorf("expected ErrPermissionDenied, got %v", err)
		}
	})

	t.Run("Plan classifies and decomposes", func(t *testing.T) {
		plan, err := env.uc.Plan(ctx, "investigate solar adoption")
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}
		if plan.Kind != model.WorkflowResearch || len(plan.Steps) != 3 || plan.Steps[0].Task != "investigate solar adoption" {
			t.Errorf("unexpected plan %+v", plan)
		}
	})
}

func TestWorkflowUseCase_Subscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newUCEnv(nil, usecase.WorkflowConfig{})

	ch, err := env.uc.Subscribe(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	select {
	case jobs := <-ch:
		if len(jobs) != 0 {
			t.Fatalf("expected empty initial list, got %d", len(jobs))
		}
	case <-time.After(time.Second):
		t.Fatal("no initial list")
	}

	if _, err := env.uc.TriggerWorkflow(ctx, "owner-1", usecase.TriggerRequest{Message: "x"}); err != nil {
		t.Fatalf("TriggerWorkflow: %v", err)
	}
	select {
	case jobs := <-ch:
		if len(jobs) != 1 || jobs[0].Status != model.JobStatusPending {
			t.Fatalf("unexpected update %+v", jobs)
		}
	case <-time.After(time.Second):
		t.Fatal("no update after trigger")
	}

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}
