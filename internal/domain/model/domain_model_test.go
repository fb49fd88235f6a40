package model

import (
	"errors"
	"testing"
	"time"

	"agentic-workflow/internal/domain"
)

func threeSteps() []Step {
	return []Step{
		{Name: "Initial Research", Role: RoleResearch, Task: "t0"},
		{Name: "Analysis", Role: RoleAnalyze, Task: "t1", DependsOn: []string{"step-0"}},
		{Name: "Report Writing", Role: RoleWrite, Task: "t2", DependsOn: []string{"step-0", "step-1"}},
	}
}

func newTestJob(t *testing.T) *Job {
	t.Helper()
	job, err := NewJob("job-1", "owner-1", string(WorkflowResearch), WorkflowParams{Task: "x"}, "x", "", threeSteps())
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return job
}

func statusPtr(s JobStatus) *JobStatus { return &s }

// --- Job Model Tests ---

func TestNewJob(t *testing.T) {
	t.Run("should create a pending job with queued progress", func(t *testing.T) {
		job := newTestJob(t)
		if job.Status != JobStatusPending {
			t.Errorf("expected pending, got %s", job.Status)
		}
		if job.Progress.TotalSteps != 3 || job.Progress.CurrentStepIndex != 0 || job.Progress.Message != "Queued..." {
			t.Errorf("unexpected progress %+v", job.Progress)
		}
		for i, s := range job.Steps {
			if s.Status != StepStatusPending {
				t.Errorf("step %d expected pending, got %s", i, s.Status)
			}
		}
	})

	t.Run("should fail without steps", func(t *testing.T) {
		_, err := NewJob("job-1", "owner-1", "simple", WorkflowParams{}, "", "", nil)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should not alias caller dependency slices", func(t *testing.T) {
		steps := threeSteps()
		job, _ := NewJob("job-1", "owner-1", "research", WorkflowParams{}, "", "", steps)
		steps[1].DependsOn[0] = "step-9"
		if job.Steps[1].DependsOn[0] != "step-0" {
			t.Error("job steps share memory with the input")
		}
	})
}

func TestJobApply(t *testing.T) {
	now := time.Now()

	t.Run("should reject status rollback", func(t *testing.T) {
		job := newTestJob(t)
		if err := job.Apply(JobPatch{Status: statusPtr(JobStatusRunning), StartedAt: &now}, now); err != nil {
			t.Fatalf("start: %v", err)
		}
		err := job.Apply(JobPatch{Status: statusPtr(JobStatusPending)}, now)
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
		if job.Status != JobStatusRunning {
			t.Errorf("job should stay running, got %s", job.Status)
		}
	})

	t.Run("should reject progress decrease and leave job unchanged", func(t *testing.T) {
		job := newTestJob(t)
		_ = job.Apply(JobPatch{Progress: &Progress{CurrentStepIndex: 2, TotalSteps: 3, Message: "b"}}, now)
		err := job.Apply(JobPatch{
			Progress: &Progress{CurrentStepIndex: 1, TotalSteps: 3, Message: "a"},
			Results:  map[string]string{"step-0": "r"},
		}, now)
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if job.Progress.CurrentStepIndex != 2 || len(job.Results) != 0 {
			t.Errorf("rejected patch leaked: %+v %v", job.Progress, job.Results)
		}
	})

	t.Run("should require full progress on completion", func(t *testing.T) {
		job := newTestJob(t)
		_ = job.Apply(JobPatch{Status: statusPtr(JobStatusRunning)}, now)
		err := job.Apply(JobPatch{Status: statusPtr(JobStatusCompleted)}, now)
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		err = job.Apply(JobPatch{
			Status:      statusPtr(JobStatusCompleted),
			Progress:    &Progress{CurrentStepIndex: 3, TotalSteps: 3, Message: "done"},
			CompletedAt: &now,
		}, now)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
	})

	t.Run("should set error once and only on failure", func(t *testing.T) {
		job := newTestJob(t)
		_ = job.Apply(JobPatch{Status: statusPtr(JobStatusRunning)}, now)
		msg := "Failed at step 1: boom"
		if err := job.Apply(JobPatch{Error: &msg}, now); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("error without failure should be rejected, got %v", err)
		}
		if err := job.Apply(JobPatch{Status: statusPtr(JobStatusFailed), Error: &msg, CompletedAt: &now}, now); err != nil {
			t.Fatalf("fail: %v", err)
		}
		if err := job.Apply(JobPatch{Error: &msg}, now); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("terminal job should reject patches, got %v", err)
		}
	})

	t.Run("should fence stale lease epochs", func(t *testing.T) {
		job := newTestJob(t)
		job.Claim("w1", now, time.Minute)
		job.Claim("w2", now, time.Minute)
		err := job.Apply(JobPatch{Status: statusPtr(JobStatusRunning), LeaseEpoch: 1}, now)
		if !errors.Is(err, domain.ErrLeaseLost) {
			t.Errorf("expected ErrLeaseLost, got %v", err)
		}
		if err := job.Apply(JobPatch{Status: statusPtr(JobStatusRunning), LeaseEpoch: 2}, now); err != nil {
			t.Errorf("current epoch should apply: %v", err)
		}
	})

	t.Run("should allow restarting a running step but not a completed one", func(t *testing.T) {
		job := newTestJob(t)
		_ = job.Apply(JobPatch{Status: statusPtr(JobStatusRunning)}, now)
		run := JobPatch{Step: &StepPatch{Index: 0, Status: StepStatusRunning}}
		if err := job.Apply(run, now); err != nil {
			t.Fatalf("run: %v", err)
		}
		if err := job.Apply(run, now); err != nil {
			t.Fatalf("restart: %v", err)
		}
		res := "r0"
		_ = job.Apply(JobPatch{Step: &StepPatch{Index: 0, Status: StepStatusCompleted, Result: &res}}, now)
		if err := job.Apply(run, now); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("completed step must not restart, got %v", err)
		}
	})
}

func TestJobLease(t *testing.T) {
	now := time.Now()
	job := newTestJob(t)

	if !job.Claimable(now) {
		t.Fatal("fresh job should be claimable")
	}
	job.Claim("w1", now, time.Minute)
	if job.Claimable(now.Add(30 * time.Second)) {
		t.Error("leased job should not be claimable before expiry")
	}
	if !job.Claimable(now.Add(2 * time.Minute)) {
		t.Error("expired lease should be claimable")
	}
	if err := job.Renew("w2", job.LeaseEpoch, now, time.Minute); !errors.Is(err, domain.ErrLeaseLost) {
		t.Errorf("foreign renew should fail, got %v", err)
	}
	if err := job.Renew("w1", job.LeaseEpoch, now, time.Minute); err != nil {
		t.Errorf("owner renew: %v", err)
	}
}

func TestStepHelpers(t *testing.T) {
	t.Run("StepID round trip", func(t *testing.T) {
		for _, i := range []int{0, 1, 12} {
			got, err := ParseStepID(StepID(i))
			if err != nil || got != i {
				t.Errorf("round trip %d: got %d, %v", i, got, err)
			}
		}
	})

	t.Run("ParseStepID rejects malformed ids", func(t *testing.T) {
		for _, id := range []string{"", "step-", "step-x", "step--1", "step-01", "task-1"} {
			if _, err := ParseStepID(id); err == nil {
				t.Errorf("expected error for %q", id)
			}
		}
	})

	t.Run("ErrorKindOf", func(t *testing.T) {
		cases := map[error]ErrorKind{
			nil:                        ErrorKindNone,
			domain.ErrTimeout:          ErrorKindTimeout,
			domain.ErrReasoning:        ErrorKindReasoning,
			domain.ErrDependencyNotMet: ErrorKindDependency,
			errors.New("disk"):         ErrorKindStore,
		}
		for err, want := range cases {
			if got := ErrorKindOf(err); got != want {
				t.Errorf("ErrorKindOf(%v) = %q, want %q", err, got, want)
			}
		}
	})
}

func TestDurationString(t *testing.T) {
	created := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	job := &Job{CreatedAt: created}
	if got := job.DurationString(); got != "In progress..." {
		t.Errorf("got %q", got)
	}
	done := created.Add(42 * time.Second)
	job.CompletedAt = &done
	if got := job.DurationString(); got != "42s" {
		t.Errorf("got %q", got)
	}
	done = created.Add(3*time.Minute + 5*time.Second)
	if got := job.DurationString(); got != "3m 5s" {
		t.Errorf("got %q", got)
	}
}

func TestNewDocument(t *testing.T) {
	now := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	job := newTestJob(t)
	if _, err := NewDocument("doc-1", job, now); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("incomplete job should not yield a document, got %v", err)
	}
	job.Steps[2].Status = StepStatusCompleted
	job.Steps[2].Result = "final report"
	job.Steps[2].AgentExecutionID = "exec-2"

	doc, err := NewDocument("doc-1", job, now)
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	if doc.Body != "final report" || doc.Provenance != "exec-2" {
		t.Errorf("unexpected body/provenance: %+v", doc)
	}
	if doc.Title != "Workflow Result - 2025-03-09" {
		t.Errorf("unexpected default title %q", doc.Title)
	}
	if doc.Type != "report" || doc.Version != 1 || len(doc.Tags) != 2 || doc.Tags[1] != "research" {
		t.Errorf("unexpected metadata: %+v", doc)
	}
}
