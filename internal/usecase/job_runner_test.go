//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/adapter"
	"agentic-workflow/internal/domain/ports/repository"
	"agentic-workflow/internal/infra/memstore"
	"agentic-workflow/internal/usecase"
)

type runnerEnv struct {
	store *memstore.JobRepo
	jobs  *recordingJobRepo
	docs  repository.DocumentRepository
	execs *memstore.AgentExecutionRepo
	ai    *MockAI

	maxAttempts int
}

func newRunnerEnv(ai *MockAI) *runnerEnv {
	store := memstore.NewJobRepo()
	return &runnerEnv{
		store: store,
		jobs:  &recordingJobRepo{JobRepository: store},
		docs:  memstore.NewDocumentRepo(),
		execs: memstore.NewAgentExecutionRepo(),
		ai:    ai,
	}
}

func (e *runnerEnv) runner(parallel int, callTimeout time.Duration) usecase.JobRunner {
	exec := usecase.NewTaskExecutor(e.ai, nil, usecase.ExecutorConfig{CallTimeout: callTimeout}, newTestLogger())
	return usecase.NewJobRunner(e.jobs, e.docs, e.execs, memstore.NewTxManager(), exec,
		usecase.RunnerConfig{MaxParallelSteps: parallel, MaxAttempts: e.maxAttempts}, newTestLogger())
}

// claimed stores a new job over steps and claims it.
func (e *runnerEnv) claimed(t *testing.T, kind string, steps []model.Step) *model.Job {
	t.Helper()
	ctx := context.Background()
	job, err := model.NewJob(fmt.Sprintf("job-%d", time.Now().UnixNano()), "owner-1", kind, model.WorkflowParams{}, "msg", "", steps)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if err := e.store.Create(ctx, nil, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := e.store.ClaimNext(ctx, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	return got
}

// countingReplies answers r1, r2, ... in call order.
func countingReplies() func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	var n int64
	return func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
		i := atomic.AddInt64(&n, 1)
		return adapter.Completion{Text: fmt.Sprintf("r%d", i)}, nil
	}
}

func assertNonDecreasing(t *testing.T, idx []int) {
	t.Helper()
	for i := 1; i < len(idx); i++ {
		if idx[i] < idx[i-1] {
			t.Fatalf("progress went backwards: %v", idx)
		}
	}
}

func TestJobRunner_Sequential(t *testing.T) {
	ctx := context.Background()

	t.Run("should complete a research workflow and create the document", func(t *testing.T) {
		env := newRunnerEnv(&MockAI{CompleteFunc: countingReplies()})
		job := env.claimed(t, "research", usecase.Decompose(model.WorkflowResearch, model.WorkflowParams{Task: "EVs"}))

		final, err := env.runner(1, time.Second).Run(ctx, job)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if final.Status != model.JobStatusCompleted {
			t.Fatalf("expected completed, got %s", final.Status)
		}
		for i, want := range []string{"r1", "r2", "r3"} {
			if final.Results[model.StepID(i)] != want || final.Steps[i].Status != model.StepStatusCompleted {
				t.Errorf("step %d: result %q status %s", i, final.Results[model.StepID(i)], final.Steps[i].Status)
			}
		}
		if final.Progress != (model.Progress{CurrentStepIndex: 3, TotalSteps: 3, Message: "Workflow completed successfully!"}) {
			t.Errorf("unexpected final progress %+v", final.Progress)
		}
		if final.StartedAt == nil || final.CompletedAt == nil || final.CompletedAt.Before(*final.StartedAt) {
			t.Errorf("timestamps not monotonic: %v %v", final.StartedAt, final.CompletedAt)
		}
		if final.LeaseOwner != "" {
			t.Errorf("terminal job should release its lease")
		}

		doc, err := env.docs.FindByJobID(ctx, nil, final.ID)
		if err != nil {
			t.Fatalf("document: %v", err)
		}
		if doc.Body != "r3" || doc.Provenance != final.Steps[2].AgentExecutionID || doc.Tags[1] != "research" {
			t.Errorf("unexpected document %+v", doc)
		}
		execs, _ := env.execs.ListByJob(ctx, nil, final.ID)
		if len(execs) != 3 || execs[2].ID != doc.Provenance {
			t.Errorf("expected one execution per step, got %d", len(execs))
		}

		idx := env.jobs.progressIndexes()
		assertNonDecreasing(t, idx)
		var running []int
		for i, p := range env.jobs.patches {
			if p.Step != nil && p.Step.Status == model.StepStatusRunning {
				running = append(running, env.jobs.snaps[i].Progress.CurrentStepIndex)
				if env.jobs.snaps[i].Progress.Message != env.jobs.snaps[i].Steps[p.Step.Index].Name+"..." {
					t.Errorf("progress message %q", env.jobs.snaps[i].Progress.Message)
				}
			}
		}
		if fmt.Sprint(running) != "[1 2 3]" {
			t.Errorf("running step progress should be i+1, got %v", running)
		}
	})

	t.Run("should pass exactly the dependency results as context", func(t *testing.T) {
		env := newRunnerEnv(&MockAI{CompleteFunc: countingReplies()})
		steps := []model.Step{
			{Name: "a", Role: model.RoleResearch, Task: "a"},
			{Name: "b", Role: model.RoleResearch, Task: "b"},
			{Name: "c", Role: model.RoleAnalyze, Task: "c"},
			{Name: "d", Role: model.RoleWrite, Task: "d", DependsOn: []string{"step-0", "step-1"}},
		}
		job := env.claimed(t, "custom", steps)
		if _, err := env.runner(1, time.Second).Run(ctx, job); err != nil {
			t.Fatalf("Run: %v", err)
		}
		want := "Context from previous steps:\n{\n  \"step-0\": \"r1\",\n  \"step-1\": \"r2\"\n}\n\nYour task:\nd"
		if got := env.ai.Calls[3].Message; got != want {
			t.Errorf("step 3 message = %q", got)
		}
		if env.ai.Calls[0].Message != "a" {
			t.Errorf("step without deps should get the bare task, got %q", env.ai.Calls[0].Message)
		}
	})

	t.Run("should fail the job at the failing step and stop", func(t *testing.T) {
		var n int64
		env := newRunnerEnv(&MockAI{CompleteFunc: func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
			if atomic.AddInt64(&n, 1) == 2 {
				return adapter.Completion{}, errors.New("boom")
			}
			return adapter.Completion{Text: "ok"}, nil
		}})
		job := env.claimed(t, "research", usecase.Decompose(model.WorkflowResearch, model.WorkflowParams{Task: "x"}))

		final, err := env.runner(1, time.Second).Run(ctx, job)
		if err != nil {
			t.Fatalf("a step failure is not a run error: %v", err)
		}
		if final.Status != model.JobStatusFailed {
			t.Fatalf("expected failed, got %s", final.Status)
		}
		if final.Error != "Failed at step 2: reasoning service call failed: boom" {
			t.Errorf("unexpected error %q", final.Error)
		}
		if final.Steps[1].Status != model.StepStatusFailed || final.Steps[1].ErrorKind != model.ErrorKindReasoning {
			t.Errorf("step 1 = %+v", final.Steps[1])
		}
		if final.Steps[2].Status != model.StepStatusPending {
			t.Errorf("later steps must stay pending, got %s", final.Steps[2].Status)
		}
		if env.ai.CallCount() != 2 {
			t.Errorf("expected 2 calls, got %d", env.ai.CallCount())
		}
		exec, err := env.execs.FindByID(ctx, nil, final.Steps[1].AgentExecutionID)
		if err != nil {
			t.Fatalf("failed step execution not saved: %v", err)
		}
		if exec.StepIndex != 1 || exec.Error != "reasoning service call failed: boom" || exec.CompletedAt == nil {
			t.Errorf("unexpected failed execution %+v", exec)
		}
		if _, err := env.docs.FindByJobID(ctx, nil, final.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("failed job must not produce a document, got %v", err)
		}
	})

	t.Run("should fail a job claimed more often than allowed", func(t *testing.T) {
		env := newRunnerEnv(&MockAI{CompleteFunc: countingReplies()})
		env.maxAttempts = 2
		job := env.claimed(t, "research", usecase.Decompose(model.WorkflowResearch, model.WorkflowParams{Task: "x"}))
		job.Attempts = 3

		final, err := env.runner(1, time.Second).Run(ctx, job)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if final.Status != model.JobStatusFailed || !strings.Contains(final.Error, domain.ErrAttemptsExhausted.Error()) {
			t.Fatalf("expected attempts failure, got %s %q", final.Status, final.Error)
		}
		if !strings.HasPrefix(final.Error, "Failed at step 1: ") || final.Steps[0].Status != model.StepStatusFailed {
			t.Errorf("unexpected failure %q / %+v", final.Error, final.Steps[0])
		}
		if env.ai.CallCount() != 0 {
			t.Errorf("no step should run, got %d calls", env.ai.CallCount())
		}
	})

	t.Run("should run a job within its attempt limit", func(t *testing.T) {
		env := newRunnerEnv(&MockAI{CompleteFunc: countingReplies()})
		env.maxAttempts = 2
		job := env.claimed(t, "simple", usecase.Decompose(model.WorkflowSimple, model.WorkflowParams{Task: "x"}))
		job.Attempts = 2

		final, err := env.runner(1, time.Second).Run(ctx, job)
		if err != nil || final.Status != model.JobStatusCompleted {
			t.Fatalf("expected completion, got %v / %v", final, err)
		}
	})

	t.Run("should record a timeout kind when the call deadline passes", func(t *testing.T) {
		env := newRunnerEnv(&MockAI{CompleteFunc: func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
			<-ctx.Done()
			return adapter.Completion{}, ctx.Err()
		}})
		job := env.claimed(t, "simple", usecase.Decompose(model.WorkflowSimple, model.WorkflowParams{Task: "x"}))
		final, err := env.runner(1, 20*time.Millisecond).Run(ctx, job)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if final.Steps[0].ErrorKind != model.ErrorKindTimeout || !strings.HasPrefix(final.Error, "Failed at step 1: ") {
			t.Errorf("unexpected failure %+v / %q", final.Steps[0], final.Error)
		}
	})

	t.Run("should skip completed steps after a re-claim", func(t *testing.T) {
		env := newRunnerEnv(&MockAI{CompleteFunc: countingReplies()})
		job := env.claimed(t, "research", usecase.Decompose(model.WorkflowResearch, model.WorkflowParams{Task: "x"}))

		// first worker finished step 0 and died while running step 1
		running := model.JobStatusRunning
		now := time.Now().UTC()
		stored := "stored-0"
		for _, p := range []model.JobPatch{
			{Status: &running, StartedAt: &now, Progress: &model.Progress{TotalSteps: 3, Message: "Starting workflow..."}},
			{Step: &model.StepPatch{Index: 0, Status: model.StepStatusRunning}, Progress: &model.Progress{CurrentStepIndex: 1, TotalSteps: 3}},
			{Step: &model.StepPatch{Index: 0, Status: model.StepStatusCompleted, Result: &stored, AgentExecutionID: "e0"}, Results: map[string]string{"step-0": stored}},
			{Step: &model.StepPatch{Index: 1, Status: model.StepStatusRunning}, Progress: &model.Progress{CurrentStepIndex: 2, TotalSteps: 3}},
		} {
			if _, err := env.store.Update(ctx, nil, job.ID, p); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}
		current, _ := env.store.FindByID(ctx, nil, job.ID)

		final, err := env.runner(1, time.Second).Run(ctx, current)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if env.ai.CallCount() != 2 {
			t.Errorf("completed step must not be re-executed: %d calls", env.ai.CallCount())
		}
		if !strings.Contains(env.ai.Calls[0].Message, `"step-0": "stored-0"`) {
			t.Errorf("stored result not reused: %q", env.ai.Calls[0].Message)
		}
		if final.Status != model.JobStatusCompleted || final.Results["step-0"] != "stored-0" {
			t.Errorf("unexpected final job %+v", final)
		}
	})

	t.Run("should leave the job running when cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		env := newRunnerEnv(&MockAI{CompleteFunc: func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
			cancel()
			return adapter.Completion{}, ctx.Err()
		}})
		job := env.claimed(t, "simple", usecase.Decompose(model.WorkflowSimple, model.WorkflowParams{Task: "x"}))
		_, err := env.runner(1, time.Second).Run(cctx, job)
		if !errors.Is(err, domain.ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
		stored, _ := env.store.FindByID(ctx, nil, job.ID)
		if stored.Status != model.JobStatusRunning || stored.Error != "" {
			t.Errorf("cancellation must not fail the job: %+v", stored)
		}
	})

	t.Run("should stop when the lease is lost", func(t *testing.T) {
		env := newRunnerEnv(&MockAI{CompleteFunc: countingReplies()})
		env.jobs.failOn = func(p model.JobPatch) error {
			if p.Step != nil && p.Step.Index == 1 && p.Step.Status == model.StepStatusRunning {
				return domain.ErrLeaseLost
			}
			return nil
		}
		job := env.claimed(t, "research", usecase.Decompose(model.WorkflowResearch, model.WorkflowParams{Task: "x"}))
		_, err := env.runner(1, time.Second).Run(ctx, job)
		if !errors.Is(err, domain.ErrLeaseLost) {
			t.Fatalf("expected ErrLeaseLost, got %v", err)
		}
		if env.ai.CallCount() != 1 {
			t.Errorf("no calls expected after losing the lease, got %d", env.ai.CallCount())
		}
	})

	t.Run("should not complete when the document cannot be stored", func(t *testing.T) {
		env := newRunnerEnv(&MockAI{CompleteFunc: countingReplies()})
		env.docs = failingDocRepo{DocumentRepository: env.docs}
		job := env.claimed(t, "simple", usecase.Decompose(model.WorkflowSimple, model.WorkflowParams{Task: "x"}))
		if _, err := env.runner(1, time.Second).Run(ctx, job); err == nil {
			t.Fatal("expected an error")
		}
		stored, _ := env.store.FindByID(ctx, nil, job.ID)
		if stored.Status == model.JobStatusCompleted {
			t.Error("job must not complete without its document")
		}
	})
}

func TestJobRunner_DAG(t *testing.T) {
	ctx := context.Background()

	t.Run("should match sequential results for the business case template", func(t *testing.T) {
		echo := func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
			lines := strings.Split(req.Message, "\n")
			return adapter.Completion{Text: "done: " + lines[len(lines)-1]}, nil
		}
		steps := usecase.Decompose(model.WorkflowBusinessCase, model.WorkflowParams{Industry: "retail"})

		seqEnv := newRunnerEnv(&MockAI{CompleteFunc: echo})
		seq, err := seqEnv.runner(1, time.Second).Run(ctx, seqEnv.claimed(t, "business-case", steps))
		if err != nil {
			t.Fatalf("sequential: %v", err)
		}
		dagEnv := newRunnerEnv(&MockAI{CompleteFunc: echo})
		dag, err := dagEnv.runner(3, time.Second).Run(ctx, dagEnv.claimed(t, "business-case", steps))
		if err != nil {
			t.Fatalf("dag: %v", err)
		}
		if dag.Status != model.JobStatusCompleted || len(dag.Results) != 5 {
			t.Fatalf("unexpected dag job %+v", dag)
		}
		for k, v := range seq.Results {
			if dag.Results[k] != v {
				t.Errorf("%s: sequential %q vs dag %q", k, v, dag.Results[k])
			}
		}
		assertNonDecreasing(t, dagEnv.jobs.progressIndexes())
	})

	t.Run("should respect max parallel steps", func(t *testing.T) {
		var inFlight, peak int64
		env := newRunnerEnv(&MockAI{CompleteFunc: func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
			cur := atomic.AddInt64(&inFlight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return adapter.Completion{Text: "ok"}, nil
		}})
		steps := make([]model.Step, 6)
		for i := range steps {
			steps[i] = model.Step{Name: fmt.Sprint(i), Role: model.RoleResearch, Task: "t"}
		}
		final, err := env.runner(2, time.Second).Run(ctx, env.claimed(t, "custom", steps))
		if err != nil || final.Status != model.JobStatusCompleted {
			t.Fatalf("Run: %v %+v", err, final)
		}
		if peak > 2 {
			t.Errorf("peak concurrency %d exceeds limit 2", peak)
		}
		assertNonDecreasing(t, env.jobs.progressIndexes())
	})

	t.Run("should fail with the lowest index failure after the wave", func(t *testing.T) {
		var mu sync.Mutex
		env := newRunnerEnv(&MockAI{CompleteFunc: func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
			mu.Lock()
			defer mu.Unlock()
			if req.Message == "fail-1" || req.Message == "fail-2" {
				return adapter.Completion{}, errors.New(req.Message)
			}
			return adapter.Completion{Text: "ok"}, nil
		}})
		steps := []model.Step{
			{Name: "a", Role: model.RoleResearch, Task: "ok"},
			{Name: "b", Role: model.RoleResearch, Task: "fail-1"},
			{Name: "c", Role: model.RoleResearch, Task: "fail-2"},
			{Name: "d", Role: model.RoleWrite, Task: "never", DependsOn: []string{"step-0", "step-1", "step-2"}},
		}
		final, err := env.runner(3, time.Second).Run(ctx, env.claimed(t, "custom", steps))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if final.Status != model.JobStatusFailed || !strings.HasPrefix(final.Error, "Failed at step 2: ") {
			t.Errorf("unexpected failure %q", final.Error)
		}
		if final.Steps[0].Status != model.StepStatusCompleted ||
			final.Steps[1].Status != model.StepStatusFailed ||
			final.Steps[2].Status != model.StepStatusFailed ||
			final.Steps[3].Status != model.StepStatusPending {
			t.Errorf("unexpected step states %v %v %v %v",
				final.Steps[0].Status, final.Steps[1].Status, final.Steps[2].Status, final.Steps[3].Status)
		}
		if env.ai.CallCount() != 3 {
			t.Errorf("siblings should finish their wave, got %d calls", env.ai.CallCount())
		}
	})
}
