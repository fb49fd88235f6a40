package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
)

const (
	msgStarting  = "Starting workflow..."
	msgCompleted = "Workflow completed successfully!"
)

// Compile-time check
var _ JobRunner = (*jobRunner)(nil)

type JobRunner interface {
	// Run drives a claimed job to a terminal state and returns the last
	// stored version of it. A step failure is recorded on the job and is not
	// an error. Errors mean the run was interrupted: ErrCancelled, ErrLeaseLost
	// or a store failure. The job is then left running for a later claim.
	Run(ctx context.Context, job *model.Job) (*model.Job, error)
}

type RunnerConfig struct {
	// MaxParallelSteps <= 1 runs steps one at a time in index order.
	MaxParallelSteps int
	// MaxAttempts > 0 fails a job on its next claim past this many.
	MaxAttempts int
	// OnStepFinished, when set, observes every step that ran to an outcome.
	OnStepFinished func(role model.Role, status model.StepStatus, took time.Duration)
}

type jobRunner struct {
	jobs  repository.JobRepository
	docs  repository.DocumentRepository
	execs repository.AgentExecutionRepository
	tm    repository.TransactionManager
	exec  TaskExecutor
	cfg   RunnerConfig
	log   *zerolog.Logger
}

func NewJobRunner(
	jobs repository.JobRepository,
	docs repository.DocumentRepository,
	execs repository.AgentExecutionRepository,
	tm repository.TransactionManager,
	exec TaskExecutor,
	cfg RunnerConfig,
	logger *zerolog.Logger,
) *jobRunner {
	l := logger.With().Str("component", "job_runner").Logger()
	return &jobRunner{jobs: jobs, docs: docs, execs: execs, tm: tm, exec: exec, cfg: cfg, log: &l}
}

// stepFailure is a step that ran and failed; it ends the job.
type stepFailure struct {
	index  int
	err    error
	execID string
}

// run holds the per-job state shared by concurrently running steps.
type run struct {
	mu      sync.Mutex
	job     *model.Job
	epoch   int64
	started int
	log     zerolog.Logger
}

func (r *jobRunner) Run(ctx context.Context, job *model.Job) (*model.Job, error) {
	if job == nil {
		return nil, domain.ErrInvalidArgument
	}
	if job.Status.Terminal() {
		return job, nil
	}
	st := &run{
		job:   job,
		epoch: job.LeaseEpoch,
		log:   r.log.With().Str("job_id", job.ID).Int64("epoch", job.LeaseEpoch).Logger(),
	}
	for _, s := range job.Steps {
		if s.Status == model.StepStatusCompleted {
			st.started++
		}
	}

	if job.Status == model.JobStatusPending {
		now := time.Now().UTC()
		running := model.JobStatusRunning
		updated, err := r.update(ctx, st, model.JobPatch{
			Status:    &running,
			StartedAt: &now,
			Progress:  &model.Progress{CurrentStepIndex: 0, TotalSteps: len(job.Steps), Message: msgStarting},
		})
		if err != nil {
			return job, err
		}
		st.job = updated
		st.log.Info().Int("steps", len(job.Steps)).Msg("workflow started")
	} else {
		st.log.Info().Int("completed_steps", st.started).Msg("resuming workflow")
	}

	if n := r.cfg.MaxAttempts; n > 0 && job.Attempts > n {
		return r.failJob(ctx, st, stepFailure{
			index: firstIncomplete(st.job),
			err:   fmt.Errorf("%w: attempt %d, limit %d", domain.ErrAttemptsExhausted, job.Attempts, n),
		})
	}

	var (
		failure *stepFailure
		err     error
	)
	if r.cfg.MaxParallelSteps > 1 {
		failure, err = r.runWaves(ctx, st)
	} else {
		failure, err = r.runSequential(ctx, st)
	}
	if err != nil {
		return st.job, err
	}
	if failure != nil {
		return r.failJob(ctx, st, *failure)
	}
	return r.complete(ctx, st)
}

func (r *jobRunner) runSequential(ctx context.Context, st *run) (*stepFailure, error) {
	for i := range st.job.Steps {
		if st.job.Steps[i].Status == model.StepStatusCompleted {
			continue
		}
		if f, err := r.runStep(ctx, st, i); f != nil || err != nil {
			return f, err
		}
	}
	return nil, nil
}

// runWaves executes every step whose dependencies are complete, wave by wave.
// A failing step does not cancel its siblings; the wave finishes first.
func (r *jobRunner) runWaves(ctx context.Context, st *run) (*stepFailure, error) {
	for {
		ready := readySteps(st.job)
		if len(ready) == 0 {
			break
		}
		var (
			mu       sync.Mutex
			failures []stepFailure
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.MaxParallelSteps)
		for _, i := range ready {
			g.Go(func() error {
				f, err := r.runStep(gctx, st, i)
				if err != nil {
					return err
				}
				if f != nil {
					mu.Lock()
					failures = append(failures, *f)
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if len(failures) > 0 {
			sort.Slice(failures, func(a, b int) bool { return failures[a].index < failures[b].index })
			for _, f := range failures[1:] {
				if _, err := r.update(ctx, st, model.JobPatch{Step: failedStep(f)}); err != nil {
					return nil, err
				}
			}
			return &failures[0], nil
		}
	}
	for i, s := range st.job.Steps {
		if s.Status != model.StepStatusCompleted {
			return &stepFailure{index: i, err: fmt.Errorf("%w: step %d never became ready", domain.ErrDependencyNotMet, i)}, nil
		}
	}
	return nil, nil
}

func readySteps(job *model.Job) []int {
	var ready []int
	for i, s := range job.Steps {
		if s.Status.Terminal() {
			continue
		}
		if job.DependenciesCompleted(i) {
			ready = append(ready, i)
		}
	}
	return ready
}

// runStep executes step i. It returns a stepFailure when the step itself
// failed and an error when the run must stop without failing the job.
func (r *jobRunner) runStep(ctx context.Context, st *run, i int) (*stepFailure, error) {
	st.mu.Lock()
	step := st.job.Steps[i]
	if !st.job.DependenciesCompleted(i) {
		st.mu.Unlock()
		return &stepFailure{index: i, err: fmt.Errorf("%w: step %d", domain.ErrDependencyNotMet, i)}, nil
	}
	stepCtx := make(map[string]string, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		k, _ := model.ParseStepID(dep)
		stepCtx[dep] = st.job.Steps[k].Result
	}

	// start patches are serialised so the progress index only grows
	st.started++
	idx := st.started
	if idx < st.job.Progress.CurrentStepIndex {
		idx = st.job.Progress.CurrentStepIndex
	}
	startedAt := time.Now().UTC()
	_, err := r.updateLocked(ctx, st, model.JobPatch{
		Step:     &model.StepPatch{Index: i, Status: model.StepStatusRunning, StartedAt: &startedAt},
		Progress: &model.Progress{CurrentStepIndex: idx, TotalSteps: len(st.job.Steps), Message: step.Name + "..."},
	})
	st.mu.Unlock()
	if err != nil {
		return nil, err
	}

	log := st.log.With().Int("step", i).Str("role", string(step.Role)).Logger()
	log.Info().Str("name", step.Name).Msg("executing step")

	execID := uuid.NewString()
	out, err := r.exec.Execute(ctx, TaskInput{Role: step.Role, Task: step.Task, Context: stepCtx})
	took := time.Since(startedAt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		}
		log.Warn().Err(err).Dur("took", took).Msg("step failed")
		r.observe(step.Role, model.StepStatusFailed, took)
		failed := &model.AgentExecution{ID: execID, JobID: st.job.ID, StepIndex: i, Role: step.Role, Error: err.Error()}
		if out != nil {
			failed.History, failed.SearchTrace, failed.Usage = out.History, out.SearchTrace, out.Usage
		}
		r.saveExecution(ctx, log, failed, startedAt)
		return &stepFailure{index: i, err: err, execID: execID}, nil
	}

	completedAt := time.Now().UTC()
	result := out.Response
	if _, err := r.update(ctx, st, model.JobPatch{
		Step: &model.StepPatch{
			Index:            i,
			Status:           model.StepStatusCompleted,
			Result:           &result,
			AgentExecutionID: execID,
			CompletedAt:      &completedAt,
		},
		Results: map[string]string{model.StepID(i): result},
	}); err != nil {
		return nil, err
	}
	r.observe(step.Role, model.StepStatusCompleted, took)

	r.saveExecution(ctx, log, &model.AgentExecution{
		ID:          execID,
		JobID:       st.job.ID,
		StepIndex:   i,
		Role:        step.Role,
		History:     out.History,
		SearchTrace: out.SearchTrace,
		Output:      out.Response,
		Usage:       out.Usage,
	}, startedAt)
	log.Info().Dur("took", took).Int("searches", len(out.SearchTrace)).Msg("step completed")
	return nil, nil
}

// saveExecution stores the step conversation. The step outcome is already on
// the job, so a failed save is only logged.
func (r *jobRunner) saveExecution(ctx context.Context, log zerolog.Logger, e *model.AgentExecution, startedAt time.Time) {
	now := time.Now().UTC()
	e.CreatedAt, e.CompletedAt = startedAt, &now
	if err := r.execs.Save(ctx, nil, e); err != nil {
		log.Error().Err(err).Str("execution_id", e.ID).Msg("failed to save agent execution")
	}
}

func failedStep(f stepFailure) *model.StepPatch {
	now := time.Now().UTC()
	return &model.StepPatch{
		Index:            f.index,
		Status:           model.StepStatusFailed,
		Error:            f.err.Error(),
		ErrorKind:        model.ErrorKindOf(f.err),
		AgentExecutionID: f.execID,
		CompletedAt:      &now,
	}
}

// firstIncomplete returns -1 when every step has completed.
func firstIncomplete(job *model.Job) int {
	for i, s := range job.Steps {
		if s.Status != model.StepStatusCompleted {
			return i
		}
	}
	return -1
}

func (r *jobRunner) failJob(ctx context.Context, st *run, f stepFailure) (*model.Job, error) {
	failed := model.JobStatusFailed
	msg := "Failed: " + f.err.Error()
	p := model.JobPatch{Status: &failed, Error: &msg}
	if f.index >= 0 {
		msg = fmt.Sprintf("Failed at step %d: %s", f.index+1, f.err.Error())
		p.Step = failedStep(f)
	}
	now := time.Now().UTC()
	p.CompletedAt = &now
	updated, err := r.update(ctx, st, p)
	if err != nil {
		return st.job, err
	}
	st.log.Warn().Str("error", msg).Msg("workflow failed")
	return updated, nil
}

// complete stores the document and marks the job completed in one transaction.
func (r *jobRunner) complete(ctx context.Context, st *run) (*model.Job, error) {
	var updated *model.Job
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		now := time.Now().UTC()
		doc, err := model.NewDocument(uuid.NewString(), st.job, now)
		if err != nil {
			return err
		}
		if _, err := r.docs.Create(ctx, tx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		completed := model.JobStatusCompleted
		n := len(st.job.Steps)
		updated, err = r.jobs.Update(ctx, tx, st.job.ID, model.JobPatch{
			Status:      &completed,
			Progress:    &model.Progress{CurrentStepIndex: n, TotalSteps: n, Message: msgCompleted},
			Results:     st.job.Results,
			CompletedAt: &now,
			LeaseEpoch:  st.epoch,
		})
		return err
	})
	if err != nil {
		return st.job, r.interrupted(ctx, err)
	}
	st.job = updated
	st.log.Info().Msg("workflow completed")
	return updated, nil
}

func (r *jobRunner) update(ctx context.Context, st *run, p model.JobPatch) (*model.Job, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return r.updateLocked(ctx, st, p)
}

func (r *jobRunner) updateLocked(ctx context.Context, st *run, p model.JobPatch) (*model.Job, error) {
	p.LeaseEpoch = st.epoch
	updated, err := r.jobs.Update(ctx, nil, st.job.ID, p)
	if err != nil {
		return nil, r.interrupted(ctx, err)
	}
	st.job = updated
	return updated, nil
}

func (r *jobRunner) interrupted(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
	case errors.Is(err, domain.ErrLeaseLost):
		return err
	default:
		return fmt.Errorf("update job: %w", err)
	}
}

func (r *jobRunner) observe(role model.Role, status model.StepStatus, took time.Duration) {
	if r.cfg.OnStepFinished != nil {
		r.cfg.OnStepFinished(role, status, took)
	}
}
