package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/infra/memstore"
)

type mockRunner struct {
	RunFunc func(ctx context.Context, job *model.Job) (*model.Job, error)
}

func (m *mockRunner) Run(ctx context.Context, job *model.Job) (*model.Job, error) {
	return m.RunFunc(ctx, job)
}

type mockNotifier struct {
	mu   sync.Mutex
	jobs []string
}

func (m *mockNotifier) NotifyFinished(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job.ID)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

type mockLocker struct {
	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
	ExtendFunc  func(ctx context.Context, key, token string, ttl time.Duration) error
	unlocked    int32
	extended    int32
}

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return m.TryLockFunc(ctx, key, ttl)
}

func (m *mockLocker) Unlock(ctx context.Context, key, token string) error {
	atomic.AddInt32(&m.unlocked, 1)
	return nil
}

func (m *mockLocker) Extend(ctx context.Context, key, token string, ttl time.Duration) error {
	atomic.AddInt32(&m.extended, 1)
	if m.ExtendFunc == nil {
		return nil
	}
	return m.ExtendFunc(ctx, key, token, ttl)
}

// leaseLosingRepo reports every renewal as lost.
type leaseLosingRepo struct {
	*memstore.JobRepo
}

func (r *leaseLosingRepo) RenewLease(ctx context.Context, id, workerID string, epoch int64, ttl time.Duration) error {
	return domain.ErrLeaseLost
}

func seedJobs(t *testing.T, repo *memstore.JobRepo, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		job, err := model.NewJob(fmt.Sprintf("job-%d", i), "owner-1", "simple", model.WorkflowParams{}, "hi", "",
			[]model.Step{{Name: "Execute Task", Role: model.RoleCoordinate, Task: "hi"}})
		if err != nil {
			t.Fatalf("NewJob: %v", err)
		}
		if err := repo.Create(context.Background(), nil, job); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func completing(ctx context.Context, job *model.Job) (*model.Job, error) {
	done := job.Clone()
	done.Status = model.JobStatusCompleted
	return done, nil
}

func TestJobProcessor(t *testing.T) {
	logger := zerolog.Nop()
	cfg := ProcessorConfig{WorkerID: "w-1", PollInterval: 10 * time.Millisecond, LeaseTTL: time.Minute}

	t.Run("should claim queued jobs, run them and notify", func(t *testing.T) {
		repo := memstore.NewJobRepo()
		seedJobs(t, repo, 3)

		var runs int32
		runner := &mockRunner{RunFunc: func(ctx context.Context, job *model.Job) (*model.Job, error) {
			atomic.AddInt32(&runs, 1)
			if job.LeaseOwner != "w-1" || job.LeaseEpoch != 1 {
				t.Errorf("job not claimed by this worker: %+v", job)
			}
			return completing(ctx, job)
		}}
		notifier := &mockNotifier{}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool := NewPool(2, 4, &logger)
		pool.Start(ctx)
		proc := NewJobProcessor(repo, runner, notifier, nil, cfg, pool.Size(), &logger)
		go proc.Start(ctx, pool)

		waitFor(t, 2*time.Second, func() bool { return notifier.count() == 3 })
		cancel()
		pool.Stop()
		if atomic.LoadInt32(&runs) != 3 {
			t.Fatalf("runs = %d, want 3", runs)
		}
	})

	t.Run("should not notify an interrupted run", func(t *testing.T) {
		repo := memstore.NewJobRepo()
		seedJobs(t, repo, 1)
		job, err := repo.ClaimNext(context.Background(), "w-1", time.Minute)
		if err != nil {
			t.Fatalf("ClaimNext: %v", err)
		}
		runner := &mockRunner{RunFunc: func(ctx context.Context, job *model.Job) (*model.Job, error) {
			return job, domain.ErrCancelled
		}}
		notifier := &mockNotifier{}
		NewJobProcessor(repo, runner, notifier, nil, cfg, 1, &logger).Process(context.Background(), job)
		if notifier.count() != 0 {
			t.Fatal("interrupted run must not notify")
		}
	})

	t.Run("should cancel the run when the lease is lost", func(t *testing.T) {
		base := memstore.NewJobRepo()
		seedJobs(t, base, 1)
		job, _ := base.ClaimNext(context.Background(), "w-1", time.Minute)

		var cause error
		runner := &mockRunner{RunFunc: func(ctx context.Context, job *model.Job) (*model.Job, error) {
			select {
			case <-ctx.Done():
				cause = context.Cause(ctx)
				return job, domain.ErrCancelled
			case <-time.After(2 * time.Second):
				return job, errors.New("heartbeat never cancelled the run")
			}
		}}
		short := cfg
		short.LeaseTTL = 30 * time.Millisecond
		NewJobProcessor(&leaseLosingRepo{JobRepo: base}, runner, nil, nil, short, 1, &logger).Process(context.Background(), job)
		if !errors.Is(cause, domain.ErrLeaseLost) {
			t.Fatalf("cause = %v, want lease lost", cause)
		}
	})

	t.Run("should skip a job locked by another runner", func(t *testing.T) {
		repo := memstore.NewJobRepo()
		seedJobs(t, repo, 1)
		job, _ := repo.ClaimNext(context.Background(), "w-1", time.Minute)

		called := false
		runner := &mockRunner{RunFunc: func(ctx context.Context, job *model.Job) (*model.Job, error) {
			called = true
			return completing(ctx, job)
		}}
		locker := &mockLocker{TryLockFunc: func(ctx context.Context, key string, ttl time.Duration) (string, error) {
			if key != "job-run:job-0" {
				t.Errorf("key = %q", key)
			}
			return "", domain.ErrAlreadyExists
		}}
		NewJobProcessor(repo, runner, nil, locker, cfg, 1, &logger).Process(context.Background(), job)
		if called {
			t.Fatal("runner should not run a locked job")
		}
	})

	t.Run("should release the run lock afterwards", func(t *testing.T) {
		repo := memstore.NewJobRepo()
		seedJobs(t, repo, 1)
		job, _ := repo.ClaimNext(context.Background(), "w-1", time.Minute)

		locker := &mockLocker{TryLockFunc: func(ctx context.Context, key string, ttl time.Duration) (string, error) {
			return "tok", nil
		}}
		NewJobProcessor(repo, &mockRunner{RunFunc: completing}, nil, locker, cfg, 1, &logger).Process(context.Background(), job)
		if atomic.LoadInt32(&locker.unlocked) != 1 {
			t.Fatal("lock not released")
		}
	})

	t.Run("should extend the run lock with every lease renewal", func(t *testing.T) {
		repo := memstore.NewJobRepo()
		seedJobs(t, repo, 1)
		job, _ := repo.ClaimNext(context.Background(), "w-1", time.Minute)

		short := cfg
		short.LeaseTTL = 30 * time.Millisecond
		locker := &mockLocker{
			TryLockFunc: func(ctx context.Context, key string, ttl time.Duration) (string, error) {
				return "tok", nil
			},
			ExtendFunc: func(ctx context.Context, key, token string, ttl time.Duration) error {
				if key != "job-run:job-0" || token != "tok" || ttl != short.LeaseTTL {
					t.Errorf("Extend(%q, %q, %v)", key, token, ttl)
				}
				return nil
			},
		}
		runner := &mockRunner{RunFunc: func(ctx context.Context, job *model.Job) (*model.Job, error) {
			// outlive several lease periods
			select {
			case <-ctx.Done():
				return job, domain.ErrCancelled
			case <-time.After(120 * time.Millisecond):
			}
			return completing(ctx, job)
		}}
		NewJobProcessor(repo, runner, nil, locker, short, 1, &logger).Process(context.Background(), job)
		if n := atomic.LoadInt32(&locker.extended); n < 2 {
			t.Fatalf("lock extended %d times, want at least 2", n)
		}
	})
}

func TestPool(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("should survive a panicking task", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p := NewPool(1, 2, &logger)
		p.Start(ctx)

		done := make(chan struct{})
		_ = p.Submit(func(ctx context.Context) error { panic("boom") })
		_ = p.Submit(func(ctx context.Context) error { close(done); return nil })
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("pool stopped after panic")
		}
		p.Stop()
	})

	t.Run("should reject work when the queue is full", func(t *testing.T) {
		p := NewPool(1, 1, &logger) // not started, nothing drains
		if err := p.Submit(func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("first submit: %v", err)
		}
		if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
			t.Fatalf("got %v, want ErrQueueFull", err)
		}
		if err := p.Submit(nil); err == nil {
			t.Fatal("nil task accepted")
		}
	})
}
