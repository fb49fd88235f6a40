package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agentic-workflow/internal/infra/api"
	"agentic-workflow/internal/infra/metrics"
	"agentic-workflow/internal/infra/worker"
)

const shutdownGrace = 15 * time.Second

var noWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and an embedded worker",
	Long: `Start the HTTP API. Unless --no-worker is given, the process also claims
and runs queued jobs, so a single binary is a complete deployment.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve the API only; run 'workflowd worker' separately")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if !noWorker {
		stopWorker, err := startWorker(ctx, a)
		if err != nil {
			return err
		}
		defer stopWorker()
	}

	auth := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	srv := api.NewServer(a.workflowUseCase(), auth, cfg.HTTP.RequestTimeout, log)
	return api.ListenAndServe(ctx, cfg.HTTP.Addr, srv.Routes(), cfg.HTTP.ReadTimeout, shutdownGrace, log)
}

// startWorker runs the claim loop until the returned stop func is called.
// Stopping interrupts in-flight jobs; their leases lapse and another worker
// picks them up.
func startWorker(ctx context.Context, a *app) (func(), error) {
	runner, err := a.jobRunner(ctx, nil)
	if err != nil {
		return nil, err
	}
	wc := a.cfg.Worker
	wctx, cancel := context.WithCancel(ctx)

	pool := worker.NewPool(wc.Concurrency, wc.QueueSize, a.log)
	pool.Start(wctx)
	proc := worker.NewJobProcessor(a.jobs, runner, a.notifier(), a.locker, worker.ProcessorConfig{
		WorkerID:     wc.ID,
		PollInterval: wc.PollInterval,
		LeaseTTL:     wc.LeaseTTL,
	}, pool.Size(), a.log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		proc.Start(wctx, pool)
	}()
	return func() {
		cancel()
		<-done
		pool.Stop()
	}, nil
}
