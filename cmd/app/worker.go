package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"agentic-workflow/internal/infra/api"
	"agentic-workflow/internal/infra/metrics"
)

var metricsAddr string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Claim and run queued jobs without serving the API",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose /metrics on this address (e.g. :9090)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("worker on the memory driver only sees jobs created in this process")
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

	stopWorker, err := startWorker(ctx, a)
	if err != nil {
		return err
	}
	defer stopWorker()

	if metricsAddr != "" {
		r := chi.NewRouter()
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		go func() {
			if err := api.ListenAndServe(ctx, metricsAddr, r, cfg.HTTP.ReadTimeout, shutdownGrace, log); err != nil {
				log.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	log.Info().Str("worker_id", cfg.Worker.ID).Int("concurrency", cfg.Worker.Concurrency).Msg("worker running")
	<-ctx.Done()
	log.Info().Msg("worker shutting down")
	return nil
}
