package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"agentic-workflow/internal/config"
	"agentic-workflow/internal/domain/model"
	tele "agentic-workflow/internal/infra/adapters/telegram"
	"agentic-workflow/internal/infra/logging"
	"agentic-workflow/internal/infra/worker"
	"agentic-workflow/internal/usecase"
)

const localOwner = "local"

var (
	runScripted bool
	runParallel int
	runType     string
	runTitle    string
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run one workflow in-process and print the document",
	Long: `Run a single request end to end against an in-memory store: classify,
decompose, execute every step and print the assembled document.

Provider keys come from the config file or the environment. With --scripted
no provider is called and each step echoes its task.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runScripted, "scripted", false, "use canned replies instead of a reasoning provider")
	runCmd.Flags().IntVar(&runParallel, "parallel", 0, "run up to N independent steps at once")
	runCmd.Flags().StringVar(&runType, "type", "", "workflow type (business-case, research, simple); classified when empty")
	runCmd.Flags().StringVar(&runTitle, "title", "", "document title")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath, devMode)
	if err != nil {
		cfg = config.Local()
	}
	cfg.Database.Driver = "memory"
	cfg.Redis.URL = ""
	cfg.Worker.UseRedisLock = false
	cfg.Notify.Telegram.Token = ""
	if runScripted {
		cfg.AI.Provider = "scripted"
		cfg.AI.DefaultModel = "scripted"
	}
	if runParallel > 0 {
		cfg.Workflow.MaxParallelSteps = runParallel
	}
	if !devMode {
		cfg.Log.Level = "warn"
	}
	log := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	runner, err := a.jobRunner(ctx, nil)
	if err != nil {
		return err
	}
	uc := a.workflowUseCase()

	res, err := uc.TriggerWorkflow(ctx, localOwner, usecase.TriggerRequest{
		WorkflowType:  runType,
		Message:       strings.Join(args, " "),
		DocumentTitle: runTitle,
	})
	if err != nil {
		return err
	}
	color.New(color.Faint).Printf("Job %s queued (%s)\n", res.JobID, res.EstimatedTime)

	subCtx, unsubscribe := context.WithCancel(ctx)
	updates, err := uc.Subscribe(subCtx, localOwner)
	if err != nil {
		unsubscribe()
		return err
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printProgress(updates, res.JobID)
	}()

	job, err := a.jobs.ClaimNext(ctx, localOwner, cfg.Worker.LeaseTTL)
	if err == nil {
		proc := worker.NewJobProcessor(a.jobs, runner, tele.NewNoopNotifier(log), nil, worker.ProcessorConfig{
			WorkerID: localOwner,
			LeaseTTL: cfg.Worker.LeaseTTL,
		}, 1, log)
		proc.Process(ctx, job)
	}
	unsubscribe()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if ctx.Err() != nil {
		return errors.New("interrupted")
	}

	final, err := a.jobs.FindByID(context.WithoutCancel(ctx), nil, res.JobID)
	if err != nil {
		return err
	}
	return printOutcome(ctx, uc, final)
}

// printProgress prints each new progress message of one job until updates closes.
func printProgress(updates <-chan []*model.Job, jobID string) {
	last := ""
	for jobs := range updates {
		for _, j := range jobs {
			if j.ID != jobID || j.Progress.Message == last {
				continue
			}
			last = j.Progress.Message
			fmt.Printf("  [%d/%d] %s\n", j.Progress.CurrentStepIndex, j.Progress.TotalSteps, last)
		}
	}
}

func printOutcome(ctx context.Context, uc usecase.WorkflowUseCase, job *model.Job) error {
	if job.Status != model.JobStatusCompleted {
		color.New(color.FgRed, color.Bold).Printf("✗ %s\n", job.Status)
		if job.Error != "" {
			fmt.Println(job.Error)
		}
		return fmt.Errorf("job %s %s", job.ID, job.Status)
	}

	doc, err := uc.GetDocument(ctx, localOwner, job.ID)
	if err != nil {
		return err
	}
	color.New(color.FgGreen, color.Bold).Printf("✓ completed in %s\n\n", job.DurationString())
	fmt.Println(doc.Body)
	return nil
}
