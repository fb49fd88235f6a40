package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"agentic-workflow/internal/config"
	"agentic-workflow/internal/infra/logging"
)

var (
	cfgPath string
	devMode bool
)

var rootCmd = &cobra.Command{
	Use:   "workflowd",
	Short: "AI workflow orchestration service",
	Long: `workflowd turns a request into a multi-step workflow, runs each step
against a reasoning service with optional web search, and assembles the
final document.

Jobs are queued in the store and executed by workers that hold a renewable
lease, so any number of workers can share one database.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "developer mode: console logs, missing config file allowed")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.Load(cfgPath, devMode)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return cfg, logging.New(cfg.Log, cfg.Runtime.Dev), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("workflowd %s (%s)\n", version, commit)
	},
}
