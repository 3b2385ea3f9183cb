// Command qrews generates a software project from a free-text objective.
//
//	qrews Build a task management web app with a REST API
//
// Every argument is part of the objective; there are no flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Qnatz/Qrews-sub000/internal/config"
	"github.com/Qnatz/Qrews-sub000/internal/council"
	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/perception"
	"github.com/Qnatz/Qrews-sub000/internal/shards"
	"github.com/Qnatz/Qrews-sub000/internal/store"
	"github.com/Qnatz/Qrews-sub000/internal/usage"
	"github.com/Qnatz/Qrews-sub000/internal/workflow"
)

// recentRuns is how many earlier runs the final output lists.
const recentRuns = 5

// configPath is read from QREWS_CONFIG, defaulting to qrews.yaml.
func configPath() string {
	if p := os.Getenv("QREWS_CONFIG"); p != "" {
		return p
	}
	return "qrews.yaml"
}

var rootCmd = &cobra.Command{
	Use:   "qrews [objective...]",
	Short: "Qrews - generate a software project from an objective",
	Long: `Qrews runs a fixed pipeline of specialists (analysis, architecture,
planning, API design, coding, testing) against a hosted model backend.
A tech council negotiates the technology stack before any code is written.

All arguments form the objective. Configuration comes from qrews.yaml
(or $QREWS_CONFIG), .env and the environment.`,
	DisableFlagParsing: true,
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), args)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.Initialize(cfg.Logging.Options()); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	objective := strings.TrimSpace(strings.Join(args, " "))
	if objective == "" {
		objective = cfg.Workflow.DefaultObjective
	}
	logging.Boot("%s %s starting: objective=%q", cfg.Name, cfg.Version, objective)

	runID := uuid.NewString()
	tracker := usage.NewTracker(runID)

	clients, err := perception.NewClients(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create backend clients: %w", err)
	}
	invoker := perception.NewInvoker(cfg, clients, tracker)

	opts := workflow.Options{
		Config:    cfg,
		Catalogue: shards.DefaultCatalogue(invoker),
		Council:   council.New(cfg),
		Usage:     tracker,
		Progress:  printProgress,
	}
	summaries, err := store.OpenSummaryStore(cfg.SummaryDBPath())
	if err != nil {
		logging.BootWarn("summary store unavailable, runs will not be recorded: %v", err)
		summaries = nil
	} else {
		defer summaries.Close()
		logging.Boot("recording runs to %s", summaries.Path())
		opts.Summaries = summaries
	}

	engine, err := workflow.New(opts)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Qrews") + " " + dimStyle.Render(objective))
	res, runErr := engine.Run(ctx, objective)

	usagePath := filepath.Join(cfg.Paths.OutputDir, "usage", runID+".json")
	if err := tracker.Save(usagePath); err != nil {
		logging.BootWarn("failed to save usage: %v", err)
	}

	printReport(res.CouncilReport)
	printSummary(res, tracker.Stats())
	if summaries != nil {
		recent, err := summaries.Recent(context.WithoutCancel(ctx), recentRuns)
		if err != nil {
			logging.BootWarn("failed to list recent runs: %v", err)
		} else {
			printRecent(recent)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, workflow.ErrHalted) {
			return fmt.Errorf("run halted (last snapshot: %s)", snapshotOrRecord(res))
		}
		return runErr
	}
	return nil
}

func snapshotOrRecord(res *workflow.Result) string {
	if res.SnapshotPath != "" {
		return res.SnapshotPath
	}
	return res.RecordPath
}
