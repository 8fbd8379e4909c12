package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/report"
)

// errRunFailed marks a run that sealed as failed. The report has already
// been printed, so Execute only needs the exit status.
var errRunFailed = errors.New("run failed")

// newRunCmd creates the 'run' subcommand, which executes one ingestion run
// in the foreground and prints its report.
func newRunCmd() *cobra.Command {
	var sources []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the ingestion pipeline once",
		Long: `Scrapes the selected sources (the configured defaults when --source is
not given), pushes every candidate through normalization, classification,
deduplication and storage, then prints the run report.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, sources)
		},
	}
	cmd.Flags().StringSliceVarP(&sources, "source", "s", nil, "source id to scrape (repeatable)")
	return cmd
}

func runIngest(cmd *cobra.Command, sources []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	runCfg, err := appInstance.RunConfig(sources...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout := appInstance.Config().Server.RunTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	run, runErr := appInstance.Orchestrator().Run(ctx, runCfg)
	if run.ID != "" {
		if _, err := cmd.OutOrStdout().Write(report.RenderText(run)); err != nil {
			logger.Warn("failed to print run report", zap.Error(err))
		}
	}
	if runErr != nil || run.Status == ingest.RunFailed {
		logger.Error("run failed", zap.String("run_id", run.ID), zap.Error(runErr))
		return fmt.Errorf("%w: %s", errRunFailed, run.Error)
	}
	logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.Int64("inserted", run.Counts.Inserted),
		zap.Int64("duplicated", run.Counts.Duplicated),
		zap.Int64("rejected", run.Counts.Rejected),
		zap.Int64("errored", run.Counts.Errored),
	)
	return nil
}
