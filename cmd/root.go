// Package cmd defines and implements the CLI commands for the event-ingestor
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/app"
	"github.com/JakeFAU/event-ingestor/internal/config"
	"github.com/JakeFAU/event-ingestor/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// registerer receives the process collectors. Tests swap it for a private
// registry so repeated command executions do not collide.
var registerer prometheus.Registerer = prometheus.DefaultRegisterer

// newApp is the application factory. It's a variable so tests can inject
// options such as a fixed clock.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger, app.Options{Registerer: registerer})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "event-ingestor",
		Short: "Collects, cleans and stores events from Brazilian event sites.",
		Long: `event-ingestor scrapes configured event sources, normalizes and
classifies what it finds, drops duplicates and stores the rest. Every
execution is recorded as an operation run with balanced counts.`,
		SilenceUsage: true,

		// Builds the application once the flags are parsed and hands it to
		// the subcommand through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// Shuts services down and flushes the logger.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			closeApp(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (env vars prefixed INGEST_ override it)")

	cmd.AddCommand(newRunCmd(), newHealthCmd(), newServeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	executed, err := newRootCmd().ExecuteContextC(context.Background())
	if err != nil {
		// PersistentPostRun is skipped when RunE fails.
		if executed != nil {
			closeApp(executed.Context())
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func closeApp(ctx context.Context) {
	if ctx == nil {
		return
	}
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return
	}
	logger := appInstance.Logger()
	if err := appInstance.Close(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("failed to close application services", zap.Error(err))
	}
	_ = logger.Sync()
}
