package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/api"
	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// newServeCmd creates the 'serve' subcommand, which exposes run triggering,
// run history and health probes over HTTP.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	opts := api.Options{
		RunTimeout:  cfg.Server.RunTimeout,
		Ready:       appInstance.Ready,
		SourceStats: appInstance.SourceStats(),
	}
	if cfg.Auth.Enabled {
		opts.APIKey = cfg.Auth.APIKey
	}
	apiServer := api.NewServer(
		appInstance.Runs(),
		appInstance.Orchestrator(),
		func(sources []string) (ingest.RunConfig, error) {
			return appInstance.RunConfig(sources...)
		},
		appInstance.Tracker(),
		opts,
		logger.Named("api"),
	)
	httpServer := appInstance.HTTPServer(apiServer.Handler())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case listenErr = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("active run did not finish before shutdown", zap.Error(err))
	}
	if listenErr != nil {
		return fmt.Errorf("http server: %w", listenErr)
	}
	return nil
}
