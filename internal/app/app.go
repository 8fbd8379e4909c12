// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the CLI commands and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/classify"
	"github.com/JakeFAU/event-ingestor/internal/clock/system"
	"github.com/JakeFAU/event-ingestor/internal/config"
	collyfetcher "github.com/JakeFAU/event-ingestor/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/event-ingestor/internal/fetcher/headless"
	"github.com/JakeFAU/event-ingestor/internal/hash/sha256"
	"github.com/JakeFAU/event-ingestor/internal/headless/detector"
	"github.com/JakeFAU/event-ingestor/internal/health"
	"github.com/JakeFAU/event-ingestor/internal/id/uuid"
	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/normalize"
	"github.com/JakeFAU/event-ingestor/internal/oplog"
	"github.com/JakeFAU/event-ingestor/internal/orchestrator"
	"github.com/JakeFAU/event-ingestor/internal/policy/ratelimit"
	"github.com/JakeFAU/event-ingestor/internal/progress"
	"github.com/JakeFAU/event-ingestor/internal/progress/sinks"
	"github.com/JakeFAU/event-ingestor/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/event-ingestor/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/event-ingestor/internal/publisher/pubsub"
	"github.com/JakeFAU/event-ingestor/internal/report"
	"github.com/JakeFAU/event-ingestor/internal/retry"
	"github.com/JakeFAU/event-ingestor/internal/source"
	"github.com/JakeFAU/event-ingestor/internal/storage/gcs"
	"github.com/JakeFAU/event-ingestor/internal/storage/local"
	"github.com/JakeFAU/event-ingestor/internal/storage/memory"
	"github.com/JakeFAU/event-ingestor/internal/storage/postgres"
	"github.com/JakeFAU/event-ingestor/internal/store"
)

const readHeaderTimeout = 5 * time.Second

// Options carries process-level overrides.
type Options struct {
	// Registerer receives the progress collectors. Nil uses the default
	// Prometheus registry.
	Registerer prometheus.Registerer
	// Clock overrides the system clock.
	Clock ingest.Clock
}

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	closers []func(context.Context) error

	events       ingest.EventStore
	runs         ingest.RunStore
	stats        store.SourceStatsRepository
	blobs        ingest.BlobStore
	publisher    ingest.Publisher
	registry     *source.Registry
	monitor      *health.Monitor
	hub          *progress.Hub
	tracker      *sinks.Tracker
	orchestrator *orchestrator.Orchestrator
}

// New builds every service named by cfg. It fails fast; anything opened
// before the failure is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx, opts); err != nil {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("cleanup after failed init", zap.Error(cerr))
		}
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("blob", cfg.Blob.Driver),
		zap.String("publisher", cfg.Publisher.Driver),
		zap.Strings("sources", idStrings(a.registry.IDs())),
	)
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	if err := a.initStores(ctx); err != nil {
		return err
	}
	if err := a.initBlobStore(ctx); err != nil {
		return err
	}
	if err := a.initPublisher(ctx); err != nil {
		return err
	}
	if err := a.initSources(opts.Clock); err != nil {
		return err
	}
	if err := a.initProgress(opts.Registerer); err != nil {
		return err
	}

	normCfg, err := a.cfg.Pipeline.Normalize()
	if err != nil {
		return fmt.Errorf("configure normalizer: %w", err)
	}
	var reporter orchestrator.Reporter
	if a.blobs != nil || a.publisher != nil {
		reporter = report.New(a.blobs, a.publisher, a.cfg.Report, a.logger.Named("report"))
	}
	orch, err := orchestrator.New(orchestrator.Deps{
		Store:      a.events,
		Runs:       oplog.NewLogger(a.runs, opts.Clock, a.logger.Named("oplog")),
		Sources:    a.registry,
		Health:     a.monitor,
		Retry:      retry.New(a.cfg.Retry),
		Normalizer: normalize.New(normCfg, opts.Clock.Now),
		Classifier: classify.New(a.cfg.Pipeline.Classify()),
		Reporter:   reporter,
		Progress:   a.hub,
		IDs:        uuid.New(),
		Hasher:     sha256.New(),
		Clock:      opts.Clock,
	}, a.cfg.Pipeline.Orchestrator(), a.logger)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}
	a.orchestrator = orch
	return nil
}

func (a *App) initStores(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
		a.logger.Info("connecting to PostgreSQL")
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             a.cfg.Store.DSN,
			MaxConns:        a.cfg.Store.MaxConns,
			MinConns:        a.cfg.Store.MinConns,
			MaxConnLifetime: a.cfg.Store.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		a.onClose(func(context.Context) error {
			pool.Close()
			return nil
		})
		if a.cfg.Store.EnsureSchema {
			if err := postgres.EnsureSchema(ctx, pool); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
		}
		events, err := postgres.NewEventStoreWithPool(pool, a.cfg.Store.Table, a.cfg.Store.OrganizerID)
		if err != nil {
			return fmt.Errorf("initialize event store: %w", err)
		}
		runs, err := postgres.NewRunStoreWithPool(pool)
		if err != nil {
			return fmt.Errorf("initialize run store: %w", err)
		}
		stats, err := postgres.NewSourceStatsStoreWithPool(pool)
		if err != nil {
			return fmt.Errorf("initialize source stats store: %w", err)
		}
		a.events, a.runs, a.stats = events, runs, stats
	case config.DriverMemory:
		a.logger.Info("using in-memory stores; events are discarded on exit")
		a.events, a.runs, a.stats = memory.NewEventStore(), memory.NewRunStore(), memory.NewSourceStatsStore()
	default:
		return fmt.Errorf("unknown store driver: %s", a.cfg.Store.Driver)
	}
	return nil
}

func (a *App) initBlobStore(ctx context.Context) error {
	switch a.cfg.Blob.Driver {
	case config.DriverGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.onClose(func(context.Context) error { return client.Close() })
		blobs, err := gcs.New(client, a.cfg.Blob.GCS)
		if err != nil {
			return fmt.Errorf("initialize gcs blob store: %w", err)
		}
		a.blobs = blobs
	case config.DriverLocal:
		blobs, err := local.New(a.cfg.Blob.Local)
		if err != nil {
			return fmt.Errorf("initialize local blob store: %w", err)
		}
		a.blobs = blobs
	case config.DriverMemory:
		a.blobs = memory.NewBlobStore()
	case config.DriverNone:
		a.logger.Info("report artifacts disabled")
	default:
		return fmt.Errorf("unknown blob driver: %s", a.cfg.Blob.Driver)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	switch a.cfg.Publisher.Driver {
	case config.DriverPubSub:
		client, err := pubsub.NewClient(ctx, a.cfg.Publisher.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client, a.cfg.Report.Topic)
		a.onClose(func(context.Context) error {
			pub.Close()
			return client.Close()
		})
		a.publisher = pub
	case config.DriverKafka:
		kcfg := a.cfg.Publisher.Kafka
		if kcfg.Topic == "" {
			kcfg.Topic = a.cfg.Report.Topic
		}
		pub, err := kafka.New(kcfg)
		if err != nil {
			return fmt.Errorf("initialize kafka publisher: %w", err)
		}
		a.onClose(func(context.Context) error { return pub.Close() })
		a.publisher = pub
	case config.DriverMemory:
		a.publisher = memorypublisher.New()
	case config.DriverNone:
		a.logger.Info("run summary publishing disabled")
	default:
		return fmt.Errorf("unknown publisher driver: %s", a.cfg.Publisher.Driver)
	}
	return nil
}

func (a *App) initSources(clock ingest.Clock) error {
	fetcher := collyfetcher.New(a.cfg.HTTP.Fetcher())
	var renderer ingest.Fetcher
	if a.cfg.Headless.Enabled {
		chrome, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.HTTP.UserAgent,
			NavigationTimeout: a.cfg.Headless.NavigationTimeout,
			ScrollPasses:      a.cfg.Headless.ScrollPasses,
			SettleDelay:       a.cfg.Headless.SettleDelay,
		})
		if err != nil {
			a.logger.Warn("headless fetcher init failed; rendering disabled", zap.Error(err))
		} else {
			a.onClose(func(context.Context) error {
				chrome.Close()
				return nil
			})
			renderer = chrome
		}
	}
	limiter := ratelimit.New(a.cfg.RateLimit)

	registry, err := source.Build(a.cfg.Sources.Sites, source.Deps{
		Fetcher:  fetcher,
		Renderer: renderer,
		Detector: detector.NewHeuristic(a.cfg.Headless.PromotionThreshold),
		Limiter:  limiter,
		Clock:    clock,
		Logger:   a.logger.Named("source"),
	})
	if err != nil {
		return fmt.Errorf("build sources: %w", err)
	}
	a.registry = registry
	a.monitor = health.NewMonitor(limiter.Wrap(fetcher), a.cfg.Health, a.logger.Named("health"))
	return nil
}

func (a *App) initProgress(reg prometheus.Registerer) error {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	a.tracker = sinks.NewTracker(0)
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		Logger:         a.logger.Named("progress"),
	},
		sinks.NewLogSink(a.logger.Named("progress")),
		promSink,
		a.tracker,
		sinks.NewStatsSink(a.stats),
	)
	a.onClose(a.hub.Close)
	return nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Orchestrator returns the run orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

// Registry returns the configured sources.
func (a *App) Registry() *source.Registry {
	return a.registry
}

// Monitor returns the source health monitor.
func (a *App) Monitor() *health.Monitor {
	return a.monitor
}

// Runs returns the operation run store.
func (a *App) Runs() ingest.RunStore {
	return a.runs
}

// SourceStats returns the persisted per-source run outcomes.
func (a *App) SourceStats() store.SourceStatsRepository {
	return a.stats
}

// Tracker returns the live progress view fed by the hub.
func (a *App) Tracker() *sinks.Tracker {
	return a.tracker
}

// RunConfig builds a validated run configuration. Passing sources replaces
// the configured defaults.
func (a *App) RunConfig(sources ...string) (ingest.RunConfig, error) {
	return a.cfg.RunConfig(a.registry, sources...)
}

// Ready reports whether the event store is reachable.
func (a *App) Ready(ctx context.Context) error {
	if err := a.events.Ping(ctx); err != nil {
		return fmt.Errorf("event store: %w", err)
	}
	return nil
}

// HTTPServer builds an http.Server around handler on the configured port.
func (a *App) HTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// Close shuts services down in reverse order of creation. The progress hub
// is flushed before the stores it reports on go away.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
		return err
	}
	return nil
}

func idStrings(ids []ingest.SourceID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
