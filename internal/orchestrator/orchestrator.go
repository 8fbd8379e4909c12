// Package orchestrator sequences an ingestion run: it authenticates the
// store, probes sources, scrapes them concurrently, pushes every record
// through normalization, filtering, classification and deduplication,
// persists the survivors and seals the run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/classify"
	"github.com/JakeFAU/event-ingestor/internal/dedupe"
	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/metrics"
	"github.com/JakeFAU/event-ingestor/internal/normalize"
	"github.com/JakeFAU/event-ingestor/internal/oplog"
	"github.com/JakeFAU/event-ingestor/internal/persist"
	"github.com/JakeFAU/event-ingestor/internal/progress"
	"github.com/JakeFAU/event-ingestor/internal/quality"
	"github.com/JakeFAU/event-ingestor/internal/report"
	"github.com/JakeFAU/event-ingestor/internal/retry"
)

// ErrInvalidTransition means the state machine was asked to move backwards
// or skip a state.
var ErrInvalidTransition = errors.New("invalid state transition")

// SourceResolver looks up adapters by id.
type SourceResolver interface {
	ingest.SourceSet
	Resolve(ids []ingest.SourceID) ([]ingest.Adapter, error)
}

// HealthChecker probes sources before scraping.
type HealthChecker interface {
	Check(ctx context.Context, adapters []ingest.Adapter) []ingest.SourceHealth
}

// Reporter renders and ships sealed runs.
type Reporter interface {
	Report(ctx context.Context, run ingest.OperationRun) report.Result
}

// Config tunes the orchestrator.
type Config struct {
	// Kind is recorded on every run.
	Kind    string         `mapstructure:"kind"`
	Quality quality.Config `mapstructure:"quality"`
	Dedupe  dedupe.Config  `mapstructure:"dedupe"`

	// Lookback bounds the stored titles seeded into the fuzzy index.
	Lookback      time.Duration `mapstructure:"lookback"`
	LookbackLimit int           `mapstructure:"lookback_limit"`
}

// Defaults applied by New.
const (
	DefaultKind          = "ingest"
	DefaultLookback      = 30 * 24 * time.Hour
	DefaultLookbackLimit = 500
)

// Deps are the collaborators a run needs. Health, Reporter and Progress are
// optional.
type Deps struct {
	Store      ingest.EventStore
	Runs       *oplog.Logger
	Sources    SourceResolver
	Health     HealthChecker
	Retry      *retry.Policy
	Normalizer *normalize.Normalizer
	Classifier *classify.Classifier
	Reporter   Reporter
	Progress   progress.Emitter
	IDs        ingest.IDGenerator
	Hasher     ingest.Hasher
	Clock      ingest.Clock
}

// Orchestrator runs the ingestion pipeline. It holds no per-run state, so
// concurrent runs are independent.
type Orchestrator struct {
	deps    Deps
	gateway *persist.Gateway
	cfg     Config
	logger  *zap.Logger
}

// New validates deps and fills config defaults.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("orchestrator: event store is required")
	case deps.Runs == nil:
		return nil, errors.New("orchestrator: run logger is required")
	case deps.Sources == nil:
		return nil, errors.New("orchestrator: source resolver is required")
	case deps.Normalizer == nil:
		return nil, errors.New("orchestrator: normalizer is required")
	case deps.Classifier == nil:
		return nil, errors.New("orchestrator: classifier is required")
	case deps.IDs == nil:
		return nil, errors.New("orchestrator: id generator is required")
	case deps.Hasher == nil:
		return nil, errors.New("orchestrator: hasher is required")
	case deps.Clock == nil:
		return nil, errors.New("orchestrator: clock is required")
	}
	if deps.Retry == nil {
		deps.Retry = retry.New(retry.Config{})
	}
	if deps.Progress == nil {
		deps.Progress = progress.Discard{}
	}
	if cfg.Kind == "" {
		cfg.Kind = DefaultKind
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.LookbackLimit <= 0 {
		cfg.LookbackLimit = DefaultLookbackLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("orchestrator")
	return &Orchestrator{
		deps:    deps,
		gateway: persist.NewGateway(deps.Store, logger),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// NewRunID allocates an id for RunWithID.
func (o *Orchestrator) NewRunID() (string, error) {
	id, err := o.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("allocate run id: %w", err)
	}
	return id, nil
}

// Run executes one run with a fresh id.
func (o *Orchestrator) Run(ctx context.Context, cfg ingest.RunConfig) (ingest.OperationRun, error) {
	id, err := o.NewRunID()
	if err != nil {
		return ingest.OperationRun{Status: ingest.RunFailed, Error: err.Error(), Config: cfg}, err
	}
	return o.RunWithID(ctx, id, cfg)
}

// RunWithID executes one run. It always returns the sealed run when the
// ledger could be opened; the error reports why the run failed, if it did.
func (o *Orchestrator) RunWithID(ctx context.Context, id string, cfg ingest.RunConfig) (ingest.OperationRun, error) {
	ledger, err := o.deps.Runs.Start(ctx, id, o.cfg.Kind, cfg.Scope(), cfg)
	if err != nil {
		err = fmt.Errorf("open run ledger: %w", err)
		o.logger.Error("run not started", zap.String("run_id", id), zap.Error(err))
		metrics.ObserveRun(string(ingest.RunFailed))
		return ingest.OperationRun{
			ID:        id,
			Kind:      o.cfg.Kind,
			Scope:     cfg.Scope(),
			Status:    ingest.RunFailed,
			StartedAt: o.deps.Clock.Now(),
			Error:     err.Error(),
			Config:    cfg,
		}, err
	}

	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()

	e := &execution{
		o:      o,
		cfg:    cfg,
		ledger: ledger,
		state:  StateIdle,
		start:  o.deps.Clock.Now(),
		logger: o.logger.With(zap.String("run_id", id)),
	}
	e.emit(progress.Event{Stage: progress.StageRunStart, Total: len(cfg.Sources)})
	e.logger.Info("run started",
		zap.String("scope", string(cfg.Scope())),
		zap.Int("sources", len(cfg.Sources)),
	)

	run, err := e.execute(ctx)
	metrics.ObserveRun(string(run.Status))
	return run, err
}
