package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/event-ingestor/internal/dedupe"
	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/metrics"
	"github.com/JakeFAU/event-ingestor/internal/oplog"
	"github.com/JakeFAU/event-ingestor/internal/progress"
	"github.com/JakeFAU/event-ingestor/internal/quality"
	"github.com/JakeFAU/event-ingestor/internal/retry"
)

// Record outcomes used as metric labels.
const (
	outcomeInserted   = "inserted"
	outcomeDuplicated = "duplicated"
	outcomeRejected   = "rejected"
	outcomeErrored    = "errored"
)

type candidate struct {
	source ingest.SourceID
	raw    ingest.RawCandidate
}

// execution is the state of one run. Only the scraping phase touches it from
// more than one goroutine, and then only through the ledger and harvests.
type execution struct {
	o      *Orchestrator
	cfg    ingest.RunConfig
	ledger *oplog.Ledger
	state  State
	start  time.Time
	logger *zap.Logger

	adapters    []ingest.Adapter
	health      map[ingest.SourceID]ingest.SourceHealth
	reliability map[ingest.SourceID]float64
	filters     ingest.Filters
	filter      *quality.Filter
	index       *dedupe.Index

	candidates []candidate
	accepted   []ingest.NormalizedEvent
	// pending holds the source of every found record that has not reached an
	// outcome yet. A failing run settles them as errored.
	pending []ingest.SourceID

	sourcesDone atomic.Int32
}

func (e *execution) execute(ctx context.Context) (ingest.OperationRun, error) {
	if err := e.cfg.Validate(e.o.deps.Sources); err != nil {
		return e.fail(ctx, err)
	}

	phases := []struct {
		state State
		run   func(context.Context) error
	}{
		{StateAuthenticating, e.authenticate},
		{StateHealthChecking, e.checkHealth},
		{StateConfiguring, e.configure},
		{StateScraping, e.scrape},
		{StateProcessing, e.process},
		{StatePersisting, e.persist},
	}
	for _, phase := range phases {
		if err := e.transition(ctx, phase.state); err != nil {
			return e.fail(ctx, err)
		}
		if err := phase.run(ctx); err != nil {
			return e.fail(ctx, err)
		}
	}
	if err := e.transition(ctx, StateReporting); err != nil {
		return e.fail(ctx, err)
	}

	// From here on the run is sealed, so late cancellation no longer matters.
	sealCtx := context.WithoutCancel(ctx)
	run, sealErr := e.ledger.Complete(sealCtx)
	e.report(sealCtx, run)
	if sealErr != nil {
		e.state = StateFailed
		metrics.ObservePhase(string(StateFailed))
		e.emit(progress.Event{Stage: progress.StageRunError, Dur: run.Duration, Note: sealErr.Error()})
		return run, sealErr
	}

	e.advance(StateDone)
	e.emit(progress.Event{Stage: progress.StageRunDone, Found: int(run.Counts.Found), Dur: run.Duration})
	return run, nil
}

// transition is the cancellation checkpoint between phases.
func (e *execution) transition(ctx context.Context, next State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled before %s: %w", next, err)
	}
	if !CanTransition(e.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.state, next)
	}
	e.advance(next)
	return nil
}

func (e *execution) advance(next State) {
	e.state = next
	metrics.ObservePhase(string(next))
	e.emit(progress.Event{
		Stage:     progress.StagePhase,
		Phase:     string(next),
		Completed: next.step(),
		Total:     len(pipeline) - 1,
	})
	e.logger.Debug("phase entered", zap.String("phase", string(next)))
}

func (e *execution) emit(evt progress.Event) {
	evt.RunID = e.ledger.ID()
	evt.TS = e.o.deps.Clock.Now()
	e.o.deps.Progress.Emit(evt)
}

// fail settles pending records, seals the run as failed and reports it.
func (e *execution) fail(ctx context.Context, cause error) (ingest.OperationRun, error) {
	from := e.state
	e.state = StateFailed
	metrics.ObservePhase(string(StateFailed))

	for _, source := range e.pending {
		_ = e.ledger.RecordError(fmt.Errorf("%s: %w", ingest.ReasonAbandoned, cause))
		metrics.ObserveRecord(string(source), outcomeErrored)
	}
	if len(e.pending) > 0 {
		e.logger.Warn("pending records abandoned", zap.Int("count", len(e.pending)))
	}
	e.pending = nil

	cause = fmt.Errorf("run failed in %s: %w", from, cause)
	sealCtx := context.WithoutCancel(ctx)
	run, sealErr := e.ledger.Fail(sealCtx, cause)
	e.emit(progress.Event{Stage: progress.StageRunError, Dur: run.Duration, Note: cause.Error()})
	e.report(sealCtx, run)
	return run, errors.Join(cause, sealErr)
}

func (e *execution) report(ctx context.Context, run ingest.OperationRun) {
	if e.o.deps.Reporter == nil {
		return
	}
	// Report failures are logged by the reporter and never change the run.
	_ = e.o.deps.Reporter.Report(ctx, run)
}

func (e *execution) authenticate(ctx context.Context) error {
	if err := e.o.deps.Store.Ping(ctx); err != nil {
		return fmt.Errorf("authenticate store: %w", err)
	}
	return nil
}

func (e *execution) checkHealth(ctx context.Context) error {
	adapters, err := e.o.deps.Sources.Resolve(e.cfg.Sources)
	if err != nil {
		return err
	}
	e.adapters = adapters
	e.health = make(map[ingest.SourceID]ingest.SourceHealth, len(adapters))
	if e.o.deps.Health == nil {
		for _, a := range adapters {
			e.health[a.ID()] = ingest.SourceHealth{SourceID: a.ID(), Score: 100, Detail: "health checks disabled"}
		}
		return nil
	}
	for _, h := range e.o.deps.Health.Check(ctx, adapters) {
		e.health[h.SourceID] = h
	}
	return nil
}

func (e *execution) configure(ctx context.Context) error {
	qcfg := e.o.cfg.Quality
	qcfg.RequireImages = e.cfg.Options.RequireImages
	e.filter = quality.New(qcfg)

	e.filters = ingest.Filters{
		MaxEvents:  e.cfg.Options.MaxEvents,
		Categories: e.cfg.Options.Categories,
		DateRange:  e.cfg.Options.DateRange,
	}

	e.reliability = make(map[ingest.SourceID]float64, len(e.adapters))
	for _, a := range e.adapters {
		if r, ok := a.(ingest.Reliable); ok {
			e.reliability[a.ID()] = r.Reliability()
		}
	}

	e.index = dedupe.NewIndex(e.o.cfg.Dedupe, e.o.deps.Store, e.logger.Named("dedupe"))
	since := e.o.deps.Clock.Now().Add(-e.o.cfg.Lookback)
	titles, err := e.o.deps.Store.RecentTitles(ctx, since, e.o.cfg.LookbackLimit)
	if err != nil {
		// The store's unique constraint still guards exact duplicates.
		e.logger.Warn("dedupe lookback unavailable", zap.Error(err))
		return nil
	}
	e.index.Seed(titles)
	e.logger.Debug("dedupe index seeded", zap.Int("titles", len(titles)))
	return nil
}

type harvest struct {
	candidates []ingest.RawCandidate
}

func (e *execution) scrape(ctx context.Context) error {
	harvests := make([]harvest, len(e.adapters))
	var g errgroup.Group
	for i, adapter := range e.adapters {
		g.Go(func() error {
			harvests[i] = e.scrapeSource(ctx, adapter)
			return nil
		})
	}
	_ = g.Wait()

	for i, h := range harvests {
		id := e.adapters[i].ID()
		for _, c := range h.candidates {
			e.candidates = append(e.candidates, candidate{source: id, raw: c})
			e.pending = append(e.pending, id)
		}
	}
	return nil
}

// scrapeSource drains one adapter under the retry policy. A source that
// ends in error contributes exactly one found record, settled as errored;
// candidates from a failed call are discarded.
func (e *execution) scrapeSource(ctx context.Context, adapter ingest.Adapter) harvest {
	id := adapter.ID()
	started := e.o.deps.Clock.Now()

	var (
		mu        sync.Mutex
		collected []ingest.RawCandidate
	)
	attempts, err := e.o.deps.Retry.Do(ctx, func(callCtx context.Context) error {
		got, err := drain(callCtx, adapter, e.cfg.Region, e.filters)
		metrics.ObserveAdapterAttempt(string(id), attemptResult(err))
		if err != nil {
			return err
		}
		mu.Lock()
		collected = got
		mu.Unlock()
		return nil
	})
	if errors.Is(err, retry.ErrAbandoned) {
		metrics.ObserveAdapterAttempt(string(id), "abandoned")
	}

	health := e.health[id]
	result := ingest.SourceResult{
		SourceID:    id,
		Attempts:    attempts,
		HealthScore: health.Score,
		Degraded:    health.Degraded,
	}
	var out harvest
	if err != nil {
		result.Found = 1
		result.Error = err.Error()
		_ = e.ledger.RecordFound(1)
		_ = e.ledger.RecordError(fmt.Errorf("source %s: %w", id, err))
		metrics.ObserveRecord(string(id), outcomeErrored)
		e.logger.Warn("source failed",
			zap.String("source", string(id)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	} else {
		mu.Lock()
		out.candidates = collected
		mu.Unlock()
		result.Found = len(out.candidates)
		_ = e.ledger.RecordFound(len(out.candidates))
		e.logger.Info("source scraped",
			zap.String("source", string(id)),
			zap.Int("found", len(out.candidates)),
			zap.Int("attempts", attempts),
		)
	}
	_ = e.ledger.RecordSource(result)

	e.emit(progress.Event{
		Stage:     progress.StageSourceDone,
		Source:    string(id),
		Found:     result.Found,
		Attempts:  attempts,
		Failed:    err != nil,
		Completed: int(e.sourcesDone.Add(1)),
		Total:     len(e.adapters),
		Dur:       e.o.deps.Clock.Now().Sub(started),
	})
	return out
}

// drain collects an adapter's sequence, stopping at filters.MaxEvents.
func drain(ctx context.Context, adapter ingest.Adapter, region ingest.Region, filters ingest.Filters) ([]ingest.RawCandidate, error) {
	var out []ingest.RawCandidate
	for c, err := range adapter.ScrapeEvents(ctx, region, filters) {
		if err != nil {
			return nil, err
		}
		c.SourceID = adapter.ID()
		out = append(out, c)
		if filters.MaxEvents > 0 && len(out) >= filters.MaxEvents {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func attemptResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ingest.ErrFatal):
		return "fatal"
	default:
		return "transient"
	}
}
