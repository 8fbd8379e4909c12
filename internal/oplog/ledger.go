// Package oplog keeps the run-scoped ledger of an ingestion run and persists
// it through an ingest.RunStore.
package oplog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

var (
	// ErrSealed is returned when a sealed ledger is mutated.
	ErrSealed = ingest.ErrRunSealed
	// ErrCountMismatch means found != inserted+duplicated+rejected+errored at seal time.
	ErrCountMismatch = errors.New("run counts do not balance")
)

// Logger opens ledgers backed by a run store.
type Logger struct {
	store  ingest.RunStore
	now    func() time.Time
	logger *zap.Logger
}

// NewLogger constructs a Logger. A nil clock falls back to time.Now.
func NewLogger(store ingest.RunStore, clock ingest.Clock, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	return &Logger{store: store, now: now, logger: logger.Named("oplog")}
}

// Start persists a running run and returns its ledger.
func (l *Logger) Start(ctx context.Context, id, kind string, scope ingest.SourceID, cfg ingest.RunConfig) (*Ledger, error) {
	if id == "" {
		return nil, fmt.Errorf("start run: id is required")
	}
	run := ingest.OperationRun{
		ID:            id,
		Kind:          kind,
		Scope:         scope,
		Status:        ingest.RunRunning,
		StartedAt:     l.now(),
		RejectReasons: map[string]int64{},
		Config:        cfg,
	}
	if err := l.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("start run %s: %w", id, err)
	}
	l.logger.Info("run started", zap.String("run_id", id), zap.String("scope", string(scope)))
	return &Ledger{
		store:   l.store,
		now:     l.now,
		logger:  l.logger.With(zap.String("run_id", id)),
		base:    run,
		reasons: map[string]int64{},
	}, nil
}

// Ledger accumulates the counts of one run. Counters are safe for concurrent
// use; once sealed every mutation returns ErrSealed.
type Ledger struct {
	store  ingest.RunStore
	now    func() time.Time
	logger *zap.Logger
	base   ingest.OperationRun

	found      atomic.Int64
	inserted   atomic.Int64
	duplicated atomic.Int64
	rejected   atomic.Int64
	errored    atomic.Int64
	sealed     atomic.Bool

	mu        sync.Mutex
	reasons   map[string]int64
	sources   []ingest.SourceResult
	lastError string
	final     ingest.OperationRun
}

// ID returns the run identifier.
func (l *Ledger) ID() string {
	return l.base.ID
}

// RecordFound adds n raw candidates to the found count.
func (l *Ledger) RecordFound(n int) error {
	if l.sealed.Load() {
		return ErrSealed
	}
	if n < 0 {
		return fmt.Errorf("record found: negative count %d", n)
	}
	l.found.Add(int64(n))
	return nil
}

// RecordInserted counts one stored event.
func (l *Ledger) RecordInserted() error {
	if l.sealed.Load() {
		return ErrSealed
	}
	l.inserted.Add(1)
	return nil
}

// RecordDuplicated counts one event dropped as a duplicate.
func (l *Ledger) RecordDuplicated() error {
	if l.sealed.Load() {
		return ErrSealed
	}
	l.duplicated.Add(1)
	return nil
}

// RecordRejected counts one rejected record under reason.
func (l *Ledger) RecordRejected(reason string) error {
	if l.sealed.Load() {
		return ErrSealed
	}
	l.rejected.Add(1)
	l.mu.Lock()
	l.reasons[reason]++
	l.mu.Unlock()
	return nil
}

// RecordError counts one record that failed for reasons other than rejection.
func (l *Ledger) RecordError(err error) error {
	if l.sealed.Load() {
		return ErrSealed
	}
	l.errored.Add(1)
	if err != nil {
		l.mu.Lock()
		l.lastError = err.Error()
		l.mu.Unlock()
	}
	return nil
}

// RecordSource stores the per-source summary, replacing any earlier entry.
func (l *Ledger) RecordSource(result ingest.SourceResult) error {
	if l.sealed.Load() {
		return ErrSealed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := slices.IndexFunc(l.sources, func(r ingest.SourceResult) bool { return r.SourceID == result.SourceID })
	if idx >= 0 {
		l.sources[idx] = result
	} else {
		l.sources = append(l.sources, result)
	}
	return nil
}

// Counts returns a snapshot of the current counters.
func (l *Ledger) Counts() ingest.Counts {
	return ingest.Counts{
		Found:      l.found.Load(),
		Inserted:   l.inserted.Load(),
		Duplicated: l.duplicated.Load(),
		Rejected:   l.rejected.Load(),
		Errored:    l.errored.Load(),
	}
}

// Snapshot returns the run as it currently stands.
func (l *Ledger) Snapshot() ingest.OperationRun {
	if l.sealed.Load() {
		l.mu.Lock()
		defer l.mu.Unlock()
		return cloneRun(l.final)
	}
	run := l.base
	run.Counts = l.Counts()
	run.Duration = l.now().Sub(run.StartedAt)
	l.mu.Lock()
	run.RejectReasons = maps.Clone(l.reasons)
	run.Sources = l.orderedSources()
	run.Error = l.lastError
	l.mu.Unlock()
	return run
}

// Complete seals the run as completed. If the counts do not balance the run
// is sealed as failed instead and ErrCountMismatch is returned.
func (l *Ledger) Complete(ctx context.Context) (ingest.OperationRun, error) {
	return l.seal(ctx, ingest.RunCompleted, nil)
}

// Fail seals the run as failed with cause.
func (l *Ledger) Fail(ctx context.Context, cause error) (ingest.OperationRun, error) {
	if cause == nil {
		cause = errors.New("run failed")
	}
	return l.seal(ctx, ingest.RunFailed, cause)
}

func (l *Ledger) seal(ctx context.Context, status ingest.RunStatus, cause error) (ingest.OperationRun, error) {
	if !l.sealed.CompareAndSwap(false, true) {
		return l.Snapshot(), ErrSealed
	}

	finished := l.now()
	run := l.base
	run.Counts = l.Counts()
	run.Status = status
	run.FinishedAt = &finished
	run.Duration = finished.Sub(run.StartedAt)

	l.mu.Lock()
	run.RejectReasons = maps.Clone(l.reasons)
	run.Sources = l.orderedSources()
	l.mu.Unlock()

	var sealErr error
	if !run.Counts.Balanced() {
		sealErr = fmt.Errorf("%w: found=%d settled=%d", ErrCountMismatch, run.Counts.Found, run.Counts.Settled())
		run.Status = ingest.RunFailed
		cause = errors.Join(cause, sealErr)
	}
	if cause != nil {
		run.Error = cause.Error()
	}

	l.mu.Lock()
	l.final = run
	l.mu.Unlock()

	if err := l.store.SealRun(ctx, run); err != nil {
		sealErr = errors.Join(sealErr, fmt.Errorf("persist sealed run %s: %w", run.ID, err))
	}

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int64("found", run.Counts.Found),
		zap.Int64("inserted", run.Counts.Inserted),
		zap.Int64("duplicated", run.Counts.Duplicated),
		zap.Int64("rejected", run.Counts.Rejected),
		zap.Int64("errored", run.Counts.Errored),
		zap.Duration("duration", run.Duration),
	}
	if run.Status == ingest.RunFailed {
		l.logger.Error("run sealed", append(fields, zap.String("error", run.Error))...)
	} else {
		l.logger.Info("run sealed", fields...)
	}
	return cloneRun(run), sealErr
}

// orderedSources returns the source results in configured order. Sources
// missing from the config sort last by id. Callers hold l.mu.
func (l *Ledger) orderedSources() []ingest.SourceResult {
	out := slices.Clone(l.sources)
	rank := func(id ingest.SourceID) int {
		if i := slices.Index(l.base.Config.Sources, id); i >= 0 {
			return i
		}
		return len(l.base.Config.Sources)
	}
	slices.SortStableFunc(out, func(a, b ingest.SourceResult) int {
		if c := cmp.Compare(rank(a.SourceID), rank(b.SourceID)); c != 0 {
			return c
		}
		return cmp.Compare(a.SourceID, b.SourceID)
	})
	return out
}

func cloneRun(run ingest.OperationRun) ingest.OperationRun {
	run.RejectReasons = maps.Clone(run.RejectReasons)
	run.Sources = slices.Clone(run.Sources)
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		run.FinishedAt = &t
	}
	return run
}
