package oplog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/storage/memory"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newLedger(t *testing.T) (*Ledger, *memory.RunStore) {
	t.Helper()
	store := memory.NewRunStore()
	clock := &stepClock{now: time.Date(2026, time.December, 5, 12, 0, 0, 0, time.UTC)}
	ledger, err := NewLogger(store, clock, nil).Start(context.Background(), "run-1", "ingest", "sympla", ingest.RunConfig{})
	require.NoError(t, err)
	return ledger, store
}

func TestLedgerCompleteBalanced(t *testing.T) {
	t.Parallel()

	ledger, store := newLedger(t)
	require.NoError(t, ledger.RecordFound(4))
	require.NoError(t, ledger.RecordInserted())
	require.NoError(t, ledger.RecordDuplicated())
	require.NoError(t, ledger.RecordRejected(ingest.ReasonMissingImage))
	require.NoError(t, ledger.RecordError(errors.New("timeout")))
	require.NoError(t, ledger.RecordSource(ingest.SourceResult{SourceID: "sympla", Found: 4, Attempts: 1}))

	run, err := ledger.Complete(context.Background())
	require.NoError(t, err)
	require.Equal(t, ingest.RunCompleted, run.Status)
	require.True(t, run.Counts.Balanced())
	require.Equal(t, int64(1), run.RejectReasons[ingest.ReasonMissingImage])
	require.NotNil(t, run.FinishedAt)
	require.Positive(t, run.Duration)

	stored, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, run.Counts, stored.Counts)
	require.Equal(t, ingest.RunCompleted, stored.Status)
}

func TestLedgerMismatchSealsFailed(t *testing.T) {
	t.Parallel()

	ledger, store := newLedger(t)
	require.NoError(t, ledger.RecordFound(3))
	require.NoError(t, ledger.RecordInserted())

	run, err := ledger.Complete(context.Background())
	require.ErrorIs(t, err, ErrCountMismatch)
	require.Equal(t, ingest.RunFailed, run.Status)
	require.Contains(t, run.Error, "do not balance")
	// Counts are surfaced as recorded, never reconciled.
	require.Equal(t, int64(3), run.Counts.Found)
	require.Equal(t, int64(1), run.Counts.Inserted)

	stored, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, ingest.RunFailed, stored.Status)
}

func TestLedgerRejectsMutationAfterSeal(t *testing.T) {
	t.Parallel()

	ledger, _ := newLedger(t)
	run, err := ledger.Fail(context.Background(), errors.New("store unreachable"))
	require.NoError(t, err)
	require.Equal(t, ingest.RunFailed, run.Status)
	require.Equal(t, "store unreachable", run.Error)

	require.ErrorIs(t, ledger.RecordFound(1), ErrSealed)
	require.ErrorIs(t, ledger.RecordInserted(), ErrSealed)
	require.ErrorIs(t, ledger.RecordDuplicated(), ErrSealed)
	require.ErrorIs(t, ledger.RecordRejected("x"), ErrSealed)
	require.ErrorIs(t, ledger.RecordError(nil), ErrSealed)
	require.ErrorIs(t, ledger.RecordSource(ingest.SourceResult{}), ErrSealed)

	again, err := ledger.Complete(context.Background())
	require.ErrorIs(t, err, ErrSealed)
	require.Equal(t, ingest.RunFailed, again.Status)
	require.Equal(t, run.Counts, ledger.Snapshot().Counts)
}

func TestLedgerConcurrentCounters(t *testing.T) {
	t.Parallel()

	ledger, _ := newLedger(t)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = ledger.RecordFound(1)
				_ = ledger.RecordRejected(ingest.ReasonBareTitle)
			}
		}()
	}
	wg.Wait()

	run, err := ledger.Complete(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(800), run.Counts.Found)
	require.Equal(t, int64(800), run.RejectReasons[ingest.ReasonBareTitle])
}

func TestStartPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	store := memory.NewRunStore()
	logger := NewLogger(store, nil, nil)
	_, err := logger.Start(context.Background(), "dup", "ingest", ingest.MultiSource, ingest.RunConfig{})
	require.NoError(t, err)
	_, err = logger.Start(context.Background(), "dup", "ingest", ingest.MultiSource, ingest.RunConfig{})
	require.ErrorIs(t, err, ingest.ErrDuplicate)

	_, err = logger.Start(context.Background(), "", "ingest", ingest.MultiSource, ingest.RunConfig{})
	require.Error(t, err)
}

func TestRecordSourceReplaces(t *testing.T) {
	t.Parallel()

	ledger, _ := newLedger(t)
	require.NoError(t, ledger.RecordSource(ingest.SourceResult{SourceID: "sympla", Attempts: 1}))
	require.NoError(t, ledger.RecordSource(ingest.SourceResult{SourceID: "sympla", Attempts: 2}))
	snap := ledger.Snapshot()
	require.Len(t, snap.Sources, 1)
	require.Equal(t, 2, snap.Sources[0].Attempts)
	require.Equal(t, ingest.RunRunning, snap.Status)
}

func TestSealedSourcesFollowConfiguredOrder(t *testing.T) {
	t.Parallel()

	cfg := ingest.RunConfig{Sources: []ingest.SourceID{"stuck", "sympla", "eventbrite"}}
	ledger, err := NewLogger(memory.NewRunStore(), nil, nil).Start(context.Background(), "run-1", "ingest", ingest.MultiSource, cfg)
	require.NoError(t, err)

	// Completion order differs from configured order.
	for _, id := range []ingest.SourceID{"extra", "eventbrite", "sympla", "stuck"} {
		require.NoError(t, ledger.RecordSource(ingest.SourceResult{SourceID: id}))
	}
	want := []ingest.SourceID{"stuck", "sympla", "eventbrite", "extra"}

	ids := func(results []ingest.SourceResult) []ingest.SourceID {
		out := make([]ingest.SourceID, 0, len(results))
		for _, r := range results {
			out = append(out, r.SourceID)
		}
		return out
	}
	require.Equal(t, want, ids(ledger.Snapshot().Sources))

	run, err := ledger.Complete(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, ids(run.Sources))
}
