package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

func newRunStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestCreateRun(t *testing.T) {
	t.Parallel()

	store, mock := newRunStore(t)
	started := time.Date(2026, time.December, 5, 12, 0, 0, 0, time.UTC)
	run := ingest.OperationRun{ID: "run-1", Kind: "ingest", Scope: "sympla", Status: ingest.RunRunning, StartedAt: started}

	mock.ExpectExec("INSERT INTO operation_runs").
		WithArgs("run-1", "ingest", "sympla", "running", started, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSealRunTwiceFails(t *testing.T) {
	t.Parallel()

	store, mock := newRunStore(t)
	finished := time.Date(2026, time.December, 5, 12, 1, 0, 0, time.UTC)
	run := ingest.OperationRun{
		ID:         "run-1",
		Status:     ingest.RunCompleted,
		FinishedAt: &finished,
		Duration:   time.Minute,
		Counts:     ingest.Counts{Found: 3, Inserted: 1, Duplicated: 1, Rejected: 1},
	}

	mock.ExpectExec("UPDATE operation_runs").
		WithArgs("run-1", "completed", &finished, int64(60000), int64(3), int64(1), int64(1), int64(1), int64(0),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE operation_runs").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.SealRun(context.Background(), run))
	require.ErrorIs(t, store.SealRun(context.Background(), run), ingest.ErrRunSealed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func runRow(mock pgxmock.PgxPoolIface, id string, status ingest.RunStatus, started time.Time) *pgxmock.Rows {
	return mock.NewRows([]string{
		"id", "kind", "scope", "status", "started_at", "finished_at", "duration_ms",
		"found", "inserted", "duplicated", "rejected", "errored",
		"reject_reasons", "sources", "config", "error_message",
	}).AddRow(
		id, "ingest", "multi", string(status), started, (*time.Time)(nil), int64(1500),
		int64(4), int64(2), int64(1), int64(1), int64(0),
		[]byte(`{"missing_image":1}`),
		[]byte(`[{"source_id":"sympla","found":4,"attempts":1,"health_score":100,"degraded":false}]`),
		[]byte(`{"sources":["sympla","eventbrite"],"options":{"max_events":50,"date_range":"all","require_images":true},"region":"regional_and_national"}`),
		(*string)(nil),
	)
}

func TestGetRunDecodesJSONColumns(t *testing.T) {
	t.Parallel()

	store, mock := newRunStore(t)
	started := time.Date(2026, time.December, 5, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM operation_runs WHERE id").
		WithArgs("run-1").
		WillReturnRows(runRow(mock, "run-1", ingest.RunCompleted, started))

	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, ingest.MultiSource, run.Scope)
	require.Equal(t, ingest.RunCompleted, run.Status)
	require.Equal(t, 1500*time.Millisecond, run.Duration)
	require.True(t, run.Counts.Balanced())
	require.Equal(t, int64(1), run.RejectReasons[ingest.ReasonMissingImage])
	require.Len(t, run.Sources, 1)
	require.Equal(t, []ingest.SourceID{"sympla", "eventbrite"}, run.Config.Sources)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newRunStore(t)
	mock.ExpectQuery("FROM operation_runs WHERE id").
		WithArgs("missing").
		WillReturnRows(mock.NewRows([]string{"id"}))

	_, err := store.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, ingest.ErrNotFound)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	store, mock := newRunStore(t)
	started := time.Date(2026, time.December, 5, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("ORDER BY started_at DESC").
		WithArgs(10).
		WillReturnRows(runRow(mock, "run-2", ingest.RunFailed, started))

	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "run-2", runs[0].ID)
	require.Equal(t, ingest.RunFailed, runs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
