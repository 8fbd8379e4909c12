package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/event-ingestor/internal/store"
)

func newSourceStatsStore(t *testing.T) (*SourceStatsStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewSourceStatsStoreWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func TestUpsertSourceStats(t *testing.T) {
	t.Parallel()

	s, mock := newSourceStatsStore(t)
	at := time.Date(2026, time.December, 5, 12, 0, 0, 0, time.UTC)
	stats := store.SourceStats{
		RunID:      "run-1",
		Source:     "sympla",
		LastUpdate: at,
		Found:      12,
		Attempts:   2,
		Duration:   1500 * time.Millisecond,
	}

	mock.ExpectExec("INSERT INTO run_source_stats").
		WithArgs("run-1", "sympla", at, int64(12), int64(2), false, int64(1500), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertSourceStats(context.Background(), stats))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSourceStatsError(t *testing.T) {
	t.Parallel()

	s, mock := newSourceStatsStore(t)
	mock.ExpectExec("INSERT INTO run_source_stats").WillReturnError(errors.New("connection reset"))

	err := s.UpsertSourceStats(context.Background(), store.SourceStats{RunID: "run-1", Source: "sympla"})
	require.ErrorContains(t, err, "upsert source stats")
}

func TestListRunSources(t *testing.T) {
	t.Parallel()

	s, mock := newSourceStatsStore(t)
	at := time.Date(2026, time.December, 5, 12, 0, 0, 0, time.UTC)
	rows := mock.NewRows([]string{"run_id", "source", "last_update", "found", "attempts", "failed", "duration_ms", "note"}).
		AddRow("run-1", "eventbrite", at, int64(0), int64(3), true, int64(200), "abandoned").
		AddRow("run-1", "sympla", at, int64(12), int64(1), false, int64(1500), "")
	mock.ExpectQuery("FROM run_source_stats").
		WithArgs("run-1", 50, 0).
		WillReturnRows(rows)

	stats, err := s.ListRunSources(context.Background(), "run-1", 50, 0)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.True(t, stats[0].Failed)
	require.Equal(t, "abandoned", stats[0].Note)
	require.Equal(t, 1500*time.Millisecond, stats[1].Duration)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSourceStatsStoreRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewSourceStatsStoreWithPool(nil)
	require.Error(t, err)
}
