package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

func sampleEvent() ingest.NormalizedEvent {
	return ingest.NormalizedEvent{
		Title:        "RESENHA DO ASSIS",
		Description:  "Samba e pagode a noite toda",
		Date:         time.Date(2026, time.December, 20, 0, 0, 0, 0, time.UTC),
		Time:         "21:00:00",
		Location:     "Seu Geraldo Boteco, Porto Velho",
		Category:     ingest.CategoryParty,
		IsRegional:   true,
		QualityScore: 0.55,
		ImageURL:     "https://cdn.example.com/resenha.jpg",
		SourceID:     "sympla",
		SourceURL:    "https://www.sympla.com.br/evento/resenha/1",
		ContentHash:  "abc123",
	}
}

func newEventStore(t *testing.T) (*EventStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewEventStoreWithPool(mock, "events", "")
	require.NoError(t, err)
	return store, mock
}

func TestInsertEventReturnsID(t *testing.T) {
	t.Parallel()

	store, mock := newEventStore(t)
	ev := sampleEvent()

	mock.ExpectQuery("INSERT INTO events").
		WithArgs(
			ev.Title,
			pgxmock.AnyArg(),
			ev.Date,
			ev.Time,
			pgxmock.AnyArg(),
			string(ev.Category),
			pgxmock.AnyArg(),
			string(ev.SourceID),
			ev.SourceURL,
			ev.IsRegional,
			ev.QualityScore,
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("0b6c7a54-5a2e-4c43-9d4c-1f0c2f7f6d11"))

	id, err := store.InsertEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, "0b6c7a54-5a2e-4c43-9d4c-1f0c2f7f6d11", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventConflictIsDuplicate(t *testing.T) {
	t.Parallel()

	store, mock := newEventStore(t)
	mock.ExpectQuery("ON CONFLICT \\(external_url\\) DO NOTHING").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := store.InsertEvent(context.Background(), sampleEvent())
	require.ErrorIs(t, err, ingest.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventClassifiesPostgresErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		duplicate  bool
		constraint string
	}{
		{name: "unique race", err: &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "events_external_url_key"}, duplicate: true},
		{name: "foreign key", err: &pgconn.PgError{Code: codeForeignKeyViolation, ConstraintName: "events_organizer_id_fkey"}, constraint: "events_organizer_id_fkey"},
		{name: "check", err: &pgconn.PgError{Code: codeCheckViolation, ConstraintName: "events_titulo_check"}, constraint: "events_titulo_check"},
		{name: "connection", err: errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, mock := newEventStore(t)
			mock.ExpectQuery("INSERT INTO events").WillReturnError(tt.err)

			_, err := store.InsertEvent(context.Background(), sampleEvent())
			require.Error(t, err)
			require.Equal(t, tt.duplicate, errors.Is(err, ingest.ErrDuplicate))

			var cErr *ingest.ConstraintError
			if tt.constraint != "" {
				require.ErrorAs(t, err, &cErr)
				require.Equal(t, tt.constraint, cErr.Constraint)
			} else {
				require.False(t, errors.As(err, &cErr))
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExistsBySourceURL(t *testing.T) {
	t.Parallel()

	store, mock := newEventStore(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("https://example.com/e/1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.ExistsBySourceURL(context.Background(), "https://example.com/e/1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentTitles(t *testing.T) {
	t.Parallel()

	store, mock := newEventStore(t)
	since := time.Date(2026, time.November, 5, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT titulo").
		WithArgs(since, 500).
		WillReturnRows(pgxmock.NewRows([]string{"titulo"}).AddRow("Festival de Inverno").AddRow("Noite do Samba"))

	titles, err := store.RecentTitles(context.Background(), since, 500)
	require.NoError(t, err)
	require.Equal(t, []string{"Festival de Inverno", "Noite do Samba"}, titles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewEventStoreWithPool(mock, "", "")
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("refused"))
	require.ErrorContains(t, store.Ping(context.Background()), "refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewEventStoreRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewEventStoreWithPool(mock, "events; drop table x", "")
	require.Error(t, err)
	_, err = NewEventStoreWithPool(nil, "", "")
	require.Error(t, err)
}
