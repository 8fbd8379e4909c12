package persist

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/storage/memory"
)

type failingStore struct {
	*memory.EventStore
	err error
}

func (s failingStore) InsertEvent(context.Context, ingest.NormalizedEvent) (string, error) {
	return "", s.err
}

func event(url string) ingest.NormalizedEvent {
	return ingest.NormalizedEvent{
		Title:        "Festival de Inverno",
		Date:         time.Date(2026, time.December, 20, 0, 0, 0, 0, time.UTC),
		Time:         "19:00:00",
		QualityScore: 0.4,
		SourceID:     "sympla",
		SourceURL:    url,
	}
}

func TestSaveCreatedThenDuplicate(t *testing.T) {
	t.Parallel()

	gw := NewGateway(memory.NewEventStore(), nil)
	ctx := context.Background()

	first := gw.Save(ctx, event("https://example.com/e/1"))
	require.Equal(t, ingest.SaveCreated, first.Status)
	require.NotEmpty(t, first.ID)
	require.NoError(t, first.Err)

	second := gw.Save(ctx, event("https://example.com/e/1"))
	require.Equal(t, ingest.SaveSkippedDup, second.Status)
	require.Empty(t, second.ID)
}

func TestSaveClassifiesStoreErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ingest.SaveStatus
	}{
		{
			name: "wrapped duplicate",
			err:  fmt.Errorf("insert event: %w", ingest.ErrDuplicate),
			want: ingest.SaveSkippedDup,
		},
		{
			name: "foreign key",
			err:  &ingest.ConstraintError{Constraint: "events_organizer_id_fkey", Code: "23503", Err: errors.New("fk")},
			want: ingest.SaveRejectedByStore,
		},
		{
			name: "connection lost",
			err:  errors.New("connection reset by peer"),
			want: ingest.SaveError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gw := NewGateway(failingStore{EventStore: memory.NewEventStore(), err: tt.err}, nil)
			out := gw.Save(context.Background(), event("https://example.com/e/2"))
			require.Equal(t, tt.want, out.Status)
			require.ErrorIs(t, out.Err, tt.err)
		})
	}
}

func TestSaveCheckConstraintIsRejected(t *testing.T) {
	t.Parallel()

	gw := NewGateway(memory.NewEventStore(), nil)
	ev := event("https://example.com/e/3")
	ev.QualityScore = 2

	out := gw.Save(context.Background(), ev)
	require.Equal(t, ingest.SaveRejectedByStore, out.Status)
}
