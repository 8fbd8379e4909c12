package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// EventStore writes normalized events into the shared events table. The
// unique constraint on external_url is the cross-run duplicate backstop.
type EventStore struct {
	pool        Pool
	table       string
	organizerID *string
}

// NewEventStoreWithPool builds an EventStore on an existing pool. organizerID
// is stored as organizer_id on every row; empty leaves it NULL.
func NewEventStoreWithPool(pool Pool, table, organizerID string) (*EventStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	s := &EventStore{pool: pool, table: table}
	if organizerID != "" {
		s.organizerID = &organizerID
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *EventStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies connectivity.
func (s *EventStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// ExistsBySourceURL reports whether an event with this external_url exists.
func (s *EventStore) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE external_url = $1)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, sourceURL).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup external_url: %w", err)
	}
	return exists, nil
}

// RecentTitles returns titles stored since the given time, newest first.
func (s *EventStore) RecentTitles(ctx context.Context, since time.Time, limit int) ([]string, error) {
	query := fmt.Sprintf(`
SELECT titulo
FROM %s
WHERE created_at >= $1
ORDER BY created_at DESC
LIMIT $2`, s.table)
	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate titles: %w", err)
	}
	return titles, nil
}

// InsertEvent inserts event and returns the new row id. An existing
// external_url yields ingest.ErrDuplicate; integrity violations yield an
// *ingest.ConstraintError.
func (s *EventStore) InsertEvent(ctx context.Context, event ingest.NormalizedEvent) (string, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (
	titulo,
	descricao,
	data,
	hora,
	local,
	categoria,
	imagem_url,
	source,
	external_url,
	is_regional,
	quality_score,
	content_hash,
	organizer_id
) VALUES (
	$1,$2,$3,$4::text::time,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (external_url) DO NOTHING
RETURNING id::text`, s.table)

	args := []any{
		event.Title,
		nullable(event.Description),
		event.Date,
		event.Time,
		nullable(event.Location),
		string(event.Category),
		nullable(event.ImageURL),
		string(event.SourceID),
		event.SourceURL,
		event.IsRegional,
		event.QualityScore,
		nullable(event.ContentHash),
		s.organizerID,
	}
	var id string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ingest.ErrDuplicate
		}
		return "", classifyError("insert event", err)
	}
	return id, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
