package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/event-ingestor/internal/store"
)

// SourceStatsStore implements store.SourceStatsRepository using Postgres.
type SourceStatsStore struct {
	pool Pool
}

// NewSourceStatsStoreWithPool wraps an existing pool.
func NewSourceStatsStoreWithPool(pool Pool) (*SourceStatsStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SourceStatsStore{pool: pool}, nil
}

// UpsertSourceStats inserts the source outcome or replaces an older one.
func (s *SourceStatsStore) UpsertSourceStats(ctx context.Context, stats store.SourceStats) error {
	query := `
		INSERT INTO run_source_stats (run_id, source, last_update, found, attempts, failed, duration_ms, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		ON CONFLICT (run_id, source) DO UPDATE
		SET last_update = EXCLUDED.last_update,
			found = EXCLUDED.found,
			attempts = EXCLUDED.attempts,
			failed = EXCLUDED.failed,
			duration_ms = EXCLUDED.duration_ms,
			note = EXCLUDED.note
		WHERE run_source_stats.last_update <= EXCLUDED.last_update;
	`
	_, err := s.pool.Exec(ctx, query,
		stats.RunID,
		stats.Source,
		stats.LastUpdate,
		stats.Found,
		stats.Attempts,
		stats.Failed,
		stats.Duration.Milliseconds(),
		stats.Note,
	)
	if err != nil {
		return fmt.Errorf("upsert source stats: %w", err)
	}
	return nil
}

// ListRunSources returns the per-source outcomes of one run.
func (s *SourceStatsStore) ListRunSources(ctx context.Context, runID string, limit, offset int) ([]store.SourceStats, error) {
	query := `
		SELECT run_id, source, last_update, found, attempts, failed, duration_ms, COALESCE(note, '')
		FROM run_source_stats
		WHERE run_id = $1
		ORDER BY source
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list run sources: %w", err)
	}
	defer rows.Close()

	var stats []store.SourceStats
	for rows.Next() {
		var (
			stat       store.SourceStats
			durationMS int64
		)
		if err := rows.Scan(
			&stat.RunID,
			&stat.Source,
			&stat.LastUpdate,
			&stat.Found,
			&stat.Attempts,
			&stat.Failed,
			&durationMS,
			&stat.Note,
		); err != nil {
			return nil, fmt.Errorf("scan source stats row: %w", err)
		}
		stat.Duration = time.Duration(durationMS) * time.Millisecond
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source stats: %w", err)
	}
	return stats, nil
}
