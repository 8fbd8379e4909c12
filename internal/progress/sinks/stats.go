package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/event-ingestor/internal/progress"
	"github.com/JakeFAU/event-ingestor/internal/store"
)

// StatsSink persists per-source outcomes so they outlive the in-memory
// tracker. Only SOURCE_DONE events are written.
type StatsSink struct {
	repo store.SourceStatsRepository
}

// NewStatsSink wraps repo.
func NewStatsSink(repo store.SourceStatsRepository) *StatsSink {
	return &StatsSink{repo: repo}
}

// Consume upserts one row per source event. Failures are joined so one bad
// row does not hide the rest of the batch.
func (s *StatsSink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		if evt.Stage != progress.StageSourceDone {
			continue
		}
		err := s.repo.UpsertSourceStats(ctx, store.SourceStats{
			RunID:      evt.RunID,
			Source:     evt.Source,
			LastUpdate: evt.TS,
			Found:      int64(evt.Found),
			Attempts:   int64(evt.Attempts),
			Failed:     evt.Failed,
			Duration:   evt.Dur,
			Note:       evt.Note,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("record %s/%s: %w", evt.RunID, evt.Source, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; the repository is owned elsewhere.
func (s *StatsSink) Close(context.Context) error {
	return nil
}
