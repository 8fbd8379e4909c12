package store

import (
	"context"
	"time"
)

// SourceStats captures how one source fared within a run.
type SourceStats struct {
	// RunID is the owning operation run.
	RunID string `json:"run_id"`
	// Source is the adapter id.
	Source string `json:"source"`
	// LastUpdate captures the timestamp of the most recent report.
	LastUpdate time.Time `json:"last_update"`
	// Found counts candidates the source yielded on its final attempt.
	Found int64 `json:"found"`
	// Attempts counts adapter calls, retries included.
	Attempts int64 `json:"attempts"`
	// Failed marks a source that ended in error or was abandoned.
	Failed bool `json:"failed"`
	// Duration is the wall time spent on the source.
	Duration time.Duration `json:"duration"`
	// Note optionally carries the failure reason.
	Note string `json:"note,omitempty"`
}

// SourceStatsRepository persists per-source outcomes of runs.
type SourceStatsRepository interface {
	// UpsertSourceStats records (or replaces) the outcome of one source.
	UpsertSourceStats(ctx context.Context, stats SourceStats) error
	// ListRunSources returns the sources of one run ordered by source id.
	ListRunSources(ctx context.Context, runID string, limit, offset int) ([]SourceStats, error)
}
