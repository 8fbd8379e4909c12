package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/JakeFAU/event-ingestor/internal/store"
)

// SourceStatsStore keeps per-source run outcomes in memory.
type SourceStatsStore struct {
	mu    sync.RWMutex
	byRun map[string]map[string]store.SourceStats
}

// NewSourceStatsStore constructs an empty SourceStatsStore.
func NewSourceStatsStore() *SourceStatsStore {
	return &SourceStatsStore{byRun: make(map[string]map[string]store.SourceStats)}
}

// UpsertSourceStats records stats unless a newer report already exists.
func (s *SourceStatsStore) UpsertSourceStats(_ context.Context, stats store.SourceStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sources, ok := s.byRun[stats.RunID]
	if !ok {
		sources = make(map[string]store.SourceStats)
		s.byRun[stats.RunID] = sources
	}
	if prev, ok := sources[stats.Source]; ok && prev.LastUpdate.After(stats.LastUpdate) {
		return nil
	}
	sources[stats.Source] = stats
	return nil
}

// ListRunSources returns the run's sources ordered by id.
func (s *SourceStatsStore) ListRunSources(_ context.Context, runID string, limit, offset int) ([]store.SourceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.SourceStats, 0, len(s.byRun[runID]))
	for _, stat := range s.byRun[runID] {
		out = append(out, stat)
	}
	slices.SortFunc(out, func(a, b store.SourceStats) int { return cmp.Compare(a.Source, b.Source) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[max(offset, 0):]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
