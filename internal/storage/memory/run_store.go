package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// RunStore keeps operation runs in memory.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]ingest.OperationRun
	order []string
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]ingest.OperationRun)}
}

// CreateRun stores a new running run.
func (s *RunStore) CreateRun(_ context.Context, run ingest.OperationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("create run %s: %w", run.ID, ingest.ErrDuplicate)
	}
	s.runs[run.ID] = cloneRun(run)
	s.order = append(s.order, run.ID)
	return nil
}

// SealRun replaces a running run with its terminal state.
func (s *RunStore) SealRun(_ context.Context, run ingest.OperationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("seal run %s: %w", run.ID, ingest.ErrNotFound)
	}
	if existing.Sealed() {
		return fmt.Errorf("seal run %s: %w", run.ID, ingest.ErrRunSealed)
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun returns a copy of the run.
func (s *RunStore) GetRun(_ context.Context, id string) (ingest.OperationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return ingest.OperationRun{}, ingest.ErrNotFound
	}
	return cloneRun(run), nil
}

// ListRuns returns up to limit runs, newest first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]ingest.OperationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ingest.OperationRun
	for i := len(s.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, cloneRun(s.runs[s.order[i]]))
	}
	return out, nil
}

func cloneRun(run ingest.OperationRun) ingest.OperationRun {
	run.RejectReasons = maps.Clone(run.RejectReasons)
	run.Sources = slices.Clone(run.Sources)
	run.Config.Sources = slices.Clone(run.Config.Sources)
	run.Config.Options.Categories = slices.Clone(run.Config.Options.Categories)
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		run.FinishedAt = &t
	}
	return run
}
