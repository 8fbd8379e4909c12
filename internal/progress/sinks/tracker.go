package sinks

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/event-ingestor/internal/progress"
)

// DefaultTrackerCapacity bounds how many runs the tracker remembers.
const DefaultTrackerCapacity = 64

// SourceProgress is the last reported state of one source within a run.
type SourceProgress struct {
	Source   string        `json:"source"`
	Found    int           `json:"found"`
	Attempts int           `json:"attempts"`
	Failed   bool          `json:"failed"`
	Duration time.Duration `json:"duration"`
	Note     string        `json:"note,omitempty"`
}

// RunProgress is the live view of a run assembled from progress events.
type RunProgress struct {
	RunID     string           `json:"run_id"`
	Phase     string           `json:"phase"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
	Sources   []SourceProgress `json:"sources,omitempty"`
	Done      bool             `json:"done"`
	Failed    bool             `json:"failed"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Tracker keeps the latest progress of recent runs in memory so the HTTP API
// can report on a run while it is executing.
type Tracker struct {
	mu       sync.RWMutex
	capacity int
	runs     map[string]*RunProgress
	order    []string
}

// NewTracker constructs a Tracker remembering up to capacity runs.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultTrackerCapacity
	}
	return &Tracker{capacity: capacity, runs: make(map[string]*RunProgress)}
}

// Consume folds the batch into the per-run views.
func (t *Tracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		run := t.runLocked(evt.RunID)
		if evt.TS.After(run.UpdatedAt) {
			run.UpdatedAt = evt.TS
		}
		switch evt.Stage {
		case progress.StagePhase:
			run.Phase = evt.Phase
			run.Completed = evt.Completed
			run.Total = evt.Total
		case progress.StageSourceDone:
			sp := SourceProgress{
				Source:   evt.Source,
				Found:    evt.Found,
				Attempts: evt.Attempts,
				Failed:   evt.Failed,
				Duration: evt.Dur,
				Note:     evt.Note,
			}
			idx := slices.IndexFunc(run.Sources, func(s SourceProgress) bool { return s.Source == evt.Source })
			if idx >= 0 {
				run.Sources[idx] = sp
			} else {
				run.Sources = append(run.Sources, sp)
			}
		case progress.StageRunDone:
			run.Done = true
		case progress.StageRunError:
			run.Done = true
			run.Failed = true
		}
	}
	return nil
}

func (t *Tracker) runLocked(id string) *RunProgress {
	if run, ok := t.runs[id]; ok {
		return run
	}
	if len(t.order) >= t.capacity {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.runs, oldest)
	}
	run := &RunProgress{RunID: id}
	t.runs[id] = run
	t.order = append(t.order, id)
	return run
}

// Get returns a copy of the run's progress.
func (t *Tracker) Get(runID string) (RunProgress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[runID]
	if !ok {
		return RunProgress{}, false
	}
	out := *run
	out.Sources = slices.Clone(run.Sources)
	return out, true
}

// Close implements the Sink interface; it performs no action.
func (t *Tracker) Close(context.Context) error {
	return nil
}
