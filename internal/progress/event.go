package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StagePhase      Stage = "PHASE"
	StageSourceDone Stage = "SOURCE_DONE"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageRunDone || s == StageRunError
}

// Event captures a single milestone of an ingestion run.
type Event struct {
	// RunID identifies the operation run.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Phase is the orchestrator state entered, for StagePhase events.
	Phase string
	// Completed and Total report how far the run has progressed through the
	// phase's units of work (sources or records).
	Completed int
	Total     int
	// Source scopes source events to an adapter id.
	Source string
	// Found is the number of candidates a source yielded.
	Found int
	// Attempts is the number of adapter calls made for a source.
	Attempts int
	// Failed marks a source that ended in error.
	Failed bool
	// Dur captures latency for source calls and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StagePhase:
		if e.Phase == "" {
			return errors.New("phase event requires phase")
		}
	case StageSourceDone:
		if e.Source == "" {
			return errors.New("source done requires source")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Completed < 0 || e.Total < 0 || (e.Total > 0 && e.Completed > e.Total) {
		return fmt.Errorf("invalid progress %d/%d", e.Completed, e.Total)
	}
	return nil
}
