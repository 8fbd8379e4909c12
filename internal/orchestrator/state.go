package orchestrator

import "slices"

// State is a step of the run state machine.
type State string

// Run states. Runs only move forward through pipeline; StateFailed is
// reachable from any of them.
const (
	StateIdle           State = "idle"
	StateAuthenticating State = "authenticating"
	StateHealthChecking State = "health_checking"
	StateConfiguring    State = "configuring"
	StateScraping       State = "scraping"
	StateProcessing     State = "processing"
	StatePersisting     State = "persisting"
	StateReporting      State = "reporting"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

var pipeline = []State{
	StateIdle,
	StateAuthenticating,
	StateHealthChecking,
	StateConfiguring,
	StateScraping,
	StateProcessing,
	StatePersisting,
	StateReporting,
	StateDone,
}

// Pipeline returns the forward states in order.
func Pipeline() []State {
	return slices.Clone(pipeline)
}

// step is the position of s in the pipeline, or -1 for failed and unknown states.
func (s State) step() int {
	return slices.Index(pipeline, s)
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	if from == StateDone || from == StateFailed {
		return false
	}
	if to == StateFailed {
		return true
	}
	return from.step() >= 0 && to.step() == from.step()+1
}
