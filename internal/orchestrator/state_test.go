package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateAuthenticating, true},
		{StateAuthenticating, StateHealthChecking, true},
		{StateReporting, StateDone, true},
		{StateScraping, StateFailed, true},
		{StateIdle, StateFailed, true},
		{StateIdle, StateScraping, false},
		{StateProcessing, StateScraping, false},
		{StateDone, StateFailed, false},
		{StateFailed, StateIdle, false},
		{StatePersisting, StatePersisting, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPipelineOrder(t *testing.T) {
	t.Parallel()

	p := Pipeline()
	require.Equal(t, StateIdle, p[0])
	require.Equal(t, StateDone, p[len(p)-1])
	p[0] = StateFailed
	require.Equal(t, StateIdle, Pipeline()[0])
}
