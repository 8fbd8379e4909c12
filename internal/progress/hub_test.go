package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(StagePhase)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StagePhase))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWithoutConsumers asserts Emit never blocks callers, even without sinks.
func TestHubEmitNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StagePhase))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestHubFlushOnClose ensures Close drains any buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	evt := sampleEvent(StagePhase)
	hub.Emit(evt)

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
}

// TestHubFlushesTerminalEventsImmediately checks a finished run reaches sinks
// without waiting for the batch timer.
func TestHubFlushesTerminalEventsImmediately(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StagePhase))
	hub.Emit(Event{RunID: "run-1", TS: time.Now(), Stage: StageRunDone})
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2 && batches[0][1].Stage == StageRunDone
	}, time.Second, 5*time.Millisecond)
}

// TestHubTerminalEventWaitsForRoom checks RUN_DONE is not dropped while the
// buffer is momentarily full.
func TestHubTerminalEventWaitsForRoom(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{TerminalWait: time.Second},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	got := make(chan Event, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		got <- <-hub.events
	}()

	hub.Emit(Event{RunID: "run-1", TS: time.Now(), Stage: StageRunDone})
	select {
	case evt := <-got:
		require.Equal(t, StageRunDone, evt.Stage)
	case <-time.After(time.Second):
		t.Fatal("terminal event was dropped")
	}
	require.Zero(t, hub.dropped.Load())
}

// TestHubTerminalEventGivesUp bounds how long a run can be held by a stuck hub.
func TestHubTerminalEventGivesUp(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{TerminalWait: 10 * time.Millisecond},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(Event{RunID: "run-1", TS: time.Now(), Stage: StageRunError})
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

// TestHubEmitAfterClose drops late events silently.
func TestHubEmitAfterClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchWait: time.Millisecond}, sink, nil)
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	hub.Emit(sampleEvent(StagePhase))
	require.Empty(t, sink.Batches())
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyBatch := append([]Event(nil), batch...)
	s.batches = append(s.batches, copyBatch)
	return nil
}

func (s *stubSink) Close(context.Context) error {
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	return Event{
		RunID:     "run-1",
		TS:        time.Now(),
		Stage:     stage,
		Phase:     "scraping",
		Source:    "sympla",
		Completed: 1,
		Total:     2,
	}
}

// TestEventValidate covers the per-stage requirements.
func TestEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{name: "phase", evt: sampleEvent(StagePhase)},
		{name: "missing run", evt: Event{TS: time.Now(), Stage: StageRunStart}, wantErr: true},
		{name: "missing ts", evt: Event{RunID: "r", Stage: StageRunStart}, wantErr: true},
		{name: "phase without name", evt: Event{RunID: "r", TS: time.Now(), Stage: StagePhase}, wantErr: true},
		{name: "source without id", evt: Event{RunID: "r", TS: time.Now(), Stage: StageSourceDone}, wantErr: true},
		{name: "unknown stage", evt: Event{RunID: "r", TS: time.Now(), Stage: "NOPE"}, wantErr: true},
		{name: "overshoot", evt: Event{RunID: "r", TS: time.Now(), Stage: StagePhase, Phase: "p", Completed: 3, Total: 2}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.evt.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
