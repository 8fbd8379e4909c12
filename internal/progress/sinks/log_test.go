package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/event-ingestor/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	batch := []progress.Event{
		{RunID: "r1", Stage: progress.StageRunStart},
		{RunID: "r1", Stage: progress.StagePhase, Phase: "fetching", Completed: 2, Total: 8},
		{RunID: "r1", Stage: progress.StageSourceDone, Source: "sympla", Found: 4, Attempts: 1, Dur: time.Second},
		{RunID: "r1", Stage: progress.StageSourceDone, Source: "eventbrite", Failed: true, Note: "timeout"},
		{RunID: "r1", Stage: progress.StageRunError, Note: "store unavailable"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	entries := logs.AllUntimed()
	require.Len(t, entries, len(batch))
	levels := make([]zapcore.Level, 0, len(entries))
	for _, e := range entries {
		levels = append(levels, e.Level)
	}
	require.Equal(t, []zapcore.Level{
		zapcore.InfoLevel,
		zapcore.DebugLevel,
		zapcore.InfoLevel,
		zapcore.WarnLevel,
		zapcore.WarnLevel,
	}, levels)

	phase := entries[1].ContextMap()
	require.Equal(t, "fetching", phase["phase"])
	require.Equal(t, int64(8), phase["total"])

	done := entries[2].ContextMap()
	require.Equal(t, "sympla", done["source"])
	require.Equal(t, int64(4), done["found"])
	require.Equal(t, time.Second, done["dur"])
	require.NotContains(t, entries[0].ContextMap(), "source")
}

func TestLogSinkSkipsDisabledLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "r1", Stage: progress.StagePhase, Phase: "fetching"},
	}))
	require.Zero(t, logs.Len())
	require.NoError(t, NewLogSink(nil).Close(context.Background()))
}
