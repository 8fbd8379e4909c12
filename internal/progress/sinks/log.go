package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/event-ingestor/internal/progress"
)

// LogSink writes progress events to the structured log. Phase ticks go to
// debug, failed sources and run errors to warn, everything else to info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a LogSink writing to logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs every event in batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if ce := s.logger.Check(levelFor(evt), "progress"); ce != nil {
			ce.Write(fieldsFor(evt)...)
		}
	}
	return nil
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func levelFor(evt progress.Event) zapcore.Level {
	switch {
	case evt.Stage == progress.StagePhase:
		return zapcore.DebugLevel
	case evt.Stage == progress.StageRunError, evt.Failed:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

func fieldsFor(evt progress.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("run_id", evt.RunID),
		zap.String("stage", string(evt.Stage)),
	}
	switch evt.Stage {
	case progress.StagePhase:
		fields = append(fields,
			zap.String("phase", evt.Phase),
			zap.Int("completed", evt.Completed),
			zap.Int("total", evt.Total),
		)
	case progress.StageSourceDone:
		fields = append(fields,
			zap.String("source", evt.Source),
			zap.Int("found", evt.Found),
			zap.Int("attempts", evt.Attempts),
			zap.Bool("failed", evt.Failed),
		)
	}
	if evt.Dur > 0 {
		fields = append(fields, zap.Duration("dur", evt.Dur))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	return fields
}
