// Package persist maps store results onto per-record save outcomes.
package persist

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// Gateway inserts normalized events and classifies the result. A failed save
// only ever affects the record being saved.
type Gateway struct {
	store  ingest.EventStore
	logger *zap.Logger
}

// NewGateway wires the gateway to an event store.
func NewGateway(store ingest.EventStore, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{store: store, logger: logger.Named("persist")}
}

// Save inserts event. Duplicates on the source URL are reported as skipped and
// integrity failures as rejected; anything else is an error outcome.
func (g *Gateway) Save(ctx context.Context, event ingest.NormalizedEvent) ingest.SaveOutcome {
	id, err := g.store.InsertEvent(ctx, event)
	if err == nil {
		return ingest.SaveOutcome{Status: ingest.SaveCreated, ID: id}
	}

	var constraintErr *ingest.ConstraintError
	switch {
	case errors.Is(err, ingest.ErrDuplicate):
		g.logger.Debug("event already stored", zap.String("url", event.SourceURL))
		return ingest.SaveOutcome{Status: ingest.SaveSkippedDup, Err: err}
	case errors.As(err, &constraintErr):
		g.logger.Warn("store rejected event",
			zap.String("url", event.SourceURL),
			zap.String("constraint", constraintErr.Constraint),
			zap.String("code", constraintErr.Code),
		)
		return ingest.SaveOutcome{Status: ingest.SaveRejectedByStore, Err: err}
	default:
		g.logger.Error("save event failed", zap.String("url", event.SourceURL), zap.Error(err))
		return ingest.SaveOutcome{Status: ingest.SaveError, Err: err}
	}
}
