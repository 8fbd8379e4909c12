package progress

import "context"

// Sink receives flushed batches from the Hub's single delivery goroutine, so
// Consume is never called concurrently for one Hub. Each call runs under the
// Hub's SinkTimeout.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter is what run code depends on to report progress.
type Emitter interface {
	Emit(evt Event)
}

// Discard is an Emitter that drops everything. Orchestrator tests and dry
// runs without a hub use it.
type Discard struct{}

// Emit drops evt.
func (Discard) Emit(Event) {}
