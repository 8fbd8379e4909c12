package headless

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// ErrRenderingDisabled is wrapped by Noop.Fetch.
var ErrRenderingDisabled = errors.New("headless rendering disabled")

// Noop stands in for the browser fetcher when rendering is disabled. Sources
// that require rendering fail fatally instead of scraping an empty shell.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with an ingest.ErrFatal error.
func (Noop) Fetch(_ context.Context, req ingest.FetchRequest) (ingest.FetchResponse, error) {
	return ingest.FetchResponse{}, ingest.Fatal(fmt.Errorf("render %s: %w", req.URL, ErrRenderingDisabled))
}
