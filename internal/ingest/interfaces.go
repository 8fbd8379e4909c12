package ingest

import (
	"context"
	"io"
	"iter"
	"net/http"
	"time"
)

// Filters narrows what an adapter is asked to return.
type Filters struct {
	MaxEvents  int
	Categories []Category
	DateRange  DateRange
}

// Adapter yields raw candidates for one site. The sequence must be finite;
// zero results is not an error, only genuine failures are yielded as errors.
type Adapter interface {
	ID() SourceID
	ScrapeEvents(ctx context.Context, region Region, filters Filters) iter.Seq2[RawCandidate, error]
}

// Probeable is implemented by adapters whose structure can be health checked.
type Probeable interface {
	ProbeTarget() ProbeTarget
}

// Reliable is implemented by adapters that advertise a reliability weight in [0,1].
type Reliable interface {
	Reliability() float64
}

// EventStore persists accepted events. The unique constraint on the source
// URL is the authoritative cross-run duplicate check.
type EventStore interface {
	Ping(ctx context.Context) error
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)
	RecentTitles(ctx context.Context, since time.Time, limit int) ([]string, error)
	InsertEvent(ctx context.Context, event NormalizedEvent) (string, error)
}

// RunStore persists operation runs.
type RunStore interface {
	CreateRun(ctx context.Context, run OperationRun) error
	SealRun(ctx context.Context, run OperationRun) error
	GetRun(ctx context.Context, id string) (OperationRun, error)
	ListRuns(ctx context.Context, limit int) ([]OperationRun, error)
}

// BlobStore writes report artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run summaries to a topic (Pub/Sub, Kafka or memory).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header

	// WaitSelector is the CSS selector a rendering fetcher waits for before
	// capturing the DOM. Plain HTTP fetchers ignore it.
	WaitSelector string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool

	// RobotsIndeterminate is set when robots.txt could not be read and the
	// fetch proceeded as if everything was allowed.
	RobotsIndeterminate bool
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Hasher fingerprints a normalized event for its content_hash.
type Hasher interface {
	HashEvent(event NormalizedEvent) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
