// Package fixture replays raw candidates from YAML or JSON files. It backs dry
// runs, demos and end-to-end tests without touching the network.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// File is the on-disk fixture layout. JSON files parse too since JSON is a
// subset of YAML.
type File struct {
	Source      ingest.SourceID       `yaml:"source"`
	Reliability float64               `yaml:"reliability"`
	Events      []ingest.RawCandidate `yaml:"events"`
}

// Adapter yields a fixed list of candidates.
type Adapter struct {
	id          ingest.SourceID
	reliability float64
	candidates  []ingest.RawCandidate
	now         func() time.Time
}

// New builds an Adapter over candidates. Candidates missing a source id or
// scrape time are stamped on the way out.
func New(id ingest.SourceID, reliability float64, candidates []ingest.RawCandidate) *Adapter {
	return &Adapter{
		id:          id,
		reliability: reliability,
		candidates:  append([]ingest.RawCandidate(nil), candidates...),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Load reads a fixture file. An id passed here overrides the file's source.
func Load(path string, id ingest.SourceID) (*Adapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return Parse(data, id)
}

// Parse decodes fixture bytes.
func Parse(data []byte, id ingest.SourceID) (*Adapter, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if id == "" {
		id = file.Source
	}
	if id == "" {
		return nil, errors.New("decode fixture: source id is required")
	}
	return New(id, file.Reliability, file.Events), nil
}

// WithClock overrides the scrape timestamp source.
func (a *Adapter) WithClock(clock ingest.Clock) *Adapter {
	if clock != nil {
		a.now = clock.Now
	}
	return a
}

// ID implements ingest.Adapter.
func (a *Adapter) ID() ingest.SourceID {
	return a.id
}

// Reliability implements ingest.Reliable.
func (a *Adapter) Reliability() float64 {
	return a.reliability
}

// Len reports how many candidates the fixture holds.
func (a *Adapter) Len() int {
	return len(a.candidates)
}

// ScrapeEvents implements ingest.Adapter.
func (a *Adapter) ScrapeEvents(ctx context.Context, _ ingest.Region, filters ingest.Filters) iter.Seq2[ingest.RawCandidate, error] {
	return func(yield func(ingest.RawCandidate, error) bool) {
		for i, c := range a.candidates {
			if filters.MaxEvents > 0 && i >= filters.MaxEvents {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(ingest.RawCandidate{}, err)
				return
			}
			if c.SourceID == "" {
				c.SourceID = a.id
			}
			if c.ScrapedAt.IsZero() {
				c.ScrapedAt = a.now()
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}
