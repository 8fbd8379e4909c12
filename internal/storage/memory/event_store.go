// Package memory provides in-process stores for development, dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

const minStoredTitleLen = 10

// StoredEvent is an event row plus its insertion time.
type StoredEvent struct {
	ID        string
	Event     ingest.NormalizedEvent
	CreatedAt time.Time
}

// EventStore keeps events in memory and enforces the same uniqueness and
// check constraints as the Postgres schema.
type EventStore struct {
	mu     sync.RWMutex
	byURL  map[string]int
	events []StoredEvent
	now    func() time.Time

	// PingErr, when set, is returned by Ping.
	PingErr error
}

// NewEventStore constructs an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{
		byURL: make(map[string]int),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the insertion timestamp source.
func (s *EventStore) WithClock(now func() time.Time) *EventStore {
	s.now = now
	return s
}

// Ping reports PingErr.
func (s *EventStore) Ping(context.Context) error {
	return s.PingErr
}

// ExistsBySourceURL reports whether the URL was stored.
func (s *EventStore) ExistsBySourceURL(_ context.Context, sourceURL string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byURL[sourceURL]
	return ok, nil
}

// RecentTitles returns up to limit titles stored at or after since, newest first.
func (s *EventStore) RecentTitles(_ context.Context, since time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var titles []string
	for i := len(s.events) - 1; i >= 0 && (limit <= 0 || len(titles) < limit); i-- {
		if s.events[i].CreatedAt.Before(since) {
			continue
		}
		titles = append(titles, s.events[i].Event.Title)
	}
	return titles, nil
}

// InsertEvent stores event unless its source URL already exists.
func (s *EventStore) InsertEvent(_ context.Context, event ingest.NormalizedEvent) (string, error) {
	if len([]rune(event.Title)) < minStoredTitleLen {
		return "", &ingest.ConstraintError{
			Constraint: "events_titulo_check",
			Code:       "23514",
			Err:        fmt.Errorf("title %q shorter than %d", event.Title, minStoredTitleLen),
		}
	}
	if event.QualityScore < 0 || event.QualityScore > 1 {
		return "", &ingest.ConstraintError{
			Constraint: "events_quality_score_check",
			Code:       "23514",
			Err:        fmt.Errorf("quality score %v out of range", event.QualityScore),
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byURL[event.SourceURL]; ok {
		return "", ingest.ErrDuplicate
	}
	id := uuid.NewString()
	s.byURL[event.SourceURL] = len(s.events)
	s.events = append(s.events, StoredEvent{ID: id, Event: event, CreatedAt: s.now()})
	return id, nil
}

// Events returns a copy of every stored event in insertion order.
func (s *EventStore) Events() []StoredEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

// Len reports how many events are stored.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
