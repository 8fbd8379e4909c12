package normalize

import (
	"strings"
	"time"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// Config tunes the normalizer.
type Config struct {
	// DefaultCity is used when no city can be derived from the record.
	DefaultCity string
	// TitleRecoveryMinLen is the minimum length of a description line that
	// may stand in for a bare title.
	TitleRecoveryMinLen int
	// MinTitleLen is the minimum retained title length.
	MinTitleLen int
	// MaxTitleLen caps title length; longer titles are cut at a word boundary.
	MaxTitleLen int
	// Location is the timezone dates are resolved in.
	Location *time.Location
	// Rules overrides DefaultRules when non-empty.
	Rules []Rule
}

// Default normalizer limits.
const (
	DefaultTitleRecoveryMinLen = 15
	DefaultMinTitleLen         = 10
	DefaultMaxTitleLen         = 150
)

func (c Config) withDefaults() Config {
	if c.TitleRecoveryMinLen <= 0 {
		c.TitleRecoveryMinLen = DefaultTitleRecoveryMinLen
	}
	if c.MinTitleLen <= 0 {
		c.MinTitleLen = DefaultMinTitleLen
	}
	if c.MaxTitleLen <= 0 {
		c.MaxTitleLen = DefaultMaxTitleLen
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if len(c.Rules) == 0 {
		c.Rules = DefaultRules()
	}
	return c
}

// Fields is the normalized view of a raw candidate.
type Fields struct {
	Title       string
	Description string
	Date        time.Time
	DateParsed  bool
	Time        string
	Venue       string
	City        string
	Location    string
	// Recovered is set when the title came from the description.
	Recovered bool
	// Rules lists the truncation rules that fired, in order.
	Rules []string
}

// Normalizer converts raw candidates into normalized fields.
type Normalizer struct {
	cfg   Config
	dates *DateParser
}

// New builds a Normalizer. now may be nil to use the wall clock.
func New(cfg Config, now func() time.Time) *Normalizer {
	cfg = cfg.withDefaults()
	return &Normalizer{cfg: cfg, dates: NewDateParser(now, cfg.Location)}
}

// Dates exposes the parser so callers share the same notion of "today".
func (n *Normalizer) Dates() *DateParser {
	return n.dates
}

// Normalize extracts the canonical title, date, time and location. A record
// whose title cannot be made usable is refused with an *ingest.Rejection.
func (n *Normalizer) Normalize(c ingest.RawCandidate) (Fields, error) {
	description := strings.Join(Lines(c.Description), "\n")

	title, recovered, err := n.title(c.Title, description)
	if err != nil {
		return Fields{}, err
	}

	kept, venueHint, fired := Truncate(title, n.cfg.Rules)
	kept = TrimTrailing(truncateWords(kept, n.cfg.MaxTitleLen))
	if RuneLen(kept) < n.cfg.MinTitleLen {
		return Fields{}, ingest.Reject(ingest.ReasonTitleTooShort, kept)
	}
	if IsBare(kept) {
		return Fields{}, ingest.Reject(ingest.ReasonBareTitle, kept)
	}

	date, parsed := n.dates.ParseDate(c.RawDate)
	if !parsed && description != "" {
		if d, ok := n.dates.ParseDate(description); ok {
			date, parsed = d, true
		}
	}

	loc := BuildLocation(LocationInput{
		VenueHint:   venueHint,
		Title:       c.Title,
		Description: description,
		Region:      c.Region,
		RawLocation: c.RawLocation,
		DefaultCity: n.cfg.DefaultCity,
	})

	return Fields{
		Title:       kept,
		Description: description,
		Date:        date,
		DateParsed:  parsed,
		Time:        ParseTime(c.RawDate, description),
		Venue:       loc.Venue,
		City:        loc.City,
		Location:    loc.String(),
		Recovered:   recovered,
		Rules:       fired,
	}, nil
}

// title strips boilerplate and, for bare place or name titles, recovers a
// title from the first long enough description line that is not bare itself.
func (n *Normalizer) title(raw, description string) (string, bool, error) {
	title := StripBoilerplate(raw)
	if title != "" && !IsBare(title) {
		return title, false, nil
	}
	for _, line := range strings.Split(description, "\n") {
		line = StripBoilerplate(line)
		if RuneLen(line) < n.cfg.TitleRecoveryMinLen || IsBare(line) {
			continue
		}
		return line, true, nil
	}
	return "", false, ingest.Reject(ingest.ReasonTitleUnrecoverable, CleanText(raw))
}
