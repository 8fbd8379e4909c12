package ingest

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Options tunes what a run collects.
type Options struct {
	MaxEvents     int        `json:"max_events"`
	Categories    []Category `json:"categories,omitempty"`
	DateRange     DateRange  `json:"date_range"`
	RequireImages bool       `json:"require_images"`
}

// RunConfig is the configuration contract consumed by the orchestrator. Build
// it with NewRunConfig so it is validated exactly once.
type RunConfig struct {
	Sources []SourceID `json:"sources"`
	Options Options    `json:"options"`
	Region  Region     `json:"region"`
}

// SourceSet answers whether a source identifier is registered.
type SourceSet interface {
	Has(id SourceID) bool
}

// Default run options.
const (
	DefaultMaxEvents = 50
)

// RunConfigBuilder assembles a RunConfig.
type RunConfigBuilder struct {
	cfg RunConfig
}

// NewRunConfig starts a builder with the default options.
func NewRunConfig() *RunConfigBuilder {
	return &RunConfigBuilder{cfg: RunConfig{
		Region: RegionRegionalAndNational,
		Options: Options{
			MaxEvents:     DefaultMaxEvents,
			DateRange:     DateRangeAll,
			RequireImages: true,
		},
	}}
}

// WithSources sets the sources to run; duplicates are collapsed.
func (b *RunConfigBuilder) WithSources(ids ...SourceID) *RunConfigBuilder {
	b.cfg.Sources = b.cfg.Sources[:0]
	for _, id := range ids {
		id = SourceID(strings.TrimSpace(string(id)))
		if !slices.Contains(b.cfg.Sources, id) {
			b.cfg.Sources = append(b.cfg.Sources, id)
		}
	}
	return b
}

// WithMaxEvents caps the candidates taken from each source.
func (b *RunConfigBuilder) WithMaxEvents(n int) *RunConfigBuilder {
	b.cfg.Options.MaxEvents = n
	return b
}

// WithCategories restricts accepted events to the given categories.
func (b *RunConfigBuilder) WithCategories(categories ...Category) *RunConfigBuilder {
	b.cfg.Options.Categories = append([]Category(nil), categories...)
	return b
}

// WithDateRange sets the accepted date window.
func (b *RunConfigBuilder) WithDateRange(r DateRange) *RunConfigBuilder {
	b.cfg.Options.DateRange = r
	return b
}

// WithRequireImages toggles the missing-image rejection.
func (b *RunConfigBuilder) WithRequireImages(require bool) *RunConfigBuilder {
	b.cfg.Options.RequireImages = require
	return b
}

// WithRegion sets the regional scope.
func (b *RunConfigBuilder) WithRegion(r Region) *RunConfigBuilder {
	b.cfg.Region = r
	return b
}

// Build validates the configuration against the registered sources.
func (b *RunConfigBuilder) Build(known SourceSet) (RunConfig, error) {
	cfg := b.cfg
	cfg.Sources = append([]SourceID(nil), b.cfg.Sources...)
	if err := cfg.Validate(known); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate enforces the configuration contract. Unknown sources are refused
// here rather than mid-run.
func (c RunConfig) Validate(known SourceSet) error {
	var errs []error
	if len(c.Sources) == 0 {
		errs = append(errs, &ConfigError{Field: "sources", Reason: "at least one source is required"})
	}
	for _, id := range c.Sources {
		if id == "" {
			errs = append(errs, &ConfigError{Field: "sources", Reason: "empty source id"})
			continue
		}
		if known != nil && !known.Has(id) {
			errs = append(errs, &ConfigError{Field: "sources", Reason: fmt.Sprintf("unknown source %q", id)})
		}
	}
	switch c.Region {
	case RegionRegionalOnly, RegionNationalOnly, RegionRegionalAndNational:
	default:
		errs = append(errs, &ConfigError{Field: "region", Reason: fmt.Sprintf("unsupported region %q", c.Region)})
	}
	switch c.Options.DateRange {
	case DateRangeToday, DateRangeWeek, DateRangeMonth, DateRangeAll:
	default:
		errs = append(errs, &ConfigError{
			Field:  "options.date_range",
			Reason: fmt.Sprintf("unsupported date range %q", c.Options.DateRange),
		})
	}
	if c.Options.MaxEvents <= 0 {
		errs = append(errs, &ConfigError{Field: "options.max_events", Reason: "must be > 0"})
	}
	for _, cat := range c.Options.Categories {
		if !slices.Contains(Categories(), cat) {
			errs = append(errs, &ConfigError{
				Field:  "options.categories",
				Reason: fmt.Sprintf("unknown category %q", cat),
			})
		}
	}
	return errors.Join(errs...)
}

// Scope returns the single source id, or MultiSource when several are configured.
func (c RunConfig) Scope() SourceID {
	if len(c.Sources) == 1 {
		return c.Sources[0]
	}
	return MultiSource
}

// AllowsCategory reports whether the category passes the optional filter.
func (c RunConfig) AllowsCategory(cat Category) bool {
	return len(c.Options.Categories) == 0 || slices.Contains(c.Options.Categories, cat)
}
