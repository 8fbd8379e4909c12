// Package ingest defines the core types shared across the ingestion pipeline.
package ingest

import (
	"time"
)

// SourceID identifies a configured source adapter (one per site).
type SourceID string

// MultiSource is the scope recorded on runs that span more than one source.
const MultiSource SourceID = "multi"

// Category is the coarse domain assigned by the classifier.
type Category string

// Supported categories, in classifier precedence order.
const (
	CategoryMusic     Category = "music"
	CategoryTheatre   Category = "theatre"
	CategoryEducation Category = "education"
	CategoryParty     Category = "party"
	CategorySports    Category = "sports"
	CategoryBusiness  Category = "business"
	CategoryGeneral   Category = "general"
)

// Categories lists every category in precedence order.
func Categories() []Category {
	return []Category{
		CategoryMusic,
		CategoryTheatre,
		CategoryEducation,
		CategoryParty,
		CategorySports,
		CategoryBusiness,
		CategoryGeneral,
	}
}

// Region scopes a run to regional events, national events or both.
type Region string

// Region values accepted by the configuration contract.
const (
	RegionRegionalOnly        Region = "regional_only"
	RegionNationalOnly        Region = "national_only"
	RegionRegionalAndNational Region = "regional_and_national"
)

// DateRange restricts how far into the future accepted events may be.
type DateRange string

// DateRange values accepted by the configuration contract.
const (
	DateRangeToday DateRange = "today"
	DateRangeWeek  DateRange = "week"
	DateRangeMonth DateRange = "month"
	DateRangeAll   DateRange = "all"
)

// RawCandidate is a single record as yielded by a source adapter. It is a
// value type; the pipeline never mutates it.
type RawCandidate struct {
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description"`
	RawDate     string    `json:"raw_date,omitempty" yaml:"raw_date"`
	RawLocation string    `json:"raw_location,omitempty" yaml:"raw_location"`
	ImageURL    string    `json:"image_url,omitempty" yaml:"image_url"`
	SourceID    SourceID  `json:"source_id" yaml:"source_id"`
	SourceURL   string    `json:"source_url" yaml:"source_url"`
	Region      string    `json:"region,omitempty" yaml:"region"`
	ScrapedAt   time.Time `json:"scraped_at,omitempty" yaml:"scraped_at"`
}

// NormalizedEvent is derived one-to-one from an accepted RawCandidate. It is
// built once by the normalize/classify chain and never mutated afterwards.
type NormalizedEvent struct {
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Date         time.Time `json:"date"`
	Time         string    `json:"time"`
	Venue        string    `json:"venue,omitempty"`
	City         string    `json:"city,omitempty"`
	Location     string    `json:"location"`
	Category     Category  `json:"category"`
	IsRegional   bool      `json:"is_regional"`
	QualityScore float64   `json:"quality_score"`
	ImageURL     string    `json:"image_url"`
	SourceID     SourceID  `json:"source_id"`
	SourceURL    string    `json:"source_url"`
	ContentHash  string    `json:"content_hash"`
}

// RunStatus is the lifecycle state of an OperationRun.
type RunStatus string

// Run statuses persisted in operation_runs.status.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Counts tracks per-record outcomes for a run. Every found record ends in
// exactly one of the other four buckets.
type Counts struct {
	Found      int64 `json:"found"`
	Inserted   int64 `json:"inserted"`
	Duplicated int64 `json:"duplicated"`
	Rejected   int64 `json:"rejected"`
	Errored    int64 `json:"errored"`
}

// Settled reports how many found records have reached a terminal outcome.
func (c Counts) Settled() int64 {
	return c.Inserted + c.Duplicated + c.Rejected + c.Errored
}

// Balanced reports whether found equals the sum of all outcomes.
func (c Counts) Balanced() bool {
	return c.Found == c.Settled()
}

// SourceResult summarizes what one source contributed to a run.
type SourceResult struct {
	SourceID    SourceID `json:"source_id"`
	Found       int      `json:"found"`
	Attempts    int      `json:"attempts"`
	HealthScore int      `json:"health_score"`
	Degraded    bool     `json:"degraded"`
	Error       string   `json:"error,omitempty"`
}

// OperationRun is one bounded execution of the pipeline. Counts only grow
// while the run is running; once sealed the value is immutable.
type OperationRun struct {
	ID            string           `json:"id"`
	Kind          string           `json:"kind"`
	Scope         SourceID         `json:"scope"`
	Status        RunStatus        `json:"status"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
	Duration      time.Duration    `json:"duration"`
	Counts        Counts           `json:"counts"`
	RejectReasons map[string]int64 `json:"reject_reasons,omitempty"`
	Sources       []SourceResult   `json:"sources,omitempty"`
	Error         string           `json:"error,omitempty"`
	Config        RunConfig        `json:"config"`
}

// Sealed reports whether the run has reached a terminal status.
func (r OperationRun) Sealed() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}

// SaveStatus is the per-record persistence outcome.
type SaveStatus string

// Persistence outcomes reported by the gateway.
const (
	SaveCreated         SaveStatus = "created"
	SaveSkippedDup      SaveStatus = "skipped_duplicate"
	SaveRejectedByStore SaveStatus = "rejected_by_store"
	SaveError           SaveStatus = "error"
)

// SaveOutcome is returned for every persistence attempt.
type SaveOutcome struct {
	Status SaveStatus
	ID     string
	Err    error
}

// ProbeTarget describes how the health monitor checks a source's structure.
type ProbeTarget struct {
	URL     string
	Markers []string
}

// SourceHealth is the per-source result of a health probe.
type SourceHealth struct {
	SourceID SourceID `json:"source_id"`
	Score    int      `json:"score"`
	Probed   bool     `json:"probed"`
	Degraded bool     `json:"degraded"`
	Detail   string   `json:"detail,omitempty"`
}
