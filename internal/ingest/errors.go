package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks adapter failures worth retrying (network, timeouts, 5xx).
	ErrTransient = errors.New("transient adapter failure")
	// ErrFatal marks adapter failures that retrying cannot fix (auth, page structure).
	ErrFatal = errors.New("fatal adapter failure")
	// ErrDuplicate is returned by stores when the source URL already exists.
	ErrDuplicate = errors.New("duplicate source url")
	// ErrNotFound signals that a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrRunSealed is returned when a sealed operation run would be modified.
	ErrRunSealed = errors.New("operation run already sealed")
)

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Fatal wraps err so that errors.Is(err, ErrFatal) holds.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// Reject reasons recorded against the operation run.
const (
	ReasonMissingImage       = "missing_image"
	ReasonPlaceholderImage   = "placeholder_image"
	ReasonDenylisted         = "denylisted_content"
	ReasonTitleUnrecoverable = "title_unrecoverable"
	ReasonTitleTooShort      = "title_too_short"
	ReasonBareTitle          = "bare_title"
	ReasonOutOfRegion        = "out_of_region"
	ReasonCategoryFiltered   = "category_filtered"
	ReasonOutOfDateRange     = "out_of_date_range"
	ReasonMissingSourceURL   = "missing_source_url"
	ReasonRejectedByStore    = "rejected_by_store"
	ReasonAbandoned          = "abandoned"
)

// Rejection is an expected, per-record refusal from the normalize/filter
// chain. It is counted, never logged as an error.
type Rejection struct {
	Reason string
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return "rejected: " + r.Reason
	}
	return fmt.Sprintf("rejected: %s (%s)", r.Reason, r.Detail)
}

// Reject builds a Rejection for reason.
func Reject(reason, detail string) *Rejection {
	return &Rejection{Reason: reason, Detail: detail}
}

// ConstraintError is a store-side refusal (foreign key, check, not-null).
type ConstraintError struct {
	Constraint string
	Code       string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("store constraint %q violated (%s): %v", e.Constraint, e.Code, e.Err)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// ConfigError is run-fatal: the run is refused before any source is touched.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// StatusError reports a non-success HTTP response from a fetcher.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
}
