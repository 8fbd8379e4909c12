package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/classify"
	"github.com/JakeFAU/event-ingestor/internal/dedupe"
	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/metrics"
)

// process runs every candidate through filtering, normalization,
// classification, scope filters and deduplication. Records are handled
// sequentially so the first one seen wins a fuzzy collision.
func (e *execution) process(ctx context.Context) error {
	accepted := make([]ingest.NormalizedEvent, 0, len(e.candidates))
	for _, c := range e.candidates {
		event, err := e.prepare(c)
		if err == nil {
			event, err = e.admit(ctx, event)
		}
		var rej *ingest.Rejection
		switch {
		case err == nil:
			accepted = append(accepted, event)
		case errors.As(err, &rej):
			_ = e.ledger.RecordRejected(rej.Reason)
			metrics.ObserveRecord(string(c.source), outcomeRejected)
			e.logger.Debug("record rejected",
				zap.String("source", string(c.source)),
				zap.String("reason", rej.Reason),
				zap.String("title", c.raw.Title),
			)
		case errors.Is(err, errDuplicate):
			_ = e.ledger.RecordDuplicated()
			metrics.ObserveRecord(string(c.source), outcomeDuplicated)
		default:
			_ = e.ledger.RecordError(err)
			metrics.ObserveRecord(string(c.source), outcomeErrored)
			e.logger.Error("record failed",
				zap.String("source", string(c.source)),
				zap.String("source_url", c.raw.SourceURL),
				zap.Error(err),
			)
		}
	}

	e.accepted = accepted
	e.pending = e.pending[:0]
	for _, ev := range accepted {
		e.pending = append(e.pending, ev.SourceID)
	}
	e.logger.Info("records processed",
		zap.Int("candidates", len(e.candidates)),
		zap.Int("accepted", len(accepted)),
	)
	return nil
}

var errDuplicate = errors.New("duplicate record")

// prepare builds the normalized event or explains why the record is refused.
func (e *execution) prepare(c candidate) (ingest.NormalizedEvent, error) {
	if ok, reason := e.filter.Accept(c.raw); !ok {
		return ingest.NormalizedEvent{}, ingest.Reject(reason, "")
	}
	fields, err := e.o.deps.Normalizer.Normalize(c.raw)
	if err != nil {
		return ingest.NormalizedEvent{}, err
	}
	if ok, reason := e.filter.AcceptNormalized(fields); !ok {
		return ingest.NormalizedEvent{}, ingest.Reject(reason, fields.Title)
	}

	cls := e.o.deps.Classifier.Classify(classify.Input{
		Title:       fields.Title,
		Description: fields.Description,
		City:        fields.City,
		Venue:       fields.Venue,
		Reliability: e.reliability[c.source],
	})
	event := ingest.NormalizedEvent{
		Title:        fields.Title,
		Description:  fields.Description,
		Date:         fields.Date,
		Time:         fields.Time,
		Venue:        fields.Venue,
		City:         fields.City,
		Location:     fields.Location,
		Category:     cls.Category,
		IsRegional:   cls.IsRegional,
		QualityScore: cls.QualityScore,
		ImageURL:     strings.TrimSpace(strings.ToValidUTF8(c.raw.ImageURL, "")),
		SourceID:     c.source,
		SourceURL:    dedupe.CanonicalURL(c.raw.SourceURL),
	}
	if reason := e.outOfScope(event, fields.DateParsed); reason != "" {
		return ingest.NormalizedEvent{}, ingest.Reject(reason, event.Title)
	}

	hash, err := e.o.deps.Hasher.HashEvent(event)
	if err != nil {
		return ingest.NormalizedEvent{}, fmt.Errorf("hash event: %w", err)
	}
	event.ContentHash = hash
	return event, nil
}

// admit runs the duplicate check; errDuplicate marks a duplicate verdict.
func (e *execution) admit(ctx context.Context, event ingest.NormalizedEvent) (ingest.NormalizedEvent, error) {
	verdict, err := e.index.Admit(ctx, event)
	if err != nil {
		return ingest.NormalizedEvent{}, fmt.Errorf("dedupe %s: %w", event.SourceURL, err)
	}
	if verdict.Duplicate {
		e.logger.Debug("duplicate dropped",
			zap.String("source_url", event.SourceURL),
			zap.String("reason", verdict.Reason),
		)
		return ingest.NormalizedEvent{}, errDuplicate
	}
	return event, nil
}

// outOfScope applies the run's region, category and date window. An event
// whose date could not be parsed carries the fallback date, which says
// nothing about when it happens, so the date window does not apply to it.
func (e *execution) outOfScope(event ingest.NormalizedEvent, dateParsed bool) string {
	switch e.cfg.Region {
	case ingest.RegionRegionalOnly:
		if !event.IsRegional {
			return ingest.ReasonOutOfRegion
		}
	case ingest.RegionNationalOnly:
		if event.IsRegional {
			return ingest.ReasonOutOfRegion
		}
	}
	if !e.cfg.AllowsCategory(event.Category) {
		return ingest.ReasonCategoryFiltered
	}
	if dateParsed && !e.inDateRange(event.Date) {
		return ingest.ReasonOutOfDateRange
	}
	return ""
}

func (e *execution) inDateRange(date time.Time) bool {
	if e.cfg.Options.DateRange == ingest.DateRangeAll {
		return true
	}
	today := e.o.deps.Normalizer.Dates().Today()
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, today.Location())
	if day.Before(today) {
		return false
	}
	var end time.Time
	switch e.cfg.Options.DateRange {
	case ingest.DateRangeToday:
		end = today
	case ingest.DateRangeWeek:
		end = today.AddDate(0, 0, 7)
	default:
		end = today.AddDate(0, 1, 0)
	}
	return !day.After(end)
}

// persist saves accepted events one at a time. Store failures are
// per-record outcomes, never run failures.
func (e *execution) persist(ctx context.Context) error {
	for _, event := range e.accepted {
		outcome := e.o.gateway.Save(ctx, event)
		source := string(event.SourceID)
		switch outcome.Status {
		case ingest.SaveCreated:
			_ = e.ledger.RecordInserted()
			metrics.ObserveRecord(source, outcomeInserted)
		case ingest.SaveSkippedDup:
			_ = e.ledger.RecordDuplicated()
			metrics.ObserveRecord(source, outcomeDuplicated)
		case ingest.SaveRejectedByStore:
			_ = e.ledger.RecordRejected(ingest.ReasonRejectedByStore)
			metrics.ObserveRecord(source, outcomeRejected)
		default:
			_ = e.ledger.RecordError(outcome.Err)
			metrics.ObserveRecord(source, outcomeErrored)
		}
	}
	e.pending = nil
	return nil
}
