// Package report renders sealed operation runs and ships them to blob storage
// and a publisher. Nothing here can fail a run: errors are logged and handed
// back for inspection.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// Config controls where artifacts land.
type Config struct {
	Prefix string `mapstructure:"prefix"`
	Topic  string `mapstructure:"topic"`
}

// DefaultPrefix is used when Config.Prefix is empty.
const DefaultPrefix = "reports"

// Summary is the JSON document published for every sealed run.
type Summary struct {
	RunID         string                `json:"run_id"`
	Kind          string                `json:"kind"`
	Scope         ingest.SourceID       `json:"scope"`
	Status        ingest.RunStatus      `json:"status"`
	StartedAt     time.Time             `json:"started_at"`
	FinishedAt    *time.Time            `json:"finished_at,omitempty"`
	DurationMS    int64                 `json:"duration_ms"`
	Counts        ingest.Counts         `json:"counts"`
	RejectReasons map[string]int64      `json:"reject_reasons,omitempty"`
	Sources       []ingest.SourceResult `json:"sources,omitempty"`
	Error         string                `json:"error,omitempty"`
	Artifacts     []string              `json:"artifacts,omitempty"`
}

// NewSummary flattens run into a Summary.
func NewSummary(run ingest.OperationRun) Summary {
	return Summary{
		RunID:         run.ID,
		Kind:          run.Kind,
		Scope:         run.Scope,
		Status:        run.Status,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		DurationMS:    run.Duration.Milliseconds(),
		Counts:        run.Counts,
		RejectReasons: run.RejectReasons,
		Sources:       run.Sources,
		Error:         run.Error,
	}
}

// Result lists what Report managed to deliver.
type Result struct {
	TextURI   string
	JSONURI   string
	MessageID string
	Err       error
}

// Reporter writes artifacts and publishes summaries. Either collaborator may
// be nil, in which case that output is skipped.
type Reporter struct {
	blobs     ingest.BlobStore
	publisher ingest.Publisher
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Reporter.
func New(blobs ingest.BlobStore, publisher ingest.Publisher, cfg Config, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.Trim(cfg.Prefix, "/") == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Reporter{
		blobs:     blobs,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("report"),
	}
}

// ArtifactPath returns <prefix>/<yyyy>/<mm>/<run-id>.<ext> keyed on the run start.
func ArtifactPath(prefix string, run ingest.OperationRun, ext string) string {
	started := run.StartedAt.UTC()
	return path.Join(
		strings.Trim(prefix, "/"),
		fmt.Sprintf("%04d", started.Year()),
		fmt.Sprintf("%02d", int(started.Month())),
		run.ID+"."+ext,
	)
}

// Report renders run and delivers it. Failures are logged and joined into
// Result.Err; they never propagate as a run failure.
func (r *Reporter) Report(ctx context.Context, run ingest.OperationRun) Result {
	var (
		res  Result
		errs []error
	)
	summary := NewSummary(run)

	if r.blobs != nil {
		uri, err := r.put(ctx, ArtifactPath(r.cfg.Prefix, run, "txt"), "text/plain; charset=utf-8", RenderText(run))
		if err != nil {
			errs = append(errs, err)
		} else {
			res.TextURI = uri
			summary.Artifacts = append(summary.Artifacts, uri)
		}

		body, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal summary: %w", err))
		} else if uri, err := r.put(ctx, ArtifactPath(r.cfg.Prefix, run, "json"), "application/json", body); err != nil {
			errs = append(errs, err)
		} else {
			res.JSONURI = uri
			summary.Artifacts = append(summary.Artifacts, uri)
		}
	}

	if r.publisher != nil {
		id, err := r.publisher.Publish(ctx, r.cfg.Topic, summary)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish summary: %w", err))
		} else {
			res.MessageID = id
		}
	}

	res.Err = errors.Join(errs...)
	if res.Err != nil {
		r.logger.Warn("run report incomplete", zap.String("run_id", run.ID), zap.Error(res.Err))
	} else {
		r.logger.Info("run reported",
			zap.String("run_id", run.ID),
			zap.String("text", res.TextURI),
			zap.String("json", res.JSONURI),
			zap.String("message_id", res.MessageID),
		)
	}
	return res
}

func (r *Reporter) put(ctx context.Context, name, contentType string, body []byte) (string, error) {
	uri, err := r.blobs.PutObject(ctx, name, contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return uri, nil
}
