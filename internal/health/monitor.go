// Package health probes source sites for the page structure their adapters
// depend on.
package health

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/metrics"
)

// Defaults applied by NewMonitor.
const (
	DefaultFloor       = 50
	DefaultTimeout     = 15 * time.Second
	DefaultConcurrency = 4
)

// Config tunes the monitor.
type Config struct {
	// Floor is the score below which a source is reported as degraded.
	Floor       int           `mapstructure:"floor"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

// Monitor scores each source by the fraction of expected markers present on
// its probe page.
type Monitor struct {
	fetcher ingest.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// NewMonitor wires a monitor to a fetcher.
func NewMonitor(fetcher ingest.Fetcher, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.Floor <= 0 {
		cfg.Floor = DefaultFloor
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{fetcher: fetcher, cfg: cfg, logger: logger.Named("health")}
}

// Check probes every adapter and returns results in adapter order. A
// degraded source is reported, never skipped.
func (m *Monitor) Check(ctx context.Context, adapters []ingest.Adapter) []ingest.SourceHealth {
	results := make([]ingest.SourceHealth, len(adapters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for i, adapter := range adapters {
		g.Go(func() error {
			results[i] = m.checkOne(gctx, adapter)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (m *Monitor) checkOne(ctx context.Context, adapter ingest.Adapter) ingest.SourceHealth {
	result := ingest.SourceHealth{SourceID: adapter.ID(), Score: 100}
	probeable, ok := adapter.(ingest.Probeable)
	if !ok || probeable.ProbeTarget().URL == "" {
		result.Detail = "no probe target"
		return result
	}

	target := probeable.ProbeTarget()
	result.Probed = true
	result.Score, result.Detail = m.probe(ctx, target)
	result.Degraded = result.Score < m.cfg.Floor

	metrics.SetSourceHealth(string(adapter.ID()), result.Score)
	if result.Degraded {
		m.logger.Warn("source degraded",
			zap.String("source", string(adapter.ID())),
			zap.Int("score", result.Score),
			zap.String("detail", result.Detail),
		)
	} else {
		m.logger.Debug("source healthy",
			zap.String("source", string(adapter.ID())),
			zap.Int("score", result.Score),
		)
	}
	return result
}

func (m *Monitor) probe(ctx context.Context, target ingest.ProbeTarget) (int, string) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	resp, err := m.fetcher.Fetch(ctx, ingest.FetchRequest{URL: target.URL})
	if err != nil {
		return 0, fmt.Sprintf("probe fetch failed: %v", err)
	}
	if len(target.Markers) == 0 {
		return 100, "reachable"
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return 0, fmt.Sprintf("parse probe page: %v", err)
	}
	var missing []string
	for _, marker := range target.Markers {
		if doc.Find(marker).Length() == 0 {
			missing = append(missing, marker)
		}
	}
	present := len(target.Markers) - len(missing)
	score := present * 100 / len(target.Markers)
	detail := fmt.Sprintf("%d/%d markers present", present, len(target.Markers))
	if len(missing) > 0 {
		detail += fmt.Sprintf(", missing %q", missing)
	}
	if resp.RobotsIndeterminate {
		detail += ", robots.txt indeterminate"
	}
	return score, detail
}
