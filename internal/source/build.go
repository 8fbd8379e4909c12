package source

import (
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/policy/ratelimit"
	"github.com/JakeFAU/event-ingestor/internal/source/fixture"
	"github.com/JakeFAU/event-ingestor/internal/source/htmllist"
)

// Site kinds understood by Build.
const (
	KindHTML    = "html"
	KindFixture = "fixture"
)

// SiteConfig describes one configured source.
type SiteConfig struct {
	Kind         string             `mapstructure:"kind"`
	URL          string             `mapstructure:"url"`
	ProbeURL     string             `mapstructure:"probe_url"`
	Region       string             `mapstructure:"region"`
	Reliability  float64            `mapstructure:"reliability"`
	Render       string             `mapstructure:"render"`
	MaxPages     int                `mapstructure:"max_pages"`
	ProbeMarkers []string           `mapstructure:"probe_markers"`
	Headers      map[string]string  `mapstructure:"headers"`
	Selectors    htmllist.Selectors `mapstructure:"selectors"`

	// Path is read by fixture sites only.
	Path string `mapstructure:"path"`
}

// Deps carries the shared collaborators adapters are built with.
type Deps struct {
	Fetcher  ingest.Fetcher
	Renderer ingest.Fetcher
	Detector htmllist.Detector
	Limiter  *ratelimit.Limiter
	Clock    ingest.Clock
	Logger   *zap.Logger
}

// Build constructs a registry from site configuration. Sites are registered
// in id order so runs are reproducible.
func Build(sites map[string]SiteConfig, deps Deps) (*Registry, error) {
	ids := make([]string, 0, len(sites))
	for id := range sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if deps.Limiter != nil {
		if deps.Fetcher != nil {
			deps.Fetcher = deps.Limiter.Wrap(deps.Fetcher)
		}
		if deps.Renderer != nil {
			deps.Renderer = deps.Limiter.Wrap(deps.Renderer)
		}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	reg := NewRegistry()
	for _, id := range ids {
		adapter, err := buildOne(ingest.SourceID(id), sites[id], deps)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(adapter); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildOne(id ingest.SourceID, site SiteConfig, deps Deps) (ingest.Adapter, error) {
	switch site.Kind {
	case KindFixture:
		adapter, err := fixture.Load(site.Path, id)
		if err != nil {
			return nil, fmt.Errorf("build source %s: %w", id, err)
		}
		return adapter.WithClock(deps.Clock), nil
	case KindHTML, "":
		headers := http.Header{}
		for k, v := range site.Headers {
			headers.Set(k, v)
		}
		adapter, err := htmllist.New(htmllist.Config{
			ID:           id,
			URL:          site.URL,
			ProbeURL:     site.ProbeURL,
			Region:       site.Region,
			Reliability:  site.Reliability,
			Selectors:    site.Selectors,
			ProbeMarkers: site.ProbeMarkers,
			Render:       htmllist.RenderMode(site.Render),
			MaxPages:     site.MaxPages,
			Headers:      headers,
		}, deps.Fetcher,
			htmllist.WithRenderer(deps.Renderer, deps.Detector),
			htmllist.WithClock(deps.Clock),
			htmllist.WithLogger(deps.Logger.Named(string(id))),
		)
		if err != nil {
			return nil, fmt.Errorf("build source %s: %w", id, err)
		}
		return adapter, nil
	default:
		return nil, fmt.Errorf("build source %s: unknown kind %q", id, site.Kind)
	}
}
