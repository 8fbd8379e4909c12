// Package htmllist implements a selector-configured adapter for event listing
// pages. One Adapter instance serves one site.
package htmllist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// RenderMode selects when the browser renderer is used.
type RenderMode string

// Supported render modes.
const (
	RenderNever  RenderMode = "never"
	RenderAuto   RenderMode = "auto"
	RenderAlways RenderMode = "always"
)

// DefaultMaxPages bounds pagination when MaxPages is unset.
const DefaultMaxPages = 1

// Selectors locate listing fields inside the page. Field selectors are
// evaluated relative to each Item match.
type Selectors struct {
	Container   string `mapstructure:"container"`
	Item        string `mapstructure:"item"`
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	Date        string `mapstructure:"date"`
	Location    string `mapstructure:"location"`
	Region      string `mapstructure:"region"`
	Image       string `mapstructure:"image"`
	Link        string `mapstructure:"link"`
	NextPage    string `mapstructure:"next_page"`
}

// Config describes one listing site.
type Config struct {
	ID           ingest.SourceID
	URL          string
	ProbeURL     string
	Region       string
	Reliability  float64
	Selectors    Selectors
	ProbeMarkers []string
	Render       RenderMode
	MaxPages     int
	Headers      http.Header
}

// Detector decides whether a plain fetch should be re-done in a browser.
type Detector interface {
	ShouldRender(resp ingest.FetchResponse, matchedItems int) bool
}

// Adapter scrapes a listing page with goquery.
type Adapter struct {
	cfg      Config
	base     *url.URL
	fetcher  ingest.Fetcher
	renderer ingest.Fetcher
	detector Detector
	now      func() time.Time
	logger   *zap.Logger
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithRenderer sets the browser fetcher used by RenderAuto and RenderAlways.
func WithRenderer(renderer ingest.Fetcher, detector Detector) Option {
	return func(a *Adapter) {
		a.renderer = renderer
		a.detector = detector
	}
}

// WithClock overrides the scrape timestamp source.
func WithClock(clock ingest.Clock) Option {
	return func(a *Adapter) {
		if clock != nil {
			a.now = clock.Now
		}
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New validates cfg and builds an Adapter over fetcher.
func New(cfg Config, fetcher ingest.Fetcher, opts ...Option) (*Adapter, error) {
	if cfg.ID == "" {
		return nil, errors.New("htmllist: source id is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("htmllist %s: fetcher is required", cfg.ID)
	}
	base, err := url.Parse(cfg.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("htmllist %s: invalid url %q", cfg.ID, cfg.URL)
	}
	if cfg.Selectors.Item == "" || cfg.Selectors.Title == "" {
		return nil, fmt.Errorf("htmllist %s: item and title selectors are required", cfg.ID)
	}
	switch cfg.Render {
	case "":
		cfg.Render = RenderNever
	case RenderNever, RenderAuto, RenderAlways:
	default:
		return nil, fmt.Errorf("htmllist %s: unknown render mode %q", cfg.ID, cfg.Render)
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	a := &Adapter{
		cfg:     cfg,
		base:    base,
		fetcher: fetcher,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if cfg.Render == RenderAlways && a.renderer == nil {
		return nil, fmt.Errorf("htmllist %s: render mode always requires a renderer", cfg.ID)
	}
	a.logger = a.logger.Named("htmllist").With(zap.String("source", string(cfg.ID)))
	return a, nil
}

// ID implements ingest.Adapter.
func (a *Adapter) ID() ingest.SourceID {
	return a.cfg.ID
}

// Reliability implements ingest.Reliable.
func (a *Adapter) Reliability() float64 {
	return a.cfg.Reliability
}

// ProbeTarget implements ingest.Probeable.
func (a *Adapter) ProbeTarget() ingest.ProbeTarget {
	target := a.cfg.ProbeURL
	if target == "" {
		target = a.cfg.URL
	}
	markers := a.cfg.ProbeMarkers
	if len(markers) == 0 {
		markers = []string{a.cfg.Selectors.Item}
	}
	return ingest.ProbeTarget{URL: target, Markers: markers}
}

// ScrapeEvents walks up to MaxPages listing pages and yields one candidate per
// item. Fetch failures are yielded once, classified as transient or fatal.
func (a *Adapter) ScrapeEvents(ctx context.Context, _ ingest.Region, filters ingest.Filters) iter.Seq2[ingest.RawCandidate, error] {
	return func(yield func(ingest.RawCandidate, error) bool) {
		pageURL := a.base.String()
		yielded := 0
		for page := 1; page <= a.cfg.MaxPages && pageURL != ""; page++ {
			if err := ctx.Err(); err != nil {
				yield(ingest.RawCandidate{}, err)
				return
			}
			doc, resolved, err := a.load(ctx, pageURL)
			if err != nil {
				yield(ingest.RawCandidate{}, err)
				return
			}
			if page == 1 && a.cfg.Selectors.Container != "" && doc.Find(a.cfg.Selectors.Container).Length() == 0 {
				yield(ingest.RawCandidate{}, ingest.Fatal(fmt.Errorf("listing container %q missing on %s", a.cfg.Selectors.Container, pageURL)))
				return
			}

			stop := false
			doc.Find(a.cfg.Selectors.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
				if filters.MaxEvents > 0 && yielded >= filters.MaxEvents {
					stop = true
					return false
				}
				candidate, ok := a.extract(item, resolved)
				if !ok {
					return true
				}
				yielded++
				if !yield(candidate, nil) {
					stop = true
					return false
				}
				return true
			})
			if stop {
				return
			}
			pageURL = a.nextPage(doc, resolved)
		}
		a.logger.Debug("listing scraped", zap.Int("candidates", yielded))
	}
}

func (a *Adapter) load(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	req := ingest.FetchRequest{URL: pageURL, Headers: a.cfg.Headers, WaitSelector: a.cfg.Selectors.Item}
	fetcher := a.fetcher
	if a.cfg.Render == RenderAlways {
		fetcher = a.renderer
	}
	resp, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, nil, classify(err)
	}
	doc, err := parse(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	if a.cfg.Render == RenderAuto && a.renderer != nil && a.detector != nil &&
		a.detector.ShouldRender(resp, doc.Find(a.cfg.Selectors.Item).Length()) {
		a.logger.Debug("promoting listing page to headless render", zap.String("url", pageURL))
		rendered, rerr := a.renderer.Fetch(ctx, req)
		if rerr != nil {
			return nil, nil, classify(rerr)
		}
		resp = rendered
		if doc, err = parse(resp.Body); err != nil {
			return nil, nil, err
		}
	}

	resolved, err := url.Parse(resp.URL)
	if err != nil || resp.URL == "" {
		resolved, _ = url.Parse(pageURL)
	}
	return doc, resolved, nil
}

func parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, ingest.Fatal(fmt.Errorf("parse listing html: %w", err))
	}
	return doc, nil
}

func (a *Adapter) extract(item *goquery.Selection, page *url.URL) (ingest.RawCandidate, bool) {
	sel := a.cfg.Selectors
	title := text(item, sel.Title)
	if title == "" {
		return ingest.RawCandidate{}, false
	}
	region := text(item, sel.Region)
	if region == "" {
		region = a.cfg.Region
	}
	date := attrOrText(item, sel.Date, "datetime", "content")
	return ingest.RawCandidate{
		Title:       title,
		Description: blockText(item, sel.Description),
		RawDate:     date,
		RawLocation: text(item, sel.Location),
		ImageURL:    resolve(page, attr(item, sel.Image, "src", "data-src", "data-lazy-src")),
		SourceID:    a.cfg.ID,
		SourceURL:   resolve(page, a.link(item)),
		Region:      region,
		ScrapedAt:   a.now(),
	}, true
}

func (a *Adapter) link(item *goquery.Selection) string {
	if a.cfg.Selectors.Link == "" {
		if href, ok := item.Attr("href"); ok {
			return href
		}
		return attr(item, "a", "href")
	}
	return attr(item, a.cfg.Selectors.Link, "href")
}

func (a *Adapter) nextPage(doc *goquery.Document, page *url.URL) string {
	if a.cfg.Selectors.NextPage == "" {
		return ""
	}
	href, ok := doc.Find(a.cfg.Selectors.NextPage).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	next := resolve(page, href)
	if next == page.String() {
		return ""
	}
	return next
}

func find(item *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" || selector == "." {
		return item
	}
	return item.Find(selector).First()
}

func text(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(find(item, selector).Text()), " ")
}

// blockText keeps line structure so the normalizer can recover titles from
// description lines.
func blockText(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	var lines []string
	find(item, selector).Contents().Each(func(_ int, node *goquery.Selection) {
		line := strings.Join(strings.Fields(node.Text()), " ")
		if line != "" {
			lines = append(lines, line)
		}
	})
	return strings.Join(lines, "\n")
}

func attr(item *goquery.Selection, selector string, names ...string) string {
	if selector == "" {
		return ""
	}
	node := find(item, selector)
	for _, name := range names {
		if v, ok := node.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func attrOrText(item *goquery.Selection, selector string, names ...string) string {
	if v := attr(item, selector, names...); v != "" {
		return v
	}
	return text(item, selector)
}

func resolve(page *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := page.Parse(href)
	if err != nil {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// classify maps fetch failures onto the transient/fatal split.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var statusErr *ingest.StatusError
	if errors.As(err, &statusErr) {
		switch code := statusErr.StatusCode; {
		case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
			return ingest.Transient(err)
		default:
			return ingest.Fatal(err)
		}
	}
	if errors.Is(err, colly.ErrRobotsTxtBlocked) || errors.Is(err, colly.ErrForbiddenDomain) {
		return ingest.Fatal(err)
	}
	if errors.Is(err, ingest.ErrFatal) || errors.Is(err, ingest.ErrTransient) {
		return err
	}
	// Network failures and anything unrecognized are worth another attempt.
	return ingest.Transient(err)
}
