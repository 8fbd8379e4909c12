package dedupe

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// DefaultThreshold is the best known similarity cut-off. Titles at or above
// it are treated as the same event.
const DefaultThreshold = 0.85

// Duplicate reasons.
const (
	ReasonRunURL    = "run_url"
	ReasonStoredURL = "stored_url"
	ReasonFuzzy     = "fuzzy_title"
)

// Config tunes the index.
type Config struct {
	// Threshold is the minimum similarity that marks a duplicate.
	Threshold float64
	// PrefixLen restricts fuzzy comparison to titles sharing this many
	// leading characters. Zero compares against every admitted title.
	PrefixLen int
}

// URLLookup is the storage-side exact check.
type URLLookup interface {
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)
}

// Verdict explains a deduplication decision.
type Verdict struct {
	Duplicate    bool
	Reason       string
	MatchedTitle string
	Similarity   float64
}

// Index is the per-run duplicate index. Check-and-admit is atomic so that
// of two near-identical titles only the first one seen is admitted.
type Index struct {
	mu      sync.Mutex
	cfg     Config
	store   URLLookup
	logger  *zap.Logger
	urls    map[string]struct{}
	buckets map[string][]string
}

// NewIndex builds an empty index. store may be nil to skip the storage lookup.
func NewIndex(cfg Config, store URLLookup, logger *zap.Logger) *Index {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.PrefixLen < 0 {
		cfg.PrefixLen = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		urls:    make(map[string]struct{}),
		buckets: make(map[string][]string),
	}
}

// Seed loads previously stored titles so the fuzzy check covers the
// lookback window as well as the current run.
func (i *Index) Seed(titles []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, t := range titles {
		key := Key(t)
		if key == "" {
			continue
		}
		i.addTitle(key)
	}
}

// Size reports how many titles the index holds, seeded ones included.
func (i *Index) Size() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, b := range i.buckets {
		n += len(b)
	}
	return n
}

// Admit checks event against the index and, when it is not a duplicate,
// records its URL and title. The exact URL check runs before the fuzzy one.
func (i *Index) Admit(ctx context.Context, event ingest.NormalizedEvent) (Verdict, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	url := CanonicalURL(event.SourceURL)
	if _, ok := i.urls[url]; ok {
		return Verdict{Duplicate: true, Reason: ReasonRunURL}, nil
	}
	if i.store != nil {
		exists, err := i.store.ExistsBySourceURL(ctx, url)
		if err != nil {
			return Verdict{}, fmt.Errorf("lookup source url: %w", err)
		}
		if exists {
			i.urls[url] = struct{}{}
			return Verdict{Duplicate: true, Reason: ReasonStoredURL}, nil
		}
	}

	key := Key(event.Title)
	if match, sim, ok := i.nearest(key); ok {
		i.logger.Info("fuzzy duplicate",
			zap.String("title", event.Title),
			zap.String("matched", match),
			zap.Float64("similarity", sim),
			zap.String("source_url", url),
		)
		return Verdict{Duplicate: true, Reason: ReasonFuzzy, MatchedTitle: match, Similarity: sim}, nil
	}

	i.urls[url] = struct{}{}
	i.addTitle(key)
	return Verdict{}, nil
}

// nearest returns the most similar admitted title at or above the threshold.
func (i *Index) nearest(key string) (string, float64, bool) {
	best, bestSim := "", 0.0
	for _, other := range i.buckets[i.bucket(key)] {
		if sim := Similarity(key, other); sim >= i.cfg.Threshold && sim > bestSim {
			best, bestSim = other, sim
		}
	}
	return best, bestSim, best != ""
}

func (i *Index) addTitle(key string) {
	b := i.bucket(key)
	i.buckets[b] = append(i.buckets[b], key)
}

func (i *Index) bucket(key string) string {
	if i.cfg.PrefixLen == 0 {
		return ""
	}
	r := []rune(key)
	if len(r) > i.cfg.PrefixLen {
		r = r[:i.cfg.PrefixLen]
	}
	return string(r)
}
