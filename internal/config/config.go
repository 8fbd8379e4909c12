// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/event-ingestor/internal/classify"
	"github.com/JakeFAU/event-ingestor/internal/dedupe"
	collyfetcher "github.com/JakeFAU/event-ingestor/internal/fetcher/colly"
	"github.com/JakeFAU/event-ingestor/internal/health"
	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/logging"
	"github.com/JakeFAU/event-ingestor/internal/normalize"
	"github.com/JakeFAU/event-ingestor/internal/orchestrator"
	"github.com/JakeFAU/event-ingestor/internal/policy/ratelimit"
	"github.com/JakeFAU/event-ingestor/internal/publisher/kafka"
	"github.com/JakeFAU/event-ingestor/internal/quality"
	"github.com/JakeFAU/event-ingestor/internal/report"
	"github.com/JakeFAU/event-ingestor/internal/retry"
	"github.com/JakeFAU/event-ingestor/internal/source"
	"github.com/JakeFAU/event-ingestor/internal/storage/gcs"
	"github.com/JakeFAU/event-ingestor/internal/storage/local"
)

// EnvPrefix namespaces environment overrides, e.g. INGEST_STORE_DSN.
const EnvPrefix = "INGEST"

// Backend drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverLocal    = "local"
	DriverGCS      = "gcs"
	DriverNone     = "none"
	DriverPubSub   = "pubsub"
	DriverKafka    = "kafka"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   logging.Config   `mapstructure:"logging"`
	Server    ServerConfig     `mapstructure:"server"`
	Auth      AuthConfig       `mapstructure:"auth"`
	Run       RunDefaults      `mapstructure:"run"`
	Pipeline  PipelineConfig   `mapstructure:"pipeline"`
	Retry     retry.Config     `mapstructure:"retry"`
	Health    health.Config    `mapstructure:"health"`
	HTTP      HTTPConfig       `mapstructure:"http"`
	Headless  HeadlessConfig   `mapstructure:"headless"`
	RateLimit ratelimit.Config `mapstructure:"rate_limit"`
	Sources   SourcesConfig    `mapstructure:"sources"`
	Store     StoreConfig      `mapstructure:"store"`
	Blob      BlobConfig       `mapstructure:"blob"`
	Publisher PublisherConfig  `mapstructure:"publisher"`
	Report    report.Config    `mapstructure:"report"`
	Progress  ProgressConfig   `mapstructure:"progress"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// RunDefaults is the run configuration used when a caller does not supply
// one.
type RunDefaults struct {
	Sources       []string `mapstructure:"sources"`
	MaxEvents     int      `mapstructure:"max_events"`
	Categories    []string `mapstructure:"categories"`
	DateRange     string   `mapstructure:"date_range"`
	Region        string   `mapstructure:"region"`
	RequireImages bool     `mapstructure:"require_images"`
}

// PipelineConfig tunes normalization, filtering and deduplication.
type PipelineConfig struct {
	Kind                string        `mapstructure:"kind"`
	DefaultCity         string        `mapstructure:"default_city"`
	Timezone            string        `mapstructure:"timezone"`
	RegionalCities      []string      `mapstructure:"regional_cities"`
	Denylist            []string      `mapstructure:"denylist"`
	Placeholders        []string      `mapstructure:"placeholders"`
	MinTitleLen         int           `mapstructure:"min_title_len"`
	MaxTitleLen         int           `mapstructure:"max_title_len"`
	TitleRecoveryMinLen int           `mapstructure:"title_recovery_min_len"`
	DedupeThreshold     float64       `mapstructure:"dedupe_threshold"`
	DedupePrefixLen     int           `mapstructure:"dedupe_prefix_len"`
	Lookback            time.Duration `mapstructure:"lookback"`
	LookbackLimit       int           `mapstructure:"lookback_limit"`
}

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// HeadlessConfig configures the browser renderer.
type HeadlessConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxParallel        int           `mapstructure:"max_parallel"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	ScrollPasses       int           `mapstructure:"scroll_passes"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`

	// PromotionThreshold is the visible text, in characters, below which a
	// script-driven listing page is re-fetched through the browser.
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// SourcesConfig lists the configured sites keyed by source id.
type SourcesConfig struct {
	Sites map[string]source.SiteConfig `mapstructure:"sites"`
}

// StoreConfig selects and configures the event and run stores.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Table           string        `mapstructure:"table"`
	OrganizerID     string        `mapstructure:"organizer_id"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// BlobConfig selects where report artifacts are written.
type BlobConfig struct {
	Driver string       `mapstructure:"driver"`
	Local  local.Config `mapstructure:"local"`
	GCS    gcs.Config   `mapstructure:"gcs"`
}

// PublisherConfig selects where run summaries are published.
type PublisherConfig struct {
	Driver    string       `mapstructure:"driver"`
	ProjectID string       `mapstructure:"project_id"`
	Kafka     kafka.Config `mapstructure:"kafka"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvs(v, reflect.TypeOf(Config{}), "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.run_timeout", "30m")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("run.max_events", ingest.DefaultMaxEvents)
	v.SetDefault("run.date_range", string(ingest.DateRangeAll))
	v.SetDefault("run.region", string(ingest.RegionRegionalAndNational))
	v.SetDefault("run.require_images", true)
	v.SetDefault("pipeline.kind", orchestrator.DefaultKind)
	v.SetDefault("pipeline.default_city", "Porto Velho")
	v.SetDefault("pipeline.timezone", "America/Porto_Velho")
	v.SetDefault("pipeline.regional_cities", []string{"Porto Velho", "Ji-Paraná", "Ariquemes", "Cacoal", "Vilhena"})
	v.SetDefault("pipeline.dedupe_threshold", dedupe.DefaultThreshold)
	v.SetDefault("pipeline.lookback", orchestrator.DefaultLookback.String())
	v.SetDefault("pipeline.lookback_limit", orchestrator.DefaultLookbackLimit)
	v.SetDefault("retry.max_attempts", retry.DefaultMaxAttempts)
	v.SetDefault("retry.base_delay", retry.DefaultBaseDelay.String())
	v.SetDefault("retry.max_delay", retry.DefaultMaxDelay.String())
	v.SetDefault("retry.call_timeout", retry.DefaultCallTimeout.String())
	v.SetDefault("retry.abandon_grace", retry.DefaultAbandonGrace.String())
	v.SetDefault("health.floor", health.DefaultFloor)
	v.SetDefault("health.timeout", health.DefaultTimeout.String())
	v.SetDefault("health.concurrency", health.DefaultConcurrency)
	v.SetDefault("http.user_agent", "event-ingestor/0.1")
	v.SetDefault("http.respect_robots", true)
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.navigation_timeout", "25s")
	v.SetDefault("headless.scroll_passes", 2)
	v.SetDefault("headless.settle_delay", "500ms")
	v.SetDefault("headless.promotion_threshold", 60)
	v.SetDefault("rate_limit.default_rps", 1.0)
	v.SetDefault("rate_limit.default_burst", 1)
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.table", "events")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("blob.driver", DriverLocal)
	v.SetDefault("blob.local.base_dir", "data")
	v.SetDefault("publisher.driver", DriverNone)
	v.SetDefault("report.prefix", report.DefaultPrefix)
	v.SetDefault("report.topic", "ingest-runs")
	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.max_batch_events", 32)
	v.SetDefault("progress.max_batch_wait", "500ms")
	v.SetDefault("progress.sink_timeout", "2s")
}

// bindEnvs registers every leaf key of t with viper. AutomaticEnv only
// consults the environment for keys viper already knows, so secrets such as
// store.dsn and auth.api_key, which have no default, would otherwise never be
// read from INGEST_* variables. Map-valued keys are left to the config file.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		switch {
		case field.Type.Kind() == reflect.Map:
		case field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}):
			bindEnvs(v, field.Type, key)
		default:
			// BindEnv only fails when given no key.
			_ = v.BindEnv(key)
		}
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0"))
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		errs = append(errs, fmt.Errorf("auth.api_key must be set when auth is enabled"))
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		errs = append(errs, fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled"))
	}
	if t := c.Pipeline.DedupeThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("pipeline.dedupe_threshold must be in (0, 1]"))
	}
	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.timezone: %w", err))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn must be set for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not supported", c.Store.Driver))
	}

	switch c.Blob.Driver {
	case DriverMemory, DriverNone:
	case DriverLocal:
		if c.Blob.Local.BaseDir == "" {
			errs = append(errs, fmt.Errorf("blob.local.base_dir must be set for the local driver"))
		}
	case DriverGCS:
		if c.Blob.GCS.Bucket == "" {
			errs = append(errs, fmt.Errorf("blob.gcs.bucket must be set for the gcs driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver %q is not supported", c.Blob.Driver))
	}

	switch c.Publisher.Driver {
	case DriverNone, DriverMemory:
	case DriverPubSub:
		if c.Publisher.ProjectID == "" {
			errs = append(errs, fmt.Errorf("publisher.project_id must be set for the pubsub driver"))
		}
	case DriverKafka:
		if len(c.Publisher.Kafka.Brokers) == 0 {
			errs = append(errs, fmt.Errorf("publisher.kafka.brokers must be set for the kafka driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("publisher.driver %q is not supported", c.Publisher.Driver))
	}

	for id, site := range c.Sources.Sites {
		switch site.Kind {
		case source.KindFixture:
			if site.Path == "" {
				errs = append(errs, fmt.Errorf("sources.sites.%s.path must be set for fixture sites", id))
			}
		case source.KindHTML, "":
			if site.URL == "" {
				errs = append(errs, fmt.Errorf("sources.sites.%s.url must be set", id))
			}
		default:
			errs = append(errs, fmt.Errorf("sources.sites.%s.kind %q is not supported", id, site.Kind))
		}
	}
	return errors.Join(errs...)
}

// RunConfig builds the default run configuration, optionally replacing the
// configured sources, and validates it against known.
func (c Config) RunConfig(known ingest.SourceSet, sources ...string) (ingest.RunConfig, error) {
	if len(sources) == 0 {
		sources = c.Run.Sources
	}
	ids := make([]ingest.SourceID, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, ingest.SourceID(s))
	}
	categories := make([]ingest.Category, 0, len(c.Run.Categories))
	for _, cat := range c.Run.Categories {
		categories = append(categories, ingest.Category(cat))
	}
	cfg, err := ingest.NewRunConfig().
		WithSources(ids...).
		WithMaxEvents(c.Run.MaxEvents).
		WithCategories(categories...).
		WithDateRange(ingest.DateRange(c.Run.DateRange)).
		WithRegion(ingest.Region(c.Run.Region)).
		WithRequireImages(c.Run.RequireImages).
		Build(known)
	if err != nil {
		return ingest.RunConfig{}, fmt.Errorf("build run config: %w", err)
	}
	return cfg, nil
}

// Normalize maps the pipeline settings onto the normalizer configuration.
func (p PipelineConfig) Normalize() (normalize.Config, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return normalize.Config{}, fmt.Errorf("load timezone %q: %w", p.Timezone, err)
	}
	return normalize.Config{
		DefaultCity:         p.DefaultCity,
		TitleRecoveryMinLen: p.TitleRecoveryMinLen,
		MinTitleLen:         p.MinTitleLen,
		MaxTitleLen:         p.MaxTitleLen,
		Location:            loc,
	}, nil
}

// Classify maps the pipeline settings onto the classifier configuration.
func (p PipelineConfig) Classify() classify.Config {
	return classify.Config{RegionalCities: p.RegionalCities}
}

// Orchestrator maps the pipeline settings onto the orchestrator configuration.
func (p PipelineConfig) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Kind: p.Kind,
		Quality: quality.Config{
			Denylist:     p.Denylist,
			Placeholders: p.Placeholders,
			MinTitleLen:  p.MinTitleLen,
		},
		Dedupe: dedupe.Config{
			Threshold: p.DedupeThreshold,
			PrefixLen: p.DedupePrefixLen,
		},
		Lookback:      p.Lookback,
		LookbackLimit: p.LookbackLimit,
	}
}

// Fetcher maps the HTTP settings onto the colly fetcher configuration.
func (h HTTPConfig) Fetcher() collyfetcher.Config {
	return collyfetcher.Config{
		UserAgent:     h.UserAgent,
		RespectRobots: h.RespectRobots,
		Timeout:       h.Timeout,
	}
}
