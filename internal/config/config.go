// Package config loads the HCL configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/kbase/kbsolrutil/pkg/database"
	"github.com/kbase/kbsolrutil/pkg/dedup"
	"github.com/kbase/kbsolrutil/pkg/listing"
	"github.com/kbase/kbsolrutil/pkg/report"
	"github.com/kbase/kbsolrutil/pkg/retry"
	"github.com/kbase/kbsolrutil/pkg/search"
	"github.com/kbase/kbsolrutil/pkg/search/adapters/bleve"
	"github.com/kbase/kbsolrutil/pkg/search/adapters/solr"
	"github.com/kbase/kbsolrutil/pkg/search/cache"
	"github.com/kbase/kbsolrutil/pkg/source/adapters/s3"
	"github.com/kbase/kbsolrutil/pkg/submit"
)

// Config is the root of the configuration file.
type Config struct {
	Search      *Search         `hcl:"search,block"`
	Cores       []Core          `hcl:"core,block"`
	ObjectStore *ObjectStore    `hcl:"object_store,block"`
	Indexer     *Indexer        `hcl:"indexer,block"`
	Retry       *Retry          `hcl:"retry,block"`
	Listing     *listing.Config `hcl:"listing,block"`
	Report      *Report         `hcl:"report,block"`
	Cache       *Cache          `hcl:"cache,block"`
	Logging     *Logging        `hcl:"logging,block"`
}

// Search selects the search engine.
type Search struct {
	Provider string        `hcl:"provider"` // "bleve" or "solr"
	Bleve    *bleve.Config `hcl:"bleve,block"`
	Solr     *solr.Config  `hcl:"solr,block"`
}

// Core declares one search core.
type Core struct {
	Name     string `hcl:"name,label"`
	Kind     string `hcl:"kind"`                // "genome", "taxon" or "raw"
	KeyField string `hcl:"key_field,optional"` // default depends on kind
}

// ObjectStore selects where source objects are read from.
type ObjectStore struct {
	Provider string      `hcl:"provider"` // "local" or "s3"
	Local    *LocalStore `hcl:"local,block"`
	S3       *s3.Config  `hcl:"s3,block"`
}

// LocalStore configures the filesystem object store.
type LocalStore struct {
	Root string `hcl:"root"`
}

// Indexer tunes indexing runs. Durations are Go duration strings.
type Indexer struct {
	MaxParallelFetches int     `hcl:"max_parallel_fetches,optional"`
	FetchTimeout       string  `hcl:"fetch_timeout,optional"`
	BatchSize          int     `hcl:"batch_size,optional"`
	MaxInFlight        int     `hcl:"max_in_flight,optional"`
	CallTimeout        string  `hcl:"call_timeout,optional"`
	RequestsPerSecond  float64 `hcl:"requests_per_second,optional"`
	LookupChunkSize    int     `hcl:"lookup_chunk_size,optional"`
	ReportTimeout      string  `hcl:"report_timeout,optional"`
}

// Retry configures backoff for engine calls.
type Retry struct {
	InitialInterval string  `hcl:"initial_interval,optional"`
	Multiplier      float64 `hcl:"multiplier,optional"`
	MaxInterval     string  `hcl:"max_interval,optional"`
	MaxAttempts     int     `hcl:"max_attempts,optional"`
	Randomization   float64 `hcl:"randomization,optional"`
}

// Report configures where run reports are published. Either block may be
// omitted; with neither, report requests fail with report.ErrNoSink.
type Report struct {
	Database *database.Config    `hcl:"database,block"`
	Kafka    *report.KafkaConfig `hcl:"kafka,block"`

	// Retention is how long database reports are kept. Older ones are
	// pruned at startup. Empty keeps reports forever.
	Retention string `hcl:"retention,optional"`
}

// Cache configures the listing query cache.
type Cache struct {
	Redis *cache.RedisConfig `hcl:"redis,block"`
}

// Logging configures the root logger.
type Logging struct {
	Level string `hcl:"level,optional"` // default: info
	JSON  bool   `hcl:"json,optional"`
}

// Load decodes, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// SetDefaults fills omitted blocks. The default engine is an in-memory
// Bleve index.
func (c *Config) SetDefaults() {
	if c.Search == nil {
		c.Search = &Search{Provider: "bleve"}
	}
	if c.Search.Provider == "bleve" && c.Search.Bleve == nil {
		c.Search.Bleve = &bleve.Config{InMemory: true}
	}
	if c.Indexer == nil {
		c.Indexer = &Indexer{}
	}
	if c.Indexer.MaxParallelFetches <= 0 {
		c.Indexer.MaxParallelFetches = 8
	}
	if c.Indexer.FetchTimeout == "" {
		c.Indexer.FetchTimeout = "1m"
	}
	if c.Indexer.ReportTimeout == "" {
		c.Indexer.ReportTimeout = "30s"
	}
	if c.Retry == nil {
		c.Retry = &Retry{}
	}
	if c.Listing == nil {
		c.Listing = &listing.Config{}
	}
	if c.Report == nil {
		c.Report = &Report{}
	}
	if c.Logging == nil {
		c.Logging = &Logging{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.ObjectStore != nil && c.ObjectStore.S3 != nil {
		c.ObjectStore.S3.SetDefaults()
	}
}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	var result error

	switch c.Search.Provider {
	case "bleve":
	case "solr":
		if c.Search.Solr == nil {
			result = multierror.Append(result, fmt.Errorf("search: solr block is required for provider solr"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("search: unknown provider %q", c.Search.Provider))
	}

	if len(c.Cores) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one core block is required"))
	}
	seen := make(map[string]bool, len(c.Cores))
	for _, core := range c.Cores {
		if _, err := search.ParseKind(core.Kind); err != nil {
			result = multierror.Append(result, fmt.Errorf("core %q: %w", core.Name, err))
		}
		if seen[core.Name] {
			result = multierror.Append(result, fmt.Errorf("core %q declared twice", core.Name))
		}
		seen[core.Name] = true
	}

	if c.ObjectStore == nil {
		result = multierror.Append(result, fmt.Errorf("object_store block is required"))
	} else {
		switch c.ObjectStore.Provider {
		case "local":
			if c.ObjectStore.Local == nil || c.ObjectStore.Local.Root == "" {
				result = multierror.Append(result, fmt.Errorf("object_store: local block with root is required for provider local"))
			}
		case "s3":
			if c.ObjectStore.S3 == nil {
				result = multierror.Append(result, fmt.Errorf("object_store: s3 block is required for provider s3"))
			} else if err := c.ObjectStore.S3.Validate(); err != nil {
				result = multierror.Append(result, fmt.Errorf("object_store: s3: %w", err))
			}
		default:
			result = multierror.Append(result, fmt.Errorf("object_store: unknown provider %q", c.ObjectStore.Provider))
		}
	}

	if _, err := c.SubmitConfig(); err != nil {
		result = multierror.Append(result, err)
	}
	for name, s := range map[string]string{
		"indexer.fetch_timeout":  c.Indexer.FetchTimeout,
		"indexer.report_timeout": c.Indexer.ReportTimeout,
		"report.retention":       c.Report.Retention,
	} {
		if _, err := parseDuration(name, s); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if c.Report.Kafka != nil && len(c.Report.Kafka.Brokers) == 0 {
		result = multierror.Append(result, fmt.Errorf("report.kafka: at least one broker is required"))
	}
	if c.Cache != nil && c.Cache.Redis != nil && c.Cache.Redis.Addr == "" {
		result = multierror.Append(result, fmt.Errorf("cache.redis: addr is required"))
	}
	if hclog.LevelFromString(c.Logging.Level) == hclog.NoLevel {
		result = multierror.Append(result, fmt.Errorf("logging: unknown level %q", c.Logging.Level))
	}

	return result
}

// RegisteredCores converts the core blocks for the search registry.
func (c *Config) RegisteredCores() []search.Core {
	out := make([]search.Core, len(c.Cores))
	for i, core := range c.Cores {
		out[i] = search.Core{Name: core.Name, Kind: search.Kind(core.Kind), KeyField: core.KeyField}
	}
	return out
}

// RetryPolicy converts the retry block, filling defaults.
func (c *Config) RetryPolicy() (retry.Policy, error) {
	var p retry.Policy
	var err error
	if p.InitialInterval, err = parseDuration("retry.initial_interval", c.Retry.InitialInterval); err != nil {
		return p, err
	}
	if p.MaxInterval, err = parseDuration("retry.max_interval", c.Retry.MaxInterval); err != nil {
		return p, err
	}
	p.Multiplier = c.Retry.Multiplier
	p.MaxAttempts = c.Retry.MaxAttempts
	p.Randomization = c.Retry.Randomization
	p.SetDefaults()

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("retry: %w", err)
	}
	return p, nil
}

// SubmitConfig builds the batch submitter configuration.
func (c *Config) SubmitConfig() (submit.Config, error) {
	policy, err := c.RetryPolicy()
	if err != nil {
		return submit.Config{}, err
	}
	callTimeout, err := parseDuration("indexer.call_timeout", c.Indexer.CallTimeout)
	if err != nil {
		return submit.Config{}, err
	}

	cfg := submit.Config{
		BatchSize:         c.Indexer.BatchSize,
		MaxInFlight:       c.Indexer.MaxInFlight,
		CallTimeout:       callTimeout,
		RequestsPerSecond: c.Indexer.RequestsPerSecond,
		Retry:             policy,
	}
	cfg.SetDefaults()
	return cfg, nil
}

// DedupConfig builds the deduplicator configuration. Lookups share the
// submitter's retry policy and call timeout.
func (c *Config) DedupConfig() (dedup.Config, error) {
	sub, err := c.SubmitConfig()
	if err != nil {
		return dedup.Config{}, err
	}
	return dedup.Config{
		ChunkSize:   c.Indexer.LookupChunkSize,
		Retry:       sub.Retry,
		CallTimeout: sub.CallTimeout,
	}, nil
}

// FetchTimeout returns the per-reference fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	d, _ := parseDuration("indexer.fetch_timeout", c.Indexer.FetchTimeout)
	return d
}

// ReportTimeout returns the report publishing timeout.
func (c *Config) ReportTimeout() time.Duration {
	d, _ := parseDuration("indexer.report_timeout", c.Indexer.ReportTimeout)
	return d
}

// ReportRetention returns how long database reports are kept. Zero means
// forever.
func (c *Config) ReportRetention() time.Duration {
	d, _ := parseDuration("report.retention", c.Report.Retention)
	return d
}

// Logger builds the root logger from the logging block.
func (c *Config) Logger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(c.Logging.Level),
		JSONFormat: c.Logging.JSON,
	})
}

// parseDuration parses an optional duration. An empty string is zero.
func parseDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", name, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must not be negative", name)
	}
	return d, nil
}
