// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tastewell/harvester/internal/job"
	"github.com/tastewell/harvester/internal/storage/postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig    `mapstructure:"server"`
	Auth    AuthConfig      `mapstructure:"auth"`
	Logging LoggingConfig   `mapstructure:"logging"`
	Harvest job.Config      `mapstructure:"harvest"`
	Crawl   CrawlConfig     `mapstructure:"crawl"`
	Fetch   FetchConfig     `mapstructure:"fetch"`
	Workers WorkerConfig    `mapstructure:"workers"`
	Storage StorageConfig   `mapstructure:"storage"`
	DB      postgres.Config `mapstructure:"db"`
	PubSub  PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines admin API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlConfig bounds discovery crawls. Zero fields fall back to the
// per-policy values or the crawl package defaults.
type CrawlConfig struct {
	MaxPages          int     `mapstructure:"max_pages"`
	MaxRecipes        int     `mapstructure:"max_recipes"`
	CrawlDepth        int     `mapstructure:"crawl_depth"`
	MaxLinks          int     `mapstructure:"max_links"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// FetchConfig configures the page fetcher.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout converts the configured seconds into a duration.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// WorkerConfig sizes the job worker pool and its queue. SweepInterval
// controls how often pending and due-retryable jobs are re-enqueued;
// zero disables the sweep.
type WorkerConfig struct {
	Count         int           `mapstructure:"count"`
	QueueCapacity int           `mapstructure:"queue_capacity"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepBatch    int           `mapstructure:"sweep_batch"`
}

// StorageConfig selects and configures the snapshot blob store.
type StorageConfig struct {
	// Backend is one of "memory", "local" or "gcs".
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for harvest event notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("harvest.max_attempts", 3)
	v.SetDefault("harvest.retry_base", "5m")
	v.SetDefault("harvest.retry_max", "1h")
	v.SetDefault("harvest.event_topic", "harvest-events")
	v.SetDefault("crawl.max_pages", 40)
	v.SetDefault("crawl.max_recipes", 20)
	v.SetDefault("crawl.crawl_depth", 2)
	v.SetDefault("crawl.max_links", 200)
	v.SetDefault("crawl.requests_per_second", 2.0)
	v.SetDefault("fetch.user_agent", "tastewell-harvester/1.0 (+https://github.com/tastewell/harvester)")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queue_capacity", 64)
	v.SetDefault("workers.sweep_interval", "1m")
	v.SetDefault("workers.sweep_batch", 50)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.local_dir", "data/snapshots")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be > 0")
	}
	if c.Workers.QueueCapacity <= 0 {
		return fmt.Errorf("workers.queue_capacity must be > 0")
	}
	if c.Workers.SweepInterval > 0 && c.Workers.SweepBatch <= 0 {
		return fmt.Errorf("workers.sweep_batch must be > 0 when sweeping is enabled")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	switch c.Storage.Backend {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when backend is gcs")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}
