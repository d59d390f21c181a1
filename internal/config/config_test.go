package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: warn
harvest:
  max_attempts: 5
  retry_base: 2m
  retry_max: 30m
  event_topic: harvest-staging
crawl:
  max_pages: 50
  max_recipes: 25
  crawl_depth: 3
  requests_per_second: 1.5
fetch:
  user_agent: tastewell-test-agent
  timeout_seconds: 45
workers:
  count: 6
  queue_capacity: 128
storage:
  backend: gcs
  gcs_bucket: snapshots-bucket
pubsub:
  enabled: true
  project_id: tastewell-staging
db:
  dsn: postgres://localhost/harvester
  max_conns: 16
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d; want 9090", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Errorf("Auth = %+v; want enabled with key", cfg.Auth)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Errorf("Logging = %+v; want production at warn", cfg.Logging)
	}
	if cfg.Harvest.MaxAttempts != 5 {
		t.Errorf("Harvest.MaxAttempts = %d; want 5", cfg.Harvest.MaxAttempts)
	}
	if cfg.Harvest.RetryBase != 2*time.Minute {
		t.Errorf("Harvest.RetryBase = %v; want 2m", cfg.Harvest.RetryBase)
	}
	if cfg.Harvest.EventTopic != "harvest-staging" {
		t.Errorf("Harvest.EventTopic = %q; want harvest-staging", cfg.Harvest.EventTopic)
	}
	if cfg.Crawl.MaxPages != 50 || cfg.Crawl.CrawlDepth != 3 {
		t.Errorf("Crawl = %+v; want overrides applied", cfg.Crawl)
	}
	if cfg.Fetch.Timeout() != 45*time.Second {
		t.Errorf("Fetch.Timeout() = %v; want 45s", cfg.Fetch.Timeout())
	}
	if cfg.Workers.Count != 6 || cfg.Workers.QueueCapacity != 128 {
		t.Errorf("Workers = %+v; want 6 workers, 128 capacity", cfg.Workers)
	}
	if cfg.Storage.Backend != "gcs" || cfg.Storage.GCSBucket != "snapshots-bucket" {
		t.Errorf("Storage = %+v; want gcs backend", cfg.Storage)
	}
	if !cfg.PubSub.Enabled || cfg.PubSub.ProjectID != "tastewell-staging" {
		t.Errorf("PubSub = %+v; want enabled with project", cfg.PubSub)
	}
	if cfg.DB.DSN != "postgres://localhost/harvester" || cfg.DB.MaxConns != 16 {
		t.Errorf("DB = %+v; want dsn and pool override", cfg.DB)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d; want 8080", cfg.Server.Port)
	}
	if cfg.Harvest.MaxAttempts != 3 || cfg.Harvest.RetryBase != 5*time.Minute || cfg.Harvest.RetryMax != time.Hour {
		t.Errorf("Harvest = %+v; want runner defaults", cfg.Harvest)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q; want memory", cfg.Storage.Backend)
	}
	if cfg.Workers.Count != 4 {
		t.Errorf("Workers.Count = %d; want 4", cfg.Workers.Count)
	}
	if cfg.Workers.SweepInterval != time.Minute || cfg.Workers.SweepBatch != 50 {
		t.Errorf("Workers sweep = %v/%d; want 1m/50", cfg.Workers.SweepInterval, cfg.Workers.SweepBatch)
	}
	if !strings.HasPrefix(cfg.Fetch.UserAgent, "tastewell-harvester/") {
		t.Errorf("Fetch.UserAgent = %q; want harvester agent", cfg.Fetch.UserAgent)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"zero workers", func(c *Config) { c.Workers.Count = 0 }},
		{"zero sweep batch", func(c *Config) { c.Workers.SweepBatch = 0 }},
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = "gcs"; c.Storage.GCSBucket = "" }},
		{"pubsub without project", func(c *Config) { c.PubSub.Enabled = true; c.PubSub.ProjectID = "" }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
