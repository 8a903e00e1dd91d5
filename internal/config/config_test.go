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
engine:
  workers: 6
  queue_depth: 128
  quality_threshold: 2.5
  crawl_budget: 20m
  max_crawl_pages: 20
batch:
  size: 4000
  overlap: 250
fetch:
  user_agent: fleet-agent
  respect_robots: false
  retry_attempts: 3
headless:
  enabled: true
  max_parallel: 2
  nav_timeout: 30s
  promotion_threshold: 4096
oracle:
  model: gpt-4o
  timeout: 45s
storage:
  backend: gcs
  gcs_bucket: bucket
  prefix: archives
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Engine.Workers != 6 || cfg.Engine.MaxCrawlPages != 20 {
		t.Fatalf("expected engine overrides to apply: %+v", cfg.Engine)
	}
	if cfg.Engine.CrawlBudget != 20*time.Minute {
		t.Fatalf("expected crawl budget 20m, got %v", cfg.Engine.CrawlBudget)
	}
	if cfg.Batch.Size != 4000 || cfg.Batch.Overlap != 250 {
		t.Fatalf("expected batch overrides to apply: %+v", cfg.Batch)
	}
	if cfg.Fetch.RespectRobots || cfg.Fetch.UserAgent != "fleet-agent" {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.Headless.NavTimeout != 30*time.Second {
		t.Fatalf("expected nav timeout 30s, got %v", cfg.Headless.NavTimeout)
	}
	if cfg.Storage.Backend != "gcs" || cfg.Storage.GCSBucket != "bucket" {
		t.Fatalf("expected storage overrides to apply: %+v", cfg.Storage)
	}
	// Untouched sections keep their defaults.
	if cfg.Engine.QueueDepth != 128 || cfg.Engine.MaxDocuments != 3 {
		t.Fatalf("expected defaults to survive partial overrides: %+v", cfg.Engine)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FLEETSCORE_ENGINE_WORKERS", "9")
	t.Setenv("FLEETSCORE_ORACLE_MODEL", "gpt-4o")
	t.Setenv("FLEETSCORE_ENGINE_SEARCH_BUDGET", "90s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Engine.Workers != 9 {
		t.Fatalf("expected env worker override, got %d", cfg.Engine.Workers)
	}
	if cfg.Oracle.Model != "gpt-4o" {
		t.Fatalf("expected env model override, got %q", cfg.Oracle.Model)
	}
	if cfg.Engine.SearchBudget != 90*time.Second {
		t.Fatalf("expected env budget override, got %v", cfg.Engine.SearchBudget)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "invalid port",
			mutate: func(c *Config) { c.Server.Port = 0 },
			want:   "server.port",
		},
		{
			name:   "invalid workers",
			mutate: func(c *Config) { c.Engine.Workers = 0 },
			want:   "engine.workers",
		},
		{
			name:   "overlap not below size",
			mutate: func(c *Config) { c.Batch.Overlap = c.Batch.Size },
			want:   "batch.overlap",
		},
		{
			name:   "unknown storage backend",
			mutate: func(c *Config) { c.Storage.Backend = "s3" },
			want:   "storage.backend",
		},
		{
			name:   "local backend missing dir",
			mutate: func(c *Config) { c.Storage.Backend = "local"; c.Storage.LocalDir = "" },
			want:   "storage.local_dir",
		},
		{
			name:   "pubsub missing topic",
			mutate: func(c *Config) { c.PubSub.Enabled = true; c.PubSub.ProjectID = "p"; c.PubSub.TopicID = "" },
			want:   "pubsub.project_id",
		},
		{
			name:   "headless missing max parallel",
			mutate: func(c *Config) { c.Headless.Enabled = true; c.Headless.MaxParallel = 0 },
			want:   "headless.max_parallel",
		},
		{
			name:   "auth missing api key",
			mutate: func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" },
			want:   "auth.api_key",
		},
		{
			name:   "negative quality threshold",
			mutate: func(c *Config) { c.Engine.QualityThreshold = -0.5 },
			want:   "engine.quality_threshold",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
