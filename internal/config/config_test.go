package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/trafficpeek/internal/estimate"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTL != 24*time.Hour {
		t.Fatalf("expected 24h memory cache, got %+v", cfg.Cache)
	}
	if want := []string{"provider", "rank-list", "estimate"}; !reflect.DeepEqual(cfg.Resolver.Stages, want) {
		t.Fatalf("expected stages %v, got %v", want, cfg.Resolver.Stages)
	}
	if cfg.Model() != estimate.DefaultModel() {
		t.Fatalf("expected default model, got %+v", cfg.Model())
	}
	if cfg.Provider.Timeout != 8*time.Second || cfg.FetchTimeout() != 10*time.Second {
		t.Fatalf("unexpected timeouts: provider=%v fetch=%v", cfg.Provider.Timeout, cfg.FetchTimeout())
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  batch_max: 5
logging:
  development: false
  level: debug
provider:
  api_key: server-key
  timeout: 3s
  breaker:
    consecutive_failures: 2
ranklist:
  source: snapshot
  snapshot:
    store: gcs
    bucket: ranks
    object: tranco/top-1m.csv
cache:
  backend: redis
  ttl: 6h
  redis:
    addr: localhost:6379
resolver:
  stages: [rank-list, estimate]
  batch_concurrency: 8
estimate:
  base_visits: 1.0e9
  exponent: -0.8
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.BatchMax != 5 {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
	if cfg.Provider.APIKey != "server-key" || cfg.Provider.Timeout != 3*time.Second {
		t.Fatalf("expected provider overrides, got %+v", cfg.Provider)
	}
	if cfg.Provider.Breaker.ConsecutiveFailures != 2 || cfg.Provider.Breaker.OpenTimeout != 30*time.Second {
		t.Fatalf("expected breaker overrides merged with defaults, got %+v", cfg.Provider.Breaker)
	}
	if cfg.RankList.Snapshot.Bucket != "ranks" || cfg.RankList.Snapshot.Object != "tranco/top-1m.csv" {
		t.Fatalf("expected snapshot overrides, got %+v", cfg.RankList.Snapshot)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.TTL != 6*time.Hour || cfg.Cache.Redis.Addr != "localhost:6379" {
		t.Fatalf("expected cache overrides, got %+v", cfg.Cache)
	}
	if !reflect.DeepEqual(cfg.Resolver.Stages, []string{"rank-list", "estimate"}) {
		t.Fatalf("expected stage override, got %v", cfg.Resolver.Stages)
	}
	if m := cfg.Model(); m.BaseVisits != 1e9 || m.Exponent != -0.8 {
		t.Fatalf("expected model override, got %+v", m)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRAFFICPEEK_SERVER_PORT", "7070")
	t.Setenv("TRAFFICPEEK_PROVIDER_API_KEY", "env-key")
	t.Setenv("TRAFFICPEEK_CACHE_BACKEND", "none")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Fatalf("expected env api key, got %q", cfg.Provider.APIKey)
	}
	if cfg.Cache.Backend != "none" {
		t.Fatalf("expected cache disabled, got %q", cfg.Cache.Backend)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid batch max", func(c *Config) { c.Server.BatchMax = 0 }, "server.batch_max"},
		{"invalid fetch timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"invalid provider timeout", func(c *Config) { c.Provider.Timeout = 0 }, "provider.timeout"},
		{"unknown rank source", func(c *Config) { c.RankList.Source = "alexa" }, "ranklist.source"},
		{"negative rps", func(c *Config) { c.RankList.RPS = -1 }, "ranklist.rps"},
		{"snapshot without bucket", func(c *Config) {
			c.RankList.Source = "snapshot"
			c.RankList.Snapshot.Store = "gcs"
		}, "ranklist.snapshot.bucket"},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, "cache.redis.addr"},
		{"postgres without dsn", func(c *Config) { c.Cache.Backend = "postgres" }, "cache.postgres.dsn"},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"empty stages", func(c *Config) { c.Resolver.Stages = nil }, "resolver.stages"},
		{"unknown stage", func(c *Config) { c.Resolver.Stages = []string{"alexa"} }, "resolver.stages"},
		{"zero batch concurrency", func(c *Config) { c.Resolver.BatchConcurrency = 0 }, "resolver.batch_concurrency"},
		{"non-negative exponent", func(c *Config) { c.Estimate.Exponent = 0.5 }, "estimate.exponent"},
		{"pubsub without project", func(c *Config) { c.PubSub.Enabled = true }, "pubsub.project_id"},
		{"sample ratio out of range", func(c *Config) { c.Tracing.SampleRatio = 2 }, "tracing.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Resolver.Stages = append([]string(nil), base.Resolver.Stages...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
