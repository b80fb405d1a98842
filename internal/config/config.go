// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/trafficpeek/internal/estimate"
	"github.com/JakeFAU/trafficpeek/internal/resolver"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Provider ProviderConfig `mapstructure:"provider"`
	RankList RankListConfig `mapstructure:"ranklist"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Estimate EstimateConfig `mapstructure:"estimate"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BatchMax        int           `mapstructure:"batch_max"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the shared outbound fetcher.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// ProviderConfig configures the paid analytics provider.
type ProviderConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Host    string        `mapstructure:"host"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the provider circuit breaker.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
	HalfOpenRequests    uint32        `mapstructure:"half_open_requests"`
}

// RankListConfig selects and configures the free rank source.
type RankListConfig struct {
	Source     string         `mapstructure:"source"`
	APIBaseURL string         `mapstructure:"api_base_url"`
	RPS        float64        `mapstructure:"rps"`
	Burst      int            `mapstructure:"burst"`
	Timeout    time.Duration  `mapstructure:"timeout"`
	Snapshot   SnapshotConfig `mapstructure:"snapshot"`
}

// SnapshotConfig locates the rank-list CSV snapshot.
type SnapshotConfig struct {
	Store   string `mapstructure:"store"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Object  string `mapstructure:"object"`
}

// CacheConfig selects the rank cache backend.
type CacheConfig struct {
	Backend  string              `mapstructure:"backend"`
	TTL      time.Duration       `mapstructure:"ttl"`
	Redis    RedisCacheConfig    `mapstructure:"redis"`
	Postgres PostgresCacheConfig `mapstructure:"postgres"`
}

// RedisCacheConfig holds Redis connection settings.
type RedisCacheConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// PostgresCacheConfig holds Postgres connection settings.
type PostgresCacheConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ResolverConfig controls the resolution chain.
type ResolverConfig struct {
	Stages           []string `mapstructure:"stages"`
	BatchConcurrency int      `mapstructure:"batch_concurrency"`
}

// EstimateConfig holds the rank to visits calibration.
type EstimateConfig struct {
	BaseVisits float64 `mapstructure:"base_visits"`
	Exponent   float64 `mapstructure:"exponent"`
}

// PubSubConfig holds metadata for resolution event notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRAFFICPEEK")
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
	v.SetDefault("server.request_timeout", "20s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.batch_max", 25)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.user_agent", "trafficpeek/0.1")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_body_bytes", 2<<20)
	v.SetDefault("provider.enabled", true)
	v.SetDefault("provider.base_url", "https://similar-web.p.rapidapi.com/get-analysis")
	v.SetDefault("provider.host", "similar-web.p.rapidapi.com")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.timeout", "8s")
	v.SetDefault("provider.breaker.consecutive_failures", 5)
	v.SetDefault("provider.breaker.open_timeout", "30s")
	v.SetDefault("provider.breaker.half_open_requests", 1)
	v.SetDefault("ranklist.source", "api")
	v.SetDefault("ranklist.api_base_url", "https://tranco-list.eu/api/ranks/domain/")
	v.SetDefault("ranklist.rps", 1.0)
	v.SetDefault("ranklist.burst", 1)
	v.SetDefault("ranklist.timeout", "5s")
	v.SetDefault("ranklist.snapshot.store", "local")
	v.SetDefault("ranklist.snapshot.base_dir", "data/ranklist")
	v.SetDefault("ranklist.snapshot.bucket", "")
	v.SetDefault("ranklist.snapshot.object", "top-1m.csv")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "trafficpeek:rank")
	v.SetDefault("cache.postgres.dsn", "")
	v.SetDefault("cache.postgres.table", "rank_cache")
	v.SetDefault("cache.postgres.max_conns", 4)
	v.SetDefault("resolver.stages", []string{"provider", "rank-list", "estimate"})
	v.SetDefault("resolver.batch_concurrency", 4)
	v.SetDefault("estimate.base_visits", estimate.DefaultBaseVisits)
	v.SetDefault("estimate.exponent", estimate.DefaultExponent)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "traffic-resolutions")
	v.SetDefault("tracing.service_name", "trafficpeek")
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("tracing.sample_ratio", 0.1)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.BatchMax <= 0 {
		return fmt.Errorf("server.batch_max must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be > 0")
	}
	if c.RankList.Timeout <= 0 {
		return fmt.Errorf("ranklist.timeout must be > 0")
	}
	if c.RankList.RPS < 0 {
		return fmt.Errorf("ranklist.rps must be >= 0")
	}
	switch c.RankList.Source {
	case "api", "none":
	case "snapshot":
		if err := c.RankList.Snapshot.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("ranklist.source must be one of api, snapshot, none")
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}
	if _, err := resolver.ParseStages(c.Resolver.Stages); err != nil {
		return err
	}
	if c.Resolver.BatchConcurrency <= 0 {
		return fmt.Errorf("resolver.batch_concurrency must be > 0")
	}
	if err := c.Model().Validate(); err != nil {
		return err
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	return nil
}

// Validate checks the snapshot location independently of ranklist.source.
func (s SnapshotConfig) Validate() error {
	if s.Object == "" {
		return fmt.Errorf("ranklist.snapshot.object is required")
	}
	switch s.Store {
	case "local":
		if s.BaseDir == "" {
			return fmt.Errorf("ranklist.snapshot.base_dir is required for the local store")
		}
	case "gcs":
		if s.Bucket == "" {
			return fmt.Errorf("ranklist.snapshot.bucket is required for the gcs store")
		}
	default:
		return fmt.Errorf("ranklist.snapshot.store must be local or gcs")
	}
	return nil
}

func (c CacheConfig) validate() error {
	switch c.Backend {
	case "none":
		return nil
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("cache.backend must be one of none, memory, redis, postgres")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	return nil
}

// Model returns the configured estimation model.
func (c Config) Model() estimate.Model {
	return estimate.Model{BaseVisits: c.Estimate.BaseVisits, Exponent: c.Estimate.Exponent}
}

// FetchTimeout converts the outbound HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
