// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/trafficpeek/internal/config"
	collyfetcher "github.com/JakeFAU/trafficpeek/internal/fetcher/colly"
	"github.com/JakeFAU/trafficpeek/internal/policy/ratelimit"
	"github.com/JakeFAU/trafficpeek/internal/provider"
	"github.com/JakeFAU/trafficpeek/internal/publisher/pubsub"
	"github.com/JakeFAU/trafficpeek/internal/ranklist"
	"github.com/JakeFAU/trafficpeek/internal/resolver"
	"github.com/JakeFAU/trafficpeek/internal/storage/gcs"
	"github.com/JakeFAU/trafficpeek/internal/storage/local"
	"github.com/JakeFAU/trafficpeek/internal/storage/memory"
	"github.com/JakeFAU/trafficpeek/internal/storage/postgres"
	"github.com/JakeFAU/trafficpeek/internal/storage/redis"
	"github.com/JakeFAU/trafficpeek/internal/telemetry"
	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

// Version is reported in traces and the health endpoint.
var Version = "dev"

type closer struct {
	name string
	fn   func(context.Context) error
}

// SnapshotStore reads and writes rank-list snapshot objects.
type SnapshotStore interface {
	ranklist.ObjectSource
	PutObject(ctx context.Context, name string, data io.Reader) (string, error)
}

// App holds the shared, long-lived services for the process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	resolver *resolver.Resolver

	mu      sync.Mutex
	closers []closer
	closed  bool
}

// New wires every service from cfg. On failure, anything already opened is
// closed before returning.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Warn("cleanup after failed init", zap.Error(closeErr))
		}
		return nil, err
	}
	logger.Info("application services initialized",
		zap.Strings("stages", cfg.Resolver.Stages),
		zap.String("ranklist", cfg.RankList.Source),
		zap.String("cache", cfg.Cache.Backend),
	)
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Tracing.ServiceName,
		Version:     Version,
		ProjectID:   cfg.Tracing.ProjectID,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.onClose("tracer", tp.Shutdown)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})

	var providerSource traffic.ProviderSource
	if cfg.Provider.Enabled {
		providerSource = provider.NewClient(provider.ClientConfig{
			BaseURL: cfg.Provider.BaseURL,
			Host:    cfg.Provider.Host,
			Breaker: provider.BreakerConfig{
				ConsecutiveFailures: cfg.Provider.Breaker.ConsecutiveFailures,
				OpenTimeout:         cfg.Provider.Breaker.OpenTimeout,
				HalfOpenRequests:    cfg.Provider.Breaker.HalfOpenRequests,
			},
		}, fetcher, a.logger.Named("provider"))
	}

	ranks, err := a.rankSource(ctx, fetcher)
	if err != nil {
		return err
	}
	cache, err := a.rankCache(ctx)
	if err != nil {
		return err
	}
	publisher, err := a.publisher(ctx)
	if err != nil {
		return err
	}

	stages, err := resolver.ParseStages(cfg.Resolver.Stages)
	if err != nil {
		return err
	}
	a.resolver = resolver.New(providerSource, ranks, cache, publisher, cfg.Model(), nil, resolver.Config{
		Stages:            stages,
		ProviderTimeout:   cfg.Provider.Timeout,
		RankListTimeout:   cfg.RankList.Timeout,
		DefaultCredential: cfg.Provider.APIKey,
		BatchConcurrency:  cfg.Resolver.BatchConcurrency,
		EventsTopic:       eventsTopic(cfg),
	}, a.logger.Named("resolver"))
	return nil
}

func (a *App) rankSource(ctx context.Context, fetcher *collyfetcher.Fetcher) (traffic.RankSource, error) {
	cfg := a.cfg.RankList
	switch cfg.Source {
	case "api":
		limiter := ratelimit.New(ratelimit.Config{RPS: cfg.RPS, Burst: cfg.Burst})
		return ranklist.NewAPIClient(cfg.APIBaseURL, fetcher, limiter, a.logger.Named("ranklist")), nil
	case "snapshot":
		store, err := a.SnapshotStore(ctx)
		if err != nil {
			return nil, err
		}
		snap, err := ranklist.LoadSnapshot(ctx, store, cfg.Snapshot.Object)
		if err != nil {
			return nil, fmt.Errorf("load rank list snapshot: %w", err)
		}
		a.logger.Info("rank list snapshot loaded",
			zap.String("object", cfg.Snapshot.Object),
			zap.Int("domains", snap.Len()),
		)
		return snap, nil
	default:
		return nil, nil
	}
}

// SnapshotStore opens the configured snapshot store. A GCS client opened
// here is released by Close.
func (a *App) SnapshotStore(ctx context.Context) (SnapshotStore, error) {
	store, release, err := OpenSnapshotStore(ctx, a.cfg.RankList.Snapshot)
	if err != nil {
		return nil, err
	}
	a.onClose("snapshot-store", func(context.Context) error { return release() })
	return store, nil
}

// OpenSnapshotStore opens the store named by cfg without building the rest
// of the application. The returned func releases any client it opened.
func OpenSnapshotStore(ctx context.Context, cfg config.SnapshotConfig) (SnapshotStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create GCS client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return store, client.Close, nil
	default:
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	}
}

func (a *App) rankCache(ctx context.Context) (traffic.RankCache, error) {
	cfg := a.cfg.Cache
	switch cfg.Backend {
	case "memory":
		return memory.NewRankCache(cfg.TTL, nil), nil
	case "redis":
		cache, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		a.onClose("redis", func(context.Context) error { return cache.Close() })
		return cache, nil
	case "postgres":
		cache, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			TTL:      cfg.TTL,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres cache: %w", err)
		}
		a.onClose("postgres", func(context.Context) error { cache.Close(); return nil })
		if err := cache.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return cache, nil
	default:
		return nil, nil
	}
}

func (a *App) publisher(ctx context.Context) (traffic.Publisher, error) {
	cfg := a.cfg.PubSub
	if !cfg.Enabled {
		return nil, nil
	}
	pub, err := pubsub.New(ctx, cfg.ProjectID, cfg.TopicName, a.logger.Named("pubsub"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pubsub: %w", err)
	}
	a.onClose("pubsub", func(context.Context) error { return pub.Close() })
	return pub, nil
}

func eventsTopic(cfg config.Config) string {
	if !cfg.PubSub.Enabled {
		return ""
	}
	return cfg.PubSub.TopicName
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Resolver returns the wired resolution chain.
func (a *App) Resolver() *resolver.Resolver {
	return a.resolver
}

// Ready reports whether the container can serve traffic.
func (a *App) Ready(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("application is shutting down")
	}
	if a.resolver == nil {
		return errors.New("resolver is not initialized")
	}
	return nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases services in reverse order of creation. It is safe to call
// more than once.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}
