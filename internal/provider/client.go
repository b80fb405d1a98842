package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/trafficpeek/internal/fetcher/colly"
	"github.com/JakeFAU/trafficpeek/internal/metrics"
)

const (
	// DefaultBaseURL is the RapidAPI SimilarWeb analysis endpoint.
	DefaultBaseURL = "https://similar-web.p.rapidapi.com/get-analysis"
	// DefaultHost is sent as X-RapidAPI-Host.
	DefaultHost = "similar-web.p.rapidapi.com"

	upstreamName = "provider"
)

// ErrNoCredential is returned when Lookup is called without an API key.
var ErrNoCredential = errors.New("provider credential required")

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.StatusCode)
}

// ClientError reports a 4xx status, typically a bad or exhausted credential.
func (e *StatusError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Getter is the fetch capability used by the client.
type Getter interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// BreakerConfig tunes the circuit breaker around the provider.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// ClientConfig configures Client.
type ClientConfig struct {
	BaseURL string
	Host    string
	Breaker BreakerConfig
}

// Client looks up domain analytics from the paid provider.
type Client struct {
	cfg     ClientConfig
	getter  Getter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient builds a Client. A nil logger is replaced with a no-op logger.
func NewClient(cfg ClientConfig, getter Getter, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Breaker.ConsecutiveFailures == 0 {
		cfg.Breaker.ConsecutiveFailures = 5
	}
	if cfg.Breaker.OpenTimeout <= 0 {
		cfg.Breaker.OpenTimeout = 30 * time.Second
	}
	if cfg.Breaker.HalfOpenRequests == 0 {
		cfg.Breaker.HalfOpenRequests = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	threshold := cfg.Breaker.ConsecutiveFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        upstreamName,
		MaxRequests: cfg.Breaker.HalfOpenRequests,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var statusErr *StatusError
			return errors.As(err, &statusErr) && statusErr.ClientError()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.SetBreakerState(name, int(to))
		},
	})
	metrics.SetBreakerState(upstreamName, int(gobreaker.StateClosed))

	return &Client{cfg: cfg, getter: getter, breaker: breaker, logger: logger}
}

// Lookup fetches the raw analytics payload for domain.
func (c *Client) Lookup(ctx context.Context, domain, credential string) (map[string]any, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, ErrNoCredential
	}
	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, domain, credential)
	})
	metrics.ObserveUpstream(upstreamName, outcome(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("provider lookup %s: %w", domain, err)
	}
	payload, _ := result.(map[string]any)
	return payload, nil
}

// BreakerOpen reports whether err came from an open or saturated breaker.
func BreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (c *Client) fetch(ctx context.Context, domain, credential string) (map[string]any, error) {
	headers := http.Header{}
	headers.Set("X-RapidAPI-Key", credential)
	headers.Set("X-RapidAPI-Host", c.cfg.Host)
	headers.Set("Accept", "application/json")

	resp, err := c.getter.Fetch(ctx, collyfetcher.Request{
		URL:     c.cfg.BaseURL + "?domain=" + url.QueryEscape(domain),
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		c.logger.Debug("provider non-success status",
			zap.String("domain", domain),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(resp.Body), 256)}
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("decode provider payload: %w", err)
	}
	return payload, nil
}

func outcome(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "ok"
	case BreakerOpen(err):
		return "breaker_open"
	case errors.As(err, &statusErr):
		return "status"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
