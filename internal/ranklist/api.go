// Package ranklist implements rank sources backed by the free Tranco list:
// a per-domain API lookup and an in-memory snapshot of the published CSV.
package ranklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/trafficpeek/internal/fetcher/colly"
	"github.com/JakeFAU/trafficpeek/internal/metrics"
	"github.com/JakeFAU/trafficpeek/internal/policy/ratelimit"
	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

// DefaultAPIBaseURL is the Tranco per-domain rank endpoint prefix.
const DefaultAPIBaseURL = "https://tranco-list.eu/api/ranks/domain/"

const upstreamName = "ranklist"

// Getter is the fetch capability used by APIClient.
type Getter interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Pacer throttles outbound requests per upstream.
type Pacer interface {
	Wait(ctx context.Context, key string) error
}

type rankEntry struct {
	Date string `json:"date"`
	Rank int    `json:"rank"`
}

type apiResponse struct {
	Domain string      `json:"domain"`
	Ranks  []rankEntry `json:"ranks"`
}

// APIClient asks the Tranco API for a domain's most recent rank.
type APIClient struct {
	baseURL string
	getter  Getter
	pacer   Pacer
	logger  *zap.Logger
}

// NewAPIClient builds an APIClient. pacer may be nil.
func NewAPIClient(baseURL string, getter Getter, pacer Pacer, logger *zap.Logger) *APIClient {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIClient{baseURL: baseURL, getter: getter, pacer: pacer, logger: logger}
}

// Rank returns the latest listed rank for domain, or traffic.ErrNotListed.
func (c *APIClient) Rank(ctx context.Context, domain string) (int, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, upstreamName); err != nil {
			return 0, err
		}
	}

	start := time.Now()
	resp, err := c.getter.Fetch(ctx, collyfetcher.Request{URL: c.baseURL + url.PathEscape(domain)})
	if err != nil {
		metrics.ObserveUpstream(upstreamName, "error", time.Since(start))
		return 0, fmt.Errorf("rank list lookup %s: %w", domain, err)
	}
	if !resp.OK() {
		metrics.ObserveUpstream(upstreamName, "status", time.Since(start))
		return 0, &StatusError{StatusCode: resp.StatusCode}
	}
	metrics.ObserveUpstream(upstreamName, "ok", time.Since(start))

	var body apiResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return 0, fmt.Errorf("decode rank list response: %w", err)
	}
	rank, ok := latest(body.Ranks)
	if !ok {
		c.logger.Debug("domain not in rank list", zap.String("domain", domain))
		return 0, traffic.ErrNotListed
	}
	return rank, nil
}

// latest picks the rank with the greatest date, ignoring non-positive ranks.
func latest(entries []rankEntry) (int, bool) {
	var (
		best  rankEntry
		found bool
	)
	for _, e := range entries {
		if e.Rank <= 0 {
			continue
		}
		if !found || e.Date > best.Date {
			best, found = e, true
		}
	}
	return best.Rank, found
}

// StatusError is a non-2xx answer from the rank-list API.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rank list returned status %d", e.StatusCode)
}

// IsStatus reports whether err is a rank-list StatusError.
func IsStatus(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}

var _ Pacer = (*ratelimit.Limiter)(nil)
