// Package memory provides an in-process rank cache for single-instance
// deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/trafficpeek/internal/clock"
	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

type entry struct {
	rank      int
	expiresAt time.Time
}

// RankCache keeps ranks for a fixed TTL.
type RankCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   traffic.Clock
	entries map[string]entry
}

// NewRankCache constructs a RankCache. A nil clock uses the system clock.
func NewRankCache(ttl time.Duration, clk traffic.Clock) *RankCache {
	if clk == nil {
		clk = clock.System{}
	}
	return &RankCache{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[string]entry),
	}
}

// GetRank returns a cached rank that has not expired.
func (c *RankCache) GetRank(_ context.Context, domain string) (int, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[domain]
	c.mu.RUnlock()
	if !ok {
		return 0, false, nil
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[domain]; ok && cur == e {
			delete(c.entries, domain)
		}
		c.mu.Unlock()
		return 0, false, nil
	}
	return e.rank, true, nil
}

// SetRank stores rank for domain.
func (c *RankCache) SetRank(_ context.Context, domain string, rank int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[domain] = entry{rank: rank, expiresAt: c.clock.Now().Add(c.ttl)}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *RankCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
