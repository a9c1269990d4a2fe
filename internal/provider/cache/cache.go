// Package cache reuses recent quotes so a source can be polled more often
// than its upstream allows.
package cache

import (
	"context"
	"maps"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"financeexporter/internal/provider"
)

type entry struct {
	expiresAt time.Time
	quote     provider.Quote
}

// Provider caches quotes per ticker for TTL. Failed fetches are not cached.
type Provider struct {
	P     provider.Provider
	TTL   time.Duration
	Clock clock.PassiveClock

	mu    sync.RWMutex
	items map[string]entry
}

// New wraps p with a TTL cache. A non-positive ttl returns p unchanged.
func New(p provider.Provider, ttl time.Duration) provider.Provider {
	if ttl <= 0 {
		return p
	}
	return &Provider{P: p, TTL: ttl, Clock: clock.RealClock{}}
}

func (c *Provider) Name() string { return c.P.Name() }

// Fetch returns a copy of the cached quote for ticker while it is fresh and
// asks the wrapped provider otherwise.
func (c *Provider) Fetch(ctx context.Context, ticker string) (provider.Quote, error) {
	now := c.Clock.Now()

	c.mu.RLock()
	e, ok := c.items[ticker]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		return maps.Clone(e.quote), nil
	}

	q, err := c.P.Fetch(ctx, ticker)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.items == nil {
		c.items = make(map[string]entry)
	}
	c.items[ticker] = entry{expiresAt: now.Add(c.TTL), quote: maps.Clone(q)}
	c.mu.Unlock()
	return q, nil
}

// Len reports how many tickers have a cached quote, fresh or not.
func (c *Provider) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
