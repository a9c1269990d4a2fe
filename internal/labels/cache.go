package labels

import "sync"

// Cache holds the last known value of every label for every ticker. A value,
// once known, is never cleared.
type Cache struct {
	names []string

	mu      sync.RWMutex
	tickers map[string]map[string]string
}

// NewCache seeds an entry for each ticker with every name unknown.
func NewCache(tickers, names []string) *Cache {
	c := &Cache{
		names:   append([]string(nil), names...),
		tickers: make(map[string]map[string]string, len(tickers)),
	}
	for _, t := range tickers {
		c.tickers[t] = make(map[string]string, len(names))
	}
	return c
}

// Observe stores the values of observed for ticker. Labels absent from
// observed keep their cached value.
func (c *Cache) Observe(ticker string, observed map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observeLocked(ticker, observed)
}

// Fill returns a copy of partial with every name of the label set present.
// Missing names take the cached value, or "" when none was ever seen.
func (c *Cache) Fill(ticker string, partial map[string]string) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fillLocked(ticker, partial)
}

// Merge observes then fills under one lock so concurrent polls of the same
// ticker cannot interleave between the two steps.
func (c *Cache) Merge(ticker string, observed map[string]string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observeLocked(ticker, observed)
	return c.fillLocked(ticker, observed)
}

func (c *Cache) observeLocked(ticker string, observed map[string]string) {
	entry, ok := c.tickers[ticker]
	if !ok {
		entry = make(map[string]string, len(c.names))
		c.tickers[ticker] = entry
	}
	for name, v := range observed {
		entry[name] = v
	}
}

func (c *Cache) fillLocked(ticker string, partial map[string]string) map[string]string {
	entry := c.tickers[ticker]
	out := make(map[string]string, len(c.names))
	for _, name := range c.names {
		if v, ok := partial[name]; ok {
			out[name] = v
			continue
		}
		out[name] = entry[name]
	}
	return out
}
