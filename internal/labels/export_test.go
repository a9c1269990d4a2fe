package labels

// Get returns the cached value of one label and whether it was ever observed.
func (c *Cache) Get(ticker, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.tickers[ticker][name]
	return v, ok
}

// Known reports how many labels of ticker have a cached value.
func (c *Cache) Known(ticker string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tickers[ticker])
}
