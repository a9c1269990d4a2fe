package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"financeexporter/internal/provider"
)

// Limited wraps a provider and gates calls through a token bucket. Each Fetch
// spends N tokens, one per upstream request it makes. Waiting for tokens
// honours ctx, so the wait counts against the caller's fetch timeout.
type Limited struct {
	P provider.Provider
	L *rate.Limiter
	N int
}

// PerMinute wraps p with a limiter allowing requestsPerMinute upstream
// requests with the given burst, where one Fetch of p costs cost requests.
// The burst is raised to cost so a single Fetch can always proceed. A
// non-positive rate returns p unchanged.
func PerMinute(p provider.Provider, requestsPerMinute, burst, cost int) provider.Provider {
	if requestsPerMinute <= 0 {
		return p
	}
	if cost < 1 {
		cost = 1
	}
	if burst < cost {
		burst = cost
	}
	return &Limited{P: p, L: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst), N: cost}
}

func (l *Limited) Name() string { return l.P.Name() }

func (l *Limited) Fetch(ctx context.Context, ticker string) (provider.Quote, error) {
	if l.L != nil {
		if err := l.L.WaitN(ctx, max(l.N, 1)); err != nil {
			return nil, &provider.FetchError{Ticker: ticker, Err: fmt.Errorf("waiting for rate limit: %w", err)}
		}
	}
	return l.P.Fetch(ctx, ticker)
}
