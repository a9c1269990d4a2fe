// Package updater turns one provider quote into metric samples.
package updater

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"financeexporter/internal/config"
	"financeexporter/internal/labels"
	"financeexporter/internal/provider"
	"financeexporter/internal/source"
)

//go:generate mockgen -package=updater_test -destination=mock_provider_test.go financeexporter/internal/provider Provider

// Recorder writes samples to named instruments.
type Recorder interface {
	Record(name string, labels map[string]string, value float64) error
}

// Processor fetches quotes and records them. It is safe for concurrent use
// as long as the same (source, ticker) pair is not updated concurrently.
type Processor struct {
	rec    Recorder
	cache  *labels.Cache
	logger *zap.Logger
	clock  clock.PassiveClock
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock sets the clock used to time fetches.
func WithClock(c clock.PassiveClock) Option {
	return func(p *Processor) { p.clock = c }
}

// New returns a Processor writing to rec and cache.
func New(rec Recorder, cache *labels.Cache, logger *zap.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{rec: rec, cache: cache, logger: logger, clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cycle updates every ticker of src in configured order. It returns the
// number of tickers updated successfully.
func (p *Processor) Cycle(ctx context.Context, src source.Bound) int {
	log := p.logger.With(
		zap.String("cycle", uuid.NewString()),
		zap.String("source", src.Name),
		zap.String("plugin", string(src.Plugin)),
	)
	start := p.clock.Now()
	ok := 0
	for i, ticker := range src.Tickers {
		if ctx.Err() != nil {
			log.Debug("Cycle canceled", zap.Int("remaining", len(src.Tickers)-i))
			break
		}
		if p.update(ctx, log, src, ticker) == nil {
			ok++
		}
	}
	log.Debug("Cycle finished",
		zap.Int("tickers", len(src.Tickers)),
		zap.Int("updated", ok),
		zap.Duration("took", p.clock.Since(start)))
	return ok
}

// update fetches one ticker of src and records its metrics. A failed fetch is
// logged and returned; nothing is written in that case.
func (p *Processor) update(ctx context.Context, log *zap.Logger, src source.Bound, ticker string) error {
	log = log.With(zap.String("ticker", ticker))
	log.Debug("Updating ticker")

	start := p.clock.Now()
	quote, err := p.fetch(ctx, src, ticker)
	if err != nil {
		log.Warn("Failed to fetch quote", zap.Error(err))
		return err
	}
	duration := p.clock.Since(start)

	info := labels.Defaults(src.Source, ticker)
	maps.Copy(info, labels.Observed(src.Source, quote))
	info = p.cache.Merge(ticker, info)

	if err := p.rec.Record(config.UpdatesMetric, info, 1); err != nil {
		log.Error("Failed to record metric", zap.String("metric", config.UpdatesMetric), zap.Error(err))
	}
	if err := p.rec.Record(config.QuoteTimeMetric, info, duration.Seconds()); err != nil {
		log.Error("Failed to record metric", zap.String("metric", config.QuoteTimeMetric), zap.Error(err))
	}

	for _, m := range src.Metrics {
		raw, ok := quote[m.Item]
		if !ok || raw == nil {
			log.Debug("Quote has no value for metric", zap.String("metric", m.Name), zap.String("item", m.Item))
			continue
		}
		// Counters count present values whatever they hold.
		v, ok := 1.0, true
		if m.Type != config.Counter {
			v, ok = provider.Float(raw)
		}
		if !ok {
			log.Debug("Quote value is not numeric", zap.String("metric", m.Name), zap.String("item", m.Item), zap.Any("value", raw))
			continue
		}
		if err := p.rec.Record(m.Name, info, v); err != nil {
			log.Error("Failed to record metric", zap.String("metric", m.Name), zap.Error(err))
		}
	}

	log.Debug("Updated ticker", zap.Duration("took", duration))
	return nil
}

func (p *Processor) fetch(ctx context.Context, src source.Bound, ticker string) (provider.Quote, error) {
	if src.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, src.FetchTimeout)
		defer cancel()
	}

	// The provider runs on its own goroutine so one that ignores ctx still
	// cannot hold up the cycle past the deadline.
	type result struct {
		quote provider.Quote
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		q, err := src.Provider.Fetch(ctx, ticker)
		ch <- result{q, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r.err = fmt.Errorf("abandoned: %w", ctx.Err())
	}
	if r.err != nil {
		var fe *provider.FetchError
		if !errors.As(r.err, &fe) {
			r.err = &provider.FetchError{Ticker: ticker, Err: r.err}
		}
		return nil, r.err
	}
	return r.quote, nil
}
