// Command quote fetches quotes once and prints them as JSON. It is handy for
// finding the field names to use in an exporter configuration.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"financeexporter/internal/config"
	"financeexporter/internal/httpx"
	"financeexporter/internal/provider"
	"financeexporter/internal/source"
)

type options struct {
	plugin      string
	apiKey      string
	timeout     time.Duration
	concurrency int
	tickers     []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "quote: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		logger.Error("Invalid arguments", zap.Error(err))
		os.Exit(2)
	}

	p, err := source.NewProvider(config.Plugin(opts.plugin), opts.apiKey, httpx.New(opts.timeout))
	if err != nil {
		logger.Error("Creating provider", zap.Error(err))
		os.Exit(1)
	}
	if err := fetchAll(ctx, p, opts, os.Stdout, logger); err != nil {
		logger.Error("Fetching quotes", zap.Error(err))
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var o options
	fs := pflag.NewFlagSet("quote", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.plugin, "plugin", string(config.DefaultPlugin), "provider plugin: yfinance, alphavantage or iexcloud")
	fs.StringVar(&o.apiKey, "api-key", os.Getenv("FINANCE_API_KEY"), "provider credentials (default $FINANCE_API_KEY)")
	fs.DurationVar(&o.timeout, "timeout", config.DefaultFetchTimeout, "per-request timeout")
	fs.IntVarP(&o.concurrency, "concurrency", "c", 4, "maximum parallel requests")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.tickers = fs.Args()
	if len(o.tickers) == 0 {
		return o, errors.New("at least one ticker is required")
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	return o, nil
}

// fetchAll fetches every ticker and writes the quotes keyed by ticker. Failed
// tickers are logged and left out; it errors only when nothing succeeded.
func fetchAll(ctx context.Context, p provider.Provider, o options, w io.Writer, logger *zap.Logger) error {
	var (
		mu     sync.Mutex
		quotes = make(map[string]provider.Quote, len(o.tickers))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, ticker := range o.tickers {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, o.timeout)
			defer cancel()
			q, err := p.Fetch(fctx, ticker)
			if err != nil {
				logger.Warn("Failed to fetch quote", zap.String("ticker", ticker), zap.Error(err))
				return nil
			}
			mu.Lock()
			quotes[ticker] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(quotes) == 0 {
		return fmt.Errorf("no quotes received for %d tickers", len(o.tickers))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(quotes)
}
