package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"financeexporter/internal/config"
	"financeexporter/internal/httpx"
	"financeexporter/internal/labels"
	"financeexporter/internal/registry"
	"financeexporter/internal/scheduler"
	"financeexporter/internal/source"
	"financeexporter/internal/updater"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath string
	verbose    bool
	listen     string
	address    string
	interval   time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var (
		o        options
		interval config.Duration
	)
	fs := pflag.NewFlagSet("finance-exporter", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&o.configPath, "config", "f", "", "path to the YAML configuration file (required)")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log every poll and the effective configuration")
	fs.StringVarP(&o.listen, "port", "p", "", `listen port, either "port" or "ip:port"`)
	fs.StringVarP(&o.address, "address", "a", "", "listen address")
	fs.VarP(&interval, "interval", "i", `minimum scheduler resolution in seconds or as "30s", overrides min_interval`)
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.interval = time.Duration(interval)
	if o.configPath == "" {
		return o, errors.New("--config is required")
	}
	return o, nil
}

// overrides turns flags into config overrides. An address given with -a wins
// over one embedded in -p.
func (o options) overrides() (config.Overrides, error) {
	host, port, err := config.ParseListen(o.listen)
	if err != nil {
		return config.Overrides{}, err
	}
	ov := config.Overrides{Address: host, Port: port, MinInterval: o.interval}
	if o.address != "" {
		ov.Address = o.address
	}
	return ov, nil
}

func newLogger(verbose bool, w io.Writer) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

// newHTTPClient backs every source. Each fetch is bounded by its source's own
// deadline, so the client only caps the longest of them.
func newHTTPClient(cfg *config.Config) *httpx.Client {
	return httpx.New(cfg.MaxFetchTimeout())
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	opts, err := parseFlags(args, stdout)
	if err != nil {
		fmt.Fprintf(stdout, "finance-exporter: %v\n", err)
		return 1
	}

	logger := newLogger(opts.verbose, stdout)
	defer func() { _ = logger.Sync() }()

	ov, err := opts.overrides()
	if err != nil {
		logger.Error("Invalid flags", zap.Error(err))
		return 1
	}
	cfg, err := config.Load(opts.configPath, ov)
	if err != nil {
		logger.Error("Invalid configuration", zap.String("path", opts.configPath), zap.Error(err))
		return 1
	}
	if opts.verbose {
		logger.Debug("Effective configuration", zap.Any("config", cfg.Redacted()))
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg := registry.New(cfg.MetricPrefix, promReg)
	names := labels.Resolve(cfg.Sources)
	if err := registry.RegisterCatalog(reg, cfg.Sources, names); err != nil {
		logger.Error("Registering metrics", zap.Error(err))
		return 1
	}

	bound, err := source.Bind(cfg.Sources, newHTTPClient(cfg))
	if err != nil {
		logger.Error("Binding sources", zap.Error(err))
		return 1
	}

	cache := labels.NewCache(cfg.AllTickers(), names)
	proc := updater.New(reg, cache, logger)
	sched := scheduler.New(bound, proc, cfg.MinInterval, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newHandler(reg, cfg.MetricsPath),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Serving metrics", zap.String("addr", srv.Addr), zap.String("path", cfg.MetricsPath),
			zap.Int("sources", len(bound)), zap.Strings("labels", names))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Exporter stopped", zap.Error(err))
		return 1
	}
	logger.Info("Exporter stopped")
	return 0
}
