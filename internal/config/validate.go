package config

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ConfigError reports a configuration that cannot be served. The process
// exits with status 1 when it sees one.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	errs := multierr.Errors(e.Err)
	if len(errs) <= 1 {
		return fmt.Sprintf("config: %v", e.Err)
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return "config: " + strings.Join(msgs, "; ")
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Problems returns each individual validation failure.
func (e *ConfigError) Problems() []error { return multierr.Errors(e.Err) }

// validate checks that all required fields are set and values are valid.
func (c *Config) validate() error {
	if err := c.problems(); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

func (c *Config) problems() error {
	var errs error
	add := func(err error) { errs = multierr.Append(errs, err) }

	if c.MetricPrefix == "" {
		add(errors.New("metric_prefix is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		add(fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.MinInterval <= 0 {
		add(fmt.Errorf("min_interval must be positive, got %v", c.MinInterval))
	}
	if c.FetchTimeout <= 0 {
		add(fmt.Errorf("fetch_timeout must be positive, got %v", c.FetchTimeout))
	}
	if len(c.Sources) == 0 {
		add(errors.New("no sources declared"))
	}

	owner := map[string]string{
		UpdatesMetric:   "",
		QuoteTimeMetric: "",
	}
	for _, s := range c.Sources {
		prefix := "sources." + s.Name
		if !s.Plugin.valid() {
			add(fmt.Errorf("%s.plugin %q is not one of yfinance, alphavantage, iexcloud", prefix, s.Plugin))
		}
		if s.Plugin.RequiresAPIKey() && s.APIKey == "" {
			add(fmt.Errorf("%s.api_key is required for plugin %s", prefix, s.Plugin))
		}
		if s.Interval <= 0 {
			add(fmt.Errorf("%s.interval must be positive, got %v", prefix, s.Interval))
		}
		if s.CacheTTL < 0 {
			add(fmt.Errorf("%s.cache_ttl must be >= 0", prefix))
		}
		if s.RequestsPerMinute < 0 {
			add(fmt.Errorf("%s.requests_per_minute must be >= 0", prefix))
		}
		if len(s.Tickers) == 0 {
			add(fmt.Errorf("%s has no tickers", prefix))
		}
		for _, l := range s.Labels {
			if l.Field == "" {
				add(fmt.Errorf("%s.labels.%s has no quote field", prefix, l.Name))
			}
		}
		for _, m := range s.Metrics {
			mp := prefix + ".metrics." + m.Name
			if !m.Type.valid() {
				add(fmt.Errorf("%s.type %q is not one of Counter, Gauge, Histogram, Summary", mp, m.Type))
			}
			if m.Item == "" {
				add(fmt.Errorf("%s.item is required", mp))
			}
			if len(m.Buckets) > 0 && m.Type != Histogram {
				add(fmt.Errorf("%s.buckets only applies to Histogram", mp))
			}
			if prev, taken := owner[m.Name]; taken {
				if prev == "" {
					add(fmt.Errorf("%s collides with a built-in metric", mp))
				} else {
					add(fmt.Errorf("%s is already declared by source %s", mp, prev))
				}
				continue
			}
			owner[m.Name] = s.Name
		}
	}
	return errs
}
