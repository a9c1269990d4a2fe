package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Plugin selects the quote provider implementation backing a source.
type Plugin string

const (
	PluginYFinance     Plugin = "yfinance"
	PluginAlphaVantage Plugin = "alphavantage"
	PluginIEXCloud     Plugin = "iexcloud"
)

// RequiresAPIKey reports whether the plugin cannot work without credentials.
func (p Plugin) RequiresAPIKey() bool {
	return p == PluginAlphaVantage || p == PluginIEXCloud
}

func (p Plugin) valid() bool {
	switch p {
	case PluginYFinance, PluginAlphaVantage, PluginIEXCloud:
		return true
	}
	return false
}

// MetricType is the instrument kind of a configured metric.
type MetricType string

const (
	Counter   MetricType = "Counter"
	Gauge     MetricType = "Gauge"
	Histogram MetricType = "Histogram"
	Summary   MetricType = "Summary"
)

func (t MetricType) valid() bool {
	switch t {
	case Counter, Gauge, Histogram, Summary:
		return true
	}
	return false
}

// Names of the instruments every exporter registers regardless of configuration.
const (
	UpdatesMetric   = "updates"
	QuoteTimeMetric = "quote_time"
)

// DefaultSourceName is used for documents in the single-source shape.
const DefaultSourceName = "default"

const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultMetricsPath  = "/metrics"
	DefaultPlugin       = PluginYFinance
	// AlphaVantage's free tier allows five requests per minute. Budgets count
	// upstream requests, and one AlphaVantage fetch makes three.
	DefaultAlphaVantageRPM = 5
)

// Config is the validated, immutable configuration of an exporter process.
type Config struct {
	Address      string
	Port         int
	MetricPrefix string
	MetricsPath  string
	MinInterval  time.Duration
	FetchTimeout time.Duration
	// Tickers is the global ticker list; sources without their own list poll these.
	Tickers []string
	// Sources are ordered by name.
	Sources []Source
}

// Source is one configured quote provider endpoint.
type Source struct {
	Name              string
	Plugin            Plugin
	APIKey            string
	Interval          time.Duration
	FetchTimeout      time.Duration
	RequestsPerMinute int
	Burst             int
	// CacheTTL reuses a fetched quote for this long. Zero disables caching.
	CacheTTL time.Duration
	Tickers  []string
	// Labels map label names to quote fields, ordered by label name.
	Labels []Label
	// Metrics are ordered by name.
	Metrics []MetricDef
}

// Label maps a label name to the quote field its value is read from.
type Label struct {
	Name  string
	Field string
}

// MetricDef describes one configured metric instrument.
type MetricDef struct {
	Name    string
	Type    MetricType
	Help    string
	Item    string
	Buckets []float64
	Source  string
}

// Addr is the listen address of the exposition server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// AllTickers returns every ticker polled by any source, in first-seen order.
func (c *Config) AllTickers() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(list []string) {
		for _, t := range list {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	add(c.Tickers)
	for _, s := range c.Sources {
		add(s.Tickers)
	}
	return out
}

// MaxFetchTimeout is the longest fetch timeout of any source.
func (c *Config) MaxFetchTimeout() time.Duration {
	longest := c.FetchTimeout
	for _, s := range c.Sources {
		longest = max(longest, s.FetchTimeout)
	}
	return longest
}

// Overrides carries command-line values that take precedence over the file.
// Zero values mean "not supplied".
type Overrides struct {
	Address     string
	Port        int
	MinInterval time.Duration
}

// ParseDuration accepts either a number of seconds ("60", "1.5") or a Go
// duration string ("30s", "5m").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Duration accepts either a number of seconds or a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("line %d: invalid duration", n.Line)
	}
	v, err := ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Set implements pflag.Value so durations given on the command line accept
// the same forms as the file.
func (d *Duration) Set(s string) error {
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) String() string { return time.Duration(*d).String() }

// Type implements pflag.Value.
func (d *Duration) Type() string { return "duration" }

type document struct {
	Port         *int                 `yaml:"port"`
	Address      *string              `yaml:"address"`
	Interval     *Duration            `yaml:"interval"`
	MinInterval  *Duration            `yaml:"min_interval"`
	FetchTimeout *Duration            `yaml:"fetch_timeout"`
	MetricPrefix string               `yaml:"metric_prefix"`
	MetricsPath  string               `yaml:"metrics_path"`
	Tickers      []string             `yaml:"tickers"`
	Sources      map[string]sourceDoc `yaml:"sources"`

	// Single-source shape.
	Plugin            string               `yaml:"plugin"`
	APIKey            string               `yaml:"api_key"`
	RequestsPerMinute int                  `yaml:"requests_per_minute"`
	Burst             int                  `yaml:"burst"`
	Labels            map[string]string    `yaml:"labels"`
	Metrics           map[string]metricDoc `yaml:"metrics"`
}

type sourceDoc struct {
	Plugin            string               `yaml:"plugin"`
	APIKey            string               `yaml:"api_key"`
	Interval          *Duration            `yaml:"interval"`
	FetchTimeout      *Duration            `yaml:"fetch_timeout"`
	RequestsPerMinute int                  `yaml:"requests_per_minute"`
	Burst             int                  `yaml:"burst"`
	CacheTTL          *Duration            `yaml:"cache_ttl"`
	Tickers           []string             `yaml:"tickers"`
	Labels            map[string]string    `yaml:"labels"`
	Metrics           map[string]metricDoc `yaml:"metrics"`
}

type metricDoc struct {
	Type    string    `yaml:"type"`
	Help    string    `yaml:"help"`
	Item    string    `yaml:"item"`
	Buckets []float64 `yaml:"buckets"`
}

// Load reads the YAML document at path, expands ${VAR} references, applies
// overrides and defaults, and validates the result. Every failure is a
// *ConfigError.
func Load(path string, ov Overrides) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("read config: %w", err)}
	}
	return Parse(b, ov)
}

// envRef matches a ${VAR} reference. A bare $ is left alone.
var envRef = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}`)

func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// Parse builds a Config from an in-memory YAML document.
func Parse(data []byte, ov Overrides) (*Config, error) {
	expanded := expandEnv(string(data))

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Err: fmt.Errorf("parse config yaml: %w", err)}
	}

	cfg, missing := doc.build(ov)
	if err := multierr.Append(missing, cfg.problems()); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return cfg, nil
}

// build maps the document onto a Config. The returned error lists required
// settings that neither a flag nor the file supplied.
func (d *document) build(ov Overrides) (*Config, error) {
	cfg := &Config{
		MetricPrefix: strings.TrimSpace(d.MetricPrefix),
		MetricsPath:  d.MetricsPath,
		FetchTimeout: DefaultFetchTimeout,
		Tickers:      trimAll(d.Tickers),
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = DefaultMetricsPath
	}

	var missing error

	// Flag first, then file.
	switch {
	case ov.Address != "":
		cfg.Address = ov.Address
	case d.Address != nil:
		cfg.Address = *d.Address
	default:
		missing = multierr.Append(missing, errors.New("address is required"))
	}
	switch {
	case ov.Port != 0:
		cfg.Port = ov.Port
	case d.Port != nil:
		cfg.Port = *d.Port
	}
	switch {
	case ov.MinInterval != 0:
		cfg.MinInterval = ov.MinInterval
	case d.MinInterval != nil:
		cfg.MinInterval = time.Duration(*d.MinInterval)
	case d.Interval != nil:
		cfg.MinInterval = time.Duration(*d.Interval)
	}
	if d.FetchTimeout != nil {
		cfg.FetchTimeout = time.Duration(*d.FetchTimeout)
	}

	sources := d.Sources
	if len(sources) == 0 && len(d.Metrics) > 0 {
		// Single-source document: the top-level keys describe one implicit source.
		sources = map[string]sourceDoc{DefaultSourceName: {
			Plugin:            d.Plugin,
			APIKey:            d.APIKey,
			RequestsPerMinute: d.RequestsPerMinute,
			Burst:             d.Burst,
			Labels:            d.Labels,
			Metrics:           d.Metrics,
		}}
	}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg.Sources = append(cfg.Sources, sources[name].build(name, cfg))
	}
	return cfg, missing
}

func (sd sourceDoc) build(name string, cfg *Config) Source {
	s := Source{
		Name:              name,
		Plugin:            Plugin(strings.ToLower(strings.TrimSpace(sd.Plugin))),
		APIKey:            sd.APIKey,
		Interval:          cfg.MinInterval,
		FetchTimeout:      cfg.FetchTimeout,
		RequestsPerMinute: sd.RequestsPerMinute,
		Burst:             sd.Burst,
		Tickers:           trimAll(sd.Tickers),
	}
	if s.Plugin == "" {
		s.Plugin = DefaultPlugin
	}
	if sd.Interval != nil {
		s.Interval = time.Duration(*sd.Interval)
	}
	if sd.FetchTimeout != nil {
		s.FetchTimeout = time.Duration(*sd.FetchTimeout)
	}
	if sd.CacheTTL != nil {
		s.CacheTTL = time.Duration(*sd.CacheTTL)
	}
	if len(s.Tickers) == 0 {
		s.Tickers = cfg.Tickers
	}
	if s.RequestsPerMinute == 0 && s.Plugin == PluginAlphaVantage {
		s.RequestsPerMinute = DefaultAlphaVantageRPM
	}
	if s.RequestsPerMinute > 0 && s.Burst <= 0 {
		s.Burst = 1
	}

	for label, field := range sd.Labels {
		s.Labels = append(s.Labels, Label{Name: label, Field: field})
	}
	sort.Slice(s.Labels, func(i, j int) bool { return s.Labels[i].Name < s.Labels[j].Name })

	for metric, md := range sd.Metrics {
		s.Metrics = append(s.Metrics, MetricDef{
			Name:    metric,
			Type:    MetricType(strings.TrimSpace(md.Type)),
			Help:    md.Help,
			Item:    md.Item,
			Buckets: md.Buckets,
			Source:  name,
		})
	}
	sort.Slice(s.Metrics, func(i, j int) bool { return s.Metrics[i].Name < s.Metrics[j].Name })
	return s
}

// ParseListen splits a listen flag given either as "port" or "host:port".
func ParseListen(v string) (host string, port int, err error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", 0, nil
	}
	p := v
	if strings.Contains(v, ":") {
		host, p, err = net.SplitHostPort(v)
		if err != nil {
			return "", 0, fmt.Errorf("invalid listen address %q: %w", v, err)
		}
	}
	port, err = strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", p)
	}
	return host, port, nil
}

// Redacted returns a copy safe for logging.
func (c *Config) Redacted() Config {
	out := *c
	out.Sources = make([]Source, len(c.Sources))
	for i, s := range c.Sources {
		if s.APIKey != "" {
			s.APIKey = "***"
		}
		out.Sources[i] = s
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
