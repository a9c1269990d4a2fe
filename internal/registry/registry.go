// Package registry owns the typed Prometheus instruments built from the
// configured metric catalog.
package registry

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"financeexporter/internal/config"
)

// recorder writes one value to the child of a vector selected by labels.
type recorder interface {
	record(labels prometheus.Labels, value float64) error
}

type counterVec struct{ *prometheus.CounterVec }

// record ignores value: every call is one increment.
func (v counterVec) record(l prometheus.Labels, _ float64) error {
	c, err := v.GetMetricWith(l)
	if err != nil {
		return err
	}
	c.Inc()
	return nil
}

type gaugeVec struct{ *prometheus.GaugeVec }

func (v gaugeVec) record(l prometheus.Labels, value float64) error {
	g, err := v.GetMetricWith(l)
	if err != nil {
		return err
	}
	g.Set(value)
	return nil
}

type histogramVec struct{ *prometheus.HistogramVec }

func (v histogramVec) record(l prometheus.Labels, value float64) error {
	o, err := v.GetMetricWith(l)
	if err != nil {
		return err
	}
	o.Observe(value)
	return nil
}

type summaryVec struct{ *prometheus.SummaryVec }

func (v summaryVec) record(l prometheus.Labels, value float64) error {
	o, err := v.GetMetricWith(l)
	if err != nil {
		return err
	}
	o.Observe(value)
	return nil
}

type instrument struct {
	kind      config.MetricType
	labels    []string
	collector prometheus.Collector
	rec       recorder
}

// Registry maps metric names to live instruments. Instruments are created
// once and never removed. All methods are safe for concurrent use.
type Registry struct {
	prefix string
	reg    *prometheus.Registry

	mu          sync.RWMutex
	instruments map[string]*instrument
}

// New returns a Registry whose instruments are named "<prefix>_<name>" and
// registered with reg. A nil reg gets a fresh prometheus.Registry.
func New(prefix string, reg *prometheus.Registry) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Registry{
		prefix:      prefix,
		reg:         reg,
		instruments: make(map[string]*instrument),
	}
}

// Gatherer exposes the underlying registry to the exposition handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// FullName is the exported name of the instrument called name.
func (r *Registry) FullName(name string) string {
	if r.prefix == "" {
		return name
	}
	return r.prefix + "_" + name
}

// Register creates the instrument called name. Registering the same name again
// with the same type and label set is a no-op. buckets only apply to
// histograms; nil selects prometheus.DefBuckets.
func (r *Registry) Register(name string, kind config.MetricType, help string, labelNames []string, buckets []float64) error {
	want := sortedCopy(labelNames)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.instruments[name]; ok {
		if existing.kind == kind && slices.Equal(existing.labels, want) {
			return nil
		}
		return &DuplicateMetricError{Name: name, Existing: existing.kind, Requested: kind}
	}

	if help == "" {
		help = name
	}
	full := r.FullName(name)

	var inst *instrument
	switch kind {
	case config.Counter:
		v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: full, Help: help}, want)
		inst = &instrument{collector: v, rec: counterVec{v}}
	case config.Gauge:
		v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: full, Help: help}, want)
		inst = &instrument{collector: v, rec: gaugeVec{v}}
	case config.Histogram:
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}
		v := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: full, Help: help, Buckets: buckets}, want)
		inst = &instrument{collector: v, rec: histogramVec{v}}
	case config.Summary:
		v := prometheus.NewSummaryVec(prometheus.SummaryOpts{Name: full, Help: help}, want)
		inst = &instrument{collector: v, rec: summaryVec{v}}
	default:
		return fmt.Errorf("metric %q: unsupported type %q", name, kind)
	}
	inst.kind = kind
	inst.labels = want

	if err := r.reg.Register(inst.collector); err != nil {
		return fmt.Errorf("registering %s: %w", full, err)
	}
	r.instruments[name] = inst
	return nil
}

// Record writes value to the instrument called name. Counters ignore value.
func (r *Registry) Record(name string, labels map[string]string, value float64) error {
	r.mu.RLock()
	inst, ok := r.instruments[name]
	r.mu.RUnlock()
	if !ok {
		return &UnknownMetricError{Name: name}
	}

	if !sameKeys(inst.labels, labels) {
		got := make([]string, 0, len(labels))
		for k := range labels {
			got = append(got, k)
		}
		sort.Strings(got)
		return &LabelMismatchError{Name: name, Want: inst.labels, Got: got}
	}

	if err := inst.rec.record(labels, value); err != nil {
		return fmt.Errorf("recording %s: %w", r.FullName(name), err)
	}
	return nil
}

// Len is the number of registered instruments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}

func sameKeys(want []string, got map[string]string) bool {
	if len(want) != len(got) {
		return false
	}
	for _, name := range want {
		if _, ok := got[name]; !ok {
			return false
		}
	}
	return true
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
