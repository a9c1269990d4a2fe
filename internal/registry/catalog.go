package registry

import (
	"fmt"

	"financeexporter/internal/config"
)

// RegisterCatalog creates the built-in instruments and every configured
// metric, all carrying labelNames.
func RegisterCatalog(r *Registry, sources []config.Source, labelNames []string) error {
	builtins := []struct {
		name string
		kind config.MetricType
		help string
	}{
		{config.UpdatesMetric, config.Counter, "Number of successful quote updates"},
		{config.QuoteTimeMetric, config.Gauge, "Seconds taken to fetch the last quote"},
	}
	for _, b := range builtins {
		if err := r.Register(b.name, b.kind, b.help, labelNames, nil); err != nil {
			return err
		}
	}
	for _, s := range sources {
		for _, m := range s.Metrics {
			if err := r.Register(m.Name, m.Type, m.Help, labelNames, m.Buckets); err != nil {
				return fmt.Errorf("source %s: %w", s.Name, err)
			}
		}
	}
	return nil
}
