package registry

import "financeexporter/internal/config"

// Type returns the type of the instrument called name.
func (r *Registry) Type(name string) (config.MetricType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instruments[name]
	if !ok {
		return "", false
	}
	return inst.kind, true
}
