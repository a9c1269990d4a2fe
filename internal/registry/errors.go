package registry

import (
	"fmt"
	"strings"

	"financeexporter/internal/config"
)

// DuplicateMetricError is returned when a name is registered again with a
// different type or label set.
type DuplicateMetricError struct {
	Name      string
	Existing  config.MetricType
	Requested config.MetricType
}

func (e *DuplicateMetricError) Error() string {
	if e.Existing == e.Requested {
		return fmt.Sprintf("metric %q already registered as %s with different labels", e.Name, e.Existing)
	}
	return fmt.Sprintf("metric %q already registered as %s, cannot register as %s", e.Name, e.Existing, e.Requested)
}

// UnknownMetricError is returned when recording to a name that was never registered.
type UnknownMetricError struct {
	Name string
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("metric %q is not registered", e.Name)
}

// LabelMismatchError is returned when the supplied label names differ from
// the instrument's label set.
type LabelMismatchError struct {
	Name string
	Want []string
	Got  []string
}

func (e *LabelMismatchError) Error() string {
	return fmt.Sprintf("metric %q wants labels [%s], got [%s]",
		e.Name, strings.Join(e.Want, ","), strings.Join(e.Got, ","))
}
