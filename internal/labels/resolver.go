// Package labels computes the label set carried by every exported instrument
// and remembers the last value seen for each label of each ticker.
package labels

import (
	"fmt"
	"sort"
	"strconv"

	"financeexporter/internal/config"
)

// Default label names attached to every sample.
const (
	Plugin = "plugin"
	Source = "source"
	Ticker = "ticker"
)

// Resolve returns the label names shared by all instruments: the union of
// every source's declared labels and the defaults, sorted.
func Resolve(sources []config.Source) []string {
	set := map[string]struct{}{Plugin: {}, Source: {}, Ticker: {}}
	for _, s := range sources {
		for _, l := range s.Labels {
			set[l.Name] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Defaults returns the fixed labels for one poll of ticker by source.
func Defaults(src config.Source, ticker string) map[string]string {
	return map[string]string{
		Plugin: string(src.Plugin),
		Source: src.Name,
		Ticker: ticker,
	}
}

// Observed extracts the declared labels of src from quote. Fields missing from
// the quote, or holding null, are left out. A declared label named like a
// default is ignored; the default value wins.
func Observed(src config.Source, quote map[string]any) map[string]string {
	out := make(map[string]string, len(src.Labels))
	for _, l := range src.Labels {
		if isDefault(l.Name) {
			continue
		}
		if v, ok := FormatValue(quote[l.Field]); ok {
			out[l.Name] = v
		}
	}
	return out
}

func isDefault(name string) bool {
	return name == Plugin || name == Source || name == Ticker
}

// FormatValue renders a scalar quote field as a label value. It reports false
// for null and for values that have no sensible label rendering.
func FormatValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	case fmt.Stringer:
		return x.String(), true
	case map[string]any, []any:
		return "", false
	}
	return fmt.Sprint(v), true
}
