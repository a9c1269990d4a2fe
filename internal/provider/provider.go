package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

// Quote is the raw field/value mapping returned by one provider call for one
// ticker. Values are whatever the provider's JSON held: float64, string, bool,
// nil, or nested maps and slices.
type Quote map[string]any

// Provider fetches quotes for a single ticker.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, ticker string) (Quote, error)
}

// FetchError reports a failed provider call for one ticker.
type FetchError struct {
	Ticker string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Ticker, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FromJSON converts a JSON object into a Quote.
func FromJSON(r gjson.Result) (Quote, error) {
	if !r.IsObject() {
		return nil, fmt.Errorf("expected a JSON object, got %s", r.Type)
	}
	m, ok := r.Value().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decoding quote object")
	}
	return Quote(m), nil
}

// Float coerces a quote value into a sample value. Numeric strings are
// accepted since some providers encode every field as a string. Booleans map
// to 1 and 0. It reports false for anything else, including "None" and NaN.
func Float(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(x), "%")
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Coalesced collapses concurrent fetches of the same ticker into one call of
// the wrapped provider. Sources sharing a plugin and credentials share one
// Coalesced so overlapping cycles do not duplicate upstream requests.
type Coalesced struct {
	P  Provider
	sf singleflight.Group
}

// Coalesce wraps p.
func Coalesce(p Provider) *Coalesced { return &Coalesced{P: p} }

func (c *Coalesced) Name() string { return c.P.Name() }

func (c *Coalesced) Fetch(ctx context.Context, ticker string) (Quote, error) {
	v, err, _ := c.sf.Do(ticker, func() (any, error) {
		return c.P.Fetch(ctx, ticker)
	})
	if err != nil {
		return nil, err
	}
	// Callers may hold the same map; hand each one its own copy.
	q, _ := v.(Quote)
	out := make(Quote, len(q))
	for k, val := range q {
		out[k] = val
	}
	return out, nil
}
