package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"regexp"

	"github.com/tidwall/gjson"

	"financeexporter/internal/provider"
)

const maxBody = 1 << 20

// ErrThrottled is returned when the API answers with its request-budget notice
// instead of data.
var ErrThrottled = errors.New("api throttled")

// keyPrefix matches the ordinal prefix of GLOBAL_QUOTE keys, e.g. "05. price".
var keyPrefix = regexp.MustCompile(`^\d+\.\s+`)

// call runs one API function for symbol and returns the decoded body.
func (c *Client) call(ctx context.Context, function, symbol string) (gjson.Result, error) {
	query := maps.Clone(c.query)
	query.Set("function", function)
	query.Set("symbol", symbol)

	u := fmt.Sprintf("%s/query?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return gjson.Result{}, fmt.Errorf("%s: unexpected status code %d: %s", function, res.StatusCode, string(b))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: reading response: %w", function, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s: invalid JSON response", function)
	}

	doc := gjson.ParseBytes(body)
	if msg := doc.Get("Error Message"); msg.Exists() {
		return gjson.Result{}, fmt.Errorf("%s: %s", function, msg.String())
	}
	for _, key := range []string{"Note", "Information"} {
		if msg := doc.Get(key); msg.Exists() {
			return gjson.Result{}, fmt.Errorf("%s: %w: %s", function, ErrThrottled, msg.String())
		}
	}
	return doc, nil
}

// GetQuote returns the GLOBAL_QUOTE fields of symbol with the ordinal key
// prefixes removed, so "05. price" becomes "price".
func (c *Client) GetQuote(ctx context.Context, symbol string) (provider.Quote, error) {
	doc, err := c.call(ctx, "GLOBAL_QUOTE", symbol)
	if err != nil {
		return nil, err
	}
	gq := doc.Get("Global Quote")
	if !gq.IsObject() || len(gq.Map()) == 0 {
		return nil, fmt.Errorf("GLOBAL_QUOTE: no quote returned for %s", symbol)
	}
	out := make(provider.Quote)
	gq.ForEach(func(k, v gjson.Result) bool {
		out[keyPrefix.ReplaceAllString(k.String(), "")] = v.Value()
		return true
	})
	return out, nil
}

// GetOverview returns the company OVERVIEW fields of symbol.
func (c *Client) GetOverview(ctx context.Context, symbol string) (provider.Quote, error) {
	doc, err := c.call(ctx, "OVERVIEW", symbol)
	if err != nil {
		return nil, err
	}
	return provider.FromJSON(doc)
}

// GetLatestEarnings returns the most recent quarterly EARNINGS entry of symbol.
func (c *Client) GetLatestEarnings(ctx context.Context, symbol string) (provider.Quote, error) {
	doc, err := c.call(ctx, "EARNINGS", symbol)
	if err != nil {
		return nil, err
	}
	latest := doc.Get("quarterlyEarnings.0")
	if !latest.Exists() {
		return nil, fmt.Errorf("EARNINGS: no quarterly earnings for %s", symbol)
	}
	return provider.FromJSON(latest)
}

// RequestsPerFetch is the number of API calls one Fetch makes.
const RequestsPerFetch = 3

// Fetch implements provider.Provider. It merges the quote, the overview and
// the latest quarterly earnings; later calls win on key collisions.
func (c *Client) Fetch(ctx context.Context, ticker string) (provider.Quote, error) {
	out := make(provider.Quote)
	for _, get := range []func(context.Context, string) (provider.Quote, error){
		c.GetQuote,
		c.GetOverview,
		c.GetLatestEarnings,
	} {
		q, err := get(ctx, ticker)
		if err != nil {
			return nil, &provider.FetchError{Ticker: ticker, Err: err}
		}
		maps.Copy(out, q)
	}
	return out, nil
}
