package yfinance

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"financeexporter/internal/provider"
)

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// GetQuote retrieves the quote of one symbol. Field names are Yahoo's raw keys
// such as regularMarketPrice or trailingPE.
func (c *Client) GetQuote(ctx context.Context, symbol string, opts ...ClientOption) (provider.Quote, error) {
	var override = &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
		query:      maps.Clone(c.query),
	}
	for _, opt := range opts {
		opt(override)
	}

	query := maps.Clone(override.query)
	if query == nil {
		query = url.Values{}
	}
	query.Set("symbols", symbol)

	u := fmt.Sprintf("%s/v7/finance/quote?%s", override.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header

	res, err := override.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusNotFound:
		return nil, fmt.Errorf("symbol %s not found", symbol)

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("unauthorized")

	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited")

	default:
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decoding quote response: invalid JSON")
	}

	// {
	//   "quoteResponse": {
	//     "result": [{"symbol": "AAPL", "regularMarketPrice": 150.25, ...}],
	//     "error": null
	//   }
	// }
	doc := gjson.ParseBytes(body)
	if e := doc.Get("quoteResponse.error"); e.Exists() && e.Type != gjson.Null {
		return nil, fmt.Errorf("api error: %s", e.Get("description").String())
	}
	result := doc.Get("quoteResponse.result.0")
	if !result.Exists() {
		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}
	return provider.FromJSON(result)
}

// Fetch implements provider.Provider.
func (c *Client) Fetch(ctx context.Context, ticker string) (provider.Quote, error) {
	q, err := c.GetQuote(ctx, ticker)
	if err != nil {
		return nil, &provider.FetchError{Ticker: ticker, Err: err}
	}
	return q, nil
}
