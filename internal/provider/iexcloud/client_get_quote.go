package iexcloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"financeexporter/internal/provider"
)

const maxBody = 1 << 20

// GetQuote retrieves /stable/stock/{symbol}/quote. Field names are IEX's
// keys such as latestPrice, peRatio or marketCap.
func (c *Client) GetQuote(ctx context.Context, symbol string) (provider.Quote, error) {
	u := fmt.Sprintf("%s/stable/stock/%s/quote?%s", c.baseURL, url.PathEscape(strings.ToLower(symbol)), c.query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusNotFound:
		return nil, fmt.Errorf("unknown symbol %s", symbol)

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("unauthorized")

	case http.StatusPaymentRequired:
		return nil, fmt.Errorf("message quota exceeded")

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
	return provider.FromJSON(gjson.ParseBytes(body))
}

// Fetch implements provider.Provider.
func (c *Client) Fetch(ctx context.Context, ticker string) (provider.Quote, error) {
	q, err := c.GetQuote(ctx, ticker)
	if err != nil {
		return nil, &provider.FetchError{Ticker: ticker, Err: err}
	}
	return q, nil
}
