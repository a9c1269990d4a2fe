package yfinance_test

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"financeexporter/internal/provider/yfinance"
)

const emptyResult = `{"quoteResponse":{"result":[{"symbol":"AAPL"}],"error":null}}`

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	// Assert: a client needs no key.
	client, err := yfinance.NewClient()
	require.NoErrorf(t, err, "unexpected error: %v", err)
	require.NotNilf(t, client, "unexpected nil client")
	require.Equal(t, "yfinance", client.Name())
}

func TestWithBaseURL(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Arrange: define a base url
	baseURL := "http://localhost:8080"

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), baseURL), "expected url to start with base url, received: %s", req.URL.String())
			return okResponse(emptyResult), nil
		}).
		Times(1)

	// Arrange: create a new client with a custom base URL.
	client, err := yfinance.NewClient(yfinance.WithHTTPClient(httpClient), yfinance.WithBaseURL(baseURL))
	require.NoError(t, err)

	// Act: call GetQuote
	_, err = client.GetQuote(t.Context(), "AAPL")
	require.NoError(t, err)
}

func TestWithHeader(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "test-agent", req.Header.Get("User-Agent"))
			require.Equal(t, "1", req.Header.Get("X-Per-Call"))
			return okResponse(emptyResult), nil
		}).
		Times(1)

	// Arrange: create a new client with a default header.
	client, err := yfinance.NewClient(
		yfinance.WithHTTPClient(httpClient),
		yfinance.WithHeader(http.Header{"User-Agent": []string{"test-agent"}}),
	)
	require.NoError(t, err)

	// Act: call GetQuote with an extra per-call header
	_, err = client.GetQuote(t.Context(), "AAPL", yfinance.WithHeader(http.Header{"X-Per-Call": []string{"1"}}))
	require.NoError(t, err)
}

func TestWithQuery(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "US", req.URL.Query().Get("region"))
			require.Equal(t, "AAPL", req.URL.Query().Get("symbols"))
			return okResponse(emptyResult), nil
		}).
		Times(1)

	// Arrange: create a new client with a default query parameter.
	client, err := yfinance.NewClient(
		yfinance.WithHTTPClient(httpClient),
		yfinance.WithQuery(url.Values{"region": []string{"US"}}),
	)
	require.NoError(t, err)

	// Act: call GetQuote
	_, err = client.GetQuote(t.Context(), "AAPL")
	require.NoError(t, err)
}
