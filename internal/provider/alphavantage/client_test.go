package alphavantage_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"financeexporter/internal/provider"
	"financeexporter/internal/provider/alphavantage"
)

const (
	globalQuoteBody = `{
  "Global Quote": {
    "01. symbol": "IBM",
    "02. open": "182.4500",
    "05. price": "183.6600",
    "06. volume": "3478945",
    "10. change percent": "0.6631%"
  }
}`
	overviewBody = `{
  "Symbol": "IBM",
  "Name": "International Business Machines",
  "Sector": "TECHNOLOGY",
  "PERatio": "22.41",
  "DividendYield": "0.0364"
}`
	earningsBody = `{
  "symbol": "IBM",
  "quarterlyEarnings": [
    {"fiscalDateEnding": "2024-03-31", "reportedEPS": "1.68", "estimatedEPS": "1.6", "surprise": "0.08", "surprisePercentage": "5"},
    {"fiscalDateEnding": "2023-12-31", "reportedEPS": "3.87", "estimatedEPS": "3.78", "surprise": "0.09", "surprisePercentage": "2.381"}
  ]
}`
)

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

// byFunction answers each API function with the mapped body.
func byFunction(t *testing.T, bodies map[string]string) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "/query", req.URL.Path)
		require.Equal(t, "test-key", req.URL.Query().Get("apikey"))
		require.Equal(t, "IBM", req.URL.Query().Get("symbol"))
		body, ok := bodies[req.URL.Query().Get("function")]
		require.Truef(t, ok, "unexpected function %q", req.URL.Query().Get("function"))
		return response(http.StatusOK, body), nil
	}
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	client, err := alphavantage.NewClient("test")
	require.NoError(t, err)
	require.NotNil(t, client)
	require.Equal(t, "alphavantage", client.Name())
}

func TestWithBaseURL(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock http client
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	baseURL := "http://localhost:8080"

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), baseURL), "expected url to start with base url, received: %s", req.URL.String())
			return response(http.StatusOK, globalQuoteBody), nil
		}).
		Times(1)

	client, err := alphavantage.NewClient("test-key", alphavantage.WithHTTPClient(httpClient), alphavantage.WithBaseURL(baseURL))
	require.NoError(t, err)

	// Act: call GetQuote
	_, err = client.GetQuote(t.Context(), "IBM")
	require.NoError(t, err)
}

func TestGetQuote_StripsKeyPrefixes(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock http client
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(byFunction(t, map[string]string{"GLOBAL_QUOTE": globalQuoteBody})).
		Times(1)

	client, err := alphavantage.NewClient("test-key", alphavantage.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act: call GetQuote
	quote, err := client.GetQuote(t.Context(), "IBM")
	require.NoError(t, err)

	// Assert: keys lose their ordinal prefix, values stay strings
	require.Equal(t, provider.Quote{
		"symbol":         "IBM",
		"open":           "182.4500",
		"price":          "183.6600",
		"volume":         "3478945",
		"change percent": "0.6631%",
	}, quote)
}

func TestFetch_MergesAllFunctions(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock http client answering all three functions
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(byFunction(t, map[string]string{
			"GLOBAL_QUOTE": globalQuoteBody,
			"OVERVIEW":     overviewBody,
			"EARNINGS":     earningsBody,
		})).
		Times(3)

	client, err := alphavantage.NewClient("test-key", alphavantage.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act: call Fetch
	quote, err := client.Fetch(t.Context(), "IBM")
	require.NoError(t, err)

	// Assert: fields of all three calls are present
	require.Equal(t, "183.6600", quote["price"])
	require.Equal(t, "22.41", quote["PERatio"])
	require.Equal(t, "TECHNOLOGY", quote["Sector"])
	require.Equal(t, "2024-03-31", quote["fiscalDateEnding"])
	require.Equal(t, "1.68", quote["reportedEPS"])

	v, ok := provider.Float(quote["PERatio"])
	require.True(t, ok)
	require.InEpsilon(t, 22.41, v, 0.0001)
}

func TestFetch_Throttled(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"Note", "Information"} {
		t.Run(key, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().
				Do(gomock.Any()).
				Return(response(http.StatusOK, fmt.Sprintf(`{%q: "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`, key)), nil).
				Times(1)

			client, err := alphavantage.NewClient("test-key", alphavantage.WithHTTPClient(httpClient))
			require.NoError(t, err)

			// Act: the first call is throttled, the rest are not attempted
			quote, err := client.Fetch(t.Context(), "IBM")

			// Assert: a fetch error wrapping ErrThrottled
			require.Nil(t, quote)
			var fe *provider.FetchError
			require.ErrorAs(t, err, &fe)
			require.Equal(t, "IBM", fe.Ticker)
			require.True(t, errors.Is(err, alphavantage.ErrThrottled))
		})
	}
}

func TestFetch_ErrorMessage(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusOK, `{"Error Message": "Invalid API call."}`), nil).
		Times(1)

	client, err := alphavantage.NewClient("test-key", alphavantage.WithHTTPClient(httpClient))
	require.NoError(t, err)

	_, err = client.Fetch(t.Context(), "IBM")
	require.ErrorContains(t, err, "GLOBAL_QUOTE: Invalid API call.")
}

func TestGetQuote_Empty(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusOK, `{"Global Quote": {}}`), nil).
		Times(1)

	client, err := alphavantage.NewClient("test-key", alphavantage.WithHTTPClient(httpClient))
	require.NoError(t, err)

	_, err = client.GetQuote(t.Context(), "NOPE")
	require.EqualError(t, err, "GLOBAL_QUOTE: no quote returned for NOPE")
}

func TestGetLatestEarnings_Missing(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusOK, `{"symbol": "IBM", "quarterlyEarnings": []}`), nil).
		Times(1)

	client, err := alphavantage.NewClient("test-key", alphavantage.WithHTTPClient(httpClient))
	require.NoError(t, err)

	_, err = client.GetLatestEarnings(t.Context(), "IBM")
	require.EqualError(t, err, "EARNINGS: no quarterly earnings for IBM")
}

func TestQuery_ErrStatusAndTransport(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	gomock.InOrder(
		httpClient.EXPECT().Do(gomock.Any()).Return(response(http.StatusBadGateway, "upstream down"), nil),
		httpClient.EXPECT().Do(gomock.Any()).Return(nil, errors.New("dial tcp: refused")),
		httpClient.EXPECT().Do(gomock.Any()).Return(response(http.StatusOK, `{"Global Quote":`), nil),
	)

	client, err := alphavantage.NewClient("test-key", alphavantage.WithHTTPClient(httpClient))
	require.NoError(t, err)

	_, err = client.GetQuote(t.Context(), "IBM")
	require.EqualError(t, err, "GLOBAL_QUOTE: unexpected status code 502: upstream down")

	_, err = client.GetQuote(t.Context(), "IBM")
	require.ErrorContains(t, err, "performing request")

	_, err = client.GetQuote(t.Context(), "IBM")
	require.EqualError(t, err, "GLOBAL_QUOTE: invalid JSON response")
}
