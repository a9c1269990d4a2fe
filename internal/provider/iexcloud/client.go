// Package iexcloud fetches quotes from the IEX Cloud stock API.
package iexcloud

import (
	"net/http"
	"net/url"
)

const baseURL = "https://cloud.iexapis.com"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=iexcloud_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the IEX Cloud API.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	header     http.Header
	query      url.Values
}

// ClientOption is a configuration option for the IEX Cloud client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API, e.g. the sandbox host.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a new IEX Cloud client authenticated with token.
func NewClient(token string, options ...ClientOption) (*Client, error) {
	var client = &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	if token != "" {
		client.query.Add("token", token)
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

// Name identifies the plugin.
func (c *Client) Name() string { return "iexcloud" }
