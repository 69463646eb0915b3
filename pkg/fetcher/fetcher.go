// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carwatch.
//
// carwatch is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package fetcher retrieves the current vehicle catalog from the inventory
// groups API.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/catalog"
)

const (
	// DefaultURL is the groups endpoint of the inventory API.
	DefaultURL = "https://www.ayvens.com/api2/cars/queries/groups/"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second

	// DefaultRetries is the number of retries after a transient failure.
	DefaultRetries = 2

	// DefaultMaxResponseSize bounds the payload read from the API (32 MiB).
	DefaultMaxResponseSize = 32 << 20

	// maxBodyExcerpt limits how much of an error response is kept.
	maxBodyExcerpt = 256
)

// DefaultBody is the query document sent with every request.
var DefaultBody = []byte(`{"code":"makemodel","name":"makemodel","values":[]}`)

// DefaultHeaders returns the headers the inventory API expects.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":            "application/json",
		"Content-Type":      "application/json",
		"Origin":            "https://www.ayvens.com",
		"X-Lpd-Countrycode": "NL",
		"X-Lpd-Locale":      "nl-NL",
	}
}

// DefaultParams returns the query parameters for the business used-car catalog.
func DefaultParams() url.Values {
	return url.Values{
		"limit":    {"-1"},
		"sorting":  {"ranking-asc"},
		"scope":    {"business"},
		"state":    {"zo goed als nieuw,occasion"},
		"tenantId": {"ayvens"},
	}
}

// Config holds the request definition and transport settings.
type Config struct {
	URL             string
	Method          string
	Headers         map[string]string
	Params          url.Values
	Body            []byte
	Timeout         time.Duration
	MaxResponseSize int64
	Retry           RetryConfig
	HTTPClient      *http.Client
	Logger          adapters.Logger
}

// DefaultConfig returns the configuration for the public inventory API.
func DefaultConfig() Config {
	return Config{
		URL:             DefaultURL,
		Method:          http.MethodPut,
		Headers:         DefaultHeaders(),
		Params:          DefaultParams(),
		Body:            DefaultBody,
		Timeout:         DefaultTimeout,
		MaxResponseSize: DefaultMaxResponseSize,
		Retry:           RetryConfig{MaxRetries: DefaultRetries},
	}
}

// Client fetches raw catalog payloads.
type Client struct {
	config     Config
	endpoint   string
	httpClient *http.Client
	logger     adapters.Logger
}

// New creates a Client. Unset fields fall back to DefaultConfig values.
func New(config Config) (*Client, error) {
	defaults := DefaultConfig()
	if config.URL == "" {
		return nil, ErrURLRequired
	}
	if config.Method == "" {
		config.Method = defaults.Method
	}
	if config.Headers == nil {
		config.Headers = defaults.Headers
	}
	if config.Params == nil {
		config.Params = defaults.Params
	}
	if config.Body == nil {
		config.Body = defaults.Body
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxResponseSize <= 0 {
		config.MaxResponseSize = defaults.MaxResponseSize
	}

	u, err := url.Parse(config.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid inventory url %q", config.URL)
	}
	if len(config.Params) > 0 {
		q := u.Query()
		for k, vs := range config.Params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	logger := config.Logger
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}

	return &Client{
		config:     config,
		endpoint:   u.String(),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Endpoint returns the full request URL including query parameters.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch requests the catalog and returns the raw payload. The payload is
// checked to decode as a catalog before it is returned, so callers never
// persist an error page.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()
	raw, err := retryWrapper(ctx, c.config.Retry,
		func(attempt int, wait time.Duration, err error) {
			c.logger.Warn(ctx, "Retrying inventory request",
				adapters.Field{Key: "attempt", Value: attempt},
				adapters.Field{Key: "backoff", Value: wait.String()},
				adapters.Field{Key: "error", Value: err},
			)
		},
		func() ([]byte, error) { return c.fetchOnce(ctx) },
	)
	if err != nil {
		return nil, err
	}

	entries, err := catalog.Parse(raw)
	if err != nil {
		return nil, err
	}
	c.logger.Debug(ctx, "Fetched inventory",
		adapters.Field{Key: "groups", Value: len(entries)},
		adapters.Field{Key: "bytes", Value: len(raw)},
		adapters.Field{Key: "duration", Value: time.Since(start).String()},
	)
	return raw, nil
}

func (c *Client) fetchOnce(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, c.config.Method, c.endpoint, bytes.NewReader(c.config.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrRequest, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: excerpt(body)}
	}
	if int64(len(body)) > c.config.MaxResponseSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.config.MaxResponseSize)
	}
	return body, nil
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyExcerpt {
		s = s[:maxBodyExcerpt] + "..."
	}
	return s
}
