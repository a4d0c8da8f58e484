package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/jonwraymond/ragcache/resilience"
)

const maxResponseBytes = 8 << 20

// Option configures a backend client.
type Option func(*options)

type options struct {
	hc       *http.Client
	executor *resilience.Executor
}

// WithHTTPClient sets the HTTP client. The default is http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.hc = c }
}

// WithResilience runs every request through e instead of an executor built
// from the client's configured policy.
func WithResilience(e *resilience.Executor) Option {
	return func(o *options) { o.executor = e }
}

func applyOptions(policy resilience.Policy, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hc == nil {
		o.hc = http.DefaultClient
	}
	if o.executor == nil {
		o.executor = resilience.NewExecutorFromPolicy(policy)
	}
	return o
}

// httpClient speaks JSON to one backend.
type httpClient struct {
	provider string
	baseURL  string
	header   http.Header
	options
}

func newHTTPClient(provider, baseURL string, header http.Header, o options) *httpClient {
	if header == nil {
		header = make(http.Header)
	}
	return &httpClient{
		provider: provider,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		header:   header,
		options:  o,
	}
}

// call performs one guarded request. in and out may be nil.
func (c *httpClient) call(ctx context.Context, method, path string, in, out any) error {
	return c.executor.Execute(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, method, path, in, out)
	})
}

func (c *httpClient) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: marshal %s request: %w", c.provider, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: create %s request: %w", c.provider, err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s request: %w", c.provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("backend: read %s response: %w", c.provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.mapError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("backend: decode %s response: %w", c.provider, err)
	}
	return nil
}

// mapError understands both the OpenAI {"error":{"message":..}} shape and
// Chroma's {"error":"..","message":".."}.
func (c *httpClient) mapError(status int, body []byte) error {
	var parsed struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(body, &parsed); err == nil {
		var nested struct {
			Message string `json:"message"`
		}
		var flat string
		switch {
		case json.Unmarshal(parsed.Error, &nested) == nil && nested.Message != "":
			msg = nested.Message
		case parsed.Message != "":
			msg = parsed.Message
		case json.Unmarshal(parsed.Error, &flat) == nil && flat != "":
			msg = flat
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Provider: c.provider, StatusCode: status, Message: msg}
}
