// Package commits fetches the ordered list of candidate commits from the
// upstream commit-list endpoint.
package commits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultURL is the upstream commit-list endpoint.
const DefaultURL = "https://triage.rust-lang.org/bors-commit-list"

// DefaultTimeout bounds the commit-list request.
const DefaultTimeout = 60 * time.Second

// ErrSourceUnavailable is returned when the commit list cannot be obtained or decoded.
var ErrSourceUnavailable = errors.New("commit list unavailable")

// listSchema describes the accepted commit-list payload.
const listSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["sha", "time"],
    "properties": {
      "sha": {"type": "string", "minLength": 1},
      "time": {"type": "string"}
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(listSchema)

// Commit is one entry of the commit list. List order is significant.
type Commit struct {
	SHA  string `json:"sha"`
	Time string `json:"time"`
}

// String implements fmt.Stringer.
func (c Commit) String() string { return c.SHA }

// Timestamp parses the commit time. Zone-less values are read as UTC.
func (c Commit) Timestamp() (time.Time, error) {
	return ParseTime(c.Time)
}

// timeLayouts are tried in order by ParseTime.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTime parses an ISO-8601 commit time.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	var firstErr error

	for _, layout := range timeLayouts {
		ts, err := time.Parse(layout, raw)
		if err == nil {
			return ts.UTC(), nil
		}

		if firstErr == nil {
			firstErr = err
		}
	}

	return time.Time{}, fmt.Errorf("parse commit time %q: %w", raw, firstErr)
}

// Client retrieves commit lists over HTTP.
type Client struct {
	url    string
	client *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a commit-list client for url. An empty url selects DefaultURL.
func NewClient(url string, timeout time.Duration, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		url: url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// URL returns the endpoint the client reads from.
func (c *Client) URL() string { return c.url }

// List fetches, validates and decodes the commit list.
func (c *Client) List(ctx context.Context) ([]Commit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrSourceUnavailable, err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrSourceUnavailable, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrSourceUnavailable, err)
	}

	return Decode(body)
}

// Decode validates payload against the commit-list schema and decodes it.
func Decode(payload []byte) ([]Commit, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrSourceUnavailable, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}

		return nil, fmt.Errorf("%w: invalid payload: %s", ErrSourceUnavailable, strings.Join(msgs, "; "))
	}

	var list []Commit

	err = json.Unmarshal(payload, &list)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrSourceUnavailable, err)
	}

	return list, nil
}
