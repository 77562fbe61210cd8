// Package objectcache reads and writes cached table partitions through the
// cache gateway or directly against Redis.
package objectcache

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/source-matcher/internal/fetcher"
	"github.com/sells-group/source-matcher/internal/resilience"
)

// ServiceName identifies the cache in breakers, metrics and errors.
const ServiceName = "cache"

// ErrNotStored is returned when the gateway accepts an upload but reports a
// non-success status.
var ErrNotStored = eris.New("objectcache: partition not stored")

// Client fetches and stores serialized partitions.
type Client interface {
	// Fetch returns the blob stored under key.
	Fetch(ctx context.Context, key string) ([]byte, error)

	// Store uploads blob under name and returns the key it is readable by.
	Store(ctx context.Context, name string, blob []byte) (string, error)
}

// Option configures the HTTP client.
type Option func(*httpClient)

// WithBaseURL overrides the fetch endpoint.
func WithBaseURL(fetchURL string) Option {
	return func(c *httpClient) {
		c.fetchURL = fetchURL
	}
}

// WithStoreURL overrides the upload endpoint.
func WithStoreURL(storeURL string) Option {
	return func(c *httpClient) {
		c.storeURL = storeURL
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.opts.Client = hc
	}
}

// WithBreaker guards calls with cb.
func WithBreaker(cb *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.opts.Breaker = cb
	}
}

// WithLimiter limits calls to rps requests per second.
func WithLimiter(rps float64) Option {
	return func(c *httpClient) {
		c.opts.RateLimit = rps
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.opts.Timeout = d
	}
}

type httpClient struct {
	fetchURL string
	storeURL string
	opts     fetcher.HTTPOptions
	caller   fetcher.Caller
}

// NewClient creates a cache gateway client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		opts: fetcher.HTTPOptions{Service: ServiceName},
	}
	for _, o := range opts {
		o(c)
	}
	c.caller = fetcher.NewHTTPCaller(c.opts)
	return c
}

// quoteKey escapes every reserved character, spaces as %20.
func quoteKey(key string) string {
	return strings.ReplaceAll(url.QueryEscape(key), "+", "%20")
}

func (c *httpClient) Fetch(ctx context.Context, key string) ([]byte, error) {
	q := url.Values{"key": {quoteKey(key)}}
	return c.caller.Do(ctx, fetcher.Request{
		Method: http.MethodGet,
		URL:    c.fetchURL + "?" + q.Encode(),
	})
}

type storeResponse struct {
	Status string `json:"status"`
}

func (c *httpClient) Store(ctx context.Context, name string, blob []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", eris.Wrap(err, "objectcache: create form file")
	}
	if _, err := part.Write(blob); err != nil {
		return "", eris.Wrap(err, "objectcache: write form file")
	}
	if err := w.Close(); err != nil {
		return "", eris.Wrap(err, "objectcache: close form")
	}

	body, err := c.caller.Do(ctx, fetcher.Request{
		Method:      http.MethodPost,
		URL:         c.storeURL,
		Body:        buf.Bytes(),
		ContentType: w.FormDataContentType(),
		Accept:      []int{http.StatusCreated},
	})
	if err != nil {
		return "", err
	}

	resp, err := fetcher.DecodeBody[storeResponse](ServiceName, body)
	if err != nil {
		return "", err
	}
	if resp.Status != "success" {
		return "", eris.Wrapf(ErrNotStored, "objectcache: store %s: status %q", name, resp.Status)
	}
	return name, nil
}
