// Package formatter provides a client for the excel formatter, which lays
// out output reports and renders them into output files.
package formatter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/source-matcher/internal/fetcher"
	"github.com/sells-group/source-matcher/internal/resilience"
)

// ServiceName identifies the formatter in breakers, metrics and errors.
const ServiceName = "excel_formatter"

// ErrFailed is returned when the formatter answers 200 with a non-success
// status.
var ErrFailed = eris.New("formatter: failed status")

// Client calls the excel formatter.
type Client interface {
	Format(ctx context.Context, req *Request) (*BotOutput, error)
}

// Key locates one cached output partition.
type Key struct {
	SheetName      string `json:"sheet_name"`
	Key            string `json:"key"`
	IdentifierName string `json:"identifier_name"`
}

// Request is the formatter request body. The config sections are forwarded
// verbatim from the verification request.
type Request struct {
	KsdConfig            json.RawMessage   `json:"ksdConfig"`
	BotOutput            json.RawMessage   `json:"botOutput"`
	ProcessFeatureConfig json.RawMessage   `json:"processFeatureConfig"`
	KsdOutputFileDetails json.RawMessage   `json:"ksdOutputFileDetails"`
	LayoutConfig         json.RawMessage   `json:"layoutConfig"`
	OutputReports        map[string][]Key  `json:"outputReports"`
	OutputFiles          map[string]string `json:"outputFiles"`
}

// BotOutput lists the partitions and files the formatter produced.
type BotOutput struct {
	OutputReports map[string][]Key  `json:"outputReports"`
	OutputFiles   map[string]string `json:"outputFiles"`
}

type response struct {
	Status    string    `json:"status"`
	BotOutput BotOutput `json:"botOutput"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the formatter endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.url = u
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
	url    string
	opts   fetcher.HTTPOptions
	caller fetcher.Caller
}

// NewClient creates an excel formatter client.
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

func (c *httpClient) Format(ctx context.Context, req *Request) (*BotOutput, error) {
	if req.OutputReports == nil {
		req.OutputReports = map[string][]Key{}
	}
	if req.OutputFiles == nil {
		req.OutputFiles = map[string]string{}
	}
	body, err := c.caller.PostJSON(ctx, c.url, req)
	if err != nil {
		return nil, err
	}
	resp, err := fetcher.DecodeBody[response](ServiceName, body)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Status, "success") {
		return nil, eris.Wrapf(ErrFailed, "formatter: status %q", resp.Status)
	}
	return &resp.BotOutput, nil
}
