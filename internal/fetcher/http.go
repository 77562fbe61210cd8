package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/source-matcher/internal/metrics"
	"github.com/sells-group/source-matcher/internal/resilience"
	"github.com/sells-group/source-matcher/internal/trace"
)

// HTTPOptions configures an HTTPCaller.
type HTTPOptions struct {
	Service   string
	UserAgent string
	Timeout   time.Duration

	// RateLimit is the initial requests per second. Zero disables limiting.
	RateLimit float64

	Client  *http.Client
	Breaker *resilience.Breaker
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit(service string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.String("service", service),
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPCaller implements Caller with net/http, an optional adaptive rate
// limiter and an optional circuit breaker. It never retries.
type HTTPCaller struct {
	service   string
	userAgent string
	client    *http.Client
	limiter   *AdaptiveLimiter
	breaker   *resilience.Breaker
}

// NewHTTPCaller creates an HTTPCaller with the given options.
func NewHTTPCaller(opts HTTPOptions) *HTTPCaller {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "source-matcher/1.0"
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	c := &HTTPCaller{
		service:   opts.Service,
		userAgent: opts.UserAgent,
		client:    client,
		breaker:   opts.Breaker,
	}
	if opts.RateLimit > 0 {
		burst := max(int(opts.RateLimit), 1)
		c.limiter = NewAdaptiveLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// Service returns the service name.
func (c *HTTPCaller) Service() string { return c.service }

// PostJSON marshals in and posts it as application/json.
func (c *HTTPCaller) PostJSON(ctx context.Context, url string, in any) ([]byte, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: marshal request", c.service)
	}
	return c.Do(ctx, Request{
		Method:      http.MethodPost,
		URL:         url,
		Body:        body,
		ContentType: "application/json",
	})
}

// Do sends req through the breaker and records the call.
func (c *HTTPCaller) Do(ctx context.Context, req Request) ([]byte, error) {
	start := time.Now()
	body, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, req)
	})

	result := metrics.ResultOK
	switch {
	case err == nil:
	case resilience.IsConnect(err):
		result = metrics.ResultConnect
	default:
		result = metrics.ResultStatus
	}
	metrics.ObserveCall(c.service, result, time.Since(start))

	if err != nil {
		trace.Logger(ctx).Warn("remote call failed",
			zap.String("service", c.service),
			zap.String("url", req.URL),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}
	return body, err
}

func (c *HTTPCaller) do(ctx context.Context, req Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "%s: rate limiter wait", c.service)
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var reader io.Reader
	if req.Body != nil {
		reader = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, reader)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: create request", c.service)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	trace.Inject(ctx, httpReq.Header)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &resilience.ConnectError{Service: c.service, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &resilience.ConnectError{Service: c.service, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests && c.limiter != nil {
		c.limiter.OnRateLimit(c.service)
	}

	accept := req.Accept
	if len(accept) == 0 {
		accept = []int{http.StatusOK}
	}
	if !slices.Contains(accept, resp.StatusCode) {
		return nil, &resilience.StatusError{Service: c.service, Code: resp.StatusCode, Body: string(body)}
	}

	if c.limiter != nil {
		c.limiter.OnSuccess()
	}
	return body, nil
}
