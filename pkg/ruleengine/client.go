// Package ruleengine provides a client for the rule engine, which evaluates
// each participant's file fields against its destination fields.
package ruleengine

import (
	"context"
	"net/http"
	"time"

	"github.com/sells-group/source-matcher/internal/fetcher"
	"github.com/sells-group/source-matcher/internal/resilience"
)

// ServiceName identifies the rule engine in breakers, metrics and errors.
const ServiceName = "rule_engine"

// ApplicationType is the application type every source match request uses.
const ApplicationType = "sourceMatch"

// Client evaluates source match rules.
type Client interface {
	Evaluate(ctx context.Context, req *Request) (*Response, error)
}

// Detail describes one compared field pair.
type Detail struct {
	ID            string `json:"id"`
	FileFieldName string `json:"fileFieldName"`
	ActualField   string `json:"actualField"`
	TBAFieldName  string `json:"tbaFieldName"`
	RuleName      string `json:"ruleName"`
}

// FieldValues maps a detail id to the field dicts compared under it. The
// first dict of a slice may carry only the comparison element name.
type FieldValues map[string][]map[string]any

// Participant is one participant's values for every detail.
type Participant struct {
	Type          string      `json:"type"`
	ParticipantID string      `json:"participantId"`
	FileFields    FieldValues `json:"fileFields"`
	TBAFields     FieldValues `json:"tbaFields"`
}

// Request is the rule engine request body.
type Request struct {
	PJMID                int           `json:"pjmId"`
	PhaseID              string        `json:"phaseId"`
	ApplicationType      string        `json:"applicationType"`
	FileName             string        `json:"fileName"`
	SourceMatcherDetails []Detail      `json:"sourceMatcherDetails"`
	Participants         []Participant `json:"participants"`
}

// Rule is the result of one rule on one detail.
type Rule struct {
	// Uniq is the match config id the result belongs to.
	Uniq           fetcher.Scalar   `json:"uniq"`
	ID             fetcher.Scalar   `json:"id"`
	FileFieldValue any              `json:"fileFieldValue"`
	TBAFieldValue  any              `json:"tbaFieldValue"`
	RuleName       string           `json:"ruleName"`
	Reason         string           `json:"reason"`
	ConditionName  string           `json:"conditionName"`
	ResultsVarable []map[string]any `json:"resultsVarable"`
}

// Result holds the failed and succeeded rules of a participant.
type Result struct {
	ParticipantID fetcher.Scalar `json:"participantId"`
	FailedRules   []Rule         `json:"failedRules"`
	SuccessRules  []Rule         `json:"successRules"`
}

// Response is the rule engine response body.
type Response struct {
	Participants []Result `json:"participants"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the rule engine endpoint.
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

// NewClient creates a rule engine client.
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

func (c *httpClient) Evaluate(ctx context.Context, req *Request) (*Response, error) {
	if req.ApplicationType == "" {
		req.ApplicationType = ApplicationType
	}
	body, err := c.caller.PostJSON(ctx, c.url, req)
	if err != nil {
		return nil, err
	}
	return fetcher.DecodeBody[Response](ServiceName, body)
}
