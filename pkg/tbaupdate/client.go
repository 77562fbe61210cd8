// Package tbaupdate provides a client for the TBA update service, which
// applies field mutations, event reruns, notice changes and pending-event
// changes to participant records.
package tbaupdate

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/source-matcher/internal/fetcher"
	"github.com/sells-group/source-matcher/internal/resilience"
)

// ServiceName identifies the update service in breakers, metrics and errors.
const ServiceName = "tba_update"

// ErrImproperResponse is returned when a 200 response carries none of the
// known result sections.
var ErrImproperResponse = eris.New("tbaupdate: improper response")

// Client submits TBA update requests.
type Client interface {
	Update(ctx context.Context, req *Request) (*Response, error)
}

// ConfigTables carries the update config rows the service resolves actions
// against.
type ConfigTables struct {
	TBAUpdateConfig []map[string]any `json:"tbaUpdateConfig"`
}

// Request is the update service request body. Each list holds one entry per
// requested mutation. Comment is always sent empty.
type Request struct {
	ProcessJobMapping []map[string]any `json:"processJobMapping"`
	ConfigTables      ConfigTables     `json:"configTables"`
	Rerun             []map[string]any `json:"rerun"`
	Comment           []map[string]any `json:"comment"`
	RequestData       []map[string]any `json:"requestData"`
	Notice            []map[string]any `json:"notice"`
	PendingEvents     []map[string]any `json:"pendingEvents"`
}

// Empty reports whether the request has no mutation to apply.
func (r *Request) Empty() bool {
	return len(r.Rerun) == 0 && len(r.RequestData) == 0 && len(r.Notice) == 0 && len(r.PendingEvents) == 0
}

// FieldResult is the outcome of a field mutation. Fields maps the event name
// to the value TBA now holds.
type FieldResult struct {
	Identifier fetcher.Scalar            `json:"identifier"`
	Status     string                    `json:"status"`
	Fields     map[string]fetcher.Scalar `json:"fields"`
}

// RerunResult is the outcome of an event rerun or delete.
type RerunResult struct {
	Identifier fetcher.Scalar `json:"identifier"`
	EventName  string         `json:"eventName"`
	// Action is "Rerun" or "Delete".
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// NoticeResult is the outcome of a notice cancel or update.
type NoticeResult struct {
	ParticipantID  fetcher.Scalar `json:"participantId"`
	InquiryDefName string         `json:"inquiryDefName"`
	Reason         string         `json:"reason"`
}

// PendingResult is the outcome of a pending-event cancel or update.
type PendingResult struct {
	Identifier     fetcher.Scalar `json:"identifier"`
	InquiryDefName string         `json:"inquiryDefName"`
	Reason         string         `json:"reason"`
}

// Response holds the result sections the service returned.
type Response struct {
	Fields  []FieldResult
	Reruns  []RerunResult
	Notices []NoticeResult
	Pending []PendingResult
}

const (
	keyFields  = "NewUpdate"
	keyRerun   = "TBA_Rerun_response"
	keyNotice  = "TBA_Notice_response"
	keyPending = "TBA_pendingevents_response"
)

func decodeResponse(body []byte) (*Response, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &resilience.StatusError{Service: ServiceName, Code: http.StatusOK, Body: string(body)}
	}

	resp := &Response{}
	sections := []struct {
		key string
		dst any
	}{
		{keyFields, &resp.Fields},
		{keyRerun, &resp.Reruns},
		{keyNotice, &resp.Notices},
		{keyPending, &resp.Pending},
	}
	found := false
	for _, s := range sections {
		msg, ok := raw[s.key]
		if !ok {
			continue
		}
		found = true
		if err := json.Unmarshal(msg, s.dst); err != nil {
			return nil, eris.Wrapf(err, "tbaupdate: decode %s", s.key)
		}
	}
	if !found {
		return nil, eris.Wrapf(ErrImproperResponse, "tbaupdate: body %s", string(body))
	}
	return resp, nil
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the update endpoint.
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

// NewClient creates a TBA update client.
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

func (c *httpClient) Update(ctx context.Context, req *Request) (*Response, error) {
	body, err := c.caller.PostJSON(ctx, c.url, req)
	if err != nil {
		return nil, err
	}
	return decodeResponse(body)
}
