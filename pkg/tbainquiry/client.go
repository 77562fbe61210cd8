// Package tbainquiry provides a client for the TBA inquiry service, which
// returns the current TBA values of a participant batch.
package tbainquiry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/source-matcher/internal/fetcher"
	"github.com/sells-group/source-matcher/internal/resilience"
)

// ServiceName identifies the inquiry service in breakers, metrics and errors.
const ServiceName = "tba_inquiry"

// Client inquires TBA for participant field values.
type Client interface {
	Inquire(ctx context.Context, req *Request) (*Response, error)
}

// SecretEngine carries credentials the inquiry service resolves itself.
// The engine always sends it blank.
type SecretEngine struct {
	CallbackURL   string `json:"callbackUrl"`
	CredentialURL string `json:"credentialUrl"`
	Username      string `json:"username"`
	Password      string `json:"password"`
}

// TBAURL is the TBA endpoint the inquiry service talks to.
type TBAURL struct {
	URL string `json:"url"`
}

// Request is the inquiry service request body.
type Request struct {
	SecretEngine SecretEngine `json:"secretEngine"`
	TBAURL       TBAURL       `json:"tbaUrl"`
	InquiryData  []Payload    `json:"inquiryData"`
}

// Inquiry is the legacy inquiry block, always sent empty.
type Inquiry struct {
	Fields []string `json:"fields"`
	Date   string   `json:"date"`
}

// Payload is the inquiry of one identifier group. The config lists hold
// JSON-encodable client config rows.
type Payload struct {
	ClientID      string              `json:"clientId"`
	FileName      string              `json:"fileName"`
	BusinessOps   string              `json:"businessOps"`
	ProcessType   string              `json:"processtype"`
	FileType      string              `json:"filetype"`
	BusinessUnit  string              `json:"buisnessunit"`
	JobName       string              `json:"jobName"`
	Inquiry       Inquiry             `json:"inquiry"`
	Fields        []any               `json:"TBA"`
	Notices       []any               `json:"tbaNoticeInqConfig"`
	PendingEvents []any               `json:"tbaPendEventInqConfig"`
	EventHistory  []any               `json:"tbaEventHistInqConfig"`
	Participants  []map[string]string `json:"participants"`
}

// Empty reports whether there is nothing to inquire: no participants, or no
// field, notice, pending-event or event-history definition.
func (p *Payload) Empty() bool {
	if len(p.Participants) == 0 {
		return true
	}
	return len(p.Fields) == 0 && len(p.Notices) == 0 && len(p.PendingEvents) == 0 && len(p.EventHistory) == 0
}

// Failure is a participant TBA could not inquire.
type Failure struct {
	// Index is the position of the participant in the request.
	Index            int
	ErrorDescription string
	// IDs holds the remaining keys, including the participant id keyed by
	// its lowercased identifier type.
	IDs map[string]string
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Failure) UnmarshalJSON(b []byte) error {
	var raw map[string]fetcher.Scalar
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(err, "tbainquiry: decode failure")
	}
	*f = Failure{IDs: make(map[string]string, len(raw))}
	for k, v := range raw {
		switch k {
		case "index":
			var idx int
			if err := json.Unmarshal([]byte(v), &idx); err != nil {
				return eris.Wrapf(err, "tbainquiry: index %q", string(v))
			}
			f.Index = idx
		case "errorDescription":
			f.ErrorDescription = string(v)
		default:
			f.IDs[k] = string(v)
		}
	}
	return nil
}

// Response is the two-element inquiry result: per-participant field values
// in request order, and the participants TBA does not know.
type Response struct {
	Found  []map[string]any
	Failed []Failure
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return eris.Wrap(err, "tbainquiry: decode response")
	}
	*r = Response{}
	if len(parts) == 0 {
		return nil
	}
	if len(parts) != 2 {
		return eris.Errorf("tbainquiry: response has %d parts, want 2", len(parts))
	}
	dec := json.NewDecoder(bytes.NewReader(parts[0]))
	dec.UseNumber()
	if err := dec.Decode(&r.Found); err != nil {
		return eris.Wrap(err, "tbainquiry: decode found participants")
	}
	if err := json.Unmarshal(parts[1], &r.Failed); err != nil {
		return eris.Wrap(err, "tbainquiry: decode failed participants")
	}
	return nil
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the inquiry endpoint.
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

// NewClient creates an inquiry service client.
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

func (c *httpClient) Inquire(ctx context.Context, req *Request) (*Response, error) {
	body, err := c.caller.PostJSON(ctx, c.url, req)
	if err != nil {
		return nil, err
	}
	return fetcher.DecodeBody[Response](ServiceName, body)
}
