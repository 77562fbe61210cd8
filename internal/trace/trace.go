// Package trace carries B3 propagation headers and request identity through
// context.Context so every log line and outbound call can reference them.
package trace

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// B3 header names.
const (
	HeaderTraceID      = "X-B3-TraceId"
	HeaderSpanID       = "X-B3-SpanId"
	HeaderParentSpanID = "X-B3-ParentSpanId"
	HeaderFlags        = "X-B3-Flags"
	HeaderSampled      = "X-B3-Sampled"
)

// B3 is one span's propagation state.
type B3 struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Flags        string
	Sampled      string
}

type b3Key struct{}

type requestKey struct{}

type requestInfo struct {
	uid   string
	pjmID int
}

// FromHeaders reads B3 headers. A missing trace or span id is generated.
func FromHeaders(h http.Header) B3 {
	b := B3{
		TraceID:      h.Get(HeaderTraceID),
		SpanID:       h.Get(HeaderSpanID),
		ParentSpanID: h.Get(HeaderParentSpanID),
		Flags:        h.Get(HeaderFlags),
		Sampled:      h.Get(HeaderSampled),
	}
	if b.TraceID == "" {
		b.TraceID = newID(32)
	}
	if b.SpanID == "" {
		b.SpanID = newID(16)
	}
	return b
}

// Child returns the state for a new span under b.
func (b B3) Child() B3 {
	return B3{
		TraceID:      b.TraceID,
		SpanID:       newID(16),
		ParentSpanID: b.SpanID,
		Flags:        b.Flags,
		Sampled:      b.Sampled,
	}
}

// Set writes the non-empty headers.
func (b B3) Set(h http.Header) {
	for k, v := range map[string]string{
		HeaderTraceID:      b.TraceID,
		HeaderSpanID:       b.SpanID,
		HeaderParentSpanID: b.ParentSpanID,
		HeaderFlags:        b.Flags,
		HeaderSampled:      b.Sampled,
	} {
		if v != "" {
			h.Set(k, v)
		}
	}
}

// WithB3 stores b in the context.
func WithB3(ctx context.Context, b B3) context.Context {
	return context.WithValue(ctx, b3Key{}, b)
}

// FromContext returns the B3 state in ctx, if any.
func FromContext(ctx context.Context) (B3, bool) {
	b, ok := ctx.Value(b3Key{}).(B3)
	return b, ok
}

// Inject sets headers for an outbound call made under ctx: same trace, new
// span parented on the current one.
func Inject(ctx context.Context, h http.Header) {
	b, ok := FromContext(ctx)
	if !ok {
		b = B3{TraceID: newID(32), SpanID: newID(16)}
	}
	b.Child().Set(h)
}

// WithRequest records the request uid and job mapping id for logging.
func WithRequest(ctx context.Context, uid string, pjmID int) context.Context {
	return context.WithValue(ctx, requestKey{}, requestInfo{uid: uid, pjmID: pjmID})
}

// Fields returns the zap fields identifying the request in ctx.
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if info, ok := ctx.Value(requestKey{}).(requestInfo); ok {
		fields = append(fields, zap.String("uid", info.uid), zap.Int("pjm_id", info.pjmID))
	}
	if b, ok := FromContext(ctx); ok {
		fields = append(fields,
			zap.String("trace_id", b.TraceID),
			zap.String("span_id", b.SpanID),
			zap.String("parent_span_id", b.ParentSpanID),
		)
	}
	return append(fields, zap.String("server", hostname))
}

// Logger returns the global logger with the request fields of ctx attached.
func Logger(ctx context.Context) *zap.Logger {
	return zap.L().With(Fields(ctx)...)
}

// Middleware reads B3 headers from inbound requests into the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := FromHeaders(r.Header)
		w.Header().Set(HeaderTraceID, b.TraceID)
		next.ServeHTTP(w, r.WithContext(WithB3(r.Context(), b)))
	})
}

var hostname = func() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}()

func newID(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:n]
}
