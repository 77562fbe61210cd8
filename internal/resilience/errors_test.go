package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
)

func TestIsConnect_ExplicitConnectError(t *testing.T) {
	err := &ConnectError{Service: "cache", Err: errors.New("refused")}
	if !IsConnect(err) {
		t.Error("expected ConnectError to be a connect failure")
	}
	if !IsConnect(fmt.Errorf("fetch: %w", err)) {
		t.Error("expected wrapped ConnectError to be a connect failure")
	}
}

func TestIsConnect_StatusErrorIsNot(t *testing.T) {
	err := &StatusError{Service: "cache", Code: 500, Body: "connection refused upstream"}
	if IsConnect(err) {
		t.Error("a response is never a connect failure")
	}
}

func TestIsConnect_NilError(t *testing.T) {
	if IsConnect(nil) {
		t.Error("nil error should not be a connect failure")
	}
}

func TestIsConnect_RegularError(t *testing.T) {
	if IsConnect(errors.New("invalid input: missing field")) {
		t.Error("regular error should not be a connect failure")
	}
}

func TestIsConnect_Syscall(t *testing.T) {
	for _, e := range []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if !IsConnect(fmt.Errorf("dial tcp: %w", e)) {
			t.Errorf("%v should be a connect failure", e)
		}
	}
}

func TestIsConnect_NetErrors(t *testing.T) {
	if !IsConnect(&net.DNSError{IsTimeout: true, Err: "timeout"}) {
		t.Error("DNS error should be a connect failure")
	}
	if !IsConnect(&url.Error{Op: "Post", URL: "http://x", Err: errors.New("EOF")}) {
		t.Error("transport error should be a connect failure")
	}
}

func TestIsConnect_StringPatterns(t *testing.T) {
	patterns := []string{
		"connection reset by peer",
		"broken pipe",
		"TLS handshake timeout",
		"i/o timeout",
		"no such host",
	}
	for _, p := range patterns {
		if !IsConnect(errors.New(p)) {
			t.Errorf("expected %q to be a connect failure", p)
		}
	}
}

func TestTrips(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connect", &ConnectError{Service: "s", Err: errors.New("x")}, true},
		{"server error", &StatusError{Service: "s", Code: 502}, true},
		{"throttled", &StatusError{Service: "s", Code: 429}, true},
		{"bad request", &StatusError{Service: "s", Code: 400}, false},
		{"malformed body", &StatusError{Service: "s", Code: 200}, false},
	}
	for _, tt := range tests {
		if got := Trips(tt.err); got != tt.want {
			t.Errorf("%s: Trips() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestStatusError_Message(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	err := &StatusError{Service: "rules", Code: 500, Body: string(long)}
	if got := len(err.Error()); got > 300 {
		t.Errorf("expected truncated body, got %d chars", got)
	}
	if StatusCode(fmt.Errorf("wrap: %w", err)) != 500 {
		t.Error("expected status code through wrapping")
	}
	if StatusCode(errors.New("x")) != 0 {
		t.Error("expected 0 for non-status errors")
	}
}

func TestConnectError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	ce := &ConnectError{Service: "update", Err: inner}
	if !errors.Is(ce, inner) {
		t.Error("ConnectError.Unwrap should return the inner error")
	}
	if ce.Error() != "update: connect: root cause" {
		t.Errorf("unexpected message %q", ce.Error())
	}
}
