package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// ConnectError reports that a downstream service could not be reached:
// dial failures, timeouts, resets and open circuits.
type ConnectError struct {
	Service string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: connect: %v", e.Service, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// StatusError reports a response the caller did not accept, either a
// non-success HTTP status or a malformed body.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.Code, body)
}

// IsConnect returns true if err (or any error in its chain) is a
// ConnectError or looks like a network-level failure.
func IsConnect(err error) bool {
	if err == nil {
		return false
	}

	var ce *ConnectError
	if errors.As(err, &ce) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	connectPatterns := []string{
		"connection refused",
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range connectPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Trips is the default breaker policy: connect failures and 5xx responses
// count, client errors and rejected bodies do not.
func Trips(err error) bool {
	if err == nil {
		return false
	}
	if IsConnect(err) {
		return true
	}
	return IsServerStatus(StatusCode(err))
}

// IsServerStatus returns true for 5xx statuses and 429.
func IsServerStatus(statusCode int) bool {
	return statusCode == 429 || (statusCode >= 500 && statusCode <= 599)
}
