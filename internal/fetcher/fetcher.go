// Package fetcher performs guarded HTTP calls to the downstream services
// the engine depends on.
package fetcher

import (
	"context"
)

// Request is one outbound call.
type Request struct {
	Method      string
	URL         string
	Body        []byte
	ContentType string

	// Accept lists the status codes treated as success. Empty means 200.
	Accept []int
}

// Caller sends requests to a single downstream service.
type Caller interface {
	// Do sends req and returns the response body. A transport failure is a
	// *resilience.ConnectError; an unaccepted status is a *resilience.StatusError.
	Do(ctx context.Context, req Request) ([]byte, error)

	// PostJSON marshals in, posts it to url and returns the response body.
	PostJSON(ctx context.Context, url string, in any) ([]byte, error)

	// Service returns the service name used for breakers, metrics and errors.
	Service() string
}
