package fetch

import (
	"errors"
	"fmt"
)

// Sentinel errors for fetch outcomes.
var (
	// ErrNotFound means the artifact does not exist (HTTP 404). Expected for
	// builders that did not run on a commit.
	ErrNotFound = errors.New("artifact not found")

	// ErrHTTP matches any *HTTPError.
	ErrHTTP = errors.New("unexpected http status")

	// ErrTransport matches any *TransportError.
	ErrTransport = errors.New("transport failure")

	// ErrBodyTooLarge is wrapped by a TransportError when the body exceeds the configured cap.
	ErrBodyTooLarge = errors.New("response body too large")
)

// HTTPError is a non-2xx, non-404 response.
type HTTPError struct {
	URL    string
	Status int
}

// Error implements error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
}

// Is matches ErrHTTP.
func (e *HTTPError) Is(target error) bool {
	return target == ErrHTTP
}

// TransportError covers connection failures, timeouts, body read failures
// and oversized bodies.
type TransportError struct {
	URL string
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

// Is matches ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}
