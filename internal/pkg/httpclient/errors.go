package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is returned for every failed call. Status is zero when no
// response was received (connection failure, timeout, cancellation).
type APIError struct {
	Status  int
	URL     string
	Payload any
	Err     error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("unexpected status %d from %s", e.Status, e.URL)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsConnection reports whether the call never got a response.
func (e *APIError) IsConnection() bool { return e.Status == 0 }

func (e *APIError) IsClientError() bool { return e.Status >= 400 && e.Status < 500 }

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}
