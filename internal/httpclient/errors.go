package httpclient

import (
	"fmt"

	"gitlab.com/tozd/go/errors"
)

// HTTPError is returned when a request completes but the response status is
// neither 200 nor 206, per spec.md §4.3 ("success = status 200 or 206").
type HTTPError struct {
	Status int
	Body   []byte
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Status, e.URL)
}

// NewHTTPError wraps an HTTPError in the corpus's errors.E with status/body
// details attached, so callers can inspect errors.Details(err) uniformly.
func NewHTTPError(url string, status int, body []byte) errors.E {
	errE := errors.WithStack(&HTTPError{Status: status, Body: body, URL: url})
	errors.Details(errE)["status"] = status
	errors.Details(errE)["url"] = url
	return errE
}

// ErrStuckStream is returned when a response body stops delivering bytes for
// longer than the stuck-stream timeout.
var ErrStuckStream = errors.Base("too slow download stream")
