package download

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a download exceeds its time budget.
	ErrTimeout = errors.New("download timed out")
	// ErrTooManyRedirects is returned once the redirect budget is exhausted.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// HTTPError reports a final response that was neither 200 nor a followable redirect.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// IOError wraps a local filesystem failure while persisting a download.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
