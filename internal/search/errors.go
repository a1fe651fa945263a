package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrEngineUnreachable is returned when the cluster does not answer a ping in time.
var ErrEngineUnreachable = errors.New("search engine unreachable")

// StatusError is a non-2xx answer from the search engine.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying: 409, 429 and 5xx.
func (e *StatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// IsTransient classifies err for retry purposes. Status errors are transient for 409, 429 and 5xx
// only; context cancellation is never transient; anything else is treated as a network fault.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	return true
}
