package hub

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidClientID is returned when the hub rejects the client identity
// (HTTP 404). The sync loop stops permanently on this error.
var ErrInvalidClientID = errors.New("invalid client ID")

// HTTPError is a non-2xx hub response. 429 and 5xx are transient and
// retried within the sender's budget; other 4xx are permanent.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("hub returned status %d", e.StatusCode)
}

// Transient reports whether the response status is worth retrying.
func (e *HTTPError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// SuspendedError is a hub request to pause request log uploads (HTTP 402
// with Retry-After).
type SuspendedError struct {
	RetryAfter time.Duration
}

func (e *SuspendedError) Error() string {
	return fmt.Sprintf("hub suspended log uploads for %s", e.RetryAfter)
}

// retryable classifies errors for the sender's retry policy: network
// errors are retried, hub responses only if transient, and cancellation
// is always final.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Transient()
	}
	if errors.Is(err, ErrInvalidClientID) {
		return false
	}
	var suspended *SuspendedError
	if errors.As(err, &suspended) {
		return false
	}
	return true
}
