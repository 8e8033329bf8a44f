package ghapi

import (
	"errors"
	"fmt"
)

// Error kinds. Callers branch on kind because the retry policy differs:
// rate-limit exhaustion is terminal for the step, server errors were
// already retried, and plain HTTP errors fail fast.
const (
	KindHTTP        = "http"
	KindRateLimited = "rate_limited"
	KindNetwork     = "network"
)

// Error is a tagged error value carrying upstream HTTP details.
type Error struct {
	Kind         string
	Status       int
	RetryAfterMs int64
	Body         string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRateLimited:
		return fmt.Sprintf("github: rate limit retries exhausted (status %d)", e.Status)
	case KindNetwork:
		return fmt.Sprintf("github: network failure: %s", e.Body)
	default:
		return fmt.Sprintf("github: HTTP %d: %s", e.Status, truncate(e.Body, 200))
	}
}

// IsRateLimited reports whether err is a terminal rate-limit error.
func IsRateLimited(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindRateLimited
}

// IsStatus reports whether err is an HTTP error with the given status.
func IsStatus(err error, status int) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Status == status
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
