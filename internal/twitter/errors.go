package twitter

import (
	"errors"
	"fmt"
)

// RateLimitError signals the upstream rejected a call with HTTP 429. It is
// the only error kind the fetch client retries.
type RateLimitError struct {
	Handle string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("twitter: rate limited fetching @%s", e.Handle)
}

// APIError represents any non-rate-limit upstream failure. Calls failing with
// an APIError are abandoned immediately, without retry.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitter: api error %d: %s", e.StatusCode, e.Body)
}

// IsRateLimit reports whether err is (or wraps) a rate-limit rejection,
// including the case where retries against it were exhausted.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
