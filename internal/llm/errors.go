package llm

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ErrRateLimited indicates the backend rejected a request for throughput
// reasons. Callers may retry after a backoff.
var ErrRateLimited = errors.New("model backend rate limit exceeded")

// ErrEmptyResponse indicates the backend answered without usable text
// content. Callers degrade gracefully rather than aborting.
var ErrEmptyResponse = errors.New("model backend returned no usable content")

// IsRateLimit reports whether err represents a rate-limit rejection from
// any provider.
func IsRateLimit(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	return false
}
