package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Sentinel errors for provider operations.
var (
	// ErrProviderUnavailable is what callers see when no generation could
	// be obtained: timeouts, outages and exhausted chains all map to it.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the provider is temporarily failing (5xx, overload).
	ErrProviderDown = errors.New("provider down")

	// ErrAllProviders indicates all providers in the chain have been exhausted.
	ErrAllProviders = errors.New("all providers failed")

	// ErrNoProvider indicates no provider is configured.
	ErrNoProvider = errors.New("no provider configured")
)

// IsRetryable reports whether the error is transient and the request
// can be sent to a different provider.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}

// IsRateLimit reports whether err is or wraps ErrRateLimit.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimit)
}

// IsUnavailable reports whether err means "no answer from any provider".
// A deadline hit inside a provider call counts.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrAllProviders) ||
		errors.Is(err, ErrNoProvider) ||
		errors.Is(err, context.DeadlineExceeded)
}

// RateLimited wraps ErrRateLimit with the wait the provider asked for.
type RateLimited struct {
	After  time.Duration
	Detail string
}

func (e *RateLimited) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("%s (retry after %s): %s", ErrRateLimit, e.After, e.Detail)
	}
	return fmt.Sprintf("%s: %s", ErrRateLimit, e.Detail)
}

func (e *RateLimited) Unwrap() error { return ErrRateLimit }

// RetryAfter returns the provider's requested wait when err carries one.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimited
	if errors.As(err, &rl) && rl.After > 0 {
		return rl.After, true
	}
	return 0, false
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Zero means absent or unusable.
func ParseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return max(time.Duration(secs)*time.Second, 0)
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(at.Sub(now), 0)
	}
	return 0
}
