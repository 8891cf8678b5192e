package provider

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimited(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("anthropic: %w", &RateLimited{After: 12 * time.Second, Detail: "slow down"})

	assert.True(t, IsRateLimit(err))
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "retry after 12s")
	after, ok := RetryAfter(err)
	assert.True(t, ok)
	assert.Equal(t, 12*time.Second, after)

	_, ok = RetryAfter(ErrRateLimit)
	assert.False(t, ok)
	_, ok = RetryAfter(errors.New("boom"))
	assert.False(t, ok)
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	cases := map[string]time.Duration{
		"":                              0,
		"7":                             7 * time.Second,
		"-3":                            0,
		"soon":                          0,
		"Thu, 15 Oct 2026 08:00:30 GMT": 30 * time.Second,
		"Thu, 15 Oct 2026 07:59:00 GMT": 0,
	}
	for v, want := range cases {
		h := http.Header{}
		if v != "" {
			h.Set("Retry-After", v)
		}
		assert.Equal(t, want, ParseRetryAfter(h, now), v)
	}
}
