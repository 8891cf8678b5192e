package provider

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOutage = fmt.Errorf("upstream 503: %w", ErrProviderDown)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testTracker(cfg HealthConfig) (*healthTracker, *clock) {
	c := &clock{t: time.Date(2026, 10, 1, 6, 0, 0, 0, time.UTC)}
	h := newHealthTracker(cfg)
	h.now = c.now
	h.jitter = func(d time.Duration) time.Duration { return d }
	return h, c
}

func TestHealthTracker_OutageBacksOff(t *testing.T) {
	t.Parallel()
	h, c := testTracker(HealthConfig{InitialBackoff: time.Second, MaxBackoff: 4 * time.Second, MaxFailures: 10})
	require.True(t, h.available())

	for _, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second} {
		h.recordFailure(errOutage)
		snap := h.snapshot()
		assert.Equal(t, stateCooldown, snap.State)
		assert.Equal(t, want, snap.Backoff)
		assert.False(t, h.available())

		c.advance(want - time.Millisecond)
		assert.False(t, h.available())
		c.advance(time.Millisecond)
		assert.True(t, h.available(), "available exactly at retry time")
	}
	assert.Equal(t, "upstream 503: provider down", h.snapshot().LastError)
}

func TestHealthTracker_DeadAfterMaxFailures(t *testing.T) {
	t.Parallel()
	h, c := testTracker(HealthConfig{MaxFailures: 3})

	for range 3 {
		h.recordFailure(errOutage)
	}
	assert.Equal(t, stateDead, h.snapshot().State)
	c.advance(time.Hour)
	assert.False(t, h.available())
	assert.True(t, h.needsProbe())

	h.recordSuccess()
	snap := h.snapshot()
	assert.Equal(t, stateHealthy, snap.State)
	assert.Zero(t, snap.Failures)
	assert.Empty(t, snap.LastError)
	assert.True(t, h.available())
}

func TestHealthTracker_RateLimitThrottles(t *testing.T) {
	t.Parallel()
	h, c := testTracker(HealthConfig{RateLimitCooldown: 30 * time.Second, MaxFailures: 2})

	for range 5 {
		h.recordFailure(fmt.Errorf("quota: %w", ErrRateLimit))
	}
	snap := h.snapshot()
	assert.Equal(t, stateThrottled, snap.State)
	assert.Zero(t, snap.Failures, "rate limits never count towards dead")
	assert.Equal(t, c.t.Add(30*time.Second), snap.RetryAt)

	assert.False(t, h.needsProbe())
	c.advance(30 * time.Second)
	assert.True(t, h.available())
	assert.False(t, h.needsProbe(), "throttled entries are retried by traffic, not probes")
}

func TestHealthTracker_HonoursRetryAfter(t *testing.T) {
	t.Parallel()
	h, c := testTracker(HealthConfig{RateLimitCooldown: 30 * time.Second, MaxBackoff: time.Minute})

	h.recordFailure(&RateLimited{After: 5 * time.Second, Detail: "tokens per minute"})
	assert.Equal(t, c.t.Add(5*time.Second), h.snapshot().RetryAt)

	h.recordFailure(&RateLimited{After: time.Hour})
	assert.Equal(t, c.t.Add(time.Minute), h.snapshot().RetryAt, "capped at MaxBackoff")
}

func TestHealthTracker_ProbeAfterCooldown(t *testing.T) {
	t.Parallel()
	h, c := testTracker(HealthConfig{InitialBackoff: 5 * time.Second})

	assert.False(t, h.needsProbe())
	h.recordFailure(errOutage)
	assert.False(t, h.needsProbe())
	c.advance(5 * time.Second)
	assert.True(t, h.needsProbe())
}

func TestHealthTracker_SuccessResetsBackoff(t *testing.T) {
	t.Parallel()
	h, _ := testTracker(HealthConfig{InitialBackoff: time.Second})

	h.recordFailure(errOutage)
	h.recordFailure(errOutage)
	require.Equal(t, 2*time.Second, h.snapshot().Backoff)

	h.recordSuccess()
	h.recordFailure(errOutage)
	assert.Equal(t, time.Second, h.snapshot().Backoff)
	assert.Equal(t, 1, h.snapshot().Failures)
}

func TestHealthTracker_StateChanges(t *testing.T) {
	t.Parallel()
	h, _ := testTracker(HealthConfig{MaxFailures: 2})
	var got []string
	h.onStateChange = func(from, to healthState) { got = append(got, from.String()+"->"+to.String()) }

	h.recordFailure(errOutage)
	h.recordFailure(errOutage)
	h.recordSuccess()
	h.recordSuccess()
	h.recordFailure(ErrRateLimit)

	assert.Equal(t, []string{"healthy->cooldown", "cooldown->dead", "dead->healthy", "healthy->throttled"}, got)
}

func TestSpread(t *testing.T) {
	t.Parallel()
	assert.Zero(t, spread(0))
	for range 50 {
		d := spread(10 * time.Second)
		assert.GreaterOrEqual(t, d, 10*time.Second)
		assert.LessOrEqual(t, d, 11*time.Second)
	}
}

func TestHealthConfig_Defaults(t *testing.T) {
	t.Parallel()
	var cfg HealthConfig
	cfg.defaults()
	assert.Equal(t, HealthConfig{
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Minute,
		RateLimitCooldown: 30 * time.Second,
		MaxFailures:       5,
		CheckInterval:     10 * time.Second,
	}, cfg)
}
