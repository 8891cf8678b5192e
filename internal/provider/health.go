package provider

import (
	"math/rand/v2"
	"sync"
	"time"
)

type healthState int

const (
	stateHealthy healthState = iota
	stateCooldown
	stateThrottled // rate limited; does not count towards dead
	stateDead
)

func (s healthState) String() string {
	switch s {
	case stateHealthy:
		return "healthy"
	case stateCooldown:
		return "cooldown"
	case stateThrottled:
		return "throttled"
	case stateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// HealthConfig tunes failover for one generator. Zero values mean: 1s
// initial backoff doubling up to 60s, 30s pause after a rate limit unless
// the provider sent Retry-After (capped at MaxBackoff), dead after 5
// consecutive failures, probes every 10s.
type HealthConfig struct {
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown"`
	MaxFailures       int           `yaml:"max_failures"`
	CheckInterval     time.Duration `yaml:"check_interval"`
}

func (c HealthConfig) checkIntervalOrDefault() time.Duration {
	if c.CheckInterval <= 0 {
		return 10 * time.Second
	}
	return c.CheckInterval
}

func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = 30 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	c.CheckInterval = c.checkIntervalOrDefault()
}

// healthSnapshot is a consistent copy of a tracker's state.
type healthSnapshot struct {
	State     healthState
	Failures  int
	Backoff   time.Duration
	RetryAt   time.Time
	LastError string
}

// healthTracker decides whether the chain may call a generator. Outages
// back off exponentially and end in dead; rate limits pause the generator
// for a fixed time without moving it towards dead.
type healthTracker struct {
	cfg HealthConfig

	// onStateChange runs outside the lock on every transition.
	onStateChange func(from, to healthState)

	mu        sync.Mutex
	state     healthState
	failures  int
	backoff   time.Duration
	retryAt   time.Time
	lastError string

	now    func() time.Time
	jitter func(time.Duration) time.Duration
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	cfg.defaults()
	return &healthTracker{
		cfg:    cfg,
		now:    time.Now,
		jitter: spread,
	}
}

// spread adds up to 10% so replicas that failed together do not retry
// together.
func spread(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + rand.N(d/10+1)
}

// available reports whether a request may be sent now.
func (h *healthTracker) available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitOverLocked()
}

func (h *healthTracker) waitOverLocked() bool {
	switch h.state {
	case stateHealthy:
		return true
	case stateCooldown, stateThrottled:
		return !h.now().Before(h.retryAt)
	default:
		return false
	}
}

// needsProbe reports whether the background checker should ping the
// generator. Throttled generators are left alone until their pause ends.
func (h *healthTracker) needsProbe() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case stateDead:
		return true
	case stateCooldown:
		return h.waitOverLocked()
	default:
		return false
	}
}

func (h *healthTracker) recordSuccess() {
	h.transition(func() healthState {
		h.failures = 0
		h.backoff = 0
		h.retryAt = time.Time{}
		h.lastError = ""
		return stateHealthy
	})
}

// recordFailure classifies err and moves the tracker accordingly.
func (h *healthTracker) recordFailure(err error) {
	h.transition(func() healthState {
		if err != nil {
			h.lastError = err.Error()
		}
		if IsRateLimit(err) {
			wait := h.cfg.RateLimitCooldown
			if after, ok := RetryAfter(err); ok {
				wait = min(after, h.cfg.MaxBackoff)
			}
			h.retryAt = h.now().Add(h.jitter(wait))
			return stateThrottled
		}

		h.failures++
		if h.failures >= h.cfg.MaxFailures {
			h.retryAt = time.Time{}
			return stateDead
		}
		if h.backoff == 0 {
			h.backoff = h.cfg.InitialBackoff
		} else {
			h.backoff = min(h.backoff*2, h.cfg.MaxBackoff)
		}
		h.retryAt = h.now().Add(h.jitter(h.backoff))
		return stateCooldown
	})
}

func (h *healthTracker) transition(apply func() healthState) {
	h.mu.Lock()
	prev := h.state
	h.state = apply()
	next := h.state
	h.mu.Unlock()

	if prev != next && h.onStateChange != nil {
		h.onStateChange(prev, next)
	}
}

func (h *healthTracker) snapshot() healthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return healthSnapshot{
		State:     h.state,
		Failures:  h.failures,
		Backoff:   h.backoff,
		RetryAt:   h.retryAt,
		LastError: h.lastError,
	}
}
