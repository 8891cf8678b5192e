package security

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limit kinds.
const (
	KindChat     = "chat"
	KindAuth     = "auth"
	KindEscalate = "escalate"
)

// RateLimitConfig holds configurable rate limits. Every limit applies per key
// (client IP or session), not globally.
type RateLimitConfig struct {
	ChatPerMin     int `yaml:"chat_per_min"`
	ChatBurst      int `yaml:"chat_burst"`
	AuthPerMin     int `yaml:"auth_per_min"`
	EscalatePerMin int `yaml:"escalate_per_min"`
	// MaxKeys bounds the number of tracked keys per kind. Idle keys are
	// evicted first once the bound is reached.
	MaxKeys int `yaml:"max_keys"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		ChatPerMin:     30,
		ChatBurst:      5,
		AuthPerMin:     20,
		EscalatePerMin: 3,
		MaxKeys:        10000,
	}
}

// RateLimiter is a keyed token-bucket limiter.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  RateLimitConfig
	now     func() time.Time
}

type bucket struct {
	limit rate.Limit
	burst int
	keys  map[string]*entry
}

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// Zero-value fields in cfg are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.ChatPerMin <= 0 {
		cfg.ChatPerMin = defaults.ChatPerMin
	}
	if cfg.ChatBurst <= 0 {
		cfg.ChatBurst = defaults.ChatBurst
	}
	if cfg.AuthPerMin <= 0 {
		cfg.AuthPerMin = defaults.AuthPerMin
	}
	if cfg.EscalatePerMin <= 0 {
		cfg.EscalatePerMin = defaults.EscalatePerMin
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = defaults.MaxKeys
	}

	return &RateLimiter{
		config: cfg,
		now:    time.Now,
		buckets: map[string]*bucket{
			KindChat:     newBucket(cfg.ChatPerMin, cfg.ChatBurst),
			KindAuth:     newBucket(cfg.AuthPerMin, cfg.AuthPerMin),
			KindEscalate: newBucket(cfg.EscalatePerMin, cfg.EscalatePerMin),
		},
	}
}

func newBucket(perMin, burst int) *bucket {
	return &bucket{
		limit: rate.Every(time.Minute / time.Duration(perMin)),
		burst: burst,
		keys:  make(map[string]*entry),
	}
}

// Allow checks whether one event of kind is allowed for key.
// Unknown kinds are never limited.
func (rl *RateLimiter) Allow(kind, key string) error {
	return rl.AllowN(kind, key, 1)
}

// AllowN checks whether n events of kind are allowed for key.
func (rl *RateLimiter) AllowN(kind, key string, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	e, ok := b.keys[key]
	if !ok {
		if len(b.keys) >= rl.config.MaxKeys {
			b.evictOldest()
		}
		e = &entry{lim: rate.NewLimiter(b.limit, b.burst)}
		b.keys[key] = e
	}
	e.seen = now

	if !e.lim.AllowN(now, n) {
		return ErrRateLimited
	}
	return nil
}

// Tracked returns the number of keys currently tracked for kind.
func (rl *RateLimiter) Tracked(kind string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok := rl.buckets[kind]; ok {
		return len(b.keys)
	}
	return 0
}

func (b *bucket) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range b.keys {
		if oldestKey == "" || e.seen.Before(oldest) {
			oldestKey, oldest = k, e.seen
		}
	}
	delete(b.keys, oldestKey)
}
