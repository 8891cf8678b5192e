package kvs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config selects and tunes the backend.
type Config struct {
	// URL is a redis:// or rediss:// URL. Empty means in-process only.
	URL string `yaml:"url"`

	// MaxRetries bounds connection attempts at startup and the number of
	// consecutive runtime failures tolerated before degrading. Default 10.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the pause between startup attempts. Default 500ms.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// DialTimeout bounds each connection attempt. Default 2s.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// SweepInterval is passed to the in-process store. Default 60s.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 2 * time.Second
	}
}

// Open returns a Redis-backed store when cfg.URL is reachable within the
// retry budget, and an in-process store otherwise. It never fails because
// of connectivity; only a malformed URL is an error.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	memory := NewMemoryStore(MemoryConfig{SweepInterval: cfg.SweepInterval, Logger: logger})

	if cfg.URL == "" {
		logger.Info("kvs: no redis url configured, using in-process store")
		return memory, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		_ = memory.Close()
		return nil, fmt.Errorf("kvs: parse redis url: %w", err)
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.MaxRetries = 0

	primary := NewRedisStore(redis.NewClient(opts))

	var lastErr error
retry:
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		lastErr = primary.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			logger.Info("kvs: connected to redis", "addr", opts.Addr, "attempts", attempt)
			return newFailoverStore(primary, memory, cfg.MaxRetries, logger), nil
		}
		if attempt == cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = errors.Join(lastErr, ctx.Err())
			break retry
		case <-time.After(cfg.RetryDelay):
		}
	}

	_ = primary.Close()
	logger.Warn(ErrCacheDegraded.Error(), "addr", opts.Addr, "attempts", cfg.MaxRetries, "error", lastErr)
	return memory, nil
}

// failoverStore routes to Redis until it has failed maxFailures times in a
// row, then permanently to the in-process store. Calls that fail on Redis
// before the switch are served by the fallback so callers never see
// connectivity errors.
type failoverStore struct {
	primary     *RedisStore
	fallback    *MemoryStore
	maxFailures int32
	logger      *slog.Logger

	failures atomic.Int32
	degraded atomic.Bool
	once     sync.Once
}

func newFailoverStore(primary *RedisStore, fallback *MemoryStore, maxFailures int, logger *slog.Logger) *failoverStore {
	return &failoverStore{
		primary:     primary,
		fallback:    fallback,
		maxFailures: int32(maxFailures),
		logger:      logger,
	}
}

func (s *failoverStore) active() Store {
	if s.degraded.Load() {
		return s.fallback
	}
	return s.primary
}

// observe records the outcome of a primary call and reports whether the
// caller should retry on the fallback.
func (s *failoverStore) observe(err error) bool {
	if err == nil {
		s.failures.Store(0)
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if s.failures.Add(1) >= s.maxFailures {
		s.once.Do(func() {
			s.degraded.Store(true)
			s.logger.Warn(ErrCacheDegraded.Error(), "consecutive_failures", s.maxFailures, "error", err)
			_ = s.primary.Close()
		})
	} else {
		s.logger.Debug("kvs: redis call failed, serving from fallback", "error", err)
	}
	return true
}

func (s *failoverStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.degraded.Load() {
		return s.fallback.Get(ctx, key)
	}
	v, ok, err := s.primary.Get(ctx, key)
	if s.observe(err) {
		return s.fallback.Get(ctx, key)
	}
	return v, ok, err
}

func (s *failoverStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.degraded.Load() {
		return s.fallback.Set(ctx, key, value, ttl)
	}
	err := s.primary.Set(ctx, key, value, ttl)
	if s.observe(err) {
		return s.fallback.Set(ctx, key, value, ttl)
	}
	return err
}

func (s *failoverStore) Delete(ctx context.Context, key string) error {
	if s.degraded.Load() {
		return s.fallback.Delete(ctx, key)
	}
	err := s.primary.Delete(ctx, key)
	if s.observe(err) {
		return s.fallback.Delete(ctx, key)
	}
	return err
}

func (s *failoverStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if s.degraded.Load() {
		return s.fallback.DeletePattern(ctx, pattern)
	}
	n, err := s.primary.DeletePattern(ctx, pattern)
	if s.observe(err) {
		return s.fallback.DeletePattern(ctx, pattern)
	}
	return n, err
}

func (s *failoverStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if s.degraded.Load() {
		return s.fallback.Keys(ctx, pattern)
	}
	keys, err := s.primary.Keys(ctx, pattern)
	if s.observe(err) {
		return s.fallback.Keys(ctx, pattern)
	}
	return keys, err
}

func (s *failoverStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.degraded.Load() {
		return s.fallback.Expire(ctx, key, ttl)
	}
	ok, err := s.primary.Expire(ctx, key, ttl)
	if s.observe(err) {
		return s.fallback.Expire(ctx, key, ttl)
	}
	return ok, err
}

func (s *failoverStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	if s.degraded.Load() {
		return s.fallback.TTL(ctx, key)
	}
	d, err := s.primary.TTL(ctx, key)
	if s.observe(err) {
		return s.fallback.TTL(ctx, key)
	}
	return d, err
}

func (s *failoverStore) Backend() Backend {
	return s.active().Backend()
}

func (s *failoverStore) Close() error {
	var errs []error
	if !s.degraded.Load() {
		errs = append(errs, s.primary.Close())
	}
	errs = append(errs, s.fallback.Close())
	return errors.Join(errs...)
}
