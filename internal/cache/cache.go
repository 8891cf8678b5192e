// Package cache provides the four named caches (search, recommendation,
// analytics, chat) on top of a kvs.Store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/flemzord/trekassist/internal/kvs"
)

// Name identifies a named cache. It doubles as the key namespace.
type Name string

const (
	Search         Name = "search"
	Recommendation Name = "recommendation"
	Analytics      Name = "analytics"
	Chat           Name = "chat"
)

// Names lists every named cache in a stable order.
var Names = []Name{Search, Recommendation, Analytics, Chat}

// ErrUnknownCache is returned for a name outside Names.
var ErrUnknownCache = errors.New("cache: unknown cache name")

// entry is the envelope stored in the KVS. ExpiresAt is re-checked on read
// so a backend that expires lazily never leaks a stale value.
type entry struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Service is the tiered cache. All methods are safe for concurrent use.
type Service struct {
	store    kvs.Store
	tiers    map[Name]*namedCache
	disabled atomic.Bool
	logger   *slog.Logger
	now      func() time.Time
}

// New builds the service over store. The store is not owned: closing it is
// the caller's job.
func New(store kvs.Store, cfg Config) *Service {
	cfg.Defaults()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Service{
		store:  store,
		logger: cfg.Logger,
		now:    cfg.Now,
		tiers: map[Name]*namedCache{
			Search:         newNamedCache(Search, cfg.Search),
			Recommendation: newNamedCache(Recommendation, cfg.Recommendation),
			Analytics:      newNamedCache(Analytics, cfg.Analytics),
			Chat:           newNamedCache(Chat, cfg.Chat),
		},
	}
	s.disabled.Store(cfg.Disabled)
	return s
}

// SetEnabled flips the global switch at runtime.
func (s *Service) SetEnabled(enabled bool) { s.disabled.Store(!enabled) }

// Enabled reports whether caching is active.
func (s *Service) Enabled() bool { return !s.disabled.Load() }

// Backend reports which store currently serves the cache.
func (s *Service) Backend() kvs.Backend { return s.store.Backend() }

func (s *Service) tier(name Name) (*namedCache, error) {
	nc, ok := s.tiers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCache, name)
	}
	return nc, nil
}

// tracking reports whether the recency index is authoritative. Redis
// enforces its own memory policy, so LRU is only applied in-process.
func (s *Service) tracking() bool {
	return s.store.Backend() == kvs.BackendMemory
}

func storeKey(name Name, key string) string {
	return string(name) + ":" + key
}

// Get decodes the cached value for key into dst. It reports false on a
// miss, an expired entry, or when caching is disabled.
func (s *Service) Get(ctx context.Context, name Name, key string, dst any) (bool, error) {
	nc, err := s.tier(name)
	if err != nil {
		return false, err
	}
	if s.disabled.Load() {
		return false, nil
	}

	sk := storeKey(name, key)
	raw, ok, err := s.store.Get(ctx, sk)
	if err != nil {
		nc.miss()
		return false, fmt.Errorf("cache: get %s: %w", sk, err)
	}
	if !ok {
		nc.miss()
		nc.forget(key)
		return false, nil
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		s.logger.Warn("cache: dropping undecodable entry", "key", sk, "error", err)
		nc.miss()
		s.drop(ctx, nc, key)
		return false, nil
	}
	if s.now().After(e.ExpiresAt) {
		nc.miss()
		s.drop(ctx, nc, key)
		return false, nil
	}
	if err := json.Unmarshal(e.Value, dst); err != nil {
		nc.miss()
		return false, fmt.Errorf("cache: decode %s: %w", sk, err)
	}

	nc.hit()
	if s.tracking() {
		nc.touch(key)
	}
	return true, nil
}

// Set stores value under key. A zero ttl uses the cache's default.
func (s *Service) Set(ctx context.Context, name Name, key string, value any, ttl time.Duration) error {
	nc, err := s.tier(name)
	if err != nil {
		return err
	}
	if s.disabled.Load() {
		return nil
	}
	if ttl <= 0 {
		ttl = nc.ttl
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", storeKey(name, key), err)
	}
	now := s.now()
	raw, err := json.Marshal(entry{Value: data, CreatedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("cache: encode envelope: %w", err)
	}

	if s.tracking() {
		for _, victim := range nc.admit(key) {
			if err := s.store.Delete(ctx, storeKey(name, victim)); err != nil {
				s.logger.Warn("cache: eviction failed", "cache", name, "key", victim, "error", err)
			}
		}
	}
	if err := s.store.Set(ctx, storeKey(name, key), raw, ttl); err != nil {
		nc.forget(key)
		return fmt.Errorf("cache: set %s: %w", storeKey(name, key), err)
	}
	return nil
}

// Delete removes one key.
func (s *Service) Delete(ctx context.Context, name Name, key string) error {
	nc, err := s.tier(name)
	if err != nil {
		return err
	}
	nc.forget(key)
	return s.store.Delete(ctx, storeKey(name, key))
}

func (s *Service) drop(ctx context.Context, nc *namedCache, key string) {
	nc.forget(key)
	if err := s.store.Delete(ctx, storeKey(nc.name, key)); err != nil {
		s.logger.Debug("cache: delete expired entry", "cache", nc.name, "key", key, "error", err)
	}
}

// Clear empties one named cache and returns the number of keys removed.
func (s *Service) Clear(ctx context.Context, name Name) (int, error) {
	nc, err := s.tier(name)
	if err != nil {
		return 0, err
	}
	n, err := s.store.DeletePattern(ctx, string(name)+":*")
	nc.reset()
	if err != nil {
		return n, fmt.Errorf("cache: clear %s: %w", name, err)
	}
	s.logger.Info("cache cleared", "cache", name, "removed", n)
	return n, nil
}

// ClearAll empties every named cache.
func (s *Service) ClearAll(ctx context.Context) error {
	var errs []error
	for _, name := range Names {
		if _, err := s.Clear(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InvalidateUser drops every recommendation list and the analytics
// snapshot belonging to userID. It returns the number of recommendation
// lists removed.
func (s *Service) InvalidateUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	n, err := s.store.DeletePattern(ctx, storeKey(Recommendation, escapeGlob(userID)+":*"))
	if err != nil {
		return n, fmt.Errorf("cache: invalidate recommendations for %s: %w", userID, err)
	}
	s.tiers[Recommendation].forgetPrefix(userID + ":")

	if err := s.Delete(ctx, Analytics, AnalyticsKey(userID)); err != nil {
		return n, fmt.Errorf("cache: invalidate analytics for %s: %w", userID, err)
	}
	return n, nil
}

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// TierStats is a point-in-time view of one named cache.
type TierStats struct {
	Name    Name          `json:"name"`
	Size    int           `json:"size"`
	MaxSize int           `json:"max_size"`
	TTL     time.Duration `json:"ttl"`
	Hits    uint64        `json:"hits"`
	Misses  uint64        `json:"misses"`
	HitRate float64       `json:"hit_rate"`
}

// Stats returns one entry per named cache, in Names order. Size is only
// tracked for the in-process backend and reads 0 on Redis.
func (s *Service) Stats() []TierStats {
	out := make([]TierStats, 0, len(Names))
	for _, name := range Names {
		out = append(out, s.tiers[name].stats())
	}
	return out
}
