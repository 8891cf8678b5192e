package kvs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultSweepInterval = 60 * time.Second

// MemoryConfig configures the in-process store.
type MemoryConfig struct {
	// SweepInterval is how often expired entries are purged. Zero uses 60s;
	// a negative value disables the background sweeper.
	SweepInterval time.Duration
	Logger        *slog.Logger
	// Now is injectable for tests.
	Now func() time.Time
}

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is a map-backed Store. Expired entries are invisible to
// readers immediately and physically removed by the sweeper.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
	logger  *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates the store and starts its sweeper.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	s := &MemoryStore{
		entries: make(map[string]memEntry),
		now:     cfg.Now,
		logger:  cfg.Logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go s.sweepLoop(cfg.SweepInterval)
	} else {
		close(s.done)
	}
	return s
}

func (s *MemoryStore) expired(e memEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || s.expired(e, s.now()) {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// DeletePattern implements Store.
func (s *MemoryStore) DeletePattern(_ context.Context, pattern string) (int, error) {
	re, err := globToRegexp(pattern)
	if err != nil {
		return 0, fmt.Errorf("kvs: invalid pattern %q: %w", pattern, err)
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, e := range s.entries {
		if !re.MatchString(key) {
			continue
		}
		delete(s.entries, key)
		if !s.expired(e, now) {
			n++
		}
	}
	return n, nil
}

// Keys implements Store.
func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	re, err := globToRegexp(pattern)
	if err != nil {
		return nil, fmt.Errorf("kvs: invalid pattern %q: %w", pattern, err)
	}

	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key, e := range s.entries {
		if re.MatchString(key) && !s.expired(e, now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Expire implements Store.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e, now) {
		return false, nil
	}
	if ttl <= 0 {
		// Redis deletes the key on a non-positive EXPIRE.
		delete(s.entries, key)
		return true, nil
	}
	e.expiresAt = now.Add(ttl)
	s.entries[key] = e
	return true, nil
}

// TTL implements Store.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	now := s.now()
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	switch {
	case !ok || s.expired(e, now):
		return TTLNotFound, nil
	case e.expiresAt.IsZero():
		return TTLNoExpiry, nil
	default:
		return e.expiresAt.Sub(now), nil
	}
}

// Backend implements Store.
func (s *MemoryStore) Backend() Backend { return BackendMemory }

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if !s.expired(e, now) {
			n++
		}
	}
	return n
}

// Sweep removes expired entries and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, key)
			n++
		}
	}
	return n
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("kvs: swept expired entries", "count", n)
			}
		}
	}
}

// Close stops the sweeper. The map stays readable.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
