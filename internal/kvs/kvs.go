// Package kvs is the key-value store every cache and session layer sits on.
// A Redis backend is used when reachable; otherwise an in-process map with
// the same TTL semantics takes over for the rest of the process lifetime.
package kvs

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// Backend names the store implementation currently serving requests.
type Backend string

const (
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

// Special TTL results, matching Redis' -2 / -1 replies.
const (
	TTLNotFound time.Duration = -2
	TTLNoExpiry time.Duration = -1
)

// ErrCacheDegraded marks the switch from the external store to the
// in-process map. It is logged, never returned to callers.
var ErrCacheDegraded = errors.New("kvs: external store unreachable, using in-process map")

// Store is the key-value contract. A ttl <= 0 on Set means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePattern removes every key matching a Redis-style glob and
	// returns the number removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)
	// Keys lists the live keys matching a Redis-style glob, in no
	// particular order.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Expire sets a new TTL on an existing key. It reports false when the
	// key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// TTL returns the remaining lifetime, TTLNotFound or TTLNoExpiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Backend() Backend
	Close() error
}

// globToRegexp converts a Redis glob (*, ?, [...]) into an anchored regexp.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case inClass:
			if c == ']' {
				inClass = false
			}
			b.WriteByte(c)
		case c == '\\' && i+1 < len(pattern):
			i++
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
		case c == '*':
			b.WriteString(".*")
		case c == '?':
			b.WriteByte('.')
		case c == '[':
			inClass = true
			b.WriteByte(c)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}
