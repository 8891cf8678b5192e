package provider

import (
	"errors"
	"sync"
	"time"
)

// ErrNoKeys is returned by NewKeyRing without keys.
var ErrNoKeys = errors.New("provider: key ring needs at least one key")

// KeyRing holds the API keys of one provider account set. A key that hits
// its rate limit is benched until its quota returns and the ring moves on
// to the next key that is not benched.
type KeyRing struct {
	mu      sync.Mutex
	keys    []string
	benched []time.Time
	active  int
	now     func() time.Time
}

func NewKeyRing(keys ...string) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return &KeyRing{
		keys:    keys,
		benched: make([]time.Time, len(keys)),
		now:     time.Now,
	}, nil
}

// Key returns the active key.
func (k *KeyRing) Key() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.keys[k.active]
}

// Index returns the position of the active key.
func (k *KeyRing) Index() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active
}

func (k *KeyRing) Len() int { return len(k.keys) }

// Bench parks the active key until the given time and switches to the
// next usable key. It reports false, leaving the active key in place,
// when no other key is usable.
func (k *KeyRing) Bench(until time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.benched[k.active] = until
	now := k.now()
	for step := 1; step < len(k.keys); step++ {
		i := (k.active + step) % len(k.keys)
		if !now.Before(k.benched[i]) {
			k.active = i
			return true
		}
	}
	return false
}

// KeyHolder is implemented by generators that draw their API key from a
// KeyRing, so the chain can switch keys on rate limits.
type KeyHolder interface {
	Keys() *KeyRing
}
