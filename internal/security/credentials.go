// Package security holds the credential store, log redaction, audit log,
// rate limiting, URL filtering and input validation.
package security

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Service names under which the runtime publishes the shared instances.
const (
	ServiceCredentials = "security.credentials"
	ServiceRedactor    = "security.redactor"
)

// CredentialStore holds the secrets modules load at provision time, under
// names such as "provider.anthropic.0". A Redactor tracking the store
// masks every value in logs.
type CredentialStore struct {
	mu       sync.RWMutex
	secrets  map[string]string
	watchers []func()
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{secrets: make(map[string]string)}
}

// Set stores one credential.
func (s *CredentialStore) Set(name, value string) {
	s.update(map[string]string{name: value})
}

// SetKeys stores values as prefix.0, prefix.1 and so on, notifying
// watchers once.
func (s *CredentialStore) SetKeys(prefix string, values []string) {
	batch := make(map[string]string, len(values))
	for i, v := range values {
		batch[fmt.Sprintf("%s.%d", prefix, i)] = v
	}
	s.update(batch)
}

// update applies batch and runs the watchers, outside the lock, when
// anything changed.
func (s *CredentialStore) update(batch map[string]string) {
	s.mu.Lock()
	changed := false
	for name, v := range batch {
		if old, ok := s.secrets[name]; !ok || old != v {
			s.secrets[name] = v
			changed = true
		}
	}
	watchers := slices.Clone(s.watchers)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range watchers {
		fn()
	}
}

func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.secrets[name]
	return v, ok
}

func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.secrets)
}

// Names lists credential names in order. It never exposes values.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.secrets))
}

// Values returns the non-empty secrets, longest first, so a replacer sees
// a secret before any of its prefixes.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for v := range maps.Values(s.secrets) {
		if v != "" {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b string) int { return len(b) - len(a) })
	return out
}

// OnChange registers fn to run after every update that changes a value.
func (s *CredentialStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}
