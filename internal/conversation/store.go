package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flemzord/trekassist/internal/kvs"
)

// Store persists session records. Load returns ErrSessionNotFound for
// unknown or expired sessions. Writes are last-write-wins.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// List returns every live session.
	List(ctx context.Context) ([]*Session, error)
}

// Purger is implemented by stores without native expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// StoreProvider is implemented by modules that supply a session store.
type StoreProvider interface {
	SessionStore() Store
}

const sessionKeyPrefix = "session:"

// KVStore keeps sessions as JSON in a kvs.Store. The key TTL tracks the
// inactivity window; escalated sessions are stored without expiry.
type KVStore struct {
	kv     kvs.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewKVStore wraps kv. A nil now uses time.Now.
func NewKVStore(kv kvs.Store, now func() time.Time, logger *slog.Logger) *KVStore {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &KVStore{kv: kv, now: now, logger: logger}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

// Load implements Store.
func (s *KVStore) Load(ctx context.Context, id string) (*Session, error) {
	raw, ok, err := s.kv.Get(ctx, sessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("conversation: load %s: %w", id, err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("conversation: decode %s: %w", id, err)
	}
	if Expired(&sess, s.now()) {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

// Save implements Store.
func (s *KVStore) Save(ctx context.Context, sess *Session) error {
	var ttl time.Duration
	if !sess.Escalated() {
		ttl = sess.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return s.Delete(ctx, sess.ID)
		}
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("conversation: encode %s: %w", sess.ID, err)
	}
	if err := s.kv.Set(ctx, sessionKey(sess.ID), raw, ttl); err != nil {
		return fmt.Errorf("conversation: save %s: %w", sess.ID, err)
	}
	return nil
}

// Delete implements Store.
func (s *KVStore) Delete(ctx context.Context, id string) error {
	if err := s.kv.Delete(ctx, sessionKey(id)); err != nil {
		return fmt.Errorf("conversation: delete %s: %w", id, err)
	}
	return nil
}

// List implements Store. Records that vanish or fail to decode between
// the key scan and the read are skipped.
func (s *KVStore) List(ctx context.Context) ([]*Session, error) {
	keys, err := s.kv.Keys(ctx, sessionKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("conversation: list sessions: %w", err)
	}
	out := make([]*Session, 0, len(keys))
	for _, key := range keys {
		sess, err := s.Load(ctx, strings.TrimPrefix(key, sessionKeyPrefix))
		switch {
		case errors.Is(err, ErrSessionNotFound):
			continue
		case err != nil:
			s.logger.Warn("skipping unreadable session", "key", key, "error", err)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}
