package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/trekassist/internal/conversation"
)

// Store implements conversation.Store on a sessions table. The full
// record is kept as JSON; the indexed columns only serve filtering.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ conversation.Store  = (*Store)(nil)
	_ conversation.Purger = (*Store)(nil)
)

func newStore(db *sql.DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

// Load implements conversation.Store.
func (s *Store) Load(ctx context.Context, id string) (*conversation.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE session_id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversation.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load session %s: %w", id, err)
	}

	var sess conversation.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("sqlite: decode session %s: %w", id, err)
	}
	if conversation.Expired(&sess, s.now()) {
		return nil, conversation.ErrSessionNotFound
	}
	return &sess, nil
}

// Save implements conversation.Store.
func (s *Store) Save(ctx context.Context, sess *conversation.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sqlite: encode session %s: %w", sess.ID, err)
	}

	escalated, agent := 0, ""
	if sess.Escalated() {
		escalated = 1
		agent = sess.Escalation.AssignedAgent
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, escalated, assigned_agent, last_interaction_at, expires_at, message_count, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = excluded.user_id,
			escalated = excluded.escalated,
			assigned_agent = excluded.assigned_agent,
			last_interaction_at = excluded.last_interaction_at,
			expires_at = excluded.expires_at,
			message_count = excluded.message_count,
			data = excluded.data`,
		sess.ID, sess.UserID, escalated, agent,
		sess.LastInteractionAt.UnixMilli(), sess.ExpiresAt.UnixMilli(),
		sess.Metrics.MessageCount, string(data),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save session %s: %w", sess.ID, err)
	}
	return nil
}

// Delete implements conversation.Store. Deleting a missing session is
// not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete session %s: %w", id, err)
	}
	return nil
}

// List implements conversation.Store.
func (s *Store) List(ctx context.Context) ([]*conversation.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM sessions
		WHERE escalated = 1 OR expires_at >= ?
		ORDER BY last_interaction_at DESC`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*conversation.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		var sess conversation.Session
		if err := json.Unmarshal([]byte(data), &sess); err != nil {
			return nil, fmt.Errorf("sqlite: decode session: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// PurgeExpired implements conversation.Purger. SQLite has no key expiry,
// so lapsed rows stay on disk until this runs.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE escalated = 0 AND expires_at < ?`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Len returns the number of stored rows, expired ones included.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count sessions: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
