package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Config tunes the manager.
type Config struct {
	// TTL is the sliding inactivity window.
	TTL time.Duration `yaml:"ttl"`
	// CleanupAfter is the inactivity age Cleanup removes by default.
	CleanupAfter time.Duration `yaml:"cleanup_after"`
	// CleanupSchedule is the cron expression of the cleanup job.
	CleanupSchedule string `yaml:"cleanup_schedule"`

	Logger *slog.Logger     `yaml:"-"`
	Now    func() time.Time `yaml:"-"`
}

// Defaults fills unset fields.
func (c *Config) Defaults() {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.CleanupAfter <= 0 {
		c.CleanupAfter = c.TTL
	}
	if c.CleanupSchedule == "" {
		c.CleanupSchedule = "0 3 * * *"
	}
}

// Validate checks ranges.
func (c *Config) Validate() error {
	if c.TTL < time.Minute {
		return fmt.Errorf("conversation: ttl must be at least 1m, got %s", c.TTL)
	}
	return nil
}

// Manager runs session operations against a Store.
type Manager struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a manager over store.
func NewManager(store Store, cfg Config) *Manager {
	cfg.Defaults()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{store: store, cfg: cfg, logger: cfg.Logger, now: cfg.Now}
}

// NewSessionID returns a fresh random session ID.
func NewSessionID() string { return uuid.NewString() }

// GetOrCreate returns the session, creating it when it does not exist or
// has expired. An empty id gets a generated one.
func (m *Manager) GetOrCreate(ctx context.Context, id, userID string) (*Session, error) {
	if id == "" {
		id = NewSessionID()
	} else {
		sess, err := m.store.Load(ctx, id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			storeErrors.WithLabelValues("load").Inc()
			return nil, err
		}
	}

	sess := NewSession(id, userID, m.now(), m.cfg.TTL)
	if err := m.store.Save(ctx, sess); err != nil {
		storeErrors.WithLabelValues("save").Inc()
		return sess, err
	}
	sessionsCreated.Inc()
	m.logger.Debug("session created", "session_id", id)
	return sess, nil
}

// Get loads an existing session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Load(ctx, id)
}

// AddMessage appends a message to the session, creating it if needed.
// When the store write fails the returned session still reflects the
// append and the error is returned alongside it.
func (m *Manager) AddMessage(ctx context.Context, id string, role Role, content string, md *Metadata) (*Session, error) {
	sess, err := m.GetOrCreate(ctx, id, "")
	if sess == nil {
		return nil, err
	}
	if err := AppendMessage(sess, role, content, md, m.now(), m.cfg.TTL); err != nil {
		return sess, err
	}
	messagesAppended.WithLabelValues(string(role)).Inc()
	if err := m.store.Save(ctx, sess); err != nil {
		storeErrors.WithLabelValues("save").Inc()
		m.logger.Warn("session append not persisted", "session_id", sess.ID, "error", err)
		return sess, err
	}
	return sess, nil
}

// History returns the last limit messages; unknown sessions have none.
func (m *Manager) History(ctx context.Context, id string, limit int) ([]Message, error) {
	sess, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return History(sess, limit), nil
}

// Context returns the follow-up view of a session. Unknown sessions give
// an empty view and ErrSessionNotFound.
func (m *Manager) Context(ctx context.Context, id string) (ContextView, error) {
	sess, err := m.store.Load(ctx, id)
	if err != nil {
		return ContextView{}, err
	}
	return View(sess), nil
}

// UpdateContext applies u to an existing session.
func (m *Manager) UpdateContext(ctx context.Context, id string, u ContextUpdate) error {
	return m.update(ctx, id, func(s *Session) (bool, error) {
		UpdateContext(s, u)
		return true, nil
	})
}

// Escalate hands the session to a human. It reports whether this call
// changed anything; escalating twice is a no-op.
func (m *Manager) Escalate(ctx context.Context, id, reason string) (bool, error) {
	var changed bool
	err := m.update(ctx, id, func(s *Session) (bool, error) {
		changed = Escalate(s, reason, m.now())
		return changed, nil
	})
	if changed && err == nil {
		escalations.Inc()
		m.logger.Info("session escalated", "session_id", id, "reason", reason)
	}
	return changed, err
}

// AssignToAgent records the agent handling an escalated session.
func (m *Manager) AssignToAgent(ctx context.Context, id, agentID string) error {
	return m.update(ctx, id, func(s *Session) (bool, error) {
		return true, Assign(s, agentID)
	})
}

// UpdateMetrics folds one turn's measurements into the session.
func (m *Manager) UpdateMetrics(ctx context.Context, id string, u MetricsUpdate) error {
	return m.update(ctx, id, func(s *Session) (bool, error) {
		return true, RecordMetrics(s, u)
	})
}

// ForAgent renders a session for the agent console.
func (m *Manager) ForAgent(ctx context.Context, id string) (AgentView, error) {
	sess, err := m.store.Load(ctx, id)
	if err != nil {
		return AgentView{}, err
	}
	return ForAgent(sess), nil
}

// ListEscalated returns escalated sessions, newest escalation first, at
// most 50. An empty agentID selects unassigned sessions; otherwise only
// that agent's sessions.
func (m *Manager) ListEscalated(ctx context.Context, agentID string) ([]*Session, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Session
	for _, s := range all {
		if !s.Escalated() || s.Escalation.AssignedAgent != agentID {
			continue
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b *Session) int {
		return b.Escalation.EscalatedAt.Compare(a.Escalation.EscalatedAt)
	})
	if len(out) > maxEscalatedList {
		out = out[:maxEscalatedList]
	}
	return out, nil
}

// Cleanup deletes non-escalated sessions idle for longer than olderThan
// (CleanupAfter when zero) and returns how many were removed.
func (m *Manager) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = m.cfg.CleanupAfter
	}
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := m.now().Add(-olderThan)
	var (
		n    int
		errs []error
	)
	for _, s := range all {
		if s.Escalated() || !s.LastInteractionAt.Before(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, s.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	if p, ok := m.store.(Purger); ok {
		purged, err := p.PurgeExpired(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		n += purged
	}
	if n > 0 {
		m.logger.Info("removed inactive sessions", "count", n, "older_than", olderThan)
	}
	return n, errors.Join(errs...)
}

// Statistics summarizes all live sessions.
type Statistics struct {
	Total           int     `json:"total_conversations"`
	Active          int     `json:"active_conversations"`
	Escalated       int     `json:"escalated_conversations"`
	AvgMessages     float64 `json:"avg_messages_per_conversation"`
	AvgSatisfaction float64 `json:"avg_satisfaction_score"`
	Unassigned      int     `json:"unassigned_escalations"`
}

// Statistics computes totals over every live session. Active means an
// interaction in the last 24 hours.
func (m *Manager) Statistics(ctx context.Context) (Statistics, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return Statistics{}, err
	}
	var (
		st              Statistics
		messages, rated int
		satisfaction    int
		activeSince     = m.now().Add(-24 * time.Hour)
	)
	st.Total = len(all)
	for _, s := range all {
		if !s.LastInteractionAt.Before(activeSince) {
			st.Active++
		}
		if s.Escalated() {
			st.Escalated++
			if s.Escalation.AssignedAgent == "" {
				st.Unassigned++
			}
		}
		messages += s.Metrics.MessageCount
		if s.Metrics.Satisfaction > 0 {
			rated++
			satisfaction += s.Metrics.Satisfaction
		}
	}
	if st.Total > 0 {
		st.AvgMessages = float64(messages) / float64(st.Total)
	}
	if rated > 0 {
		st.AvgSatisfaction = float64(satisfaction) / float64(rated)
	}
	return st, nil
}

// Close closes the store when it holds resources.
func (m *Manager) Close() error {
	if c, ok := m.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// update loads, mutates and saves an existing session. fn reports whether
// a save is needed.
func (m *Manager) update(ctx context.Context, id string, fn func(*Session) (bool, error)) error {
	sess, err := m.store.Load(ctx, id)
	if err != nil {
		return err
	}
	dirty, err := fn(sess)
	if err != nil || !dirty {
		return err
	}
	if err := m.store.Save(ctx, sess); err != nil {
		storeErrors.WithLabelValues("save").Inc()
		return err
	}
	return nil
}
