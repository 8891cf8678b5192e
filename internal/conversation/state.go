package conversation

import (
	"errors"
	"fmt"
	"slices"
	"time"
	"unicode/utf8"
)

var (
	// ErrNotEscalated is returned when assigning an agent to a session
	// that was never escalated.
	ErrNotEscalated = errors.New("conversation: session is not escalated")
	// ErrInvalidSatisfaction rejects ratings outside 1..5.
	ErrInvalidSatisfaction = errors.New("conversation: satisfaction must be between 1 and 5")
	// ErrInvalidRole rejects unknown message roles.
	ErrInvalidRole = errors.New("conversation: invalid role")
)

// NewSession returns an empty session that expires ttl after now.
func NewSession(id, userID string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:                id,
		UserID:            userID,
		StartedAt:         now,
		LastInteractionAt: now,
		ExpiresAt:         now.Add(ttl),
		Messages:          []Message{},
	}
}

// AppendMessage adds a message, truncating its content, and compacts the
// log once it grows past CompactThreshold. The inactivity window restarts
// at now.
func AppendMessage(s *Session, role Role, content string, md *Metadata, now time.Time, ttl time.Duration) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   truncate(content, MaxContentLength),
		Timestamp: now,
		Metadata:  md,
	})
	s.Metrics.MessageCount++
	s.LastInteractionAt = now
	s.ExpiresAt = now.Add(ttl)

	if len(s.Messages) > CompactThreshold {
		Compact(s, now)
	}
	// Hard bound, independent of the compaction thresholds.
	if len(s.Messages) > MaxMessages {
		s.Messages = slices.Clone(s.Messages[len(s.Messages)-MaxMessages:])
	}
	return nil
}

// truncate cuts s to at most n runes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Compact folds the intents and entities of the current log into the
// summary and keeps only the last KeepAfterCompact messages.
func Compact(s *Session, now time.Time) {
	sum := s.Summary
	if sum == nil {
		sum = &Summary{Resolution: ResolutionOngoing}
	}
	for _, m := range s.Messages {
		if m.Metadata == nil {
			continue
		}
		if m.Metadata.Intent != IntentNone && !slices.Contains(sum.Topics, m.Metadata.Intent) {
			sum.Topics = append(sum.Topics, m.Metadata.Intent)
		}
		for _, e := range m.Metadata.Entities {
			if !slices.Contains(sum.Entities, e) {
				sum.Entities = append(sum.Entities, e)
			}
		}
	}
	switch {
	case s.Escalated():
		sum.Resolution = ResolutionEscalated
	case sum.Resolution == "":
		sum.Resolution = ResolutionOngoing
	}
	sum.LastSummaryAt = now
	s.Summary = sum

	if len(s.Messages) > KeepAfterCompact {
		s.Messages = slices.Clone(s.Messages[len(s.Messages)-KeepAfterCompact:])
	}
}

// ContextUpdate carries the fields to overwrite; zero values are ignored.
type ContextUpdate struct {
	Intent         Intent   `json:"intent,omitempty"`
	Entities       []string `json:"entities,omitempty"`
	RelatedIDs     []string `json:"related_ids,omitempty"`
	CurrentSubject string   `json:"current_subject,omitempty"`
	Organizer      string   `json:"organizer,omitempty"`
}

// UpdateContext applies u to the session's follow-up context.
func UpdateContext(s *Session, u ContextUpdate) {
	if u.Intent != IntentNone {
		s.Context.LastIntent = u.Intent
	}
	if len(u.Entities) > 0 {
		s.Context.LastEntities = slices.Clone(u.Entities)
	}
	if len(u.RelatedIDs) > 0 {
		s.Context.RelatedIDs = slices.Clone(u.RelatedIDs)
	}
	if u.CurrentSubject != "" {
		s.Context.CurrentSubject = u.CurrentSubject
	}
	if u.Organizer != "" {
		s.Context.Organizer = u.Organizer
	}
}

// Escalate hands the session to a human. It reports false, changing
// nothing, when the session is already escalated.
func Escalate(s *Session, reason string, now time.Time) bool {
	if s.Escalated() {
		return false
	}
	s.Escalation = &Escalation{
		Escalated:   true,
		EscalatedAt: now,
		Reason:      reason,
	}
	if s.Summary == nil {
		s.Summary = &Summary{LastSummaryAt: now}
	}
	s.Summary.Resolution = ResolutionEscalated
	return true
}

// Assign records the agent handling an escalated session.
func Assign(s *Session, agentID string) error {
	if !s.Escalated() {
		return ErrNotEscalated
	}
	s.Escalation.AssignedAgent = agentID
	return nil
}

// MetricsUpdate reports one assistant turn. Zero fields are ignored.
type MetricsUpdate struct {
	ResponseTime time.Duration `json:"response_time"`
	Satisfaction int           `json:"satisfaction"`
	Confidence   float64       `json:"confidence"`
}

// RecordMetrics folds u into the running averages. Each average is taken
// over the updates that carried its field.
func RecordMetrics(s *Session, u MetricsUpdate) error {
	if u.Satisfaction != 0 && (u.Satisfaction < 1 || u.Satisfaction > 5) {
		return ErrInvalidSatisfaction
	}
	m := &s.Metrics
	if u.ResponseTime > 0 {
		m.TimedTurns++
		ms := float64(u.ResponseTime) / float64(time.Millisecond)
		m.AvgResponseTimeMs += (ms - m.AvgResponseTimeMs) / float64(m.TimedTurns)
	}
	if u.Confidence > 0 {
		m.ScoredTurns++
		m.AvgConfidence += (min(u.Confidence, 1) - m.AvgConfidence) / float64(m.ScoredTurns)
	}
	if u.Satisfaction != 0 {
		m.Satisfaction = u.Satisfaction
	}
	return nil
}

// History returns up to the last limit messages.
func History(s *Session, limit int) []Message {
	if limit <= 0 {
		limit = DefaultHistory
	}
	start := max(len(s.Messages)-limit, 0)
	return slices.Clone(s.Messages[start:])
}

// ContextView is the read model follow-up handling and prompts work from.
type ContextView struct {
	LastIntent     Intent    `json:"last_intent,omitempty"`
	LastEntities   []string  `json:"last_entities"`
	RecentMessages []Message `json:"recent_messages"`
	Summary        *Summary  `json:"summary,omitempty"`
	CurrentSubject string    `json:"current_subject,omitempty"`
	Organizer      string    `json:"organizer,omitempty"`
	RelatedIDs     []string  `json:"related_ids"`
}

// HasContext reports whether there is anything a follow-up could refer to.
func (v ContextView) HasContext() bool {
	return v.LastIntent != IntentNone || len(v.LastEntities) > 0 || len(v.RecentMessages) > 0
}

// View builds the context view of s.
func View(s *Session) ContextView {
	v := ContextView{
		LastIntent:     s.Context.LastIntent,
		LastEntities:   slices.Clone(s.Context.LastEntities),
		RecentMessages: History(s, DefaultHistory),
		CurrentSubject: s.Context.CurrentSubject,
		Organizer:      s.Context.Organizer,
		RelatedIDs:     slices.Clone(s.Context.RelatedIDs),
	}
	if s.Summary != nil {
		sum := *s.Summary
		v.Summary = &sum
	}
	return v
}

// AgentMessage is a message labelled for the agent console.
type AgentMessage struct {
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// AgentView is what a human agent sees for one session.
type AgentView struct {
	SessionID        string         `json:"session_id"`
	UserID           string         `json:"user_id,omitempty"`
	FormattedHistory []AgentMessage `json:"formatted_history"`
	Summary          *Summary       `json:"summary,omitempty"`
	Escalation       *Escalation    `json:"escalation,omitempty"`
	Context          Context        `json:"context"`
	Metrics          Metrics        `json:"metrics"`
}

// ForAgent renders s for the agent console.
func ForAgent(s *Session) AgentView {
	history := make([]AgentMessage, len(s.Messages))
	for i, m := range s.Messages {
		history[i] = AgentMessage{
			Role:      agentLabel(m.Role),
			Message:   m.Content,
			Timestamp: m.Timestamp,
			Metadata:  m.Metadata,
		}
	}
	c := s.Clone()
	return AgentView{
		SessionID:        c.ID,
		UserID:           c.UserID,
		FormattedHistory: history,
		Summary:          c.Summary,
		Escalation:       c.Escalation,
		Context:          c.Context,
		Metrics:          c.Metrics,
	}
}

func agentLabel(r Role) string {
	switch r {
	case RoleUser:
		return "Customer"
	case RoleAssistant:
		return "AI Assistant"
	default:
		return "System"
	}
}

// Expired reports whether the inactivity window has lapsed. Escalated
// sessions never expire.
func Expired(s *Session, now time.Time) bool {
	return !s.Escalated() && now.After(s.ExpiresAt)
}
