// Package conversation keeps per-session working memory for the assistant:
// a bounded message log, a rolling summary, follow-up context and the
// human escalation state.
//
// Sessions are plain records. The functions in state.go implement every
// transition; a Store persists the result.
package conversation

import (
	"errors"
	"time"
)

// Limits applied to every session.
const (
	MaxMessages      = 20
	CompactThreshold = 15
	KeepAfterCompact = 8
	MaxContentLength = 2000
	DefaultTTL       = 30 * 24 * time.Hour
	DefaultHistory   = 6
	maxEscalatedList = 50
)

// ErrSessionNotFound is returned by stores and by manager operations that
// require an existing session.
var ErrSessionNotFound = errors.New("conversation: session not found")

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Intent is the coarse topic of a message.
type Intent string

const (
	IntentNone           Intent = ""
	IntentBooking        Intent = "booking"
	IntentCancellation   Intent = "cancellation"
	IntentRecommendation Intent = "recommendation"
	IntentSafety         Intent = "safety"
	IntentPacking        Intent = "packing"
	IntentWeather        Intent = "weather"
	IntentPayment        Intent = "payment"
	IntentGeneralHelp    Intent = "general_help"
)

// Sentiment is the tone of a user message.
type Sentiment string

const (
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
)

// Resolution is the summary outcome of a session.
type Resolution string

const (
	ResolutionOngoing   Resolution = "ongoing"
	ResolutionResolved  Resolution = "resolved"
	ResolutionEscalated Resolution = "escalated"
)

// Metadata annotates a message. Extensions carries anything outside the
// typed fields.
type Metadata struct {
	Intent           Intent            `json:"intent,omitempty"`
	Entities         []string          `json:"entities,omitempty"`
	Sentiment        Sentiment         `json:"sentiment,omitempty"`
	RequiresFollowUp bool              `json:"requires_follow_up,omitempty"`
	Extensions       map[string]string `json:"extensions,omitempty"`
}

// Message is one turn in the log.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// Summary accumulates what compaction dropped.
type Summary struct {
	Topics        []Intent   `json:"topics"`
	Entities      []string   `json:"entities"`
	Resolution    Resolution `json:"resolution"`
	LastSummaryAt time.Time  `json:"last_summary_at"`
}

// Context is what follow-up handling reads.
type Context struct {
	LastIntent     Intent   `json:"last_intent,omitempty"`
	LastEntities   []string `json:"last_entities,omitempty"`
	CurrentSubject string   `json:"current_subject,omitempty"`
	Organizer      string   `json:"organizer,omitempty"`
	RelatedIDs     []string `json:"related_ids,omitempty"`
}

// Escalation tracks a human handoff.
type Escalation struct {
	Escalated     bool      `json:"escalated"`
	EscalatedAt   time.Time `json:"escalated_at"`
	Reason        string    `json:"reason,omitempty"`
	AssignedAgent string    `json:"assigned_agent,omitempty"`
}

// Metrics are per-session quality counters.
type Metrics struct {
	MessageCount      int     `json:"message_count"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms,omitempty"`
	AvgConfidence     float64 `json:"avg_confidence,omitempty"`
	Satisfaction      int     `json:"satisfaction,omitempty"`

	// Sample counts behind the two averages.
	TimedTurns  int `json:"timed_turns,omitempty"`
	ScoredTurns int `json:"scored_turns,omitempty"`
}

// Session is the persisted record of one conversation.
type Session struct {
	ID                string      `json:"session_id"`
	UserID            string      `json:"user_id,omitempty"`
	StartedAt         time.Time   `json:"started_at"`
	LastInteractionAt time.Time   `json:"last_interaction_at"`
	ExpiresAt         time.Time   `json:"expires_at"`
	Messages          []Message   `json:"messages"`
	Summary           *Summary    `json:"summary,omitempty"`
	Context           Context     `json:"context"`
	Escalation        *Escalation `json:"escalation,omitempty"`
	Metrics           Metrics     `json:"metrics"`
}

// Escalated reports whether the session was handed to a human.
func (s *Session) Escalated() bool {
	return s.Escalation != nil && s.Escalation.Escalated
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		if m.Metadata != nil {
			md := *m.Metadata
			md.Entities = append([]string(nil), md.Entities...)
			if md.Extensions != nil {
				md.Extensions = make(map[string]string, len(m.Metadata.Extensions))
				for k, v := range m.Metadata.Extensions {
					md.Extensions[k] = v
				}
			}
			m.Metadata = &md
		}
		c.Messages[i] = m
	}
	if s.Summary != nil {
		sum := *s.Summary
		sum.Topics = append([]Intent(nil), sum.Topics...)
		sum.Entities = append([]string(nil), sum.Entities...)
		c.Summary = &sum
	}
	c.Context.LastEntities = append([]string(nil), s.Context.LastEntities...)
	c.Context.RelatedIDs = append([]string(nil), s.Context.RelatedIDs...)
	if s.Escalation != nil {
		e := *s.Escalation
		c.Escalation = &e
	}
	return &c
}
