package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Operator-visible actions.
const (
	EventAuthSuccess      EventType = "auth_success"
	EventAuthFailure      EventType = "auth_failure"
	EventRateLimit        EventType = "rate_limit"
	EventEscalation       EventType = "escalation"
	EventAssignment       EventType = "assignment"
	EventKnowledgeRefresh EventType = "knowledge_refresh"
	EventCacheClear       EventType = "cache_clear"
	EventWebhook          EventType = "webhook"
	EventConfigReload     EventType = "config_reload"
	EventJobRun           EventType = "job_run"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	AgentID   string            `json:"agent_id,omitempty"`
	Remote    string            `json:"remote,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures an AuditLogger. Every field is optional.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per line.
	Writer io.Writer

	// Redactor scrubs Detail and Metadata values.
	Redactor *Redactor

	// MaskContacts hides customer emails and phone numbers, which show
	// up in escalation reasons and webhook payload summaries.
	MaskContacts bool

	// Retain keeps the last N events in memory for Recent.
	Retain int

	// OnEvent sees every event after scrubbing.
	OnEvent func(AuditEvent)

	Now func() time.Time
}

// AuditLogger records who did what to conversations, caches and the
// knowledge base. It is safe for concurrent use.
type AuditLogger struct {
	cfg       AuditLoggerConfig
	writeErrs atomic.Int64

	mu     sync.Mutex
	enc    *json.Encoder
	recent []AuditEvent
	next   int
	full   bool
}

// NewAuditLogger creates an audit logger with the given configuration.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &AuditLogger{cfg: cfg}
	if cfg.Writer != nil {
		l.enc = json.NewEncoder(cfg.Writer)
	}
	if cfg.Retain > 0 {
		l.recent = make([]AuditEvent, cfg.Retain)
	}
	return l
}

// Log stamps, scrubs and records event. The caller's Metadata map is
// left untouched.
func (l *AuditLogger) Log(event AuditEvent) {
	event.Timestamp = l.cfg.Now()
	event.Metadata = maps.Clone(event.Metadata)
	event.Detail = l.scrub(event.Detail)
	for k, v := range event.Metadata {
		event.Metadata[k] = l.scrub(v)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.recent != nil {
		l.recent[l.next] = event
		l.next = (l.next + 1) % len(l.recent)
		l.full = l.full || l.next == 0
	}
	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(event)
	}
	if l.enc != nil {
		if err := l.enc.Encode(event); err != nil {
			l.writeErrs.Add(1)
		}
	}
}

func (l *AuditLogger) scrub(s string) string {
	if s == "" {
		return s
	}
	if l.cfg.Redactor != nil {
		s = l.cfg.Redactor.Redact(s)
	}
	if l.cfg.MaskContacts {
		s = MaskContacts(s)
	}
	return s
}

// Recent returns up to limit retained events, newest first, optionally
// restricted to one type. A limit of zero means all retained events.
func (l *AuditLogger) Recent(typ EventType, limit int) []AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.recent)
	}
	var out []AuditEvent
	for i := range n {
		e := l.recent[(l.next-1-i+len(l.recent))%len(l.recent)]
		if typ != "" && e.Type != typ {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// WriteErrors counts events the Writer failed to persist.
func (l *AuditLogger) WriteErrors() int64 {
	return l.writeErrs.Load()
}
