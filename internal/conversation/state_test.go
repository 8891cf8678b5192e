package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestAppendMessage_TruncatesAndCounts(t *testing.T) {
	t.Parallel()
	s := NewSession("s1", "", t0, time.Hour)

	long := strings.Repeat("é", MaxContentLength+50)
	require.NoError(t, AppendMessage(s, RoleUser, long, nil, t0.Add(time.Minute), time.Hour))

	assert.Len(t, []rune(s.Messages[0].Content), MaxContentLength)
	assert.Equal(t, 1, s.Metrics.MessageCount)
	assert.Equal(t, t0.Add(time.Minute), s.LastInteractionAt)
	assert.Equal(t, t0.Add(time.Minute+time.Hour), s.ExpiresAt)

	assert.ErrorIs(t, AppendMessage(s, Role("bot"), "x", nil, t0, time.Hour), ErrInvalidRole)
}

func TestAppendMessage_BoundAndCompaction(t *testing.T) {
	t.Parallel()
	s := NewSession("s1", "", t0, time.Hour)

	for i := range 100 {
		md := &Metadata{Intent: IntentBooking}
		if i == 0 {
			md = &Metadata{Intent: IntentSafety, Entities: []string{"Roopkund"}}
		}
		require.NoError(t, AppendMessage(s, RoleUser, "msg", md, t0, time.Hour))
		require.LessOrEqual(t, len(s.Messages), MaxMessages)
		require.LessOrEqual(t, len(s.Messages), CompactThreshold)
	}

	assert.Equal(t, 100, s.Metrics.MessageCount)
	require.NotNil(t, s.Summary)
	assert.Contains(t, s.Summary.Topics, IntentSafety, "summary keeps topics of dropped messages")
	assert.Contains(t, s.Summary.Entities, "Roopkund")
	assert.Equal(t, ResolutionOngoing, s.Summary.Resolution)
}

func TestCompact_KeepsLastEight(t *testing.T) {
	t.Parallel()
	s := NewSession("s1", "", t0, time.Hour)
	for i := range CompactThreshold + 1 {
		s.Messages = append(s.Messages, Message{Role: RoleUser, Content: string(rune('a' + i))})
	}
	Compact(s, t0)

	require.Len(t, s.Messages, KeepAfterCompact)
	assert.Equal(t, string(rune('a'+CompactThreshold)), s.Messages[KeepAfterCompact-1].Content)
}

func TestEscalate_Idempotent(t *testing.T) {
	t.Parallel()
	s := NewSession("s1", "", t0, time.Hour)

	assert.True(t, Escalate(s, "refund dispute", t0))
	first := *s.Escalation

	assert.False(t, Escalate(s, "second reason", t0.Add(time.Hour)))
	assert.Equal(t, first, *s.Escalation)
	assert.Equal(t, ResolutionEscalated, s.Summary.Resolution)

	Compact(s, t0)
	assert.Equal(t, ResolutionEscalated, s.Summary.Resolution)
}

func TestEscalated_NeverExpires(t *testing.T) {
	t.Parallel()
	s := NewSession("s1", "", t0, time.Hour)
	assert.True(t, Expired(s, t0.Add(2*time.Hour)))
	Escalate(s, "x", t0)
	assert.False(t, Expired(s, t0.Add(365*24*time.Hour)))
}

func TestAssign(t *testing.T) {
	t.Parallel()
	s := NewSession("s1", "", t0, time.Hour)
	require.ErrorIs(t, Assign(s, "agent-1"), ErrNotEscalated)

	Escalate(s, "x", t0)
	require.NoError(t, Assign(s, "agent-1"))
	assert.Equal(t, "agent-1", s.Escalation.AssignedAgent)
}

func TestRecordMetrics_RunningAverage(t *testing.T) {
	t.Parallel()
	s := NewSession("s1", "", t0, time.Hour)

	require.NoError(t, AppendMessage(s, RoleUser, "hi", nil, t0, time.Hour))
	require.NoError(t, AppendMessage(s, RoleAssistant, "hello", nil, t0, time.Hour))
	require.NoError(t, RecordMetrics(s, MetricsUpdate{ResponseTime: 100 * time.Millisecond, Confidence: 0.8}))
	assert.InDelta(t, 100, s.Metrics.AvgResponseTimeMs, 1e-9)
	assert.InDelta(t, 0.8, s.Metrics.AvgConfidence, 1e-9)

	require.NoError(t, AppendMessage(s, RoleUser, "and?", nil, t0, time.Hour))
	require.NoError(t, AppendMessage(s, RoleAssistant, "more", nil, t0, time.Hour))
	require.NoError(t, RecordMetrics(s, MetricsUpdate{ResponseTime: 300 * time.Millisecond, Confidence: 0.4, Satisfaction: 4}))

	assert.InDelta(t, 200, s.Metrics.AvgResponseTimeMs, 1e-9)
	assert.InDelta(t, 0.6, s.Metrics.AvgConfidence, 1e-9)
	assert.Equal(t, 4, s.Metrics.Satisfaction)
	assert.Equal(t, 4, s.Metrics.MessageCount)

	// A rating alone leaves the averages alone.
	require.NoError(t, RecordMetrics(s, MetricsUpdate{Satisfaction: 5}))
	assert.InDelta(t, 200, s.Metrics.AvgResponseTimeMs, 1e-9)
	assert.InDelta(t, 0.6, s.Metrics.AvgConfidence, 1e-9)
	assert.ErrorIs(t, RecordMetrics(s, MetricsUpdate{Satisfaction: 6}), ErrInvalidSatisfaction)
}

func TestUpdateContext_IgnoresZeroFields(t *testing.T) {
	t.Parallel()
	s := NewSession("s1", "", t0, time.Hour)
	UpdateContext(s, ContextUpdate{Intent: IntentBooking, Entities: []string{"Hampta"}, Organizer: "Trail Co"})
	UpdateContext(s, ContextUpdate{CurrentSubject: "Hampta Pass Trek"})

	assert.Equal(t, IntentBooking, s.Context.LastIntent)
	assert.Equal(t, []string{"Hampta"}, s.Context.LastEntities)
	assert.Equal(t, "Trail Co", s.Context.Organizer)
	assert.Equal(t, "Hampta Pass Trek", s.Context.CurrentSubject)
}

func TestHistoryAndView(t *testing.T) {
	t.Parallel()
	s := NewSession("s1", "", t0, time.Hour)
	for i := range 10 {
		require.NoError(t, AppendMessage(s, RoleUser, string(rune('a'+i)), nil, t0, time.Hour))
	}

	h := History(s, 0)
	require.Len(t, h, DefaultHistory)
	assert.Equal(t, "j", h[len(h)-1].Content)
	assert.Len(t, History(s, 100), 10)

	v := View(s)
	assert.True(t, v.HasContext())
	assert.Len(t, v.RecentMessages, DefaultHistory)
	assert.False(t, ContextView{}.HasContext())
}

func TestForAgent_Labels(t *testing.T) {
	t.Parallel()
	s := NewSession("s1", "u1", t0, time.Hour)
	require.NoError(t, AppendMessage(s, RoleUser, "hi", nil, t0, time.Hour))
	require.NoError(t, AppendMessage(s, RoleAssistant, "hello", nil, t0, time.Hour))
	require.NoError(t, AppendMessage(s, RoleSystem, "note", nil, t0, time.Hour))
	Escalate(s, "x", t0)

	v := ForAgent(s)
	require.Len(t, v.FormattedHistory, 3)
	assert.Equal(t, "Customer", v.FormattedHistory[0].Role)
	assert.Equal(t, "AI Assistant", v.FormattedHistory[1].Role)
	assert.Equal(t, "System", v.FormattedHistory[2].Role)
	assert.True(t, v.Escalation.Escalated)

	v.Escalation.Reason = "mutated"
	assert.Equal(t, "x", s.Escalation.Reason, "agent view must not alias the session")
}
