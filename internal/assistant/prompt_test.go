package assistant

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/knowledge"
)

func TestFormatHistory_KeepsNewestWithinLimit(t *testing.T) {
	t.Parallel()
	msgs := []conversation.Message{
		{Role: conversation.RoleUser, Content: strings.Repeat("a", 50)},
		{Role: conversation.RoleAssistant, Content: "short reply"},
		{Role: conversation.RoleUser, Content: "latest"},
	}

	got := formatHistory(msgs, 50)
	assert.Equal(t, "Assistant: short reply\nCustomer: latest", got)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 50)
	assert.Empty(t, formatHistory(msgs, 0))
}

func TestRequestedFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		msg  string
		want []string
	}{
		{"What's the price for Manali trek by Org X", []string{"price"}},
		{"How long is it and what does it cost?", []string{"price", "duration"}},
		{"When does the Hampta batch start?", []string{"start date"}},
		{"Is it priceless?", nil},
		{"Tell me about Triund", nil},
	}
	for _, tt := range tests {
		got := requestedFields(tt.msg)
		if tt.want == nil {
			assert.Empty(t, got, tt.msg)
			continue
		}
		assert.Equal(t, tt.want, labels(got), tt.msg)
	}
}

func TestFallbackAnswer(t *testing.T) {
	t.Parallel()
	docs := []knowledge.Result{
		{Document: knowledge.Document{Title: "Booking flow", Content: strings.Repeat("word ", 100)}, Score: 0.9},
		{Document: knowledge.Document{Title: "Payments", Content: "UPI and cards."}, Score: 0.5},
		{Document: knowledge.Document{Title: "Permits", Content: "Carry ID."}, Score: 0.4},
	}

	answer, conf := fallbackAnswer(docs, 2)
	assert.Contains(t, answer, "Booking flow")
	assert.Contains(t, answer, "Payments: UPI and cards.")
	assert.NotContains(t, answer, "Permits")
	assert.Contains(t, answer, "…")
	assert.InDelta(t, 0.7, conf, 1e-9)

	answer, conf = fallbackAnswer(nil, 3)
	assert.Equal(t, noInfoAnswer, answer)
	assert.InDelta(t, noInfoConfidence, conf, 1e-9)
}

func TestSystemPrompt(t *testing.T) {
	t.Parallel()
	view := conversation.ContextView{
		RecentMessages: []conversation.Message{{Role: conversation.RoleUser, Content: "hi"}},
		Summary:        &conversation.Summary{Topics: []conversation.Intent{conversation.IntentBooking}},
	}
	docs := []knowledge.Result{{Document: knowledge.Document{Title: "Refunds", Type: knowledge.TypePolicy, Content: "Full refund."}}}

	got := systemPrompt(docs, view, 100, []string{"price"})
	assert.True(t, strings.HasPrefix(got, persona))
	assert.Contains(t, got, "[1] Refunds (policy)\nFull refund.")
	assert.Contains(t, got, "Customer: hi")
	assert.Contains(t, got, "topics booking; mentioned none")
	assert.Contains(t, got, "must not be stated: price")
}
