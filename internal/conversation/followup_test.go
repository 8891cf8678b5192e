package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFollowUp(t *testing.T) {
	t.Parallel()
	withEntities := ContextView{LastEntities: []string{"Kedarkantha"}}
	withIntent := ContextView{LastIntent: IntentBooking}

	tests := []struct {
		name    string
		message string
		view    ContextView
		want    bool
		kind    FollowUpKind
	}{
		{"no context", "and that one?", ContextView{}, false, FollowUpNone},
		{"world knowledge", "What is the capital of France?", withEntities, false, FollowUpNone},
		{"world knowledge with reference", "Who is the organizer of that one?", withEntities, true, FollowUpClarification},
		{"reference with question", "and that one?", withEntities, true, FollowUpContinuation},
		{"short reference", "tell me about it", withIntent, true, FollowUpClarification},
		{"filler", "hmm ok", withIntent, true, FollowUpClarification},
		{"clarification with reference", "could you explain how that works for groups of twelve people", withIntent, true, FollowUpClarification},
		{"continuation", "I would also like to know about the packing list for the trip", withIntent, true, FollowUpContinuation},
		{"short question", "price?", withIntent, true, FollowUpClarification},
		{"long standalone statement", "I am planning a Himalayan adventure for my family during summer holidays", withIntent, false, FollowUpNone},
		{"substring does not count", "Uttarakhand Himalayas seem wonderful for my upcoming summer holidays trip", withIntent, false, FollowUpNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := DetectFollowUp(tt.message, tt.view)
			assert.Equal(t, tt.want, got.IsFollowUp)
			assert.Equal(t, tt.kind, got.Kind)
			if got.IsFollowUp {
				assert.NotNil(t, got.Reference)
			}
		})
	}
}

func TestEnhanceWithContext(t *testing.T) {
	t.Parallel()
	view := ContextView{LastIntent: IntentBooking, LastEntities: []string{"Kedarkantha", "winter"}}

	got := EnhanceWithContext("and that one?", view)
	assert.True(t, strings.HasPrefix(got, "[Context: Previous topic: booking | Mentioned: Kedarkantha, winter]"))
	assert.True(t, strings.HasSuffix(got, "User follow-up question: and that one?"))

	assert.Equal(t, "What is the capital of France?", EnhanceWithContext("What is the capital of France?", view))
	assert.Equal(t, "and that one?", EnhanceWithContext("and that one?", ContextView{}))
}

func TestExtractMetadata(t *testing.T) {
	t.Parallel()
	tests := []struct {
		message   string
		intent    Intent
		entities  []string
		sentiment Sentiment
	}{
		{"I want to book the Kedarkantha winter trek", IntentBooking, []string{"Kedarkantha", "winter"}, SentimentNeutral},
		{"How do I cancel and get a refund?", IntentCancellation, nil, SentimentNeutral},
		{"Thanks, the Markha Valley suggestion was great!", IntentRecommendation, []string{"Markha Valley"}, SentimentPositive},
		{"I'm worried about safety on a difficult trek", IntentSafety, []string{"difficult"}, SentimentNegative},
		{"Good trip but terrible food", IntentNone, nil, SentimentNeutral},
		{"What should I pack for monsoon in Spiti?", IntentPacking, []string{"Spiti", "monsoon"}, SentimentNeutral},
		{"my vehicle broke", IntentNone, nil, SentimentNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			t.Parallel()
			md := ExtractMetadata(tt.message)
			assert.Equal(t, tt.intent, md.Intent)
			assert.Equal(t, tt.entities, md.Entities)
			assert.Equal(t, tt.sentiment, md.Sentiment)
		})
	}
}
