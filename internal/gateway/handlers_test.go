package gateway

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/trekassist/internal/assistant"
	"github.com/flemzord/trekassist/internal/cache"
	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/security"
)

var authed = Config{Auth: AuthConfig{BearerToken: testToken}}

func TestChat_AnswersAndKeepsSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	rr := f.do(t, http.MethodPost, "/api/chat", assistant.Request{Message: "What is the refund policy?"}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	first := decodeJSON[assistant.Response](t, rr)
	assert.Equal(t, "You get a full refund 30 days out.", first.Answer)
	require.Len(t, first.Sources, 1)
	assert.Equal(t, refundResult.Document.ID, first.Sources[0].ID)

	rr = f.do(t, http.MethodPost, "/api/chat", assistant.Request{SessionID: first.SessionID, Message: "And for 20 days?"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, first.SessionID, decodeJSON[assistant.Response](t, rr).SessionID)

	history, err := f.manager.History(t.Context(), first.SessionID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestChat_RejectsBadBodies(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{MaxBodyBytes: 256, MaxChatRunes: 40})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty message", `{"message":"  "}`, http.StatusBadRequest},
		{"invalid json", `{"message":`, http.StatusBadRequest},
		{"too deep", strings.Repeat("[", 40) + strings.Repeat("]", 40), http.StatusBadRequest},
		{"too large", `{"message":"` + strings.Repeat("a", 300) + `"}`, http.StatusRequestEntityTooLarge},
		{"message too long", `{"message":"` + strings.Repeat("a", 41) + `"}`, http.StatusBadRequest},
		{"control characters", `{"message":"hi\u0000there"}`, http.StatusBadRequest},
		{"bad session id", `{"message":"hello","session_id":"../etc"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := f.do(t, http.MethodPost, "/api/chat", tt.body, "")
		assert.Equal(t, tt.want, rr.Code, tt.name)
	}
	assert.Zero(t, f.generator.Calls())
}

func TestReconfigure_UpdatesLimits(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Bind: "127.0.0.1:8080"})
	msg := assistant.Request{Message: "Is the Hampta Pass trek suitable for beginners?"}

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/chat", msg, "").Code)

	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("bind: 127.0.0.1:9090\nmax_chat_runes: 20\n"), &node))
	require.NoError(t, f.gateway.Reconfigure(node.Content[0]))

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/chat", msg, "").Code)
	assert.Equal(t, "127.0.0.1:8080", f.gateway.config.Bind, "listener settings wait for a restart")
	next := f.gateway.config
	next.Bind = "127.0.0.1:9090"
	next.MaxChatRunes = 20
	assert.Equal(t, []string{"bind"}, restartFields(f.gateway.config, next))
}

func TestChat_RateLimited(t *testing.T) {
	t.Parallel()
	cfg := Config{}
	cfg.RateLimit.ChatBurst = 2
	cfg.RateLimit.ChatPerMin = 1
	f := newFixture(t, cfg)

	for range 2 {
		rr := f.do(t, http.MethodPost, "/api/chat", assistant.Request{Message: "hello there"}, "")
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := f.do(t, http.MethodPost, "/api/chat", assistant.Request{Message: "hello there"}, "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	events := f.events()
	require.NotEmpty(t, events)
	assert.Equal(t, security.EventRateLimit, events[len(events)-1].Type)
}

func TestSessions_EscalateAssignAndList(t *testing.T) {
	t.Parallel()
	f := newFixture(t, authed)

	rr := f.do(t, http.MethodPost, "/api/chat", assistant.Request{UserID: "u1", Message: "Can I cancel my booking?"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	id := decodeJSON[assistant.Response](t, rr).SessionID

	// Assigning before escalation is a conflict.
	rr = f.do(t, http.MethodPost, "/api/sessions/"+id+"/assign", assignRequest{AgentID: "agent-7"}, testToken)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/sessions/"+id+"/escalate", escalateRequest{Reason: "wants a call"}, testToken)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/sessions/escalated", nil, testToken)
	require.Equal(t, http.StatusOK, rr.Code)
	queue := decodeJSON[[]conversation.AgentView](t, rr)
	require.Len(t, queue, 1)
	assert.Equal(t, id, queue[0].SessionID)
	require.NotNil(t, queue[0].Escalation)
	assert.Equal(t, "wants a call", queue[0].Escalation.Reason)

	rr = f.do(t, http.MethodPost, "/api/sessions/"+id+"/assign", assignRequest{AgentID: "agent-7"}, testToken)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/sessions/escalated", nil, testToken)
	assert.Empty(t, decodeJSON[[]conversation.AgentView](t, rr), "assigned sessions leave the unassigned queue")

	rr = f.do(t, http.MethodGet, "/api/sessions/escalated?agent_id=agent-7", nil, testToken)
	assert.Len(t, decodeJSON[[]conversation.AgentView](t, rr), 1)

	rr = f.do(t, http.MethodGet, "/api/sessions/"+id, nil, testToken)
	require.Equal(t, http.StatusOK, rr.Code)
	view := decodeJSON[conversation.AgentView](t, rr)
	assert.Equal(t, "u1", view.UserID)
	assert.Len(t, view.FormattedHistory, 2)

	var types []security.EventType
	for _, e := range f.events() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, security.EventEscalation)
	assert.Contains(t, types, security.EventAssignment)
}

func TestSessions_NotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, authed)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/sessions/missing", nil, testToken).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/sessions/missing/escalate", nil, testToken).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/sessions/bad%20id", nil, testToken).Code)
}

func TestSessions_StatsAreCached(t *testing.T) {
	t.Parallel()
	f := newFixture(t, authed)

	rr := f.do(t, http.MethodPost, "/api/chat", assistant.Request{Message: "hello there"}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/sessions/stats", nil, testToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeJSON[conversation.Statistics](t, rr).Total)

	// A second session is not visible until the analytics entry expires.
	rr = f.do(t, http.MethodPost, "/api/chat", assistant.Request{Message: "hello again"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = f.do(t, http.MethodGet, "/api/sessions/stats", nil, testToken)
	assert.Equal(t, 1, decodeJSON[conversation.Statistics](t, rr).Total)

	_, err := f.cache.Clear(t.Context(), cache.Analytics)
	require.NoError(t, err)
	rr = f.do(t, http.MethodGet, "/api/sessions/stats", nil, testToken)
	assert.Equal(t, 2, decodeJSON[conversation.Statistics](t, rr).Total)
}

func TestKnowledge_SearchUsesCache(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	rr := f.do(t, http.MethodGet, "/api/knowledge/search?q=refund&type=policy", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	first := decodeJSON[SearchResponse](t, rr)
	assert.False(t, first.Cached)
	require.Len(t, first.Results, 1)

	rr = f.do(t, http.MethodGet, "/api/knowledge/search?q=refund&type=policy", nil, "")
	assert.True(t, decodeJSON[SearchResponse](t, rr).Cached)
	assert.Equal(t, int32(1), f.knowledge.searches.Load())

	rr = f.do(t, http.MethodGet, "/api/knowledge/search?q=refund&type=faq", nil, "")
	assert.Empty(t, decodeJSON[SearchResponse](t, rr).Results)
}

func TestKnowledge_SearchValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	for _, target := range []string{
		"/api/knowledge/search",
		"/api/knowledge/search?q=x&type=trip",
		"/api/knowledge/search?q=x&top_k=0",
		"/api/knowledge/search?q=x&top_k=21",
	} {
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, target, nil, "").Code, target)
	}

	f.knowledge.ready = false
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/knowledge/search?q=x", nil, "").Code)
}

func TestKnowledge_RefreshClearsAnswerCaches(t *testing.T) {
	t.Parallel()
	f := newFixture(t, authed)

	require.NoError(t, f.cache.Set(t.Context(), cache.Search, "k", "v", 0))
	require.NoError(t, f.cache.Set(t.Context(), cache.Analytics, "k", "v", 0))

	rr := f.do(t, http.MethodPost, "/api/knowledge/refresh", nil, testToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int32(1), f.knowledge.refreshes.Load())

	var v string
	ok, err := f.cache.Get(t.Context(), cache.Search, "k", &v)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.cache.Get(t.Context(), cache.Analytics, "k", &v)
	require.NoError(t, err)
	assert.True(t, ok)

	f.knowledge.refreshErr = errors.New("booking api down")
	rr = f.do(t, http.MethodPost, "/api/knowledge/refresh", nil, testToken)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestCache_AdminRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, authed)
	ctx := t.Context()

	require.NoError(t, f.cache.Set(ctx, cache.Chat, "a", "1", 0))
	require.NoError(t, f.cache.Set(ctx, cache.Chat, "b", "2", 0))
	require.NoError(t, f.cache.Set(ctx, cache.Recommendation, cache.RecommendationKey("u1", 5), "r", 0))
	require.NoError(t, f.cache.Set(ctx, cache.Analytics, cache.AnalyticsKey("u1"), "a", 0))

	rr := f.do(t, http.MethodGet, "/api/cache/stats", nil, testToken)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decodeJSON[CacheStatsResponse](t, rr)
	assert.True(t, stats.Enabled)
	assert.Len(t, stats.Caches, len(cache.Names))

	rr = f.do(t, http.MethodDelete, "/api/cache/chat", nil, testToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decodeJSON[ClearResponse](t, rr).Cleared)

	rr = f.do(t, http.MethodDelete, "/api/cache/users/u1", nil, testToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeJSON[ClearResponse](t, rr).Cleared)
	var v string
	ok, err := f.cache.Get(ctx, cache.Analytics, cache.AnalyticsKey("u1"), &v)
	require.NoError(t, err)
	assert.False(t, ok, "analytics snapshot is dropped with the user")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/cache/bogus", nil, testToken).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/cache/all", nil, testToken).Code)
}

func TestWebhook_BookingChangeRefreshesCorpus(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.knowledge.refreshed = make(chan struct{}, 1)

	rr := f.do(t, http.MethodPost, "/webhooks/booking", BookingEvent{Event: "trip.updated", ID: "t-42"}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	select {
	case <-f.knowledge.refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh was not triggered")
	}

	rr = f.do(t, http.MethodPost, "/webhooks/booking", BookingEvent{Event: "payment.captured"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, f.gateway.Stop(t.Context()))
	assert.Equal(t, int32(1), f.knowledge.refreshes.Load())
}
