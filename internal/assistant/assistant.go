// Package assistant answers chat messages: it tracks the conversation,
// retrieves knowledge, asks a text generator and falls back to a quoted
// answer whenever generation is unavailable.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/trekassist/internal/cache"
	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/knowledge"
	"github.com/flemzord/trekassist/internal/provider"
)

// ErrEmptyMessage is returned for a blank chat message.
var ErrEmptyMessage = errors.New("assistant: message must not be empty")

// Retriever searches the knowledge corpus.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, typ knowledge.Type) ([]knowledge.Result, error)
}

// Request is one inbound chat turn. An empty SessionID starts a new
// conversation.
type Request struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Message   string `json:"message"`
}

// Source is a document the answer drew on.
type Source struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Type      knowledge.Type `json:"type"`
	Score     float64        `json:"score"`
	Organizer string         `json:"organizer,omitempty"`
}

// Response is the assistant's reply.
type Response struct {
	SessionID     string                    `json:"session_id"`
	Answer        string                    `json:"answer"`
	Sources       []Source                  `json:"sources"`
	Confidence    float64                   `json:"confidence"`
	Intent        conversation.Intent       `json:"intent,omitempty"`
	FollowUp      conversation.FollowUpKind `json:"follow_up"`
	MissingFields []string                  `json:"missing_fields,omitempty"`
	Fallback      bool                      `json:"fallback"`
	Cached        bool                      `json:"cached"`
	Model         string                    `json:"model,omitempty"`
}

// cachedAnswer is what the chat cache stores. Session-specific fields are
// filled per request.
type cachedAnswer struct {
	Answer        string   `json:"answer"`
	Sources       []Source `json:"sources"`
	Confidence    float64  `json:"confidence"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Model         string   `json:"model,omitempty"`
}

// Assistant runs the chat pipeline. It is safe for concurrent use.
type Assistant struct {
	conversations *conversation.Manager
	retriever     Retriever
	generator     provider.TextGenerator
	cache         *cache.Service
	cfg           Config
	logger        *slog.Logger
	now           func() time.Time
	tracer        trace.Tracer
}

// New wires the pipeline. generator and cache may be nil: without a
// generator every answer is the fallback, without a cache every turn is
// computed.
func New(conversations *conversation.Manager, retriever Retriever, generator provider.TextGenerator, c *cache.Service, cfg Config) (*Assistant, error) {
	if conversations == nil || retriever == nil {
		return nil, errors.New("assistant: conversations and retriever are required")
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Assistant{
		conversations: conversations,
		retriever:     retriever,
		generator:     generator,
		cache:         c,
		cfg:           cfg,
		logger:        cfg.Logger,
		now:           cfg.Now,
		tracer:        otel.Tracer("github.com/flemzord/trekassist/internal/assistant"),
	}, nil
}

// Chat answers one message. Provider, cache and persistence failures never
// fail the turn; only an empty message or an unreadable session store do.
func (a *Assistant) Chat(ctx context.Context, req Request) (*Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	start := a.now()
	defer func() { chatDuration.Observe(a.now().Sub(start).Seconds()) }()

	ctx, span := a.tracer.Start(ctx, "assistant.chat")
	defer span.End()

	sess, err := a.conversations.GetOrCreate(ctx, req.SessionID, req.UserID)
	if sess == nil {
		span.RecordError(err)
		return nil, err
	}
	if err != nil {
		a.logger.Warn("new session not persisted", "session_id", sess.ID, "error", err)
	}
	span.SetAttributes(attribute.String("session_id", sess.ID))

	view := conversation.View(sess)
	md := conversation.ExtractMetadata(message)
	fu := conversation.DetectFollowUp(message, view)

	resp := &Response{
		SessionID: sess.ID,
		Intent:    md.Intent,
		FollowUp:  fu.Kind,
	}

	key := cache.ChatKey(strings.ToLower(message), contextKey(view, a.cfg.MaxContextLength))
	var hit cachedAnswer
	if a.cache != nil {
		ok, err := a.cache.Get(ctx, cache.Chat, key, &hit)
		if err != nil {
			a.logger.Debug("chat cache read failed", "error", err)
		}
		if ok {
			resp.Answer, resp.Sources, resp.Confidence = hit.Answer, hit.Sources, hit.Confidence
			resp.MissingFields, resp.Model, resp.Cached = hit.MissingFields, hit.Model, true
			chatTotal.WithLabelValues(pathCached).Inc()
			a.record(ctx, sess.ID, message, md, resp, start)
			return resp, nil
		}
	}

	query := message
	if fu.IsFollowUp && fu.Reference != nil && len(fu.Reference.LastEntities) > 0 {
		query = message + " " + strings.Join(fu.Reference.LastEntities, " ")
	}
	docs := a.retrieve(ctx, query)
	resp.Sources = sources(docs)

	asked := requestedFields(message)
	trip, missing, isTrip := missingFields(docs, asked)
	switch {
	case isTrip && len(missing) > 0 && len(missing) == len(asked):
		resp.Answer = missingAnswer(trip.Document, missing)
		resp.MissingFields = labels(missing)
		resp.Confidence = trip.Score
		chatTotal.WithLabelValues(pathTemplated).Inc()
	default:
		if isTrip && len(missing) > 0 {
			resp.MissingFields = labels(missing)
		}
		a.generate(ctx, resp, message, view, docs, fu.IsFollowUp)
	}

	if a.cache != nil && !resp.Fallback {
		err := a.cache.Set(ctx, cache.Chat, key, cachedAnswer{
			Answer:        resp.Answer,
			Sources:       resp.Sources,
			Confidence:    resp.Confidence,
			MissingFields: resp.MissingFields,
			Model:         resp.Model,
		}, 0)
		if err != nil {
			a.logger.Debug("chat cache write failed", "error", err)
		}
	}

	a.record(ctx, sess.ID, message, md, resp, start)
	span.SetAttributes(
		attribute.Bool("fallback", resp.Fallback),
		attribute.Int("sources", len(resp.Sources)),
	)
	return resp, nil
}

// retrieve returns documents at or above the relevance threshold. A corpus
// that is not ready or fails counts as no documents.
func (a *Assistant) retrieve(ctx context.Context, query string) []knowledge.Result {
	results, err := a.retriever.Search(ctx, query, a.cfg.TopK, "")
	if err != nil {
		a.logger.Warn("knowledge search failed", "error", err)
		return nil
	}
	out := results[:0:0]
	for _, r := range results {
		if r.Score >= a.cfg.RelevanceThreshold {
			out = append(out, r)
		}
	}
	retrievedDocs.Observe(float64(len(out)))
	return out
}

// generate fills resp from the generator, or from the fallback when it is
// missing, fails or times out. A failed call is not retried.
func (a *Assistant) generate(ctx context.Context, resp *Response, message string, view conversation.ContextView, docs []knowledge.Result, followUp bool) {
	if a.generator == nil {
		a.fallback(resp, docs)
		return
	}

	prompt := message
	if followUp {
		prompt = conversation.EnhanceWithContext(message, view)
	}
	system := systemPrompt(docs, view, a.cfg.MaxContextLength, resp.MissingFields)

	gctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	text, err := a.generator.Generate(gctx, system, prompt, a.cfg.MaxTokens)
	if err == nil {
		text = strings.TrimSpace(text)
	}
	if err != nil || text == "" {
		if err == nil {
			err = provider.ErrProviderUnavailable
		}
		a.logger.Warn("generation failed, answering from knowledge",
			"error", err, "retryable", provider.IsRetryable(err))
		a.fallback(resp, docs)
		return
	}

	resp.Answer = text
	resp.Model = a.generator.ModelName()
	resp.Confidence = confidence(docs)
	chatTotal.WithLabelValues(pathGenerated).Inc()
}

func (a *Assistant) fallback(resp *Response, docs []knowledge.Result) {
	resp.Answer, resp.Confidence = fallbackAnswer(docs, a.cfg.FallbackDocs)
	resp.Fallback = true
	chatTotal.WithLabelValues(pathFallback).Inc()
}

// record appends both turns and updates the follow-up context and metrics.
// Failures are logged: the caller already has its answer.
func (a *Assistant) record(ctx context.Context, sessionID, message string, md conversation.Metadata, resp *Response, start time.Time) {
	userMD := md
	if _, err := a.conversations.AddMessage(ctx, sessionID, conversation.RoleUser, message, &userMD); err != nil {
		a.persistFailed(sessionID, "append user message", err)
	}

	replyMD := &conversation.Metadata{
		Intent: md.Intent,
		Extensions: map[string]string{
			"confidence": strconv.FormatFloat(resp.Confidence, 'f', 3, 64),
		},
	}
	if resp.Fallback {
		replyMD.Extensions["fallback"] = "true"
	}
	if len(resp.MissingFields) > 0 {
		replyMD.RequiresFollowUp = true
		replyMD.Extensions["missing_fields"] = strings.Join(resp.MissingFields, ",")
	}
	if _, err := a.conversations.AddMessage(ctx, sessionID, conversation.RoleAssistant, resp.Answer, replyMD); err != nil {
		a.persistFailed(sessionID, "append reply", err)
	}

	if err := a.conversations.UpdateContext(ctx, sessionID, contextUpdate(md, resp)); err != nil {
		a.persistFailed(sessionID, "update context", err)
	}
	err := a.conversations.UpdateMetrics(ctx, sessionID, conversation.MetricsUpdate{
		ResponseTime: a.now().Sub(start),
		Confidence:   resp.Confidence,
	})
	if err != nil {
		a.persistFailed(sessionID, "update metrics", err)
	}
}

func (a *Assistant) persistFailed(sessionID, op string, err error) {
	persistErrors.Inc()
	a.logger.Warn("conversation update failed", "session_id", sessionID, "op", op, "error", err)
}

// contextUpdate points the follow-up context at the entities this turn
// drew on. Sources arrive best first.
func contextUpdate(md conversation.Metadata, resp *Response) conversation.ContextUpdate {
	u := conversation.ContextUpdate{Intent: md.Intent, Entities: md.Entities}
	for _, s := range resp.Sources {
		if s.Type != knowledge.TypeEntity {
			continue
		}
		if u.CurrentSubject == "" {
			u.CurrentSubject = s.Title
			u.Organizer = s.Organizer
		}
		u.RelatedIDs = append(u.RelatedIDs, s.ID)
	}
	return u
}

// contextKey serializes every part of the session that reaches the
// prompts: the follow-up reference, the history as the model sees it and
// the summary of compacted turns.
func contextKey(v conversation.ContextView, maxHistory int) string {
	var b strings.Builder
	b.WriteString(string(v.LastIntent))
	b.WriteByte('|')
	b.WriteString(strings.Join(v.LastEntities, ","))
	b.WriteByte('|')
	b.WriteString(v.CurrentSubject)
	b.WriteByte('|')
	b.WriteString(formatHistory(v.RecentMessages, maxHistory))
	if s := v.Summary; s != nil {
		b.WriteByte('|')
		for _, t := range s.Topics {
			b.WriteString(string(t))
			b.WriteByte(',')
		}
		b.WriteByte('|')
		b.WriteString(strings.Join(s.Entities, ","))
	}
	return b.String()
}

func sources(docs []knowledge.Result) []Source {
	out := make([]Source, len(docs))
	for i, r := range docs {
		out[i] = Source{ID: r.Document.ID, Title: r.Document.Title, Type: r.Document.Type, Score: r.Score}
		out[i].Organizer, _ = r.Document.Field(knowledge.MetaOrganizer)
	}
	return out
}

// Escalate hands a session to a human agent.
func (a *Assistant) Escalate(ctx context.Context, sessionID, reason string) (bool, error) {
	return a.conversations.Escalate(ctx, sessionID, reason)
}
