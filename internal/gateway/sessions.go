package gateway

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/trekassist/internal/cache"
	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/security"
)

// statsCacheKey is the analytics cache entry for session statistics.
var statsCacheKey = cache.AnalyticsKey("all")

// sessionStatus maps conversation errors to HTTP codes.
func sessionStatus(err error) int {
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrNotEscalated):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleGetSession renders a conversation for the agent console.
func (g *Gateway) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Sessions == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		view, err := g.deps.Sessions.ForAgent(r.Context(), id)
		if err != nil {
			writeError(w, sessionStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// handleListEscalated lists escalations. Without ?agent_id it returns the
// unassigned queue.
func (g *Gateway) handleListEscalated() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Sessions == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		sessions, err := g.deps.Sessions.ListEscalated(r.Context(), r.URL.Query().Get("agent_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]conversation.AgentView, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, conversation.ForAgent(s))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type escalateRequest struct {
	Reason string `json:"reason"`
}

// handleEscalate hands a session to the human queue.
func (g *Gateway) handleEscalate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Chat == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req escalateRequest
		if code, err := g.decodeBody(r, &req); err != nil {
			writeError(w, code, err.Error())
			return
		}
		if req.Reason == "" {
			req.Reason = "escalated by agent"
		}

		changed, err := g.deps.Chat.Escalate(r.Context(), id, req.Reason)
		if err != nil {
			writeError(w, sessionStatus(err), err.Error())
			return
		}
		if changed && g.audit != nil {
			g.audit.Log(security.AuditEvent{
				Type:      security.EventEscalation,
				SessionID: id,
				Remote:    clientKey(r),
				Detail:    req.Reason,
			})
		}
		writeJSON(w, http.StatusOK, EscalatedPayload{SessionID: id, Escalated: true})
	}
}

type assignRequest struct {
	AgentID string `json:"agent_id"`
}

// handleAssign records the agent taking an escalated session.
func (g *Gateway) handleAssign() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Sessions == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req assignRequest
		if code, err := g.decodeBody(r, &req); err != nil {
			writeError(w, code, err.Error())
			return
		}
		if err := security.ValidateIdentifier(req.AgentID); err != nil {
			writeError(w, http.StatusBadRequest, "agent_id: "+err.Error())
			return
		}

		if err := g.deps.Sessions.AssignToAgent(r.Context(), id, req.AgentID); err != nil {
			writeError(w, sessionStatus(err), err.Error())
			return
		}
		if g.audit != nil {
			g.audit.Log(security.AuditEvent{
				Type:      security.EventAssignment,
				SessionID: id,
				AgentID:   req.AgentID,
				Remote:    clientKey(r),
			})
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleSessionStats reports conversation totals. Results are held in the
// analytics cache for its TTL.
func (g *Gateway) handleSessionStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Sessions == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		var st conversation.Statistics
		if c := g.deps.Cache; c != nil {
			if ok, _ := c.Get(r.Context(), cache.Analytics, statsCacheKey, &st); ok {
				writeJSON(w, http.StatusOK, st)
				return
			}
		}

		st, err := g.deps.Sessions.Statistics(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if c := g.deps.Cache; c != nil {
			if err := c.Set(r.Context(), cache.Analytics, statsCacheKey, st, 0); err != nil {
				g.logger.Warn("caching session stats failed", "error", err)
			}
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// pathID returns the {id} route parameter, answering 400 when it is not a
// valid identifier.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := security.ValidateIdentifier(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
