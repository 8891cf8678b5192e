package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/flemzord/trekassist/internal/assistant"
	"github.com/flemzord/trekassist/internal/security"
)

// handleChat answers one customer message.
func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Chat == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		if err := g.limiter.Allow(security.KindChat, clientKey(r)); err != nil {
			emitEvent(g.audit, security.EventRateLimit, r, "chat")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		var req assistant.Request
		if code, err := g.decodeBody(r, &req); err != nil {
			writeError(w, code, err.Error())
			return
		}

		if err := validateChat(req, g.limit().maxChatRunes); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		resp, err := g.deps.Chat.Chat(r.Context(), req)
		switch {
		case errors.Is(err, assistant.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			g.logger.Error("chat failed", "session_id", req.SessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "chat failed")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func validateChat(req assistant.Request, maxRunes int) error {
	if err := security.ValidateChatText(req.Message, maxRunes); err != nil {
		return err
	}
	if req.SessionID != "" {
		if err := security.ValidateIdentifier(req.SessionID); err != nil {
			return fmt.Errorf("session_id: %w", err)
		}
	}
	if req.UserID != "" {
		if err := security.ValidateIdentifier(req.UserID); err != nil {
			return fmt.Errorf("user_id: %w", err)
		}
	}
	return nil
}
