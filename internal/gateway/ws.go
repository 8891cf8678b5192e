package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/trekassist/internal/assistant"
	"github.com/flemzord/trekassist/internal/security"
)

// Chat socket message types.
const (
	MsgChat         = "chat"
	MsgRequestHuman = "request_human"
	MsgReply        = "reply"
	MsgEscalated    = "escalated"
	MsgError        = "error"
)

const socketWriteTimeout = 10 * time.Second

// Envelope wraps every message on /ws/chat.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// HumanRequest asks for a human agent.
type HumanRequest struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// EscalatedPayload answers a HumanRequest.
type EscalatedPayload struct {
	SessionID string `json:"session_id"`
	Escalated bool   `json:"escalated"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// chatSocket is one /ws/chat connection. The session ID sticks to the
// connection once the first reply assigns it.
type chatSocket struct {
	g       *Gateway
	conn    *websocket.Conn
	remote  string
	session string
	r       *http.Request
}

// handleChatSocket upgrades to a WebSocket and serves chat turns until the
// client goes away.
func (g *Gateway) handleChatSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Chat == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: g.config.AllowedOrigins,
		})
		if err != nil {
			g.logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()
		conn.SetReadLimit(int64(g.limit().maxBodyBytes))

		socketsOpen.Inc()
		defer socketsOpen.Dec()

		s := &chatSocket{g: g, conn: conn, remote: clientKey(r), r: r}
		s.readLoop(r.Context())
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (s *chatSocket) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.g.logger.Debug("chat socket read failed", "remote", s.remote, "error", err)
			}
			return
		}

		var env Envelope
		if _, err := s.g.decode(data, &env); err != nil {
			s.sendError(ctx, "", "invalid message format")
			continue
		}

		switch env.Type {
		case MsgChat:
			s.handleChat(ctx, env)
		case MsgRequestHuman:
			s.handleHumanRequest(ctx, env)
		default:
			s.sendError(ctx, env.ID, "unknown message type: "+env.Type)
		}
	}
}

func (s *chatSocket) handleChat(ctx context.Context, env Envelope) {
	if err := s.g.limiter.Allow(security.KindChat, s.remote); err != nil {
		emitEvent(s.g.audit, security.EventRateLimit, s.r, "chat socket")
		s.sendError(ctx, env.ID, "too many requests")
		return
	}

	var req assistant.Request
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		s.sendError(ctx, env.ID, "invalid chat payload")
		return
	}
	if req.SessionID == "" {
		req.SessionID = s.session
	}
	if err := validateChat(req, s.g.limit().maxChatRunes); err != nil {
		s.sendError(ctx, env.ID, err.Error())
		return
	}

	resp, err := s.g.deps.Chat.Chat(ctx, req)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyMessage) {
			s.sendError(ctx, env.ID, err.Error())
			return
		}
		s.g.logger.Error("chat socket turn failed", "session_id", req.SessionID, "error", err)
		s.sendError(ctx, env.ID, "chat failed")
		return
	}
	s.session = resp.SessionID
	s.send(ctx, MsgReply, env.ID, resp)
}

func (s *chatSocket) handleHumanRequest(ctx context.Context, env Envelope) {
	var req HumanRequest
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			s.sendError(ctx, env.ID, "invalid request_human payload")
			return
		}
	}
	if req.SessionID == "" {
		req.SessionID = s.session
	}
	if req.SessionID == "" {
		s.sendError(ctx, env.ID, "no session to escalate")
		return
	}
	if req.Reason == "" {
		req.Reason = "customer requested a human agent"
	}
	if err := s.g.limiter.Allow(security.KindEscalate, req.SessionID); err != nil {
		s.sendError(ctx, env.ID, "too many requests")
		return
	}

	changed, err := s.g.deps.Chat.Escalate(ctx, req.SessionID, req.Reason)
	if err != nil {
		s.sendError(ctx, env.ID, "escalation failed")
		return
	}
	if changed && s.g.audit != nil {
		s.g.audit.Log(security.AuditEvent{
			Type:      security.EventEscalation,
			SessionID: req.SessionID,
			Remote:    s.remote,
			Detail:    req.Reason,
		})
	}
	s.send(ctx, MsgEscalated, env.ID, EscalatedPayload{SessionID: req.SessionID, Escalated: true})
}

func (s *chatSocket) sendError(ctx context.Context, id, msg string) {
	s.send(ctx, MsgError, id, errorPayload{Message: msg})
}

func (s *chatSocket) send(ctx context.Context, typ, id string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.g.logger.Error("chat socket marshal failed", "type", typ, "error", err)
		return
	}
	data, _ := json.Marshal(Envelope{Type: typ, ID: id, Payload: raw, Timestamp: time.Now()})

	wctx, cancel := context.WithTimeout(ctx, socketWriteTimeout)
	defer cancel()
	if err := s.conn.Write(wctx, websocket.MessageText, data); err != nil {
		s.g.logger.Debug("chat socket write failed", "remote", s.remote, "error", err)
	}
}
