package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemzord/trekassist/internal/assistant"
)

type socketClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialChat(t *testing.T, f *fixture) *socketClient {
	t.Helper()
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return &socketClient{t: t, conn: conn}
}

func (c *socketClient) send(typ, id string, payload any) {
	c.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(c.t, err)
	data, err := json.Marshal(Envelope{Type: typ, ID: id, Payload: raw, Timestamp: time.Now()})
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.Write(c.t.Context(), websocket.MessageText, data))
}

func (c *socketClient) recv() Envelope {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(c.t.Context(), 5*time.Second)
	defer cancel()
	_, data, err := c.conn.Read(ctx)
	require.NoError(c.t, err)
	var env Envelope
	require.NoError(c.t, json.Unmarshal(data, &env))
	return env
}

func TestChatSocket_ConversationAndEscalation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	c := dialChat(t, f)

	c.send(MsgChat, "1", assistant.Request{Message: "What is the refund policy?"})
	env := c.recv()
	require.Equal(t, MsgReply, env.Type)
	assert.Equal(t, "1", env.ID)
	var first assistant.Response
	require.NoError(t, json.Unmarshal(env.Payload, &first))
	assert.NotEmpty(t, first.SessionID)
	assert.NotEmpty(t, first.Answer)

	// The connection remembers its session.
	c.send(MsgChat, "2", assistant.Request{Message: "Thanks, and for 10 days?"})
	env = c.recv()
	require.Equal(t, MsgReply, env.Type)
	var second assistant.Response
	require.NoError(t, json.Unmarshal(env.Payload, &second))
	assert.Equal(t, first.SessionID, second.SessionID)

	c.send(MsgRequestHuman, "3", HumanRequest{Reason: "need to talk to someone"})
	env = c.recv()
	require.Equal(t, MsgEscalated, env.Type)
	var esc EscalatedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &esc))
	assert.Equal(t, first.SessionID, esc.SessionID)
	assert.True(t, esc.Escalated)

	queue, err := f.manager.ListEscalated(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "need to talk to someone", queue[0].Escalation.Reason)
}

func TestChatSocket_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	c := dialChat(t, f)

	c.send(MsgRequestHuman, "1", HumanRequest{})
	env := c.recv()
	assert.Equal(t, MsgError, env.Type)
	assert.Contains(t, string(env.Payload), "no session")

	c.send("typing_start", "2", struct{}{})
	env = c.recv()
	assert.Equal(t, MsgError, env.Type)
	assert.Equal(t, "2", env.ID)

	c.send(MsgChat, "3", assistant.Request{Message: " "})
	env = c.recv()
	assert.Equal(t, MsgError, env.Type)

	require.NoError(t, c.conn.Write(t.Context(), websocket.MessageText, []byte("not json")))
	assert.Equal(t, MsgError, c.recv().Type)
}
