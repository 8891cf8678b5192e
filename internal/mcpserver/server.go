// Package mcpserver exposes the knowledge corpus and the escalation queue
// as Model Context Protocol tools, so support agents can query them from
// an MCP-capable client.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/knowledge"
)

// Knowledge is the part of the corpus the tools read.
type Knowledge interface {
	Search(ctx context.Context, query string, topK int, typ knowledge.Type) ([]knowledge.Result, error)
	Get(id string) (knowledge.Document, bool)
}

// Sessions is the part of the conversation manager the tools read.
type Sessions interface {
	ForAgent(ctx context.Context, id string) (conversation.AgentView, error)
	ListEscalated(ctx context.Context, agentID string) ([]*conversation.Session, error)
}

const (
	defaultTopK   = 5
	maxTopK       = 20
	maxGetIDs     = 20
	previewLength = 160
)

// New builds the MCP server with every tool registered.
func New(version string, k Knowledge, s Sessions) *server.MCPServer {
	srv := server.NewMCPServer("trekassist", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	h := &handlers{knowledge: k, sessions: s}

	srv.AddTool(mcp.NewTool("knowledge_search",
		mcp.WithDescription("Search trips, organizers, policies and FAQs. Returns ranked results with short previews; "+
			"call knowledge_get for the full text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language search query")),
		mcp.WithNumber("top_k", mcp.Description("Maximum results (default 5, at most 20)")),
		mcp.WithString("type", mcp.Description("Restrict to one document type"),
			mcp.Enum(string(knowledge.TypeEntity), string(knowledge.TypePolicy), string(knowledge.TypeFaq), string(knowledge.TypeGeneral))),
	), h.search)

	srv.AddTool(mcp.NewTool("knowledge_get",
		mcp.WithDescription("Retrieve full documents by ID."),
		mcp.WithArray("ids", mcp.Required(), mcp.Description("Document IDs from knowledge_search"),
			mcp.WithStringItems()),
	), h.get)

	srv.AddTool(mcp.NewTool("session_get",
		mcp.WithDescription("Show a conversation the way the agent console does: formatted history, "+
			"summary, escalation state and collected trip details."),
		mcp.WithString("session_id", mcp.Required()),
	), h.session)

	srv.AddTool(mcp.NewTool("escalation_queue",
		mcp.WithDescription("List escalated conversations. Without agent_id, lists the unassigned ones."),
		mcp.WithString("agent_id", mcp.Description("Only conversations assigned to this agent")),
	), h.queue)

	return srv
}

// ServeStdio runs srv on stdin/stdout until ctx ends or the client leaves.
func ServeStdio(ctx context.Context, srv *server.MCPServer) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(srv) }()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

type handlers struct {
	knowledge Knowledge
	sessions  Sessions
}

// SearchHit is one knowledge_search result.
type SearchHit struct {
	ID      string         `json:"id"`
	Type    knowledge.Type `json:"type"`
	Title   string         `json:"title"`
	Score   float64        `json:"score"`
	Preview string         `json:"preview"`
}

func (h *handlers) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	topK := req.GetInt("top_k", defaultTopK)
	if topK < 1 || topK > maxTopK {
		return mcp.NewToolResultError(fmt.Sprintf("top_k must be between 1 and %d", maxTopK)), nil
	}
	typ := knowledge.Type(req.GetString("type", ""))

	results, err := h.knowledge.Search(ctx, query, topK, typ)
	if errors.Is(err, knowledge.ErrNotReady) {
		return mcp.NewToolResultError("knowledge base is still indexing, retry shortly"), nil
	}
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{
			ID:      r.Document.ID,
			Type:    r.Document.Type,
			Title:   r.Document.Title,
			Score:   r.Score,
			Preview: preview(r.Document.Content),
		}
	}
	return jsonResult(hits)
}

func (h *handlers) get(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := req.RequireStringSlice("ids")
	if err != nil || len(ids) == 0 {
		return mcp.NewToolResultError("ids is required"), nil
	}
	if len(ids) > maxGetIDs {
		return mcp.NewToolResultError(fmt.Sprintf("at most %d ids per call", maxGetIDs)), nil
	}

	docs := make([]knowledge.Document, 0, len(ids))
	var missing []string
	for _, id := range ids {
		d, ok := h.knowledge.Get(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		docs = append(docs, d)
	}
	return jsonResult(struct {
		Documents []knowledge.Document `json:"documents"`
		Missing   []string             `json:"missing,omitempty"`
	}{docs, missing})
}

func (h *handlers) session(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	view, err := h.sessions.ForAgent(ctx, id)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		return mcp.NewToolResultError("no such session: " + id), nil
	}
	if err != nil {
		return nil, err
	}
	return jsonResult(view)
}

// QueueEntry is one escalation_queue row.
type QueueEntry struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id,omitempty"`
	Reason        string    `json:"reason"`
	EscalatedAt   time.Time `json:"escalated_at"`
	AssignedAgent string    `json:"assigned_agent,omitempty"`
	LastMessage   string    `json:"last_message,omitempty"`
}

func (h *handlers) queue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := h.sessions.ListEscalated(ctx, req.GetString("agent_id", ""))
	if err != nil {
		return nil, err
	}
	out := make([]QueueEntry, 0, len(sessions))
	for _, s := range sessions {
		v := conversation.ForAgent(s)
		e := QueueEntry{SessionID: v.SessionID, UserID: v.UserID}
		if v.Escalation != nil {
			e.Reason = v.Escalation.Reason
			e.EscalatedAt = v.Escalation.EscalatedAt
			e.AssignedAgent = v.Escalation.AssignedAgent
		}
		if n := len(v.FormattedHistory); n > 0 {
			e.LastMessage = preview(v.FormattedHistory[n-1].Message)
		}
		out = append(out, e)
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength-1]) + "…"
}
