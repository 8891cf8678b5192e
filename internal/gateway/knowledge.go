package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/flemzord/trekassist/internal/cache"
	"github.com/flemzord/trekassist/internal/knowledge"
	"github.com/flemzord/trekassist/internal/security"
)

const (
	defaultSearchTopK = 5
	maxSearchTopK     = 20
)

// SearchResponse is the JSON response for GET /api/knowledge/search.
type SearchResponse struct {
	Query   string             `json:"query"`
	Results []knowledge.Result `json:"results"`
	Cached  bool               `json:"cached"`
}

// handleKnowledgeSearch runs a similarity search. Query parameters: q,
// type (entity, policy, faq, general) and top_k (1..20). Results are held
// in the search cache.
func (g *Gateway) handleKnowledgeSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Knowledge == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		q := r.URL.Query()
		query := strings.TrimSpace(q.Get("q"))
		if query == "" {
			writeError(w, http.StatusBadRequest, "q is required")
			return
		}
		typ := knowledge.Type(q.Get("type"))
		switch typ {
		case "", knowledge.TypeEntity, knowledge.TypePolicy, knowledge.TypeFaq, knowledge.TypeGeneral:
		default:
			writeError(w, http.StatusBadRequest, "unknown type "+string(typ))
			return
		}
		topK := defaultSearchTopK
		if raw := q.Get("top_k"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxSearchTopK {
				writeError(w, http.StatusBadRequest, "top_k must be between 1 and 20")
				return
			}
			topK = n
		}

		key := cache.SearchKey(query, map[string]string{"type": string(typ), "top_k": strconv.Itoa(topK)})
		resp := SearchResponse{Query: query}
		if c := g.deps.Cache; c != nil {
			if ok, _ := c.Get(r.Context(), cache.Search, key, &resp.Results); ok {
				resp.Cached = true
				writeJSON(w, http.StatusOK, resp)
				return
			}
		}

		results, err := g.deps.Knowledge.Search(r.Context(), query, topK, typ)
		switch {
		case errors.Is(err, knowledge.ErrNotReady):
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if results == nil {
			results = []knowledge.Result{}
		}
		resp.Results = results
		if c := g.deps.Cache; c != nil {
			if err := c.Set(r.Context(), cache.Search, key, results, 0); err != nil {
				g.logger.Warn("caching search results failed", "error", err)
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleKnowledgeStats reports the current corpus snapshot.
func (g *Gateway) handleKnowledgeStats() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.deps.Knowledge == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		writeJSON(w, http.StatusOK, g.deps.Knowledge.Stats())
	}
}

// handleKnowledgeRefresh rebuilds the corpus synchronously.
func (g *Gateway) handleKnowledgeRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Knowledge == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		err := g.refreshKnowledge(r.Context())
		emitEvent(g.audit, security.EventKnowledgeRefresh, r, errString(err))
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, g.deps.Knowledge.Stats())
	}
}

// refreshKnowledge rebuilds the corpus and drops answers computed from the
// previous snapshot.
func (g *Gateway) refreshKnowledge(ctx context.Context) error {
	if err := g.deps.Knowledge.Refresh(ctx); err != nil {
		return err
	}
	if c := g.deps.Cache; c != nil {
		for _, name := range []cache.Name{cache.Search, cache.Chat} {
			if _, err := c.Clear(ctx, name); err != nil {
				g.logger.Warn("clearing cache after refresh failed", "cache", name, "error", err)
			}
		}
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
