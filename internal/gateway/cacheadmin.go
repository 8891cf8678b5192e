package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/trekassist/internal/cache"
	"github.com/flemzord/trekassist/internal/kvs"
	"github.com/flemzord/trekassist/internal/security"
)

// CacheStatsResponse is the JSON response for GET /api/cache/stats.
type CacheStatsResponse struct {
	Enabled bool              `json:"enabled"`
	Backend kvs.Backend       `json:"backend"`
	Caches  []cache.TierStats `json:"caches"`
}

// ClearResponse reports how many entries a clear removed.
type ClearResponse struct {
	Cleared int `json:"cleared"`
}

func (g *Gateway) handleCacheStats() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		c := g.deps.Cache
		if c == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		writeJSON(w, http.StatusOK, CacheStatsResponse{
			Enabled: c.Enabled(),
			Backend: c.Backend(),
			Caches:  c.Stats(),
		})
	}
}

// handleClearCache empties one named cache, or every cache for "all".
func (g *Gateway) handleClearCache() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := g.deps.Cache
		if c == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		name := chi.URLParam(r, "name")
		if name == "all" {
			if err := c.ClearAll(r.Context()); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			emitEvent(g.audit, security.EventCacheClear, r, "all")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		n, err := c.Clear(r.Context(), cache.Name(name))
		switch {
		case errors.Is(err, cache.ErrUnknownCache):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		emitEvent(g.audit, security.EventCacheClear, r, name, "cleared", strconv.Itoa(n))
		writeJSON(w, http.StatusOK, ClearResponse{Cleared: n})
	}
}

// handleInvalidateUser drops a user's recommendation and analytics entries.
func (g *Gateway) handleInvalidateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := g.deps.Cache
		if c == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		id := chi.URLParam(r, "id")
		n, err := c.InvalidateUser(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		emitEvent(g.audit, security.EventCacheClear, r, "user", "user_id", id, "cleared", strconv.Itoa(n))
		writeJSON(w, http.StatusOK, ClearResponse{Cleared: n})
	}
}
