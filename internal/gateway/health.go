package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/trekassist/internal/cron"
	"github.com/flemzord/trekassist/internal/kvs"
	"github.com/flemzord/trekassist/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string                    `json:"status"` // "ok" or "degraded"
	Uptime    int64                     `json:"uptime_seconds"`
	Knowledge *KnowledgeHealth          `json:"knowledge,omitempty"`
	Cache     kvs.Backend               `json:"cache_backend,omitempty"`
	Providers []provider.ProviderHealth `json:"providers"`
	Jobs      []cron.JobStatus          `json:"jobs,omitempty"`
}

// KnowledgeHealth summarizes the corpus for health checks.
type KnowledgeHealth struct {
	Ready       bool      `json:"ready"`
	Documents   int       `json:"documents"`
	LastRefresh time.Time `json:"last_refresh"`
	LastError   string    `json:"last_error,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when the corpus is indexed and every provider is healthy,
// 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:    "ok",
			Providers: []provider.ProviderHealth{},
		}
		if !g.startedAt.IsZero() {
			resp.Uptime = int64(time.Since(g.startedAt).Seconds())
		}

		if k := g.deps.Knowledge; k != nil {
			st := k.Stats()
			resp.Knowledge = &KnowledgeHealth{
				Ready:       k.Ready(),
				Documents:   st.Documents,
				LastRefresh: st.LastRefresh,
				LastError:   st.LastError,
			}
			if !resp.Knowledge.Ready {
				resp.Status = "degraded"
			}
		}

		if c := g.deps.Cache; c != nil {
			resp.Cache = c.Backend()
		}

		if p := g.deps.Providers; p != nil {
			resp.Providers = p.HealthReport()
			for _, h := range resp.Providers {
				if h.State != "healthy" && h.State != "throttled" {
					resp.Status = "degraded"
					break
				}
			}
		}

		if j := g.deps.Jobs; j != nil {
			resp.Jobs = j.Status()
		}

		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
