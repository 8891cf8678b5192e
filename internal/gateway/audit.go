package gateway

import (
	"net/http"
	"strconv"

	"github.com/flemzord/trekassist/internal/security"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// handleAuditTrail lists recent audit events, newest first. Optional query
// parameters: type, limit.
func (g *Gateway) handleAuditTrail() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.audit == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		limit := defaultAuditLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxAuditLimit {
				writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
				return
			}
			limit = n
		}
		events := g.audit.Recent(security.EventType(r.URL.Query().Get("type")), limit)
		if events == nil {
			events = []security.AuditEvent{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}
