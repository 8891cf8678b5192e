package gateway

import (
	"errors"
	"net/http"

	"github.com/flemzord/trekassist/internal/cron"
	"github.com/flemzord/trekassist/internal/security"
)

func (g *Gateway) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.deps.Jobs == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		writeJSON(w, http.StatusOK, g.deps.Jobs.Status())
	}
}

// handleRunJob runs a background job immediately and reports its status.
func (g *Gateway) handleRunJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Jobs == nil {
			writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
			return
		}
		name, ok := pathID(w, r)
		if !ok {
			return
		}

		err := g.deps.Jobs.RunNow(r.Context(), name)
		emitEvent(g.audit, security.EventJobRun, r, errString(err), "job", name)
		switch {
		case errors.Is(err, cron.ErrUnknownJob):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, cron.ErrJobBusy):
			writeError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, cron.ErrNotStarted):
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		for _, st := range g.deps.Jobs.Status() {
			if st.Name == name {
				writeJSON(w, http.StatusOK, st)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
