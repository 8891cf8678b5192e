package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/flemzord/trekassist/internal/security"
)

var errUnavailable = errors.New("service unavailable")

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// decodeBody reads a size- and depth-checked JSON body into dst. An empty
// body leaves dst untouched. The returned status is meaningful only when
// err is non-nil.
func (g *Gateway) decodeBody(r *http.Request, dst any) (int, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, int64(g.limit().maxBodyBytes)+1))
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("read body: %w", err)
	}
	return g.decode(data, dst)
}

func (g *Gateway) decode(data []byte, dst any) (int, error) {
	if err := security.ValidateMessageSize(data, g.limit().maxBodyBytes); err != nil {
		return http.StatusRequestEntityTooLarge, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return http.StatusOK, nil
	}
	if err := security.ValidateJSONDepth(data, g.limit().maxJSONDepth); err != nil {
		return http.StatusBadRequest, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return http.StatusBadRequest, fmt.Errorf("%w: %w", security.ErrInvalidJSON, err)
	}
	return http.StatusOK, nil
}
