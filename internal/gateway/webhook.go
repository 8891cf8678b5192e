package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/trekassist/internal/security"
)

// ErrBadPayload is returned by a WebhookHandler that cannot parse the
// delivery. The sender gets 400 and should not retry.
var ErrBadPayload = errors.New("bad webhook payload")

// signatureHeaders are checked in order. Values are hex HMAC-SHA256 of the
// raw body, with or without a "sha256=" prefix.
var signatureHeaders = []string{"X-Signature-256", "X-Webhook-Signature"}

// Webhook is one verified delivery.
type Webhook struct {
	Source   string
	Body     []byte
	Header   http.Header
	Received time.Time
}

// WebhookHandler consumes deliveries for one source.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, wh Webhook) error
}

// WebhookFunc adapts a function to WebhookHandler.
type WebhookFunc func(ctx context.Context, wh Webhook) error

func (f WebhookFunc) HandleWebhook(ctx context.Context, wh Webhook) error { return f(ctx, wh) }

type webhookSource struct {
	handler WebhookHandler
	secret  []byte
}

// WebhookDispatcher verifies and routes POST /webhooks/{source}. Other
// modules can register sources through the gateway.webhook_dispatcher
// service.
type WebhookDispatcher struct {
	logger  *slog.Logger
	maxBody func() int

	mu      sync.RWMutex
	sources map[string]webhookSource
}

// NewWebhookDispatcher returns an empty dispatcher. maxBody is read on
// every delivery; nil means 1 MiB.
func NewWebhookDispatcher(logger *slog.Logger, maxBody func() int) *WebhookDispatcher {
	if maxBody == nil {
		maxBody = func() int { return 1 << 20 }
	}
	return &WebhookDispatcher{
		logger:  logger,
		maxBody: maxBody,
		sources: make(map[string]webhookSource),
	}
}

// Register routes source to h. An empty secret accepts unsigned bodies.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	d.mu.Lock()
	d.sources[source] = webhookSource{handler: h, secret: key}
	d.mu.Unlock()
}

// Sources lists registered source names.
func (d *WebhookDispatcher) Sources() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.sources))
	for s := range d.sources {
		out = append(out, s)
	}
	return out
}

func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	d.mu.RLock()
	src, ok := d.sources[name]
	d.mu.RUnlock()
	if !ok {
		webhooksTotal.WithLabelValues("unknown", "unknown_source").Inc()
		writeError(w, http.StatusNotFound, "unknown webhook source")
		return
	}

	limit := d.maxBody()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(limit)))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			d.reject(w, name, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("body exceeds %d bytes", limit))
			return
		}
		d.reject(w, name, http.StatusBadRequest, "read_error", "cannot read body")
		return
	}

	if src.secret != nil && !verifySignature(r.Header, body, src.secret) {
		d.logger.Warn("webhook signature mismatch", "source", name)
		d.reject(w, name, http.StatusUnauthorized, "bad_signature", "invalid signature")
		return
	}

	wh := Webhook{Source: name, Body: body, Header: r.Header, Received: time.Now()}
	switch err := src.handler.HandleWebhook(r.Context(), wh); {
	case errors.Is(err, ErrBadPayload):
		d.reject(w, name, http.StatusBadRequest, "bad_payload", err.Error())
	case err != nil:
		d.logger.Error("webhook handler failed", "source", name, "error", err)
		d.reject(w, name, http.StatusInternalServerError, "error", "internal error")
	default:
		webhooksTotal.WithLabelValues(name, "ok").Inc()
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func (d *WebhookDispatcher) reject(w http.ResponseWriter, source string, code int, outcome, msg string) {
	webhooksTotal.WithLabelValues(source, outcome).Inc()
	writeError(w, code, msg)
}

func verifySignature(h http.Header, body, secret []byte) bool {
	for _, name := range signatureHeaders {
		if v := h.Get(name); v != "" {
			return validHMAC(body, v, secret)
		}
	}
	return false
}

// validHMAC compares sig against the HMAC-SHA256 of body in constant time.
func validHMAC(body []byte, sig string, secret []byte) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sig), "sha256="))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

// BookingSource is the webhook source the booking API posts to.
const BookingSource = "booking"

// BookingEvent is a catalog change notice, e.g.
// {"event": "trip.updated", "id": "t-42"}.
type BookingEvent struct {
	Event string `json:"event"`
	ID    string `json:"id"`
}

// refreshes reports whether the event touches indexed data.
func (e BookingEvent) refreshes() bool {
	kind, _, _ := strings.Cut(e.Event, ".")
	return kind == "trip" || kind == "organizer"
}

// handleBookingWebhook acks at once and refreshes the corpus in the
// background. Concurrent refreshes coalesce inside the corpus.
func (g *Gateway) handleBookingWebhook(_ context.Context, wh Webhook) error {
	var ev BookingEvent
	if err := json.Unmarshal(wh.Body, &ev); err != nil || ev.Event == "" {
		return fmt.Errorf("%w: expected {\"event\": ..., \"id\": ...}", ErrBadPayload)
	}
	if g.audit != nil {
		g.audit.Log(security.AuditEvent{
			Type:     security.EventWebhook,
			Detail:   ev.Event,
			Metadata: map[string]string{"source": wh.Source, "id": ev.ID},
		})
	}
	if !ev.refreshes() {
		g.logger.Debug("booking event does not affect the corpus", "event", ev.Event)
		return nil
	}

	g.wg.Go(func() {
		if err := g.refreshKnowledge(g.ctx); err != nil {
			g.logger.Warn("knowledge refresh after booking change failed", "event", ev.Event, "error", err)
			return
		}
		g.logger.Info("knowledge refreshed after booking change", "event", ev.Event, "id", ev.ID)
	})
	return nil
}

func (g *Gateway) registerWebhooks() {
	if g.deps.Knowledge == nil {
		return
	}
	secret := g.config.Webhooks[BookingSource].Secret
	if secret == "" {
		g.logger.Warn("booking webhook has no secret, accepting unsigned payloads")
	}
	g.dispatcher.Register(BookingSource, WebhookFunc(g.handleBookingWebhook), secret)
}
