package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder keeps the deliveries it was handed.
type recorder struct {
	mu  sync.Mutex
	got []Webhook
	err error
}

func (r *recorder) HandleWebhook(_ context.Context, wh Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, wh)
	return r.err
}

func (r *recorder) deliveries() []Webhook {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// post sends body to /webhooks/{source} through a bare chi router.
func post(t *testing.T, d *WebhookDispatcher, source string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/webhooks/{source}", d.ServeHTTP)

	req := httptest.NewRequestWithContext(t.Context(), http.MethodPost, "/webhooks/"+source, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func newDispatcher(maxBody int) *WebhookDispatcher {
	return NewWebhookDispatcher(slog.New(slog.DiscardHandler), func() int { return maxBody })
}

func TestWebhookDispatcher_Signatures(t *testing.T) {
	t.Parallel()
	body := []byte(`{"event":"trip.created","id":"t-1"}`)
	good := sign(body, "bk-secret")

	cases := []struct {
		name   string
		header http.Header
		want   int
	}{
		{"prefixed", http.Header{"X-Signature-256": {"sha256=" + good}}, http.StatusOK},
		{"bare hex", http.Header{"X-Signature-256": {good}}, http.StatusOK},
		{"alternate header", http.Header{"X-Webhook-Signature": {good}}, http.StatusOK},
		{"missing", nil, http.StatusUnauthorized},
		{"not hex", http.Header{"X-Signature-256": {"sha256=zz"}}, http.StatusUnauthorized},
		{"other secret", http.Header{"X-Signature-256": {sign(body, "guess")}}, http.StatusUnauthorized},
		{"truncated", http.Header{"X-Signature-256": {good[:32]}}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := &recorder{}
			d := newDispatcher(1 << 10)
			d.Register(BookingSource, rec, "bk-secret")

			rr := post(t, d, BookingSource, body, tc.header)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
			if tc.want == http.StatusOK {
				require.Len(t, rec.deliveries(), 1)
				assert.Equal(t, body, rec.deliveries()[0].Body)
				assert.Equal(t, BookingSource, rec.deliveries()[0].Source)
			} else {
				assert.Empty(t, rec.deliveries())
			}
		})
	}
}

func TestWebhookDispatcher_UnsignedSource(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := newDispatcher(1 << 10)
	d.Register("partner", rec, "")

	rr := post(t, d, "partner", []byte(`{}`), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
	assert.Len(t, rec.deliveries(), 1)
	assert.False(t, rec.deliveries()[0].Received.IsZero())
}

func TestWebhookDispatcher_UnknownSource(t *testing.T) {
	t.Parallel()
	d := newDispatcher(1 << 10)
	d.Register(BookingSource, &recorder{}, "")

	rr := post(t, d, "razorpay", []byte(`{}`), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, []string{BookingSource}, d.Sources())
}

func TestWebhookDispatcher_BodyLimit(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := newDispatcher(16)
	d.Register("partner", rec, "")

	rr := post(t, d, "partner", []byte(strings.Repeat("x", 17)), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Empty(t, rec.deliveries())

	rr = post(t, d, "partner", []byte(strings.Repeat("x", 16)), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhookDispatcher_HandlerErrors(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		err  error
		want int
	}{
		"bad payload": {fmt.Errorf("%w: missing id", ErrBadPayload), http.StatusBadRequest},
		"failure":     {errors.New("index locked"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			d := newDispatcher(1 << 10)
			d.Register("partner", &recorder{err: tc.err}, "")
			rr := post(t, d, "partner", []byte(`{}`), nil)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestWebhookDispatcher_WrongMethod(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	rr := f.do(t, http.MethodGet, "/webhooks/booking", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestBookingWebhook_RequiresSignatureWhenConfigured(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Webhooks: map[string]WebhookSource{BookingSource: {Secret: "bk-secret"}}})
	f.knowledge.refreshed = make(chan struct{}, 1)

	body := []byte(`{"event":"organizer.updated","id":"o-1"}`)
	rr := f.do(t, http.MethodPost, "/webhooks/booking", string(body), "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequestWithContext(t.Context(), http.MethodPost, "/webhooks/booking", bytes.NewReader(body))
	req.Header.Set("X-Signature-256", "sha256="+sign(body, "bk-secret"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	<-f.knowledge.refreshed
}

func TestBookingWebhook_RejectsMalformed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	for _, body := range []string{`not json`, `{"id":"t-1"}`} {
		rr := f.do(t, http.MethodPost, "/webhooks/booking", body, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	assert.Zero(t, f.knowledge.refreshes.Load())
}

func TestBookingEvent_Refreshes(t *testing.T) {
	t.Parallel()
	for event, want := range map[string]bool{
		"trip.created":      true,
		"trip.updated":      true,
		"organizer.deleted": true,
		"payment.captured":  false,
		"tripadvisor.sync":  false,
		"trip":              true,
	} {
		assert.Equal(t, want, BookingEvent{Event: event}.refreshes(), event)
	}
}
