package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemzord/trekassist/internal/security"
	"github.com/flemzord/trekassist/internal/security/securitytest"
)

// whoami answers with the authenticated principal.
func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := principalFrom(r.Context())
		_, _ = w.Write([]byte(p.Method + ":" + p.Name))
	})
}

func authRequest(remote string, set func(*http.Request)) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil)
	req.RemoteAddr = remote
	if set != nil {
		set(req)
	}
	return req
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func basic(user, pass string) func(*http.Request) {
	return func(r *http.Request) { r.SetBasicAuth(user, pass) }
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()
	both := AuthConfig{BearerToken: "ops-token", BasicUser: "ops", BasicPass: "s3cret"}

	cases := []struct {
		name     string
		cfg      AuthConfig
		set      func(*http.Request)
		wantCode int
		wantBody string
		reason   string
	}{
		{"bearer", both, bearer("ops-token"), http.StatusOK, "bearer:token", ""},
		{"basic", both, basic("ops", "s3cret"), http.StatusOK, "basic:ops", ""},
		{"wrong bearer", both, bearer("ops-tokenX"), http.StatusUnauthorized, "", "invalid credentials"},
		{"wrong password", both, basic("ops", "guess"), http.StatusUnauthorized, "", "invalid credentials"},
		{"wrong user", both, basic("admin", "s3cret"), http.StatusUnauthorized, "", "invalid credentials"},
		{"no header", both, nil, http.StatusUnauthorized, "", "missing authorization header"},
		{"bearer not configured", AuthConfig{BasicUser: "ops", BasicPass: "s3cret"}, bearer("anything"), http.StatusUnauthorized, "", "invalid credentials"},
		{"basic not configured", AuthConfig{BearerToken: "ops-token"}, basic("ops", "s3cret"), http.StatusUnauthorized, "", "invalid credentials"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			audit := securitytest.NewAuditLogger()
			rr := httptest.NewRecorder()
			authMiddleware(tc.cfg, audit, nil)(whoami()).ServeHTTP(rr, authRequest("10.1.1.1:4000", tc.set))

			require.Equal(t, tc.wantCode, rr.Code)
			events := securitytest.Events(audit, "")
			require.Len(t, events, 1)
			if tc.wantCode == http.StatusOK {
				assert.Equal(t, tc.wantBody, rr.Body.String())
				assert.Equal(t, security.EventAuthSuccess, events[0].Type)
				return
			}
			assert.Equal(t, security.EventAuthFailure, events[0].Type)
			assert.Equal(t, tc.reason, events[0].Detail)
			assert.Equal(t, "10.1.1.1", events[0].Remote)
			assert.Contains(t, rr.Header().Get("WWW-Authenticate"), `Bearer realm="trekassist admin"`)
		})
	}
}

func TestAuthMiddleware_ChallengeOffersBasic(t *testing.T) {
	t.Parallel()
	rr := httptest.NewRecorder()
	cfg := AuthConfig{BearerToken: "t", BasicUser: "ops", BasicPass: "p"}
	authMiddleware(cfg, nil, nil)(whoami()).ServeHTTP(rr, authRequest("10.1.1.1:1", nil))
	assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Basic")

	rr = httptest.NewRecorder()
	authMiddleware(AuthConfig{BearerToken: "t"}, nil, nil)(whoami()).ServeHTTP(rr, authRequest("10.1.1.1:1", nil))
	assert.NotContains(t, rr.Header().Get("WWW-Authenticate"), "Basic")
}

func TestAuthMiddleware_ActorInLaterEvents(t *testing.T) {
	t.Parallel()
	audit := securitytest.NewAuditLogger()
	handler := authMiddleware(AuthConfig{BasicUser: "ops", BasicPass: "s3cret"}, audit, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			emitEvent(audit, security.EventCacheClear, r, "all")
			w.WriteHeader(http.StatusNoContent)
		}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authRequest("10.1.1.1:4000", basic("ops", "s3cret")))
	require.Equal(t, http.StatusNoContent, rr.Code)

	cleared := securitytest.Events(audit, security.EventCacheClear)
	require.Len(t, cleared, 1)
	assert.Equal(t, "basic:ops", cleared[0].Metadata["actor"])
}

func TestAuthMiddleware_RateLimitsAttemptsPerClient(t *testing.T) {
	t.Parallel()
	audit := securitytest.NewAuditLogger()
	limiter := security.NewRateLimiter(security.RateLimitConfig{AuthPerMin: 2})
	handler := authMiddleware(AuthConfig{BearerToken: "tok"}, audit, limiter)(whoami())

	serve := func(remote, token string) int {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, authRequest(remote, bearer(token)))
		return rr.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve("10.0.0.9:5555", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, serve("10.0.0.9:5555", "wrong"))
	assert.Equal(t, http.StatusTooManyRequests, serve("10.0.0.9:6666", "tok"), "same host, other port")
	assert.Equal(t, http.StatusOK, serve("10.0.0.10:5555", "tok"), "other clients unaffected")

	limited := securitytest.Events(audit, security.EventRateLimit)
	require.Len(t, limited, 1)
	assert.Equal(t, "10.0.0.9", limited[0].Remote)
}

func TestAuthConfig_IsConfigured(t *testing.T) {
	t.Parallel()
	for cfg, want := range map[AuthConfig]bool{
		{}:                                   false,
		{BearerToken: "t"}:                   true,
		{BasicUser: "ops"}:                   false,
		{BasicUser: "ops", BasicPass: "p"}:   true,
		{BasicPass: "p"}:                     false,
		{BearerToken: "t", BasicUser: "ops"}: true,
	} {
		assert.Equal(t, want, cfg.IsConfigured(), "%+v", cfg)
	}
}

func TestClientKey(t *testing.T) {
	t.Parallel()
	for remote, want := range map[string]string{
		"10.0.0.9:5555":    "10.0.0.9",
		"[2001:db8::1]:80": "2001:db8::1",
		"unix-socket":      "unix-socket",
	} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		assert.Equal(t, want, clientKey(r))
	}
}
