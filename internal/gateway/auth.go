package gateway

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/trekassist/internal/security"
)

const authRealm = "trekassist admin"

// principal is the authenticated admin caller.
type principal struct {
	Method string // bearer or basic
	Name   string
}

type principalKey struct{}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok
}

// authMiddleware guards the admin routes with the configured bearer token
// or basic credentials. Attempts are rate limited per client and every
// outcome is audited. The caller is stored in the request context so
// later audit events name the actor.
func authMiddleware(cfg AuthConfig, audit *security.AuditLogger, limiter *security.RateLimiter) func(http.Handler) http.Handler {
	challenge := `Bearer realm="` + authRealm + `"`
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		challenge += `, Basic realm="` + authRealm + `"`
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil {
				if err := limiter.Allow(security.KindAuth, clientKey(r)); err != nil {
					emitEvent(audit, security.EventRateLimit, r, "auth")
					writeError(w, http.StatusTooManyRequests, "too many requests")
					return
				}
			}

			p, reason := authenticate(cfg, r)
			if reason != "" {
				emitEvent(audit, security.EventAuthFailure, r, reason)
				w.Header().Set("WWW-Authenticate", challenge)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), principalKey{}, p)
			r = r.WithContext(ctx)
			emitEvent(audit, security.EventAuthSuccess, r, p.Method)
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate returns the caller, or a non-empty failure reason.
func authenticate(cfg AuthConfig, r *http.Request) (principal, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return principal{}, "missing authorization header"
	}
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && cfg.BearerToken != "" {
		if secretEqual(token, cfg.BearerToken) {
			return principal{Method: "bearer", Name: "token"}, ""
		}
		return principal{}, "invalid credentials"
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		if user, pass, ok := r.BasicAuth(); ok {
			// Both comparisons always run.
			userOK := secretEqual(user, cfg.BasicUser)
			passOK := secretEqual(pass, cfg.BasicPass)
			if userOK && passOK {
				return principal{Method: "basic", Name: user}, ""
			}
		}
	}
	return principal{}, "invalid credentials"
}

// secretEqual compares digests so neither content nor length leaks
// through timing.
func secretEqual(got, want string) bool {
	a, b := sha256.Sum256([]byte(got)), sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// emitEvent audits an event about r. meta holds extra key/value pairs.
// Requests that passed authMiddleware also record the actor.
func emitEvent(audit *security.AuditLogger, typ security.EventType, r *http.Request, detail string, meta ...string) {
	if audit == nil {
		return
	}
	md := map[string]string{"method": r.Method, "path": r.URL.Path}
	if p, ok := principalFrom(r.Context()); ok {
		md["actor"] = p.Method + ":" + p.Name
	}
	for i := 0; i+1 < len(meta); i += 2 {
		md[meta[i]] = meta[i+1]
	}
	audit.Log(security.AuditEvent{Type: typ, Remote: clientKey(r), Detail: detail, Metadata: md})
}

// clientKey is the remote host without port. With trust_proxy the RealIP
// middleware has already replaced RemoteAddr.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
