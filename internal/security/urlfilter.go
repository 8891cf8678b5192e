package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
)

// ErrURLBlocked is returned when an outbound URL is refused.
var ErrURLBlocked = errors.New("URL blocked by filter")

// URLFilterConfig restricts where the process fetches from: the booking
// API source and anything it redirects to.
type URLFilterConfig struct {
	// AllowDomains, when non-empty, is the only set of hosts reachable.
	// Subdomains match: "trekbook.in" allows "api.trekbook.in".
	AllowDomains []string `yaml:"allow_domains"`

	// DenyDomains wins over AllowDomains.
	DenyDomains []string `yaml:"deny_domains"`

	// BlockPrivate refuses IP literals in loopback, private and link-local
	// ranges. Off by default since the booking API usually runs next door.
	BlockPrivate bool `yaml:"block_private"`
}

// URLFilter checks outbound URLs against a URLFilterConfig.
type URLFilter struct {
	allow        []string
	deny         []string
	blockPrivate bool
}

// NewURLFilter normalizes the configured domains.
func NewURLFilter(cfg URLFilterConfig) *URLFilter {
	return &URLFilter{
		allow:        normalizeDomains(cfg.AllowDomains),
		deny:         normalizeDomains(cfg.DenyDomains),
		blockPrivate: cfg.BlockPrivate,
	}
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

// Check returns nil when rawURL may be fetched.
func (f *URLFilter) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrURLBlocked, err)
	}
	return f.checkURL(u)
}

func (f *URLFilter) checkURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrURLBlocked, u.Scheme)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("%w: empty hostname", ErrURLBlocked)
	}

	if f.blockPrivate {
		if addr, err := netip.ParseAddr(host); err == nil {
			addr = addr.Unmap()
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
				return fmt.Errorf("%w: %s is not a public address", ErrURLBlocked, host)
			}
		}
	}
	if slices.ContainsFunc(f.deny, func(d string) bool { return matchDomain(host, d) }) {
		return fmt.Errorf("%w: %s is denied", ErrURLBlocked, host)
	}
	if len(f.allow) > 0 && !slices.ContainsFunc(f.allow, func(d string) bool { return matchDomain(host, d) }) {
		return fmt.Errorf("%w: %s is not in the allow list", ErrURLBlocked, host)
	}
	return nil
}

// Client returns a copy of base (http.DefaultClient when nil) whose
// requests and redirects are checked first.
func (f *URLFilter) Client(base *http.Client) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	c := *base
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	c.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if err := f.checkURL(req.URL); err != nil {
			return nil, err
		}
		return next.RoundTrip(req)
	})
	return &c
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (fn roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return fn(r) }

// matchDomain reports whether host is domain or one of its subdomains.
func matchDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
