package gateway

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"slices"
	"time"

	"github.com/flemzord/trekassist/internal/security"
)

// Config is the gateway.http module section.
type Config struct {
	Bind           string                   `yaml:"bind"`
	Auth           AuthConfig               `yaml:"auth"`
	Webhooks       map[string]WebhookSource `yaml:"webhooks"`
	RateLimit      security.RateLimitConfig `yaml:"rate_limit"`
	TrustProxy     bool                     `yaml:"trust_proxy"`
	AllowedOrigins []string                 `yaml:"allowed_origins"`

	MaxBodyBytes int `yaml:"max_body_bytes"`
	MaxJSONDepth int `yaml:"max_json_depth"`
	MaxChatRunes int `yaml:"max_chat_runes"`

	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout covers generation, so it stays above the assistant timeout.
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func (c *Config) defaults() {
	setDefault(&c.Bind, "127.0.0.1:8080")
	setDefault(&c.MaxBodyBytes, 64<<10)
	setDefault(&c.MaxJSONDepth, security.DefaultMaxJSONDepth)
	setDefault(&c.MaxChatRunes, security.DefaultMaxChatRunes)
	setDefault(&c.ReadTimeout, 10*time.Second)
	setDefault(&c.WriteTimeout, 30*time.Second)
	setDefault(&c.ShutdownTimeout, 5*time.Second)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

func (c Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("gateway: invalid bind address %q", c.Bind))
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		errs = append(errs, errors.New("gateway: auth.basic_user and auth.basic_pass go together"))
	}
	if c.MaxBodyBytes < 0 || c.MaxJSONDepth < 0 || c.MaxChatRunes < 0 {
		errs = append(errs, errors.New("gateway: request limits must not be negative"))
	}
	return errors.Join(errs...)
}

// requestLimits are the per-request bounds that can change while running.
type requestLimits struct {
	maxBodyBytes int
	maxJSONDepth int
	maxChatRunes int
}

func (c Config) limits() *requestLimits {
	return &requestLimits{
		maxBodyBytes: c.MaxBodyBytes,
		maxJSONDepth: c.MaxJSONDepth,
		maxChatRunes: c.MaxChatRunes,
	}
}

// restartFields names the settings that differ between prev and next and
// only apply to a freshly started listener.
func restartFields(prev, next Config) []string {
	var out []string
	changed := func(name string, differs bool) {
		if differs {
			out = append(out, name)
		}
	}
	changed("bind", prev.Bind != next.Bind)
	changed("auth", prev.Auth != next.Auth)
	changed("webhooks", !maps.Equal(prev.Webhooks, next.Webhooks))
	changed("rate_limit", prev.RateLimit != next.RateLimit)
	changed("proxy and origins", prev.TrustProxy != next.TrustProxy || !slices.Equal(prev.AllowedOrigins, next.AllowedOrigins))
	changed("timeouts", prev.ReadTimeout != next.ReadTimeout || prev.WriteTimeout != next.WriteTimeout || prev.ShutdownTimeout != next.ShutdownTimeout)
	return out
}

// AuthConfig protects the admin and agent routes. Either method may be
// used; with neither set those routes are not mounted.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// WebhookSource configures one webhook sender. An empty secret accepts
// unsigned deliveries.
type WebhookSource struct {
	Secret string `yaml:"secret"`
}
