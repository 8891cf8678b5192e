package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ChainEntry is one generator in a Chain.
type ChainEntry struct {
	Name      string
	Generator TextGenerator
	Role      Role
	// Keys defaults to the generator's own ring when it is a KeyHolder.
	Keys   *KeyRing
	Health HealthConfig
}

type member struct {
	ChainEntry
	health *healthTracker
}

type ChainOption func(*Chain)

// WithLogger sets the chain logger. Without it nothing is logged.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// WithCallTimeout bounds each generator call. Hitting it counts as an
// outage of that generator, not of the request.
func WithCallTimeout(d time.Duration) ChainOption {
	return func(c *Chain) { c.callTimeout = d }
}

// Chain is a TextGenerator that tries its members in order, primaries
// first, skipping unhealthy ones and failing over on retryable errors.
// Each member is tried at most once per request.
type Chain struct {
	members     []*member
	logger      *slog.Logger
	callTimeout time.Duration
	tracer      trace.Tracer

	mu        sync.Mutex
	stopProbe context.CancelFunc
}

var _ TextGenerator = (*Chain)(nil)

func NewChain(entries []ChainEntry, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}
	c := &Chain{tracer: otel.Tracer("github.com/flemzord/trekassist/internal/provider")}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	for _, e := range entries {
		if e.Generator == nil {
			return nil, fmt.Errorf("%w: entry %q has no generator", ErrNoProvider, e.Name)
		}
		if e.Role == "" {
			e.Role = RolePrimary
		}
		if e.Role != RolePrimary && e.Role != RoleFallback {
			return nil, fmt.Errorf("provider: entry %q has unknown role %q", e.Name, e.Role)
		}
		if e.Keys == nil {
			if h, ok := e.Generator.(KeyHolder); ok {
				e.Keys = h.Keys()
			}
		}
		m := &member{ChainEntry: e, health: newHealthTracker(e.Health)}
		m.health.onStateChange = c.observe(m)
		c.members = append(c.members, m)
	}
	// Stable, so configuration order holds within a role.
	slices.SortStableFunc(c.members, func(a, b *member) int {
		return rolePriority(a.Role) - rolePriority(b.Role)
	})
	return c, nil
}

func rolePriority(r Role) int {
	if r == RoleFallback {
		return 1
	}
	return 0
}

// observe exports state changes of m as a gauge and a log line.
func (c *Chain) observe(m *member) func(from, to healthState) {
	return func(from, to healthState) {
		providerHealthState.WithLabelValues(m.Name).Set(float64(to))
		snap := m.health.snapshot()
		log := c.logger.With("provider", m.Name)
		switch to {
		case stateCooldown:
			log.Warn("provider backing off", "backoff", snap.Backoff, "failures", snap.Failures)
		case stateThrottled:
			log.Warn("provider rate limited, pausing", "retry_at", snap.RetryAt)
		case stateDead:
			log.Error("provider marked dead", "failures", snap.Failures, "last_error", snap.LastError)
		case stateHealthy:
			log.Info("provider recovered", "was", from.String())
		}
	}
}

// Start probes dead and cooling-down members in the background until
// Stop or ctx ends. Calling it again while running does nothing.
func (c *Chain) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopProbe != nil {
		return
	}
	ctx, c.stopProbe = context.WithCancel(ctx)
	go c.probe(ctx)
}

func (c *Chain) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopProbe != nil {
		c.stopProbe()
		c.stopProbe = nil
	}
}

// ModelName is the model of the preferred member.
func (c *Chain) ModelName() string {
	return c.members[0].Generator.ModelName()
}

// Generate returns the first successful answer. Failures that leave the
// caller without one wrap ErrProviderUnavailable.
func (c *Chain) Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	ctx, span := c.tracer.Start(ctx, "provider.generate")
	defer span.End()

	var lastErr error
	for _, m := range c.members {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !m.health.available() {
			continue
		}

		span.AddEvent("attempt", trace.WithAttributes(attribute.String("provider", m.Name)))
		text, err := c.call(ctx, m, systemPrompt, userPrompt, maxTokens)
		if err == nil {
			m.health.recordSuccess()
			generateTotal.WithLabelValues(m.Name, "ok").Inc()
			span.SetAttributes(attribute.String("provider", m.Name))
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		generateTotal.WithLabelValues(m.Name, "error").Inc()
		lastErr = err

		if !IsRetryable(err) {
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
		c.penalize(m, err)
		c.logger.Warn("provider failed, trying next", "provider", m.Name, "error", err)
	}

	span.SetStatus(codes.Error, "all providers exhausted")
	if lastErr == nil {
		c.logger.Error("no provider available")
		return "", fmt.Errorf("%w: %w: all candidates unavailable", ErrProviderUnavailable, ErrAllProviders)
	}
	c.logger.Error("all providers failed", "last_error", lastErr)
	return "", fmt.Errorf("%w: %w: last error: %w", ErrProviderUnavailable, ErrAllProviders, lastErr)
}

// penalize records a retryable failure. A rate limit first benches the
// key; only when no other key is free does the member itself pause.
func (c *Chain) penalize(m *member, err error) {
	if IsRateLimit(err) && m.Keys != nil {
		wait := m.health.cfg.RateLimitCooldown
		if after, ok := RetryAfter(err); ok {
			wait = min(after, m.health.cfg.MaxBackoff)
		}
		if m.Keys.Bench(time.Now().Add(wait)) {
			c.logger.Info("switched API key after rate limit", "provider", m.Name, "key_index", m.Keys.Index())
			return
		}
	}
	m.health.recordFailure(err)
}

// call runs one attempt. Its own deadline is reported as ErrProviderDown
// so the chain moves on.
func (c *Chain) call(ctx context.Context, m *member, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	callCtx := ctx
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := m.Generator.Generate(callCtx, systemPrompt, userPrompt, maxTokens)
	generateDuration.WithLabelValues(m.Name).Observe(time.Since(start).Seconds())

	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %s timed out after %s", ErrProviderDown, m.Name, c.callTimeout)
	}
	return text, err
}

// ProviderHealth is a point-in-time view of one member.
type ProviderHealth struct {
	Name      string     `json:"name"`
	Model     string     `json:"model"`
	Role      Role       `json:"role"`
	State     string     `json:"state"`
	Failures  int        `json:"failures"`
	RetryAt   *time.Time `json:"retry_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	KeyIndex  *int       `json:"key_index,omitempty"`
}

// HealthReport lists members in the order they are tried.
func (c *Chain) HealthReport() []ProviderHealth {
	out := make([]ProviderHealth, 0, len(c.members))
	for _, m := range c.members {
		snap := m.health.snapshot()
		h := ProviderHealth{
			Name:      m.Name,
			Model:     m.Generator.ModelName(),
			Role:      m.Role,
			State:     snap.State.String(),
			Failures:  snap.Failures,
			LastError: snap.LastError,
		}
		if !snap.RetryAt.IsZero() {
			h.RetryAt = &snap.RetryAt
		}
		if m.Keys != nil && m.Keys.Len() > 1 {
			idx := m.Keys.Index()
			h.KeyIndex = &idx
		}
		out = append(out, h)
	}
	return out
}

// probe pings members that need it, at the shortest configured interval.
// Members without a HealthChecker recover only through real traffic.
func (c *Chain) probe(ctx context.Context) {
	interval := c.members[0].Health.checkIntervalOrDefault()
	for _, m := range c.members[1:] {
		interval = min(interval, m.Health.checkIntervalOrDefault())
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, m := range c.members {
			checker, ok := m.Generator.(HealthChecker)
			if !ok || !m.health.needsProbe() {
				continue
			}
			if err := checker.HealthCheck(ctx); err == nil {
				m.health.recordSuccess()
			}
		}
	}
}
