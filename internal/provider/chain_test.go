package provider_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/trekassist/internal/provider"
	"github.com/flemzord/trekassist/internal/provider/providertest"
)

func failing(err error) *providertest.MockGenerator {
	return &providertest.MockGenerator{
		GenerateFunc: func(context.Context, string, string, int) (string, error) { return "", err },
	}
}

func TestNewChain_Empty(t *testing.T) {
	t.Parallel()
	if _, err := provider.NewChain(nil); !errors.Is(err, provider.ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
	_, err := provider.NewChain([]provider.ChainEntry{{Name: "nil"}})
	if !errors.Is(err, provider.ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestChain_PrimarySucceeds(t *testing.T) {
	t.Parallel()
	primary := &providertest.MockGenerator{Reply: "hello"}
	fallback := &providertest.MockGenerator{Reply: "backup"}

	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "fallback", Generator: fallback, Role: provider.RoleFallback},
		{Name: "primary", Generator: primary, Role: provider.RolePrimary},
	})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	got, err := chain.Generate(t.Context(), "sys", "user", 100)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
	if fallback.Calls() != 0 {
		t.Errorf("fallback called %d times, want 0", fallback.Calls())
	}
	if primary.LastSystem != "sys" || primary.LastUser != "user" {
		t.Errorf("prompts not forwarded: %q / %q", primary.LastSystem, primary.LastUser)
	}
}

func TestChain_FailsOverOnRetryable(t *testing.T) {
	t.Parallel()
	primary := failing(fmt.Errorf("overloaded: %w", provider.ErrProviderDown))
	fallback := &providertest.MockGenerator{Reply: "backup"}

	chain, _ := provider.NewChain([]provider.ChainEntry{
		{Name: "primary", Generator: primary},
		{Name: "fallback", Generator: fallback, Role: provider.RoleFallback},
	})

	got, err := chain.Generate(t.Context(), "", "q", 10)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "backup" {
		t.Errorf("got %q, want backup", got)
	}

	report := chain.HealthReport()
	if report[0].State != "cooldown" || report[0].Failures != 1 {
		t.Errorf("primary health = %+v, want cooldown with 1 failure", report[0])
	}
	if report[1].State != "healthy" {
		t.Errorf("fallback health = %+v, want healthy", report[1])
	}
}

func TestChain_NonRetryableStops(t *testing.T) {
	t.Parallel()
	primary := failing(provider.ErrContextLength)
	fallback := &providertest.MockGenerator{Reply: "backup"}

	chain, _ := provider.NewChain([]provider.ChainEntry{
		{Name: "primary", Generator: primary},
		{Name: "fallback", Generator: fallback, Role: provider.RoleFallback},
	})

	_, err := chain.Generate(t.Context(), "", "q", 10)
	if !errors.Is(err, provider.ErrProviderUnavailable) || !errors.Is(err, provider.ErrContextLength) {
		t.Fatalf("err = %v, want ErrProviderUnavailable wrapping ErrContextLength", err)
	}
	if fallback.Calls() != 0 {
		t.Error("fallback must not be tried after a non-retryable error")
	}
}

func TestChain_AllExhausted(t *testing.T) {
	t.Parallel()
	chain, _ := provider.NewChain([]provider.ChainEntry{
		{Name: "a", Generator: failing(provider.ErrRateLimit)},
		{Name: "b", Generator: failing(provider.ErrProviderDown), Role: provider.RoleFallback},
	})

	_, err := chain.Generate(t.Context(), "", "q", 10)
	if !errors.Is(err, provider.ErrAllProviders) || !errors.Is(err, provider.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrAllProviders and ErrProviderUnavailable", err)
	}

	// a is throttled and b is cooling down, so nothing is attempted.
	_, err = chain.Generate(t.Context(), "", "q", 10)
	if !errors.Is(err, provider.ErrAllProviders) {
		t.Fatalf("second call err = %v", err)
	}
}

func TestChain_CallTimeoutFailsOver(t *testing.T) {
	t.Parallel()
	slow := &providertest.MockGenerator{
		GenerateFunc: func(ctx context.Context, _, _ string, _ int) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	fast := &providertest.MockGenerator{Reply: "fast"}

	chain, _ := provider.NewChain([]provider.ChainEntry{
		{Name: "slow", Generator: slow},
		{Name: "fast", Generator: fast, Role: provider.RoleFallback},
	}, provider.WithCallTimeout(20*time.Millisecond))

	got, err := chain.Generate(t.Context(), "", "q", 10)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "fast" {
		t.Errorf("got %q, want fast", got)
	}
	if slow.Calls() != 1 {
		t.Errorf("slow called %d times, want exactly 1", slow.Calls())
	}
}

func TestChain_CallerCancellation(t *testing.T) {
	t.Parallel()
	chain, _ := provider.NewChain([]provider.ChainEntry{
		{Name: "a", Generator: &providertest.MockGenerator{Reply: "x"}},
	})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := chain.Generate(ctx, "", "q", 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type keyedGenerator struct {
	providertest.MockGenerator
	keys *provider.KeyRing
}

func (k *keyedGenerator) Keys() *provider.KeyRing { return k.keys }

func TestChain_SwitchesKeyOnRateLimit(t *testing.T) {
	t.Parallel()
	keys, err := provider.NewKeyRing("k1", "k2")
	if err != nil {
		t.Fatalf("NewKeyRing: %v", err)
	}
	gen := &keyedGenerator{keys: keys}
	gen.GenerateFunc = func(context.Context, string, string, int) (string, error) {
		return "", provider.ErrRateLimit
	}

	chain, _ := provider.NewChain([]provider.ChainEntry{{Name: "keyed", Generator: gen}})
	_, _ = chain.Generate(t.Context(), "", "q", 10)

	if keys.Key() != "k2" {
		t.Errorf("active key = %q, want k2", keys.Key())
	}
	h := chain.HealthReport()[0]
	if h.State != "healthy" {
		t.Errorf("state after switching = %q, want healthy", h.State)
	}
	if h.KeyIndex == nil || *h.KeyIndex != 1 {
		t.Errorf("key index = %v, want 1", h.KeyIndex)
	}

	// Both keys are benched now, so the member itself pauses.
	_, _ = chain.Generate(t.Context(), "", "q", 10)
	if got := chain.HealthReport()[0].State; got != "throttled" {
		t.Errorf("state with every key benched = %q, want throttled", got)
	}
}

func TestChain_RateLimitThrottles(t *testing.T) {
	t.Parallel()
	chain, _ := provider.NewChain([]provider.ChainEntry{
		{Name: "a", Generator: failing(fmt.Errorf("429: %w", provider.ErrRateLimit))},
		{Name: "b", Generator: &providertest.MockGenerator{Reply: "ok"}, Role: provider.RoleFallback},
	})

	if _, err := chain.Generate(t.Context(), "", "q", 10); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h := chain.HealthReport()[0]
	if h.State != "throttled" || h.Failures != 0 {
		t.Errorf("health = %+v, want throttled without failures", h)
	}
	if h.RetryAt == nil || !strings.Contains(h.LastError, "429") {
		t.Errorf("health = %+v, want retry time and last error", h)
	}
}

func TestKeyRing(t *testing.T) {
	t.Parallel()
	if _, err := provider.NewKeyRing(); !errors.Is(err, provider.ErrNoKeys) {
		t.Fatalf("err = %v, want ErrNoKeys", err)
	}

	single, _ := provider.NewKeyRing("only")
	if single.Bench(time.Now().Add(time.Minute)) {
		t.Error("a single key has nowhere to switch to")
	}
	if single.Key() != "only" {
		t.Errorf("key = %q", single.Key())
	}

	ring, _ := provider.NewKeyRing("a", "b", "c")
	past := time.Now().Add(-time.Second)
	ring.Bench(past)
	ring.Bench(past)
	ring.Bench(past)
	if ring.Index() != 0 {
		t.Errorf("index = %d, want wrap to 0 once benches expired", ring.Index())
	}

	future := time.Now().Add(time.Hour)
	if !ring.Bench(future) || ring.Key() != "b" {
		t.Fatalf("key = %q, want b", ring.Key())
	}
	if !ring.Bench(future) || ring.Key() != "c" {
		t.Fatalf("key = %q, want c", ring.Key())
	}
	if ring.Bench(future) {
		t.Error("every key is benched, Bench must report false")
	}
	if ring.Key() != "c" {
		t.Errorf("key = %q, want c to stay active", ring.Key())
	}
}
