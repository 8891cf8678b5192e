// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/trekassist/internal/provider"
)

// MockGenerator is a configurable test double for provider.TextGenerator.
// Set the Func fields to control behavior. An unset GenerateFunc returns
// Reply. All methods are safe for concurrent use.
type MockGenerator struct {
	GenerateFunc    func(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
	HealthCheckFunc func(ctx context.Context) error
	Reply           string
	Model           string

	mu            sync.Mutex
	GenerateCalls int
	HealthCalls   int
	LastSystem    string
	LastUser      string
}

// Generate delegates to GenerateFunc and records the prompts.
func (m *MockGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	m.GenerateCalls++
	m.LastSystem = systemPrompt
	m.LastUser = userPrompt
	m.mu.Unlock()
	if m.GenerateFunc == nil {
		return m.Reply, nil
	}
	return m.GenerateFunc(ctx, systemPrompt, userPrompt, maxTokens)
}

// ModelName returns Model, or "mock".
func (m *MockGenerator) ModelName() string {
	if m.Model == "" {
		return "mock"
	}
	return m.Model
}

// HealthCheck delegates to HealthCheckFunc and tracks call count.
func (m *MockGenerator) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCalls++
	m.mu.Unlock()
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}

// Calls returns GenerateCalls under the lock.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GenerateCalls
}

// Interface guards.
var (
	_ provider.TextGenerator = (*MockGenerator)(nil)
	_ provider.HealthChecker = (*MockGenerator)(nil)
)
