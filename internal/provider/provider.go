// Package provider defines the text-generation contract, the error
// taxonomy shared by provider modules, and a health-aware failover chain.
package provider

import "context"

// TextGenerator produces one completion for a system and user prompt.
// Concrete implementations live in modules/provider/* and also implement
// core.Module.
type TextGenerator interface {
	// Generate returns the model's text. Failures are reported with the
	// sentinels in this package.
	Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is an optional interface that generators may implement
// to support active health probing. When a generator is in cooldown,
// the chain calls HealthCheck periodically to detect recovery.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Role describes the position of an entry in the chain.
type Role string

const (
	RolePrimary  Role = "primary"
	RoleFallback Role = "fallback"
)

// ChainMember is implemented by generator modules that carry their own
// chain placement (role, health tuning) in configuration.
type ChainMember interface {
	TextGenerator
	ChainEntry() ChainEntry
}
