package gateway

import (
	"context"
	"time"

	"github.com/flemzord/trekassist/internal/assistant"
	"github.com/flemzord/trekassist/internal/cache"
	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/cron"
	"github.com/flemzord/trekassist/internal/knowledge"
	"github.com/flemzord/trekassist/internal/kvs"
	"github.com/flemzord/trekassist/internal/provider"
)

// Service names the gateway resolves from the app context at Start.
const (
	ServiceAssistant     = "assistant"
	ServiceConversations = "conversation.manager"
	ServiceKnowledge     = "knowledge.corpus"
	ServiceCache         = "cache"
	ServiceProviders     = "provider.chain"
	ServiceAudit         = "security.audit"
	ServiceJobs          = "cron.scheduler"
)

// Chatter answers customer messages.
type Chatter interface {
	Chat(ctx context.Context, req assistant.Request) (*assistant.Response, error)
	Escalate(ctx context.Context, sessionID, reason string) (bool, error)
}

// Sessions is the agent-console view of conversations.
type Sessions interface {
	ForAgent(ctx context.Context, id string) (conversation.AgentView, error)
	ListEscalated(ctx context.Context, agentID string) ([]*conversation.Session, error)
	AssignToAgent(ctx context.Context, id, agentID string) error
	Statistics(ctx context.Context) (conversation.Statistics, error)
}

// Knowledge is the searchable corpus.
type Knowledge interface {
	Search(ctx context.Context, query string, topK int, typ knowledge.Type) ([]knowledge.Result, error)
	Refresh(ctx context.Context) error
	Ready() bool
	Stats() knowledge.Stats
}

// Caches exposes the tiered cache to operators.
type Caches interface {
	Get(ctx context.Context, name cache.Name, key string, dst any) (bool, error)
	Set(ctx context.Context, name cache.Name, key string, value any, ttl time.Duration) error
	Clear(ctx context.Context, name cache.Name) (int, error)
	ClearAll(ctx context.Context) error
	InvalidateUser(ctx context.Context, userID string) (int, error)
	Stats() []cache.TierStats
	Enabled() bool
	Backend() kvs.Backend
}

// HealthReporter reports per-provider state.
type HealthReporter interface {
	HealthReport() []provider.ProviderHealth
}

// Jobs runs and reports background jobs.
type Jobs interface {
	Status() []cron.JobStatus
	RunNow(ctx context.Context, name string) error
}

// Deps are the collaborators behind the routes. Nil members disable the
// routes that need them.
type Deps struct {
	Chat      Chatter
	Sessions  Sessions
	Knowledge Knowledge
	Cache     Caches
	Providers HealthReporter
	Jobs      Jobs
}
