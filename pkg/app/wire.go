package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/core"
	"github.com/flemzord/trekassist/internal/cron"
	"github.com/flemzord/trekassist/internal/embedding"
	"github.com/flemzord/trekassist/internal/knowledge"
	"github.com/flemzord/trekassist/internal/provider"
)

// chainModule runs the provider chain's health checks inside the App
// lifecycle.
type chainModule struct {
	chain *provider.Chain
}

func (m *chainModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "provider.chain"}
}

func (m *chainModule) Start() error {
	m.chain.Start(context.Background())
	return nil
}

func (m *chainModule) Stop(context.Context) error {
	m.chain.Stop()
	return nil
}

// schedulerModule wraps the cron scheduler so background jobs start after
// every loaded module and stop before them.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron"}
}

func (m *schedulerModule) Start() error { return m.scheduler.Start() }

func (m *schedulerModule) Stop(ctx context.Context) error { return m.scheduler.Stop(ctx) }

// discovered holds what the loaded modules contribute to the pipeline.
type discovered struct {
	members  []provider.ChainMember
	embedder embedding.Provider
	mirror   knowledge.Mirror
	sessions conversation.Store
}

// configuredEmbedder is implemented by embedding modules that may come up
// without credentials.
type configuredEmbedder interface {
	Configured() bool
}

// discover walks the loaded modules in ID order. Generators form the chain
// in that order; for the other roles the first module wins.
func discover(app *core.App, ids []string, logger *slog.Logger) discovered {
	var d discovered
	for _, id := range ids {
		mod, ok := app.Module(id)
		if !ok {
			continue
		}
		if m, ok := mod.(provider.ChainMember); ok {
			d.members = append(d.members, m)
			logger.Info("discovered text generator", "module", id, "model", m.ModelName())
		}
		if p, ok := mod.(embedding.Provider); ok {
			if c, ok := p.(configuredEmbedder); ok && !c.Configured() {
				logger.Warn("embedding module has no credentials, using local vectors", "module", id)
			} else if d.embedder == nil {
				d.embedder = p
				logger.Info("discovered embedding provider", "module", id)
			}
		}
		if m, ok := mod.(knowledge.Mirror); ok && d.mirror == nil {
			d.mirror = m
			logger.Info("discovered knowledge mirror", "module", id)
		}
		if sp, ok := mod.(conversation.StoreProvider); ok && d.sessions == nil {
			d.sessions = sp.SessionStore()
			logger.Info("discovered session store", "module", id)
		}
	}
	return d
}

// buildChain creates the failover chain, or nil when no generator module
// is loaded.
func buildChain(members []provider.ChainMember, logger *slog.Logger) (*provider.Chain, error) {
	if len(members) == 0 {
		return nil, nil
	}
	entries := make([]provider.ChainEntry, 0, len(members))
	for _, m := range members {
		entries = append(entries, m.ChainEntry())
	}
	chain, err := provider.NewChain(entries, provider.WithLogger(logger.With("component", "provider.chain")))
	if err != nil {
		return nil, fmt.Errorf("building provider chain: %w", err)
	}
	return chain, nil
}
