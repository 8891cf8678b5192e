// Package gateway serves the assistant over HTTP: customer chat (REST and
// WebSocket), the agent console API, knowledge and cache administration,
// health, metrics and webhooks. It binds to loopback by default and follows
// the module system pattern.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/trekassist/internal/assistant"
	"github.com/flemzord/trekassist/internal/cache"
	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/cron"
	"github.com/flemzord/trekassist/internal/core"
	"github.com/flemzord/trekassist/internal/knowledge"
	"github.com/flemzord/trekassist/internal/provider"
	"github.com/flemzord/trekassist/internal/security"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config     Config
	appCtx     *core.AppContext
	logger     *slog.Logger
	server     *http.Server
	addr       string
	dispatcher *WebhookDispatcher
	limiter    *security.RateLimiter
	audit      *security.AuditLogger
	deps       Deps
	startedAt  time.Time
	limits     atomic.Pointer[requestLimits]

	// ctx outlives requests; background refreshes triggered by webhooks
	// run under it and stop with the gateway.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.init(ctx.Logger)
	ctx.RegisterService("gateway.webhook_dispatcher", g.dispatcher)
	return nil
}

func (g *Gateway) init(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	g.logger = logger
	g.config.defaults()
	g.limits.Store(g.config.limits())
	g.dispatcher = NewWebhookDispatcher(logger, func() int { return g.limit().maxBodyBytes })
	g.limiter = security.NewRateLimiter(g.config.RateLimit)
	g.ctx, g.cancel = context.WithCancel(context.Background())
}

func (g *Gateway) limit() *requestLimits { return g.limits.Load() }

// Reconfigure implements core.Reconfigurable. Request size limits apply to
// the next request; listener, auth and webhook settings wait for a restart.
func (g *Gateway) Reconfigure(node *yaml.Node) error {
	var next Config
	if err := node.Decode(&next); err != nil {
		return err
	}
	next.defaults()

	prev := *g.limit()
	g.limits.Store(next.limits())
	g.logger.Info("gateway limits updated",
		"max_body_bytes", next.MaxBodyBytes,
		"max_json_depth", next.MaxJSONDepth,
		"max_chat_runes", next.MaxChatRunes,
		"previous_max_chat_runes", prev.maxChatRunes,
	)

	if pending := restartFields(g.config, next); len(pending) > 0 {
		g.logger.Warn("gateway settings changed that need a restart", "fields", pending)
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolve()
	g.registerWebhooks()
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	g.addr = ln.Addr().String()

	go func() {
		g.logger.Info("gateway listening", "addr", g.addr)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once started. With port 0 in the bind
// address it carries the port the kernel picked.
func (g *Gateway) Addr() string {
	return g.addr
}

// resolve fills missing deps from the service registry. Anything missing
// degrades gracefully: its routes answer 503.
func (g *Gateway) resolve() {
	if g.appCtx == nil {
		return
	}
	if g.deps.Chat == nil {
		if a, ok := core.GetService[*assistant.Assistant](g.appCtx, ServiceAssistant); ok {
			g.deps.Chat = a
		}
	}
	if g.deps.Sessions == nil {
		if m, ok := core.GetService[*conversation.Manager](g.appCtx, ServiceConversations); ok {
			g.deps.Sessions = m
		}
	}
	if g.deps.Knowledge == nil {
		if c, ok := core.GetService[*knowledge.Corpus](g.appCtx, ServiceKnowledge); ok {
			g.deps.Knowledge = c
		}
	}
	if g.deps.Cache == nil {
		if c, ok := core.GetService[*cache.Service](g.appCtx, ServiceCache); ok {
			g.deps.Cache = c
		}
	}
	if g.deps.Providers == nil {
		if c, ok := core.GetService[*provider.Chain](g.appCtx, ServiceProviders); ok {
			g.deps.Providers = c
		}
	}
	if g.deps.Jobs == nil {
		if s, ok := core.GetService[*cron.Scheduler](g.appCtx, ServiceJobs); ok {
			g.deps.Jobs = s
		}
	}
	if g.audit == nil {
		if a, ok := core.GetService[*security.AuditLogger](g.appCtx, ServiceAudit); ok {
			g.audit = a
		}
	}
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.cancel != nil {
		g.cancel()
	}
	defer g.wg.Wait()

	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
