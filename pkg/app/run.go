// Package app composes the trekassist runtime from configuration and
// provides the shared entry point of the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flemzord/trekassist/internal/assistant"
	"github.com/flemzord/trekassist/internal/cache"
	"github.com/flemzord/trekassist/internal/config"
	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/core"
	"github.com/flemzord/trekassist/internal/cron"
	"github.com/flemzord/trekassist/internal/embedding"
	"github.com/flemzord/trekassist/internal/gateway"
	"github.com/flemzord/trekassist/internal/knowledge"
	"github.com/flemzord/trekassist/internal/kvs"
	"github.com/flemzord/trekassist/internal/provider"
	"github.com/flemzord/trekassist/internal/security"
	"github.com/flemzord/trekassist/internal/telemetry"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.ResolvePath searches the standard locations.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides data_dir from the configuration.
	DataDir string

	// LogOutput receives the application log. Defaults to stderr.
	LogOutput io.Writer

	// Debug forces the debug log level.
	Debug bool
}

// Runtime is a fully wired, not yet started, trekassist process.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	App       *core.App
	AppCtx    *core.AppContext
	KV        kvs.Store
	Cache     *cache.Service
	Embedder  *embedding.Engine
	Corpus    *knowledge.Corpus
	Sessions  *conversation.Manager
	Assistant *assistant.Assistant
	// Chain is nil when no text generator module is configured; answers
	// then come from the retrieval fallback.
	Chain *provider.Chain
	Audit *security.AuditLogger

	level   *slog.LevelVar
	debug   bool
	started bool
	closers []func(context.Context) error
}

// LoadConfig resolves, loads and validates the configuration.
func LoadConfig(path string) (*config.Config, string, error) {
	resolved, err := config.ResolvePath(path)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(resolved)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, resolved, nil
}

// Build wires every component described by cfg. Modules are loaded and
// provisioned but nothing runs until Start. The caller must Close the
// runtime, also when Start is never called.
func Build(ctx context.Context, cfg *config.Config, params RunParams) (*Runtime, error) {
	rt := &Runtime{Config: cfg, debug: params.Debug}
	wired := false
	defer func() {
		if !wired {
			_ = rt.Close(context.Background())
		}
	}()

	// --- security foundation and logging ---
	credStore := security.NewCredentialStore()
	redactor := security.NewRedactor()
	// Modules register their API keys while provisioning.
	redactor.Track(credStore)
	logger, level, err := newLogger(cfg.Log, params, redactor)
	if err != nil {
		return nil, err
	}
	rt.Logger, rt.level = logger, level

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, params.Version)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, shutdownTracing)

	dataDir := cfg.DataDir
	if params.DataDir != "" {
		dataDir = params.DataDir
	}
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	audit, closeAudit, err := newAuditLogger(cfg.Security.AuditLog, dataDir, cfg.Log.MaskContacts, redactor, logger)
	if err != nil {
		return nil, err
	}
	rt.Audit = audit
	rt.closers = append(rt.closers, closeAudit)

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(security.ServiceCredentials, credStore)
	appCtx.RegisterService(security.ServiceRedactor, redactor)
	appCtx.RegisterService(gateway.ServiceAudit, audit)
	rt.AppCtx = appCtx

	// --- modules ---
	application := core.NewApp(appCtx)
	rt.App = application
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return nil, err
	}
	found := discover(application, ids, logger)

	// --- storage ---
	kv, err := kvs.Open(ctx, cfg.KVS, logger.With("component", "kvs"))
	if err != nil {
		return nil, err
	}
	rt.KV = kv
	rt.closers = append(rt.closers, func(context.Context) error { return kv.Close() })

	cacheCfg := cfg.Cache
	cacheCfg.Logger = logger.With("component", "cache")
	rt.Cache = cache.New(kv, cacheCfg)

	// --- retrieval ---
	embCfg := cfg.Embedding
	embCfg.Logger = logger.With("component", "embedding")
	rt.Embedder = embedding.NewEngine(found.embedder, embCfg)
	rt.closers = append(rt.closers, func(context.Context) error { return rt.Embedder.Close() })

	source, err := newSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	var corpusOpts []knowledge.Option
	if found.mirror != nil {
		corpusOpts = append(corpusOpts, knowledge.WithMirror(found.mirror))
	}
	knCfg := cfg.Knowledge
	knCfg.Logger = logger.With("component", "knowledge")
	rt.Corpus, err = knowledge.NewCorpus(rt.Embedder, source, knCfg, corpusOpts...)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func(context.Context) error { return rt.Corpus.Close() })

	// --- conversations ---
	store := found.sessions
	if store == nil {
		store = conversation.NewKVStore(kv, nil, logger.With("component", "conversation"))
	}
	convCfg := cfg.Conversation
	convCfg.Defaults()
	convCfg.Logger = logger.With("component", "conversation")
	rt.Sessions = conversation.NewManager(store, convCfg)

	// --- generation ---
	chain, err := buildChain(found.members, logger)
	if err != nil {
		return nil, err
	}
	rt.Chain = chain
	var generator provider.TextGenerator
	if rt.Chain != nil {
		generator = rt.Chain
		application.Append(&chainModule{chain: rt.Chain})
		appCtx.RegisterService(gateway.ServiceProviders, rt.Chain)
	} else {
		logger.Warn("no text generator configured, answers come from retrieved documents only")
	}

	asCfg := cfg.Assistant
	asCfg.Logger = logger.With("component", "assistant")
	rt.Assistant, err = assistant.New(rt.Sessions, rt.Corpus, generator, rt.Cache, asCfg)
	if err != nil {
		return nil, err
	}

	appCtx.RegisterService(gateway.ServiceAssistant, rt.Assistant)
	appCtx.RegisterService(gateway.ServiceConversations, rt.Sessions)
	appCtx.RegisterService(gateway.ServiceKnowledge, rt.Corpus)
	appCtx.RegisterService(gateway.ServiceCache, rt.Cache)

	// --- background jobs ---
	scheduler := cron.NewScheduler(logger.With("component", "cron"))
	jobs := []cron.Job{
		&cron.CacheMaintenanceJob{Cache: rt.Cache, Logger: logger, ScheduleExpr: cfg.Cron.CacheMaintenance},
		&cron.KnowledgeRefreshJob{
			Corpus: rt.Corpus, Interval: rt.Corpus.Interval(), Logger: logger,
			SkipStartup: cfg.Cron.SkipStartupRefresh,
		},
		&cron.SessionCleanupJob{
			Sessions: rt.Sessions, MaxIdle: convCfg.CleanupAfter, Logger: logger,
			ScheduleExpr: convCfg.CleanupSchedule,
		},
	}
	for _, j := range jobs {
		if err := scheduler.RegisterJob(j); err != nil {
			return nil, err
		}
	}
	application.Append(&schedulerModule{scheduler: scheduler})
	appCtx.RegisterService(gateway.ServiceJobs, scheduler)

	logger.Info("runtime wired",
		"modules", len(ids),
		"cache_backend", kv.Backend(),
		"generator", generator != nil,
		"external_embeddings", found.embedder != nil,
		"mirror", found.mirror != nil,
	)
	wired = true
	return rt, nil
}

// Start runs every module, the gateway and the scheduler included.
func (rt *Runtime) Start() error {
	if err := rt.App.Start(); err != nil {
		return err
	}
	rt.started = true
	return nil
}

// Close stops the modules and releases storage, in reverse wiring order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.App != nil {
		if rt.started {
			errs = append(errs, rt.App.Stop(ctx))
		} else {
			errs = append(errs, rt.App.Release(ctx))
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Run loads configuration, starts all modules, and blocks until SIGINT or
// SIGTERM.
func Run(params RunParams) error {
	cfg, cfgPath, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := Build(ctx, cfg, params)
	if err != nil {
		return err
	}
	rt.AppCtx.RegisterService("config.path", cfgPath)
	rt.Logger.Info("starting trekassist", "version", params.Version, "config", cfgPath)

	if err := rt.Start(); err != nil {
		_ = rt.Close(context.Background())
		return err
	}
	rt.WatchConfig(ctx, cfgPath, 0)

	<-ctx.Done()
	rt.Logger.Info("shutdown signal received")
	err = rt.Close(context.Background())
	rt.Logger.Info("shutdown complete")
	return err
}

// newLogger returns the level separately so a reload can change it.
func newLogger(cfg config.LogConfig, params RunParams, redactor *security.Redactor) (*slog.Logger, *slog.LevelVar, error) {
	parsed, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if params.Debug {
		parsed = slog.LevelDebug
	}
	level := new(slog.LevelVar)
	level.Set(parsed)
	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(out, opts)
	} else {
		inner = slog.NewTextHandler(out, opts)
	}
	// Wrap the handler so secrets never reach the log.
	var hopts []security.HandlerOption
	if cfg.MaskContacts {
		hopts = append(hopts, security.WithContactMasking())
	}
	return slog.New(security.NewRedactingHandler(inner, redactor, hopts...)), level, nil
}

// auditRetain is how many events GET /api/audit can show.
const auditRetain = 500

// newAuditLogger appends JSONL events to path when set. Every event is also
// mirrored to the application log.
func newAuditLogger(path, dataDir string, maskContacts bool, redactor *security.Redactor, logger *slog.Logger) (*security.AuditLogger, func(context.Context) error, error) {
	auditLog := logger.With("component", "audit")
	cfg := security.AuditLoggerConfig{
		Redactor:     redactor,
		MaskContacts: maskContacts,
		Retain:       auditRetain,
		OnEvent: func(e security.AuditEvent) {
			auditLog.Info("audit", "event", e.Type, "session_id", e.SessionID, "detail", e.Detail)
		},
	}
	closeFn := func(context.Context) error { return nil }
	if path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening audit log: %w", err)
		}
		cfg.Writer = f
		closeFn = func(context.Context) error { return f.Close() }
	}
	return security.NewAuditLogger(cfg), closeFn, nil
}

// newSource builds the booking API source. Its base URL and every request
// it makes, redirects included, go through the URL filter.
func newSource(cfg *config.Config, logger *slog.Logger) (knowledge.Source, error) {
	srcCfg := cfg.Knowledge.Source
	srcCfg.Defaults()
	filter := security.NewURLFilter(cfg.Security.URLFilter)
	if err := filter.Check(srcCfg.BaseURL); err != nil {
		return nil, fmt.Errorf("knowledge source: %w", err)
	}
	client := filter.Client(&http.Client{Timeout: srcCfg.Timeout})
	return knowledge.NewHTTPSource(srcCfg, client, logger.With("component", "knowledge.source")), nil
}
