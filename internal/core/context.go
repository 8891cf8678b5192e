// Package core is the module system: a registry of module constructors,
// the lifecycle that configures, provisions, starts and stops them, and a
// service registry modules use to find each other.
package core

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownModule is returned by LoadModule for an unregistered ID.
var ErrUnknownModule = errors.New("unknown module")

// AppContext is handed to every module during Provision. Its Logger is
// scoped to the module; DataDir and the service registry are shared.
type AppContext struct {
	Logger  *slog.Logger
	DataDir string

	root     *slog.Logger
	configs  map[string]yaml.Node
	services *registry
}

// NewAppContext returns a root context. A nil logger means slog.Default.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:   logger,
		DataDir:  dataDir,
		root:     logger,
		services: &registry{entries: make(map[string]any)},
	}
}

// WithModuleConfigs returns a copy that hands configs[id] to each module's
// Configure.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.configs = configs
	return &cp
}

// ForModule returns a context whose logger carries the module ID.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// RegisterService publishes svc under name. Registering a name again
// replaces the previous value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	ctx.services.entries[name] = svc
	ctx.services.mu.Unlock()
}

func (ctx *AppContext) Service(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	v, ok := ctx.services.entries[name]
	return v, ok
}

// Services lists registered service names, sorted.
func (ctx *AppContext) Services() []string {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	names := make([]string, 0, len(ctx.services.entries))
	for name := range ctx.services.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetService returns the service registered under name if it is a T.
func GetService[T any](ctx *AppContext, name string) (T, bool) {
	raw, ok := ctx.Service(name)
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

type registry struct {
	mu      sync.RWMutex
	entries map[string]any
}

// LoadModule builds the module registered as id and runs, for whichever
// the module implements: Configure (only when a config node exists),
// Provision with a module-scoped context, then Validate.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		if node, found := ctx.configs[id]; found {
			if err := c.Configure(&node); err != nil {
				return nil, fmt.Errorf("configure %s: %w", id, err)
			}
		}
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("provision %s: %w", id, err)
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validate %s: %w", id, err)
		}
	}
	return mod, nil
}
