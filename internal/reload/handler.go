package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/trekassist/internal/config"
)

// ApplyFunc pushes the live-reloadable part of next into the running
// process. prev is the configuration currently in effect.
type ApplyFunc func(ctx context.Context, prev, next *config.Config) error

type applier struct {
	name string
	fn   ApplyFunc
}

// ModuleFunc applies a changed modules.<id> section to a running module.
type ModuleFunc func(node *yaml.Node) error

// Handler loads, validates and applies configuration changes.
type Handler struct {
	logger *slog.Logger

	mu       sync.Mutex
	current  *config.Config
	appliers []applier
	modules  map[string]ModuleFunc
}

// NewHandler creates a handler starting from the configuration in effect.
func NewHandler(current *config.Config, logger *slog.Logger) *Handler {
	return &Handler{current: current, logger: logger}
}

// Register adds an applier. Appliers run in registration order.
func (h *Handler) Register(name string, fn ApplyFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appliers = append(h.appliers, applier{name: name, fn: fn})
}

// RegisterModule makes changes to modules.<id> live. Adding or removing
// the module still needs a restart.
func (h *Handler) RegisterModule(id string, fn ModuleFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.modules == nil {
		h.modules = make(map[string]ModuleFunc)
	}
	h.modules[id] = fn
}

// Current returns the configuration in effect.
func (h *Handler) Current() *config.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// HandleReload loads and validates configPath, then applies it. An invalid
// file leaves the running configuration untouched.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.Apply(ctx, cfg)
}

// Apply runs every applier against an already validated configuration.
func (h *Handler) Apply(ctx context.Context, next *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var pending []string
	for _, section := range RestartRequired(h.current, next) {
		if _, ok := h.liveModule(section, next); !ok {
			pending = append(pending, section)
		}
	}
	if len(pending) > 0 {
		h.logger.Warn("configuration sections changed that only take effect after a restart",
			"sections", pending)
	}

	var errs []error
	for _, a := range h.appliers {
		if err := a.fn(ctx, h.current, next); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
		}
	}
	for _, id := range changedModules(h.current.Modules, next.Modules) {
		fn, ok := h.liveModule("modules."+id, next)
		if !ok {
			continue
		}
		node := next.Modules[id]
		if err := fn(&node); err != nil {
			errs = append(errs, fmt.Errorf("modules.%s: %w", id, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	h.current = next
	h.logger.Info("configuration reloaded")
	return nil
}

// liveModule returns the hook for a "modules.<id>" section when the module
// exists on both sides and registered one.
func (h *Handler) liveModule(section string, next *config.Config) (ModuleFunc, bool) {
	id, ok := strings.CutPrefix(section, "modules.")
	if !ok {
		return nil, false
	}
	fn, ok := h.modules[id]
	if !ok {
		return nil, false
	}
	return fn, enabled(h.current, id) && enabled(next, id)
}

func enabled(cfg *config.Config, id string) bool {
	node, ok := cfg.Modules[id]
	return ok && config.ModuleEnabled(&node)
}

// Run applies every event from w until ctx ends. Failures are logged and
// the previous configuration stays in effect.
func (h *Handler) Run(ctx context.Context, w *Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.Events():
			h.logger.Info("reloading configuration", "reason", ev.Type, "path", ev.ConfigPath)
			if err := h.HandleReload(ctx, ev.ConfigPath); err != nil {
				h.logger.Error("configuration reload failed", "error", err)
			}
		}
	}
}

// RestartRequired lists the sections whose changes are not applied live.
// Besides log.level and cache.disabled, only modules registered with
// RegisterModule escape it; Apply filters those out.
func RestartRequired(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	var out []string
	check := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			out = append(out, name)
		}
	}
	check("log.format", prev.Log.Format, next.Log.Format)
	check("log.mask_contacts", prev.Log.MaskContacts, next.Log.MaskContacts)
	check("data_dir", prev.DataDir, next.DataDir)
	check("kvs", prev.KVS, next.KVS)

	pc, nc := prev.Cache, next.Cache
	pc.Disabled, nc.Disabled = false, false
	check("cache", pc, nc)

	check("embedding", prev.Embedding, next.Embedding)
	check("knowledge", prev.Knowledge, next.Knowledge)
	check("conversation", prev.Conversation, next.Conversation)
	check("assistant", prev.Assistant, next.Assistant)
	check("telemetry", prev.Telemetry, next.Telemetry)
	check("security", prev.Security, next.Security)
	check("cron", prev.Cron, next.Cron)

	for _, id := range changedModules(prev.Modules, next.Modules) {
		out = append(out, "modules."+id)
	}
	return out
}

// changedModules compares module entries by their encoded YAML, so moving
// an entry within the file is not a change.
func changedModules(prev, next map[string]yaml.Node) []string {
	seen := make(map[string]bool, len(prev)+len(next))
	var out []string
	for id := range prev {
		seen[id] = true
	}
	for id := range next {
		seen[id] = true
	}
	for id := range seen {
		p, pok := prev[id]
		n, nok := next[id]
		if pok != nok || encode(&p) != encode(&n) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func encode(n *yaml.Node) string {
	if n.Kind == 0 {
		return ""
	}
	data, err := yaml.Marshal(n)
	if err != nil {
		return ""
	}
	return string(data)
}
