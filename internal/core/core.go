package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// stopBudget bounds the whole shutdown when the caller's context has no
// deadline of its own.
const stopBudget = 30 * time.Second

// ErrDuplicateModule is returned when the same module ID is loaded twice.
var ErrDuplicateModule = errors.New("module loaded twice")

// App runs a set of modules: started in load order, stopped in reverse.
type App struct {
	ctx     *AppContext
	logger  *slog.Logger
	modules []*instance
}

type instance struct {
	id      ModuleID
	module  Module
	running bool
}

func NewApp(ctx *AppContext) *App {
	return &App{ctx: ctx, logger: ctx.Logger.With("component", "core")}
}

// LoadModules loads ids in order. On failure the modules loaded so far
// are released and nothing is kept.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		if _, dup := a.Module(id); dup {
			_ = a.Release(context.Background())
			return fmt.Errorf("%w: %s", ErrDuplicateModule, id)
		}
		start := time.Now()
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			_ = a.Release(context.Background())
			return err
		}
		a.Append(mod)
		a.logger.Debug("module loaded", "module", id, "took", time.Since(start))
	}
	return nil
}

// Append adds a module the application built itself, such as the
// scheduler. It starts after everything already present.
func (a *App) Append(mod Module) {
	a.modules = append(a.modules, &instance{id: mod.ModuleInfo().ID, module: mod})
}

func (a *App) Module(id string) (Module, bool) {
	for _, in := range a.modules {
		if string(in.id) == id {
			return in.module, true
		}
	}
	return nil, false
}

// Modules returns the modules in load order.
func (a *App) Modules() []Module {
	out := make([]Module, 0, len(a.modules))
	for _, in := range a.modules {
		out = append(out, in.module)
	}
	return out
}

// Start starts every module. Modules without a Start method are marked
// running so Stop still reaches them. If one fails, those already running
// are stopped again and the error is returned.
func (a *App) Start() error {
	for i, in := range a.modules {
		s, ok := in.module.(Starter)
		if !ok {
			in.running = true
			continue
		}
		start := time.Now()
		if err := s.Start(); err != nil {
			a.logger.Error("module failed to start", "module", in.id, "error", err)
			_ = a.stop(context.Background(), a.modules[:i])
			return fmt.Errorf("start %s: %w", in.id, err)
		}
		in.running = true
		a.logger.Info("module started", "module", in.id, "took", time.Since(start))
	}
	return nil
}

// Stop stops the running modules in reverse order and reports every
// error they return.
func (a *App) Stop(ctx context.Context) error {
	return a.stop(ctx, a.modules)
}

// Release stops every module, running or not, and forgets them. It is
// for an App whose Start was never called or failed.
func (a *App) Release(ctx context.Context) error {
	for _, in := range a.modules {
		in.running = true
	}
	err := a.stop(ctx, a.modules)
	a.modules = nil
	return err
}

func (a *App) stop(ctx context.Context, set []*instance) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stopBudget)
		defer cancel()
	}

	var errs []error
	for i := len(set) - 1; i >= 0; i-- {
		in := set[i]
		if !in.running {
			continue
		}
		in.running = false
		s, ok := in.module.(Stopper)
		if !ok {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module failed to stop", "module", in.id, "error", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", in.id, err))
			continue
		}
		a.logger.Debug("module stopped", "module", in.id)
	}
	return errors.Join(errs...)
}
