package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/trekassist/internal/config"
	"github.com/flemzord/trekassist/internal/core"
	"github.com/flemzord/trekassist/internal/reload"
	"github.com/flemzord/trekassist/internal/security"
)

// WatchConfig reloads path when its content changes or on SIGHUP, until
// the runtime is closed. A zero interval uses the watcher default.
func (rt *Runtime) WatchConfig(ctx context.Context, path string, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	h := rt.reloadHandler()
	w := reload.NewWatcher(reload.WatcherConfig{
		ConfigPath:   path,
		PollInterval: interval,
		Logger:       rt.Logger.With("component", "reload"),
	})
	w.Start(ctx)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				w.Trigger()
			}
		}
	}()
	go h.Run(ctx, w)

	rt.closers = append(rt.closers, func(context.Context) error {
		signal.Stop(hup)
		cancel()
		w.Stop()
		return nil
	})
}

func (rt *Runtime) reloadHandler() *reload.Handler {
	h := reload.NewHandler(rt.Config, rt.Logger.With("component", "reload"))
	h.Register("log", func(_ context.Context, _, next *config.Config) error {
		if rt.debug {
			return nil
		}
		level, err := config.ParseLevel(next.Log.Level)
		if err != nil {
			return err
		}
		rt.level.Set(level)
		return nil
	})
	h.Register("cache", func(_ context.Context, prev, next *config.Config) error {
		if prev.Cache.Disabled == next.Cache.Disabled {
			return nil
		}
		rt.Cache.SetEnabled(!next.Cache.Disabled)
		state := "enabled"
		if next.Cache.Disabled {
			state = "disabled"
		}
		rt.Audit.Log(security.AuditEvent{Type: security.EventConfigReload, Detail: "cache " + state})
		return nil
	})
	for _, id := range config.Resolve(rt.Config) {
		mod, ok := rt.App.Module(id)
		if !ok {
			continue
		}
		if r, ok := mod.(core.Reconfigurable); ok {
			h.RegisterModule(id, func(node *yaml.Node) error {
				if err := r.Reconfigure(node); err != nil {
					return err
				}
				rt.Audit.Log(security.AuditEvent{Type: security.EventConfigReload, Detail: "module " + id})
				return nil
			})
		}
	}
	return h
}
