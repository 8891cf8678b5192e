// Package reload applies configuration changes to a running process, either
// when the file content changes or on an explicit trigger such as SIGHUP.
package reload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	ConfigPath string

	// Debounce is how long the file must be quiet after a filesystem event
	// before it is read. Editors often write in several steps. Default 200ms.
	Debounce time.Duration

	// PollInterval re-reads the file even without events, which covers
	// network filesystems and symlink swaps. Default 5s.
	PollInterval time.Duration

	Logger *slog.Logger
}

func (c *WatcherConfig) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 200 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// EventType describes why a reload was requested.
type EventType string

const (
	EventModified  EventType = "modified"
	EventTriggered EventType = "triggered"
)

// Event is a reload request.
type Event struct {
	Type       EventType
	ConfigPath string
}

// Watcher emits an Event when the content of the configuration file
// changes. It listens for filesystem notifications on the file's directory
// and also polls, so a missed notification delays a reload but never loses
// it. Rewriting the file with identical bytes emits nothing.
type Watcher struct {
	cfg  WatcherConfig
	path string // absolute, compared against notification names

	events chan Event
	stop   chan struct{}
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewWatcher(cfg WatcherConfig) *Watcher {
	cfg.defaults()
	path, err := filepath.Abs(cfg.ConfigPath)
	if err != nil {
		path = filepath.Clean(cfg.ConfigPath)
	}
	return &Watcher{
		cfg:    cfg,
		path:   path,
		events: make(chan Event, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start records the current content and begins watching. Only the first
// call has an effect. When notifications are unavailable the watcher
// falls back to polling alone.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		initial := w.digest()

		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			if err = fsw.Add(filepath.Dir(w.path)); err != nil {
				_ = fsw.Close()
				fsw = nil
			}
		}
		if err != nil {
			w.cfg.Logger.Warn("file notifications unavailable, polling config",
				"path", w.cfg.ConfigPath, "interval", w.cfg.PollInterval, "error", err)
		}
		go w.run(ctx, fsw, initial)
	})
}

// Events returns reload requests. At most one is pending at a time.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Trigger requests a reload regardless of file content.
func (w *Watcher) Trigger() {
	w.emit(EventTriggered)
}

// Stop stops watching and waits for the watch goroutine. It may be called
// more than once, and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	started := true
	w.startOnce.Do(func() { started = false })
	if started {
		<-w.done
	}
}

func (w *Watcher) emit(t EventType) {
	select {
	case w.events <- Event{Type: t, ConfigPath: w.cfg.ConfigPath}:
	default:
	}
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, last []byte) {
	defer close(w.done)

	var (
		notes <-chan fsnotify.Event
		errs  <-chan error
	)
	if fsw != nil {
		defer func() { _ = fsw.Close() }()
		notes, errs = fsw.Events, fsw.Errors
	}

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()
	settle := time.NewTimer(w.cfg.Debounce)
	settle.Stop()
	defer settle.Stop()

	check := func() {
		current := w.digest()
		// A missing or unreadable file keeps the last known content.
		if current == nil || bytes.Equal(current, last) {
			return
		}
		last = current
		w.emit(EventModified)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			if filepath.Clean(ev.Name) == w.path {
				settle.Reset(w.cfg.Debounce)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.cfg.Logger.Warn("config watch error", "error", err)
		case <-settle.C:
			check()
		case <-poll.C:
			check()
		}
	}
}

func (w *Watcher) digest() []byte {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil
	}
	sum := sha256.Sum256(data)
	return sum[:]
}
