// Package sqlite provides the conversation.sqlite module, which keeps
// sessions in a local SQLite file instead of the key-value store. It uses
// modernc.org/sqlite, so no CGO is needed.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/core"
)

// ServiceStore is the service name the store is registered under.
const ServiceStore = "conversation.store"

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

type Module struct {
	config Config
	logger *slog.Logger
	store  *Store
}

func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "conversation.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

// Provision opens the database and migrates it. The store is registered
// as a service so the runtime hands it to the conversation manager.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, "conversations.db")
	}
	m.logger = ctx.Logger.With("path", m.config.Path)

	db, err := open(context.Background(), m.config)
	if err != nil {
		return err
	}
	m.store = newStore(db, nil)
	ctx.RegisterService(ServiceStore, m.store)

	m.logger.Info("conversation database ready",
		"journal", m.config.Journal, "schema", schemaVersion())
	return nil
}

func (m *Module) Validate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

// Stop closes the database.
func (m *Module) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

// SessionStore returns the store for the conversation manager.
func (m *Module) SessionStore() conversation.Store {
	return m.store
}
