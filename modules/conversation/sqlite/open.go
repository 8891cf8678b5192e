package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

func open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}
	// One writer at a time is all SQLite allows anyway.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenStore opens or creates the conversation database at path with the
// module defaults. The caller closes the store.
func OpenStore(path string, now func() time.Time) (*Store, error) {
	cfg := Config{Path: path}
	cfg.defaults()
	db, err := open(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return newStore(db, now), nil
}
