package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations run in order, each in its own transaction. Timestamps are
// unix milliseconds.
var migrations = [][]string{
	1: {
		`CREATE TABLE sessions (
			session_id          TEXT    PRIMARY KEY,
			user_id             TEXT    NOT NULL DEFAULT '',
			escalated           INTEGER NOT NULL DEFAULT 0,
			assigned_agent      TEXT    NOT NULL DEFAULT '',
			last_interaction_at INTEGER NOT NULL,
			expires_at          INTEGER NOT NULL,
			data                TEXT    NOT NULL
		)`,
		`CREATE INDEX idx_sessions_expiry ON sessions(escalated, expires_at)`,
		`CREATE INDEX idx_sessions_agent ON sessions(escalated, assigned_agent)`,
	},
	2: {
		`ALTER TABLE sessions ADD COLUMN message_count INTEGER NOT NULL DEFAULT 0`,
		`CREATE INDEX idx_sessions_user ON sessions(user_id) WHERE user_id != ''`,
	},
}

func schemaVersion() int { return len(migrations) - 1 }

// migrate brings db up to schemaVersion using SQLite's user_version.
func migrate(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read user_version: %w", err)
	}
	if current > schemaVersion() {
		return fmt.Errorf("sqlite: database schema v%d is newer than this build (v%d)", current, schemaVersion())
	}

	for v := current + 1; v <= schemaVersion(); v++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlite: migration v%d: %w", v, err)
		}
		for _, stmt := range migrations[v] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("sqlite: migration v%d: %w", v, err)
			}
		}
		// PRAGMA takes no bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: migration v%d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlite: migration v%d: %w", v, err)
		}
	}
	return nil
}
