package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// Repository persists previously seen hosts so host tracking survives
// restarts.
type Repository struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(ctx context.Context, dbPath string, logger *slog.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	repo := &Repository{db: db, logger: logger}
	if err := repo.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS hosts (
			mac TEXT PRIMARY KEY,
			address TEXT NOT NULL DEFAULT '',
			host_name TEXT NOT NULL DEFAULT '',
			interface TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			last_seen TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_hosts_last_seen ON hosts(last_seen);`,
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return r.normalizeLegacyMACKeys(ctx)
}

func (r *Repository) normalizeLegacyMACKeys(ctx context.Context) error {
	res, err := r.db.ExecContext(ctx, "UPDATE OR IGNORE hosts SET mac = REPLACE(UPPER(TRIM(mac)), '-', ':') "+
		"WHERE mac LIKE '%-%' OR mac != UPPER(mac) OR mac != TRIM(mac);")
	if err != nil {
		return fmt.Errorf("legacy mac normalization failed: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows > 0 && r.logger != nil {
		r.logger.Info("normalized legacy mac rows", "table", "hosts", "rows", rows)
	}
	return nil
}
