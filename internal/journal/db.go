package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/STTM-NSU/account-bridge/internal/config"
	"github.com/STTM-NSU/account-bridge/internal/postgres"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const _sqliteDriver = "sqlite"

// The schema is kept to types both postgres and sqlite understand.
var _schema = []string{
	`CREATE TABLE IF NOT EXISTS fetch_journal (
		id              UUID PRIMARY KEY,
		request_id      TEXT NOT NULL,
		provider        TEXT NOT NULL,
		account_id      TEXT NOT NULL,
		view_kind       TEXT NOT NULL,
		synchronized    BOOLEAN NOT NULL,
		degraded        BOOLEAN NOT NULL,
		sync_elapsed_ms BIGINT NOT NULL,
		error_kind      TEXT NOT NULL,
		created_at      TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS fetch_journal_account_created ON fetch_journal (account_id, created_at)`,
}

const (
	_insertEntries = `INSERT INTO fetch_journal (
							id, request_id, provider, account_id, view_kind,
							synchronized, degraded, sync_elapsed_ms, error_kind, created_at
						) VALUES (
							:id, :request_id, :provider, :account_id, :view_kind,
							:synchronized, :degraded, :sync_elapsed_ms, :error_kind, :created_at
						)`
	_selectEntries = `SELECT id, request_id, provider, account_id, view_kind,
							synchronized, degraded, sync_elapsed_ms, error_kind, created_at
						FROM fetch_journal`
	_queryRecent          = _selectEntries + " ORDER BY created_at DESC LIMIT ?"
	_queryRecentByAccount = _selectEntries + " WHERE account_id = ? ORDER BY created_at DESC LIMIT ?"
)

// Open connects to the configured journal database.
func Open(ctx context.Context, cfg config.JournalConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case config.Postgres:
		return postgres.NewDB(ctx, postgres.NewConfigFromEnv().Setup())
	case config.SQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("%w: unknown journal driver %q", config.ErrConfig, cfg.Driver)
	}
}

func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: can't create journal dir", err)
		}
	}
	db, err := sqlx.ConnectContext(ctx, _sqliteDriver, path)
	if err != nil {
		return nil, fmt.Errorf("%w: can't open sqlite journal %s", err, path)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates the journal table if it is missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range _schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: can't migrate journal", err)
		}
	}
	return nil
}
