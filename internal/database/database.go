package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/watzon/authhook/internal/config"
	"github.com/watzon/authhook/internal/database/migrations"
	"github.com/watzon/authhook/internal/metrics"
)

// DB is the SQLite handle backing the user store.
type DB struct {
	*sql.DB
	cfg    *config.DatabaseConfig
	mu     sync.RWMutex
	closed bool
}

// Open opens the database at cfg.Path, applies connection pragmas and runs
// pending migrations.
func Open(cfg *config.DatabaseConfig) (*DB, error) {
	if err := ensureDir(cfg.Path); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{
		DB:  sqlDB,
		cfg: cfg,
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	ctx := context.Background()
	if err := migrations.Run(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	schema, err := migrations.Current(ctx, sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	log.Info().Str("path", cfg.Path).Int("schema_version", schema).Msg("Database ready")

	return db, nil
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// dsn carries the pragmas as _pragma parameters. The driver applies them to
// every connection it opens, not just the first one.
func dsn(cfg *config.DatabaseConfig) string {
	values := url.Values{}
	values.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	if cfg.WALMode {
		values.Add("_pragma", "journal_mode(WAL)")
		values.Add("_pragma", "synchronous(NORMAL)")
	}
	values.Add("_pragma", "temp_store(MEMORY)")

	return fmt.Sprintf("file:%s?%s", cfg.Path, values.Encode())
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	if db.cfg.WALMode {
		_, _ = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}

	return db.DB.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	db.mu.RLock()
	closed := db.closed
	db.mu.RUnlock()
	if closed {
		return sql.ErrConnDone
	}

	return db.DB.PingContext(ctx)
}

// ReportStats publishes connection pool gauges.
func (db *DB) ReportStats() {
	stats := db.Stats()
	metrics.UpdateDBStats(stats.OpenConnections, stats.InUse)
}
