// Package migrations applies the embedded schema migrations for the user
// mirror.
//
// Files are named NNNN_description.sql. Each file is executed as a single
// script inside its own transaction and recorded in the version table.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

//go:embed sql/*.sql
var sqlFS embed.FS

const versionTable = "authhook_schema_versions"

type migration struct {
	version int
	name    string
	script  string
}

// Run applies every migration newer than the recorded schema version.
func Run(ctx context.Context, db *sql.DB) error {
	return run(ctx, db, sqlFS)
}

// Current returns the highest applied schema version, or 0 on a fresh
// database.
func Current(ctx context.Context, db *sql.DB) (int, error) {
	if err := ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}

	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM `+versionTable).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return int(v.Int64), nil
}

func run(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	all, err := parse(fsys)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	current, err := Current(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range all {
		if m.version <= current {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration %04d_%s: %w", m.version, m.name, err)
		}
		log.Info().Int("version", m.version).Str("name", m.name).Msg("Applied migration")
	}

	return nil
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+versionTable+` (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating version table: %w", err)
	}
	return nil
}

// parse reads sql/*.sql from fsys, ordered by version. Duplicate versions and
// names without a numeric prefix are rejected.
func parse(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "sql/*.sql")
	if err != nil {
		return nil, err
	}

	out := make([]migration, 0, len(files))
	seen := make(map[int]string, len(files))
	for _, file := range files {
		base := strings.TrimSuffix(path.Base(file), ".sql")
		prefix, name, ok := strings.Cut(base, "_")
		if !ok || name == "" {
			return nil, fmt.Errorf("%s: expected NNNN_name.sql", file)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("%s: invalid version %q", file, prefix)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("%s: version %d already used by %s", file, version, prev)
		}
		seen[version] = file

		script, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: version, name: name, script: string(script)})
	}

	slices.SortFunc(out, func(a, b migration) int { return a.version - b.version })
	return out, nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.script); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+versionTable+` (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}

	return tx.Commit()
}
