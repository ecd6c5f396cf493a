package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migration is one numbered schema step, loaded from NNN_name.sql.
type migration struct {
	version int
	name    string
	sql     string
}

// loadMigrations reads every .sql file in dir of fsys ordered by version.
// File names must start with a positive number followed by an underscore; versions are unique.
func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var steps []migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(strings.TrimSuffix(e.Name(), ".sql"), "_")
		version, err := strconv.Atoi(prefix)
		if !ok || err != nil || version <= 0 || rest == "" {
			return nil, fmt.Errorf("migration %s: name must be NNN_description.sql", e.Name())
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration %s: version %d already used by %s", e.Name(), version, other)
		}
		seen[version] = e.Name()

		body, err := fs.ReadFile(fsys, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		steps = append(steps, migration{version: version, name: rest, sql: string(body)})
	}

	slices.SortFunc(steps, func(a, b migration) int { return a.version - b.version })
	return steps, nil
}

// SchemaVersion returns the highest applied migration version, 0 on a fresh database.
func (p *Pool) SchemaVersion(ctx context.Context) (int, error) {
	if err := p.ensureSchemaTable(ctx); err != nil {
		return 0, err
	}
	var v int
	if err := p.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM facegate_schema").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func (p *Pool) ensureSchemaTable(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS facegate_schema (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema table: %w", err)
	}
	return nil
}

// Migrate brings the schema up to the newest embedded migration. Each step runs in its own
// transaction together with its schema row, so a failed step leaves the version unchanged.
func (p *Pool) Migrate(ctx context.Context) error {
	steps, err := loadMigrations(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	current, err := p.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range steps {
		if m.version <= current {
			continue
		}
		if err := p.apply(ctx, m); err != nil {
			return err
		}
		slog.Info("postgres: schema migrated", "version", m.version, "name", m.name)
	}
	return nil
}

func (p *Pool) apply(ctx context.Context, m migration) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO facegate_schema (version, name) VALUES ($1, $2)", m.version, m.name); err != nil {
		return fmt.Errorf("migration %d: record: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: commit: %w", m.version, err)
	}
	return nil
}
