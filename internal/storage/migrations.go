package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thisdougb/multisync/internal/config"
)

// Migration is a versioned change to the base schema (the registry and its
// bookkeeping). Per-metric tables are upgraded by MigrateAll instead.
type Migration struct {
	Version int
	Up      func(d Dialect) []string
}

// baseMigrations contains all base schema migrations in chronological order
var baseMigrations = []Migration{
	{
		Version: 1,
		Up: func(d Dialect) []string {
			return []string{d.CreateRegistryTable()}
		},
	},
}

// runBaseMigrations applies all pending base migrations. Several nodes may
// start at once, so every statement is idempotent and the version record is
// an insert-ignore.
func runBaseMigrations(ctx context.Context, db *sql.DB, d Dialect) error {
	// Create migrations table if it doesn't exist
	if _, err := db.ExecContext(ctx, d.CreateMigrationsTable()); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := schemaVersion(ctx, db, d)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range baseMigrations {
		if migration.Version <= currentVersion {
			continue // Migration already applied
		}

		for _, stmt := range migration.Up(d) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply migration version %d: %w", migration.Version, err)
			}
		}

		record := d.InsertIgnore(MigrationsTable, []string{"version", "applied_at"}, "version")
		if _, err := db.ExecContext(ctx, record, migration.Version, time.Now().Unix()); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// schemaVersion returns the highest applied base migration version
func schemaVersion(ctx context.Context, db *sql.DB, d Dialect) (int, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", d.Quote(MigrationsTable))

	var version int
	if err := db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// SchemaVersion returns the current base schema version (for testing/debugging)
func (s *SQLBackend) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db, s.dialect)
}

// MigrateAll checks every registered metric table and adds the display name
// column where it is missing. A table that does not exist at all is created.
// Failures are collected per table and do not stop the pass.
func (s *SQLBackend) MigrateAll(ctx context.Context) (bool, error) {
	config.LogInfo(ctx, "checking metric tables for migration")

	names, err := s.List(ctx)
	if err != nil {
		return false, err
	}

	migrated := false
	var errs []error

	for _, name := range names {
		table := TableName(name)

		changed, err := s.migrateTable(ctx, table)
		if err != nil {
			config.LogError(ctx, fmt.Sprintf("failed to check or migrate table %s: %v", table, err))
			errs = append(errs, err)
			continue
		}
		migrated = migrated || changed
	}

	return migrated, errors.Join(errs...)
}

func (s *SQLBackend) migrateTable(ctx context.Context, table string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	columns, err := s.allColumns(ctx, table)
	if err != nil {
		return false, err
	}

	if len(columns) == 0 {
		config.LogInfo(ctx, fmt.Sprintf("creating missing table %s", table))
		return true, s.ensureTable(ctx, table)
	}

	if s.hasColumn(columns, NameColumn) {
		return false, nil
	}

	config.LogInfo(ctx, fmt.Sprintf("migrating table %s: adding column %s", table, NameColumn))
	if _, err := s.db.ExecContext(ctx, s.dialect.AddNameColumn(table)); err != nil {
		if s.dialect.IsDuplicateColumn(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to add %s to %s: %w", NameColumn, table, err)
	}
	return true, nil
}
