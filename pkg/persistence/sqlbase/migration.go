// Package sqlbase holds the versioned migration runner shared by the postgres-backed stores.
package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"

	"github.com/lib/pq"
)

// DefaultMigrationsTable records applied versions when no table is given.
const DefaultMigrationsTable = "schema_migrations"

// MigrationManager applies numbered SQL migrations once each, in ascending order.
type MigrationManager struct {
	db         *sql.DB
	logger     *slog.Logger
	table      string
	migrations map[int]string
}

// NewMigrationManager tracks versions in table. Stores sharing a database pass
// distinct table names so their version sequences do not collide.
func NewMigrationManager(logger *slog.Logger, db *sql.DB, table string, migrations map[int]string) *MigrationManager {
	if table == "" {
		table = DefaultMigrationsTable
	}

	return &MigrationManager{
		db:         db,
		logger:     logger.With("migrations_table", table),
		table:      table,
		migrations: migrations,
	}
}

// LatestVersion is the highest migration version known to the manager.
func (m *MigrationManager) LatestVersion() int {
	latest := 0
	for version := range m.migrations {
		latest = max(latest, version)
	}

	return latest
}

// RunMigrations brings the schema up to LatestVersion.
func (m *MigrationManager) RunMigrations(ctx context.Context) error {
	if err := m.createMigrationsTable(ctx); err != nil {
		return err
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}

	pending := m.pendingVersions(current)
	m.logger.InfoContext(ctx, "Running migrations", "current_version", current, "pending", len(pending))

	for _, version := range pending {
		if err := m.apply(ctx, version); err != nil {
			return err
		}
	}

	return nil
}

func (m *MigrationManager) quotedTable() string {
	return pq.QuoteIdentifier(m.table)
}

func (m *MigrationManager) createMigrationsTable(ctx context.Context) error {
	statement := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`, m.quotedTable())

	if _, err := m.db.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("failed to create %s table: %w", m.table, err)
	}

	return nil
}

func (m *MigrationManager) currentVersion(ctx context.Context) (int, error) {
	var version int

	query := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", m.quotedTable())
	if err := m.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to query current schema version: %w", err)
	}

	return version, nil
}

// pendingVersions lists the versions above fromVersion in ascending order.
func (m *MigrationManager) pendingVersions(fromVersion int) []int {
	var versions []int

	for version := range m.migrations {
		if version > fromVersion {
			versions = append(versions, version)
		}
	}

	slices.Sort(versions)

	return versions
}

// apply runs one migration and records it in the same transaction.
func (m *MigrationManager) apply(ctx context.Context, version int) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", version, err)
	}

	if _, err := tx.ExecContext(ctx, m.migrations[version]); err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("failed to execute migration %d: %w", version, err)
	}

	record := fmt.Sprintf("INSERT INTO %s (version) VALUES ($1)", m.quotedTable())
	if _, err := tx.ExecContext(ctx, record, version); err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("failed to record migration %d: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", version, err)
	}

	m.logger.InfoContext(ctx, "Migration applied", "version", version)

	return nil
}
