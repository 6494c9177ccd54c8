package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/assetflow/pkg/models"
	"github.com/dukex/assetflow/pkg/persistence/sqlbase"

	_ "github.com/lib/pq"
)

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE asset_materializations (
				asset_key TEXT PRIMARY KEY,
				last_run_id TEXT NOT NULL DEFAULT '',
				last_materialized_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
	}
}

// PostgresStore keeps one row per materialized asset.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*PostgresStore, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, "assetflow_state_migrations", migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run state migrations: %w", err)
	}

	logger.InfoContext(ctx, "State PostgreSQL persistence initialized successfully")

	return &PostgresStore{
		db:     database,
		logger: logger.With("module", "state_postgres"),
	}, nil
}

func (p *PostgresStore) RunState(ctx context.Context, key models.AssetKey) (models.RunState, error) {
	state := models.RunState{AssetKey: models.NewAssetKey(key...)}

	err := p.db.QueryRowContext(ctx,
		`SELECT last_run_id, last_materialized_at FROM asset_materializations WHERE asset_key = $1`,
		key.String(),
	).Scan(&state.LastRunID, &state.LastMaterializedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}

	if err != nil {
		return models.RunState{}, fmt.Errorf("failed to query run state of %s: %w", key, err)
	}

	state.HasMaterialized = true
	state.LastMaterializedAt = state.LastMaterializedAt.UTC()

	return state, nil
}

func (p *PostgresStore) RecordMaterialization(ctx context.Context, key models.AssetKey, runID string, at time.Time) error {
	query := `
		INSERT INTO asset_materializations (asset_key, last_run_id, last_materialized_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (asset_key)
		DO UPDATE SET
			last_run_id = EXCLUDED.last_run_id,
			last_materialized_at = EXCLUDED.last_materialized_at,
			updated_at = NOW()
		WHERE asset_materializations.last_materialized_at <= EXCLUDED.last_materialized_at
	`

	_, err := p.db.ExecContext(ctx, query, key.String(), runID, at.UTC())
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to record materialization", "asset", key.String(), "error", err)

		return fmt.Errorf("failed to record materialization of %s: %w", key, err)
	}

	return nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
