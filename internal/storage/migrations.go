package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunCatalogMigrations creates the container catalog on the primary backend.
func RunCatalogMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS containers (
			database_name       TEXT NOT NULL,
			container_name      TEXT NOT NULL,
			partition_key_paths TEXT[] NOT NULL,
			default_ttl         INTEGER,
			unique_key_paths    TEXT[] NOT NULL DEFAULT '{}',
			indexing_policy     TEXT NOT NULL DEFAULT '',
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),

			PRIMARY KEY (database_name, container_name)
		);
	`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate container catalog: %w", err)
	}
	return nil
}

// RunMigrationsForPool creates document shard tables for the given range.
func RunMigrationsForPool(ctx context.Context, pool *pgxpool.Pool, shardStart, shardEnd int) error {
	for i := shardStart; i <= shardEnd; i++ {
		table := ShardTable(i)
		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				added_id       BIGSERIAL PRIMARY KEY,
				database_name  TEXT NOT NULL,
				container_name TEXT NOT NULL,
				id             TEXT NOT NULL,
				partition_key  TEXT NOT NULL,
				body           JSON NOT NULL,
				etag           UUID NOT NULL,
				updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),

				CONSTRAINT uq_%s_doc UNIQUE (database_name, container_name, partition_key, id)
			);

			CREATE INDEX IF NOT EXISTS idx_%s_scan
				ON %s (database_name, container_name, added_id);
		`, table, table, table, table)

		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migrate shard %d: %w", i, err)
		}
	}

	return nil
}

// ShardTable returns the table name for a given shard number.
func ShardTable(shardID int) string {
	return fmt.Sprintf("documents_%04d", shardID)
}
