package storage

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(tx *sqlx.Tx, d dialect) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_external_orders_table",
		Up:      migration002AddExternalOrdersTable,
	},
	{
		Version: 3,
		Name:    "add_sync_runs_and_api_calls",
		Up:      migration003AddSyncRunsAndAPICalls,
	},
	{
		Version: 4,
		Name:    "add_sync_runs_awaiting_items",
		Up:      migration004AddSyncRunsAwaitingItems,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	// Ensure migrations table exists
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		slog.Debug("running migration", "version", migration.Version, "name", migration.Name)

		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx, s.dialect); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(tx.Rebind(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`),
			migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table
func (s *Storage) ensureMigrationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := s.db.Exec(query)
	return err
}

// getAppliedMigrations returns a set of applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	var versions []int
	if err := s.db.Select(&versions, `SELECT version FROM schema_migrations`); err != nil {
		return nil, err
	}
	for _, v := range versions {
		applied[v] = true
	}

	return applied, nil
}

func execAll(tx *sqlx.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// ================================================================
// MIGRATION FUNCTIONS
// ================================================================

// migration001InitialSchema creates accounts, catalog and stock ledger
func migration001InitialSchema(tx *sqlx.Tx, d dialect) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS merchant_accounts (
			id ` + d.autoID + `,
			user_id BIGINT NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			client_id TEXT NOT NULL DEFAULT '',
			client_secret TEXT NOT NULL DEFAULT '',
			access_token TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL DEFAULT '',
			token_expires_at ` + d.timestamp + `,
			status TEXT NOT NULL DEFAULT 'disconnected',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_sync_at ` + d.timestamp + `,
			created_at ` + d.timestamp + ` NOT NULL,
			updated_at ` + d.timestamp + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS products (
			id ` + d.autoID + `,
			sku TEXT NOT NULL UNIQUE,
			internal_code TEXT NOT NULL DEFAULT '',
			ean TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			sale_price ` + d.money + ` NOT NULL DEFAULT '0',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at ` + d.timestamp + ` NOT NULL,
			updated_at ` + d.timestamp + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS product_mappings (
			id ` + d.autoID + `,
			product_id BIGINT NOT NULL REFERENCES products(id),
			account_id BIGINT NOT NULL REFERENCES merchant_accounts(id),
			external_product_id TEXT NOT NULL,
			created_at ` + d.timestamp + ` NOT NULL,
			UNIQUE (account_id, external_product_id)
		)`,

		`CREATE TABLE IF NOT EXISTS inventory_movements (
			id ` + d.autoID + `,
			product_id BIGINT NOT NULL REFERENCES products(id),
			type TEXT NOT NULL CHECK (type IN ('ENTRY', 'EXIT')),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			reason TEXT NOT NULL DEFAULT '',
			user_id BIGINT NOT NULL DEFAULT 0,
			sync_status TEXT NOT NULL DEFAULT 'pending',
			order_id BIGINT,
			created_at ` + d.timestamp + ` NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_inventory_movements_product
		 ON inventory_movements(product_id, created_at)`,
	})
}

// migration002AddExternalOrdersTable creates the platform order mirror
func migration002AddExternalOrdersTable(tx *sqlx.Tx, d dialect) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS external_orders (
			id ` + d.autoID + `,
			external_order_id TEXT NOT NULL,
			account_id BIGINT NOT NULL REFERENCES merchant_accounts(id),
			user_id BIGINT NOT NULL DEFAULT 0,
			order_number TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			total_amount ` + d.money + ` NOT NULL DEFAULT '0',
			items_json TEXT NOT NULL DEFAULT '[]',
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			processed_at ` + d.timestamp + `,
			platform_created_at ` + d.timestamp + `,
			created_at ` + d.timestamp + ` NOT NULL,
			updated_at ` + d.timestamp + ` NOT NULL,
			UNIQUE (external_order_id, account_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_external_orders_account
		 ON external_orders(account_id, processed)`,

		`CREATE INDEX IF NOT EXISTS idx_inventory_movements_order
		 ON inventory_movements(order_id)`,
	})
}

// migration003AddSyncRunsAndAPICalls creates the audit tables
func migration003AddSyncRunsAndAPICalls(tx *sqlx.Tx, d dialect) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id ` + d.autoID + `,
			account_id BIGINT NOT NULL,
			started_at ` + d.timestamp + ` NOT NULL,
			completed_at ` + d.timestamp + `,
			orders_found INTEGER NOT NULL DEFAULT 0,
			orders_imported INTEGER NOT NULL DEFAULT 0,
			orders_auto_processed INTEGER NOT NULL DEFAULT 0,
			orders_errored INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'running',
			warning TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS api_calls (
			id ` + d.autoID + `,
			run_id BIGINT,
			account_id BIGINT NOT NULL,
			method TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at ` + d.timestamp + ` NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_api_calls_run ON api_calls(run_id)`,
	})
}

// migration004AddSyncRunsAwaitingItems counts eligible orders left
// unprocessed because the platform sent them without line items
func migration004AddSyncRunsAwaitingItems(tx *sqlx.Tx, _ dialect) error {
	return execAll(tx, []string{
		`ALTER TABLE sync_runs ADD COLUMN orders_awaiting_items INTEGER NOT NULL DEFAULT 0`,
	})
}
