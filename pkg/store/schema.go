package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration
// support.
const CurrentSchemaVersion = 1

func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := getSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion == 0 {
		return createSchema(db)
	}
	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func runMigration(_ *sql.DB, version int) error {
	return fmt.Errorf("unknown migration version: %d", version)
}

func getSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		// Table does not exist yet on a fresh database.
		return 0, nil //nolint:nilerr // absence of the table means version 0
	}
	return version, nil
}

func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec("UPDATE schema_version SET version = ?", version)
	if err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

func createSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS cases (
			case_id         TEXT PRIMARY KEY,
			stage           TEXT NOT NULL,
			status          TEXT NOT NULL,
			category_id     TEXT NOT NULL DEFAULT '',
			supplier_id     TEXT NOT NULL DEFAULT '',
			contract_id     TEXT NOT NULL DEFAULT '',
			estimated_value REAL NOT NULL DEFAULT 0,
			strategic       INTEGER NOT NULL DEFAULT 0,
			waiting_for_human INTEGER NOT NULL DEFAULT 0,
			latest_agent    TEXT NOT NULL DEFAULT '',
			latest_pack_id  TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMP NOT NULL,
			updated_at      TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS artifact_packs (
			pack_id    TEXT PRIMARY KEY,
			case_id    TEXT NOT NULL REFERENCES cases(case_id),
			agent_name TEXT NOT NULL,
			payload    TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_packs_case ON artifact_packs(case_id)`,

		`CREATE TABLE IF NOT EXISTS activity_log (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			case_id     TEXT NOT NULL REFERENCES cases(case_id),
			ts          TIMESTAMP NOT NULL,
			message     TEXT NOT NULL,
			intent      TEXT NOT NULL DEFAULT '',
			agent_name  TEXT NOT NULL DEFAULT '',
			pack_id     TEXT NOT NULL DEFAULT '',
			tokens_used INTEGER NOT NULL DEFAULT 0,
			cost_usd    REAL NOT NULL DEFAULT 0,
			detail      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_case ON activity_log(case_id)`,

		`CREATE TABLE IF NOT EXISTS memory_entries (
			case_id    TEXT PRIMARY KEY REFERENCES cases(case_id),
			payload    TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS suppliers (
			supplier_id   TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			category_id   TEXT NOT NULL,
			risk_score    REAL NOT NULL DEFAULT 0,
			on_time_rate  REAL NOT NULL DEFAULT 0,
			quality_score REAL NOT NULL DEFAULT 0,
			incumbent     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_suppliers_category ON suppliers(category_id)`,

		`CREATE TABLE IF NOT EXISTS contracts (
			contract_id TEXT PRIMARY KEY,
			supplier_id TEXT NOT NULL REFERENCES suppliers(supplier_id),
			category_id TEXT NOT NULL,
			end_date    TIMESTAMP NOT NULL,
			value_usd   REAL NOT NULL DEFAULT 0,
			auto_renew  INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_category ON contracts(category_id)`,

		`CREATE TABLE IF NOT EXISTS spend_records (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			category_id TEXT NOT NULL,
			supplier_id TEXT NOT NULL DEFAULT '',
			month       TEXT NOT NULL,
			amount_usd  REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spend_category ON spend_records(category_id)`,

		`CREATE TABLE IF NOT EXISTS bids (
			bid_id        TEXT PRIMARY KEY,
			case_id       TEXT NOT NULL,
			supplier_id   TEXT NOT NULL,
			price_usd     REAL NOT NULL,
			lead_time_days INTEGER NOT NULL DEFAULT 0,
			terms         TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bids_case ON bids(case_id)`,

		`CREATE TABLE IF NOT EXISTS price_benchmarks (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			category_id    TEXT NOT NULL,
			unit_price_usd REAL NOT NULL,
			source         TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_benchmarks_category ON price_benchmarks(category_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
