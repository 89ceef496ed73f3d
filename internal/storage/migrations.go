package storage

import (
	"database/sql"
	"fmt"
)

// migrate brings the schema up to the current version. Migrations run
// inside a transaction and are recorded in schema_migrations.
func (s *Storage) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return fmt.Errorf("checking migration version: %w", err)
	}
	if version.Valid && version.Int64 >= 1 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS device_rules (
			id TEXT PRIMARY KEY,
			list TEXT NOT NULL CHECK (list IN ('blacklist', 'whitelist')),
			vendor_id INTEGER,
			product_id INTEGER,
			device_class INTEGER,
			manufacturer TEXT,
			product TEXT,
			serial_number TEXT,
			reason TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating device_rules table: %w", err)
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_device_rules_list ON device_rules(list)`); err != nil {
		return fmt.Errorf("creating device_rules index: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS security_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			event_type TEXT NOT NULL,
			action TEXT NOT NULL,
			vendor_id INTEGER NOT NULL,
			product_id INTEGER NOT NULL,
			bus_number INTEGER NOT NULL,
			device_address INTEGER NOT NULL,
			product TEXT,
			manufacturer TEXT,
			serial_number TEXT,
			reason TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating security_events table: %w", err)
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_security_events_ts ON security_events(timestamp)`); err != nil {
		return fmt.Errorf("creating security_events index: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating settings table: %w", err)
	}

	// Blacklist on, whitelist off matches a fresh install where nothing
	// is blocked until a rule is added.
	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO settings (key, value) VALUES
			('blacklist_enabled', 'true'),
			('whitelist_enabled', 'false')
	`); err != nil {
		return fmt.Errorf("seeding settings: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (1)`); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	return tx.Commit()
}
