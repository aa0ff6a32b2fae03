// Package migrations defines the schema owned by the pipeline and a
// small versioned runner for applying it.
package migrations

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Up      string
	Down    string
}

// All returns the full ordered migration set. Migrations are compiled in
// so the binary has no runtime dependence on a source tree layout.
func All() []Migration {
	return []Migration{
		{
			Version: 1,
			Up: `
				CREATE TABLE IF NOT EXISTS feeds (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					url TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL DEFAULT '',
					language TEXT NOT NULL DEFAULT 'en',
					source TEXT,
					category TEXT,
					cooldown_minutes INTEGER NOT NULL DEFAULT 0,
					max_news_per_hour INTEGER NOT NULL DEFAULT 0,
					is_active INTEGER NOT NULL DEFAULT 1,
					failures_count INTEGER NOT NULL DEFAULT 0,
					last_error TEXT,
					last_retrieved_at DATETIME,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					deleted_at DATETIME
				);
				CREATE INDEX IF NOT EXISTS idx_feeds_active ON feeds(is_active) WHERE deleted_at IS NULL;`,
			Down: `DROP TABLE IF EXISTS feeds;`,
		},
		{
			Version: 2,
			Up: `
				CREATE TABLE IF NOT EXISTS news_items (
					id TEXT PRIMARY KEY,
					feed_id INTEGER NOT NULL REFERENCES feeds(id),
					title TEXT NOT NULL,
					content TEXT NOT NULL DEFAULT '',
					link TEXT NOT NULL,
					language TEXT NOT NULL DEFAULT 'en',
					published_at DATETIME NOT NULL,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					embedding TEXT
				);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_news_items_link ON news_items(link);
				CREATE INDEX IF NOT EXISTS idx_news_items_feed_published ON news_items(feed_id, published_at);
				CREATE INDEX IF NOT EXISTS idx_news_items_missing_embedding ON news_items(created_at) WHERE embedding IS NULL;`,
			Down: `DROP TABLE IF EXISTS news_items;`,
		},
		{
			Version: 3,
			Up: `
				CREATE TABLE IF NOT EXISTS translations (
					item_id TEXT NOT NULL REFERENCES news_items(id) ON DELETE CASCADE,
					lang TEXT NOT NULL,
					title TEXT NOT NULL,
					content TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (item_id, lang)
				);`,
			Down: `DROP TABLE IF EXISTS translations;`,
		},
		{
			Version: 4,
			Up: `
				ALTER TABLE news_items ADD COLUMN image_url TEXT;
				ALTER TABLE news_items ADD COLUMN video_url TEXT;`,
			Down: `
				ALTER TABLE news_items DROP COLUMN image_url;
				ALTER TABLE news_items DROP COLUMN video_url;`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(db *sql.DB, migrations []Migration) error {
	// Create migrations table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.Query("SELECT version FROM migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	// Run pending migrations
	for _, migration := range migrations {
		if applied[migration.Version] {
			log.Debug().
				Int("version", migration.Version).
				Msg("Migration already applied, skipping")
			continue
		}

		log.Info().
			Int("version", migration.Version).
			Msg("Running migration")

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		// Execute migration
		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		// Record migration
		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		log.Info().
			Int("version", migration.Version).
			Msg("Migration completed successfully")
	}

	return nil
}

// RollbackMigrations rolls back the last N migrations
func RollbackMigrations(db *sql.DB, migrations []Migration, n int) error {
	rows, err := db.Query("SELECT version FROM migrations ORDER BY version DESC LIMIT ?", n)
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		versions = append(versions, version)
	}

	// Rollback migrations in reverse order
	for _, version := range versions {
		var migration Migration
		for _, m := range migrations {
			if m.Version == version {
				migration = m
				break
			}
		}

		if migration.Down == "" {
			log.Warn().
				Int("version", version).
				Msg("No down migration found, skipping")
			continue
		}

		log.Info().
			Int("version", version).
			Msg("Rolling back migration")

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Down); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute rollback for migration %d: %w", version, err)
		}

		if _, err := tx.Exec("DELETE FROM migrations WHERE version = ?", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to remove migration record %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit rollback for migration %d: %w", version, err)
		}

		log.Info().
			Int("version", version).
			Msg("Rollback completed successfully")
	}

	return nil
}
