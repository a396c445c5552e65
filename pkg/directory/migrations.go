package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the directory schema. Statements stay within the subset of SQL
// understood by both sqlite and postgres.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create profiles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS cura_profiles (
					id TEXT PRIMARY KEY,
					username TEXT NOT NULL,
					display_name TEXT NOT NULL DEFAULT '',
					email TEXT NOT NULL DEFAULT '',
					role TEXT NOT NULL,
					title TEXT NOT NULL DEFAULT '',
					approved BOOLEAN NOT NULL DEFAULT FALSE,
					email_notifications BOOLEAN NOT NULL DEFAULT TRUE,
					sms_notifications BOOLEAN NOT NULL DEFAULT FALSE,
					phone TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					last_login_at TIMESTAMP
				)
			`,
		},
		{
			Version:     2,
			Description: "Index profiles by username",
			SQL:         `CREATE INDEX IF NOT EXISTS idx_cura_profiles_username ON cura_profiles(username)`,
		},
		{
			Version:     3,
			Description: "Create credentials table",
			SQL: `
				CREATE TABLE IF NOT EXISTS cura_credentials (
					uid TEXT PRIMARY KEY,
					email TEXT NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				)
			`,
		},
		{
			Version:     4,
			Description: "Create device sessions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS cura_device_sessions (
					device_id TEXT PRIMARY KEY,
					uid TEXT NOT NULL,
					signed_in_at TIMESTAMP NOT NULL
				)
			`,
		},
	}
}

// RunMigrations applies every migration not yet recorded in cura_migrations
func RunMigrations(ctx context.Context, db *sql.DB, log *logrus.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cura_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM cura_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, m := range GetMigrations() {
		if applied[m.Version] {
			continue
		}

		log.WithFields(logrus.Fields{
			"version":     m.Version,
			"description": m.Description,
		}).Info("Running directory migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO cura_migrations (version, description) VALUES ($1, $2)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
