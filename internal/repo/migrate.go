package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/counselor-chat/internal/domain"
)

// Migration is one versioned schema step. Up runs inside a transaction and
// must be safe against databases created by the earlier un-versioned
// deployment, which added columns opportunistically at startup.
type Migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB) error
}

// Migrations is the ordered list of schema steps applied by Migrate.
var Migrations = []Migration{
	{1, "create_users", func(tx *gorm.DB) error {
		return tx.Exec(`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			class_of INTEGER NOT NULL,
			thread_id TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`).Error
	}},
	{2, "daily_usage", func(tx *gorm.DB) error {
		if err := addColumn(tx, "users", "messages_today", "INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
		return addColumn(tx, "users", "last_message_date", "TEXT")
	}},
	{3, "thread_created_at", func(tx *gorm.DB) error {
		return addColumn(tx, "users", "thread_created_at", "TIMESTAMP")
	}},
	{4, "tutorial_completed", func(tx *gorm.DB) error {
		return addColumn(tx, "users", "tutorial_completed", "BOOLEAN NOT NULL DEFAULT 0")
	}},
	{5, "profile", func(tx *gorm.DB) error {
		for _, c := range [][2]string{
			{"display_name", "TEXT"},
			{"current_grade", "INTEGER"},
			{"bio", "TEXT"},
		} {
			if err := addColumn(tx, "users", c[0], c[1]); err != nil {
				return err
			}
		}
		return nil
	}},
	{6, "ip_address", func(tx *gorm.DB) error {
		return addColumn(tx, "users", "ip_address", "TEXT")
	}},
	{7, "idempotency", func(tx *gorm.DB) error {
		return tx.AutoMigrate(&domain.Idempotency{})
	}},
}

func addColumn(tx *gorm.DB, table, column, ddl string) error {
	if tx.Migrator().HasColumn(table, column) {
		return nil
	}
	return tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl)).Error
}

// AppliedMigrations returns the recorded schema versions in ascending order.
func AppliedMigrations(ctx context.Context, db *gorm.DB) ([]domain.SchemaMigration, error) {
	var out []domain.SchemaMigration
	err := db.WithContext(ctx).Order("version ASC").Find(&out).Error
	return out, err
}

// Migrate brings the schema up to the latest version and returns the steps it
// applied in this call. Each step commits together with its bookkeeping row.
func Migrate(ctx context.Context, db *gorm.DB) ([]domain.SchemaMigration, error) {
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&domain.SchemaMigration{}); err != nil {
		return nil, fmt.Errorf("schema_migrations: %w", err)
	}

	done, err := AppliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	have := make(map[int]bool, len(done))
	for _, m := range done {
		have[m.Version] = true
	}

	var applied []domain.SchemaMigration
	for _, m := range Migrations {
		if have[m.Version] {
			continue
		}
		rec := domain.SchemaMigration{Version: m.Version, Name: m.Name, AppliedAt: time.Now().UTC()}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&rec).Error
		})
		if err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("schema migration applied")
		applied = append(applied, rec)
	}
	return applied, nil
}
