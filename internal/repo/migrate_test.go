package repo

import (
	"context"
	"testing"

	"github.com/tbourn/counselor-chat/internal/domain"
)

func TestMigrate_FreshDatabase_AppliesAllOnce(t *testing.T) {
	db := newMemDB(t)
	ctx := context.Background()

	applied, err := Migrate(ctx, db)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(applied) != len(Migrations) {
		t.Fatalf("applied %d steps; want %d", len(applied), len(Migrations))
	}
	for i, m := range applied {
		if m.Version != Migrations[i].Version || m.Name != Migrations[i].Name {
			t.Fatalf("step %d = %+v; want version %d", i, m, Migrations[i].Version)
		}
	}

	again, err := Migrate(ctx, db)
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second Migrate applied %d steps; want 0", len(again))
	}

	recorded, err := AppliedMigrations(ctx, db)
	if err != nil || len(recorded) != len(Migrations) {
		t.Fatalf("AppliedMigrations = (%d, %v)", len(recorded), err)
	}
}

func TestMigrate_LegacyDatabase_KeepsRowsAndAddsColumns(t *testing.T) {
	db := newMemDB(t)
	ctx := context.Background()

	// Shape left behind by the un-versioned deployment: base table plus a
	// column that was added at startup, no bookkeeping table.
	if err := db.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		class_of INTEGER NOT NULL,
		thread_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`).Error; err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if err := db.Exec(`ALTER TABLE users ADD COLUMN messages_today INTEGER DEFAULT 0`).Error; err != nil {
		t.Fatalf("alter legacy table: %v", err)
	}
	if err := db.Exec(`INSERT INTO users (username, password_hash, class_of, thread_id, messages_today)
		VALUES ('legacy', 'hash', 2025, 'thread_old', 4)`).Error; err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	if _, err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	m := db.Migrator()
	for _, col := range []string{"last_message_date", "thread_created_at", "tutorial_completed", "display_name", "current_grade", "bio", "ip_address"} {
		if !m.HasColumn(&domain.User{}, col) {
			t.Fatalf("expected column %q after migration", col)
		}
	}

	u, err := GetUserByUsername(ctx, db, "legacy")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u.MessagesToday != 4 || u.ThreadID == nil || *u.ThreadID != "thread_old" || u.ThreadCreatedAt != nil {
		t.Fatalf("legacy row not preserved: %+v", u)
	}
}
