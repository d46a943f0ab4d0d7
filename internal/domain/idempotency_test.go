// internal/domain/idempotency_test.go
package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestIdempotency_AutoMigrate_Indexes_AndInsert(t *testing.T) {
	db := newTestDB(t)

	m := db.Migrator()
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if !m.HasTable(&Idempotency{}) {
		t.Fatalf("expected table %q to exist", Idempotency{}.TableName())
	}
	if !m.HasIndex(&Idempotency{}, "ux_user_key") {
		t.Fatalf("expected composite index ux_user_key to exist")
	}

	now := time.Now().UTC()

	// NOT NULL constraints, checked by behavior.
	names := []string{"id", "user_id", "key", "body", "status", "created_at", "expires_at"}
	for _, col := range names {
		vals := []any{"x-" + col, int64(1), "k-" + col, `{"response":"hi"}`, 200, now, now.Add(time.Hour)}
		for i, name := range names {
			if name == col {
				vals[i] = nil
			}
		}
		err := db.Exec(`INSERT INTO idempotency ("id","user_id","key","body","status","created_at","expires_at")
		                VALUES (?,?,?,?,?,?,?)`, vals...).Error
		if err == nil {
			t.Fatalf("expected NOT NULL violation when inserting NULL into %q", col)
		}
	}

	rec := &Idempotency{
		ID:        "id-1",
		UserID:    7,
		Key:       "k1",
		Body:      `{"response":"hello"}`,
		Status:    200,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.UserID != 7 || got.Key != "k1" || got.Body != rec.Body || got.Status != 200 {
		t.Fatalf("unexpected row: %+v", got)
	}

	// (user_id, key) is unique; the same key for another user is fine.
	dup := &Idempotency{ID: "id-2", UserID: 7, Key: "k1", Body: "{}", Status: 200, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected UNIQUE constraint violation on (user_id, key)")
	}
	other := &Idempotency{ID: "id-3", UserID: 8, Key: "k1", Body: "{}", Status: 200, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("same key for a different user: %v", err)
	}
}

func TestUser_AutoMigrate_UniqueUsername(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	u := &User{Username: "alice", PasswordHash: "h", ClassOf: 2026}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == 0 {
		t.Fatalf("expected autoincrement id")
	}
	if err := db.Create(&User{Username: "alice", PasswordHash: "h2", ClassOf: 2027}).Error; err == nil {
		t.Fatalf("expected unique violation on username")
	}

	var got User
	if err := db.First(&got, u.ID).Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.MessagesToday != 0 || got.TutorialCompleted || got.ThreadID != nil || got.CurrentGrade != nil {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}
