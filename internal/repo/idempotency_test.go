package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/counselor-chat/internal/domain"
)

func newMemDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid schema leakage across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestGetIdempotency_BlankKey_ReturnsNotFound(t *testing.T) {
	db := newMemDB(t, &domain.Idempotency{})
	rec, err := GetIdempotency(context.Background(), db, 1, "   ", time.Now().UTC())
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for blank key, got (%v, %v)", rec, err)
	}
}

func TestGetIdempotency_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newMemDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID:        "expired",
		UserID:    1,
		Key:       "k1",
		Body:      "{}",
		Status:    200,
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	rec, err := GetIdempotency(context.Background(), db, 1, "k1", now)
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for expired, got (%v, %v)", rec, err)
	}
	rec2, err2 := GetIdempotency(context.Background(), db, 1, "missing", now)
	if rec2 != nil || err2 != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for missing, got (%v, %v)", rec2, err2)
	}
}

func TestCreateIdempotency_SuccessDuplicateAndReplaceExpired(t *testing.T) {
	db := newMemDB(t, &domain.Idempotency{})
	ctx := context.Background()
	ttl := 90 * time.Minute
	start := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, 9, "k9", `{"response":"a"}`, 200, ttl)
	if err != nil {
		t.Fatalf("CreateIdempotency error: %v", err)
	}
	if rec.ID == "" || rec.UserID != 9 || rec.Key != "k9" || rec.Status != 200 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !(rec.ExpiresAt.After(start) && rec.ExpiresAt.Before(start.Add(2*time.Hour))) {
		t.Fatalf("unexpected ExpiresAt: %v", rec.ExpiresAt)
	}

	got, err := GetIdempotency(ctx, db, 9, "k9", time.Now().UTC())
	if err != nil || got.Body != `{"response":"a"}` {
		t.Fatalf("GetIdempotency = (%+v, %v)", got, err)
	}

	if _, err := CreateIdempotency(ctx, db, 9, "k9", "{}", 200, ttl); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Force expiry, then the key can be reused.
	if err := db.Model(&domain.Idempotency{}).Where("id = ?", rec.ID).
		Update("expires_at", start.Add(-time.Minute)).Error; err != nil {
		t.Fatalf("expire: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, 9, "k9", `{"response":"b"}`, 200, ttl); err != nil {
		t.Fatalf("reuse after expiry: %v", err)
	}
}

func TestCreateIdempotency_Error_NoTable(t *testing.T) {
	db := newMemDB(t)
	_, err := CreateIdempotency(context.Background(), db, 1, "kX", "{}", 200, time.Minute)
	if err == nil {
		t.Fatalf("expected error when table is missing")
	}
	if err == ErrDuplicate {
		t.Fatalf("expected non-duplicate error, got ErrDuplicate")
	}
}

func TestPurgeExpiredIdempotency(t *testing.T) {
	db := newMemDB(t, &domain.Idempotency{})
	now := time.Now().UTC()
	seed := []domain.Idempotency{
		{ID: "a", UserID: 1, Key: "a", Body: "{}", Status: 200, ExpiresAt: now.Add(-time.Minute)},
		{ID: "b", UserID: 1, Key: "b", Body: "{}", Status: 200, ExpiresAt: now.Add(-time.Hour)},
		{ID: "c", UserID: 1, Key: "c", Body: "{}", Status: 200, ExpiresAt: now.Add(time.Hour)},
	}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	n, err := PurgeExpiredIdempotency(context.Background(), db, now)
	if err != nil || n != 2 {
		t.Fatalf("PurgeExpiredIdempotency = (%d, %v); want (2, nil)", n, err)
	}
}
