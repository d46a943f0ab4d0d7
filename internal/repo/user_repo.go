// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside a transaction opened by the service layer. They follow the
// "thin repository" approach: no business logic, only CRUD persistence.
//
// Error semantics:
//   - Missing users yield gorm.ErrRecordNotFound (exported as ErrNotFound).
//   - A second account with the same username yields ErrDuplicate.
//   - Other DB errors (including SQLite "database is locked") are propagated
//     unchanged; see WithRetry for the contention policy.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/counselor-chat/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateUser inserts u and fills its ID. CreatedAt defaults to now (UTC).
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUserByID fetches a user by primary key.
func GetUserByID(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername fetches a user by exact username.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUsage stores the daily counter together with the date it refers to.
func UpdateUsage(ctx context.Context, db *gorm.DB, id int64, count int, date string) error {
	return updateUser(ctx, db, id, map[string]any{
		"messages_today":    count,
		"last_message_date": date,
	})
}

// UpdateThread binds a conversation thread and its creation time.
func UpdateThread(ctx context.Context, db *gorm.DB, id int64, threadID string, createdAt time.Time) error {
	return updateUser(ctx, db, id, map[string]any{
		"thread_id":         threadID,
		"thread_created_at": createdAt,
	})
}

// ThreadCreatedAtText returns thread_created_at exactly as stored. The driver
// reads zoneless text as UTC; callers that know the writer's zone re-parse it.
func ThreadCreatedAtText(ctx context.Context, db *gorm.DB, id int64) (string, error) {
	var raw sql.NullString
	err := db.WithContext(ctx).
		Raw("SELECT CAST(thread_created_at AS TEXT) FROM users WHERE id = ?", id).
		Row().Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return raw.String, err
}

// UpdateProfile overwrites the optional profile fields. Nil pointers are
// written as NULL.
func UpdateProfile(ctx context.Context, db *gorm.DB, id int64, displayName *string, grade *int, bio *string) error {
	return updateUser(ctx, db, id, map[string]any{
		"display_name":  displayName,
		"current_grade": grade,
		"bio":           bio,
	})
}

// MarkTutorialComplete sets the onboarding flag.
func MarkTutorialComplete(ctx context.Context, db *gorm.DB, id int64) error {
	return updateUser(ctx, db, id, map[string]any{"tutorial_completed": true})
}

func updateUser(ctx context.Context, db *gorm.DB, id int64, cols map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation recognizes UNIQUE failures; glebarez/sqlite often
// returns them as plain-text errors.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
