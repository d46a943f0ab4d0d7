// Package services – QuotaService
//
// This file implements the daily message quota. Each user may send a fixed
// number of questions per calendar day; the counter lives next to the date it
// refers to and is reset lazily on the first access of a new day. One
// configured username is exempt and never touches storage.
//
// Every read-modify-write runs under a per-user mutex inside a transaction,
// and SQLite lock contention is retried through repo.WithRetry.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/counselor-chat/internal/repo"
)

// QuotaStatus is the read-only view of a user's daily allowance.
type QuotaStatus struct {
	// Remaining is nil for unlimited users.
	Remaining   *int `json:"remaining"`
	IsUnlimited bool `json:"is_unlimited"`
}

// QuotaService enforces the per-user daily message limit.
type QuotaService struct {
	DB *gorm.DB

	// DailyLimit is the number of questions allowed per calendar day.
	DailyLimit int
	// UnlimitedUsername is exempt from the limit when non-empty.
	UnlimitedUsername string
	// Location defines where calendar days start; nil means time.Local.
	Location *time.Location
	// Retry bounds retries on lock contention.
	Retry repo.RetryPolicy
	// Now is the clock; nil means time.Now.
	Now func() time.Time

	locks keyLock
}

// Exempt reports whether username bypasses the quota.
func (s *QuotaService) Exempt(username string) bool {
	return s.UnlimitedUsername != "" && username == s.UnlimitedUsername
}

// Today returns the current calendar date as YYYY-MM-DD.
func (s *QuotaService) Today() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc).Format(dateLayout)
}

// CheckAndConsume admits one more question for the user and returns the
// counter after the call. Rejections report the unchanged counter. Exempt
// users get (true, 0) without any storage access.
func (s *QuotaService) CheckAndConsume(ctx context.Context, userID int64, username string) (allowed bool, count int, err error) {
	ctx, span := otel.Tracer("services/QuotaService").Start(ctx, "CheckAndConsume",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	if s.Exempt(username) {
		quotaDecisions.WithLabelValues("unlimited").Inc()
		return true, 0, nil
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	today := s.Today()
	err = repo.WithRetry(ctx, s.Retry, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			n, err := s.rollover(ctx, tx, userID, today)
			if err != nil {
				return err
			}
			if n >= s.DailyLimit {
				allowed, count = false, n
				return nil
			}
			n++
			if err := repo.UpdateUsage(ctx, tx, userID, n, today); err != nil {
				return err
			}
			allowed, count = true, n
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		return false, 0, err
	}

	if allowed {
		quotaDecisions.WithLabelValues("allowed").Inc()
	} else {
		quotaDecisions.WithLabelValues("rejected").Inc()
	}
	span.SetAttributes(attribute.Bool("quota.allowed", allowed), attribute.Int("quota.count", count))
	return allowed, count, nil
}

// Status reports the remaining allowance without consuming it. A stale day is
// rolled over the same way CheckAndConsume does.
func (s *QuotaService) Status(ctx context.Context, userID int64, username string) (QuotaStatus, error) {
	if s.Exempt(username) {
		return QuotaStatus{IsUnlimited: true}, nil
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	today := s.Today()
	var used int
	err := repo.WithRetry(ctx, s.Retry, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			n, err := s.rollover(ctx, tx, userID, today)
			used = n
			return err
		})
	})
	if err != nil {
		return QuotaStatus{}, err
	}
	remaining := max(0, s.DailyLimit-used)
	return QuotaStatus{Remaining: &remaining}, nil
}

// rollover loads the counter and, when it belongs to an earlier day, persists
// a zero counter for today first.
func (s *QuotaService) rollover(ctx context.Context, tx *gorm.DB, userID int64, today string) (int, error) {
	u, err := repo.GetUserByID(ctx, tx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	if normalizeDate(u.LastMessageDate) == today {
		return u.MessagesToday, nil
	}
	if err := repo.UpdateUsage(ctx, tx, userID, 0, today); err != nil {
		return 0, err
	}
	return 0, nil
}

const dateLayout = "2006-01-02"

// storedDateLayouts are the shapes older rows hold in last_message_date.
var storedDateLayouts = []string{
	dateLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// normalizeDate reduces a stored date, datetime or free text to YYYY-MM-DD.
// Unparseable text longer than ten characters is truncated to its first ten.
func normalizeDate(raw *string) string {
	if raw == nil {
		return ""
	}
	v := strings.TrimSpace(*raw)
	for _, layout := range storedDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(dateLayout)
		}
	}
	if len(v) > 10 {
		return v[:10]
	}
	return v
}
