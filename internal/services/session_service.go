// Package services – SessionService
//
// This file binds each user to one external conversation thread. A thread
// lives for a fixed TTL after creation; afterwards the next question starts a
// fresh thread and the old one is deleted remotely on a best-effort basis.
// Rows written before thread timestamps existed are healed by stamping the
// current time onto the existing thread.
//
// The state machine per user:
//
//	no thread        -> create, bind (id, now)                 [created]
//	thread, no stamp -> keep id, stamp now                      [backfilled]
//	thread, live     -> keep                                    [reused]
//	thread, expired  -> delete old (errors ignored), create new [expired]
//
// Each transition is persisted before the caller sends anything on the thread.
//
// The earlier deployment stamped threads with zoneless host-local text. When
// Location is set, such stamps are read in that zone instead of as UTC.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/counselor-chat/internal/repo"
)

// ThreadEvent names the transition taken by ResolveThread.
type ThreadEvent string

const (
	ThreadCreated    ThreadEvent = "created"
	ThreadReused     ThreadEvent = "reused"
	ThreadExpired    ThreadEvent = "expired"
	ThreadBackfilled ThreadEvent = "backfilled"
)

// ThreadAPI creates and deletes remote conversation threads.
type ThreadAPI interface {
	CreateThread(ctx context.Context) (string, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// SessionService resolves the live conversation thread of a user.
type SessionService struct {
	DB      *gorm.DB
	Threads ThreadAPI

	// TTL is how long a thread stays live after creation.
	TTL time.Duration
	// Retry bounds retries on lock contention.
	Retry repo.RetryPolicy
	// Now is the clock; nil means time.Now.
	Now func() time.Time
	// Location is the zone zoneless legacy stamps were written in. Nil or UTC
	// takes stored values as they are.
	Location *time.Location

	locks keyLock
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ResolveThread returns the thread to use for the user's next question.
func (s *SessionService) ResolveThread(ctx context.Context, userID int64) (string, ThreadEvent, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "ResolveThread",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	unlock := s.locks.Lock(userID)
	defer unlock()

	u, err := repo.GetUserByID(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", "", ErrUserNotFound
	}
	if err != nil {
		return "", "", err
	}

	if u.ThreadCreatedAt != nil {
		created, err := s.createdAt(ctx, userID, *u.ThreadCreatedAt)
		if err != nil {
			return "", "", err
		}
		u.ThreadCreatedAt = &created
	}

	now := s.now().UTC()
	var (
		threadID string
		ev       ThreadEvent
	)
	switch {
	case !u.HasThread():
		ev = ThreadCreated
	case u.ThreadCreatedAt == nil:
		ev, threadID = ThreadBackfilled, *u.ThreadID
	case now.Sub(*u.ThreadCreatedAt) > s.TTL:
		ev = ThreadExpired
		if err := s.Threads.DeleteThread(ctx, *u.ThreadID); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("thread_id", *u.ThreadID).Msg("delete expired thread failed")
		}
	default:
		ev, threadID = ThreadReused, *u.ThreadID
	}

	if ev == ThreadCreated || ev == ThreadExpired {
		threadID, err = s.Threads.CreateThread(ctx)
		if err != nil {
			span.RecordError(err)
			return "", "", fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
		}
	}
	if ev != ThreadReused {
		err := repo.WithRetry(ctx, s.Retry, func() error {
			return repo.UpdateThread(ctx, s.DB, userID, threadID, now)
		})
		if err != nil {
			span.RecordError(err)
			return "", "", err
		}
	}

	threadEvents.WithLabelValues(string(ev)).Inc()
	span.SetAttributes(attribute.String("thread.id", threadID), attribute.String("thread.event", string(ev)))
	zerolog.Ctx(ctx).Debug().Str("thread_id", threadID).Str("event", string(ev)).Msg("thread resolved")
	return threadID, ev, nil
}

// zonelessLayouts cover the text the earlier deployment wrote for thread
// stamps (ISO with "T") plus the space-separated SQLite form.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// createdAt re-reads a thread stamp in s.Location when it was stored without
// a zone. Stamps carrying an offset, including everything this service
// writes, keep the decoded value.
func (s *SessionService) createdAt(ctx context.Context, userID int64, decoded time.Time) (time.Time, error) {
	if s.Location == nil || s.Location == time.UTC {
		return decoded, nil
	}
	raw, err := repo.ThreadCreatedAtText(ctx, s.DB, userID)
	if err != nil {
		return time.Time{}, err
	}
	if t, ok := parseZoneless(raw, s.Location); ok {
		return t, nil
	}
	return decoded, nil
}

func parseZoneless(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
