package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/counselor-chat/internal/domain"
)

const week = 7 * 24 * time.Hour

func newSessions(t *testing.T, c *clock, th *fakeThreads) *SessionService {
	t.Helper()
	return &SessionService{DB: newSvcDB(t), Threads: th, TTL: week, Retry: fastRetry, Now: c.Now}
}

func TestResolveThread_NoThreadCreatesAndBinds(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	th := &fakeThreads{}
	s := newSessions(t, &clock{t: t0}, th)
	u := mkUser(t, s.DB, "maria")

	id, ev, err := s.ResolveThread(context.Background(), u.ID)
	if err != nil || id != "thread_1" || ev != ThreadCreated {
		t.Fatalf("ResolveThread = (%q, %q, %v)", id, ev, err)
	}
	got := reload(t, s.DB, u.ID)
	if got.ThreadID == nil || *got.ThreadID != "thread_1" || got.ThreadCreatedAt == nil || !got.ThreadCreatedAt.Equal(t0) {
		t.Fatalf("binding not persisted: %+v", got)
	}
}

func TestResolveThread_ReuseJustBeforeExpiry_RenewJustAfter(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: t0}
	th := &fakeThreads{}
	s := newSessions(t, c, th)
	u := mkUser(t, s.DB, "lee")
	ctx := context.Background()

	first, _, err := s.ResolveThread(ctx, u.ID)
	if err != nil {
		t.Fatalf("initial ResolveThread: %v", err)
	}

	c.Set(t0.Add(6*24*time.Hour + 23*time.Hour))
	id, ev, err := s.ResolveThread(ctx, u.ID)
	if err != nil || id != first || ev != ThreadReused {
		t.Fatalf("at T+6d23h = (%q, %q, %v); want reuse of %q", id, ev, err, first)
	}
	if len(th.created) != 1 || len(th.deleted) != 0 {
		t.Fatalf("unexpected remote calls: created=%v deleted=%v", th.created, th.deleted)
	}

	c.Set(t0.Add(week + time.Minute))
	id, ev, err = s.ResolveThread(ctx, u.ID)
	if err != nil || id == first || ev != ThreadExpired {
		t.Fatalf("at T+7d1m = (%q, %q, %v); want a new thread", id, ev, err)
	}
	if len(th.deleted) != 1 || th.deleted[0] != first {
		t.Fatalf("expected deletion of %q, got %v", first, th.deleted)
	}
	got := reload(t, s.DB, u.ID)
	if *got.ThreadID != id || !got.ThreadCreatedAt.Equal(t0.Add(week+time.Minute)) {
		t.Fatalf("renewal not persisted: %+v", got)
	}
}

func TestResolveThread_DeleteFailureIsSwallowed(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	th := &fakeThreads{deleteErr: errors.New("remote down")}
	s := newSessions(t, &clock{t: t0.Add(30 * 24 * time.Hour)}, th)
	u := mkUser(t, s.DB, "kai", func(u *domain.User) {
		u.ThreadID = strPtr("thread_old")
		u.ThreadCreatedAt = &t0
	})

	id, ev, err := s.ResolveThread(context.Background(), u.ID)
	if err != nil || ev != ThreadExpired || id != "thread_1" {
		t.Fatalf("ResolveThread = (%q, %q, %v)", id, ev, err)
	}
}

func TestResolveThread_LegacyRowIsBackfilled(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	th := &fakeThreads{}
	s := newSessions(t, &clock{t: now}, th)
	u := mkUser(t, s.DB, "legacy", func(u *domain.User) {
		u.ThreadID = strPtr("thread_legacy")
	})

	id, ev, err := s.ResolveThread(context.Background(), u.ID)
	if err != nil || id != "thread_legacy" || ev != ThreadBackfilled {
		t.Fatalf("ResolveThread = (%q, %q, %v)", id, ev, err)
	}
	if len(th.created) != 0 {
		t.Fatalf("legacy row must keep its thread, created %v", th.created)
	}
	got := reload(t, s.DB, u.ID)
	if got.ThreadCreatedAt == nil || !got.ThreadCreatedAt.Equal(now) {
		t.Fatalf("timestamp not back-filled: %+v", got.ThreadCreatedAt)
	}
}

func TestResolveThread_CreateFailure(t *testing.T) {
	th := &fakeThreads{createErr: errors.New("quota exceeded upstream")}
	s := newSessions(t, &clock{t: time.Now()}, th)
	u := mkUser(t, s.DB, "nia")

	if _, _, err := s.ResolveThread(context.Background(), u.ID); !errors.Is(err, ErrAssistantUnavailable) {
		t.Fatalf("expected ErrAssistantUnavailable, got %v", err)
	}
	if got := reload(t, s.DB, u.ID); got.ThreadID != nil {
		t.Fatalf("nothing should be bound after a failed create: %+v", got)
	}
}

func TestResolveThread_UnknownUser(t *testing.T) {
	s := newSessions(t, &clock{t: time.Now()}, &fakeThreads{})
	if _, _, err := s.ResolveThread(context.Background(), 404); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestResolveThread_ZonelessLegacyStampReadInLocation(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	// 10:00 host-local is 15:00 UTC.
	const stamp = "2026-01-05T10:00:00.123456"
	threadAge := func(now time.Time, loc *time.Location) (string, ThreadEvent) {
		t.Helper()
		th := &fakeThreads{}
		s := newSessions(t, &clock{t: now}, th)
		s.Location = loc
		u := mkUser(t, s.DB, "py-era", func(u *domain.User) { u.ThreadID = strPtr("thread_py") })
		if err := s.DB.Exec("UPDATE users SET thread_created_at = ? WHERE id = ?", stamp, u.ID).Error; err != nil {
			t.Fatalf("seed stamp: %v", err)
		}
		id, ev, err := s.ResolveThread(context.Background(), u.ID)
		if err != nil {
			t.Fatalf("ResolveThread: %v", err)
		}
		return id, ev
	}

	// 6d23h30m after the true instant: still live when read in EST.
	justBefore := time.Date(2026, 1, 12, 14, 30, 0, 0, time.UTC)
	if id, ev := threadAge(justBefore, est); id != "thread_py" || ev != ThreadReused {
		t.Fatalf("EST read at T+6d23h30m = (%q, %q); want reuse", id, ev)
	}
	// Read as UTC the same stamp looks five hours older and expires.
	if _, ev := threadAge(justBefore, nil); ev != ThreadExpired {
		t.Fatalf("UTC read at T+6d23h30m = %q; want expired", ev)
	}
	// 7d30m after the true instant: expired either way.
	if _, ev := threadAge(justBefore.Add(time.Hour), est); ev != ThreadExpired {
		t.Fatalf("EST read at T+7d30m = %q; want expired", ev)
	}
}

func TestParseZoneless(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	cases := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"2026-01-05T10:00:00.123456", time.Date(2026, 1, 5, 10, 0, 0, 123456000, est), true},
		{" 2026-01-05 10:00:00 ", time.Date(2026, 1, 5, 10, 0, 0, 0, est), true},
		{"2026-01-05T10:00", time.Date(2026, 1, 5, 10, 0, 0, 0, est), true},
		{"2026-01-05 15:00:00+00:00", time.Time{}, false},
		{"2026-01-05T15:00:00Z", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := parseZoneless(tc.raw, est)
		if ok != tc.ok || !got.Equal(tc.want) {
			t.Errorf("parseZoneless(%q) = (%v, %v); want (%v, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}
