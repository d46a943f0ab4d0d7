package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/counselor-chat/internal/assistant"
	"github.com/tbourn/counselor-chat/internal/domain"
	"github.com/tbourn/counselor-chat/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := repo.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mkUser(t *testing.T, db *gorm.DB, name string, mutate ...func(*domain.User)) *domain.User {
	t.Helper()
	u := &domain.User{Username: name, PasswordHash: "x", ClassOf: 2027}
	for _, m := range mutate {
		m(u)
	}
	if err := repo.CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func reload(t *testing.T, db *gorm.DB, id int64) *domain.User {
	t.Helper()
	u, err := repo.GetUserByID(context.Background(), db, id)
	if err != nil {
		t.Fatalf("reload user %d: %v", id, err)
	}
	return u
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

var fastRetry = repo.RetryPolicy{Attempts: 3, Backoff: time.Millisecond}

// fakeThreads records thread lifecycle calls.
type fakeThreads struct {
	next      int
	created   []string
	deleted   []string
	createErr error
	deleteErr error
}

func (f *fakeThreads) CreateThread(context.Context) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.next++
	id := fmt.Sprintf("thread_%d", f.next)
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeThreads) DeleteThread(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

// fakeAssistant scripts the gateway.
type fakeAssistant struct {
	reply   assistant.Reply
	err     error
	asked   []string
	turns   []assistant.Turn
	listErr error
	files   map[string]string
}

func (f *fakeAssistant) Ask(_ context.Context, threadID, content string) (assistant.Reply, error) {
	f.asked = append(f.asked, threadID+"|"+content)
	return f.reply, f.err
}

func (f *fakeAssistant) ListMessages(context.Context, string) ([]assistant.Turn, error) {
	return f.turns, f.listErr
}

func (f *fakeAssistant) FileName(_ context.Context, id string) (string, error) {
	if n, ok := f.files[id]; ok {
		return n, nil
	}
	return "", fmt.Errorf("unknown file %s", id)
}

type fakeDocs map[string]string

func (d fakeDocs) Resolve(remote string) string {
	if local, ok := d[remote]; ok {
		return local
	}
	return remote
}
