package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/counselor-chat/internal/domain"
	"github.com/tbourn/counselor-chat/internal/http/middleware"
	"github.com/tbourn/counselor-chat/internal/render"
	"github.com/tbourn/counselor-chat/internal/repo"
	"github.com/tbourn/counselor-chat/internal/services"
)

// ---------- stubs ----------

type stubAuth struct {
	signUp func(context.Context, services.SignUpInput) (*domain.User, error)
	login  func(context.Context, string, string) (*domain.User, error)
}

func (s stubAuth) SignUp(ctx context.Context, in services.SignUpInput) (*domain.User, error) {
	return s.signUp(ctx, in)
}

func (s stubAuth) Login(ctx context.Context, u, p string) (*domain.User, error) {
	return s.login(ctx, u, p)
}

func (stubAuth) IssueToken(userID int64) (string, time.Time, error) {
	return "tok-" + strconv.FormatInt(userID, 10), time.Now().Add(time.Hour), nil
}

type stubChat struct {
	mu      sync.Mutex
	asks    int
	ask     func(context.Context, int64, string) (*services.ChatReply, error)
	history func(context.Context, int64) ([]services.HistoryEntry, error)
	export  func(context.Context, int64, []render.Turn, time.Time, io.Writer) error
}

func (s *stubChat) Ask(ctx context.Context, id int64, q string) (*services.ChatReply, error) {
	s.mu.Lock()
	s.asks++
	s.mu.Unlock()
	return s.ask(ctx, id, q)
}

func (s *stubChat) History(ctx context.Context, id int64) ([]services.HistoryEntry, error) {
	return s.history(ctx, id)
}

func (s *stubChat) Export(ctx context.Context, id int64, turns []render.Turn, at time.Time, w io.Writer) error {
	return s.export(ctx, id, turns, at, w)
}

type stubQuota struct {
	status func(context.Context, int64, string) (services.QuotaStatus, error)
}

func (s stubQuota) Status(ctx context.Context, id int64, username string) (services.QuotaStatus, error) {
	return s.status(ctx, id, username)
}

type stubProfile struct {
	get      func(context.Context, int64) (*services.Profile, error)
	update   func(context.Context, int64, services.ProfileUpdate) (*services.Profile, error)
	tutorial func(context.Context, int64) error
}

func (s stubProfile) Get(ctx context.Context, id int64) (*services.Profile, error) {
	return s.get(ctx, id)
}

func (s stubProfile) Update(ctx context.Context, id int64, in services.ProfileUpdate) (*services.Profile, error) {
	return s.update(ctx, id, in)
}

func (s stubProfile) CompleteTutorial(ctx context.Context, id int64) error {
	return s.tutorial(ctx, id)
}

// memReplays is an in-memory ReplayStore; lookup plugs into the validator.
type memReplays struct {
	mu      sync.Mutex
	recs    map[string]*domain.Idempotency
	lookups int
}

func newMemReplays() *memReplays { return &memReplays{recs: map[string]*domain.Idempotency{}} }

func (m *memReplays) lookup(_ context.Context, userID, key string, _ time.Time) (*middleware.StoredReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	rec, found := m.recs[key]
	if !found || strconv.FormatInt(rec.UserID, 10) != userID {
		return nil, repo.ErrNotFound
	}
	return &middleware.StoredReply{Status: rec.Status, Body: rec.Body}, nil
}

func (m *memReplays) Save(_ context.Context, userID int64, key, body string, status int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[key] = &domain.Idempotency{UserID: userID, Key: key, Body: body, Status: status}
	return nil
}

// ---------- plumbing ----------

var testCookie = SessionCookie{Name: "counselor_session"}

func testUser() *domain.User {
	return &domain.User{ID: 7, Username: "jordan", ClassOf: 2027}
}

// withUser mimics RequireSession for handler tests.
func withUser(u *domain.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		if u != nil {
			c.Set("userID", "7")
			c.Set("user", u)
		}
		c.Next()
	}
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body %q: %v", w.Body.String(), err)
	}
	return er
}

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }
