// Chat HTTP handlers.
//
// This file declares the service contracts the HTTP layer depends on, the
// Handlers wiring, and the chat endpoints:
//   - POST /chat          (ask a question, Idempotency-Key aware)
//   - GET  /chat/history  (rendered turns of the bound thread)
//   - POST /chat/export   (PDF of client-selected turns)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/counselor-chat/internal/domain"
	"github.com/tbourn/counselor-chat/internal/http/middleware"
	"github.com/tbourn/counselor-chat/internal/render"
	"github.com/tbourn/counselor-chat/internal/services"
)

//
// Service contracts (context-aware)
//

// AuthService manages accounts and session tokens.
type AuthService interface {
	SignUp(ctx context.Context, in services.SignUpInput) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*domain.User, error)
	// IssueToken signs a session token and returns its expiry.
	IssueToken(userID int64) (string, time.Time, error)
}

// ChatService answers questions and serves the conversation.
type ChatService interface {
	Ask(ctx context.Context, userID int64, question string) (*services.ChatReply, error)
	History(ctx context.Context, userID int64) ([]services.HistoryEntry, error)
	Export(ctx context.Context, userID int64, turns []render.Turn, at time.Time, w io.Writer) error
}

// QuotaService reports the daily allowance without consuming it.
type QuotaService interface {
	Status(ctx context.Context, userID int64, username string) (services.QuotaStatus, error)
}

// ProfileService reads and edits the student profile.
type ProfileService interface {
	Get(ctx context.Context, userID int64) (*services.Profile, error)
	Update(ctx context.Context, userID int64, in services.ProfileUpdate) (*services.Profile, error)
	CompleteTutorial(ctx context.Context, userID int64) error
}

// DocumentStore resolves a requested file name to a servable path.
type DocumentStore interface {
	Path(name string) (string, error)
}

// ReplayStore persists POST /chat replies under their Idempotency-Key.
// Lookups happen in middleware.IdempotencyValidator. A nil ReplayStore
// disables recording.
type ReplayStore interface {
	Save(ctx context.Context, userID int64, key, body string, status int) error
}

//
// Handler wiring
//

// SessionCookie describes the cookie carrying the session token.
type SessionCookie struct {
	Name   string
	Path   string
	Secure bool
}

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	auth    AuthService
	chat    ChatService
	quota   QuotaService
	profile ProfileService
	docs    DocumentStore
	replays ReplayStore
	cookie  SessionCookie
	now     func() time.Time
}

// New constructs Handlers bound to the given services.
func New(auth AuthService, chat ChatService, quota QuotaService, profile ProfileService,
	docs DocumentStore, replays ReplayStore, cookie SessionCookie) *Handlers {
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	return &Handlers{
		auth:    auth,
		chat:    chat,
		quota:   quota,
		profile: profile,
		docs:    docs,
		replays: replays,
		cookie:  cookie,
		now:     time.Now,
	}
}

//
// DTOs
//

// PostChatRequest is the JSON payload for a question.
type PostChatRequest struct {
	// Message is the student's question. It must be non-empty.
	Message string `json:"message" binding:"required" example:"What AP classes should I take junior year?"`
}

// HistoryResponse wraps the rendered turns of the current thread.
type HistoryResponse struct {
	Messages []services.HistoryEntry `json:"messages"`
}

// ExportRequest lists the turns the student selected for export, in order.
type ExportRequest struct {
	Messages []render.Turn `json:"messages"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent converts CRLF/CR to LF, collapses blank-line runs and trims.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// PostChat godoc
// @ID          postChat
// @Summary     Ask the counselor assistant a question
// @Description Consumes one unit of the daily quota and returns the rendered reply.
// @Description Once the quota is used up the reply carries a fixed notice and limit_reached=true.
// @Description Supports idempotency via the Idempotency-Key header (same key → same reply, no extra quota).
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.PostChatRequest  true  "Question"
//
// @Success     200  {object}  services.ChatReply
// @Header      200  {string}  Idempotency-Replayed  "true when the stored reply was replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     502  {object}  handlers.ErrorResponse  "Assistant failed"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage busy"
// @Router      /chat [post]
func (h *Handlers) PostChat(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	ctx := c.Request.Context()

	var req PostChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}
	question := sanitizeContent(req.Message)
	if question == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}

	// Idempotency (replay path).
	if rec, found := middleware.Replay(c); found {
		c.Header("Idempotency-Replayed", "true")
		c.Data(rec.Status, "application/json; charset=utf-8", []byte(rec.Body))
		return
	}
	idemKey, _ := middleware.GetIdempotencyKey(c)

	reply, err := h.chat.Ask(ctx, u.ID, question)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyPrompt):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long")
		default:
			failService(c, err)
		}
		return
	}

	// Idempotency (store path), best effort.
	if idemKey != "" && h.replays != nil {
		if body, err := json.Marshal(reply); err == nil {
			if err := h.replays.Save(ctx, u.ID, idemKey, string(body), http.StatusOK); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("store idempotent reply")
			}
		}
	}

	ok(c, http.StatusOK, reply)
}

// GetHistory godoc
// @ID          getChatHistory
// @Summary     Conversation history
// @Description Returns the turns of the current thread, oldest first, rendered for display.
// @Description Users without a thread get an empty list.
// @Tags        Chat
// @Produce     json
// @Success     200  {object}  handlers.HistoryResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     502  {object}  handlers.ErrorResponse  "Assistant failed"
// @Router      /chat/history [get]
func (h *Handlers) GetHistory(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	items, err := h.chat.History(c.Request.Context(), u.ID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, HistoryResponse{Messages: items})
}

// ExportChat godoc
// @ID          exportChat
// @Summary     Download selected turns as PDF
// @Description Renders the supplied (role, content) turns, in order, into a PDF attachment.
// @Tags        Chat
// @Accept      json
// @Produce     application/pdf
// @Param       body  body  handlers.ExportRequest  true  "Selected turns"
// @Success     200  {file}    file
// @Failure     400  {object}  handlers.ErrorResponse  "No messages selected"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     500  {object}  handlers.ErrorResponse  "Error generating PDF"
// @Router      /chat/export [post]
func (h *Handlers) ExportChat(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	at := h.now()
	var buf bytes.Buffer
	if err := h.chat.Export(c.Request.Context(), u.ID, req.Messages, at, &buf); err != nil {
		switch {
		case errors.Is(err, services.ErrNoMessages):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "No messages selected")
		case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrStorageBusy):
			failService(c, err)
		default:
			_ = c.Error(err)
			fail(c, http.StatusInternalServerError, ErrCodeExportFailed, "Error generating PDF")
		}
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+render.ExportFileName(at)+`"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
