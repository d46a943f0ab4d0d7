// Package services – ChatService
//
// This file implements the question/answer turn. A turn passes the daily
// quota, resolves the user's thread, prepends the profile context to the
// question, waits for the assistant and renders the reply with source links
// and a low-quota notice. It also serves the rendered thread history and
// PDF exports.
//
// Observability: public methods are OpenTelemetry-instrumented and assistant
// round trips feed a Prometheus histogram.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/counselor-chat/internal/assistant"
	"github.com/tbourn/counselor-chat/internal/domain"
	"github.com/tbourn/counselor-chat/internal/render"
	"github.com/tbourn/counselor-chat/internal/repo"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// Assistant is the gateway contract ChatService depends on.
type Assistant interface {
	Ask(ctx context.Context, threadID, content string) (assistant.Reply, error)
	ListMessages(ctx context.Context, threadID string) ([]assistant.Turn, error)
	FileName(ctx context.Context, fileID string) (string, error)
}

// DocumentResolver maps remote file names onto locally served documents.
type DocumentResolver interface {
	Resolve(remote string) string
}

// ChatReply is the outcome of one question.
type ChatReply struct {
	Response     string   `json:"response"`
	LimitReached bool     `json:"limit_reached"`
	Remaining    *int     `json:"remaining"`
	Sources      []string `json:"sources"`
}

// HistoryEntry is one rendered turn of the thread history.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatService coordinates quota, threads and the assistant for one question.
type ChatService struct {
	DB        *gorm.DB
	Quota     *QuotaService
	Sessions  *SessionService
	Assistant Assistant
	Documents DocumentResolver

	// DocumentsPath is the route prefix source links point at.
	DocumentsPath string
	// LowQuotaThreshold appends a notice once remaining <= threshold.
	LowQuotaThreshold int
	// MaxPromptRunes caps the question length; 0 disables the check.
	MaxPromptRunes int
	// ExportSubtitle overrides the PDF subtitle when set.
	ExportSubtitle string
}

// Ask answers question on behalf of userID.
//
// A rejected quota check is not an error: the reply carries the fixed
// limit notice with LimitReached set. Failures to obtain a thread or an answer
// return ErrAssistantUnavailable; the consumed quota unit is not refunded.
func (s *ChatService) Ask(ctx context.Context, userID int64, question string) (*ChatReply, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "Ask",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(question) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	allowed, count, err := s.Quota.CheckAndConsume(ctx, u.ID, u.Username)
	if err != nil {
		return nil, err
	}
	if !allowed {
		zero := 0
		return &ChatReply{
			Response:     render.LimitReached(s.Quota.DailyLimit),
			LimitReached: true,
			Remaining:    &zero,
			Sources:      []string{},
		}, nil
	}

	threadID, _, err := s.Sessions.ResolveThread(ctx, u.ID)
	if err != nil {
		span.SetStatus(codes.Error, "resolve thread")
		return nil, err
	}

	start := time.Now()
	reply, err := s.Assistant.Ask(ctx, threadID, AnnotateQuestion(u, question))
	if err != nil {
		assistantLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "assistant")
		zerolog.Ctx(ctx).Error().Err(err).Str("thread_id", threadID).Msg("assistant round trip failed")
		return nil, fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
	}
	assistantLatency.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	out := &ChatReply{Sources: s.sources(ctx, reply.FileIDs)}
	var b strings.Builder
	b.WriteString(render.Markdown(assistant.StripCitations(reply.Text)))
	b.WriteString(render.SourcesBlock(s.DocumentsPath, out.Sources))

	if !s.Quota.Exempt(u.Username) {
		remaining := max(0, s.Quota.DailyLimit-count)
		out.Remaining = &remaining
		if remaining <= s.LowQuotaThreshold {
			b.WriteString(render.QuotaNotice(remaining))
		}
	}
	out.Response = b.String()
	return out, nil
}

// History returns the rendered turns of the user's current thread, oldest
// first. Users without a thread get an empty history.
func (s *ChatService) History(ctx context.Context, userID int64) ([]HistoryEntry, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "History",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.HasThread() {
		return []HistoryEntry{}, nil
	}

	turns, err := s.Assistant.ListMessages(ctx, *u.ThreadID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
	}
	out := make([]HistoryEntry, 0, len(turns))
	for _, t := range turns {
		content := t.Text
		if t.Role == roleAssistant {
			content = render.Markdown(assistant.StripCitations(content))
		} else {
			content = render.UserTurn(content)
		}
		out = append(out, HistoryEntry{Role: t.Role, Content: content})
	}
	return out, nil
}

// Export writes the given turns as a PDF for userID.
func (s *ChatService) Export(ctx context.Context, userID int64, turns []render.Turn, at time.Time, w io.Writer) error {
	if len(turns) == 0 {
		return ErrNoMessages
	}
	u, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	return render.WritePDF(w, turns, render.ExportOptions{
		Username:    u.Username,
		Subtitle:    s.ExportSubtitle,
		GeneratedAt: at,
	})
}

func (s *ChatService) user(ctx context.Context, userID int64) (*domain.User, error) {
	u, err := repo.GetUserByID(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// sources resolves cited file ids to local document names, skipping ids the
// assistant cannot name.
func (s *ChatService) sources(ctx context.Context, fileIDs []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, id := range fileIDs {
		name, err := s.Assistant.FileName(ctx, id)
		if err != nil || name == "" {
			zerolog.Ctx(ctx).Warn().Err(err).Str("file_id", id).Msg("cited file not resolved")
			continue
		}
		if s.Documents != nil {
			name = s.Documents.Resolve(name)
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// AnnotateQuestion prefixes question with the user's profile so the assistant
// can tailor its answer. The display name is only included when it differs
// from the username.
func AnnotateQuestion(u *domain.User, question string) string {
	parts := []string{
		"Username: " + u.Username,
		"Graduation Year: Class of " + strconv.Itoa(u.ClassOf),
	}
	if u.DisplayName != nil && *u.DisplayName != "" && *u.DisplayName != u.Username {
		parts = append(parts, "Display Name: "+*u.DisplayName)
	}
	if u.CurrentGrade != nil {
		parts = append(parts, "Current Grade: "+strconv.Itoa(*u.CurrentGrade))
	}
	if u.Bio != nil && *u.Bio != "" {
		parts = append(parts, "Bio/Interests: "+*u.Bio)
	}
	return "[User Context: " + strings.Join(parts, ", ") + "]\n\nStudent Question: " + question
}
