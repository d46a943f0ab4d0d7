// Package assistant is the gateway to the hosted assistant API. It wraps the
// thread/message/run primitives of the OpenAI Assistants API behind a small
// surface the services depend on: thread lifecycle, asking a question and
// waiting for the reply, reading history, and resolving cited file names.
//
// Every remote call is traced with OpenTelemetry. Run completion is polled at
// a fixed interval and bounded by a maximum wait; when the caller goes away or
// the wait elapses the run is cancelled on a best-effort basis.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/counselor-chat/internal/config"
)

// Errors returned by the gateway.
var (
	// ErrRunTimeout means the run did not reach a terminal state within MaxWait.
	ErrRunTimeout = errors.New("assistant run timed out")
	// ErrRunFailed means the run ended in a non-completed terminal state.
	ErrRunFailed = errors.New("assistant run did not complete")
	// ErrNoReply means the newest thread message is not an assistant reply.
	ErrNoReply = errors.New("assistant produced no reply")
)

// HistoryLimit caps how many messages ListMessages returns.
const HistoryLimit = 100

// API is the subset of *openai.Client used by the gateway.
type API interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	DeleteThread(ctx context.Context, threadID string) (openai.ThreadDeleteResponse, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	CancelRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	GetFile(ctx context.Context, fileID string) (openai.File, error)
}

var _ API = (*openai.Client)(nil)

// Reply is the newest assistant message of a thread.
type Reply struct {
	// Text is the raw markdown reply, citation markers included.
	Text string
	// FileIDs lists cited files in first-seen order, without duplicates.
	FileIDs []string
}

// Turn is one message of a thread history.
type Turn struct {
	Role      string
	Text      string
	CreatedAt time.Time
}

// Gateway talks to one configured assistant.
type Gateway struct {
	API          API
	AssistantID  string
	PollInterval time.Duration
	MaxWait      time.Duration
}

// New builds a Gateway backed by the real OpenAI client.
func New(cfg config.AssistantConfig) *Gateway {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Gateway{
		API:          openai.NewClientWithConfig(oc),
		AssistantID:  cfg.AssistantID,
		PollInterval: cfg.PollInterval,
		MaxWait:      cfg.MaxWait,
	}
}

func tracer() trace.Tracer { return otel.Tracer("assistant/Gateway") }

// CreateThread opens a new, empty conversation thread and returns its id.
func (g *Gateway) CreateThread(ctx context.Context) (string, error) {
	ctx, span := tracer().Start(ctx, "CreateThread")
	defer span.End()

	th, err := g.API.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("create thread: %w", err)
	}
	span.SetAttributes(attribute.String("thread.id", th.ID))
	return th.ID, nil
}

// DeleteThread removes a thread remotely.
func (g *Gateway) DeleteThread(ctx context.Context, threadID string) error {
	ctx, span := tracer().Start(ctx, "DeleteThread",
		trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	if _, err := g.API.DeleteThread(ctx, threadID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

// AppendMessage adds a user message to the thread.
func (g *Gateway) AppendMessage(ctx context.Context, threadID, content string) error {
	ctx, span := tracer().Start(ctx, "AppendMessage",
		trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	_, err := g.API.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Run starts the assistant on the thread.
func (g *Gateway) Run(ctx context.Context, threadID string) (*RunHandle, error) {
	ctx, span := tracer().Start(ctx, "Run",
		trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	run, err := g.API.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: g.AssistantID})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create run: %w", err)
	}
	span.SetAttributes(attribute.String("run.id", run.ID))
	return &RunHandle{g: g, ThreadID: threadID, RunID: run.ID, Status: run.Status}, nil
}

// Ask appends content to the thread, runs the assistant to completion and
// returns its reply.
func (g *Gateway) Ask(ctx context.Context, threadID, content string) (Reply, error) {
	if err := g.AppendMessage(ctx, threadID, content); err != nil {
		return Reply{}, err
	}
	h, err := g.Run(ctx, threadID)
	if err != nil {
		return Reply{}, err
	}
	if err := h.Wait(ctx); err != nil {
		return Reply{}, err
	}
	return g.LatestMessage(ctx, threadID)
}

// LatestMessage returns the newest message of the thread, which must be an
// assistant reply.
func (g *Gateway) LatestMessage(ctx context.Context, threadID string) (Reply, error) {
	ctx, span := tracer().Start(ctx, "LatestMessage",
		trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	limit, order := 1, "desc"
	list, err := g.API.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		span.RecordError(err)
		return Reply{}, fmt.Errorf("list messages: %w", err)
	}
	if len(list.Messages) == 0 || list.Messages[0].Role != openai.ChatMessageRoleAssistant {
		return Reply{}, ErrNoReply
	}
	msg := list.Messages[0]
	return Reply{Text: messageText(msg), FileIDs: citedFileIDs(msg)}, nil
}

// ListMessages returns up to HistoryLimit messages, oldest first.
func (g *Gateway) ListMessages(ctx context.Context, threadID string) ([]Turn, error) {
	ctx, span := tracer().Start(ctx, "ListMessages",
		trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	limit, order := HistoryLimit, "asc"
	list, err := g.API.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]Turn, 0, len(list.Messages))
	for _, m := range list.Messages {
		out = append(out, Turn{
			Role:      m.Role,
			Text:      messageText(m),
			CreatedAt: time.Unix(int64(m.CreatedAt), 0).UTC(),
		})
	}
	span.SetAttributes(attribute.Int("messages.count", len(out)))
	return out, nil
}

// FileName returns the remote file name of an uploaded document.
func (g *Gateway) FileName(ctx context.Context, fileID string) (string, error) {
	ctx, span := tracer().Start(ctx, "FileName",
		trace.WithAttributes(attribute.String("file.id", fileID)))
	defer span.End()

	f, err := g.API.GetFile(ctx, fileID)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("get file %s: %w", fileID, err)
	}
	return f.FileName, nil
}

// messageText joins the text parts of a message.
func messageText(m openai.Message) string {
	var parts []string
	for _, c := range m.Content {
		if c.Text != nil {
			parts = append(parts, c.Text.Value)
		}
	}
	return strings.Join(parts, "\n\n")
}

// citedFileIDs collects file ids from text annotations. Annotations decode as
// generic JSON objects carrying either file_citation.file_id, file_path.file_id
// or a top-level file_id.
func citedFileIDs(m openai.Message) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(v any) {
		if id, ok := v.(string); ok && id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, c := range m.Content {
		if c.Text == nil {
			continue
		}
		for _, a := range c.Text.Annotations {
			obj, ok := a.(map[string]any)
			if !ok {
				continue
			}
			for _, k := range []string{"file_citation", "file_path"} {
				if inner, ok := obj[k].(map[string]any); ok {
					add(inner["file_id"])
				}
			}
			add(obj["file_id"])
		}
	}
	return ids
}

// RunHandle tracks one assistant run.
type RunHandle struct {
	g        *Gateway
	ThreadID string
	RunID    string
	Status   openai.RunStatus
}

// Wait polls the run until it reaches a terminal state. It returns nil only
// when the run completed. The wait is bounded by the gateway's MaxWait and by
// ctx; in both cases the run is cancelled before returning.
func (h *RunHandle) Wait(ctx context.Context) error {
	ctx, span := tracer().Start(ctx, "RunHandle.Wait",
		trace.WithAttributes(
			attribute.String("thread.id", h.ThreadID),
			attribute.String("run.id", h.RunID),
		))
	defer span.End()

	waitCtx := ctx
	if h.g.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, h.g.MaxWait)
		defer cancel()
	}
	interval := h.g.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for pending(h.Status) {
		select {
		case <-waitCtx.Done():
			h.cancel(ctx)
			span.SetAttributes(attribute.String("run.status", string(h.Status)))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrRunTimeout
		case <-ticker.C:
		}
		run, err := h.g.API.RetrieveRun(waitCtx, h.ThreadID, h.RunID)
		if err != nil {
			if waitCtx.Err() != nil {
				continue
			}
			span.RecordError(err)
			return fmt.Errorf("retrieve run: %w", err)
		}
		h.Status = run.Status
	}

	span.SetAttributes(attribute.String("run.status", string(h.Status)))
	if h.Status != openai.RunStatusCompleted {
		return fmt.Errorf("%w: status %s", ErrRunFailed, h.Status)
	}
	return nil
}

func (h *RunHandle) cancel(ctx context.Context) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := h.g.API.CancelRun(cctx, h.ThreadID, h.RunID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("run_id", h.RunID).Msg("cancel run failed")
	}
}

func pending(s openai.RunStatus) bool {
	return s == openai.RunStatusQueued || s == openai.RunStatusInProgress || s == ""
}
