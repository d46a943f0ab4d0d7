// Package handlers provides HTTP handler implementations for the public API.
//
// Every failure leaves through fail, so a student's browser always gets the
// same envelope and a counselor reading logs can match it by request id:
//
//	HTTP/1.1 503 Service Unavailable
//	{
//	  "request_id": "9b2f6c1e-4d0a-4d55-9a51-2f7f0c3f8e21",
//	  "code": "storage_busy",
//	  "message": "Database is busy. Please try again in a moment."
//	}
//
// Only 5xx outcomes are logged here; 4xx are the caller's problem and already
// show up in the access log.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/counselor-chat/internal/domain"
	"github.com/tbourn/counselor-chat/internal/http/middleware"
	"github.com/tbourn/counselor-chat/internal/render"
	"github.com/tbourn/counselor-chat/internal/services"
)

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"9b2f6c1e-4d0a-4d55-9a51-2f7f0c3f8e21"`
	// One of the ErrCode constants
	Code string `json:"code" example:"bad_request"`
	// Shown to the student as is
	Message string `json:"message" example:"Passwords do not match"`
}

func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg)
		if uid := c.GetString("userID"); uid != "" {
			ev = ev.Str("user_id", uid)
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("cause", c.Errors.Last().Error())
		}
		ev.Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer NoRoute/NoMethod with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failService maps the errors any service call may return: lock contention,
// the assistant being down, or the session's account having been deleted.
// Anything else is a 500 with the cause kept for the log line.
func failService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrStorageBusy):
		fail(c, http.StatusServiceUnavailable, ErrCodeStorageBusy, "Database is busy. Please try again in a moment.")
	case errors.Is(err, services.ErrAssistantUnavailable):
		fail(c, http.StatusBadGateway, ErrCodeAnswerFailed, render.ErrorReply)
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "account no longer exists")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// currentUser returns the session user. RequireSession guards every route
// that calls it, so a miss is a wiring bug and reported as 401.
func currentUser(c *gin.Context) (*domain.User, bool) {
	u, found := middleware.CurrentUser(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
	}
	return u, found
}

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
