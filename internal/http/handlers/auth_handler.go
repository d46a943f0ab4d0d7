// Account HTTP handlers.
//
// This file exposes signup, login, logout and the current-account view:
//   - POST /auth/signup
//   - POST /auth/login
//   - POST /auth/logout
//   - GET  /auth/me
//
// Signup and login answer with the session token both as an HttpOnly cookie
// (browser clients) and in the body (API clients sending a Bearer header).
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/counselor-chat/internal/domain"
	"github.com/tbourn/counselor-chat/internal/services"
)

//
// DTOs
//

// SignUpRequest is the JSON payload for account creation.
type SignUpRequest struct {
	Username        string `json:"username" example:"jordan27"`
	Password        string `json:"password" example:"s3cret!"`
	ConfirmPassword string `json:"confirm_password" example:"s3cret!"`
	ClassOf         int    `json:"class_of" example:"2027"`
}

// LoginRequest is the JSON payload for login.
type LoginRequest struct {
	Username string `json:"username" example:"jordan27"`
	Password string `json:"password" example:"s3cret!"`
}

// SessionResponse is returned after signup and login.
type SessionResponse struct {
	User      *services.Profile `json:"user"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// MeResponse describes the signed-in account.
type MeResponse struct {
	User  *services.Profile    `json:"user"`
	Quota services.QuotaStatus `json:"quota"`
}

//
// Helpers
//

// clientIP prefers the first X-Forwarded-For hop, as the app runs behind a
// proxy, and falls back to the peer address.
func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	return c.ClientIP()
}

// startSession issues a token for u and sets the session cookie.
func (h *Handlers) startSession(c *gin.Context, u *domain.User, status int) {
	token, exp, err := h.auth.IssueToken(u.ID)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not start session")
		return
	}
	maxAge := int(time.Until(exp).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, maxAge, h.cookie.Path, "", h.cookie.Secure, true)
	ok(c, status, SessionResponse{User: services.ToProfile(u), Token: token, ExpiresAt: exp.UTC()})
}

//
// Handlers
//

// SignUp godoc
// @ID          signUp
// @Summary     Create an account
// @Description Creates a student account and signs it in. The daily quota starts fresh today.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.SignUpRequest  true  "Signup form"
// @Success     201  {object}  handlers.SessionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409  {object}  handlers.ErrorResponse  "Username already exists"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage busy"
// @Router      /auth/signup [post]
func (h *Handlers) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	u, err := h.auth.SignUp(c.Request.Context(), services.SignUpInput{
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		ClassOf:         req.ClassOf,
		IP:              clientIP(c),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUsernameTooShort):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Username must be at least 3 characters")
		case errors.Is(err, services.ErrPasswordTooShort):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Password must be at least 6 characters")
		case errors.Is(err, services.ErrPasswordTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Password must be at most 72 bytes")
		case errors.Is(err, services.ErrPasswordMismatch):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Passwords do not match")
		case errors.Is(err, services.ErrInvalidClassOf):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Graduation year is invalid")
		case errors.Is(err, services.ErrUsernameTaken):
			fail(c, http.StatusConflict, ErrCodeConflict, "Username already exists")
		default:
			failService(c, err)
		}
		return
	}
	h.startSession(c, u, http.StatusCreated)
}

// Login godoc
// @ID          login
// @Summary     Sign in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
// @Success     200  {object}  handlers.SessionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid username or password"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid username or password")
			return
		}
		failService(c, err)
		return
	}
	h.startSession(c, u, http.StatusOK)
}

// Logout godoc
// @ID          logout
// @Summary     Sign out
// @Description Clears the session cookie. Tokens held by API clients stay valid until they expire.
// @Tags        Auth
// @Success     204  {string}  string  "No Content"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, h.cookie.Path, "", h.cookie.Secure, true)
	noContent(c)
}

// Me godoc
// @ID          me
// @Summary     Current account
// @Description Returns the signed-in account with its profile and remaining quota.
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.MeResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage busy"
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	st, err := h.quota.Status(c.Request.Context(), u.ID, u.Username)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, MeResponse{User: services.ToProfile(u), Quota: st})
}
