// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements session authentication. The session token is read
// from the session cookie or, for API clients, from an "Authorization: Bearer"
// header. A valid token resolves to a user row which is stored in the Gin
// context together with the user id ("userID", a decimal string) that the
// logging, idempotency and rate-limit middleware key on.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/counselor-chat/internal/domain"
)

const (
	ctxKeyUserID = "userID"
	ctxKeyUser   = "user"
)

// Authenticator resolves a session token to its user.
type Authenticator func(ctx context.Context, token string) (*domain.User, error)

var authFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "counselor_auth_failures_total",
		Help: "Rejected requests on authenticated routes.",
	},
	[]string{"reason"},
)

func init() {
	prometheus.MustRegister(authFailures)
}

// RequireSession rejects requests without a valid session with 401.
//
// On success the user is available through CurrentUser and the request
// context carries a logger enriched with the user id, so services logging via
// zerolog.Ctx get it for free.
func RequireSession(cookieName string, authenticate Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c, cookieName)
		if token == "" {
			authFailures.WithLabelValues("missing").Inc()
			abortUnauthorized(c)
			return
		}
		u, err := authenticate(c.Request.Context(), token)
		if err != nil || u == nil {
			authFailures.WithLabelValues("invalid").Inc()
			abortUnauthorized(c)
			return
		}

		uid := strconv.FormatInt(u.ID, 10)
		c.Set(ctxKeyUserID, uid)
		c.Set(ctxKeyUser, u)

		lg := LoggerFrom(c).With().Str("user_id", uid).Logger()
		c.Set("logger", &lg)
		c.Request = c.Request.WithContext(lg.WithContext(c.Request.Context()))

		c.Next()
	}
}

// CurrentUser returns the user attached by RequireSession.
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(ctxKeyUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*domain.User)
	return u, ok && u != nil
}

// sessionToken prefers the cookie over the Authorization header.
func sessionToken(c *gin.Context, cookieName string) string {
	if v, err := c.Cookie(cookieName); err == nil && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    "authentication required",
	})
}
