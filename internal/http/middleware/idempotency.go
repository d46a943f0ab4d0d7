// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for POST /chat. A question is
// costly (it consumes daily quota and an assistant run), so clients retrying
// after a network failure send the same key and get the stored reply back.
//
// The middleware validates and stashes the key and, when a live record exists
// for (user, key), stashes the stored reply. The handler writes it back with
// Replay instead of running the turn again.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // *StoredReply found for the key
	ctxKeyRateBypass = "rate.bypass" // bool: skip rate limiting
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// StoredReply is a response recorded under an Idempotency-Key.
type StoredReply struct {
	Status int
	Body   string
}

// Replay returns the stored reply the validator found for this request's key.
func Replay(c *gin.Context) (StoredReply, bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return StoredReply{}, false
	}
	r, _ := v.(*StoredReply)
	if r == nil {
		return StoredReply{}, false
	}
	return *r, true
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the live record for (userID, key), or nil.
// Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, userID, key string, now time.Time) (*StoredReply, error)

// IdempotencyValidator validates the Idempotency-Key header of unsafe
// requests. Safe methods and requests without the header pass untouched.
// Malformed keys are rejected with 400. On a lookup hit the stored reply is
// attached to the context and the request is exempted from rate limiting.
//
// It must run after RequireSession so the user id is known.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if uid := userIDFromCtx(c); lookup != nil && uid != "" {
			if rec, err := lookup(c.Request.Context(), uid, key, time.Now().UTC()); err == nil && rec != nil {
				c.Set(ctxKeyIdemReplay, rec)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// userIDFromCtx returns the user id set by RequireSession, or "".
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
