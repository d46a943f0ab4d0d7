// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, sessions, idempotency, and rate
// limiting.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/counselor-chat/docs"
	"github.com/tbourn/counselor-chat/internal/config"
	"github.com/tbourn/counselor-chat/internal/documents"
	"github.com/tbourn/counselor-chat/internal/http/handlers"
	"github.com/tbourn/counselor-chat/internal/http/middleware"
	"github.com/tbourn/counselor-chat/internal/repo"
	"github.com/tbourn/counselor-chat/internal/services"
)

// Assistant is everything the chat services need from the hosted assistant:
// thread lifecycle plus question answering. *assistant.Gateway satisfies it.
type Assistant interface {
	services.Assistant
	services.ThreadAPI
}

// idempotencyShim adapts the repository free functions to
// handlers.ReplayStore so handlers stay decoupled from the repo package.
type idempotencyShim struct {
	db  *gorm.DB
	ttl time.Duration
}

// Save proxies repo.CreateIdempotency with the configured TTL.
func (s idempotencyShim) Save(ctx context.Context, userID int64, key, body string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, key, body, status, s.ttl)
	return err
}

// lookup adapts repo.GetIdempotency to middleware.IdempotencyLookup.
func (s idempotencyShim) lookup(ctx context.Context, userID, key string, now time.Time) (*middleware.StoredReply, error) {
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, err
	}
	rec, err := repo.GetIdempotency(ctx, s.db, uid, key, now)
	if err != nil {
		return nil, err
	}
	return &middleware.StoredReply{Status: rec.Status, Body: rec.Body}, nil
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine, then mounts the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and baseline security headers
//  8. Gzip (PDF downloads and /metrics excluded)
//
// Session routes then add, in order: RequireSession, the idempotency
// validator (needs the user id, runs before the limiter so replays bypass
// it), the per-user rate limiter, and no-store security headers.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, asst Assistant, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (allow all without credentials if none configured)
	corsHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition", "Idempotency-Replayed"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// The session cookie only travels cross-origin to an allowlisted
		// origin with credentials enabled.
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition", "Idempotency-Replayed"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// 8) Compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/metrics",
		joinPath(apiBase, "/chat/export"),
		joinPath(apiBase, "/documents/"),
	})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/assistant
	retry := repo.RetryPolicy{Attempts: cfg.DBRetryAttempts, Backoff: cfg.DBRetryBackoff}
	store := documents.New(cfg.DocumentsDir)
	quotaSvc := &services.QuotaService{
		DB:                db,
		DailyLimit:        cfg.Quota.DailyLimit,
		UnlimitedUsername: cfg.Quota.UnlimitedUsername,
		Location:          cfg.Location(),
		Retry:             retry,
	}
	sessionSvc := &services.SessionService{DB: db, Threads: asst, TTL: cfg.ThreadTTL, Retry: retry, Location: cfg.Location()}
	chatSvc := &services.ChatService{
		DB:                db,
		Quota:             quotaSvc,
		Sessions:          sessionSvc,
		Assistant:         asst,
		Documents:         store,
		DocumentsPath:     joinPath(apiBase, "/documents"),
		LowQuotaThreshold: cfg.Quota.LowThreshold,
		MaxPromptRunes:    cfg.MaxPromptRunes,
	}
	authSvc := &services.AuthService{
		DB:     db,
		Secret: []byte(cfg.Session.Secret),
		TTL:    cfg.Session.TTL,
		Quota:  quotaSvc,
		Retry:  retry,
	}
	profileSvc := &services.ProfileService{DB: db, Retry: retry}
	replays := idempotencyShim{db: db, ttl: cfg.IdempotencyTTL}

	h := handlers.New(authSvc, chatSvc, quotaSvc, profileSvc, store, replays, handlers.SessionCookie{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.CookieSecure,
	})

	api := groupWithPrefix(r, apiBase)

	// Public account routes, limited per client IP
	authRL := middleware.NewRateLimiter("auth", cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	public := api.Group("/auth", authRL.Handler())
	{
		public.POST("/signup", h.SignUp)
		public.POST("/login", h.Login)
		public.POST("/logout", h.Logout)
	}

	// Session routes
	apiRL := middleware.NewRateLimiter("api", cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	priv := api.Group("",
		middleware.RequireSession(cfg.Session.CookieName, authSvc.Authenticate),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, replays.lookup),
		apiRL.Handler(),
		middleware.SecurityHeaders(middleware.SecurityOptions{
			NoStore:               true,
			EnablePolicy:          true,
			ContentSecurityPolicy: middleware.APIContentSecurityPolicy,
		}),
	)
	{
		priv.GET("/auth/me", h.Me)

		// Chat
		priv.POST("/chat", h.PostChat)
		priv.GET("/chat/history", h.GetHistory)
		priv.POST("/chat/export", h.ExportChat)
		priv.GET("/quota", h.GetQuota)

		// Profile
		priv.GET("/profile", h.GetProfile)
		priv.PUT("/profile", h.UpdateProfile)
		priv.POST("/tutorial/complete", h.CompleteTutorial)

		// Documents
		priv.GET("/documents/:filename", h.GetDocument)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath appends suffix to a normalized base path.
func joinPath(base, suffix string) string {
	if base == "" || base == "/" {
		return suffix
	}
	return base + suffix
}
