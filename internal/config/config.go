// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, sessions, quotas, the
// assistant integration, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "counselor-chat")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SessionConfig defines the signed session cookie.
type SessionConfig struct {
	Secret       string        // SESSION_SECRET (HS256 key)
	TTL          time.Duration // SESSION_TTL
	CookieName   string        // COOKIE_NAME
	CookieSecure bool          // COOKIE_SECURE
}

// AssistantConfig defines the hosted assistant integration.
type AssistantConfig struct {
	APIKey       string        // OPENAI_API_KEY
	AssistantID  string        // OPENAI_ASSISTANT_ID
	BaseURL      string        // OPENAI_BASE_URL (optional override)
	PollInterval time.Duration // ASSISTANT_POLL_INTERVAL
	MaxWait      time.Duration // ASSISTANT_MAX_WAIT
}

// QuotaConfig defines the per-day message budget.
type QuotaConfig struct {
	DailyLimit        int    // DAILY_MESSAGE_LIMIT
	LowThreshold      int    // LOW_QUOTA_THRESHOLD
	UnlimitedUsername string // UNLIMITED_USERNAME (empty disables the exemption)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBPath          string        // SQLite path
	DBRetryAttempts int           // attempts for locked/busy writes
	DBRetryBackoff  time.Duration // first retry delay, grows per attempt
	DocumentsDir    string        // school PDFs served for download

	// Chat
	Timezone       string        // IANA zone used for the quota calendar day
	ThreadTTL      time.Duration // lifetime of a conversation thread
	MaxPromptRunes int           // cap on question length

	Session   SessionConfig
	Assistant AssistantConfig
	Quota     QuotaConfig

	// Rate limiting (edge token bucket)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 150*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBPath:          getenv("DB_PATH", "users.db"),
		DBRetryAttempts: getint("DB_RETRY_ATTEMPTS", 3),
		DBRetryBackoff:  getdur("DB_RETRY_BACKOFF", 500*time.Millisecond),
		DocumentsDir:    getenv("DOCUMENTS_DIR", "school_documents"),

		// Chat
		Timezone:       getenv("TIMEZONE", "Local"),
		ThreadTTL:      getdur("THREAD_TTL", 7*24*time.Hour),
		MaxPromptRunes: getint("MAX_PROMPT_RUNES", 4000),

		Session: SessionConfig{
			Secret:       getenv("SESSION_SECRET", ""),
			TTL:          getdur("SESSION_TTL", 30*24*time.Hour),
			CookieName:   getenv("COOKIE_NAME", "counselor_session"),
			CookieSecure: getbool("COOKIE_SECURE", false),
		},
		Assistant: AssistantConfig{
			APIKey:       getenv("OPENAI_API_KEY", ""),
			AssistantID:  getenv("OPENAI_ASSISTANT_ID", ""),
			BaseURL:      getenv("OPENAI_BASE_URL", ""),
			PollInterval: getdur("ASSISTANT_POLL_INTERVAL", 500*time.Millisecond),
			MaxWait:      getdur("ASSISTANT_MAX_WAIT", 2*time.Minute),
		},
		Quota: QuotaConfig{
			DailyLimit:        getint("DAILY_MESSAGE_LIMIT", 20),
			LowThreshold:      getint("LOW_QUOTA_THRESHOLD", 3),
			UnlimitedUsername: getenv("UNLIMITED_USERNAME", ""),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "counselor-chat"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.DBRetryAttempts < 1 {
		return cfg, errors.New("DB_RETRY_ATTEMPTS must be >= 1")
	}
	if cfg.DBRetryBackoff <= 0 {
		return cfg, errors.New("DB_RETRY_BACKOFF must be > 0")
	}
	if strings.TrimSpace(cfg.DocumentsDir) == "" {
		return cfg, errors.New("DOCUMENTS_DIR must not be empty")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return cfg, errors.New("TIMEZONE must be a valid IANA zone name")
	}
	if cfg.ThreadTTL <= 0 {
		return cfg, errors.New("THREAD_TTL must be > 0")
	}
	if cfg.MaxPromptRunes < 1 {
		return cfg, errors.New("MAX_PROMPT_RUNES must be >= 1")
	}
	if len(cfg.Session.Secret) < 16 {
		return cfg, errors.New("SESSION_SECRET must be at least 16 bytes")
	}
	if cfg.Session.TTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	if strings.TrimSpace(cfg.Session.CookieName) == "" {
		return cfg, errors.New("COOKIE_NAME must not be empty")
	}
	if cfg.Assistant.PollInterval <= 0 || cfg.Assistant.MaxWait <= 0 {
		return cfg, errors.New("ASSISTANT_POLL_INTERVAL and ASSISTANT_MAX_WAIT must be > 0")
	}
	if cfg.Quota.DailyLimit < 1 {
		return cfg, errors.New("DAILY_MESSAGE_LIMIT must be >= 1")
	}
	if cfg.Quota.LowThreshold < 0 {
		return cfg, errors.New("LOW_QUOTA_THRESHOLD must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// Location resolves Timezone. Load has already validated it, so failures fall
// back to the process-local zone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
