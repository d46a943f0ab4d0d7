// Command counselor runs the counselor chat backend.
//
//	counselor serve            # HTTP API (default)
//	counselor migrate --db x   # apply schema migrations and exit
//
// Configuration comes from the environment; a .env file is loaded first when
// present.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/counselor-chat/internal/assistant"
	"github.com/tbourn/counselor-chat/internal/config"
	httpapi "github.com/tbourn/counselor-chat/internal/http"
	"github.com/tbourn/counselor-chat/internal/observability"
	"github.com/tbourn/counselor-chat/internal/repo"
	"github.com/tbourn/counselor-chat/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// purgeInterval is how often expired idempotency records are deleted.
const purgeInterval = time.Hour

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "counselor",
		Short:         "High-school counselor chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), out)
		},
	}

	var dbPath string
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := sysutil.FirstNonEmpty(dbPath, os.Getenv("DB_PATH"), "users.db")
			return runMigrate(cmd.Context(), out, path)
		},
	}
	migrate.Flags().StringVar(&dbPath, "db", "", "SQLite path (defaults to $DB_PATH, then users.db)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(out, version)
		},
	}

	root.AddCommand(serve, migrate, versionCmd)
	// Bare invocation serves.
	root.RunE = serve.RunE
	return root
}

func runMigrate(ctx context.Context, out io.Writer, path string) error {
	sysutil.InitLogger(os.Stderr, true, "counselor-migrate", version)

	db, err := repo.OpenSQLite(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer closeDB(db)

	applied, err := repo.Migrate(ctx, db)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "schema is up to date")
		return nil
	}
	for _, m := range applied {
		fmt.Fprintf(out, "applied %d %s\n", m.Version, m.Name)
	}
	return nil
}

func runServe(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	sysutil.InitLogger(out, cfg.LogPretty, cfg.OTEL.ServiceName, version)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	defer closeDB(db)
	if _, err := repo.Migrate(ctx, db); err != nil {
		return err
	}

	if cfg.Assistant.APIKey == "" || cfg.Assistant.AssistantID == "" {
		log.Warn().Msg("OPENAI_API_KEY or OPENAI_ASSISTANT_ID is empty; questions will fail")
	}
	if _, err := os.Stat(cfg.DocumentsDir); err != nil {
		log.Warn().Err(err).Str("dir", cfg.DocumentsDir).Msg("documents directory unavailable")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, assistant.New(cfg.Assistant), cfg)

	go purgeIdempotency(ctx, db, purgeInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("api", cfg.APIBasePath).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}

// purgeIdempotency deletes expired replay records every interval until ctx
// is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency records")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("purged expired idempotency records")
			}
		}
	}
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
