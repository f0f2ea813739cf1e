// Command kick-herald watches a Kick channel and announces new broadcasts to a
// Discord webhook. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the live-status poll loop and the OAuth token refresher.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /metrics,
//     the OAuth bootstrap flow, and an admin test-notification trigger.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/onnwee/kick-herald/config"
	"github.com/onnwee/kick-herald/db"
	"github.com/onnwee/kick-herald/kickapi"
	"github.com/onnwee/kick-herald/notify"
	"github.com/onnwee/kick-herald/oauth"
	"github.com/onnwee/kick-herald/poller"
	"github.com/onnwee/kick-herald/server"
	"github.com/onnwee/kick-herald/session"
	"github.com/onnwee/kick-herald/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("kick-herald", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first, embedded SQL as the fallback for
	// deployments created before the schema_migrations table existed.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokenSource := &kickapi.TokenSource{
		ClientID:     cfg.KickClientID,
		ClientSecret: cfg.KickClientSecret,
		RedirectURI:  cfg.KickRedirectURI,
		Store:        &db.TokenStoreAdapter{DB: database},
	}

	// Missing notifier credentials are a startup failure, not a runtime one.
	if err := cfg.ValidateNotifyReady(); err != nil {
		slog.Error("notifier not configured", slog.Any("err", err))
		os.Exit(1)
	}

	p := &poller.Poller{
		Channel:     cfg.KickChannel,
		MentionRole: cfg.MentionRole,
		Interval:    cfg.PollInterval,
		Fetcher:     &kickapi.Client{TokenSource: tokenSource},
		Sink:        &notify.Webhook{URL: cfg.WebhookURL},
		Tracker:     &session.Tracker{ResetWindow: cfg.OfflineResetWindow},
		DB:          database,
	}
	go p.Run(ctx)

	// Background token refresher keeps the stored credential fresh so poll
	// cycles rarely block on a synchronous token exchange.
	oauth.StartRefresher(ctx, database, kickapi.Provider, 5*time.Minute, 15*time.Minute, func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		res, err := kickapi.RefreshToken(rctx, cfg.KickClientID, cfg.KickClientSecret, refreshToken, cfg.KickRedirectURI)
		if err != nil {
			return "", "", time.Time{}, "", err
		}
		return res.AccessToken, res.RefreshToken, kickapi.ComputeExpiry(res.ExpiresIn), res.Scope, nil
	})

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics/oauth/admin)
	handlers := server.NewHandlers(database, cfg, p)
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, server.NewMux(ctx, handlers)); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
