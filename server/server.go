package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/kick-herald/telemetry"
)

// correlationMiddleware tags every request with a correlation ID, honoring
// one supplied by the caller.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get("X-Correlation-ID")
		if corrID == "" {
			corrID = uuid.NewString()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corrID)
		w.Header().Set("X-Correlation-ID", corrID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogMiddleware emits one structured line per request.
func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		telemetry.LoggerWithCorr(r.Context()).Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// NewMux builds the HTTP routing table. The admin surface (test notifications)
// sits behind adminAuth and the rate limiter; read-only endpoints are open.
func NewMux(ctx context.Context, h *Handlers) http.Handler {
	authCfg := loadAuthConfig()
	rl := newIPRateLimiter(ctx, loadRateLimiterConfig())

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", h.HealthzHandler)
	mux.HandleFunc("/readyz", h.ReadyzHandler)
	mux.HandleFunc("/status", h.StatusHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/auth/kick/start", h.OAuthStartHandler)
	mux.HandleFunc("/auth/kick/callback", h.OAuthCallbackHandler)

	mux.Handle("/notify/test", adminAuth(
		rateLimitMiddleware(http.HandlerFunc(h.NotifyTestHandler), rl),
		authCfg,
	))

	return correlationMiddleware(requestLogMiddleware(mux))
}

// Start runs the HTTP server and shuts it down cleanly when ctx is cancelled.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", slog.String("error", err.Error()))
			return err
		}
		slog.Info("http server stopped")
		return nil
	}
}
