// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles          prometheus.Counter
	PollErrors          prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	TokenRefreshes      prometheus.Counter

	// Histograms (seconds)
	PollDuration prometheus.Observer

	// Gauges
	LiveGauge     prometheus.Gauge // 1=channel live, 0=offline
	LastPollGauge prometheus.Gauge // unix timestamp of last completed cycle
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_poll_cycles_total", Help: "Number of poll cycles run"})
		PollErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_poll_errors_total", Help: "Number of poll cycles that ended in an error"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_notifications_sent_total", Help: "Number of live notifications delivered"})
		NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_notifications_failed_total", Help: "Number of live notifications that failed delivery"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_token_refreshes_total", Help: "Number of background OAuth token refreshes"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "herald_poll_duration_seconds", Help: "Poll cycle duration seconds", Buckets: prometheus.DefBuckets})
		LiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "herald_channel_live", Help: "Last observed live flag (1=live)"})
		LastPollGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "herald_last_poll_timestamp_seconds", Help: "Unix time of the last completed poll cycle"})
	})
}

// SetLive records the last observed live flag.
func SetLive(live bool) {
	if LiveGauge == nil {
		return
	}
	if live {
		LiveGauge.Set(1)
	} else {
		LiveGauge.Set(0)
	}
}

// MarkPoll stamps the last-poll gauge.
func MarkPoll(t time.Time) {
	if LastPollGauge != nil {
		LastPollGauge.Set(float64(t.Unix()))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
