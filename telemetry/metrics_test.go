package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()

	if PollCycles == nil {
		t.Error("PollCycles counter not initialized")
	}
	if PollErrors == nil {
		t.Error("PollErrors counter not initialized")
	}
	if NotificationsSent == nil {
		t.Error("NotificationsSent counter not initialized")
	}
	if NotificationsFailed == nil {
		t.Error("NotificationsFailed counter not initialized")
	}
	if TokenRefreshes == nil {
		t.Error("TokenRefreshes counter not initialized")
	}
	if PollDuration == nil {
		t.Error("PollDuration histogram not initialized")
	}
}

func TestSetLive(t *testing.T) {
	Init()

	// Should not panic in either state
	SetLive(true)
	SetLive(false)
}

func TestMarkPoll(t *testing.T) {
	Init()

	MarkPoll(time.Now())

	metric := &dto.Metric{}
	if err := LastPollGauge.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Gauge == nil || *metric.Gauge.Value == 0 {
		t.Error("MarkPoll did not stamp the gauge")
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	Init()

	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(testHistogram)
	defer prometheus.Unregister(testHistogram)

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil {
		t.Fatal("Histogram metric is nil")
	}
	if *metric.Histogram.SampleCount == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("expected empty correlation on fresh context, got %q", got)
	}

	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("expected abc-123, got %q", got)
	}
}

func TestLoggerWithCorr(t *testing.T) {
	// Both paths should return a usable logger
	if LoggerWithCorr(context.Background()) == nil {
		t.Error("expected default logger without correlation")
	}
	ctx := WithCorrelation(context.Background(), "abc-123")
	if LoggerWithCorr(ctx) == nil {
		t.Error("expected logger with correlation attribute")
	}
}
