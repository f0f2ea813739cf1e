// Package poller drives the notify pipeline: every interval it fetches one
// channel snapshot, feeds it through the session tracker, and delivers any
// resulting announcement to the webhook. It is the sole failure-isolation
// boundary: nothing that happens inside a cycle stops the loop.
package poller

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	dbpkg "github.com/onnwee/kick-herald/db"
	"github.com/onnwee/kick-herald/kickapi"
	"github.com/onnwee/kick-herald/notify"
	"github.com/onnwee/kick-herald/session"
	"github.com/onnwee/kick-herald/telemetry"
)

// kv keys mirrored each cycle for the HTTP status surface
const (
	kvLastPoll  = "job_live_poll_last"
	kvLiveState = "live_state"
	kvLastError = "live_last_error"
)

// Fetcher yields one channel snapshot per call.
type Fetcher interface {
	GetChannel(ctx context.Context, slug string) (kickapi.ChannelSnapshot, error)
}

// Sink delivers a formatted message.
type Sink interface {
	Send(ctx context.Context, msg notify.Message) (int, error)
}

// Status is a read-only snapshot of the loop's health, refreshed every cycle.
type Status struct {
	LastPoll  time.Time     `json:"last_poll"`
	LastError string        `json:"last_error,omitempty"`
	Live      bool          `json:"live"`
	Announced bool          `json:"announced"`
	Interval  time.Duration `json:"-"`
}

// Poller owns the session state and runs the poll loop. All fields are set
// once before Run; only the status snapshot is touched concurrently.
type Poller struct {
	Channel     string
	MentionRole string
	Interval    time.Duration
	Fetcher     Fetcher
	Sink        Sink
	Tracker     *session.Tracker
	DB          *sql.DB // optional kv mirror for /status

	mu     sync.RWMutex
	status Status
}

// Run polls until ctx is cancelled. The first cycle fires immediately so a
// restart doesn't wait a full interval to notice a live channel.
func (p *Poller) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = 120 * time.Second
	}
	slog.Info("poller starting", slog.String("channel", p.Channel), slog.Duration("interval", interval))
	p.pollOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce runs one fetch → track → deliver cycle. Every error is recorded
// and swallowed; the next cycle always runs.
func (p *Poller) pollOnce(ctx context.Context) {
	telemetry.PollCycles.Inc()
	ctx, span := telemetry.StartSpan(ctx, "poller", "poll_cycle",
		attribute.String("channel", p.Channel))
	defer span.End()
	start := time.Now()
	defer func() {
		if telemetry.PollDuration != nil {
			telemetry.PollDuration.Observe(time.Since(start).Seconds())
		}
	}()

	snap, err := p.Fetcher.GetChannel(ctx, p.Channel)
	if err != nil {
		telemetry.RecordError(span, err)
		p.recordCycle(ctx, nil, err)
		return
	}
	telemetry.SetLive(snap.IsLive)
	span.SetAttributes(attribute.Bool("live", snap.IsLive))

	ann := p.Tracker.Observe(snap)
	if ann == nil {
		telemetry.SetSpanSuccess(span)
		p.recordCycle(ctx, &snap, nil)
		return
	}

	msg := notify.BuildMessage(p.Channel, p.MentionRole, ann.Title, ann.Category)
	if _, err := p.Sink.Send(ctx, msg); err != nil {
		telemetry.NotificationsFailed.Inc()
		telemetry.RecordError(span, err)
		// Un-announce so the next cycle retries delivery.
		p.Tracker.Retract()
		p.recordCycle(ctx, &snap, err)
		return
	}
	telemetry.NotificationsSent.Inc()
	telemetry.SetSpanSuccess(span)
	slog.Info("live notification sent",
		slog.String("channel", p.Channel),
		slog.String("session_key", ann.SessionKey),
		slog.String("title", ann.Title))
	p.recordCycle(ctx, &snap, nil)
}

// recordCycle updates the in-memory status snapshot and mirrors it into kv.
func (p *Poller) recordCycle(ctx context.Context, snap *kickapi.ChannelSnapshot, err error) {
	now := time.Now().UTC()
	telemetry.MarkPoll(now)

	errMsg := ""
	if err != nil {
		telemetry.PollErrors.Inc()
		errMsg = err.Error()
		slog.Warn("poll cycle failed", slog.String("kind", errorKind(err)), slog.Any("err", err))
	}

	p.mu.Lock()
	p.status.LastPoll = now
	p.status.LastError = errMsg
	if snap != nil {
		p.status.Live = snap.IsLive
	}
	p.status.Announced = p.Tracker.Announced()
	p.status.Interval = p.Interval
	p.mu.Unlock()

	if p.DB == nil {
		return
	}
	// Best-effort mirror; the loop never fails on bookkeeping.
	if err := dbpkg.SetKV(ctx, p.DB, kvLastPoll, now.Format(time.RFC3339)); err != nil {
		slog.Debug("kv mirror failed", slog.Any("err", err))
	}
	if snap != nil {
		live := "false"
		if snap.IsLive {
			live = "true"
		}
		_ = dbpkg.SetKV(ctx, p.DB, kvLiveState, live)
	}
	_ = dbpkg.SetKV(ctx, p.DB, kvLastError, errMsg)
}

// errorKind classifies a cycle error per the declared taxonomy; anything else
// is logged distinctly as unexpected.
func errorKind(err error) string {
	var ae *kickapi.AuthError
	var ue *kickapi.UpstreamError
	var de *notify.DeliveryError
	switch {
	case errors.As(err, &ae):
		return "auth"
	case errors.As(err, &ue):
		return "upstream"
	case errors.As(err, &de):
		return "delivery"
	default:
		return "unexpected"
	}
}

// Status returns a copy of the last cycle's snapshot.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// TestNotify pushes a test message through the sink, bypassing the tracker.
// Wired to the manual trigger endpoint.
func (p *Poller) TestNotify(ctx context.Context) error {
	msg := notify.Message{Content: "🔔 Test notification from kick-herald (channel: " + p.Channel + ")"}
	_, err := p.Sink.Send(ctx, msg)
	return err
}
