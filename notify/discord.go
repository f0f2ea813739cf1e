// Package notify delivers formatted messages to a Discord webhook, absorbing
// Discord's rate limiting with a single bounded retry.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// retryAfterDefault applies when a 429 body carries no usable retry_after.
	retryAfterDefault = 30 * time.Second
	// retryAfterEdgeBlock applies when the 429 didn't come from Discord's
	// application layer but from an edge/CDN block; those last much longer.
	retryAfterEdgeBlock = 300 * time.Second
)

// DeliveryError means the webhook rejected the message after the single retry.
type DeliveryError struct {
	Status int
	Body   string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook delivery failed: status %d: %s", e.Status, e.Body)
}

// Embed is one structured block in a Discord message.
type Embed struct {
	Title       string `json:"title,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Message is the webhook payload: plain content plus optional embeds.
type Message struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// BuildMessage formats a live announcement for a channel. mentionRole, title
// and category are optional.
func BuildMessage(channel, mentionRole, title, category string) Message {
	channelURL := "https://kick.com/" + channel
	content := "🔴 **LIVE NOW!**\n" + channelURL
	if mentionRole != "" {
		content = fmt.Sprintf("<@&%s> %s", mentionRole, content)
	}
	msg := Message{Content: content}
	if title != "" || category != "" {
		msg.Embeds = []Embed{{
			Title:       title,
			URL:         channelURL,
			Description: category,
		}}
	}
	return msg
}

// Webhook posts messages to a single Discord webhook URL.
type Webhook struct {
	URL        string
	HTTPClient *http.Client

	// Sleep is swappable so tests don't wait out real rate-limit windows.
	Sleep func(time.Duration)
}

func (w *Webhook) http() *http.Client {
	if w.HTTPClient != nil {
		return w.HTTPClient
	}
	return &http.Client{Timeout: 20 * time.Second}
}

func (w *Webhook) sleep(d time.Duration) {
	if w.Sleep != nil {
		w.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Send delivers one message. On a 429 it sleeps for the advertised retry-after
// and retries exactly once; any further failure is the caller's problem (the
// poll loop simply tries again next cycle).
func (w *Webhook) Send(ctx context.Context, msg Message) (int, error) {
	status, body, err := w.post(ctx, msg)
	if err != nil {
		return 0, err
	}
	if status == http.StatusTooManyRequests {
		wait := retryAfter(body)
		slog.Warn("webhook rate limited; backing off once", slog.Duration("wait", wait))
		w.sleep(wait)
		status, body, err = w.post(ctx, msg)
		if err != nil {
			return 0, err
		}
	}
	if status < 200 || status >= 300 {
		return status, &DeliveryError{Status: status, Body: body}
	}
	return status, nil
}

func (w *Webhook) post(ctx context.Context, msg Message) (int, string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.http().Do(req)
	if err != nil {
		return 0, "", &DeliveryError{Body: err.Error()}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(b), nil
}

// retryAfter extracts the back-off duration from a 429 body. Discord reports
// retry_after in seconds; a non-JSON body with Cloudflare markers means an
// edge-level block rather than an application rate limit.
func retryAfter(body string) time.Duration {
	var rl struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal([]byte(body), &rl); err == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	lower := strings.ToLower(body)
	if strings.Contains(lower, "cloudflare") || strings.Contains(lower, "error code: 1015") || strings.Contains(lower, "<html") {
		return retryAfterEdgeBlock
	}
	return retryAfterDefault
}
