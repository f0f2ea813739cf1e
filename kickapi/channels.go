// Package kickapi contains minimal helpers to interact with Kick's public API
// and identity service: a cached token source and a channel-status client.
package kickapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const channelsURL = "https://api.kick.com/public/v1/channels"

// Requests against Kick get a bounded timeout so a hung upstream delays the
// next poll cycle by at most this much.
var defaultHTTPClient = &http.Client{Timeout: 20 * time.Second}

// ChannelSnapshot is one fetched, normalized view of channel status.
// SessionKey is stable for the duration of one broadcast and empty whenever
// the channel is offline.
type ChannelSnapshot struct {
	IsLive     bool
	SessionKey string
	Title      string
	Category   string
}

// Client fetches channel status from Kick's public API.
type Client struct {
	TokenSource *TokenSource
	HTTPClient  *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return defaultHTTPClient
}

// GetChannel fetches the channel identified by slug and normalizes the payload.
func (c *Client) GetChannel(ctx context.Context, slug string) (ChannelSnapshot, error) {
	if slug == "" {
		return ChannelSnapshot{}, &UpstreamError{Body: "channel slug empty"}
	}
	tok, err := c.TokenSource.Get(ctx)
	if err != nil {
		return ChannelSnapshot{}, err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, channelsURL, nil)
	q := req.URL.Query()
	q.Set("slug", slug)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return ChannelSnapshot{}, &UpstreamError{Body: err.Error()}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		b, _ := io.ReadAll(resp.Body)
		return ChannelSnapshot{}, &UpstreamError{Status: resp.StatusCode, Body: excerpt(b)}
	}
	var body struct {
		Data []struct {
			Slug        string `json:"slug"`
			StreamTitle string `json:"stream_title"`
			Category    struct {
				Name string `json:"name"`
			} `json:"category"`
			Stream struct {
				IsLive    bool   `json:"is_live"`
				StartTime string `json:"start_time"`
			} `json:"stream"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ChannelSnapshot{}, &UpstreamError{Status: resp.StatusCode, Body: "decode channel payload: " + err.Error()}
	}
	if len(body.Data) == 0 {
		return ChannelSnapshot{}, &UpstreamError{Status: resp.StatusCode, Body: "empty data payload for channel " + slug}
	}

	ch := body.Data[0]
	snap := ChannelSnapshot{
		IsLive:   ch.Stream.IsLive,
		Title:    ch.StreamTitle,
		Category: ch.Category.Name,
	}
	// A stale start_time on an offline channel means "has ever streamed",
	// not "is streaming now"; only live channels get a session key.
	if snap.IsLive {
		snap.SessionKey = sessionKey(ch.Stream.StartTime, ch.StreamTitle, ch.Category.Name)
	}
	return snap, nil
}

// sessionKey derives a per-broadcast identifier: the stream start time when
// the API supplies a real one, otherwise a title+category composite.
func sessionKey(startTime, title, category string) string {
	if t, err := time.Parse(time.RFC3339, startTime); err == nil && !t.IsZero() {
		return startTime
	}
	if title == "" && category == "" {
		return ""
	}
	return title + "|" + category
}
