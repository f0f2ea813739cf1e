package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSendSuccess(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, r.ContentLength)
		r.Body.Read(b)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	wh := &Webhook{URL: server.URL, Sleep: func(time.Duration) { t.Error("unexpected sleep") }}
	status, err := wh.Send(context.Background(), BuildMessage("somechannel", "", "Title", "Chess"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if status != http.StatusNoContent {
		t.Errorf("Send() status = %d, want 204", status)
	}
	if !strings.Contains(gotBody, "https://kick.com/somechannel") {
		t.Errorf("payload missing channel URL: %s", gotBody)
	}
	if !strings.Contains(gotBody, `"embeds"`) {
		t.Errorf("payload missing embeds: %s", gotBody)
	}
}

func TestSendRateLimitedThenOK(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"message":"You are being rate limited.","retry_after":5,"global":false}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var slept time.Duration
	wh := &Webhook{URL: server.URL, Sleep: func(d time.Duration) { slept += d }}
	status, err := wh.Send(context.Background(), Message{Content: "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("Send() status = %d, want 200", status)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if slept != 5*time.Second {
		t.Errorf("slept = %v, want 5s from retry_after", slept)
	}
}

func TestSendRateLimitedTwiceFails(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"retry_after":1}`))
	}))
	defer server.Close()

	wh := &Webhook{URL: server.URL, Sleep: func(time.Duration) {}}
	_, err := wh.Send(context.Background(), Message{Content: "hi"})
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("Send() error = %v, want *DeliveryError", err)
	}
	if de.Status != http.StatusTooManyRequests {
		t.Errorf("DeliveryError.Status = %d, want 429", de.Status)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want exactly 2 (no further retries)", attempts)
	}
}

func TestSendNonRateLimitErrorDoesNotRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Cannot send an empty message"}`))
	}))
	defer server.Close()

	wh := &Webhook{URL: server.URL, Sleep: func(time.Duration) { t.Error("unexpected sleep") }}
	_, err := wh.Send(context.Background(), Message{})
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("Send() error = %v, want *DeliveryError", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for non-429 failure", attempts)
	}
}

func TestRetryAfterParsing(t *testing.T) {
	cases := []struct {
		name, body string
		want       time.Duration
	}{
		{"discord json", `{"retry_after":2.5}`, 2500 * time.Millisecond},
		{"missing field", `{"message":"slow down"}`, retryAfterDefault},
		{"not json", "slow down", retryAfterDefault},
		{"cloudflare block", "error code: 1015", retryAfterEdgeBlock},
		{"html block page", "<html><body>Access denied | cloudflare</body></html>", retryAfterEdgeBlock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryAfter(tc.body); got != tc.want {
				t.Errorf("retryAfter(%q) = %v, want %v", tc.body, got, tc.want)
			}
		})
	}
}

func TestBuildMessageMention(t *testing.T) {
	msg := BuildMessage("somechannel", "123456", "", "")
	if !strings.HasPrefix(msg.Content, "<@&123456> ") {
		t.Errorf("content = %q, want role mention prefix", msg.Content)
	}
	if len(msg.Embeds) != 0 {
		t.Errorf("embeds = %v, want none without title/category", msg.Embeds)
	}
}
