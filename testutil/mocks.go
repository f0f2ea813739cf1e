package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockKickServer creates a test server that mocks Kick API responses
type MockKickServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockKickServer creates a new mock Kick API server
func NewMockKickServer(t *testing.T) *MockKickServer {
	t.Helper()
	m := &MockKickServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockChannelResponse adds a handler for the public channels endpoint
func (m *MockKickServer) MockChannelResponse(slug string, live bool, startTime, title, category string) {
	m.Handlers["/public/v1/channels"] = func(w http.ResponseWriter, r *http.Request) {
		var stream map[string]interface{}
		if live {
			stream = map[string]interface{}{
				"is_live":    true,
				"start_time": startTime,
			}
		} else {
			stream = map[string]interface{}{"is_live": false}
		}
		response := map[string]interface{}{
			"data": []map[string]interface{}{
				{
					"slug":         slug,
					"stream":       stream,
					"stream_title": title,
					"category":     map[string]interface{}{"name": category},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockOAuthTokenResponse adds a handler for the OAuth token endpoint
func (m *MockKickServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/oauth/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockWebhookResponse adds a handler that records webhook deliveries
func (m *MockKickServer) MockWebhookResponse(status int) *[]string {
	bodies := &[]string{}
	m.Handlers["/webhook"] = func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		*bodies = append(*bodies, string(buf))
		w.WriteHeader(status)
	}
	return bodies
}
