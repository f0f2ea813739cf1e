package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// NotifyTestHandler fires a test message through the webhook sink. Admin-only.
func (h *Handlers) NotifyTestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.poller == nil {
		http.Error(w, "notifier not running: check KICK_CHANNEL and DISCORD_WEBHOOK_URL", http.StatusServiceUnavailable)
		return
	}

	if err := h.poller.TestNotify(r.Context()); err != nil {
		slog.Error("test notification failed", slog.String("error", err.Error()))
		http.Error(w, "delivery failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
}
