package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthzHandler reports process liveness and database reachability.
func (h *Handlers) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp["status"] = "degraded"
			resp["db"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp["db"] = "ok"
		}
	} else {
		resp["db"] = "disabled"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// ReadyzHandler reports whether the service can actually do its job:
// database reachable and notifier credentials configured.
func (h *Handlers) ReadyzHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ready"}
	code := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp["status"] = "not ready"
			resp["db"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	if h.cfg != nil {
		if err := h.cfg.ValidateNotifyReady(); err != nil {
			resp["status"] = "not ready"
			resp["config"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
