package server

import (
	"encoding/json"
	"net/http"
	"time"

	dbpkg "github.com/onnwee/kick-herald/db"
)

// statusResponse is the document served at /status.
type statusResponse struct {
	Channel      string `json:"channel,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
	PollerActive bool   `json:"poller_active"`

	Live      bool   `json:"live"`
	Announced bool   `json:"announced"`
	LastPoll  string `json:"last_poll,omitempty"`
	LastError string `json:"last_error,omitempty"`

	// Persisted mirror, survives restarts even when the loop isn't running.
	StoredLastPoll  string `json:"stored_last_poll,omitempty"`
	StoredLiveState string `json:"stored_live_state,omitempty"`
	StoredLastError string `json:"stored_last_error,omitempty"`
}

// StatusHandler reports the poll loop's current view of the channel plus the
// persisted kv mirror.
func (h *Handlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{}

	if h.cfg != nil {
		resp.Channel = h.cfg.KickChannel
		resp.PollInterval = h.cfg.PollInterval.String()
	}

	if h.poller != nil {
		resp.PollerActive = true
		st := h.poller.Status()
		resp.Live = st.Live
		resp.Announced = st.Announced
		resp.LastError = st.LastError
		if !st.LastPoll.IsZero() {
			resp.LastPoll = st.LastPoll.UTC().Format(time.RFC3339)
		}
	}

	if h.db != nil {
		ctx := r.Context()
		resp.StoredLastPoll = dbpkg.GetKV(ctx, h.db, "job_live_poll_last")
		resp.StoredLiveState = dbpkg.GetKV(ctx, h.db, "live_state")
		resp.StoredLastError = dbpkg.GetKV(ctx, h.db, "live_last_error")
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
