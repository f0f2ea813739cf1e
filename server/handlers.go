// Package server exposes the HTTP API handlers.
package server

import (
	"database/sql"
	"sync"
	"time"

	"github.com/onnwee/kick-herald/config"
	"github.com/onnwee/kick-herald/poller"
)

const (
	// Maximum number of in-flight OAuth states to keep in memory
	maxOAuthStates = 10000
)

// oauthState pairs the CSRF state with its PKCE verifier; both are single-use.
type oauthState struct {
	verifier string
	expires  time.Time
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db         *sql.DB
	cfg        *config.Config
	poller     *poller.Poller
	stateStore map[string]oauthState
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// poller may be nil when the loop isn't running (misconfigured startup);
// status and test endpoints degrade gracefully.
func NewHandlers(db *sql.DB, cfg *config.Config, p *poller.Poller) *Handlers {
	return &Handlers{
		db:         db,
		cfg:        cfg,
		poller:     p,
		stateStore: make(map[string]oauthState),
	}
}

// cleanExpiredStates removes expired OAuth states. Callers hold stateMu.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, entry := range h.stateStore {
		if now.After(entry.expires) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState stores a state/verifier pair, bounding memory growth.
func (h *Handlers) addOAuthState(state, verifier string, expires time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}
	if len(h.stateStore) >= maxOAuthStates {
		return
	}
	h.stateStore[state] = oauthState{verifier: verifier, expires: expires}
}

// takeOAuthState pops a state entry; ok is false for unknown or expired states.
func (h *Handlers) takeOAuthState(state string) (oauthState, bool) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	entry, ok := h.stateStore[state]
	if !ok {
		return oauthState{}, false
	}
	delete(h.stateStore, state)
	if time.Now().After(entry.expires) {
		return oauthState{}, false
	}
	return entry, true
}
