package server

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	dbpkg "github.com/onnwee/kick-herald/db"
	"github.com/onnwee/kick-herald/kickapi"
)

// stateTTL bounds how long a started OAuth flow stays redeemable.
const stateTTL = 10 * time.Minute

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// OAuthStartHandler begins the authorization code flow with PKCE. It redirects
// the operator's browser to Kick's consent page.
func (h *Handlers) OAuthStartHandler(w http.ResponseWriter, r *http.Request) {
	if h.cfg == nil || h.cfg.KickClientID == "" || h.cfg.KickRedirectURI == "" {
		http.Error(w, "oauth not configured: set KICK_CLIENT_ID and KICK_REDIRECT_URI", http.StatusServiceUnavailable)
		return
	}

	state, err := randomState()
	if err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}
	verifier := oauth2.GenerateVerifier()
	h.addOAuthState(state, verifier, time.Now().Add(stateTTL))

	conf := kickapi.OAuthConfig(h.cfg.KickClientID, h.cfg.KickClientSecret, h.cfg.KickRedirectURI, h.cfg.KickScopes)
	url := conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	slog.Info("oauth flow started", slog.String("redirect_uri", h.cfg.KickRedirectURI))
	http.Redirect(w, r, url, http.StatusFound)
}

// OAuthCallbackHandler completes the flow: validates state, exchanges the code
// with the stored PKCE verifier, and persists the token pair.
func (h *Handlers) OAuthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		desc := r.URL.Query().Get("error_description")
		slog.Warn("oauth callback returned error", slog.String("error", errMsg), slog.String("description", desc))
		http.Error(w, "authorization denied: "+errMsg, http.StatusBadRequest)
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		http.Error(w, "missing state or code", http.StatusBadRequest)
		return
	}

	entry, ok := h.takeOAuthState(state)
	if !ok {
		http.Error(w, "invalid or expired state", http.StatusBadRequest)
		return
	}

	conf := kickapi.OAuthConfig(h.cfg.KickClientID, h.cfg.KickClientSecret, h.cfg.KickRedirectURI, h.cfg.KickScopes)
	tok, err := conf.Exchange(r.Context(), code, oauth2.VerifierOption(entry.verifier))
	if err != nil {
		slog.Error("oauth code exchange failed", slog.String("error", err.Error()))
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}

	if h.db != nil {
		scope, _ := tok.Extra("scope").(string)
		if err := dbpkg.UpsertOAuthToken(r.Context(), h.db, kickapi.Provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, scope); err != nil {
			slog.Error("failed to persist oauth token", slog.String("error", err.Error()))
			http.Error(w, "failed to store token", http.StatusInternalServerError)
			return
		}
	}

	slog.Info("oauth token stored", slog.String("provider", kickapi.Provider), slog.Time("expiry", tok.Expiry))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "authorized",
		"provider": kickapi.Provider,
		"expiry":   tok.Expiry.UTC().Format(time.RFC3339),
	})
}
