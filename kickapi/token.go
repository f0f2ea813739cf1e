package kickapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	tokenURL = "https://id.kick.com/oauth/token"

	// Provider is the key under which Kick tokens are persisted.
	Provider = "kick"

	// tokenSafetyMargin: a token handed to a caller is valid for at least
	// this long, otherwise a refresh happens first.
	tokenSafetyMargin = 30 * time.Second
)

// TokenStore persists OAuth tokens so a rotating refresh token survives restarts.
type TokenStore interface {
	GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error)
	UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
}

// TokenSource fetches and caches a Kick bearer token. With a Store configured
// and a refresh token on record it uses the refresh_token grant (rotating the
// stored token); otherwise it falls back to client_credentials.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Store        TokenStore
	HTTPClient   *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// Get returns a valid (fresh or cached) access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.token != "" && time.Until(ts.expiresAt) > tokenSafetyMargin {
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()
	return ts.refresh(ctx)
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && time.Until(ts.expiresAt) > tokenSafetyMargin {
		return ts.token, nil
	}
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", &AuthError{Msg: "missing client id/secret"}
	}

	form := url.Values{}
	form.Set("client_id", ts.ClientID)
	form.Set("client_secret", ts.ClientSecret)
	storedRefresh := ""
	if ts.Store != nil {
		_, refresh, _, _, err := ts.Store.GetOAuthToken(ctx, Provider)
		if err != nil {
			return "", &AuthError{Msg: "load stored token: " + err.Error()}
		}
		storedRefresh = refresh
	}
	if storedRefresh != "" {
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", storedRefresh)
		if ts.RedirectURI != "" {
			form.Set("redirect_uri", ts.RedirectURI)
		}
	} else {
		form.Set("grant_type", "client_credentials")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	hc := ts.HTTPClient
	if hc == nil {
		hc = defaultHTTPClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		// A failed refresh keeps any near-expired cached token in place;
		// the caller just skips this cycle.
		return "", &AuthError{Msg: err.Error()}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", &AuthError{Status: resp.StatusCode, Msg: excerpt(b)}
	}
	var at struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&at); err != nil {
		return "", &AuthError{Msg: "decode token response: " + err.Error()}
	}
	if at.AccessToken == "" {
		return "", &AuthError{Msg: "empty access_token in response"}
	}

	ts.token = at.AccessToken
	ts.expiresAt = ComputeExpiry(at.ExpiresIn)

	// Kick rotates refresh tokens; losing the new one would strand the next
	// restart on a dead credential.
	if ts.Store != nil && at.RefreshToken != "" {
		if err := ts.Store.UpsertOAuthToken(ctx, Provider, at.AccessToken, at.RefreshToken, ts.expiresAt, at.Scope); err != nil {
			slog.Warn("persist rotated kick token failed", slog.Any("err", err))
		}
	}
	return ts.token, nil
}
