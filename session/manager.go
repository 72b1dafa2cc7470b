// Package session owns the per-user Spotify credential lifecycle: pending
// authorization codes, token load/refresh under a per-user lock, and the
// background track monitor. All token mutations for a user are serialized so a
// chat command and the poll loop can never race a refresh against each other.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/tunebridge/tunebridge/spotifyapi"
	"github.com/tunebridge/tunebridge/telemetry"
)

// Store persists per-user credentials and related state. *db.StoreAdapter is
// the production implementation.
type Store interface {
	GetToken(ctx context.Context, userID string) (access, refresh string, expiry time.Time, scope string, err error)
	UpsertToken(ctx context.Context, userID, access, refresh string, expiry time.Time, scope string) error
	DeleteToken(ctx context.Context, userID string) error
	ConsumePendingCode(ctx context.Context, userID string) (string, error)
	SetMonitorEnabled(ctx context.Context, userID string, enabled bool) error
}

// Authenticator is the authorization-server surface the manager needs.
// *spotifyapi.OAuthConfig is the production implementation.
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// expiryBuffer is how close to expiry a token may get before Client refreshes
// it proactively, covering clock skew and in-flight request time.
const expiryBuffer = 60 * time.Second

// Manager hands out API clients backed by fresh access tokens. APIBase and
// HTTPClient are passed through to the clients it constructs, overridable for
// tests.
type Manager struct {
	store Store
	auth  Authenticator
	locks *lockRegistry

	APIBase    string
	HTTPClient *http.Client
}

func NewManager(store Store, auth Authenticator) *Manager {
	return &Manager{store: store, auth: auth, locks: newLockRegistry()}
}

// TrackedUsers reports how many users have touched the manager since boot,
// which is the size of the lock registry.
func (m *Manager) TrackedUsers() int {
	return m.locks.len()
}

// AuthorizeURL builds the authorization URL for a user. Pure construction: no
// network call, no lock, no store access. The user ID travels in the OAuth
// state parameter so the redirect callback can attribute the code.
func (m *Manager) AuthorizeURL(userID string) (string, error) {
	state, err := spotifyapi.EncodeState(userID)
	if err != nil {
		return "", err
	}
	return m.auth.AuthCodeURL(state), nil
}

// Client returns an API client bound to a valid access token for the user.
// Under the user's lock it consumes any pending authorization code, loads the
// stored record, and refreshes it when expired (persisting before returning).
// Fails with *NotAuthenticatedError when no credential exists and with
// *ReauthRequiredError when the refresh token was revoked.
func (m *Manager) Client(ctx context.Context, userID string) (*spotifyapi.Client, error) {
	l := m.locks.get(userID)
	l.Lock()
	defer l.Unlock()

	// A code from a just-completed authorization takes precedence over
	// whatever is stored.
	code, err := m.store.ConsumePendingCode(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load pending code: %w", err)
	}
	if code != "" {
		if err := m.exchangeLocked(ctx, userID, code); err != nil {
			return nil, err
		}
	}

	access, refresh, expiry, scope, err := m.store.GetToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if access == "" && refresh == "" {
		return nil, m.notAuthenticated(userID)
	}

	if time.Until(expiry) < expiryBuffer {
		access, err = m.refreshLocked(ctx, userID, refresh, scope)
		if err != nil {
			return nil, err
		}
	}

	return &spotifyapi.Client{AccessToken: access, BaseURL: m.APIBase, HTTPClient: m.HTTPClient}, nil
}

// ExchangeCode performs the one-shot authorization-code exchange for a user
// and persists the resulting record. A replayed code fails with
// spotifyapi.ErrInvalidGrant from the server; it is surfaced, never retried.
func (m *Manager) ExchangeCode(ctx context.Context, userID, code string) error {
	l := m.locks.get(userID)
	l.Lock()
	defer l.Unlock()
	return m.exchangeLocked(ctx, userID, code)
}

func (m *Manager) exchangeLocked(ctx context.Context, userID, code string) error {
	tok, err := m.auth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("code exchange for user %s: %w", userID, err)
	}
	if err := m.store.UpsertToken(ctx, userID, tok.AccessToken, tok.RefreshToken, tok.Expiry, scopeOf(tok)); err != nil {
		return fmt.Errorf("persist token for user %s: %w", userID, err)
	}
	slog.Info("authorization code exchanged", slog.String("user", userID), slog.String("component", "session"))
	return nil
}

// RefreshUser force-refreshes a user's token under the lock, regardless of
// expiry. Used by the maintenance sweep. A user with no stored refresh token
// is skipped silently.
func (m *Manager) RefreshUser(ctx context.Context, userID string) error {
	l := m.locks.get(userID)
	l.Lock()
	defer l.Unlock()

	_, refresh, _, scope, err := m.store.GetToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if refresh == "" {
		return nil
	}
	_, err = m.refreshLocked(ctx, userID, refresh, scope)
	return err
}

// refreshLocked performs a single refresh attempt and persists the result.
// Callers hold the user's lock. On failure the stored record is left as-is.
func (m *Manager) refreshLocked(ctx context.Context, userID, refresh, scope string) (string, error) {
	if refresh == "" {
		return "", m.notAuthenticated(userID)
	}
	tok, err := m.auth.Refresh(ctx, refresh)
	if err != nil {
		telemetry.IncTokenRefreshFailure()
		if errors.Is(err, spotifyapi.ErrInvalidGrant) {
			url, urlErr := m.AuthorizeURL(userID)
			if urlErr != nil {
				slog.Warn("failed to build reauth url", slog.String("user", userID), slog.Any("err", urlErr))
			}
			return "", &ReauthRequiredError{UserID: userID, AuthURL: url, Cause: err}
		}
		return "", fmt.Errorf("token refresh for user %s: %w", userID, err)
	}
	newScope := scopeOf(tok)
	if newScope == "" {
		newScope = scope
	}
	if err := m.store.UpsertToken(ctx, userID, tok.AccessToken, tok.RefreshToken, tok.Expiry, newScope); err != nil {
		return "", fmt.Errorf("persist refreshed token for user %s: %w", userID, err)
	}
	telemetry.IncTokenRefresh()
	slog.Debug("token refreshed", slog.String("user", userID), slog.Time("expiry", tok.Expiry), slog.String("component", "session"))
	return tok.AccessToken, nil
}

// Disconnect removes a user's stored credential and pending code.
func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	l := m.locks.get(userID)
	l.Lock()
	defer l.Unlock()
	if err := m.store.DeleteToken(ctx, userID); err != nil {
		return fmt.Errorf("delete token for user %s: %w", userID, err)
	}
	slog.Info("user disconnected", slog.String("user", userID), slog.String("component", "session"))
	return nil
}

func (m *Manager) notAuthenticated(userID string) error {
	url, err := m.AuthorizeURL(userID)
	if err != nil {
		slog.Warn("failed to build auth url", slog.String("user", userID), slog.Any("err", err))
	}
	return &NotAuthenticatedError{UserID: userID, AuthURL: url}
}

func scopeOf(tok *oauth2.Token) string {
	if s, ok := tok.Extra("scope").(string); ok {
		return s
	}
	return ""
}
