// Package spotifyapi contains the OAuth authorization-code flow helpers and a
// minimal Spotify Web API client for playback state, playback control,
// listening stats, search, and playlists.
package spotifyapi

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"
)

// ErrInvalidGrant indicates the authorization server permanently rejected the
// refresh token (revoked or expired). The user must re-authorize.
var ErrInvalidGrant = errors.New("invalid_grant: refresh token revoked or expired")

// OAuthConfig wraps the OAuth2 authorization-code config for the Spotify
// accounts service. The endpoint is overridable for tests.
type OAuthConfig struct {
	cfg *oauth2.Config
}

// NewOAuthConfig builds the OAuth config. Scopes are space or comma separated.
func NewOAuthConfig(clientID, clientSecret, redirectURI, scopes string) *OAuthConfig {
	s := strings.ReplaceAll(scopes, ",", " ")
	return &OAuthConfig{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     spotify.Endpoint,
		RedirectURL:  redirectURI,
		Scopes:       strings.Fields(s),
	}}
}

// SetEndpoint overrides the accounts-service endpoint, for tests against httptest servers.
func (c *OAuthConfig) SetEndpoint(authURL, tokenURL string) {
	c.cfg.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
}

// AuthCodeURL returns the user-facing authorization URL carrying the given
// state. It performs no I/O.
func (c *OAuthConfig) AuthCodeURL(state string) string {
	return c.cfg.AuthCodeURL(state)
}

// Exchange swaps an authorization code for a token set.
func (c *OAuthConfig) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, mapOAuthError(err)
	}
	return tok, nil
}

// Refresh exchanges a refresh token for a new access token. Spotify usually
// omits the refresh token from the response, in which case the input refresh
// token is carried over so callers can persist a complete record.
func (c *OAuthConfig) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token empty")
	}
	ts := c.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, mapOAuthError(err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

// mapOAuthError translates the oauth2 library's retrieve error into the
// package's taxonomy: invalid_grant becomes ErrInvalidGrant, everything else
// passes through (typically transient network or 5xx failures).
func mapOAuthError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.ErrorCode == "invalid_grant" {
		return fmt.Errorf("token refresh: %w", ErrInvalidGrant)
	}
	return err
}

// EncodeState packs a user ID and a random nonce into an opaque OAuth state
// value so the redirect callback can attribute the code to the right user.
func EncodeState(userID string) (string, error) {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate state nonce: %w", err)
	}
	raw := userID + "|" + hex.EncodeToString(nonce)
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// DecodeState recovers the user ID from a state value produced by EncodeState.
func DecodeState(state string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return "", fmt.Errorf("invalid state: %w", err)
	}
	i := strings.LastIndexByte(string(raw), '|')
	if i <= 0 {
		return "", fmt.Errorf("invalid state: missing user id")
	}
	return string(raw[:i]), nil
}
