package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockSpotifyServer creates a test server that mocks Spotify Web API and
// accounts-service responses
type MockSpotifyServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockSpotifyServer creates a new mock Spotify API server
func NewMockSpotifyServer(t *testing.T) *MockSpotifyServer {
	t.Helper()
	m := &MockSpotifyServer{
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

// MockTokenResponse adds a handler for the accounts token endpoint
func (m *MockSpotifyServer) MockTokenResponse(accessToken, refreshToken string, expiresIn int) {
	m.Handlers["/api/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_in":    expiresIn,
			"token_type":    "Bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockTokenError adds a handler that fails the token endpoint with an OAuth
// error body, e.g. "invalid_grant" for revoked refresh tokens.
func (m *MockSpotifyServer) MockTokenError(status int, oauthError string) {
	m.Handlers["/api/token"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck // test mock response
			"error":             oauthError,
			"error_description": "mock " + oauthError,
		})
	}
}

// MockCurrentlyPlaying adds a handler for the currently-playing endpoint.
// Pass nil to answer 204 No Content (nothing playing).
func (m *MockSpotifyServer) MockCurrentlyPlaying(body map[string]interface{}) {
	m.Handlers["/v1/me/player/currently-playing"] = func(w http.ResponseWriter, r *http.Request) {
		if body == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	}
}

// MockMeResponse adds a handler for the current-user profile endpoint
func (m *MockSpotifyServer) MockMeResponse(id, displayName string) {
	m.Handlers["/v1/me"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]string{
			"id":           id,
			"display_name": displayName,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// TrackBody builds a currently-playing response body for MockCurrentlyPlaying.
func TrackBody(trackID, name, artist string, progressMs, durationMs int, playing bool) map[string]interface{} {
	return map[string]interface{}{
		"is_playing":  playing,
		"progress_ms": progressMs,
		"item": map[string]interface{}{
			"id":          trackID,
			"name":        name,
			"duration_ms": durationMs,
			"artists": []map[string]interface{}{
				{"name": artist},
			},
			"external_urls": map[string]string{
				"spotify": "https://open.spotify.com/track/" + trackID,
			},
		},
	}
}
