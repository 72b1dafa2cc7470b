package server

import (
	"fmt"
	"log/slog"
	"net/http"

	dbpkg "github.com/tunebridge/tunebridge/db"
	"github.com/tunebridge/tunebridge/spotifyapi"
)

// HandleSpotifyOAuthStart redirects a user to the Spotify consent page. The
// chat bot usually hands out the URL directly; this endpoint covers manual
// flows and link shorteners. Requires ?user=<chat login>.
func (h *Handlers) HandleSpotifyOAuthStart(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.ValidateSpotifyReady(); err != nil {
		http.Error(w, "oauth not configured (need SPOTIFY_CLIENT_ID + SPOTIFY_CLIENT_SECRET)", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}
	authURL, err := h.mgr.AuthorizeURL(userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleSpotifyOAuthCallback receives the provider redirect, attributes the
// authorization code to the user encoded in the state parameter, and stores it
// as that user's pending code. The session manager consumes it on the user's
// next command.
func (h *Handlers) HandleSpotifyOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		slog.Warn("oauth consent denied", slog.String("error", errParam))
		writeCallbackPage(w, http.StatusBadRequest, "Authorization failed",
			"Spotify reported: "+errParam+". You can close this window and try again from chat.")
		return
	}
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	userID, err := spotifyapi.DecodeState(state)
	if err != nil {
		slog.Warn("oauth callback with bad state", slog.Any("err", err))
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	if err := dbpkg.UpsertPendingCode(r.Context(), h.db, userID, code); err != nil {
		slog.Error("failed to store pending auth code", slog.String("user", userID), slog.Any("err", err))
		http.Error(w, "failed to store authorization", http.StatusInternalServerError)
		return
	}
	slog.Info("authorization code received", slog.String("user", userID))
	writeCallbackPage(w, http.StatusOK, "Authentication successful!",
		"You can close this window and return to chat. Your next command will finish connecting your account.")
}

// writeCallbackPage renders the minimal user-facing page shown after the
// provider redirect.
func writeCallbackPage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	color := "#1DB954"
	if status >= 400 {
		color = "#E22134"
	}
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1 style="color: %s;">%s</h1>
<p>%s</p>
</body>
</html>`, title, color, title, body)
}
