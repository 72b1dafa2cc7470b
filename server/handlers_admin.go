package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/tunebridge/tunebridge/session"
)

// HandleAdminMonitors lists running track monitors (GET) or starts/stops one
// for a user (POST with ?user= and ?action=start|stop).
func (h *Handlers) HandleAdminMonitors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		running := h.monitor.Running()
		sort.Strings(running)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"running": running,
			"count":   len(running),
		})
	case http.MethodPost:
		userID := r.URL.Query().Get("user")
		action := r.URL.Query().Get("action")
		if userID == "" || (action != "start" && action != "stop") {
			http.Error(w, "need user and action=start|stop", http.StatusBadRequest)
			return
		}
		if action == "stop" {
			stopped := h.monitor.Stop(userID)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "was_running": stopped})
			return
		}
		// Monitors outlive the request; tie the loop to the server's context.
		if err := h.monitor.Start(h.ctx, userID); err != nil {
			if errors.Is(err, session.ErrMonitorLimit) {
				http.Error(w, "monitor limit reached", http.StatusTooManyRequests)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleAdminDisconnect removes a user's stored credential (POST ?user=).
func (h *Handlers) HandleAdminDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}
	h.monitor.Stop(userID)
	if err := h.mgr.Disconnect(r.Context(), userID); err != nil {
		slog.Error("admin disconnect failed", slog.String("user", userID), slog.Any("err", err))
		http.Error(w, "disconnect failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
