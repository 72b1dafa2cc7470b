package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"

	dbpkg "github.com/tunebridge/tunebridge/db"
)

// HandleConfig handles GET and PUT requests for safe configuration keys.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	// Only allow GET/PUT for known keys; secrets must not be exposed here.
	safeKeys := map[string]bool{
		"LOG_LEVEL":             true,
		"LOG_FORMAT":            true,
		"MONITOR_POLL_INTERVAL": true,
		"MONITOR_MAX":           true,
		"TOKEN_SWEEP_INTERVAL":  true,
		"TOKEN_REFRESH_WINDOW":  true,
		"RATE_LIMIT_ENABLED":    true,
	}
	switch r.Method {
	case http.MethodGet:
		// Return safe keys with values from env override (kv) if present
		out := map[string]string{}
		for k := range safeKeys {
			var v string
			_ = h.db.QueryRowContext(r.Context(), `SELECT value FROM kv WHERE key=$1`, "cfg:"+k).Scan(&v)
			if v == "" {
				v = os.Getenv(k)
			}
			if v != "" {
				out[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPut:
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		for k, v := range body {
			if !safeKeys[k] {
				continue
			}
			if _, err := h.db.ExecContext(
				r.Context(),
				`INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW()) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
				"cfg:"+k,
				strings.TrimSpace(v),
			); err != nil {
				slog.Error("failed to update config", slog.String("key", k), slog.Any("err", err))
				http.Error(w, "failed to update config", http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleStatus returns a lightweight status summary: connected accounts,
// running monitors, pending authorizations, and the last maintenance sweep.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	resp := map[string]any{}

	var pending, optedIn int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_auth_codes`).Scan(&pending)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM monitor_prefs WHERE enabled`).Scan(&optedIn)
	connected, err := dbpkg.ListTokenUsers(ctx, h.db)
	if err != nil {
		slog.Warn("status: failed to list token users", slog.Any("err", err))
	}
	resp["connected_accounts"] = len(connected)
	resp["pending_authorizations"] = pending
	resp["monitor_opt_ins"] = optedIn
	resp["tracked_sessions"] = h.mgr.TrackedUsers()

	running := h.monitor.Running()
	resp["monitors_running"] = len(running)

	var lastSweep string
	_ = h.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key='job_token_sweep_last'`).Scan(&lastSweep)
	if lastSweep != "" {
		resp["last_token_sweep"] = lastSweep
	}

	if v := os.Getenv("MONITOR_POLL_INTERVAL"); v != "" {
		resp["monitor_poll_interval"] = v
	}
	if v := os.Getenv("MONITOR_MAX"); v != "" {
		resp["monitor_max"] = v
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
