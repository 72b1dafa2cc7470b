package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SPOTIFY_REDIRECT_URI", "")
	t.Setenv("SPOTIFY_SCOPES", "")
	t.Setenv("MONITOR_POLL_INTERVAL", "")
	t.Setenv("MONITOR_MAX", "")
	t.Setenv("DB_DSN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SpotifyRedirectURI == "" {
		t.Error("expected default redirect URI")
	}
	if cfg.SpotifyScopes == "" {
		t.Error("expected default scopes")
	}
	if cfg.MonitorInterval != 10*time.Second {
		t.Errorf("MonitorInterval = %v, want 10s", cfg.MonitorInterval)
	}
	if cfg.MonitorMax != 256 {
		t.Errorf("MonitorMax = %d, want 256", cfg.MonitorMax)
	}
	if cfg.DBDsn == "" {
		t.Error("expected default DB DSN")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MONITOR_POLL_INTERVAL", "30s")
	t.Setenv("MONITOR_MAX", "8")
	t.Setenv("DB_DSN", "postgres://u:p@db:5432/x")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MonitorInterval != 30*time.Second {
		t.Errorf("MonitorInterval = %v, want 30s", cfg.MonitorInterval)
	}
	if cfg.MonitorMax != 8 {
		t.Errorf("MonitorMax = %d, want 8", cfg.MonitorMax)
	}
	if cfg.DBDsn != "postgres://u:p@db:5432/x" {
		t.Errorf("DBDsn = %q", cfg.DBDsn)
	}
}

func TestLoadInvalidInterval(t *testing.T) {
	t.Setenv("MONITOR_POLL_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid MONITOR_POLL_INTERVAL")
	}
}

func TestValidateChatReady(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateChatReady(); err == nil {
		t.Error("expected error with missing twitch creds")
	}
	cfg = &Config{TwitchChannel: "c", TwitchBotUsername: "b", TwitchOAuthToken: "t"}
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("ValidateChatReady() = %v, want nil", err)
	}
}

func TestValidateSpotifyReady(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateSpotifyReady(); err == nil {
		t.Error("expected error with missing spotify creds")
	}
	cfg = &Config{SpotifyClientID: "id", SpotifyClientSecret: "secret"}
	if err := cfg.ValidateSpotifyReady(); err != nil {
		t.Errorf("ValidateSpotifyReady() = %v, want nil", err)
	}
}
