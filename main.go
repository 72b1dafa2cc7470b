// Command tunebridge is the main entrypoint for the Twitch/Spotify bridge.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the Twitch chat bot, per-user track monitors, and the hourly
//     token refresh sweep.
//   - Exposes an HTTP server with the OAuth callback, /healthz, /status,
//     /metrics, and admin endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tunebridge/tunebridge/chat"
	"github.com/tunebridge/tunebridge/config"
	"github.com/tunebridge/tunebridge/db"
	"github.com/tunebridge/tunebridge/oauth"
	"github.com/tunebridge/tunebridge/server"
	"github.com/tunebridge/tunebridge/session"
	"github.com/tunebridge/tunebridge/spotifyapi"
	"github.com/tunebridge/tunebridge/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("tunebridge", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Run database migrations using dual-system approach:
	// 1. Primary: versioned migrations (golang-migrate) from db/migrations/
	// 2. Fallback: embedded SQL (db.Migrate) for backward compatibility
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to legacy embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("legacy embedded SQL migration completed",
			slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed successfully",
			slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session manager over the shared store and Spotify OAuth config.
	store := &db.StoreAdapter{DB: database}
	auth := spotifyapi.NewOAuthConfig(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRedirectURI, cfg.SpotifyScopes)
	mgr := session.NewManager(store, auth)

	// The bot announces track changes and the monitor feeds them; the
	// NotifierFunc indirection lets both be constructed against each other.
	var bot *chat.Bot
	monitor := session.NewMonitor(mgr, session.NotifierFunc(func(userID string, track spotifyapi.Track) {
		bot.TrackChanged(userID, track)
	}), cfg.MonitorInterval, cfg.MonitorMax)
	monitor.Prefs = store
	bot = chat.NewBot(cfg, mgr, monitor)

	// Resume monitors for users who opted in before the last shutdown.
	if users, err := db.ListMonitorEnabled(ctx, database); err != nil {
		slog.Warn("failed to list persisted monitor opt-ins", slog.Any("err", err))
	} else {
		for _, u := range users {
			if err := monitor.Start(ctx, u); err != nil {
				slog.Warn("failed to resume monitor", slog.String("user", u), slog.Any("err", err))
			}
		}
		if len(users) > 0 {
			slog.Info("resumed track monitors", slog.Int("count", len(users)))
		}
	}

	// Hourly maintenance sweep refreshing tokens that expire soon.
	sweepInterval := time.Hour
	if v := os.Getenv("TOKEN_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			sweepInterval = d
		} else {
			slog.Warn("invalid TOKEN_SWEEP_INTERVAL, using default", slog.String("value", v))
		}
	}
	refreshWindow := 90 * time.Minute
	if v := os.Getenv("TOKEN_REFRESH_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			refreshWindow = d
		} else {
			slog.Warn("invalid TOKEN_REFRESH_WINDOW, using default", slog.String("value", v))
		}
	}
	oauth.StartSweeper(ctx, database, mgr, sweepInterval, refreshWindow)

	// Twitch chat bot; optional so the HTTP surface can run without chat creds.
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("chat bot disabled", slog.Any("reason", err))
	} else {
		go func() {
			if err := bot.Run(ctx); err != nil {
				slog.Error("chat bot exited with error", slog.Any("err", err))
			}
		}()
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (oauth callback, health/status/metrics, admin)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, mgr, monitor, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	monitor.StopAll()
}
