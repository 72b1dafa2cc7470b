// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	TokenRefreshes       prometheus.Counter
	TokenRefreshFailures prometheus.Counter
	TrackChanges         prometheus.Counter
	MonitorPolls         prometheus.Counter
	MonitorPollErrors    prometheus.Counter
	CommandsHandled      *prometheus.CounterVec

	// Histograms (seconds)
	CommandDuration prometheus.Observer

	// Gauges
	MonitorsActiveGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "tunebridge_token_refreshes_total", Help: "Number of successful Spotify token refreshes"})
		TokenRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "tunebridge_token_refresh_failures_total", Help: "Number of failed Spotify token refreshes"})
		TrackChanges = promauto.NewCounter(prometheus.CounterOpts{Name: "tunebridge_track_changes_total", Help: "Number of track-change events emitted"})
		MonitorPolls = promauto.NewCounter(prometheus.CounterOpts{Name: "tunebridge_monitor_polls_total", Help: "Number of track monitor poll iterations"})
		MonitorPollErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "tunebridge_monitor_poll_errors_total", Help: "Number of failed track monitor polls"})
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tunebridge_commands_total", Help: "Number of chat commands handled"}, []string{"command"})
		CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "tunebridge_command_duration_seconds", Help: "Chat command handling duration seconds", Buckets: prometheus.DefBuckets})
		MonitorsActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "tunebridge_monitors_active", Help: "Current number of running track monitors"})
	})
}

// IncTokenRefresh records a successful refresh.
func IncTokenRefresh() {
	if TokenRefreshes != nil {
		TokenRefreshes.Inc()
	}
}

// IncTokenRefreshFailure records a failed refresh.
func IncTokenRefreshFailure() {
	if TokenRefreshFailures != nil {
		TokenRefreshFailures.Inc()
	}
}

// IncTrackChange records an emitted track-change event.
func IncTrackChange() {
	if TrackChanges != nil {
		TrackChanges.Inc()
	}
}

// IncMonitorPoll records one poll iteration; failed marks it as errored.
func IncMonitorPoll(failed bool) {
	if MonitorPolls != nil {
		MonitorPolls.Inc()
	}
	if failed && MonitorPollErrors != nil {
		MonitorPollErrors.Inc()
	}
}

// IncCommand records a handled chat command by name.
func IncCommand(name string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(name).Inc()
	}
}

// SetMonitorsActive records the current number of running monitors.
func SetMonitorsActive(n int) {
	if MonitorsActiveGauge != nil {
		MonitorsActiveGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
