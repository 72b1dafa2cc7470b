package telemetry

import (
	"context"
	"testing"
)

func TestHelpersSafeBeforeInit(t *testing.T) {
	// Helpers must be no-ops before Init, not panic.
	IncTokenRefresh()
	IncTokenRefreshFailure()
	IncTrackChange()
	IncMonitorPoll(true)
	IncCommand("nowplaying")
	SetMonitorsActive(3)
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()
	if TokenRefreshes == nil || MonitorsActiveGauge == nil || CommandsHandled == nil {
		t.Fatal("metrics not registered after Init")
	}
	IncTokenRefresh()
	IncCommand("stats")
	SetMonitorsActive(1)
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty ctx) = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation() = %q", got)
	}
	if l := LoggerWithCorr(ctx); l == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
