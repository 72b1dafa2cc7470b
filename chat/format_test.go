package chat

import (
	"strings"
	"testing"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name       string
		progress   int
		duration   int
		sliderAt   int
		width      int
	}{
		{"start", 0, 200000, 0, 12},
		{"middle", 100000, 200000, 5, 12},
		{"end", 200000, 200000, 11, 12},
		{"past end clamps", 250000, 200000, 11, 12},
		{"negative clamps", -5, 200000, 0, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := ProgressBar(tt.progress, tt.duration, tt.width)
			if got := strings.Count(bar, "🔘"); got != 1 {
				t.Fatalf("bar %q has %d sliders, want 1", bar, got)
			}
			if got := strings.Count(bar, "▬"); got != tt.width-1 {
				t.Errorf("bar %q has %d segments, want %d", bar, got, tt.width-1)
			}
			idx := strings.Index(bar, "🔘") / len("▬")
			if idx != tt.sliderAt {
				t.Errorf("slider at %d, want %d (bar %q)", idx, tt.sliderAt, bar)
			}
		})
	}
}

func TestProgressBar_ZeroDuration(t *testing.T) {
	bar := ProgressBar(0, 0, 12)
	if strings.Contains(bar, "🔘") {
		t.Errorf("zero-duration bar should have no slider: %q", bar)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int
		want string
	}{
		{0, "0:00"},
		{1000, "0:01"},
		{59999, "0:59"},
		{60000, "1:00"},
		{185000, "3:05"},
		{3600000, "60:00"},
		{-1, "0:00"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}
