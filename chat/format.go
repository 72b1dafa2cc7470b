package chat

import (
	"fmt"
	"strings"
)

// ProgressBar renders a playback position like ▬▬▬🔘▬▬▬▬▬▬▬▬▬ for chat.
// width is the number of segments; the slider sits at the current position.
func ProgressBar(progressMs, durationMs, width int) string {
	if width <= 0 {
		width = 12
	}
	if durationMs <= 0 {
		return strings.Repeat("▬", width)
	}
	if progressMs < 0 {
		progressMs = 0
	}
	if progressMs > durationMs {
		progressMs = durationMs
	}
	pos := progressMs * (width - 1) / durationMs
	var sb strings.Builder
	for i := 0; i < width; i++ {
		if i == pos {
			sb.WriteString("🔘")
		} else {
			sb.WriteString("▬")
		}
	}
	return sb.String()
}

// FormatDuration renders milliseconds as m:ss.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
