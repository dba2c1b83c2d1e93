package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/weaksignal/internal/otel"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
// Must be updated if DebugPanel style changes.
const debugPanelChrome = 4

// debugOverlay renders the debug panel showing stream stats and recent
// journal events. Returns empty string if ring is nil.
func debugOverlay(ring *otel.RingBuffer, width, height int) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()
	recent := ring.Last(20)

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Stream Stats"))
	lines = append(lines, fmt.Sprintf("  Streams:    %d opened, %d closed, %d disconnects",
		stats[otel.KindStreamOpen], stats[otel.KindStreamClose], stats[otel.KindStreamDisconnect]))
	lines = append(lines, fmt.Sprintf("  Events:     %d traced, %d dropped",
		stats[otel.KindStreamEvent], stats[otel.KindStreamDrop]))
	lines = append(lines, fmt.Sprintf("  Runs:       %d complete, %d errors",
		stats[otel.KindRunComplete], stats[otel.KindRunError]))
	lines = append(lines, fmt.Sprintf("  Scenarios:  %d started, %d complete, %d errors",
		stats[otel.KindScenarioStart], stats[otel.KindScenarioComplete], stats[otel.KindScenarioError]))
	lines = append(lines, fmt.Sprintf("  Cache:      %d hits, %d saves, %d errors",
		stats[otel.KindStoreHit], stats[otel.KindStoreSave], stats[otel.KindStoreError]))
	lines = append(lines, fmt.Sprintf("  Buffer:     %d / %d events", ring.Len(), ring.Cap()))
	lines = append(lines, "")

	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range recent {
		line := fmt.Sprintf("  %6s  %-18s", formatAge(time.Since(e.Time)), string(e.Kind))
		if e.RunID != "" {
			line += "  run:" + truncate(e.RunID, 8)
		}
		if e.Scenario != "" {
			line += "  scn:" + truncate(e.Scenario, 12)
		}
		if e.Msg != "" {
			line += "  " + truncate(e.Msg, 40)
		}
		if e.Err != "" {
			line += "  ERR:" + truncate(e.Err, 30)
		}
		lines = append(lines, line)
	}

	// Truncate to fit terminal height (subtract chrome added by DebugPanel border/padding)
	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 96
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}

	return DebugPanel.Width(panelWidth).Render(strings.Join(lines, "\n"))
}

// formatAge formats a duration as a compact human string.
// Handles negative durations from clock skew by clamping to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// debugStatusBar renders the status bar for the debug overlay.
func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("?") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [DEBUG]  " + keys)
}
