package ui

import (
	"fmt"
	"time"
)

// FormatUptime formats a running duration as "H:MM". Zero (not running,
// launch time unknown) renders as empty.
func FormatUptime(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	mins := int(d.Minutes())
	return fmt.Sprintf("%d:%02d", mins/60, mins%60)
}

// FormatRelativeTime formats a time as a short relative string, e.g.
// "just now", "2m ago", "3h ago". The zero time renders as "never".
func FormatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
