package ui

import "github.com/charmbracelet/lipgloss"

// Status colors. Each status also has a distinct icon so color is never the
// only signal.
var (
	StatusSuccess = lipgloss.AdaptiveColor{Light: "#22C55E", Dark: "#22C55E"}
	StatusWorking = lipgloss.AdaptiveColor{Light: "#3B82F6", Dark: "#3B82F6"}
	StatusWarning = lipgloss.AdaptiveColor{Light: "#F59E0B", Dark: "#F59E0B"}
	StatusFailed  = lipgloss.AdaptiveColor{Light: "#EF4444", Dark: "#EF4444"}
	StatusIdle    = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#6B7280"}
)

var (
	TextPrimary   = lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#dddddd"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#4B5563", Dark: "#9CA3AF"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6B7280"}

	BackgroundSelected = lipgloss.AdaptiveColor{Light: "#dde4f0", Dark: "#3C3C4C"}

	Border      = lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#3C3C3C"}
	BorderFocus = lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#7D56F4"}
)

const (
	IconRunning    = "●"
	IconStopped    = "○"
	IconTerminated = "✝"
	IconError      = "×"
	IconUnknown    = "?"
)

var (
	RunningStyle    = lipgloss.NewStyle().Foreground(StatusSuccess)
	TransitionStyle = lipgloss.NewStyle().Foreground(StatusWorking)
	StoppedStyle    = lipgloss.NewStyle().Foreground(StatusIdle)
	ErrorStyle      = lipgloss.NewStyle().Foreground(StatusFailed)
	UnknownStyle    = lipgloss.NewStyle().Foreground(TextMuted)
)

// OverlayStyle is the container style for modal overlays.
func OverlayStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderFocus).
		Padding(1, 2)
}
