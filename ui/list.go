package ui

import (
	"ec2switch/fleet"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

var titleStyle = lipgloss.NewStyle().
	Padding(1, 1, 0, 1).
	Foreground(TextPrimary)

var listDescStyle = lipgloss.NewStyle().
	Padding(0, 1, 1, 1).
	Foreground(TextSecondary)

var selectedTitleStyle = lipgloss.NewStyle().
	Padding(1, 1, 0, 1).
	Background(BackgroundSelected).
	Foreground(lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#1a1a1a"})

var selectedDescStyle = lipgloss.NewStyle().
	Padding(0, 1, 1, 1).
	Background(BackgroundSelected).
	Foreground(lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#1a1a1a"})

var errLineStyle = lipgloss.NewStyle().
	Foreground(StatusFailed).
	Italic(true)

var mainTitle = lipgloss.NewStyle().
	Background(lipgloss.Color("62")).
	Foreground(lipgloss.Color("230"))

// List displays the instance fleet. It renders whatever snapshot it was
// given last; it never talks to the controller itself.
type List struct {
	items         []fleet.InstanceState
	selectedIdx   int
	height, width int
	renderer      *rowRenderer
}

// NewList creates an empty list. The spinner is shared with the app so all
// transitioning rows animate in step.
func NewList(spinner *spinner.Model) *List {
	return &List{renderer: &rowRenderer{spinner: spinner}}
}

// SetSize sets the list bounds.
func (l *List) SetSize(width, height int) {
	l.width = width
	l.height = height
	l.renderer.width = width
}

// SetItems replaces the rendered snapshot, preserving the selection by id.
func (l *List) SetItems(items []fleet.InstanceState) {
	var selectedID string
	if s := l.Selected(); s != nil {
		selectedID = s.ID
	}
	l.items = items
	if selectedID != "" {
		for i := range items {
			if items[i].ID == selectedID {
				l.selectedIdx = i
				return
			}
		}
	}
	if l.selectedIdx >= len(items) {
		l.selectedIdx = max(0, len(items)-1)
	}
}

// Selected returns the selected instance state, or nil when the list is
// empty.
func (l *List) Selected() *fleet.InstanceState {
	if len(l.items) == 0 {
		return nil
	}
	s := l.items[l.selectedIdx]
	return &s
}

// Up selects the previous row.
func (l *List) Up() {
	if l.selectedIdx > 0 {
		l.selectedIdx--
	}
}

// Down selects the next row.
func (l *List) Down() {
	if l.selectedIdx < len(l.items)-1 {
		l.selectedIdx++
	}
}

func (l *List) String() string {
	const titleText = " Instances "

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(lipgloss.Place(l.width, 1, lipgloss.Left, lipgloss.Bottom, mainTitle.Render(titleText)))
	b.WriteString("\n\n")

	for i := range l.items {
		b.WriteString(l.renderer.render(l.items[i], i+1, i == l.selectedIdx))
		if i != len(l.items)-1 {
			b.WriteString("\n\n")
		}
	}
	return lipgloss.Place(l.width, l.height, lipgloss.Left, lipgloss.Top, b.String())
}

// rowRenderer renders one instance row: a title line with the display name
// and a status marker, and a detail line with id, address and uptime.
type rowRenderer struct {
	spinner *spinner.Model
	width   int
}

func (r *rowRenderer) statusMarker(s fleet.InstanceState) string {
	switch s.Status {
	case fleet.StatusRunning:
		return RunningStyle.Render(IconRunning)
	case fleet.StatusPending, fleet.StatusStopping:
		return fmt.Sprintf("%s %s", r.spinner.View(), TransitionStyle.Render(s.Status.String()))
	case fleet.StatusStopped:
		return StoppedStyle.Render(IconStopped)
	case fleet.StatusTerminated:
		return StoppedStyle.Render(IconTerminated)
	case fleet.StatusError:
		return ErrorStyle.Render(IconError)
	default:
		return UnknownStyle.Render(IconUnknown)
	}
}

func (r *rowRenderer) render(s fleet.InstanceState, idx int, selected bool) string {
	titleS := titleStyle
	descS := listDescStyle
	if selected {
		titleS = selectedTitleStyle
		descS = selectedDescStyle
	}

	prefix := fmt.Sprintf(" %d. ", idx)

	// Truncate long names so the marker stays visible.
	name := s.Name
	widthAvail := r.width - len(prefix) - 12
	if widthAvail > 3 && len(name) > widthAvail {
		name = name[:widthAvail-3] + "..."
	}

	title := titleS.Render(lipgloss.JoinHorizontal(
		lipgloss.Left,
		lipgloss.Place(r.width-8, 1, lipgloss.Left, lipgloss.Center, prefix+name),
		" ",
		r.statusMarker(s),
	))

	detail := fmt.Sprintf("%s%s  %s", strings.Repeat(" ", len(prefix)), s.ID, s.Status)
	if s.PublicAddress != "" {
		detail += "  " + s.PublicAddress
	}
	if up := FormatUptime(s.Uptime(time.Now())); up != "" {
		detail += "  " + up
	}

	lines := []string{title, descS.Render(detail)}
	if s.LastError != "" {
		errText := s.LastError
		maxErr := r.width - len(prefix) - 2
		if maxErr > 3 && len(errText) > maxErr {
			errText = errText[:maxErr-3] + "..."
		}
		lines = append(lines, descS.Render(strings.Repeat(" ", len(prefix))+errLineStyle.Render(errText)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
