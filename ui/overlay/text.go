package overlay

import (
	"ec2switch/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TextOverlay displays static text, such as the help screen, until the user
// dismisses it.
type TextOverlay struct {
	title string
	body  string
	width int

	// OnDismiss runs when the overlay is closed.
	OnDismiss func()
}

func NewTextOverlay(title, body string) *TextOverlay {
	return &TextOverlay{title: title, body: body, width: 60}
}

func (t *TextOverlay) SetWidth(width int) {
	t.width = width
}

// HandleKeyPress dismisses the overlay on any key.
func (t *TextOverlay) HandleKeyPress(_ tea.KeyMsg) bool {
	if t.OnDismiss != nil {
		t.OnDismiss()
	}
	return true
}

func (t *TextOverlay) Render() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ui.TextPrimary)
	content := titleStyle.Render(t.title) + "\n\n" + t.body
	return ui.OverlayStyle().Width(t.width).Render(content)
}
