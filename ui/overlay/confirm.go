// Package overlay contains the modal overlays drawn over the main view.
package overlay

import (
	"ec2switch/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ConfirmationOverlay asks a yes/no question before a destructive action.
type ConfirmationOverlay struct {
	message string
	width   int

	// OnConfirm runs when the user confirms.
	OnConfirm func()
	// OnCancel runs when the user cancels or dismisses.
	OnCancel func()
}

func NewConfirmationOverlay(message string) *ConfirmationOverlay {
	return &ConfirmationOverlay{message: message, width: 50}
}

func (c *ConfirmationOverlay) SetWidth(width int) {
	c.width = width
}

// HandleKeyPress processes a key and reports whether the overlay should
// close.
func (c *ConfirmationOverlay) HandleKeyPress(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "y", "Y", "enter":
		if c.OnConfirm != nil {
			c.OnConfirm()
		}
		return true
	case "n", "N", "esc", "q":
		if c.OnCancel != nil {
			c.OnCancel()
		}
		return true
	}
	return false
}

func (c *ConfirmationOverlay) Render() string {
	hintStyle := lipgloss.NewStyle().Foreground(ui.TextMuted)
	content := c.message + "\n\n" + hintStyle.Render("y/enter confirm • n/esc cancel")
	return ui.OverlayStyle().Width(c.width).Render(content)
}
