package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var errBoxStyle = lipgloss.NewStyle().Foreground(StatusFailed)

// ErrBox displays one transient error line under the menu.
type ErrBox struct {
	err           error
	height, width int
}

func NewErrBox() *ErrBox {
	return &ErrBox{}
}

func (e *ErrBox) SetError(err error) {
	e.err = err
}

func (e *ErrBox) Clear() {
	e.err = nil
}

func (e *ErrBox) SetSize(width, height int) {
	e.width = width
	e.height = height
}

func (e *ErrBox) String() string {
	var text string
	if e.err != nil {
		text = e.err.Error()
		if len(text) > e.width && e.width > 3 {
			text = text[:e.width-3] + "..."
		}
	}
	return lipgloss.Place(e.width, e.height, lipgloss.Center, lipgloss.Center, errBoxStyle.Render(text))
}
