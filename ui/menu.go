package ui

import (
	"ec2switch/fleet"
	"ec2switch/keys"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var keyStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
	Light: "#655F5F",
	Dark:  "#7F7A7A",
})

var keyDescStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
	Light: "#7A7474",
	Dark:  "#9C9494",
})

var sepStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
	Light: "#DDDADA",
	Dark:  "#3C3C3C",
})

var separator = " • "

// Menu renders the bottom key help line. Options depend on the selected
// instance: start only shows for a stopped or failed instance, stop and
// connect only for a running one.
type Menu struct {
	options       []keys.KeyName
	height, width int
	instance      *fleet.InstanceState
}

var baseMenuOptions = []keys.KeyName{keys.KeyUp, keys.KeyDown, keys.KeyRefresh, keys.KeyHelp, keys.KeyQuit}

func NewMenu() *Menu {
	return &Menu{options: baseMenuOptions}
}

// SetInstance updates the selected instance and recomputes options.
func (m *Menu) SetInstance(instance *fleet.InstanceState) {
	m.instance = instance
	m.updateOptions()
}

func (m *Menu) updateOptions() {
	if m.instance == nil {
		m.options = baseMenuOptions
		return
	}

	var actions []keys.KeyName
	if m.instance.Pending == nil {
		switch m.instance.Status {
		case fleet.StatusStopped, fleet.StatusError:
			actions = append(actions, keys.KeyStart)
		case fleet.StatusRunning:
			actions = append(actions, keys.KeyStop)
			if m.instance.PublicAddress != "" {
				actions = append(actions, keys.KeyConnect)
			}
		}
	}

	m.options = append(actions, baseMenuOptions...)
}

// SetSize sets the menu bounds; the menu centers itself horizontally.
func (m *Menu) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Menu) String() string {
	var b strings.Builder
	for i, name := range m.options {
		binding, ok := keys.GlobalKeyBindings[name]
		if !ok {
			continue
		}
		b.WriteString(keyStyle.Render(binding.Help().Key))
		b.WriteString(" ")
		b.WriteString(keyDescStyle.Render(binding.Help().Desc))
		if i != len(m.options)-1 {
			b.WriteString(sepStyle.Render(separator))
		}
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, b.String())
}
