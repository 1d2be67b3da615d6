// Package keys defines the global key map shared by the app and the menu.
package keys

import "github.com/charmbracelet/bubbles/key"

type KeyName int

const (
	KeyUp KeyName = iota
	KeyDown
	KeyStart
	KeyStop
	KeyConnect
	KeyRefresh
	KeyHelp
	KeyQuit
)

// GlobalKeyStringsMap maps raw key strings to key names.
var GlobalKeyStringsMap = map[string]KeyName{
	"up":     KeyUp,
	"k":      KeyUp,
	"down":   KeyDown,
	"j":      KeyDown,
	"s":      KeyStart,
	"S":      KeyStop,
	"enter":  KeyConnect,
	"c":      KeyConnect,
	"r":      KeyRefresh,
	"?":      KeyHelp,
	"q":      KeyQuit,
	"ctrl+c": KeyQuit,
}

// GlobalKeyBindings carries the help text the menu renders.
var GlobalKeyBindings = map[KeyName]key.Binding{
	KeyUp:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "up")),
	KeyDown:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "down")),
	KeyStart:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
	KeyStop:    key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "stop")),
	KeyConnect: key.NewBinding(key.WithKeys("enter", "c"), key.WithHelp("↵", "connect")),
	KeyRefresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	KeyHelp:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	KeyQuit:    key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
}
