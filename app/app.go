package app

import (
	"context"
	"ec2switch/config"
	"ec2switch/fleet"
	"ec2switch/keys"
	"ec2switch/log"
	"ec2switch/session"
	"ec2switch/ui"
	"ec2switch/ui/overlay"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Deps carries the already constructed services the TUI drives.
type Deps struct {
	Config     *config.Config
	Registry   *config.Registry
	Controller *fleet.Controller
	Poller     *fleet.Poller
	Launcher   *session.Launcher
}

// Run is the main entrypoint into the application. The poller runs for as
// long as the program does.
func Run(ctx context.Context, deps Deps) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go deps.Poller.Run(ctx)

	p := tea.NewProgram(
		newHome(ctx, deps),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}

type state int

const (
	stateDefault state = iota
	// stateHelp is the state when the help screen is displayed.
	stateHelp
	// stateConfirm is the state when a confirmation modal is displayed.
	stateConfirm
)

type home struct {
	ctx context.Context

	appConfig  *config.Config
	registry   *config.Registry
	controller *fleet.Controller
	poller     *fleet.Poller
	launcher   *session.Launcher

	// events is this model's subscription to controller state changes.
	events <-chan fleet.Event

	// state is the current discrete state of the application.
	state state

	// -- UI Components --

	// list displays the registered instances
	list *ui.List
	// menu displays the bottom menu
	menu *ui.Menu
	// errBox displays error messages
	errBox *ui.ErrBox
	// global spinner instance, plumbed down to where it's needed
	spinner spinner.Model
	// textOverlay displays the help screen
	textOverlay *overlay.TextOverlay
	// confirmationOverlay displays confirmation modals
	confirmationOverlay *overlay.ConfirmationOverlay
	// confirmedCmd is the command to run once the confirmation overlay is
	// answered with yes.
	confirmedCmd tea.Cmd
}

func newHome(ctx context.Context, deps Deps) *home {
	h := &home{
		ctx:        ctx,
		appConfig:  deps.Config,
		registry:   deps.Registry,
		controller: deps.Controller,
		poller:     deps.Poller,
		launcher:   deps.Launcher,
		events:     deps.Controller.Subscribe(),
		spinner:    spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		menu:       ui.NewMenu(),
		errBox:     ui.NewErrBox(),
		state:      stateDefault,
	}
	h.list = ui.NewList(&h.spinner)
	h.list.SetItems(deps.Controller.States())
	h.menu.SetInstance(h.list.Selected())
	return h
}

// updateHandleWindowSizeEvent sets the sizes of the components. The
// components will try to render inside their bounds.
func (m *home) updateHandleWindowSizeEvent(msg tea.WindowSizeMsg) {
	contentHeight := int(float32(msg.Height) * 0.9)
	menuHeight := msg.Height - contentHeight - 1 // minus 1 for error box
	m.errBox.SetSize(int(float32(msg.Width)*0.9), 1)

	m.list.SetSize(msg.Width, contentHeight)
	m.menu.SetSize(msg.Width, menuHeight)

	if m.textOverlay != nil {
		m.textOverlay.SetWidth(int(float32(msg.Width) * 0.6))
	}
}

func (m *home) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForEvent(),
	)
}

func (m *home) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.updateHandleWindowSizeEvent(msg)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case stateEventMsg:
		m.list.SetItems(m.controller.States())
		m.menu.SetInstance(m.list.Selected())
		return m, m.waitForEvent()
	case commandResultMsg:
		if msg.err != nil {
			return m, m.handleError(msg.err)
		}
		return m, nil
	case hideErrMsg:
		m.errBox.Clear()
		return m, nil
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}
	return m, nil
}

func (m *home) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.state {
	case stateHelp:
		if m.textOverlay.HandleKeyPress(msg) {
			m.state = stateDefault
			m.textOverlay = nil
		}
		return m, nil
	case stateConfirm:
		if m.confirmationOverlay.HandleKeyPress(msg) {
			m.state = stateDefault
			m.confirmationOverlay = nil
			cmd := m.confirmedCmd
			m.confirmedCmd = nil
			return m, cmd
		}
		return m, nil
	}

	name, ok := keys.GlobalKeyStringsMap[msg.String()]
	if !ok {
		return m, nil
	}

	switch name {
	case keys.KeyQuit:
		return m, tea.Quit
	case keys.KeyUp:
		m.list.Up()
		m.menu.SetInstance(m.list.Selected())
		return m, nil
	case keys.KeyDown:
		m.list.Down()
		m.menu.SetInstance(m.list.Selected())
		return m, nil
	case keys.KeyRefresh:
		m.poller.Poke()
		return m, nil
	case keys.KeyHelp:
		return m.showHelp()
	case keys.KeyStart:
		selected := m.list.Selected()
		if selected == nil {
			return m, nil
		}
		return m, m.startInstance(selected.ID)
	case keys.KeyStop:
		selected := m.list.Selected()
		if selected == nil {
			return m, nil
		}
		message := fmt.Sprintf("Stop instance '%s'?", selected.Name)
		return m, m.confirmAction(message, m.stopInstance(selected.ID))
	case keys.KeyConnect:
		selected := m.list.Selected()
		if selected == nil {
			return m, nil
		}
		return m, m.connectInstance(selected.ID)
	}
	return m, nil
}

// startInstance issues the start off the UI goroutine; the optimistic state
// change arrives through the event subscription.
func (m *home) startInstance(id string) tea.Cmd {
	return func() tea.Msg {
		return commandResultMsg{err: m.controller.RequestStart(m.ctx, id)}
	}
}

func (m *home) stopInstance(id string) tea.Cmd {
	return func() tea.Msg {
		return commandResultMsg{err: m.controller.RequestStop(m.ctx, id)}
	}
}

// connectInstance opens an editor session against a running instance. The
// reachability check and the launch both happen before any message comes
// back, so failures surface in the error box like any other error.
func (m *home) connectInstance(id string) tea.Cmd {
	return func() tea.Msg {
		state, err := m.controller.Connectable(id)
		if err != nil {
			return commandResultMsg{err: err}
		}
		cfg, ok := m.registry.Get(id)
		if !ok {
			return commandResultMsg{err: fmt.Errorf("%w: %s", fleet.ErrUnknownInstance, id)}
		}
		return commandResultMsg{err: m.launcher.Connect(state, cfg)}
	}
}

// confirmAction shows a confirmation modal and stores the action to execute
// on confirm.
func (m *home) confirmAction(message string, action tea.Cmd) tea.Cmd {
	m.state = stateConfirm
	m.confirmationOverlay = overlay.NewConfirmationOverlay(message)
	m.confirmationOverlay.SetWidth(50)
	m.confirmedCmd = nil

	m.confirmationOverlay.OnConfirm = func() {
		m.confirmedCmd = action
	}
	return nil
}

func (m *home) showHelp() (tea.Model, tea.Cmd) {
	m.state = stateHelp
	body := fmt.Sprintf("%s\n\nIdle poll every %s; a command switches to polling\nevery %s until the instance settles.",
		helpText, m.appConfig.PollInterval(), m.appConfig.BurstInterval())
	m.textOverlay = overlay.NewTextOverlay("Keys", body)
	m.textOverlay.SetWidth(60)
	return m, nil
}

const helpText = `up/k, down/j  select instance
s             start the selected instance
S             stop the selected instance
enter, c      open the editor on the selected instance
r             refresh now
q             quit`

// waitForEvent blocks on the controller subscription and converts each
// state change into a bubbletea message.
func (m *home) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return nil
		case ev := <-m.events:
			return stateEventMsg{event: ev}
		}
	}
}

// hideErrMsg implements tea.Msg and clears the error text from the screen.
type hideErrMsg struct{}

// stateEventMsg carries a controller state-change event.
type stateEventMsg struct {
	event fleet.Event
}

// commandResultMsg reports the outcome of a start/stop/connect issued from
// the UI.
type commandResultMsg struct {
	err error
}

// handleError handles all errors which get bubbled up to the app. It sets
// the error message and returns a tea.Cmd that clears it after 3 seconds.
func (m *home) handleError(err error) tea.Cmd {
	log.ErrorLog.Printf("%v", err)
	m.errBox.SetError(err)
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
		case <-time.After(3 * time.Second):
		}

		return hideErrMsg{}
	}
}

func (m *home) View() string {
	listWithPadding := lipgloss.NewStyle().PaddingTop(1).Render(m.list.String())

	mainView := lipgloss.JoinVertical(
		lipgloss.Center,
		listWithPadding,
		m.menu.String(),
		m.errBox.String(),
	)

	if m.state == stateHelp && m.textOverlay != nil {
		return overlay.PlaceOverlay(0, 0, m.textOverlay.Render(), mainView, true)
	}
	if m.state == stateConfirm && m.confirmationOverlay != nil {
		return overlay.PlaceOverlay(0, 0, m.confirmationOverlay.Render(), mainView, true)
	}

	return mainView
}
