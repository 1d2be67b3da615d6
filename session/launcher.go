// Package session opens remote editor sessions against running instances.
package session

import (
	"ec2switch/cmd"
	"ec2switch/config"
	"ec2switch/fleet"
	"ec2switch/log"
	"fmt"
	"os/exec"
)

// LaunchError means the editor client could not be started. It never affects
// instance state.
type LaunchError struct {
	InstanceID string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch editor for %s: %v", e.InstanceID, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Launcher spawns the remote editor client. It is stateless; callers are
// expected to gate it behind the controller's Connectable check.
type Launcher struct {
	editorBin string
	cmdExec   cmd.Executor
}

// NewLauncher returns a launcher using editorBin (e.g. "code").
func NewLauncher(editorBin string) *Launcher {
	return NewLauncherWithDeps(editorBin, cmd.MakeExecutor())
}

// NewLauncherWithDeps returns a launcher with an injected executor for
// testing.
func NewLauncherWithDeps(editorBin string, cmdExec cmd.Executor) *Launcher {
	if editorBin == "" {
		editorBin = "code"
	}
	return &Launcher{editorBin: editorBin, cmdExec: cmdExec}
}

// Connect spawns the editor against the instance's public address and
// returns as soon as the client process is launched. The client's own
// lifetime is not ours to manage.
func (l *Launcher) Connect(state fleet.InstanceState, cfg config.InstanceConfig) error {
	args := []string{
		"--new-window",
		"--remote", fmt.Sprintf("ssh-remote+%s@%s", cfg.SSHUser, state.PublicAddress),
	}
	if cfg.RemoteDirectory != "" {
		args = append(args, cfg.RemoteDirectory)
	}

	if err := l.cmdExec.Start(exec.Command(l.editorBin, args...)); err != nil {
		return &LaunchError{InstanceID: state.ID, Err: err}
	}

	log.InfoLog.Printf("launched editor for %s (%s@%s)", state.ID, cfg.SSHUser, state.PublicAddress)
	return nil
}
