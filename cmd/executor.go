// Package cmd provides a small abstraction over running external commands so
// that callers can be tested without the underlying binaries installed.
package cmd

import "os/exec"

// Executor runs external commands. Production code uses the real executor
// returned by MakeExecutor; tests substitute a mock.
type Executor interface {
	// Run runs the command and waits for it to finish.
	Run(cmd *exec.Cmd) error
	// Output runs the command and returns its stdout.
	Output(cmd *exec.Cmd) ([]byte, error)
	// Start launches the command without waiting for it to exit.
	Start(cmd *exec.Cmd) error
}

type realExecutor struct{}

func (realExecutor) Run(cmd *exec.Cmd) error {
	return cmd.Run()
}

func (realExecutor) Output(cmd *exec.Cmd) ([]byte, error) {
	return cmd.Output()
}

func (realExecutor) Start(cmd *exec.Cmd) error {
	return cmd.Start()
}

// MakeExecutor returns an Executor backed by os/exec.
func MakeExecutor() Executor {
	return realExecutor{}
}
