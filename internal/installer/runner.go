package installer

import (
	"context"
	"errors"
	"os/exec"

	"go.uber.org/zap"
)

// CommandRunner launches an installer process synchronously and returns its
// exit code. An error is returned only when the process could not be
// launched at all.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string) (int, error)
}

// ExecRunner runs the installer through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	zap.S().Named("installer").Errorw("failed to launch installer", "command", name, "error", err)
	return -1, err
}
