package extraction

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rsamf/mink/internal/errors"
)

// maxStderrInError caps how much tool output ends up in an error message.
const maxStderrInError = 1024

// Executor runs an external tool and returns its captured output.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecFunc adapts a function to Executor.
type ExecFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

// Run calls f.
func (f ExecFunc) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return f(ctx, name, args...)
}

// commandExecutor runs tools with os/exec.
type commandExecutor struct{}

// NewExecutor returns the os/exec backed Executor.
func NewExecutor() Executor {
	return commandExecutor{}
}

func (commandExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // tool paths come from operator config

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.Bytes(), stderr.Bytes(), errors.New(ctx.Err()).
				Category(errors.CategoryCancellation).
				Context("command", name).
				Build()
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderrInError {
			msg = msg[len(msg)-maxStderrInError:]
		}
		return stdout.Bytes(), stderr.Bytes(), errors.New(err).
			Category(errors.CategoryCommandExecution).
			Context("command", name).
			Context("stderr", msg).
			Build()
	}

	return stdout.Bytes(), stderr.Bytes(), nil
}
