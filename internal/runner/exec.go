package runner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
)

// Command describes one external process invocation
type Command struct {
	Dir  string
	Name string
	Args []string
	Env  []string // appended to the current environment
}

// Executor runs external commands and returns their captured streams.
// A non-nil error means the command could not start or exited non-zero.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (stdout, stderr string, err error)
}

// ExecExecutor runs commands with os/exec
type ExecExecutor struct{}

// Execute implements Executor
func (ExecExecutor) Execute(ctx context.Context, c Command) (string, string, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
