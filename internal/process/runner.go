package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Command is a single external tool invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
}

// String renders the command as a shell line that reproduces the invocation.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	line := strings.Join(parts, " ")
	if c.Dir != "" {
		line = "cd " + quote(c.Dir) + " && " + line
	}
	return line
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n'\"\\$") {
		return strconv.Quote(s)
	}
	return s
}

// Runner abstracts command execution for testability.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// Failure is returned when a command exits non-zero, times out, or cannot be started.
type Failure struct {
	Command  Command
	ExitCode int // -1 when the process never ran to completion
	TimedOut bool
	Err      error // launch or wait error; nil for a plain non-zero exit
}

func (f *Failure) Error() string {
	switch {
	case f.TimedOut:
		return fmt.Sprintf("command timed out: %s", f.Command)
	case f.ExitCode >= 0 && f.Err == nil:
		return fmt.Sprintf("command exited with status %d: %s", f.ExitCode, f.Command)
	default:
		return fmt.Sprintf("command failed: %s: %v", f.Command, f.Err)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// ExecRunner implements Runner with os/exec. Output streams straight through.
type ExecRunner struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Timeout time.Duration // zero means no limit
}

// NewExecRunner returns a runner wired to the process's own stdout and stderr.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr, Timeout: timeout}
}

// Run starts c and waits for it. TimedOut is set only when the runner's own
// Timeout expired; a cancelled or expired caller context is reported with
// the context error as Err.
func (e *ExecRunner) Run(ctx context.Context, c Command) error {
	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &Failure{Command: c, ExitCode: -1, Err: err}
	}
	if e.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &Failure{Command: c, ExitCode: -1, TimedOut: true, Err: runCtx.Err()}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Killed by a signal.
			return &Failure{Command: c, ExitCode: -1, Err: err}
		}
		return &Failure{Command: c, ExitCode: code}
	}
	return &Failure{Command: c, ExitCode: -1, Err: err}
}
