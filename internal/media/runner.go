// Package media is the external tool layer: it invokes the fetch, probe and
// transcode binaries as opaque subprocesses and turns their exit-code and
// stderr contracts into typed errors for the pipeline.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrToolTimeout marks an external tool run that exceeded its hard wall-clock
// timeout. Callers treat it like any other tool failure, never a partial
// success.
var ErrToolTimeout = errors.New("external tool timed out")

// ToolError reports a non-zero exit from an external tool together with its
// captured stderr diagnostics.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "no diagnostic output"
	}
	return fmt.Sprintf("%s failed (exit %d): %s", e.Tool, e.ExitCode, msg)
}

// Command describes one subprocess invocation.
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// Result holds the captured output of a finished subprocess.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes external tool commands. The production implementation is
// ExecRunner; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands via os/exec with a hard timeout.
type ExecRunner struct{}

// Run executes cmd, capturing stdout and stderr. A deadline overrun maps to
// ErrToolTimeout; a non-zero exit maps to *ToolError carrying stderr text.
func (ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("%s: %w", cmd.Path, ErrToolTimeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ToolError{
			Tool:     cmd.Path,
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr.String(),
		}
	}
	return res, fmt.Errorf("run %s: %w", cmd.Path, err)
}
