// Package runner executes the external commands the bootstrap delegates to:
// the compose tool and the seed task.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"al.essio.dev/pkg/shellescape"
)

// Task describes one command invocation.
type Task struct {
	// Name labels the task in logs and errors.
	Name string
	Args []string
	// Env is appended to the parent environment; later entries win.
	Env []string
	Dir string
	// Capture suppresses streaming; output is only returned in Result.
	Capture bool
}

// CommandLine renders Args as a shell-quoted string.
func (t Task) CommandLine() string {
	return shellescape.QuoteCommand(t.Args)
}

// Result is the uniform outcome of a task.
type Result struct {
	ExitCode int
	Output   []byte
}

// ExitError is returned when a task ran but exited non-zero.
type ExitError struct {
	Task string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Task, e.Code)
}

// Runner runs tasks. Run returns a nil error only for a zero exit status.
type Runner interface {
	Run(ctx context.Context, task Task) (Result, error)
}

// ExecRunner runs tasks as child processes.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner streams child output to the process's own stdout/stderr.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run starts task and waits for it. Combined output is always captured.
func (r *ExecRunner) Run(ctx context.Context, task Task) (Result, error) {
	if len(task.Args) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("%s: empty command", task.Name)
	}

	cmd := exec.CommandContext(ctx, task.Args[0], task.Args[1:]...)
	cmd.Dir = task.Dir
	cmd.Env = append(os.Environ(), task.Env...)

	buf := &syncBuffer{}
	stdout, stderr := io.Writer(buf), io.Writer(buf)
	if !task.Capture {
		if r.Stdout != nil {
			stdout = io.MultiWriter(buf, r.Stdout)
		}
		if r.Stderr != nil {
			stderr = io.MultiWriter(buf, r.Stderr)
		}
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	slog.DebugContext(ctx, "running task", "task", task.Name, "cmd", task.CommandLine(), "dir", task.Dir)

	err := cmd.Run()
	res := Result{ExitCode: cmd.ProcessState.ExitCode(), Output: buf.Bytes()}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s: %w", task.Name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Task: task.Name, Code: res.ExitCode}
	}
	return Result{ExitCode: -1, Output: buf.Bytes()}, fmt.Errorf("%s: running %s: %w", task.Name, task.CommandLine(), err)
}

// syncBuffer collects stdout and stderr, which exec copies from separate
// goroutines once they are distinct writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
