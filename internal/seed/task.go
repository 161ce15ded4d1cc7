package seed

import (
	"context"
	"errors"
	"fmt"

	"arc-framework/pipestack/internal/envfile"
	"arc-framework/pipestack/internal/orchestrator"
	"arc-framework/pipestack/internal/runner"
)

// Task runs the seed command as a child process with the loaded environment
// appended to its own.
type Task struct {
	Runner  runner.Runner
	Command []string
	Dir     string
}

// Seed implements orchestrator.Seeder. An exit status of ExitUnreachable is
// reported as orchestrator.ErrSourceUnreachable.
func (t Task) Seed(ctx context.Context, env envfile.Env) error {
	_, err := t.Runner.Run(ctx, runner.Task{
		Name: "seed",
		Args: t.Command,
		Env:  env.Environ(),
		Dir:  t.Dir,
	})
	if err == nil {
		return nil
	}

	var exitErr *runner.ExitError
	if errors.As(err, &exitErr) && exitErr.Code == ExitUnreachable {
		return fmt.Errorf("%w: %w", orchestrator.ErrSourceUnreachable, err)
	}
	return fmt.Errorf("seed task: %w", err)
}

// ExitCode maps a Run error to the seed command's exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUnreachable):
		return ExitUnreachable
	default:
		return 1
	}
}
