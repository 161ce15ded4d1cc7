package runner

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Success(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	r := &ExecRunner{Stdout: &out, Stderr: &out}

	res, err := r.Run(context.Background(), Task{
		Name: "echo",
		Args: []string{"sh", "-c", "echo hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", string(res.Output))
	assert.Equal(t, "hello\n", out.String(), "output is streamed")
}

func TestExecRunner_CaptureDoesNotStream(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	r := &ExecRunner{Stdout: &out, Stderr: &out}

	res, err := r.Run(context.Background(), Task{
		Name:    "ps",
		Args:    []string{"sh", "-c", "echo status"},
		Capture: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "status\n", string(res.Output))
	assert.Empty(t, out.String())
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	t.Parallel()

	r := &ExecRunner{}

	res, err := r.Run(context.Background(), Task{
		Name: "seed",
		Args: []string{"sh", "-c", "echo boom >&2; exit 3"},
	})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, "seed", exitErr.Task)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "boom\n", string(res.Output))
}

func TestExecRunner_EnvIsAppended(t *testing.T) {
	t.Parallel()

	r := &ExecRunner{}

	res, err := r.Run(context.Background(), Task{
		Name:    "env",
		Args:    []string{"sh", "-c", `printf %s "$PIPESTACK_TEST_VALUE"`},
		Env:     []string{"PIPESTACK_TEST_VALUE=from-env-file"},
		Capture: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "from-env-file", string(res.Output))
}

func TestExecRunner_Dir(t *testing.T) {
	t.Parallel()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	r := &ExecRunner{}

	res, err := r.Run(context.Background(), Task{
		Name:    "pwd",
		Args:    []string{"sh", "-c", "pwd -P"},
		Dir:     dir,
		Capture: true,
	})
	require.NoError(t, err)
	assert.Equal(t, dir+"\n", string(res.Output))
}

func TestExecRunner_CommandNotFound(t *testing.T) {
	t.Parallel()

	r := &ExecRunner{}

	res, err := r.Run(context.Background(), Task{
		Name: "missing",
		Args: []string{"pipestack-no-such-binary-xyz"},
	})
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)

	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr), "a start failure is not an exit status")
}

func TestExecRunner_EmptyCommand(t *testing.T) {
	t.Parallel()

	_, err := (&ExecRunner{}).Run(context.Background(), Task{Name: "nothing"})
	assert.ErrorContains(t, err, "empty command")
}

func TestExecRunner_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := (&ExecRunner{}).Run(ctx, Task{Name: "sleep", Args: []string{"sleep", "5"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTask_CommandLine(t *testing.T) {
	t.Parallel()

	task := Task{Args: []string{"docker", "compose", "-f", "my file.yml", "up", "-d"}}
	assert.Equal(t, `docker compose -f 'my file.yml' up -d`, task.CommandLine())
}
