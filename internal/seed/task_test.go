package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/pipestack/internal/envfile"
	"arc-framework/pipestack/internal/orchestrator"
	"arc-framework/pipestack/internal/runner"
)

type fakeRunner struct {
	got runner.Task
	err error
}

func (f *fakeRunner) Run(_ context.Context, task runner.Task) (runner.Result, error) {
	f.got = task
	return runner.Result{}, f.err
}

func TestTask_Seed(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	task := Task{Runner: r, Command: []string{"/usr/local/bin/pipestack", "seed"}, Dir: "/work"}
	env := envfile.FromMap(map[string]string{"SOURCE_DB_PORT": "5433"})

	require.NoError(t, task.Seed(context.Background(), env))
	assert.Equal(t, "seed", r.got.Name)
	assert.Equal(t, []string{"/usr/local/bin/pipestack", "seed"}, r.got.Args)
	assert.Equal(t, []string{"SOURCE_DB_PORT=5433"}, r.got.Env)
	assert.Equal(t, "/work", r.got.Dir)
	assert.False(t, r.got.Capture, "seed output is streamed to the operator")
}

func TestTask_SeedFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		err             error
		wantUnreachable bool
	}{
		{
			name:            "connect failure exit status",
			err:             &runner.ExitError{Task: "seed", Code: ExitUnreachable},
			wantUnreachable: true,
		},
		{
			name: "script error",
			err:  &runner.ExitError{Task: "seed", Code: 1},
		},
		{
			name: "command not found",
			err:  errors.New("seed: exec: \"python\": executable file not found"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := Task{Runner: &fakeRunner{err: tc.err}, Command: []string{"seed"}}.Seed(context.Background(), envfile.Env{})
			require.Error(t, err)
			assert.Equal(t, tc.wantUnreachable, errors.Is(err, orchestrator.ErrSourceUnreachable))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}
