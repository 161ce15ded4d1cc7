package docker

import (
	"context"
	"errors"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/pipestack/internal/envfile"
	"arc-framework/pipestack/internal/runner"
)

// fakeRunner records every task and replays a canned result.
type fakeRunner struct {
	tasks  []runner.Task
	result runner.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, task runner.Task) (runner.Result, error) {
	f.tasks = append(f.tasks, task)
	return f.result, f.err
}

type fakeContainerAPI struct {
	list       []types.Container
	listErr    error
	health     map[string]string
	inspectErr error
	gotFilter  string
}

func (f *fakeContainerAPI) ContainerList(_ context.Context, opts container.ListOptions) ([]types.Container, error) {
	f.gotFilter = opts.Filters.Get("label")[0]
	return f.list, f.listErr
}

func (f *fakeContainerAPI) ContainerInspect(_ context.Context, id string) (types.ContainerJSON, error) {
	if f.inspectErr != nil {
		return types.ContainerJSON{}, f.inspectErr
	}
	state := &types.ContainerState{}
	if h, ok := f.health[id]; ok {
		state.Health = &types.Health{Status: h}
	}
	return types.ContainerJSON{ContainerJSONBase: &types.ContainerJSONBase{ID: id, State: state}}, nil
}

func newTestCompose(r runner.Runner, api containerAPI) *Compose {
	c := NewCompose(r, nil, []string{"docker", "compose"}, "/work/mage-etl", "docker-compose.yml", "")
	c.api = func() (containerAPI, error) { return api, nil }
	return c
}

func TestCompose_Up(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	c := newTestCompose(r, nil)
	env := envfile.FromMap(map[string]string{"SOURCE_DB_PORT": "5433"})

	require.NoError(t, c.Up(context.Background(), env))

	require.Len(t, r.tasks, 1)
	task := r.tasks[0]
	assert.Equal(t, []string{"docker", "compose", "-f", "docker-compose.yml", "-p", "mage-etl", "up", "-d"}, task.Args)
	assert.Equal(t, []string{"SOURCE_DB_PORT=5433"}, task.Env)
	assert.Equal(t, "/work/mage-etl", task.Dir)
	assert.False(t, task.Capture, "compose up output is streamed to the operator")
}

func TestCompose_UpFailure(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{err: &runner.ExitError{Task: "compose up", Code: 1}}
	c := newTestCompose(r, nil)

	err := c.Up(context.Background(), envfile.Env{})
	require.Error(t, err)

	var exitErr *runner.ExitError
	assert.True(t, errors.As(err, &exitErr))
}

func TestCompose_Status(t *testing.T) {
	t.Parallel()

	table := "NAME  IMAGE  STATUS\nsrc   postgres  Up\n"
	r := &fakeRunner{result: runner.Result{Output: []byte(table)}}
	c := newTestCompose(r, nil)

	out, err := c.Status(context.Background(), envfile.Env{})
	require.NoError(t, err)
	assert.Equal(t, table, out)

	require.Len(t, r.tasks, 1)
	assert.True(t, r.tasks[0].Capture)
	assert.Equal(t, []string{"ps", "--all"}, r.tasks[0].Args[len(r.tasks[0].Args)-2:])
}

func TestCompose_StatusFailureKeepsOutput(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{
		result: runner.Result{ExitCode: 1, Output: []byte("no configuration file provided")},
		err:    &runner.ExitError{Task: "compose ps", Code: 1},
	}
	c := newTestCompose(r, nil)

	out, err := c.Status(context.Background(), envfile.Env{})
	require.Error(t, err)
	assert.Contains(t, out, "no configuration file")
}

func TestCompose_Services(t *testing.T) {
	t.Parallel()

	api := &fakeContainerAPI{
		list: []types.Container{
			{ID: "b", Names: []string{"/mage-etl-postgres-source-1"}, State: "running", Labels: map[string]string{serviceLabel: "postgres-source"}},
			{ID: "a", Names: []string{"/mage-etl-magic-1"}, State: "running", Labels: map[string]string{serviceLabel: "magic"}},
		},
		health: map[string]string{"b": "healthy"},
	}
	c := newTestCompose(&fakeRunner{}, api)

	states, err := c.Services(context.Background())
	require.NoError(t, err)

	assert.Equal(t, projectLabel+"=mage-etl", api.gotFilter)
	assert.Equal(t, []ServiceState{
		{Service: "magic", Container: "mage-etl-magic-1", State: "running"},
		{Service: "postgres-source", Container: "mage-etl-postgres-source-1", State: "running", Health: "healthy"},
	}, states)
}

func TestCompose_ServicesErrors(t *testing.T) {
	t.Parallel()

	t.Run("list", func(t *testing.T) {
		t.Parallel()
		c := newTestCompose(&fakeRunner{}, &fakeContainerAPI{listErr: errors.New("daemon gone")})
		_, err := c.Services(context.Background())
		assert.ErrorContains(t, err, "daemon gone")
	})

	t.Run("inspect", func(t *testing.T) {
		t.Parallel()
		c := newTestCompose(&fakeRunner{}, &fakeContainerAPI{
			list:       []types.Container{{ID: "abc", State: "running"}},
			inspectErr: errors.New("no such container"),
		})
		_, err := c.Services(context.Background())
		assert.ErrorContains(t, err, "no such container")
	})

	t.Run("client", func(t *testing.T) {
		t.Parallel()
		c := newTestCompose(&fakeRunner{}, nil)
		c.api = func() (containerAPI, error) { return nil, errors.New("bad DOCKER_HOST") }
		_, err := c.Services(context.Background())
		assert.ErrorContains(t, err, "bad DOCKER_HOST")
	})
}

func TestProjectName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dir  string
		want string
	}{
		{dir: "/work/mage-etl-pipeline", want: "mage-etl-pipeline"},
		{dir: "/work/Mage ETL.Pipeline", want: "mageetlpipeline"},
		{dir: "/work/__x", want: "x"},
		{dir: "/work/...", want: "pipestack"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ProjectName(tc.dir), tc.dir)
	}
}

func TestCompose_ExplicitProject(t *testing.T) {
	t.Parallel()

	c := NewCompose(&fakeRunner{}, NewRuntime(), []string{"docker-compose"}, ".", "compose.yml", "etl")
	assert.Equal(t, "etl", c.Project())
}
