package docker

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"arc-framework/pipestack/internal/envfile"
	"arc-framework/pipestack/internal/runner"
)

// Labels set by docker compose on every container it creates.
const (
	projectLabel = "com.docker.compose.project"
	serviceLabel = "com.docker.compose.service"
)

var nonProjectChars = regexp.MustCompile(`[^a-z0-9_-]`)

// ServiceState is the runtime state of one compose service container.
type ServiceState struct {
	Service   string
	Container string
	// State is the container state: created, running, restarting, exited, dead...
	State string
	// Health is the healthcheck status, empty when the service declares none.
	Health string
}

type containerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
}

// Compose drives the service set declared in a compose file.
type Compose struct {
	run     runner.Runner
	command []string
	file    string
	project string
	dir     string
	api     func() (containerAPI, error)
}

// NewCompose builds a Compose for file inside dir. command is the compose
// entry point (e.g. docker compose). An empty project is derived from dir the
// same way compose does it. Services lists containers through rt's client.
func NewCompose(r runner.Runner, rt *Runtime, command []string, dir, file, project string) *Compose {
	if project == "" {
		project = ProjectName(dir)
	}
	return &Compose{
		run:     r,
		command: command,
		file:    file,
		project: project,
		dir:     dir,
		api:     func() (containerAPI, error) { return rt.Client() },
	}
}

// Project is the compose project name used for every command.
func (c *Compose) Project() string { return c.project }

// Up starts the service set detached.
func (c *Compose) Up(ctx context.Context, env envfile.Env) error {
	_, err := c.run.Run(ctx, c.task("compose up", env, false, "up", "-d"))
	if err != nil {
		return fmt.Errorf("starting services: %w", err)
	}
	return nil
}

// Status returns the compose ps table verbatim.
func (c *Compose) Status(ctx context.Context, env envfile.Env) (string, error) {
	res, err := c.run.Run(ctx, c.task("compose ps", env, true, "ps", "--all"))
	if err != nil {
		return string(res.Output), fmt.Errorf("querying service status: %w", err)
	}
	return string(res.Output), nil
}

// Services lists the project's containers and their health through the
// Docker API. Order is by service name.
func (c *Compose) Services(ctx context.Context) ([]ServiceState, error) {
	api, err := c.api()
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}

	list, err := api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", projectLabel+"="+c.project)),
	})
	if err != nil {
		return nil, fmt.Errorf("listing containers for project %s: %w", c.project, err)
	}

	states := make([]ServiceState, 0, len(list))
	for _, ctr := range list {
		st := ServiceState{
			Service:   ctr.Labels[serviceLabel],
			Container: containerName(ctr),
			State:     ctr.State,
		}
		inspect, err := api.ContainerInspect(ctx, ctr.ID)
		if err != nil {
			return nil, fmt.Errorf("inspecting %s: %w", st.Container, err)
		}
		if inspect.ContainerJSONBase != nil && inspect.State != nil && inspect.State.Health != nil {
			st.Health = inspect.State.Health.Status
		}
		states = append(states, st)
	}

	sort.Slice(states, func(i, j int) bool { return states[i].Service < states[j].Service })
	return states, nil
}

func (c *Compose) task(name string, env envfile.Env, capture bool, args ...string) runner.Task {
	full := make([]string, 0, len(c.command)+4+len(args))
	full = append(full, c.command...)
	full = append(full, "-f", c.file, "-p", c.project)
	full = append(full, args...)
	return runner.Task{
		Name:    name,
		Args:    full,
		Env:     env.Environ(),
		Dir:     c.dir,
		Capture: capture,
	}
}

// ProjectName derives the default compose project name from a directory:
// the lowercased base name with characters compose rejects removed.
func ProjectName(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	name := nonProjectChars.ReplaceAllString(strings.ToLower(filepath.Base(abs)), "")
	name = strings.TrimLeft(name, "_-")
	if name == "" {
		return "pipestack"
	}
	return name
}

func containerName(ctr types.Container) string {
	if len(ctr.Names) > 0 {
		return strings.TrimPrefix(ctr.Names[0], "/")
	}
	if len(ctr.ID) > 12 {
		return ctr.ID[:12]
	}
	return ctr.ID
}
