// Package docker talks to the container runtime and the compose tool that
// owns the pipeline's service set.
package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"

	"arc-framework/pipestack/internal/orchestrator"
)

const runtimeProbeName = "docker"

type pinger interface {
	Ping(ctx context.Context) (types.Ping, error)
}

// Runtime owns the Docker API client used by pipestack. The client is built
// on first use and shared with Compose.
type Runtime struct {
	client func() (*client.Client, error)
	pinger func() (pinger, error)
}

// NewRuntime returns a Runtime resolving the daemon from DOCKER_HOST or the
// first socket found by socketCandidates.
func NewRuntime() *Runtime {
	connect := sync.OnceValues(func() (*client.Client, error) {
		return newClient(os.Getenv("DOCKER_HOST"), socketCandidates())
	})
	return &Runtime{
		client: connect,
		pinger: func() (pinger, error) { return connect() },
	}
}

// Client returns the shared API client. Callers must not Close it.
func (r *Runtime) Client() (*client.Client, error) {
	return r.client()
}

// Ping returns nil when the daemon is reachable.
func (r *Runtime) Ping(ctx context.Context) error {
	cli, err := r.pinger()
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		return fmt.Errorf("cannot connect to Docker daemon: %w", err)
	}
	return nil
}

// Probe reports daemon reachability for deep health.
func (r *Runtime) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()
	err := r.Ping(ctx)
	res := orchestrator.ProbeResult{
		Name:      runtimeProbeName,
		OK:        err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// newClient prefers an explicit DOCKER_HOST. Without one it picks the first
// existing socket so Docker Desktop, Colima and rootless daemons work.
func newClient(dockerHost string, sockets []string) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if dockerHost == "" {
		if sock := firstExisting(sockets); sock != "" {
			opts = append(opts, client.WithHost("unix://"+sock))
		}
	}
	return client.NewClientWithOpts(opts...)
}

// socketCandidates lists daemon sockets in lookup order.
func socketCandidates() []string {
	candidates := []string{"/var/run/docker.sock"}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "docker.sock"))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		candidates = append(candidates,
			filepath.Join(home, ".docker", "run", "docker.sock"),
			filepath.Join(home, ".colima", "default", "docker.sock"),
		)
	}
	return candidates
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
