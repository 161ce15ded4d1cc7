// Package orchestrator takes the local pipeline environment from "nothing
// running" to "services up and source data present".
//
// A bootstrap run is strictly sequential: probe the container runtime,
// ensure the environment file, load it, start the service set, wait for it,
// print its status, then seed the source database. Every step runs at most
// once per run; there are no retries. Fatal failures stop the run and are
// reported as a *StepError whose Kind selects the process exit code.
package orchestrator

import (
	"context"

	"arc-framework/pipestack/internal/envfile"
)

// RuntimeProber is satisfied by *docker.Runtime.
type RuntimeProber interface {
	Ping(ctx context.Context) error
}

// EnvProvisioner is satisfied by envfile.File.
type EnvProvisioner interface {
	Ensure() (created bool, err error)
	Load() (envfile.Env, error)
	Paths() (path, template string)
}

// ServiceManager is satisfied by *docker.Compose.
type ServiceManager interface {
	Up(ctx context.Context, env envfile.Env) error
	Status(ctx context.Context, env envfile.Env) (string, error)
}

// Waiter blocks until the service set is considered ready.
type Waiter interface {
	Wait(ctx context.Context) error
}

// WaiterFunc adapts a function to Waiter.
type WaiterFunc func(ctx context.Context) error

func (f WaiterFunc) Wait(ctx context.Context) error { return f(ctx) }

// SourceProber checks the source database using the loaded environment.
type SourceProber interface {
	ProbeSource(ctx context.Context, env envfile.Env) ProbeResult
}

// Seeder runs the one-shot seed task. An error wrapping ErrSourceUnreachable
// means the task could not connect; any other error is a seeding failure.
type Seeder interface {
	Seed(ctx context.Context, env envfile.Env) error
}

// Prober is a named health check used by RunDeepHealth.
type Prober interface {
	Probe(ctx context.Context) ProbeResult
}
