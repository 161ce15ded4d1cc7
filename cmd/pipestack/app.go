package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"arc-framework/pipestack/internal/api"
	"arc-framework/pipestack/internal/clients"
	"arc-framework/pipestack/internal/config"
	"arc-framework/pipestack/internal/docker"
	"arc-framework/pipestack/internal/envfile"
	"arc-framework/pipestack/internal/orchestrator"
	"arc-framework/pipestack/internal/ready"
	"arc-framework/pipestack/internal/runner"
	"arc-framework/pipestack/internal/seed"
	"arc-framework/pipestack/internal/telemetry"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	envFile      envfile.File
	compose      *docker.Compose
	source       *clients.PostgresClient
	orchestrator *orchestrator.Orchestrator
	router       *api.Router
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Resolves project paths against the working directory
//  3. Creates the runtime, compose, database and extra probe clients
//  4. Creates the orchestrator and the HTTP router
//
// Nothing here opens a connection.
func buildAppContext(cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	// With no endpoint, telemetry stays off and the global no-op providers apply.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Debug("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(context.Background(), cfg.Telemetry)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
		}
	}

	dir := cfg.Paths.Workdir
	if dir == "" {
		dir = "."
	}
	app.envFile = envfile.File{
		Path:     filepath.Join(dir, cfg.Paths.EnvFile),
		Template: filepath.Join(dir, cfg.Paths.EnvTemplate),
	}

	exec := runner.NewExecRunner()
	runtime := docker.NewRuntime()
	app.compose = docker.NewCompose(exec, runtime, cfg.Compose.Command, dir, cfg.Paths.ComposeFile, cfg.Compose.Project)

	// Each database trips independently.
	app.source = clients.NewPostgresClient(clients.SourceProbeName, cfg.Source, "SOURCE_DB",
		clients.NewCircuitBreaker(clients.SourceProbeName))
	warehouse := clients.NewPostgresClient(clients.WarehouseProbeName, cfg.Warehouse, "DWH_DB",
		clients.NewCircuitBreaker(clients.WarehouseProbeName))
	extra := clients.FromConfig(cfg.Probes)

	seedCommand, err := seedCommand(cfg)
	if err != nil {
		return nil, err
	}

	probers := append([]orchestrator.Prober{runtime, app.source, warehouse}, extra...)

	app.orchestrator = orchestrator.New(orchestrator.Deps{
		Runtime:   runtime,
		EnvFile:   app.envFile,
		Services:  app.compose,
		Readiness: readiness(cfg.Bootstrap, app.compose, app.source, clients.ReadinessFromConfig(cfg.Probes)),
		Source:    app.source,
		Seeder:    seed.Task{Runner: exec, Command: seedCommand, Dir: dir},
		Probers:   probers,
		Out:       os.Stdout,
	})
	app.router = api.NewRouter(app.orchestrator, cfg.Telemetry.ServiceName, cfg.Bootstrap.Timeout)

	return app, nil
}

// seedCommand is the configured seed command or this binary's seed
// subcommand with the same config file.
func seedCommand(cfg *config.Config) ([]string, error) {
	if len(cfg.Seed.Command) > 0 {
		return cfg.Seed.Command, nil
	}
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating seed command: %w", err)
	}
	cmd := []string{self, "seed"}
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("resolving config path: %w", err)
		}
		cmd = append(cmd, "--config", abs)
	}
	return cmd, nil
}

// readiness selects the settle strategy. The poll strategy waits for the
// compose services, the source database as addressed by .env, and every
// extra probe. extra must be built without circuit breakers.
func readiness(b config.BootstrapConfig, compose *docker.Compose, source *clients.PostgresClient, extra []orchestrator.Prober) func(envfile.Env) orchestrator.Waiter {
	if b.Readiness.Strategy != config.ReadinessPoll {
		return func(envfile.Env) orchestrator.Waiter {
			return ready.FixedDelay{Duration: b.SettleDelay}
		}
	}
	return func(env envfile.Env) orchestrator.Waiter {
		probes := append(ready.Probes{sourceProbe{source: source, env: env}}, extra...)
		return ready.Poll{
			Checker:         ready.All{ready.Compose{Lister: compose}, probes},
			Timeout:         b.Readiness.Timeout,
			InitialInterval: b.Readiness.InitialInterval,
			MaxInterval:     b.Readiness.MaxInterval,
		}
	}
}

// sourceProbe binds the loaded environment to the source database probe.
type sourceProbe struct {
	source *clients.PostgresClient
	env    envfile.Env
}

func (p sourceProbe) Probe(ctx context.Context) orchestrator.ProbeResult {
	return p.source.ProbeSource(ctx, p.env)
}

// Close flushes telemetry and releases the log file.
func (a *AppContext) Close() {
	if a.otelProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelProvider.Shutdown(ctx); err != nil {
			slog.Warn("OTEL shutdown error", "err", err)
		}
	}
	if err := logCloser(); err != nil {
		fmt.Fprintf(os.Stderr, "closing log file: %v\n", err)
	}
}
