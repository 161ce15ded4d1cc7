package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"arc-framework/pipestack/internal/envfile"
	"arc-framework/pipestack/internal/telemetry"
)

const tracerName = "pipestack"

// Operator-facing messages.
const (
	msgRuntimeDown = "Docker is not running. Please start Docker and try again."
	msgReady       = "Environment is ready."
)

// Deps are the collaborators of an Orchestrator. Source and Probers are
// optional; everything else is required.
type Deps struct {
	Runtime  RuntimeProber
	EnvFile  EnvProvisioner
	Services ServiceManager
	// Readiness builds the settle strategy once the environment is loaded.
	Readiness func(env envfile.Env) Waiter
	Source    SourceProber
	Seeder    Seeder
	// Probers are checked by RunDeepHealth.
	Probers []Prober
	// Out receives operator messages and the verbatim status table.
	Out io.Writer
	// Metrics defaults to instruments on the global meter provider.
	Metrics *telemetry.BootstrapMetrics
}

// Orchestrator runs the bootstrap sequence and health probes.
type Orchestrator struct {
	deps    Deps
	out     io.Writer
	metrics *telemetry.BootstrapMetrics

	bootstrapInProgress atomic.Bool
	lastResult          *BootstrapResult
	resultMu            sync.RWMutex
}

// New constructs an Orchestrator. A nil Out discards operator messages.
func New(d Deps) *Orchestrator {
	out := d.Out
	if out == nil {
		out = io.Discard
	}
	metrics := d.Metrics
	if metrics == nil {
		var err error
		if metrics, err = telemetry.NewBootstrapMetrics(otel.GetMeterProvider()); err != nil {
			slog.Warn("bootstrap metrics disabled", "err", err)
		}
	}
	return &Orchestrator{deps: d, out: out, metrics: metrics}
}

// run carries the state of one bootstrap invocation.
type run struct {
	o      *Orchestrator
	ctx    context.Context
	result *BootstrapResult
	env    envfile.Env
}

// RunBootstrap runs every step in order and stops at the first fatal
// failure. Remaining steps are recorded as skipped. The returned result is
// always non-nil unless ErrBootstrapInProgress is returned. The run id comes
// from ctx (telemetry.WithRun) or is generated.
func (o *Orchestrator) RunBootstrap(ctx context.Context) (*BootstrapResult, error) {
	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	defer o.bootstrapInProgress.Store(false)

	runID := telemetry.RunID(ctx)
	if runID == "" {
		runID = telemetry.NewRunID()
		ctx = telemetry.WithRun(ctx, runID)
	}
	result := &BootstrapResult{RunID: runID, Status: StatusInProgress}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipestack.bootstrap",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	slog.InfoContext(ctx, "bootstrap started")

	r := &run{o: o, ctx: ctx, result: result}
	steps := []struct {
		name string
		fn   func() error
	}{
		{StepRuntime, r.probeRuntime},
		{StepEnvFile, r.ensureEnvFile},
		{StepEnvironment, r.loadEnvironment},
		{StepServices, r.startServices},
		{StepSettle, r.settle},
		{StepStatus, r.reportStatus},
		{StepSeed, r.seed},
	}

	var fatal error
	for i, step := range steps {
		if err := r.step(step.name, step.fn); err != nil {
			fatal = err
			for _, rest := range steps[i+1:] {
				result.record(PhaseResult{Name: rest.name, Status: StatusSkipped})
			}
			break
		}
	}

	result.Lock()
	if fatal != nil {
		result.Status = StatusError
	} else {
		result.Status = StatusOK
	}
	status := result.Status
	result.Unlock()

	span.SetAttributes(attribute.String("bootstrap.status", status))
	o.metrics.RecordRun(ctx, status, ExitCode(fatal))
	if fatal != nil {
		span.RecordError(fatal)
		span.SetStatus(codes.Error, fatal.Error())
		slog.ErrorContext(ctx, "bootstrap failed", "err", fatal, "exit_code", ExitCode(fatal))
	} else {
		span.SetStatus(codes.Ok, "")
		o.printf("%s\n", msgReady)
		slog.InfoContext(ctx, "bootstrap completed", "status", status)
	}

	o.resultMu.Lock()
	o.lastResult = result
	o.resultMu.Unlock()

	return result, fatal
}

// step runs fn inside a span and records its phase. fn returns a *StepError
// for fatal failures; non-fatal outcomes record themselves.
func (r *run) step(name string, fn func() error) error {
	parent := r.ctx
	ctx, span := otel.Tracer(tracerName).Start(telemetry.WithStep(parent, name), "pipestack.step."+name,
		trace.WithAttributes(attribute.String("step", name)))
	r.ctx = ctx
	start := time.Now()
	defer func() {
		r.ctx = parent
		span.End()
	}()

	r.result.Lock()
	before := len(r.result.Phases)
	r.result.Unlock()

	err := fn()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.result.record(PhaseResult{Name: name, Status: StatusError, Error: err.Error()})
		r.o.metrics.RecordStep(ctx, name, StatusError, time.Since(start))
		slog.WarnContext(ctx, "bootstrap step failed", "error", err)
		return err
	}

	// A step that recorded its own phase (a warning) keeps that status.
	status := StatusOK
	r.result.Lock()
	recorded := len(r.result.Phases) > before
	if recorded {
		status = r.result.Phases[len(r.result.Phases)-1].Status
	}
	r.result.Unlock()
	if !recorded {
		r.result.record(PhaseResult{Name: name, Status: StatusOK})
	}
	r.o.metrics.RecordStep(ctx, name, status, time.Since(start))
	slog.InfoContext(ctx, "bootstrap step done", "status", status)
	return nil
}

func (r *run) probeRuntime() error {
	r.o.printf("Checking container runtime...\n")
	if err := r.o.deps.Runtime.Ping(r.ctx); err != nil {
		r.o.printf("%s\n", msgRuntimeDown)
		return &StepError{Step: StepRuntime, Kind: KindRuntimeUnavailable, Err: err}
	}
	r.o.printf("Container runtime is running.\n")
	return nil
}

func (r *run) ensureEnvFile() error {
	path, template := r.o.deps.EnvFile.Paths()
	created, err := r.o.deps.EnvFile.Ensure()
	if err != nil {
		return &StepError{Step: StepEnvFile, Kind: KindConfig, Err: err}
	}
	if created {
		r.o.printf("Created %s from %s\n", path, template)
	} else {
		r.o.printf("%s already exists\n", path)
	}
	return nil
}

func (r *run) loadEnvironment() error {
	env, err := r.o.deps.EnvFile.Load()
	if err != nil {
		return &StepError{Step: StepEnvironment, Kind: KindConfig, Err: err}
	}
	r.env = env
	slog.InfoContext(r.ctx, "environment loaded", "vars", env.Len())
	return nil
}

func (r *run) startServices() error {
	r.o.printf("Starting services...\n")
	if err := r.o.deps.Services.Up(r.ctx, r.env); err != nil {
		return &StepError{Step: StepServices, Kind: KindServicesStart, Err: err}
	}
	return nil
}

func (r *run) settle() error {
	if r.o.deps.Readiness == nil {
		return nil
	}
	r.o.printf("Waiting for services to initialize...\n")
	if err := r.o.deps.Readiness(r.env).Wait(r.ctx); err != nil {
		return &StepError{Step: StepSettle, Kind: KindNotReady, Err: err}
	}
	return nil
}

// reportStatus never fails the run; a failed query is recorded as a warning.
func (r *run) reportStatus() error {
	r.o.printf("Service status:\n")
	out, err := r.o.deps.Services.Status(r.ctx, r.env)
	if out != "" {
		r.o.printf("%s", out)
		if !strings.HasSuffix(out, "\n") {
			r.o.printf("\n")
		}
	}
	if err != nil {
		r.o.printf("Warning: could not query service status: %v\n", err)
		slog.WarnContext(r.ctx, "status query failed", "error", err)
		r.result.record(PhaseResult{Name: StepStatus, Status: StatusWarn, Error: err.Error()})
	}
	return nil
}

func (r *run) seed() error {
	if r.o.deps.Source != nil {
		probe := r.o.deps.Source.ProbeSource(r.ctx, r.env)
		if !probe.OK {
			r.o.printf("Could not reach the source database: %s\n", probe.Error)
			return &StepError{
				Step: StepSeed,
				Kind: KindSourceUnreachable,
				Err:  fmt.Errorf("%w: %s", ErrSourceUnreachable, probe.Error),
			}
		}
	}

	r.o.printf("Seeding source database...\n")
	err := r.o.deps.Seeder.Seed(r.ctx, r.env)
	switch {
	case err == nil:
		r.o.printf("Source database seeded.\n")
		return nil
	case errors.Is(err, ErrSourceUnreachable):
		r.o.printf("Could not reach the source database.\n")
		return &StepError{Step: StepSeed, Kind: KindSourceUnreachable, Err: err}
	default:
		r.o.printf("Seeding script failed.\n")
		return &StepError{Step: StepSeed, Kind: KindSeedFailed, Err: err}
	}
}

func (o *Orchestrator) printf(format string, args ...any) {
	fmt.Fprintf(o.out, format, args...)
}

// RunDeepHealth probes every configured prober concurrently and returns a
// map of probe name to ProbeResult.
func (o *Orchestrator) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	results := make(map[string]ProbeResult, len(o.deps.Probers))
	var mu sync.Mutex
	var g errgroup.Group

	for _, p := range o.deps.Probers {
		g.Go(func() error {
			probe := p.Probe(ctx)
			mu.Lock()
			results[probe.Name] = probe
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// IsBootstrapInProgress returns true while a bootstrap run is active.
func (o *Orchestrator) IsBootstrapInProgress() bool {
	return o.bootstrapInProgress.Load()
}

// IsReady returns true if the last bootstrap completed with StatusOK.
func (o *Orchestrator) IsReady() bool {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult != nil && o.lastResult.Status == StatusOK
}

// LastResult returns the most recent completed bootstrap, or nil.
func (o *Orchestrator) LastResult() *BootstrapResult {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult
}
