package orchestrator

import "sync"

// Status values used across BootstrapResult and PhaseResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusWarn       = "warn"
	StatusInProgress = "in-progress"
	StatusSkipped    = "skipped"
)

// Step names, in execution order.
const (
	StepRuntime     = "runtime"
	StepEnvFile     = "envfile"
	StepEnvironment = "environment"
	StepServices    = "services"
	StepSettle      = "settle"
	StepStatus      = "status"
	StepSeed        = "seed"
)

// Steps lists every bootstrap step in the order it runs.
var Steps = []string{
	StepRuntime,
	StepEnvFile,
	StepEnvironment,
	StepServices,
	StepSettle,
	StepStatus,
	StepSeed,
}

// BootstrapResult is the aggregate result of a full bootstrap run.
// The mutex guards readers such as the HTTP API while a run is still
// appending phases.
type BootstrapResult struct {
	sync.Mutex
	RunID  string        `json:"run_id"`
	Status string        `json:"status"` // "ok", "error", "in-progress"
	Phases []PhaseResult `json:"phases"`
}

// PhaseResult represents the outcome of a single bootstrap step.
type PhaseResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "error", "warn", "skipped"
	Error  string `json:"error,omitempty"`
}

// Phase returns the named phase and whether it was recorded.
func (r *BootstrapResult) Phase(name string) (PhaseResult, bool) {
	r.Lock()
	defer r.Unlock()
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseResult{}, false
}

func (r *BootstrapResult) record(p PhaseResult) {
	r.Lock()
	r.Phases = append(r.Phases, p)
	r.Unlock()
}

// ProbeResult is returned by every health probe.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}
