package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"arc-framework/pipestack/internal/orchestrator"
	"arc-framework/pipestack/internal/telemetry"
)

// orchestratorService is the subset of *orchestrator.Orchestrator used by the
// HTTP handlers. Declaring it as an interface allows test doubles to be injected.
type orchestratorService interface {
	RunBootstrap(ctx context.Context) (*orchestrator.BootstrapResult, error)
	RunDeepHealth(ctx context.Context) map[string]orchestrator.ProbeResult
	IsReady() bool
	IsBootstrapInProgress() bool
	LastResult() *orchestrator.BootstrapResult
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	orchestrator     orchestratorService
	bootstrapTimeout time.Duration
}

// Bootstrap handles POST /api/v1/bootstrap.
// It returns 202 with the new run's id when a run is started in the
// background, or 409 if one is already in progress.
func (h *Handler) Bootstrap(c *gin.Context) {
	if h.orchestrator.IsBootstrapInProgress() {
		c.JSON(http.StatusConflict, gin.H{"status": orchestrator.StatusInProgress})
		return
	}
	runID := telemetry.NewRunID()
	c.Set(runIDKey, runID)
	go h.runBootstrap(runID)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "run_id": runID})
}

func (h *Handler) runBootstrap(runID string) {
	ctx := telemetry.WithRun(context.Background(), runID)
	if h.bootstrapTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.bootstrapTimeout)
		defer cancel()
	}
	_, err := h.orchestrator.RunBootstrap(ctx)
	switch {
	case errors.Is(err, orchestrator.ErrBootstrapInProgress):
		slog.InfoContext(ctx, "bootstrap request dropped, a run is already active")
	case err != nil:
		slog.WarnContext(ctx, "bootstrap run failed", "err", err, "exit_code", orchestrator.ExitCode(err))
	}
}

// Status handles GET /api/v1/status with the most recent completed run.
func (h *Handler) Status(c *gin.Context) {
	resp := gin.H{"in_progress": h.orchestrator.IsBootstrapInProgress()}
	if last := h.orchestrator.LastResult(); last != nil {
		last.Lock()
		resp["last"] = gin.H{
			"run_id": last.RunID,
			"status": last.Status,
			"phases": append([]orchestrator.PhaseResult(nil), last.Phases...),
		}
		last.Unlock()
	}
	c.JSON(http.StatusOK, resp)
}

// Health handles GET /health.
// It always returns 200; this is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It runs every configured probe and returns 200 only when all are OK.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.orchestrator.RunDeepHealth(c.Request.Context())

	allOK := true
	for _, p := range probes {
		if !p.OK {
			allOK = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready.
// It returns 200 only after a successful bootstrap; 503 otherwise.
func (h *Handler) Ready(c *gin.Context) {
	if h.orchestrator.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
