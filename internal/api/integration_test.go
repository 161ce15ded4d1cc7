package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/pipestack/internal/envfile"
	"arc-framework/pipestack/internal/orchestrator"
)

// --- Mock collaborators ---

type okRuntime struct{}

func (okRuntime) Ping(context.Context) error { return nil }

type existingEnvFile struct{}

func (existingEnvFile) Ensure() (bool, error)      { return false, nil }
func (existingEnvFile) Load() (envfile.Env, error) { return envfile.Env{}, nil }
func (existingEnvFile) Paths() (string, string)    { return ".env", ".env.example" }

type okServices struct{}

func (okServices) Up(context.Context, envfile.Env) error { return nil }
func (okServices) Status(context.Context, envfile.Env) (string, error) {
	return "NAME STATUS\n", nil
}

type okSeeder struct{}

func (okSeeder) Seed(context.Context, envfile.Env) error { return nil }

type okProber struct{ name string }

func (p okProber) Probe(context.Context) orchestrator.ProbeResult {
	return orchestrator.ProbeResult{Name: p.name, OK: true, LatencyMs: 1}
}

// --- Integration test ---

// TestBootstrapFlow_202ThenReady verifies the full bootstrap happy-path:
//  1. POST /api/v1/bootstrap → 202 Accepted
//  2. GET /ready eventually → 200 OK once background bootstrap completes
//  3. GET /api/v1/status reports every step ok
func TestBootstrapFlow_202ThenReady(t *testing.T) {
	t.Parallel()

	o := orchestrator.New(orchestrator.Deps{
		Runtime:  okRuntime{},
		EnvFile:  existingEnvFile{},
		Services: okServices{},
		Seeder:   okSeeder{},
		Probers:  []orchestrator.Prober{okProber{name: "docker"}},
	})

	router := NewRouter(o, "pipestack-test", time.Minute)
	srv := httptest.NewServer(router.Handler())
	defer srv.Close()

	client := srv.Client()

	resp, err := client.Post(srv.URL+"/api/v1/bootstrap", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode, "bootstrap should return 202 Accepted")

	var bootstrapBody map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&bootstrapBody))
	assert.Equal(t, "accepted", bootstrapBody["status"])

	// Bootstrap runs in a background goroutine.
	deadline := time.Now().Add(5 * time.Second)
	var lastCode int
	for time.Now().Before(deadline) {
		r, err := client.Get(srv.URL + "/ready")
		require.NoError(t, err)
		r.Body.Close()

		lastCode = r.StatusCode
		if lastCode == http.StatusOK {
			break
		}

		time.Sleep(50 * time.Millisecond)
	}

	assert.Equal(t, http.StatusOK, lastCode, "GET /ready should return 200 after bootstrap completes")

	r, err := client.Get(srv.URL + "/api/v1/status")
	require.NoError(t, err)
	defer r.Body.Close()

	var status struct {
		Last struct {
			Status string                     `json:"status"`
			Phases []orchestrator.PhaseResult `json:"phases"`
		} `json:"last"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&status))
	assert.Equal(t, orchestrator.StatusOK, status.Last.Status)
	assert.Len(t, status.Last.Phases, len(orchestrator.Steps))

	r2, err := client.Get(srv.URL + "/health/deep")
	require.NoError(t, err)
	r2.Body.Close()
	assert.Equal(t, http.StatusOK, r2.StatusCode)
}
