package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"arc-framework/pipestack/internal/config"
	"arc-framework/pipestack/internal/orchestrator"
)

// HTTPClient probes a web endpoint such as the workflow orchestrator UI.
type HTTPClient struct {
	name   string
	url    string
	cb     *gobreaker.CircuitBreaker
	httpDo func(req *http.Request) (*http.Response, error)
}

// NewHTTPClient constructs an HTTPClient for a probes entry of kind http.
func NewHTTPClient(p config.ProbeConfig, cb *gobreaker.CircuitBreaker) *HTTPClient {
	return &HTTPClient{
		name:   p.Name,
		url:    p.URL,
		cb:     cb,
		httpDo: http.DefaultClient.Do,
	}
}

// Probe issues a GET and expects a 2xx response.
func (c *HTTPClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	return guarded(c.name, c.cb, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return fmt.Errorf("building probe request: %w", err)
		}

		resp, err := c.httpDo(req)
		if err != nil {
			return fmt.Errorf("probe request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("probe returned HTTP %d", resp.StatusCode)
		}
		return nil
	})
}
