package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"arc-framework/pipestack/internal/config"
	"arc-framework/pipestack/internal/orchestrator"
)

// jsAccount is the subset of nats.JetStreamContext used by Probe.
type jsAccount interface {
	AccountInfo(opts ...nats.JSOpt) (*nats.AccountInfo, error)
}

// NATSClient probes a NATS server and, when enabled, its JetStream account.
type NATSClient struct {
	name  string
	url   string
	cb    *gobreaker.CircuitBreaker
	newJS func(url string) (jsAccount, func(), error)
}

// NewNATSClient constructs a NATSClient for a probes entry of kind nats.
// Connections are opened lazily inside Probe.
func NewNATSClient(p config.ProbeConfig, cb *gobreaker.CircuitBreaker) *NATSClient {
	return &NATSClient{
		name:  p.Name,
		url:   p.URL,
		cb:    cb,
		newJS: realNewJS,
	}
}

// Probe connects to NATS. A server without JetStream is still healthy.
func (c *NATSClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	return guarded(c.name, c.cb, func() error {
		js, cleanup, err := c.newJS(c.url)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		_, err = js.AccountInfo(nats.Context(ctx))
		if err != nil && !errors.Is(err, nats.ErrJetStreamNotEnabled) {
			return fmt.Errorf("account info: %w", err)
		}
		return nil
	})
}

// realNewJS opens a real NATS connection and returns a JetStreamContext plus a
// cleanup function that closes the connection.
func realNewJS(url string) (jsAccount, func(), error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, func() {}, fmt.Errorf("nats connect %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, func() {}, fmt.Errorf("nats jetstream context: %w", err)
	}

	return js, func() { nc.Close() }, nil
}
