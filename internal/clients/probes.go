package clients

import (
	"github.com/sony/gobreaker"

	"arc-framework/pipestack/internal/config"
	"arc-framework/pipestack/internal/orchestrator"
)

// FromConfig builds one prober per entry, each with its own circuit breaker.
// Entries are assumed validated by config.Load.
func FromConfig(probes []config.ProbeConfig) []orchestrator.Prober {
	return fromConfig(probes, NewCircuitBreaker)
}

// ReadinessFromConfig builds the same probers without circuit breakers. A
// readiness poll expects early failures and must see the first success.
func ReadinessFromConfig(probes []config.ProbeConfig) []orchestrator.Prober {
	return fromConfig(probes, func(string) *gobreaker.CircuitBreaker { return nil })
}

func fromConfig(probes []config.ProbeConfig, breaker func(name string) *gobreaker.CircuitBreaker) []orchestrator.Prober {
	out := make([]orchestrator.Prober, 0, len(probes))
	for _, p := range probes {
		cb := breaker(p.Name)
		switch p.Kind {
		case config.ProbeHTTP:
			out = append(out, NewHTTPClient(p, cb))
		case config.ProbeRedis:
			out = append(out, NewRedisClient(p, cb))
		case config.ProbeNATS:
			out = append(out, NewNATSClient(p, cb))
		case config.ProbePostgres:
			out = append(out, NewPostgresURLClient(p.Name, p.URL, cb))
		}
	}
	return out
}
