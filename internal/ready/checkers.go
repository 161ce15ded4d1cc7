package ready

import (
	"context"
	"fmt"
	"strings"

	"arc-framework/pipestack/internal/docker"
	"arc-framework/pipestack/internal/orchestrator"
)

// ServiceLister is satisfied by *docker.Compose.
type ServiceLister interface {
	Services(ctx context.Context) ([]docker.ServiceState, error)
}

// Compose is ready when every service of the project is running and every
// declared healthcheck reports healthy. An exited, dead or unhealthy service
// is terminal.
type Compose struct {
	Lister ServiceLister
	// Expected is the minimum number of services; zero means "at least one".
	Expected int
}

func (c Compose) CheckReady(ctx context.Context) (bool, error) {
	services, err := c.Lister.Services(ctx)
	if err != nil {
		return false, err
	}

	want := c.Expected
	if want <= 0 {
		want = 1
	}
	if len(services) < want {
		return false, nil
	}

	ready := true
	for _, s := range services {
		switch s.State {
		case "exited", "dead":
			return false, Terminal(fmt.Errorf("service %s is %s", s.Service, s.State))
		case "running":
		default:
			ready = false
			continue
		}
		switch s.Health {
		case "", "healthy":
		case "unhealthy":
			return false, Terminal(fmt.Errorf("service %s is unhealthy", s.Service))
		default:
			ready = false
		}
	}
	return ready, nil
}

// Probes is ready when every prober reports OK.
type Probes []orchestrator.Prober

func (p Probes) CheckReady(ctx context.Context) (bool, error) {
	var failing []string
	for _, pr := range p {
		res := pr.Probe(ctx)
		if !res.OK {
			failing = append(failing, fmt.Sprintf("%s: %s", res.Name, res.Error))
		}
	}
	if len(failing) > 0 {
		return false, fmt.Errorf("probes failing: %s", strings.Join(failing, "; "))
	}
	return true, nil
}

// All is ready when every checker is ready. Checkers run in order and the
// first one not ready short-circuits.
type All []Checker

func (a All) CheckReady(ctx context.Context) (bool, error) {
	for _, c := range a {
		ok, err := c.CheckReady(ctx)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}
