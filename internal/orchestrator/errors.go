package orchestrator

import (
	"errors"
	"fmt"
)

// ErrBootstrapInProgress is returned when RunBootstrap is called while a
// bootstrap is already running.
var ErrBootstrapInProgress = errors.New("bootstrap already in progress")

// ErrSourceUnreachable marks a seed step that never got to talk to the
// source database.
var ErrSourceUnreachable = errors.New("could not reach source database")

// Kind classifies a fatal bootstrap failure.
type Kind int

const (
	KindRuntimeUnavailable Kind = iota + 1
	KindConfig
	KindServicesStart
	KindNotReady
	KindSourceUnreachable
	KindSeedFailed
)

// Exit codes, one per Kind. 0 is success.
const (
	ExitOK                 = 0
	ExitRuntimeUnavailable = 1
	ExitConfig             = 2
	ExitServicesStart      = 3
	ExitNotReady           = 4
	ExitSourceUnreachable  = 5
	ExitSeedFailed         = 6
)

func (k Kind) String() string {
	switch k {
	case KindRuntimeUnavailable:
		return "runtime unavailable"
	case KindConfig:
		return "configuration error"
	case KindServicesStart:
		return "services failed to start"
	case KindNotReady:
		return "services not ready"
	case KindSourceUnreachable:
		return "source database unreachable"
	case KindSeedFailed:
		return "seeding failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ExitCode is the process exit status for k.
func (k Kind) ExitCode() int {
	switch k {
	case KindRuntimeUnavailable:
		return ExitRuntimeUnavailable
	case KindConfig:
		return ExitConfig
	case KindServicesStart:
		return ExitServicesStart
	case KindNotReady:
		return ExitNotReady
	case KindSourceUnreachable:
		return ExitSourceUnreachable
	case KindSeedFailed:
		return ExitSeedFailed
	default:
		return 1
	}
}

// StepError is the fatal failure of one bootstrap step.
type StepError struct {
	Step string
	Kind Kind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step: %s: %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit status: 0 for nil, the step's code
// for a *StepError, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Kind.ExitCode()
	}
	return 1
}
