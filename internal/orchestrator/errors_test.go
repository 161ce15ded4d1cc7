package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain error", errors.New("boom"), 1},
		{"in progress", ErrBootstrapInProgress, 1},
		{"runtime", &StepError{Step: StepRuntime, Kind: KindRuntimeUnavailable}, 1},
		{"config", &StepError{Step: StepEnvFile, Kind: KindConfig}, 2},
		{"services", &StepError{Step: StepServices, Kind: KindServicesStart}, 3},
		{"not ready", &StepError{Step: StepSettle, Kind: KindNotReady}, 4},
		{"source", &StepError{Step: StepSeed, Kind: KindSourceUnreachable}, 5},
		{"seed", &StepError{Step: StepSeed, Kind: KindSeedFailed}, 6},
		{"wrapped", fmt.Errorf("up: %w", &StepError{Step: StepServices, Kind: KindServicesStart}), 3},
		{"unknown kind", &StepError{Kind: Kind(42)}, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestStepError(t *testing.T) {
	t.Parallel()

	cause := context.DeadlineExceeded
	err := &StepError{Step: StepSettle, Kind: KindNotReady, Err: cause}

	assert.Equal(t, "settle step: services not ready: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "source database unreachable", KindSourceUnreachable.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
