package ph_test

import (
	"testing"
	"time"

	"github.com/katalvlaran/phedge/ph"
	"github.com/stretchr/testify/require"
)

func TestShouldContinue(t *testing.T) {
	t.Parallel()

	budget := ph.Budget{MaxIter: 10, MaxTime: time.Second, MaxComputingTime: 500 * time.Millisecond}
	tests := []struct {
		name  string
		state ph.State
		p     ph.Progress
		want  ph.State
		ok    bool
	}{
		{"running", ph.StateIterate, ph.Progress{Iteration: 3}, ph.StateIterate, true},
		{"from init", ph.StateInit, ph.Progress{}, ph.StateIterate, true},
		{"cancelled first", ph.StateIterate, ph.Progress{Cancelled: true, Converged: true, Iteration: 10}, ph.StateCancelled, false},
		{"converged before budgets", ph.StateIterate, ph.Progress{Converged: true, Iteration: 10}, ph.StateConverged, false},
		{"max iter", ph.StateIterate, ph.Progress{Iteration: 10, Elapsed: 2 * time.Second}, ph.StateMaxIter, false},
		{"wall time", ph.StateIterate, ph.Progress{Elapsed: time.Second, Computing: time.Second}, ph.StateTimeout, false},
		{"computing time", ph.StateIterate, ph.Progress{Elapsed: 600 * time.Millisecond, Computing: 500 * time.Millisecond}, ph.StateComputeTimeout, false},
		{"terminal is sticky", ph.StateMaxIter, ph.Progress{}, ph.StateMaxIter, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ph.ShouldContinue(tc.state, budget, tc.p)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.ok, ok)
		})
	}
}

func TestShouldContinue_ZeroBudgetIsUnlimited(t *testing.T) {
	t.Parallel()

	got, ok := ph.ShouldContinue(ph.StateIterate, ph.Budget{}, ph.Progress{
		Iteration: 1 << 30,
		Elapsed:   24 * time.Hour,
		Computing: 24 * time.Hour,
	})
	require.True(t, ok)
	require.Equal(t, ph.StateIterate, got)
}

func TestState_StringAndTerminal(t *testing.T) {
	t.Parallel()

	require.Equal(t, "compute_timeout", ph.StateComputeTimeout.String())
	require.Equal(t, "unknown", ph.State(42).String())
	require.False(t, ph.StateIterate.Terminal())
	require.True(t, ph.StateCancelled.Terminal())
}
