package ph_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/katalvlaran/phedge/instances"
	"github.com/katalvlaran/phedge/ph"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/subproblem"
	"github.com/stretchr/testify/require"
)

func TestTimeout_ReturnsWithinBudget(t *testing.T) {
	t.Parallel()

	const budget = 150 * time.Millisecond
	pb := trackingProblem(t)
	slow := ph.WithSolver(slowSolver(instances.NewTrackingSolver(pb), 10*time.Millisecond))
	common := []ph.Option{slow, ph.WithMaxTime(budget), ph.WithMaxIter(0), ph.WithEpsilon(0, 0), ph.WithWorkers(2)}

	for name, solve := range map[string]func(context.Context, *problem.Problem, ...ph.Option) (ph.Result, error){
		"progressive-hedging": ph.SolveProgressiveHedging,
		"randomized-sync":     ph.SolveRandomizedSync,
		"randomized-par":      ph.SolveRandomizedPar,
		"randomized-async":    ph.SolveRandomizedAsync,
	} {
		solve := solve
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			start := time.Now()
			res, err := solve(context.Background(), pb, opts(common...)...)
			require.NoError(t, err)
			require.Equal(t, ph.StateTimeout, res.State)
			require.Less(t, time.Since(start), budget+time.Second)
			require.Positive(t, res.Iterations)
			require.NotNil(t, res.X)
		})
	}
}

// A solver that ignores its context must not hold the coordinator past the budget.
func TestTimeout_StuckWorkerDoesNotBlockAsync(t *testing.T) {
	t.Parallel()

	pb := trackingProblem(t)
	inner := instances.NewTrackingSolver(pb)
	var calls atomic.Int64
	stuck := subproblem.SolverFunc(func(ctx context.Context, req subproblem.Request) (subproblem.Result, error) {
		if calls.Add(1) > int64(pb.NScenarios) {
			time.Sleep(time.Second)
		}
		return inner.Solve(context.Background(), req)
	})

	start := time.Now()
	res, err := ph.SolveRandomizedAsync(context.Background(), pb,
		opts(ph.WithSolver(stuck), ph.WithWorkers(2), ph.WithMaxTime(100*time.Millisecond), ph.WithMaxIter(0))...)
	require.NoError(t, err)
	require.Equal(t, ph.StateTimeout, res.State)
	require.Less(t, time.Since(start), 700*time.Millisecond)
}

func TestComputingTimeBudget(t *testing.T) {
	t.Parallel()

	pb := trackingProblem(t)
	res, err := ph.SolveRandomizedSync(context.Background(), pb, opts(
		ph.WithSolver(slowSolver(instances.NewTrackingSolver(pb), 2*time.Millisecond)),
		ph.WithMaxIter(0),
		ph.WithMaxComputingTime(50*time.Millisecond),
	)...)
	require.NoError(t, err)
	require.Equal(t, ph.StateComputeTimeout, res.State)
	require.LessOrEqual(t, res.Computing, res.Elapsed)
}

func TestCancelled(t *testing.T) {
	t.Parallel()

	pb := trackingProblem(t)
	local := ph.WithSolver(instances.NewTrackingSolver(pb))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := ph.SolveProgressiveHedging(ctx, pb, opts(local)...)
	require.NoError(t, err)
	require.Equal(t, ph.StateCancelled, res.State)
	require.Zero(t, res.Iterations)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	var seen int
	res, err = ph.SolveProgressiveHedging(ctx, pb, opts(local, ph.WithEpsilon(0, 0),
		ph.WithObserver(ph.ObserverFuncs{Iteration: func(_ *problem.Problem, ev ph.Event) {
			seen++
			if ev.Iteration == 3 {
				cancel()
			}
		}}))...)
	require.NoError(t, err)
	require.Equal(t, ph.StateCancelled, res.State)
	require.Equal(t, 3, res.Iterations)
	require.Equal(t, 3, seen)
}

func TestWorkerPanic_CountedAsFailure(t *testing.T) {
	t.Parallel()

	pb := trackingProblem(t)
	inner := instances.NewTrackingSolver(pb)
	// flaky panics on every solve of scenario 1 after the initial one.
	flaky := func() subproblem.Solver {
		var calls atomic.Int64
		return subproblem.SolverFunc(func(ctx context.Context, req subproblem.Request) (subproblem.Result, error) {
			if req.Scenario == 1 && calls.Add(1) > 1 {
				panic("solver exploded")
			}
			return inner.Solve(ctx, req)
		})
	}

	res, err := ph.SolveRandomizedPar(context.Background(), pb,
		opts(ph.WithSolver(flaky()), ph.WithWorkers(2), ph.WithMaxIter(50), ph.WithDistribution(ph.Uniform()))...)
	require.NoError(t, err)
	require.Equal(t, ph.StateMaxIter, res.State)
	require.Positive(t, res.Failures)

	res, err = ph.SolveProgressiveHedging(context.Background(), pb,
		opts(ph.WithSolver(flaky()), ph.WithMaxIter(4), ph.WithEpsilon(0, 0))...)
	require.NoError(t, err)
	require.Equal(t, 4, res.Failures)
}

func TestInitFailure(t *testing.T) {
	t.Parallel()

	pb := trackingProblem(t)
	boom := errors.New("no license")
	failing := subproblem.SolverFunc(func(context.Context, subproblem.Request) (subproblem.Result, error) {
		return subproblem.Result{}, boom
	})
	_, err := ph.SolveRandomizedSync(context.Background(), pb, opts(ph.WithSolver(failing))...)
	require.ErrorIs(t, err, ph.ErrInitFailed)
	require.ErrorIs(t, err, boom)

	_, err = ph.SolveRandomizedAsync(context.Background(), pb, opts(ph.WithSolver(failing), ph.WithWorkers(2))...)
	require.ErrorIs(t, err, ph.ErrInitFailed)

	short := subproblem.SolverFunc(func(_ context.Context, req subproblem.Request) (subproblem.Result, error) {
		return subproblem.Result{Scenario: req.Scenario, Y: []float64{1}}, nil
	})
	_, err = ph.SolveProgressiveHedging(context.Background(), pb, opts(ph.WithSolver(short))...)
	require.ErrorIs(t, err, ph.ErrBadSolution)
}
