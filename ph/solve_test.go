package ph_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/katalvlaran/phedge/history"
	"github.com/katalvlaran/phedge/instances"
	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/ph"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/projection"
	"github.com/katalvlaran/phedge/simplex"
	"github.com/stretchr/testify/require"
)

func TestProgressiveHedging_Tracking_Converges(t *testing.T) {
	t.Parallel()

	pb := trackingProblem(t)
	res, err := ph.SolveProgressiveHedging(context.Background(), pb,
		opts(ph.WithSolver(instances.NewTrackingSolver(pb)), ph.WithEpsilon(1e-6, 1e-6))...)
	require.NoError(t, err)
	require.Equal(t, ph.StateConverged, res.State)
	require.Less(t, res.PrimalResidual, 1e-6)
	require.Less(t, res.DualResidual, 1e-6)
	require.Equal(t, pb.NScenarios*(res.Iterations+1), res.Solves)
	require.Zero(t, res.Failures)
	requireClose(t, optimum(t, pb), res.X, 1e-5)

	px, err := projection.Project(pb, res.X)
	require.NoError(t, err)
	require.Less(t, projection.Distance(pb, px, res.X), 1e-12)
}

func TestProgressiveHedging_DefaultQPSolver(t *testing.T) {
	t.Parallel()

	pb := trackingProblem(t)
	res, err := ph.SolveProgressiveHedging(context.Background(), pb, opts(ph.WithEpsilon(1e-5, 1e-5))...)
	require.NoError(t, err)
	require.Equal(t, ph.StateConverged, res.State)
	requireClose(t, optimum(t, pb), res.X, 1e-3)
}

func TestProgressiveHedging_HydroTwoStages(t *testing.T) {
	t.Parallel()

	p := instances.DefaultHydroParams()
	p.Stages = 2
	pb, err := instances.HydroThermal(p)
	require.NoError(t, err)

	res, err := ph.SolveProgressiveHedging(context.Background(), pb,
		opts(ph.WithEpsilon(1e-4, 1e-4), ph.WithMaxIter(5000))...)
	require.NoError(t, err)
	require.Equal(t, ph.StateConverged, res.State)
	require.InDelta(t, 30, res.Objective, 0.05)
}

// All five entry points must agree with the closed-form optimum.
func TestCrossMethodAgreement(t *testing.T) {
	t.Parallel()

	pb := trackingProblem(t)
	want := optimum(t, pb)
	local := ph.WithSolver(instances.NewTrackingSolver(pb))
	methods := map[string]func() (ph.Result, error){
		"direct": func() (ph.Result, error) {
			return ph.SolveDirect(context.Background(), pb, opts()...)
		},
		"progressive-hedging": func() (ph.Result, error) {
			return ph.SolveProgressiveHedging(context.Background(), pb, opts(local)...)
		},
		"randomized-sync": func() (ph.Result, error) {
			return ph.SolveRandomizedSync(context.Background(), pb, opts(local, ph.WithMaxIter(3000), ph.WithSeed(3))...)
		},
		"randomized-par": func() (ph.Result, error) {
			return ph.SolveRandomizedPar(context.Background(), pb, opts(local, ph.WithMaxIter(3000), ph.WithWorkers(2))...)
		},
		"randomized-async": func() (ph.Result, error) {
			return ph.SolveRandomizedAsync(context.Background(), pb, opts(local, ph.WithMaxIter(3000), ph.WithWorkers(3))...)
		},
	}
	for name, solve := range methods {
		t.Run(name, func(t *testing.T) {
			res, err := solve()
			require.NoError(t, err)
			require.Equal(t, name, res.Algorithm)
			requireClose(t, want, res.X, 1e-2)
		})
	}
}

func TestRandomized_UniformAndFixedStep(t *testing.T) {
	t.Parallel()

	pb := wideProblem(t)
	want := optimum(t, pb)
	local := ph.WithSolver(instances.NewTrackingSolver(pb))

	res, err := ph.SolveRandomizedSync(context.Background(), pb,
		opts(local, ph.WithDistribution(ph.Uniform()), ph.WithMaxIter(4000), ph.WithPrintStep(100))...)
	require.NoError(t, err)
	require.Equal(t, ph.StateMaxIter, res.State)
	require.Equal(t, 4000, res.Iterations)
	requireClose(t, want, res.X, 1e-3)

	res, err = ph.SolveRandomizedAsync(context.Background(), pb,
		opts(local, ph.WithStepSize(0.5), ph.WithWorkers(2), ph.WithMaxIter(4000), ph.WithPrintStep(100))...)
	require.NoError(t, err)
	requireClose(t, want, res.X, 1e-3)
}

func TestDirect_HydroThermal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stages int
		want   float64
	}{
		{2, 30},
		{5, 43.75},
	}
	for _, tc := range tests {
		p := instances.DefaultHydroParams()
		p.Stages = tc.stages
		pb, err := instances.HydroThermal(p)
		require.NoError(t, err)

		res, err := ph.SolveDirect(context.Background(), pb, opts()...)
		require.NoError(t, err)
		require.Equal(t, ph.StateConverged, res.State)
		require.InDelta(t, tc.want, res.Objective, 1e-6)

		px, err := projection.Project(pb, res.X)
		require.NoError(t, err)
		require.Less(t, projection.Distance(pb, px, res.X), 1e-6)

		if tc.stages == 2 {
			first, err := res.X.Row(0)
			require.NoError(t, err)
			require.InDeltaSlice(t, []float64{2, 4, 0}, first[:3], 1e-6)
		}
	}
}

func TestDirect_Backends(t *testing.T) {
	t.Parallel()

	pb := trackingProblem(t)
	_, err := ph.SolveDirect(context.Background(), pb, opts(ph.WithDirectBackend(ph.BackendSimplex))...)
	require.ErrorIs(t, err, ph.ErrDirectFailed)
	require.ErrorIs(t, err, simplex.ErrNotLinear)

	res, err := ph.SolveDirect(context.Background(), pb, opts(ph.WithDirectBackend(ph.BackendQP))...)
	require.NoError(t, err)
	requireClose(t, optimum(t, pb), res.X, 1e-3)
}

func TestObserverHistoryAndCallback(t *testing.T) {
	t.Parallel()

	pb := trackingProblem(t)
	hist := history.NewWithReference(optimum(t, pb))
	var inits, iterations, terminations, callbacks int
	obs := ph.ObserverFuncs{
		Init:      func(*problem.Problem, ph.Event) { inits++ },
		Iteration: func(_ *problem.Problem, ev ph.Event) { iterations++ },
		Terminate: func(_ *problem.Problem, res ph.Result) {
			terminations++
			require.Equal(t, ph.StateConverged, res.State)
		},
	}
	cb := func(_ *problem.Problem, x *matrix.Dense, h *history.History) {
		callbacks++
		require.NotNil(t, x)
		require.Same(t, hist, h)
	}

	res, err := ph.SolveProgressiveHedging(context.Background(), pb, opts(
		ph.WithSolver(instances.NewTrackingSolver(pb)),
		ph.WithEpsilon(1e-7, 1e-7),
		ph.WithPrintStep(3),
		ph.WithHistory(hist),
		ph.WithObserver(obs),
		ph.WithCallback(cb),
	)...)
	require.NoError(t, err)
	require.Equal(t, 1, inits)
	require.Equal(t, 1, terminations)
	require.Equal(t, iterations, callbacks)
	require.Equal(t, iterations+1, hist.Len())

	last, ok := hist.Last()
	require.True(t, ok)
	require.Equal(t, res.Iterations, last.Iteration)
	require.Less(t, last.DistOpt, 1e-5)
	first := hist.Entries()[0]
	require.Zero(t, first.Iteration)
	require.True(t, math.IsNaN(first.Residual))
	require.Greater(t, first.DistOpt, last.DistOpt)
}

func TestRandomizedSync_HistoryClosingEntry(t *testing.T) {
	t.Parallel()

	pb := trackingProblem(t)
	hist := history.New()
	res, err := ph.SolveRandomizedSync(context.Background(), pb, opts(
		ph.WithSolver(instances.NewTrackingSolver(pb)),
		ph.WithMaxIter(25),
		ph.WithPrintStep(10),
		ph.WithHistory(hist),
	)...)
	require.NoError(t, err)
	require.Equal(t, 25, res.Iterations)

	var iters []int
	for _, e := range hist.Entries() {
		iters = append(iters, e.Iteration)
		require.True(t, math.IsNaN(e.DistOpt))
	}
	require.Equal(t, []int{0, 10, 20, 25}, iters)
}

func TestSeedDeterminism(t *testing.T) {
	t.Parallel()

	pb := wideProblem(t)
	run := func(seed int64, d ph.Distribution) []int {
		rec := newRecordingSolver(pb, instances.NewTrackingSolver(pb), 0)
		_, err := ph.SolveRandomizedSync(context.Background(), pb,
			opts(ph.WithSolver(rec), ph.WithSeed(seed), ph.WithDistribution(d), ph.WithMaxIter(40))...)
		require.NoError(t, err)
		return rec.sequence()[pb.NScenarios:]
	}

	require.Equal(t, run(7, ph.Proportional()), run(7, ph.Proportional()))
	require.Equal(t, run(0, ph.Uniform()), run(1, ph.Uniform()))
	require.Len(t, run(7, ph.Proportional()), 40)

	only := make([]float64, pb.NScenarios)
	only[5] = 1
	for _, s := range run(3, ph.Custom(only)) {
		require.Equal(t, 5, s)
	}
}

func TestParallelDrivers_OneTaskPerScenario(t *testing.T) {
	t.Parallel()

	pb := wideProblem(t)
	for _, solve := range []func(context.Context, *problem.Problem, ...ph.Option) (ph.Result, error){
		ph.SolveRandomizedPar,
		ph.SolveRandomizedAsync,
	} {
		rec := newRecordingSolver(pb, instances.NewTrackingSolver(pb), 200*time.Microsecond)
		res, err := solve(context.Background(), pb, opts(ph.WithSolver(rec), ph.WithWorkers(4), ph.WithMaxIter(400))...)
		require.NoError(t, err)
		require.Equal(t, int32(1), rec.maxSame.Load())
		require.Equal(t, 400, res.Iterations)
		require.GreaterOrEqual(t, res.Solves, 400+pb.NScenarios)
	}
}

func TestAsync_DelaysAreTracked(t *testing.T) {
	t.Parallel()

	pb := wideProblem(t)
	rec := newRecordingSolver(pb, instances.NewTrackingSolver(pb), 100*time.Microsecond)
	hist := history.New()
	res, err := ph.SolveRandomizedAsync(context.Background(), pb,
		opts(ph.WithSolver(rec), ph.WithWorkers(4), ph.WithMaxIter(200), ph.WithPrintStep(50), ph.WithHistory(hist))...)
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.MaxDelay, 1)
	require.LessOrEqual(t, res.MeanDelay, float64(res.MaxDelay))

	var seen int
	for _, e := range hist.Entries() {
		seen = max(seen, e.MaxDelay)
	}
	require.Equal(t, res.MaxDelay, seen)
}
