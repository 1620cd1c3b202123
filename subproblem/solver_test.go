package subproblem_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"

	"github.com/katalvlaran/phedge/instances"
	"github.com/katalvlaran/phedge/model"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/subproblem"
	"github.com/katalvlaran/phedge/tree"
	"github.com/stretchr/testify/require"
)

type oneStage struct{}

func (oneStage) NStages() int { return 1 }

// singleScenario is a one-variable, one-scenario problem built by b.
func singleScenario(t *testing.T, b problem.BuilderFunc) *problem.Problem {
	t.Helper()
	tr, err := tree.Uniform(1, 1)
	require.NoError(t, err)
	pb, err := problem.New([]problem.Scenario{oneStage{}}, b, []float64{1}, 1, 1, []problem.Range{{Lo: 0, Hi: 1}}, tr)
	require.NoError(t, err)

	return pb
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	pb, err := instances.Tracking(instances.TrackingConfig{StageDims: []int{1, 1}, Branching: 2})
	require.NoError(t, err)

	ok := subproblem.Request{Scenario: 1, Target: []float64{0, 0}, Mu: 1}
	require.NoError(t, subproblem.ValidateRequest(pb, ok))

	tests := map[string]subproblem.Request{
		"negative id":  {Scenario: -1, Target: []float64{0, 0}, Mu: 1},
		"id too large": {Scenario: 2, Target: []float64{0, 0}, Mu: 1},
		"zero mu":      {Scenario: 0, Target: []float64{0, 0}, Mu: 0},
		"short target": {Scenario: 0, Target: []float64{0}, Mu: 1},
		"long dual":    {Scenario: 0, Target: []float64{0, 0}, Dual: []float64{0, 0, 0}, Mu: 1},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, subproblem.ValidateRequest(pb, req), subproblem.ErrBadRequest)
		})
	}
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "optimal", subproblem.StatusOptimal.String())
	require.Equal(t, "inaccurate", subproblem.StatusInaccurate.String())
	require.Equal(t, "infeasible", subproblem.StatusInfeasible.String())
	require.Equal(t, "unbounded", subproblem.StatusUnbounded.String())
	require.Equal(t, "unknown", subproblem.Status(42).String())
}

// min (x-1)² + (x-t)²/(2μ) over [0, 5] has x = (2 + t/μ) / (2 + 1/μ).
func TestQPSolverProximalStep(t *testing.T) {
	t.Parallel()

	var builds atomic.Int32
	pb := singleScenario(t, func(m *model.Model, _ problem.Scenario, _ int) (problem.Subproblem, error) {
		builds.Add(1)
		x := m.AddVar(0, 5, "x")
		var obj model.QuadExpr
		obj.AddQuad(x, x, 1)
		obj.AddTerm(x, -2)
		obj.AddConstant(1)
		return problem.Subproblem{Vars: []model.Var{x}, Objective: obj}, nil
	})
	s := subproblem.NewQPSolver(pb, subproblem.WithLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))))

	for _, tc := range []struct{ target, mu float64 }{{3, 1}, {0, 0.5}, {4, 2}} {
		res, err := s.Solve(context.Background(), subproblem.Request{Scenario: 0, Target: []float64{tc.target}, Mu: tc.mu})
		require.NoError(t, err)
		require.Equal(t, subproblem.StatusOptimal, res.Status)
		want := (2 + tc.target/tc.mu) / (2 + 1/tc.mu)
		require.InDelta(t, want, res.Y[0], 1e-4)
		require.InDelta(t, (want-1)*(want-1), res.Objective, 1e-3)
	}
	// Once for the solver, once for objective evaluation.
	require.Equal(t, int32(2), builds.Load())
}

func TestQPSolverInfeasibleIsNotAnError(t *testing.T) {
	t.Parallel()

	pb := singleScenario(t, func(m *model.Model, _ problem.Scenario, _ int) (problem.Subproblem, error) {
		x := m.AddVar(0, 1, "x")
		m.AddGe(model.Sum(x), 2)
		return problem.Subproblem{Vars: []model.Var{x}}, nil
	})
	s := subproblem.NewQPSolver(pb, subproblem.WithLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))))

	res, err := s.Solve(context.Background(), subproblem.Request{Scenario: 0, Target: []float64{0}, Mu: 1})
	require.NoError(t, err)
	require.NotEqual(t, subproblem.StatusOptimal, res.Status)
	require.Len(t, res.Y, 1)
}

func TestQPSolverBuilderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	pb := singleScenario(t, func(*model.Model, problem.Scenario, int) (problem.Subproblem, error) {
		return problem.Subproblem{}, boom
	})
	s := subproblem.NewQPSolver(pb)

	_, err := s.Solve(context.Background(), subproblem.Request{Scenario: 0, Target: []float64{0}, Mu: 1})
	require.ErrorIs(t, err, boom)
	_, err = s.Solve(context.Background(), subproblem.Request{Scenario: 3, Target: []float64{0}, Mu: 1})
	require.ErrorIs(t, err, subproblem.ErrBadRequest)
}

func TestSolverFunc(t *testing.T) {
	t.Parallel()

	f := subproblem.SolverFunc(func(_ context.Context, req subproblem.Request) (subproblem.Result, error) {
		return subproblem.Result{Scenario: req.Scenario, Y: req.Target}, nil
	})
	res, err := f.Solve(context.Background(), subproblem.Request{Scenario: 4, Target: []float64{7}})
	require.NoError(t, err)
	require.Equal(t, 4, res.Scenario)
	require.Equal(t, []float64{7}, res.Y)
}
