package qp_test

import (
	"context"
	"math"
	"testing"

	"github.com/katalvlaran/phedge/qp"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var inf = math.Inf(1)

func identity(n int) *mat.Dense {
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, 1)
	}
	return a
}

// TestBoxProjection: min ½‖x − c‖² over [0,1]³ is the clipped point.
func TestBoxProjection(t *testing.T) {
	t.Parallel()

	c := []float64{2, -1, 0.5}
	p := qp.Problem{
		P: mat.NewSymDense(3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		Q: []float64{-c[0], -c[1], -c[2]},
		A: identity(3),
		L: []float64{0, 0, 0},
		U: []float64{1, 1, 1},
	}
	res, err := qp.Solve(context.Background(), p, qp.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, qp.StatusSolved, res.Status)
	require.InDeltaSlice(t, []float64{1, 0, 0.5}, res.X, 1e-5)
}

// TestEqualityConstrained: min ½(x1² + x2²) s.t. x1 + x2 = 1.
func TestEqualityConstrained(t *testing.T) {
	t.Parallel()

	p := qp.Problem{
		P: mat.NewSymDense(2, []float64{1, 0, 0, 1}),
		Q: []float64{0, 0},
		A: mat.NewDense(1, 2, []float64{1, 1}),
		L: []float64{1},
		U: []float64{1},
	}
	res, err := qp.Solve(context.Background(), p, qp.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, qp.StatusSolved, res.Status)
	require.InDeltaSlice(t, []float64{0.5, 0.5}, res.X, 1e-5)
	require.InDelta(t, 0.25, res.Objective, 1e-5)
	require.InDelta(t, -0.5, res.Y[0], 1e-4) // multiplier of the equality row
}

// TestUnconstrained: no rows at all, x = −P⁻¹q.
func TestUnconstrained(t *testing.T) {
	t.Parallel()

	p := qp.Problem{
		P: mat.NewSymDense(2, []float64{2, 0, 0, 4}),
		Q: []float64{-2, -8},
	}
	res, err := qp.Solve(context.Background(), p, qp.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, qp.StatusSolved, res.Status)
	require.InDeltaSlice(t, []float64{1, 2}, res.X, 1e-5)
}

// TestLinearProgram: min −x1 − x2 s.t. x1 + x2 <= 1, x >= 0 has optimal value −1.
func TestLinearProgram(t *testing.T) {
	t.Parallel()

	p := qp.Problem{
		Q: []float64{-1, -1},
		A: mat.NewDense(3, 2, []float64{1, 1, 1, 0, 0, 1}),
		L: []float64{-inf, 0, 0},
		U: []float64{1, inf, inf},
	}
	opts := qp.DefaultOptions()
	opts.MaxIter = 100000
	opts.EpsAbs, opts.EpsRel = 1e-6, 1e-6
	res, err := qp.Solve(context.Background(), p, opts)
	require.NoError(t, err)
	require.Equal(t, qp.StatusSolved, res.Status)
	require.InDelta(t, -1, res.Objective, 1e-4)
	require.LessOrEqual(t, res.X[0]+res.X[1], 1+1e-4)
}

// TestPrimalInfeasible: x >= 1 and x <= 0.
func TestPrimalInfeasible(t *testing.T) {
	t.Parallel()

	p := qp.Problem{
		P: mat.NewSymDense(1, []float64{1}),
		Q: []float64{0},
		A: mat.NewDense(2, 1, []float64{1, 1}),
		L: []float64{1, -inf},
		U: []float64{inf, 0},
	}
	res, err := qp.Solve(context.Background(), p, qp.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, qp.StatusPrimalInfeasible, res.Status)
}

// TestDualInfeasible: min −x s.t. x >= 0 is unbounded.
func TestDualInfeasible(t *testing.T) {
	t.Parallel()

	p := qp.Problem{
		Q: []float64{-1},
		A: mat.NewDense(1, 1, []float64{1}),
		L: []float64{0},
		U: []float64{inf},
	}
	res, err := qp.Solve(context.Background(), p, qp.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, qp.StatusDualInfeasible, res.Status)
}

func TestSolveRejectsBadInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := qp.Solve(ctx, qp.Problem{Q: []float64{1}, A: mat.NewDense(1, 2, nil), L: []float64{0}, U: []float64{1}}, qp.DefaultOptions())
	require.ErrorIs(t, err, qp.ErrDimensionMismatch)

	_, err = qp.Solve(ctx, qp.Problem{Q: []float64{1}, A: mat.NewDense(1, 1, []float64{1}), L: []float64{2}, U: []float64{1}}, qp.DefaultOptions())
	require.ErrorIs(t, err, qp.ErrBadBounds)

	_, err = qp.Solve(ctx, qp.Problem{P: mat.NewSymDense(1, []float64{-5}), Q: []float64{1}}, qp.DefaultOptions())
	require.ErrorIs(t, err, qp.ErrNotConvex)

	opts := qp.DefaultOptions()
	opts.Alpha = 2
	_, err = qp.Solve(ctx, qp.Problem{Q: []float64{1}}, opts)
	require.ErrorIs(t, err, qp.ErrBadOptions)
}

func TestSolveHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := qp.Solve(ctx, qp.Problem{P: mat.NewSymDense(1, []float64{1}), Q: []float64{1}}, qp.DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "solved", qp.StatusSolved.String())
	require.Equal(t, "primal_infeasible", qp.StatusPrimalInfeasible.String())
	require.Equal(t, "unknown", qp.Status(42).String())
}
