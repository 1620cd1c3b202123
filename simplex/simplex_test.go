package simplex_test

import (
	"testing"

	"github.com/katalvlaran/phedge/model"
	"github.com/katalvlaran/phedge/simplex"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, m *model.Model) *model.Standard {
	t.Helper()
	std, err := m.Compile()
	require.NoError(t, err)
	return std
}

// TestTextbookLP: max x + y s.t. x + 2y <= 4, 3x + y <= 6, x, y >= 0.
func TestTextbookLP(t *testing.T) {
	t.Parallel()

	m := model.New()
	x := m.AddVar(0, model.Inf, "x")
	y := m.AddVar(0, model.Inf, "y")
	m.AddLe(model.Lin(model.Term{Var: x, Coef: 1}, model.Term{Var: y, Coef: 2}), 4)
	m.AddLe(model.Lin(model.Term{Var: x, Coef: 3}, model.Term{Var: y, Coef: 1}), 6)
	var obj model.QuadExpr
	obj.AddTerm(x, -1)
	obj.AddTerm(y, -1)
	m.SetObjective(obj)

	res, err := simplex.Solve(compile(t, m))
	require.NoError(t, err)
	require.InDelta(t, -2.8, res.Objective, 1e-9)
	require.InDeltaSlice(t, []float64{1.6, 1.2}, res.X, 1e-9)
}

// TestFreeVarAndDependentRows: min x s.t. x + y = 2, 2x + 2y = 4, 0 <= y <= 1.5, x free.
func TestFreeVarAndDependentRows(t *testing.T) {
	t.Parallel()

	m := model.New()
	x := m.AddVar(-model.Inf, model.Inf, "x")
	y := m.AddVar(0, 1.5, "y")
	m.AddEq(model.Sum(x, y), 2)
	m.AddEq(model.Lin(model.Term{Var: x, Coef: 2}, model.Term{Var: y, Coef: 2}), 4)
	var obj model.QuadExpr
	obj.AddTerm(x, 1)
	m.SetObjective(obj)

	res, err := simplex.Solve(compile(t, m))
	require.NoError(t, err)
	require.InDelta(t, 0.5, res.Objective, 1e-9)
	require.InDeltaSlice(t, []float64{0.5, 1.5}, res.X, 1e-9)
}

// TestUpperBoundedAndFixed: max x + z with x <= 3 (no lower bound), z fixed at 2, x + z >= -10.
func TestUpperBoundedAndFixed(t *testing.T) {
	t.Parallel()

	m := model.New()
	x := m.AddVar(-model.Inf, 3, "x")
	z := m.AddVar(2, 2, "z")
	m.AddGe(model.Sum(x, z), -10)
	var obj model.QuadExpr
	obj.AddTerm(x, -1)
	obj.AddTerm(z, -1)
	m.SetObjective(obj)

	res, err := simplex.Solve(compile(t, m))
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{3, 2}, res.X, 1e-9)
	require.InDelta(t, -5, res.Objective, 1e-9)
}

func TestInfeasibleAndUnbounded(t *testing.T) {
	t.Parallel()

	// Inconsistent dependent equalities are caught by presolve.
	m := model.New()
	x := m.AddVar(0, model.Inf, "x")
	y := m.AddVar(0, model.Inf, "y")
	m.AddEq(model.Sum(x, y), 1)
	m.AddEq(model.Lin(model.Term{Var: x, Coef: 2}, model.Term{Var: y, Coef: 2}), 3)
	_, err := simplex.Solve(compile(t, m))
	require.ErrorIs(t, err, simplex.ErrInfeasible)

	// Bound and row disagree.
	m = model.New()
	x = m.AddVar(0, 1, "x")
	m.AddGe(model.Sum(x), 2)
	_, err = simplex.Solve(compile(t, m))
	require.ErrorIs(t, err, simplex.ErrInfeasible)

	// A column touched by no row with negative cost.
	m = model.New()
	x = m.AddVar(0, model.Inf, "x")
	var obj model.QuadExpr
	obj.AddTerm(x, -1)
	m.SetObjective(obj)
	_, err = simplex.Solve(compile(t, m))
	require.ErrorIs(t, err, simplex.ErrUnbounded)
}

func TestRejectsQuadratic(t *testing.T) {
	t.Parallel()

	m := model.New()
	x := m.AddVar(0, 1, "x")
	var obj model.QuadExpr
	obj.AddQuad(x, x, 1)
	m.SetObjective(obj)
	_, err := simplex.Solve(compile(t, m))
	require.ErrorIs(t, err, simplex.ErrNotLinear)
}
