package projection_test

import (
	"math"
	"testing"

	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/model"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/projection"
	"github.com/katalvlaran/phedge/tree"
	"github.com/stretchr/testify/require"
)

type scen struct{}

func (scen) NStages() int { return 3 }

// newProblem builds a 3-stage binary tree (4 scenarios) with stage dims (2, 1, 1).
func newProblem(t *testing.T, probas []float64) *problem.Problem {
	t.Helper()
	tr, err := tree.Uniform(3, 2)
	require.NoError(t, err)
	b := problem.BuilderFunc(func(m *model.Model, _ problem.Scenario, _ int) (problem.Subproblem, error) {
		return problem.Subproblem{Vars: m.AddVars(4, -model.Inf, model.Inf, "y")}, nil
	})
	pb, err := problem.New(
		[]problem.Scenario{scen{}, scen{}, scen{}, scen{}},
		b, probas, 4, 3,
		[]problem.Range{{Lo: 0, Hi: 2}, {Lo: 2, Hi: 3}, {Lo: 3, Hi: 4}},
		tr,
	)
	require.NoError(t, err)
	return pb
}

var sample = [][]float64{
	{1, 2, 3, 4},
	{5, 6, 7, 8},
	{-1, 0, 2, 1},
	{3, 3, 3, 3},
}

func TestProjectWeightedAverages(t *testing.T) {
	t.Parallel()

	pb := newProblem(t, []float64{0.1, 0.2, 0.3, 0.4})
	y, err := matrix.NewDenseFromRows(sample)
	require.NoError(t, err)

	x, err := projection.Project(pb, y)
	require.NoError(t, err)

	// Stage 0 (cols 0,1): one class over all scenarios.
	c0 := 0.1*1 + 0.2*5 + 0.3*(-1) + 0.4*3
	c1 := 0.1*2 + 0.2*6 + 0.3*0 + 0.4*3
	// Stage 1 (col 2): classes {0,1} and {2,3}.
	a := (0.1*3 + 0.2*7) / 0.3
	b := (0.3*2 + 0.4*3) / 0.7
	want := [][]float64{
		{c0, c1, a, 4},
		{c0, c1, a, 8},
		{c0, c1, b, 1},
		{c0, c1, b, 3},
	}
	for s, row := range want {
		got, err := x.Row(s)
		require.NoError(t, err)
		require.InDeltaSlice(t, row, got, 1e-12)
	}
}

func TestProjectIdempotent(t *testing.T) {
	t.Parallel()

	pb := newProblem(t, []float64{0.1, 0.2, 0.3, 0.4})
	y, err := matrix.NewDenseFromRows(sample)
	require.NoError(t, err)

	once, err := projection.Project(pb, y)
	require.NoError(t, err)
	twice, err := projection.Project(pb, once)
	require.NoError(t, err)

	diff, err := matrix.MaxAbsDiff(once, twice)
	require.NoError(t, err)
	require.Less(t, diff, 1e-12)
}

func TestProjectIntoAliasing(t *testing.T) {
	t.Parallel()

	pb := newProblem(t, []float64{0.25, 0.25, 0.25, 0.25})
	y, err := matrix.NewDenseFromRows(sample)
	require.NoError(t, err)

	want, err := projection.Project(pb, y)
	require.NoError(t, err)
	require.NoError(t, projection.ProjectInto(pb, y, y)) // in place

	ok, err := matrix.AllClose(y, want, 0, 1e-12)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAveragedTrajectoryMatchesProjectRow(t *testing.T) {
	t.Parallel()

	pb := newProblem(t, []float64{0.1, 0.2, 0.3, 0.4})
	z, err := matrix.NewDenseFromRows(sample)
	require.NoError(t, err)
	x, err := projection.Project(pb, z)
	require.NoError(t, err)

	dst := make([]float64, pb.Dim())
	for s := 0; s < pb.NScenarios; s++ {
		require.NoError(t, projection.AveragedTrajectory(pb, z, s, dst))
		row, _ := x.Row(s)
		require.InDeltaSlice(t, row, dst, 1e-12)
	}

	require.ErrorIs(t, projection.AveragedTrajectory(pb, z, 4, dst), problem.ErrScenarioID)
	require.ErrorIs(t, projection.AveragedTrajectory(pb, z, 0, dst[:2]), matrix.ErrDimensionMismatch)
}

func TestZeroMassClassUsesPlainMean(t *testing.T) {
	t.Parallel()

	pb := newProblem(t, []float64{0, 0, 0.5, 0.5})
	y, err := matrix.NewDenseFromRows(sample)
	require.NoError(t, err)

	x, err := projection.Project(pb, y)
	require.NoError(t, err)
	v, err := x.At(0, 2)
	require.NoError(t, err)
	require.InDelta(t, 5.0, v, 1e-12) // (3 + 7) / 2
}

func TestNormAndDistance(t *testing.T) {
	t.Parallel()

	pb := newProblem(t, []float64{0.1, 0.2, 0.3, 0.4})
	a, err := matrix.NewDenseFromRows(sample)
	require.NoError(t, err)
	zero := pb.NewTable()

	var want float64
	for s, row := range sample {
		for _, v := range row {
			want += pb.Probas[s] * v * v
		}
	}
	require.InDelta(t, math.Sqrt(want), projection.Norm(pb, a), 1e-12)
	require.InDelta(t, projection.Norm(pb, a), projection.Distance(pb, a, zero), 1e-12)
}
