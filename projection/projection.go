// SPDX-License-Identifier: MIT

// Package projection implements the non-anticipatory projection: the
// probability-weighted averaging of scenario decisions over each class of the
// scenario tree, stage by stage.
//
// The projection is linear and idempotent: Project(Project(y)) == Project(y).
// Its image is exactly the set of tables whose rows agree, stage by stage,
// inside every class.
//
// Complexity:
//   - Project: O(N*n); AveragedTrajectory: O(Σ_t |class_t(s)| * dim_t) <= O(N*n).
package projection

import (
	"fmt"
	"math"

	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/problem"
)

// Project returns the projection of y as a new table.
func Project(pb *problem.Problem, y *matrix.Dense) (*matrix.Dense, error) {
	x := pb.NewTable()
	if err := ProjectInto(pb, y, x); err != nil {
		return nil, err
	}

	return x, nil
}

// ProjectInto writes the projection of y into dst. dst may alias y.
//
// For stage t, class C and coordinate d of stage t:
//
//	dst[s,d] = Σ_{s'∈C} p_s' y[s',d] / Σ_{s'∈C} p_s'   for every s ∈ C.
//
// A class of zero probability mass falls back to the unweighted mean.
func ProjectInto(pb *problem.Problem, y, dst *matrix.Dense) error {
	if err := matrix.ValidateShape(y, pb.NScenarios, pb.Dim()); err != nil {
		return fmt.Errorf("ProjectInto: y: %w", err)
	}
	if err := matrix.ValidateShape(dst, pb.NScenarios, pb.Dim()); err != nil {
		return fmt.Errorf("ProjectInto: dst: %w", err)
	}

	for t, r := range pb.StageToDim {
		for _, class := range pb.Tree.Classes(t) {
			mass, weights := classWeights(pb, class)
			for d := r.Lo; d < r.Hi; d++ {
				var avg float64
				for k, s := range class {
					avg += weights[k] * y.RowView(s)[d]
				}
				avg /= mass
				for _, s := range class {
					dst.RowView(s)[d] = avg
				}
			}
		}
	}

	return nil
}

// AveragedTrajectory writes into dst (length n) the projected row of scenario id
// computed from z, without touching any other row.
func AveragedTrajectory(pb *problem.Problem, z *matrix.Dense, id int, dst []float64) error {
	if err := matrix.ValidateShape(z, pb.NScenarios, pb.Dim()); err != nil {
		return fmt.Errorf("AveragedTrajectory: %w", err)
	}
	if err := matrix.ValidateVecLen(dst, pb.Dim()); err != nil {
		return fmt.Errorf("AveragedTrajectory: %w", err)
	}
	if id < 0 || id >= pb.NScenarios {
		return fmt.Errorf("AveragedTrajectory: scenario %d: %w", id, problem.ErrScenarioID)
	}

	for t, r := range pb.StageToDim {
		class := pb.Tree.ClassOf(t, id)
		mass, weights := classWeights(pb, class)
		for d := r.Lo; d < r.Hi; d++ {
			var avg float64
			for k, s := range class {
				avg += weights[k] * z.RowView(s)[d]
			}
			dst[d] = avg / mass
		}
	}

	return nil
}

// classWeights returns the averaging weights of a class and their sum.
func classWeights(pb *problem.Problem, class []int) (float64, []float64) {
	weights := make([]float64, len(class))
	var mass float64
	for k, s := range class {
		weights[k] = pb.Probas[s]
		mass += weights[k]
	}
	if mass > 0 {
		return mass, weights
	}
	for k := range weights {
		weights[k] = 1
	}

	return float64(len(class)), weights
}

// Norm returns the probability-weighted norm sqrt(Σ_s p_s ‖v[s]‖²).
func Norm(pb *problem.Problem, v *matrix.Dense) float64 {
	var acc float64
	for s := 0; s < pb.NScenarios; s++ {
		var row float64
		for _, x := range v.RowView(s) {
			row += x * x
		}
		acc += pb.Probas[s] * row
	}

	return math.Sqrt(acc)
}

// Distance returns Norm(a - b) without allocating the difference.
func Distance(pb *problem.Problem, a, b *matrix.Dense) float64 {
	var acc float64
	for s := 0; s < pb.NScenarios; s++ {
		ra, rb := a.RowView(s), b.RowView(s)
		var row float64
		for d := range ra {
			diff := ra[d] - rb[d]
			row += diff * diff
		}
		acc += pb.Probas[s] * row
	}

	return math.Sqrt(acc)
}
