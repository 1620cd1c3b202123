// SPDX-License-Identifier: MIT

// Package simplex solves linear programs given in model.Standard form with the
// gonum simplex (gonum.org/v1/gonum/optimize/convex/lp).
//
// lp.Simplex wants  min cᵀx  s.t.  Ax = b, x >= 0  with A of full row rank and
// no zero column. Solve gets there in three steps:
//   - variable shift: x = lo + x' (lower bound), x = hi − x' (upper only),
//     x = x⁺ − x⁻ (free), fixed variables become constants;
//   - slack rows: one per finite side of an inequality row, one per doubly
//     bounded variable;
//   - presolve: dependent rows are dropped (inconsistent ones prove
//     infeasibility) and zero columns are fixed at 0 (or prove unboundedness).
package simplex

import (
	"errors"
	"fmt"
	"math"

	"github.com/katalvlaran/phedge/model"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

var (
	// ErrNotLinear is returned for problems with a quadratic objective.
	ErrNotLinear = errors.New("simplex: objective is not linear")

	// ErrInfeasible is returned when no point satisfies the constraints.
	ErrInfeasible = errors.New("simplex: problem is infeasible")

	// ErrUnbounded is returned when the objective is unbounded below.
	ErrUnbounded = errors.New("simplex: problem is unbounded")
)

// rankTol is the relative threshold under which a reduced row counts as zero.
const rankTol = 1e-9

// Result is an optimal vertex in the original variable space.
type Result struct {
	X         []float64
	Objective float64
}

// part maps one original variable to the standard-form columns: x = shift + Σ sign·x'[col].
type part struct {
	col  int
	sign float64
}

type builder struct {
	shift []float64
	parts [][]part
	cost  []float64
	rows  []sparseRow
}

type sparseRow struct {
	coef map[int]float64
	b    float64
}

func (bd *builder) newCol(cost float64) int {
	bd.cost = append(bd.cost, cost)
	return len(bd.cost) - 1
}

// Solve returns an optimal solution of std.
//
// Errors:
//   - ErrNotLinear, ErrInfeasible, ErrUnbounded;
//   - other lp failures wrapped with "simplex:".
func Solve(std *model.Standard) (Result, error) {
	if !std.IsLinear() {
		return Result{}, ErrNotLinear
	}
	bd := &builder{
		shift: make([]float64, std.NumVars),
		parts: make([][]part, std.NumVars),
	}

	// Variable shift.
	for j := 0; j < std.NumVars; j++ {
		lo, hi, c := std.ColLo[j], std.ColHi[j], std.Cost[j]
		loFin, hiFin := !math.IsInf(lo, -1), !math.IsInf(hi, 1)
		switch {
		case loFin && hiFin && lo == hi:
			bd.shift[j] = lo
		case loFin:
			bd.shift[j] = lo
			col := bd.newCol(c)
			bd.parts[j] = []part{{col: col, sign: 1}}
			if hiFin {
				slack := bd.newCol(0)
				bd.rows = append(bd.rows, sparseRow{coef: map[int]float64{col: 1, slack: 1}, b: hi - lo})
			}
		case hiFin:
			bd.shift[j] = hi
			bd.parts[j] = []part{{col: bd.newCol(-c), sign: -1}}
		default:
			bd.parts[j] = []part{{col: bd.newCol(c), sign: 1}, {col: bd.newCol(-c), sign: -1}}
		}
	}

	// Constraint rows.
	byRow := make([][]model.Entry, std.NumRows)
	for _, e := range std.A {
		byRow[e.Row] = append(byRow[e.Row], e)
	}
	for i := 0; i < std.NumRows; i++ {
		lo, hi := std.RowLo[i], std.RowHi[i]
		loFin, hiFin := !math.IsInf(lo, -1), !math.IsInf(hi, 1)
		if !loFin && !hiFin {
			continue
		}
		coef := make(map[int]float64)
		var rowShift float64
		for _, e := range byRow[i] {
			rowShift += e.Val * bd.shift[e.Col]
			for _, p := range bd.parts[e.Col] {
				coef[p.col] += e.Val * p.sign
			}
		}
		if loFin && hiFin && lo == hi {
			bd.rows = append(bd.rows, sparseRow{coef: coef, b: lo - rowShift})
			continue
		}
		if loFin {
			c := cloneCoef(coef)
			c[bd.newCol(0)] = -1
			bd.rows = append(bd.rows, sparseRow{coef: c, b: lo - rowShift})
		}
		if hiFin {
			c := cloneCoef(coef)
			c[bd.newCol(0)] = 1
			bd.rows = append(bd.rows, sparseRow{coef: c, b: hi - rowShift})
		}
	}

	xs, err := bd.solve()
	if err != nil {
		return Result{}, err
	}

	x := make([]float64, std.NumVars)
	for j := range x {
		x[j] = bd.shift[j]
		for _, p := range bd.parts[j] {
			x[j] += p.sign * xs[p.col]
		}
	}

	return Result{X: x, Objective: std.Objective(x)}, nil
}

// solve presolves the equality form and calls lp.Simplex; it returns x' over all columns.
func (bd *builder) solve() ([]float64, error) {
	ncols := len(bd.cost)
	out := make([]float64, ncols)

	// Dense rows, then drop dependent ones.
	dense := make([][]float64, 0, len(bd.rows))
	rhs := make([]float64, 0, len(bd.rows))
	for _, r := range bd.rows {
		sign := 1.0
		if r.b < 0 {
			sign = -1 // keep b >= 0
		}
		row := make([]float64, ncols)
		for c, v := range r.coef {
			row[c] = sign * v
		}
		dense = append(dense, row)
		rhs = append(rhs, sign*r.b)
	}
	keep, err := independentRows(dense, rhs)
	if err != nil {
		return nil, err
	}

	// Zero columns are fixed at 0, or prove unboundedness.
	var cols []int
	for c := 0; c < ncols; c++ {
		used := false
		for _, i := range keep {
			if dense[i][c] != 0 {
				used = true
				break
			}
		}
		if used {
			cols = append(cols, c)
			continue
		}
		if bd.cost[c] < 0 {
			return nil, ErrUnbounded
		}
	}
	if len(keep) == 0 {
		return out, nil
	}

	a := mat.NewDense(len(keep), len(cols), nil)
	b := make([]float64, len(keep))
	c := make([]float64, len(cols))
	for r, i := range keep {
		for k, col := range cols {
			a.Set(r, k, dense[i][col])
		}
		b[r] = rhs[i]
	}
	for k, col := range cols {
		c[k] = bd.cost[col]
	}

	_, xs, err := lp.Simplex(c, a, b, 0, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return nil, ErrInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return nil, ErrUnbounded
	case err != nil:
		return nil, fmt.Errorf("simplex: %w", err)
	}
	for k, col := range cols {
		out[col] = xs[k]
	}

	return out, nil
}

// independentRows returns the indices of a maximal set of linearly independent
// rows of [A|b], scanning in order. A dependent row whose right-hand side is
// not the matching combination proves infeasibility.
func independentRows(a [][]float64, b []float64) ([]int, error) {
	type pivotRow struct {
		row   []float64
		rhs   float64
		pivot int
	}
	var (
		basis []pivotRow
		keep  []int
	)
	for i, orig := range a {
		row := append([]float64(nil), orig...)
		rhs := b[i]
		scale := 1.0
		for _, v := range orig {
			scale = math.Max(scale, math.Abs(v))
		}
		for _, p := range basis {
			if f := row[p.pivot]; f != 0 {
				f /= p.row[p.pivot]
				for k := range row {
					row[k] -= f * p.row[k]
				}
				rhs -= f * p.rhs
			}
		}
		pivot, best := -1, 0.0
		for k, v := range row {
			if math.Abs(v) > best {
				pivot, best = k, math.Abs(v)
			}
		}
		if best <= rankTol*scale {
			if math.Abs(rhs) > rankTol*math.Max(scale, math.Abs(b[i])) {
				return nil, fmt.Errorf("row %d is inconsistent with earlier rows: %w", i, ErrInfeasible)
			}
			continue
		}
		basis = append(basis, pivotRow{row: row, rhs: rhs, pivot: pivot})
		keep = append(keep, i)
	}

	return keep, nil
}

func cloneCoef(m map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
