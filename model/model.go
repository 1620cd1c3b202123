// SPDX-License-Identifier: MIT

// Package model is a small algebraic modeling layer: bounded variables,
// two-sided linear constraints and a convex quadratic objective, compiled into
// a sparse standard form consumed by the qp and simplex backends.
//
// Builders of scenario subproblems write into a *Model; the solvers never see
// user types. A Model is not safe for concurrent mutation.
//
// Invalid input to AddVar/AddConstraint (NaN, lo > hi) does not panic: the
// first violation is recorded and returned by Compile.
package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrUnknownVar is returned when an expression references a Var the model never created.
	ErrUnknownVar = errors.New("model: unknown variable")

	// ErrBadBounds is returned when lo > hi or a bound is NaN.
	ErrBadBounds = errors.New("model: invalid bounds")

	// ErrNotFinite is returned when a coefficient is NaN or ±Inf.
	ErrNotFinite = errors.New("model: coefficient is not finite")
)

// Inf is the bound value meaning "unbounded".
var Inf = math.Inf(1)

// ConstraintRef indexes a constraint row in the Model.
type ConstraintRef int

type constraint struct {
	expr   LinExpr
	lo, hi float64
}

// Model collects variables, constraints and the objective (minimized).
type Model struct {
	lo, hi []float64
	names  []string
	rows   []constraint
	obj    QuadExpr
	err    error // first recorded input violation, surfaced by Compile
}

// New returns an empty model.
func New() *Model { return &Model{} }

// AddVar creates a variable with bounds [lo, hi] (use ±Inf for free sides).
func (m *Model) AddVar(lo, hi float64, name string) Var {
	if m.err == nil && (math.IsNaN(lo) || math.IsNaN(hi) || lo > hi) {
		m.err = fmt.Errorf("var %q [%g, %g]: %w", name, lo, hi, ErrBadBounds)
	}
	m.lo = append(m.lo, lo)
	m.hi = append(m.hi, hi)
	m.names = append(m.names, name)

	return Var(len(m.lo) - 1)
}

// AddVars creates k variables sharing the same bounds, named prefix[i].
func (m *Model) AddVars(k int, lo, hi float64, prefix string) []Var {
	vars := make([]Var, k)
	for i := range vars {
		vars[i] = m.AddVar(lo, hi, fmt.Sprintf("%s[%d]", prefix, i))
	}

	return vars
}

// AddConstraint adds lo <= e <= hi. The constant of e is moved into the bounds.
func (m *Model) AddConstraint(e LinExpr, lo, hi float64) ConstraintRef {
	if m.err == nil && (math.IsNaN(lo) || math.IsNaN(hi) || lo > hi) {
		m.err = fmt.Errorf("constraint %d [%g, %g]: %w", len(m.rows), lo, hi, ErrBadBounds)
	}
	terms := append([]Term(nil), e.Terms...)
	m.rows = append(m.rows, constraint{
		expr: LinExpr{Terms: terms},
		lo:   lo - e.Constant,
		hi:   hi - e.Constant,
	})

	return ConstraintRef(len(m.rows) - 1)
}

// AddEq adds e == rhs.
func (m *Model) AddEq(e LinExpr, rhs float64) ConstraintRef { return m.AddConstraint(e, rhs, rhs) }

// AddLe adds e <= rhs.
func (m *Model) AddLe(e LinExpr, rhs float64) ConstraintRef { return m.AddConstraint(e, -Inf, rhs) }

// AddGe adds e >= rhs.
func (m *Model) AddGe(e LinExpr, rhs float64) ConstraintRef { return m.AddConstraint(e, rhs, Inf) }

// SetObjective replaces the objective.
func (m *Model) SetObjective(e QuadExpr) { m.obj = e }

// AddToObjective appends scale * e to the objective.
func (m *Model) AddToObjective(scale float64, e QuadExpr) { m.obj.AddScaled(scale, e) }

// Objective returns the current objective.
func (m *Model) Objective() QuadExpr { return m.obj }

// NumVars returns the number of variables.
func (m *Model) NumVars() int { return len(m.lo) }

// NumConstraints returns the number of constraint rows.
func (m *Model) NumConstraints() int { return len(m.rows) }

// Bounds returns the bounds of v.
func (m *Model) Bounds(v Var) (float64, float64) { return m.lo[v], m.hi[v] }

// Name returns the name given to v.
func (m *Model) Name(v Var) string { return m.names[v] }

// Entry is one non-zero of a sparse matrix.
type Entry struct {
	Row, Col int
	Val      float64
}

// Standard is the compiled problem
//
//	minimize   ½ xᵀHx + Costᵀx + Offset
//	subject to RowLo <= A x <= RowHi,  ColLo <= x <= ColHi.
//
// A and Hessian hold merged entries sorted by (Row, Col); Hessian is the full symmetric matrix.
type Standard struct {
	NumVars, NumRows int
	ColLo, ColHi     []float64
	RowLo, RowHi     []float64
	A                []Entry
	Hessian          []Entry
	Cost             []float64
	Offset           float64
}

// IsLinear reports whether the objective has no quadratic part.
func (s *Standard) IsLinear() bool { return len(s.Hessian) == 0 }

// Objective evaluates ½ xᵀHx + Costᵀx + Offset.
func (s *Standard) Objective(x []float64) float64 {
	val := s.Offset
	for j, c := range s.Cost {
		val += c * x[j]
	}
	for _, h := range s.Hessian {
		val += 0.5 * h.Val * x[h.Row] * x[h.Col]
	}

	return val
}

// Compile validates the model and produces its standard form.
//
// Errors:
//   - the first recorded ErrBadBounds;
//   - ErrUnknownVar for references outside [0, NumVars);
//   - ErrNotFinite for NaN/Inf coefficients.
func (m *Model) Compile() (*Standard, error) {
	if m.err != nil {
		return nil, m.err
	}
	n := len(m.lo)
	check := func(v Var, coef float64, where string) error {
		if v < 0 || int(v) >= n {
			return fmt.Errorf("%s: var %d: %w", where, v, ErrUnknownVar)
		}
		if math.IsNaN(coef) || math.IsInf(coef, 0) {
			return fmt.Errorf("%s: var %d: %w", where, v, ErrNotFinite)
		}
		return nil
	}

	std := &Standard{
		NumVars: n,
		NumRows: len(m.rows),
		ColLo:   append([]float64(nil), m.lo...),
		ColHi:   append([]float64(nil), m.hi...),
		RowLo:   make([]float64, len(m.rows)),
		RowHi:   make([]float64, len(m.rows)),
		Cost:    make([]float64, n),
		Offset:  m.obj.Lin.Constant,
	}

	// Constraint rows.
	acc := make(map[[2]int]float64)
	for i, row := range m.rows {
		for _, t := range row.expr.Terms {
			if err := check(t.Var, t.Coef, fmt.Sprintf("constraint %d", i)); err != nil {
				return nil, err
			}
			acc[[2]int{i, int(t.Var)}] += t.Coef
		}
		std.RowLo[i], std.RowHi[i] = row.lo, row.hi
	}
	std.A = sortedEntries(acc)

	// Objective: linear part.
	for _, t := range m.obj.Lin.Terms {
		if err := check(t.Var, t.Coef, "objective"); err != nil {
			return nil, err
		}
		std.Cost[t.Var] += t.Coef
	}
	if math.IsNaN(std.Offset) || math.IsInf(std.Offset, 0) {
		return nil, fmt.Errorf("objective constant: %w", ErrNotFinite)
	}

	// Objective: c x_i x_j contributes H_ii += 2c on the diagonal, H_ij = H_ji += c off it.
	hess := make(map[[2]int]float64)
	for _, q := range m.obj.Quad {
		if err := check(q.I, q.Coef, "objective"); err != nil {
			return nil, err
		}
		if err := check(q.J, q.Coef, "objective"); err != nil {
			return nil, err
		}
		i, j := int(q.I), int(q.J)
		if i == j {
			hess[[2]int{i, i}] += 2 * q.Coef
			continue
		}
		hess[[2]int{i, j}] += q.Coef
		hess[[2]int{j, i}] += q.Coef
	}
	std.Hessian = sortedEntries(hess)

	return std, nil
}

// sortedEntries flattens an accumulator into (Row, Col)-sorted entries, dropping exact zeros.
func sortedEntries(acc map[[2]int]float64) []Entry {
	out := make([]Entry, 0, len(acc))
	for k, v := range acc {
		if v == 0 {
			continue
		}
		out = append(out, Entry{Row: k[0], Col: k[1], Val: v})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Row != out[b].Row {
			return out[a].Row < out[b].Row
		}
		return out[a].Col < out[b].Col
	})

	return out
}
