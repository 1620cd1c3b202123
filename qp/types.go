// SPDX-License-Identifier: MIT

// Package qp solves convex quadratic programs
//
//	minimize   ½ xᵀPx + qᵀx
//	subject to l <= Ax <= u
//
// with the operator-splitting ADMM scheme popularized by OSQP: one Cholesky
// factorization of P + σI + AᵀRA (gonum/mat) and cheap iterations afterwards.
// Infeasibility is detected from the iterate differences and reported through
// Status rather than as an error.
package qp

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimensionMismatch is returned when P, q, A, l, u disagree in size.
	ErrDimensionMismatch = errors.New("qp: dimension mismatch")

	// ErrBadBounds is returned when l > u or a bound is NaN.
	ErrBadBounds = errors.New("qp: invalid constraint bounds")

	// ErrNotConvex is returned when the KKT matrix cannot be factorized (P not PSD).
	ErrNotConvex = errors.New("qp: KKT matrix is not positive definite")

	// ErrBadOptions is returned for non-positive step parameters or tolerances.
	ErrBadOptions = errors.New("qp: invalid options")
)

// Problem holds the data of one QP. P may be nil (linear objective); A may be
// nil when there are no constraints, in which case L and U must be empty.
type Problem struct {
	P    mat.Symmetric
	Q    []float64
	A    *mat.Dense
	L, U []float64
}

// Status is the outcome of Solve.
type Status int

const (
	// StatusSolved means both residuals are within tolerance.
	StatusSolved Status = iota
	// StatusMaxIter means the iteration limit was hit; X is the last iterate.
	StatusMaxIter
	// StatusPrimalInfeasible means a certificate of primal infeasibility was found.
	StatusPrimalInfeasible
	// StatusDualInfeasible means a certificate of dual infeasibility (unboundedness) was found.
	StatusDualInfeasible
)

// String returns a lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusSolved:
		return "solved"
	case StatusMaxIter:
		return "max_iter"
	case StatusPrimalInfeasible:
		return "primal_infeasible"
	case StatusDualInfeasible:
		return "dual_infeasible"
	default:
		return "unknown"
	}
}

// Options tune the ADMM iteration.
type Options struct {
	Rho   float64 // constraint penalty for inequality rows; equality rows use EqScale*Rho
	Sigma float64 // primal regularization
	Alpha float64 // over-relaxation in (0, 2)

	EqScale float64 // multiplier of Rho on rows with l == u

	EpsAbs, EpsRel         float64 // termination tolerances
	EpsPrimInf, EpsDualInf float64 // infeasibility certificate tolerances

	MaxIter    int // iteration limit
	CheckEvery int // residuals, infeasibility and ctx are checked every CheckEvery iterations

	WarmX, WarmY []float64 // optional starting point (lengths n and m)
}

// DefaultOptions returns the settings used by the subproblem solver.
func DefaultOptions() Options {
	return Options{
		Rho:        0.1,
		Sigma:      1e-6,
		Alpha:      1.6,
		EqScale:    1e3,
		EpsAbs:     1e-7,
		EpsRel:     1e-7,
		EpsPrimInf: 1e-6,
		EpsDualInf: 1e-6,
		MaxIter:    20000,
		CheckEvery: 10,
	}
}

func (o Options) validate() error {
	switch {
	case o.Rho <= 0, o.Sigma <= 0, o.EqScale <= 0:
		return ErrBadOptions
	case o.Alpha <= 0 || o.Alpha >= 2:
		return ErrBadOptions
	case o.EpsAbs < 0, o.EpsRel < 0, o.EpsAbs+o.EpsRel == 0:
		return ErrBadOptions
	case o.EpsPrimInf <= 0, o.EpsDualInf <= 0:
		return ErrBadOptions
	case o.MaxIter <= 0, o.CheckEvery <= 0:
		return ErrBadOptions
	}

	return nil
}

// Result is the outcome of Solve.
type Result struct {
	X, Y, Z        []float64 // primal point, constraint duals, constraint activities
	Status         Status
	Iterations     int
	Objective      float64 // ½ xᵀPx + qᵀx at X
	PrimalResidual float64 // ‖Ax - z‖∞
	DualResidual   float64 // ‖Px + q + Aᵀy‖∞
}
