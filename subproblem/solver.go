// SPDX-License-Identifier: MIT

// Package subproblem defines the per-scenario solve contract used by every
// consensus driver, and ships the default implementation backed by the qp package.
//
// A request asks for
//
//	argmin_y  f_s(y) + ⟨Dual, y⟩ + (1/2μ)‖y − Target‖²   s.t. y feasible for scenario s,
//
// where Dual is nil for the randomized variants. The solver may be called from
// many goroutines at once, but never twice concurrently for the same scenario
// by the drivers of package ph.
package subproblem

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/problem"
)

// ErrBadRequest is returned for malformed requests (bad id, lengths, μ <= 0).
var ErrBadRequest = errors.New("subproblem: bad request")

// Request is one proximal subproblem.
type Request struct {
	Scenario int
	Target   []float64
	Dual     []float64 // nil: no linear dual term
	Mu       float64
}

// Status reports the quality of a Result.
type Status int

const (
	// StatusOptimal means the backend met its tolerances.
	StatusOptimal Status = iota
	// StatusInaccurate means an iteration limit was hit; Y is the best available point.
	StatusInaccurate
	// StatusInfeasible means the scenario's constraints admit no point; Y is the last iterate.
	StatusInfeasible
	// StatusUnbounded means the objective is unbounded below; Y is the last iterate.
	StatusUnbounded
)

// String returns a lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInaccurate:
		return "inaccurate"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	default:
		return "unknown"
	}
}

// Result is the answer to a Request.
type Result struct {
	Scenario   int
	Y          []float64
	Status     Status
	Objective  float64 // f_s(Y), without the proximal and dual terms
	Iterations int
}

// Solver solves proximal subproblems. Implementations must be safe for
// concurrent calls on distinct scenarios.
type Solver interface {
	Solve(ctx context.Context, req Request) (Result, error)
}

// SolverFunc adapts a plain function to Solver.
type SolverFunc func(ctx context.Context, req Request) (Result, error)

// Solve calls f(ctx, req).
func (f SolverFunc) Solve(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

// ValidateRequest checks req against the dimensions of pb.
func ValidateRequest(pb *problem.Problem, req Request) error {
	if req.Scenario < 0 || req.Scenario >= pb.NScenarios {
		return fmt.Errorf("scenario %d: %w", req.Scenario, ErrBadRequest)
	}
	if math.IsNaN(req.Mu) || req.Mu <= 0 {
		return fmt.Errorf("mu %g: %w", req.Mu, ErrBadRequest)
	}
	if err := matrix.ValidateVecLen(req.Target, pb.Dim()); err != nil {
		return fmt.Errorf("target: %w: %w", ErrBadRequest, err)
	}
	if req.Dual != nil {
		if err := matrix.ValidateVecLen(req.Dual, pb.Dim()); err != nil {
			return fmt.Errorf("dual: %w: %w", ErrBadRequest, err)
		}
	}

	return nil
}
