// SPDX-License-Identifier: MIT

package ph

import (
	"context"
	"math"
	"time"

	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/projection"
	"github.com/katalvlaran/phedge/subproblem"
)

// SolveProgressiveHedging runs the classical synchronous PH algorithm:
//
//	INIT:    y[s] = argmin f_s(y) + (1/2μ)‖y‖²        for every s
//	         x = Π(y),  u = (y − x)/μ
//	ITERATE: y[s] = argmin f_s(y) + ⟨u[s], y⟩ + (1/2μ)‖y − x[s]‖²
//	         x = Π(y),  u += (y − x)/μ
//
// until ‖x − y‖ < EpsPrimal and (1/μ)‖u − u_old‖ < EpsDual (weighted norms)
// or a budget runs out. Each iteration performs exactly N solves in scenario
// order on the caller's goroutine. A sweep cut short by the time budget or by
// ctx is discarded and the previous x is returned.
//
// A solver error outside the initial sweep is counted in Result.Failures and
// leaves the scenario's previous y in place.
func SolveProgressiveHedging(ctx context.Context, pb *problem.Problem, opts ...Option) (Result, error) {
	o, err := resolve(pb, opts)
	if err != nil {
		return Result{}, phErrorf("SolveProgressiveHedging", err)
	}
	m := newMonitor(ctx, "progressive-hedging", pb, &o)
	solveCtx, cancel := m.solveContext()
	defer cancel()

	y, x, u := pb.NewTable(), pb.NewTable(), pb.NewTable()
	ok, err := initialSweep(solveCtx, m, o.Solver, y)
	if err != nil {
		return Result{}, phErrorf("SolveProgressiveHedging", err)
	}
	if !ok {
		m.next(0, false)
		return m.finish(x, 0, math.NaN(), math.NaN()), nil
	}
	if err := projection.ProjectInto(pb, y, x); err != nil {
		return Result{}, phErrorf("SolveProgressiveHedging", err)
	}
	inv := 1 / o.Mu
	updateDual(u, y, x, inv, nil)
	m.init(x)

	var (
		iter            int
		primal, dual    = math.NaN(), math.NaN()
		converged       bool
		delta           = pb.NewTable() // u − u_old
		target, dualRow = make([]float64, pb.Dim()), make([]float64, pb.Dim())
	)
	for m.next(iter, converged) {
		complete := true
		for s := 0; s < pb.NScenarios; s++ {
			copy(target, x.RowView(s))
			copy(dualRow, u.RowView(s))
			start := time.Now()
			res, err := safeSolve(solveCtx, o.Solver, subproblem.Request{Scenario: s, Target: target, Dual: dualRow, Mu: o.Mu})
			if err == nil {
				err = m.checkSolution(res.Y)
			}
			if err != nil {
				if solveCtx.Err() != nil {
					complete = false
					break
				}
				m.failed(s, err)
				continue
			}
			m.solved(res, time.Since(start))
			copy(y.RowView(s), res.Y)
		}
		if !complete {
			// Budget or caller; the next boundary check terminates.
			continue
		}
		iter++

		if err := projection.ProjectInto(pb, y, x); err != nil {
			return Result{}, phErrorf("SolveProgressiveHedging", err)
		}
		updateDual(u, y, x, inv, delta)
		primal = projection.Distance(pb, x, y)
		dual = inv * projection.Norm(pb, delta)
		converged = primal < o.EpsPrimal && dual < o.EpsDual

		if iter%o.PrintStep == 0 || converged {
			m.report(iter, x, primal, dual)
		}
	}

	return m.finish(x, iter, primal, dual), nil
}

// updateDual performs u += inv·(y − x) and stores the increment in delta when non-nil.
func updateDual(u, y, x *matrix.Dense, inv float64, delta *matrix.Dense) {
	for s := 0; s < u.Rows(); s++ {
		ur, yr, xr := u.RowView(s), y.RowView(s), x.RowView(s)
		for d := range ur {
			step := inv * (yr[d] - xr[d])
			ur[d] += step
			if delta != nil {
				delta.RowView(s)[d] = step
			}
		}
	}
}
