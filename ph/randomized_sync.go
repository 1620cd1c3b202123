// SPDX-License-Identifier: MIT

package ph

import (
	"context"
	"math"
	"time"

	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/projection"
	"github.com/katalvlaran/phedge/subproblem"
)

// SolveRandomizedSync runs randomized PH on the caller's goroutine. Each
// iteration samples one scenario s from Options.Distribution and performs
//
//	x_s  = (Π z)[s]
//	y    = argmin f_s(y) + (1/2μ)‖y − (2x_s − z[s])‖²
//	z[s] += y − x_s
//
// Every PrintStep iterations the full projection Π(z) is computed, logged and
// compared with the previous one (the step length reported as residual).
// There is no convergence test: the run ends on a budget.
func SolveRandomizedSync(ctx context.Context, pb *problem.Problem, opts ...Option) (Result, error) {
	o, err := resolve(pb, opts)
	if err != nil {
		return Result{}, phErrorf("SolveRandomizedSync", err)
	}
	weights, err := o.Distribution.Weights(pb)
	if err != nil {
		return Result{}, phErrorf("SolveRandomizedSync", err)
	}
	smp := newSampler(weights, o.Seed)

	m := newMonitor(ctx, "randomized-sync", pb, &o)
	solveCtx, cancel := m.solveContext()
	defer cancel()

	z, x := pb.NewTable(), pb.NewTable()
	ok, err := initialSweep(solveCtx, m, o.Solver, z)
	if err != nil {
		return Result{}, phErrorf("SolveRandomizedSync", err)
	}
	if !ok {
		m.next(0, false)
		return m.finish(x, 0, math.NaN(), math.NaN()), nil
	}
	if err := projection.ProjectInto(pb, z, x); err != nil {
		return Result{}, phErrorf("SolveRandomizedSync", err)
	}
	m.init(x)

	var (
		iter   int
		step   = math.NaN()
		prev   = x.Clone()
		xs     = make([]float64, pb.Dim())
		target = make([]float64, pb.Dim())
	)
	for m.next(iter, false) {
		s := smp.draw()
		if err := projection.AveragedTrajectory(pb, z, s, xs); err != nil {
			return Result{}, phErrorf("SolveRandomizedSync", err)
		}
		zs := z.RowView(s)
		for d := range target {
			target[d] = 2*xs[d] - zs[d]
		}
		start := time.Now()
		res, err := safeSolve(solveCtx, o.Solver, subproblem.Request{Scenario: s, Target: target, Mu: o.Mu})
		if err == nil {
			err = m.checkSolution(res.Y)
		}
		if err != nil {
			if solveCtx.Err() != nil {
				continue
			}
			m.failed(s, err)
			iter++
			continue
		}
		m.solved(res, time.Since(start))
		relax(z, s, res.Y, xs, 1)
		iter++

		if iter%o.PrintStep == 0 {
			step = m.snapshot(z, x, prev)
			m.report(iter, x, step, math.NaN())
		}
	}
	if err := projection.ProjectInto(pb, z, x); err != nil {
		return Result{}, phErrorf("SolveRandomizedSync", err)
	}

	return m.finish(x, iter, step, math.NaN()), nil
}
