// SPDX-License-Identifier: MIT

package ph

import (
	"context"
	"math"

	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/projection"
	"github.com/katalvlaran/phedge/subproblem"
)

// SolveRandomizedPar runs randomized PH with a pool of W workers (Options.Executors,
// or Options.Workers copies of Options.Solver). Each round the coordinator
// samples up to W distinct scenarios, computes every x_s from the same z,
// dispatches them, and applies
//
//	z[s] += C·(y − x_s)
//
// as results arrive. The round ends when the whole batch is back. Result.Iterations
// counts applied updates and never exceeds MaxIter: the last batches shrink to
// the remaining budget. At least one worker is required (ErrInsufficientWorkers).
func SolveRandomizedPar(ctx context.Context, pb *problem.Problem, opts ...Option) (Result, error) {
	o, err := resolve(pb, opts)
	if err != nil {
		return Result{}, phErrorf("SolveRandomizedPar", err)
	}
	weights, err := o.Distribution.Weights(pb)
	if err != nil {
		return Result{}, phErrorf("SolveRandomizedPar", err)
	}
	execs, err := o.executors()
	if err != nil {
		return Result{}, phErrorf("SolveRandomizedPar", err)
	}
	smp := newSampler(weights, o.Seed)

	m := newMonitor(ctx, "randomized-par", pb, &o)
	solveCtx, cancel := m.solveContext()
	defer cancel()
	p := startPool(solveCtx, execs)
	defer p.stop()

	z, x := pb.NewTable(), pb.NewTable()
	ok, err := p.sweep(solveCtx, m, z)
	if err != nil {
		return Result{}, phErrorf("SolveRandomizedPar", err)
	}
	if !ok {
		m.next(0, false)
		return m.finish(x, 0, math.NaN(), math.NaN()), nil
	}
	if err := projection.ProjectInto(pb, z, x); err != nil {
		return Result{}, phErrorf("SolveRandomizedPar", err)
	}
	m.init(x)

	var (
		iter    int
		step    = math.NaN()
		prev    = x.Clone()
		leases  = newLeaseTable(pb.NScenarios)
		batch   = make([]int, 0, p.size)
		nextLog = o.PrintStep
	)
	for m.next(iter, false) {
		batch = batch[:0]
		want := p.size
		if o.MaxIter > 0 {
			want = min(want, o.MaxIter-iter)
		}
		for k := 0; k < want; k++ {
			if s := smp.draw(); !leases.busy(s) {
				leases.acquire(s)
				batch = append(batch, s)
			}
		}
		for _, s := range batch {
			t, err := newTask(pb, z, s, o.Mu, iter)
			if err != nil {
				return Result{}, phErrorf("SolveRandomizedPar", err)
			}
			p.submit(t)
		}

		for range batch {
			out, ok := p.receive(solveCtx)
			if !ok {
				break
			}
			s := out.task.req.Scenario
			leases.release(s)
			if out.err != nil && solveCtx.Err() != nil {
				break
			}
			if !m.accept(out) {
				continue
			}
			relax(z, s, out.res.Y, out.task.xs, o.C)
			iter++

			if iter >= nextLog {
				nextLog += o.PrintStep
				step = m.snapshot(z, x, prev)
				m.report(iter, x, step, math.NaN())
			}
		}
	}
	if err := projection.ProjectInto(pb, z, x); err != nil {
		return Result{}, phErrorf("SolveRandomizedPar", err)
	}

	return m.finish(x, iter, step, math.NaN()), nil
}

// newTask builds the task of scenario s against the current z: x_s is the
// averaged trajectory and the target is 2x_s − z[s]. All slices are fresh.
func newTask(pb *problem.Problem, z *matrix.Dense, s int, mu float64, read int) (task, error) {
	xs := make([]float64, pb.Dim())
	if err := projection.AveragedTrajectory(pb, z, s, xs); err != nil {
		return task{}, err
	}
	zs := z.RowView(s)
	target := make([]float64, len(xs))
	for d := range target {
		target[d] = 2*xs[d] - zs[d]
	}

	return task{req: subproblem.Request{Scenario: s, Target: target, Mu: mu}, xs: xs, read: read}, nil
}

// relax performs z[s] += eta·(y − xs).
func relax(z *matrix.Dense, s int, y, xs []float64, eta float64) {
	zs := z.RowView(s)
	for d := range zs {
		zs[d] += eta * (y[d] - xs[d])
	}
}

// accept books an outcome and reports whether its point may be applied.
func (m *monitor) accept(out outcome) bool {
	err := out.err
	if err == nil {
		err = m.checkSolution(out.res.Y)
	}
	if err != nil {
		m.failed(out.task.req.Scenario, err)
		return false
	}
	m.solved(out.res, out.took)

	return true
}

// snapshot projects z into x, returns ‖x − prev‖ and copies x into prev.
// The work is excluded from the computing time.
func (m *monitor) snapshot(z, x, prev *matrix.Dense) float64 {
	var step float64
	m.clk.exclude(func() {
		_ = projection.ProjectInto(m.pb, z, x)
		step = projection.Distance(m.pb, x, prev)
		_ = prev.CopyFrom(x)
	})

	return step
}
