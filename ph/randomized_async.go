// SPDX-License-Identifier: MIT

package ph

import (
	"context"
	"math"

	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/projection"
)

// SolveRandomizedAsync runs asynchronous randomized PH. Every idle worker gets
// a scenario that has no task in flight, together with x_s, the target
// 2x_s − z[s] and the update counter k_read. When the result arrives the
// coordinator applies
//
//	z[s] += η_s(τ)·(y − x_s),   τ = k_now − k_read,
//
// releases the scenario and re-dispatches the worker at once. With
// StepSize > 0 the step is fixed; otherwise
//
//	η_s(τ) = C·N·q_min / ((2τ·√q_min + 1)·N·q_s)
//
// where q is the sampling law. Stale results are never discarded: τ is
// recorded (Result.MaxDelay, Result.MeanDelay, history entries).
func SolveRandomizedAsync(ctx context.Context, pb *problem.Problem, opts ...Option) (Result, error) {
	o, err := resolve(pb, opts)
	if err != nil {
		return Result{}, phErrorf("SolveRandomizedAsync", err)
	}
	weights, err := o.Distribution.Weights(pb)
	if err != nil {
		return Result{}, phErrorf("SolveRandomizedAsync", err)
	}
	execs, err := o.executors()
	if err != nil {
		return Result{}, phErrorf("SolveRandomizedAsync", err)
	}
	smp := newSampler(weights, o.Seed)

	m := newMonitor(ctx, "randomized-async", pb, &o)
	solveCtx, cancel := m.solveContext()
	defer cancel()
	p := startPool(solveCtx, execs)
	defer p.stop()

	z, x := pb.NewTable(), pb.NewTable()
	ok, err := p.sweep(solveCtx, m, z)
	if err != nil {
		return Result{}, phErrorf("SolveRandomizedAsync", err)
	}
	if !ok {
		m.next(0, false)
		return m.finish(x, 0, math.NaN(), math.NaN()), nil
	}
	if err := projection.ProjectInto(pb, z, x); err != nil {
		return Result{}, phErrorf("SolveRandomizedAsync", err)
	}
	m.init(x)

	var (
		iter    int
		step    = math.NaN()
		prev    = x.Clone()
		leases  = newLeaseTable(pb.NScenarios)
		nextLog = o.PrintStep
	)
	fill := func() error {
		for p.idle() {
			s := smp.drawFree(leases.busy)
			if s < 0 {
				return nil
			}
			t, err := newTask(pb, z, s, o.Mu, iter)
			if err != nil {
				return err
			}
			leases.acquire(s)
			p.submit(t)
		}
		return nil
	}

	if err := fill(); err != nil {
		return Result{}, phErrorf("SolveRandomizedAsync", err)
	}
	for m.next(iter, false) {
		out, ok := p.receive(solveCtx)
		if !ok {
			continue
		}
		s := out.task.req.Scenario
		leases.release(s)
		if out.err != nil && solveCtx.Err() != nil {
			continue
		}
		if m.accept(out) {
			tau := iter - out.task.read
			m.delay(tau)
			relax(z, s, out.res.Y, out.task.xs, asyncStep(&o, smp, s, tau))
			iter++

			if iter >= nextLog {
				nextLog += o.PrintStep
				step = m.snapshot(z, x, prev)
				m.report(iter, x, step, math.NaN())
			}
		}
		if err := fill(); err != nil {
			return Result{}, phErrorf("SolveRandomizedAsync", err)
		}
	}
	if err := projection.ProjectInto(pb, z, x); err != nil {
		return Result{}, phErrorf("SolveRandomizedAsync", err)
	}

	return m.finish(x, iter, step, math.NaN()), nil
}

// asyncStep returns η_s(τ).
func asyncStep(o *Options, smp *sampler, s, tau int) float64 {
	if o.StepSize > 0 {
		return o.StepSize
	}
	n := float64(len(smp.weights))
	q, qmin := smp.weights[s], smp.qmin

	return o.C * n * qmin / ((2*float64(tau)*math.Sqrt(qmin) + 1) * n * q)
}
