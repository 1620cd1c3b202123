// SPDX-License-Identifier: MIT

package ph

import (
	"context"
	"fmt"
	"time"

	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/subproblem"
	"golang.org/x/sync/errgroup"
)

// task is what the coordinator hands to a worker. Every slice is owned by the
// task; the coordinator never touches it after dispatch.
type task struct {
	req  subproblem.Request
	xs   []float64 // averaged trajectory the update is taken against
	read int       // update counter at dispatch time
}

type outcome struct {
	task task
	res  subproblem.Result
	err  error
	took time.Duration
}

// pool runs one goroutine per executor. Both channels are buffered to the pool
// size and the coordinator never keeps more than size tasks in flight, so
// neither side blocks on a send.
type pool struct {
	tasks    chan task
	results  chan outcome
	g        errgroup.Group
	size     int
	inflight int // coordinator-owned
}

func startPool(ctx context.Context, execs []subproblem.Solver) *pool {
	p := &pool{
		tasks:   make(chan task, len(execs)),
		results: make(chan outcome, len(execs)),
		size:    len(execs),
	}
	for _, ex := range execs {
		ex := ex
		p.g.Go(func() error {
			for t := range p.tasks {
				start := time.Now()
				res, err := safeSolve(ctx, ex, t.req)
				p.results <- outcome{task: t, res: res, err: err, took: time.Since(start)}
			}
			return nil
		})
	}

	return p
}

func (p *pool) idle() bool { return p.inflight < p.size }

func (p *pool) submit(t task) {
	p.inflight++
	p.tasks <- t
}

// receive waits for the next outcome; false means ctx ended first.
func (p *pool) receive(ctx context.Context) (outcome, bool) {
	select {
	case out := <-p.results:
		p.inflight--
		return out, true
	case <-ctx.Done():
		return outcome{}, false
	}
}

// stop closes the task channel. It waits for the workers only when nothing is
// in flight: a solve that ignores its context must not delay the return.
// Workers still running exit once their solve returns.
func (p *pool) stop() {
	close(p.tasks)
	if p.inflight == 0 {
		_ = p.g.Wait()
	}
}

// sweep solves every scenario at target 0 without dual and stores the points
// in y. It returns false when ctx ended first.
func (p *pool) sweep(ctx context.Context, m *monitor, y *matrix.Dense) (bool, error) {
	n, dim := m.pb.NScenarios, m.pb.Dim()
	next := 0
	for done := 0; done < n; done++ {
		for p.idle() && next < n {
			p.submit(task{req: subproblem.Request{Scenario: next, Target: make([]float64, dim), Mu: m.o.Mu}})
			next++
		}
		out, ok := p.receive(ctx)
		if !ok {
			return false, nil
		}
		if err := storeInitial(ctx, m, y, out.res, out.err, out.took); err != nil || ctx.Err() != nil {
			return false, err
		}
	}

	return true, nil
}

// initialSweep is the sequential counterpart of pool.sweep.
func initialSweep(ctx context.Context, m *monitor, solver subproblem.Solver, y *matrix.Dense) (bool, error) {
	dim := m.pb.Dim()
	for s := 0; s < m.pb.NScenarios; s++ {
		start := time.Now()
		res, err := safeSolve(ctx, solver, subproblem.Request{Scenario: s, Target: make([]float64, dim), Mu: m.o.Mu})
		if err := storeInitial(ctx, m, y, res, err, time.Since(start)); err != nil || ctx.Err() != nil {
			return false, err
		}
	}

	return true, nil
}

// storeInitial writes one initial point. A failure here is fatal unless it
// was caused by ctx: there is no previous row to keep.
func storeInitial(ctx context.Context, m *monitor, y *matrix.Dense, res subproblem.Result, err error, took time.Duration) error {
	if err == nil {
		err = m.checkSolution(res.Y)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("scenario %d: %w: %w", res.Scenario, ErrInitFailed, err)
	}
	m.solved(res, took)

	return y.SetRow(res.Scenario, res.Y)
}

// safeSolve calls s.Solve and turns a panic into ErrWorkerPanic.
func safeSolve(ctx context.Context, s subproblem.Solver, req subproblem.Request) (res subproblem.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = subproblem.Result{Scenario: req.Scenario}, fmt.Errorf("%w: scenario %d: %v", ErrWorkerPanic, req.Scenario, r)
		}
	}()
	res, err = s.Solve(ctx, req)
	res.Scenario = req.Scenario

	return res, err
}

// leaseTable records which scenarios have a task in flight.
type leaseTable struct {
	held []bool
}

func newLeaseTable(n int) *leaseTable { return &leaseTable{held: make([]bool, n)} }

func (l *leaseTable) busy(s int) bool { return l.held[s] }

func (l *leaseTable) acquire(s int) { l.held[s] = true }

func (l *leaseTable) release(s int) { l.held[s] = false }
