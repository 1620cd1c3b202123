// SPDX-License-Identifier: MIT

package ph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/katalvlaran/phedge/history"
	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/projection"
	"github.com/katalvlaran/phedge/subproblem"
)

// Result is the outcome of a solve.
type Result struct {
	Algorithm string
	// X is the final non-anticipative point, N×n.
	X     *matrix.Dense
	State State
	// Iterations counts outer iterations (PH) or applied scenario updates (randomized).
	Iterations int
	Objective  float64

	// PrimalResidual and DualResidual are the last PH residuals; for the
	// randomized drivers PrimalResidual is the last step length and
	// DualResidual is NaN.
	PrimalResidual float64
	DualResidual   float64

	Elapsed   time.Duration
	Computing time.Duration

	// Solves counts successful subproblem solves; Failures counts solver
	// errors, panics and malformed solutions (the row is left untouched).
	Solves   int
	Failures int

	// MaxDelay and MeanDelay describe the staleness of asynchronous updates.
	MaxDelay  int
	MeanDelay float64
}

// monitor is the coordinator-side bookkeeping shared by the drivers: budgets,
// clock, logging, history, observers and counters. It is not safe for
// concurrent use; only the coordinator touches it.
type monitor struct {
	algo  string
	pb    *problem.Problem
	o     *Options
	ctx   context.Context
	log   *slog.Logger // silenced at PrintLevel 0
	warn  *slog.Logger // failures are always reported
	clk   *clock
	state State

	budget       Budget
	solves       int
	failures     int
	maxDelay     int
	windowDelay  int
	delaySum     float64
	delayCount   int
	lastReported int
}

func newMonitor(ctx context.Context, algo string, pb *problem.Problem, o *Options) *monitor {
	log := o.Logger
	if o.PrintLevel == 0 {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}

	return &monitor{
		algo:  algo,
		pb:    pb,
		o:     o,
		ctx:   ctx,
		log:   log.With("algorithm", algo),
		warn:  o.Logger.With("algorithm", algo),
		clk:   startClock(),
		state: StateInit,
		budget: Budget{
			MaxIter:          o.MaxIter,
			MaxTime:          o.MaxTime,
			MaxComputingTime: o.MaxComputingTime,
		},
		lastReported: -1,
	}
}

// solveContext derives the context handed to solvers: the caller's context
// bounded by the wall-time budget, measured from the monitor's start.
func (m *monitor) solveContext() (context.Context, context.CancelFunc) {
	if m.o.MaxTime > 0 {
		return context.WithDeadline(m.ctx, m.clk.start.Add(m.o.MaxTime))
	}

	return context.WithCancel(m.ctx)
}

// next advances the state machine at an iteration boundary.
func (m *monitor) next(iter int, converged bool) bool {
	var ok bool
	m.state, ok = ShouldContinue(m.state, m.budget, Progress{
		Iteration: iter,
		Elapsed:   m.clk.elapsed(),
		Computing: m.clk.computing(),
		Converged: converged,
		Cancelled: m.ctx.Err() != nil,
	})

	return ok
}

func (m *monitor) solved(res subproblem.Result, took time.Duration) {
	m.solves++
	if m.o.PrintLevel >= 2 {
		m.log.Debug("subproblem solved",
			"scenario", res.Scenario, "status", res.Status.String(),
			"objective", res.Objective, "iterations", res.Iterations, "took", took)
	}
}

func (m *monitor) failed(id int, err error) {
	m.failures++
	m.warn.Warn("subproblem failed, row left unchanged", "scenario", id, "error", err)
}

func (m *monitor) delay(tau int) {
	if tau > m.maxDelay {
		m.maxDelay = tau
	}
	if tau > m.windowDelay {
		m.windowDelay = tau
	}
	m.delaySum += float64(tau)
	m.delayCount++
}

// checkSolution rejects points a driver must not write into its tables.
func (m *monitor) checkSolution(y []float64) error {
	if err := matrix.ValidateVecLen(y, m.pb.Dim()); err != nil {
		return fmt.Errorf("%w: %w", ErrBadSolution, err)
	}
	if err := matrix.ValidateFinite(y); err != nil {
		return fmt.Errorf("%w: %w", ErrBadSolution, err)
	}

	return nil
}

func (m *monitor) event(iter int, x *matrix.Dense, residual, dual float64) Event {
	obj, err := m.pb.ObjectiveValue(x)
	if err != nil {
		m.log.Debug("objective unavailable", "error", err)
		obj = math.NaN()
	}

	return Event{
		Algorithm:    m.algo,
		State:        m.state,
		Iteration:    iter,
		Elapsed:      m.clk.elapsed(),
		Computing:    m.clk.computing(),
		Objective:    obj,
		Residual:     residual,
		DualResidual: dual,
		MaxDelay:     m.windowDelay,
		X:            x,
		History:      m.o.History,
	}
}

func (m *monitor) record(ev Event) {
	m.lastReported = ev.Iteration
	if m.o.History == nil {
		return
	}
	dist := math.NaN()
	if ref := m.o.History.Reference(); ref != nil && matrix.ValidateSameShape(ref, ev.X) == nil {
		dist = projection.Distance(m.pb, ev.X, ref)
	}
	m.o.History.Append(history.Entry{
		Iteration:     ev.Iteration,
		Time:          ev.Elapsed,
		ComputingTime: ev.Computing,
		Functional:    ev.Objective,
		Residual:      ev.Residual,
		DualResidual:  ev.DualResidual,
		DistOpt:       dist,
		MaxDelay:      ev.MaxDelay,
	})
}

// init reports the point produced by the initial sweep.
func (m *monitor) init(x *matrix.Dense) {
	m.clk.exclude(func() {
		ev := m.event(0, x, math.NaN(), math.NaN())
		m.record(ev)
		m.log.Info("initialized", "scenarios", m.pb.NScenarios, "dim", m.pb.Dim(),
			"objective", ev.Objective, "took", ev.Elapsed)
		for _, obs := range m.o.Observers {
			obs.OnInit(m.pb, ev)
		}
	})
	m.state = StateIterate
}

// report is one log event. Its cost is excluded from the computing time.
func (m *monitor) report(iter int, x *matrix.Dense, residual, dual float64) {
	m.clk.exclude(func() {
		ev := m.event(iter, x, residual, dual)
		m.record(ev)
		attrs := []any{"iteration", iter, "objective", ev.Objective, "residual", residual}
		if !math.IsNaN(dual) {
			attrs = append(attrs, "dual_residual", dual)
		}
		if m.delayCount > 0 {
			attrs = append(attrs, "max_delay", m.windowDelay)
		}
		attrs = append(attrs, "elapsed", ev.Elapsed)
		m.log.Info("progress", attrs...)
		for _, obs := range m.o.Observers {
			obs.OnIteration(m.pb, ev)
		}
		m.windowDelay = 0
	})
}

// finish builds the Result, records a closing history entry when the last
// iteration was not logged, and notifies observers.
func (m *monitor) finish(x *matrix.Dense, iter int, residual, dual float64) Result {
	if m.lastReported >= 0 && m.lastReported != iter {
		m.record(m.event(iter, x, residual, dual))
	}
	obj, err := m.pb.ObjectiveValue(x)
	if err != nil {
		obj = math.NaN()
	}
	res := Result{
		Algorithm:      m.algo,
		X:              x,
		State:          m.state,
		Iterations:     iter,
		Objective:      obj,
		PrimalResidual: residual,
		DualResidual:   dual,
		Elapsed:        m.clk.elapsed(),
		Computing:      m.clk.computing(),
		Solves:         m.solves,
		Failures:       m.failures,
		MaxDelay:       m.maxDelay,
	}
	if m.delayCount > 0 {
		res.MeanDelay = m.delaySum / float64(m.delayCount)
	}
	m.log.Info("terminated", "state", res.State.String(), "iterations", iter,
		"objective", obj, "failures", m.failures, "elapsed", res.Elapsed)
	for _, obs := range m.o.Observers {
		obs.OnTerminate(m.pb, res)
	}

	return res
}
