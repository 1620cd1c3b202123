// SPDX-License-Identifier: MIT

package subproblem

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/qp"
	"gonum.org/v1/gonum/mat"
)

// QPSolver is the default Solver: it builds the scenario through the problem's
// builder (once per scenario), adds the proximal and dual terms and runs qp.Solve.
// Each scenario keeps its last solution as a warm start.
type QPSolver struct {
	pb     *problem.Problem
	opts   qp.Options
	logger *slog.Logger

	bases []scenarioBase
}

// scenarioBase is the compiled, request-independent part of one scenario.
type scenarioBase struct {
	once sync.Once
	err  error

	n    int        // model columns
	vars []int      // model column of each decision coordinate
	prob qp.Problem // f_s and the scenario constraints

	mu    sync.Mutex
	warmX []float64 // guarded by mu
	warmY []float64
}

// QPOption configures a QPSolver.
type QPOption func(*QPSolver)

// WithQPOptions overrides the ADMM settings.
func WithQPOptions(o qp.Options) QPOption {
	return func(s *QPSolver) { s.opts = o }
}

// WithLogger sets the logger used for non-optimal solves.
func WithLogger(l *slog.Logger) QPOption {
	return func(s *QPSolver) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewQPSolver returns a QPSolver bound to pb.
func NewQPSolver(pb *problem.Problem, opts ...QPOption) *QPSolver {
	s := &QPSolver{
		pb:     pb,
		opts:   qp.DefaultOptions(),
		logger: slog.Default().With("component", "subproblem"),
		bases:  make([]scenarioBase, pb.NScenarios),
	}
	for _, o := range opts {
		o(s)
	}

	return s
}

// Solve implements Solver.
//
// Non-optimal backend outcomes (iteration limit, infeasible, unbounded) are
// logged at Warn and returned with a nil error; the point is the solver's
// last iterate.
func (s *QPSolver) Solve(ctx context.Context, req Request) (Result, error) {
	if err := ValidateRequest(s.pb, req); err != nil {
		return Result{}, err
	}
	base := &s.bases[req.Scenario]
	base.once.Do(func() { base.err = base.compile(s.pb, req.Scenario) })
	if base.err != nil {
		return Result{}, base.err
	}

	n := base.n
	hess := mat.NewSymDense(n, nil)
	if base.prob.P != nil {
		hess.CopySym(base.prob.P)
	}
	q := make([]float64, n)
	copy(q, base.prob.Q)
	inv := 1 / req.Mu
	for d, col := range base.vars {
		hess.SetSym(col, col, hess.At(col, col)+inv)
		q[col] -= inv * req.Target[d]
		if req.Dual != nil {
			q[col] += req.Dual[d]
		}
	}

	opts := s.opts
	base.mu.Lock()
	opts.WarmX, opts.WarmY = base.warmX, base.warmY
	base.mu.Unlock()

	res, err := qp.Solve(ctx, qp.Problem{P: hess, Q: q, A: base.prob.A, L: base.prob.L, U: base.prob.U}, opts)
	if err != nil {
		return Result{}, fmt.Errorf("scenario %d: %w", req.Scenario, err)
	}

	out := Result{
		Scenario:   req.Scenario,
		Y:          make([]float64, len(base.vars)),
		Status:     statusOf(res.Status),
		Iterations: res.Iterations,
	}
	for d, col := range base.vars {
		out.Y[d] = res.X[col]
	}
	if out.Status != StatusOptimal {
		s.logger.Warn("subproblem not solved to optimality",
			"scenario", req.Scenario, "status", out.Status.String(), "iterations", res.Iterations)
	} else {
		base.mu.Lock()
		base.warmX, base.warmY = res.X, res.Y
		base.mu.Unlock()
	}
	out.Objective, err = s.pb.ScenarioObjective(req.Scenario, out.Y)
	if err != nil {
		out.Objective = math.NaN()
	}

	return out, nil
}

// compile builds the scenario model once; column bounds become explicit rows
// so that qp sees a single l <= Ax <= u block.
func (b *scenarioBase) compile(pb *problem.Problem, id int) error {
	m, sp, err := pb.Build(id)
	if err != nil {
		return err
	}
	m.SetObjective(sp.Objective)
	std, err := m.Compile()
	if err != nil {
		return fmt.Errorf("scenario %d: %w", id, err)
	}

	b.n = std.NumVars
	b.vars = make([]int, len(sp.Vars))
	for d, v := range sp.Vars {
		b.vars[d] = int(v)
	}
	b.prob = qp.FromStandard(std)

	return nil
}

func statusOf(s qp.Status) Status {
	switch s {
	case qp.StatusSolved:
		return StatusOptimal
	case qp.StatusPrimalInfeasible:
		return StatusInfeasible
	case qp.StatusDualInfeasible:
		return StatusUnbounded
	default:
		return StatusInaccurate
	}
}

var _ Solver = (*QPSolver)(nil)
