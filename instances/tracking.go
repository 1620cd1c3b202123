// SPDX-License-Identifier: MIT

package instances

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/model"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/projection"
	"github.com/katalvlaran/phedge/subproblem"
	"github.com/katalvlaran/phedge/tree"
)

// TrackingScenario asks the decisions to follow Targets inside the box [Lo, Hi].
type TrackingScenario struct {
	Targets []float64
	Lo, Hi  float64
	Horizon int
}

// NStages implements problem.Scenario.
func (s TrackingScenario) NStages() int { return s.Horizon }

// TrackingConfig describes a tracking instance on a uniform tree.
type TrackingConfig struct {
	StageDims []int       // coordinates per stage
	Branching int         // children per node after the root
	Probas    []float64   // nil: uniform
	Targets   [][]float64 // nil: drawn in [-5, 5] from Seed
	Lo, Hi    float64     // box; both zero means [-10, 10]
	Seed      int64
}

// Tracking builds the instance
//
//	min Σ_s p_s ½‖y_s − a_s‖²  s.t. Lo <= y <= Hi, y non-anticipative,
//
// whose solution is known in closed form (see TrackingOptimum).
func Tracking(cfg TrackingConfig) (*problem.Problem, error) {
	if len(cfg.StageDims) == 0 || cfg.Branching <= 0 {
		return nil, fmt.Errorf("tracking: %w", ErrBadParams)
	}
	tr, err := tree.Uniform(len(cfg.StageDims), cfg.Branching)
	if err != nil {
		return nil, err
	}
	nscen := tr.NScenarios()

	ranges := make([]problem.Range, len(cfg.StageDims))
	dim := 0
	for t, k := range cfg.StageDims {
		if k <= 0 {
			return nil, fmt.Errorf("tracking: stage %d has %d coordinates: %w", t, k, ErrBadParams)
		}
		ranges[t] = problem.Range{Lo: dim, Hi: dim + k}
		dim += k
	}

	lo, hi := cfg.Lo, cfg.Hi
	if lo == 0 && hi == 0 {
		lo, hi = -10, 10
	}
	if lo > hi {
		return nil, fmt.Errorf("tracking: box [%g, %g]: %w", lo, hi, ErrBadParams)
	}

	targets := cfg.Targets
	if targets == nil {
		rng := rand.New(rand.NewSource(seedOrDefault(cfg.Seed)))
		targets = make([][]float64, nscen)
		for s := range targets {
			targets[s] = make([]float64, dim)
			for d := range targets[s] {
				targets[s][d] = 10*rng.Float64() - 5
			}
		}
	}
	if len(targets) != nscen {
		return nil, fmt.Errorf("tracking: %d target rows for %d scenarios: %w", len(targets), nscen, ErrBadParams)
	}

	probas := cfg.Probas
	if probas == nil {
		probas = make([]float64, nscen)
		for s := range probas {
			probas[s] = 1 / float64(nscen)
		}
	}

	scenarios := make([]problem.Scenario, nscen)
	for s := range scenarios {
		if len(targets[s]) != dim {
			return nil, fmt.Errorf("tracking: scenario %d has %d targets, want %d: %w", s, len(targets[s]), dim, ErrBadParams)
		}
		scenarios[s] = TrackingScenario{
			Targets: append([]float64(nil), targets[s]...),
			Lo:      lo,
			Hi:      hi,
			Horizon: len(cfg.StageDims),
		}
	}

	return problem.New(scenarios, problem.BuilderFunc(buildTracking), probas, nscen, len(cfg.StageDims), ranges, tr)
}

// buildTracking declares y ∈ [Lo, Hi]^n and ½‖y − a‖² = Σ ½y² − a·y + ½‖a‖².
func buildTracking(m *model.Model, s problem.Scenario, _ int) (problem.Subproblem, error) {
	sc, ok := s.(TrackingScenario)
	if !ok {
		return problem.Subproblem{}, fmt.Errorf("tracking: unexpected scenario %T: %w", s, ErrBadParams)
	}
	ys := m.AddVars(len(sc.Targets), sc.Lo, sc.Hi, "y")
	var obj model.QuadExpr
	for d, v := range ys {
		a := sc.Targets[d]
		obj.AddQuad(v, v, 0.5)
		obj.AddTerm(v, -a)
		obj.AddConstant(0.5 * a * a)
	}

	return problem.Subproblem{Vars: ys, Objective: obj}, nil
}

// TrackingOptimum returns the solution of a Tracking instance: the
// non-anticipative projection of the targets, clipped to the box.
func TrackingOptimum(pb *problem.Problem) (*matrix.Dense, error) {
	a := pb.NewTable()
	for s, sc := range pb.Scenarios {
		ts, ok := sc.(TrackingScenario)
		if !ok {
			return nil, fmt.Errorf("tracking: unexpected scenario %T: %w", sc, ErrBadParams)
		}
		if err := a.SetRow(s, ts.Targets); err != nil {
			return nil, err
		}
	}
	x, err := projection.Project(pb, a)
	if err != nil {
		return nil, err
	}
	err = x.Apply(func(i, _ int, v float64) float64 {
		ts := pb.Scenarios[i].(TrackingScenario)
		return math.Min(ts.Hi, math.Max(ts.Lo, v))
	})

	return x, err
}

// TrackingSolver solves tracking subproblems in closed form:
// y_d = clip((a_d − u_d + t_d/μ) / (1 + 1/μ), Lo, Hi).
type TrackingSolver struct {
	pb *problem.Problem
}

// NewTrackingSolver returns the closed-form solver of a Tracking instance.
func NewTrackingSolver(pb *problem.Problem) *TrackingSolver { return &TrackingSolver{pb: pb} }

// Solve implements subproblem.Solver.
func (ts *TrackingSolver) Solve(ctx context.Context, req subproblem.Request) (subproblem.Result, error) {
	if err := ctx.Err(); err != nil {
		return subproblem.Result{}, err
	}
	if err := subproblem.ValidateRequest(ts.pb, req); err != nil {
		return subproblem.Result{}, err
	}
	sc, ok := ts.pb.Scenarios[req.Scenario].(TrackingScenario)
	if !ok {
		return subproblem.Result{}, fmt.Errorf("tracking: unexpected scenario %T: %w", ts.pb.Scenarios[req.Scenario], ErrBadParams)
	}

	inv := 1 / req.Mu
	y := make([]float64, len(sc.Targets))
	var obj float64
	for d, a := range sc.Targets {
		v := a + inv*req.Target[d]
		if req.Dual != nil {
			v -= req.Dual[d]
		}
		y[d] = math.Min(sc.Hi, math.Max(sc.Lo, v/(1+inv)))
		obj += 0.5 * (y[d] - a) * (y[d] - a)
	}

	return subproblem.Result{Scenario: req.Scenario, Y: y, Status: subproblem.StatusOptimal, Objective: obj}, nil
}

var _ subproblem.Solver = (*TrackingSolver)(nil)
