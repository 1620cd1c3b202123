// SPDX-License-Identifier: MIT

// Package problem defines a multi-stage stochastic program as consumed by the
// consensus drivers: the scenarios, their probabilities, the scenario tree, the
// layout of the decision vector across stages, and the builder that turns one
// scenario into an optimization model.
//
// A Problem is read-only once New returns and may be shared by any number of
// goroutines.
package problem

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/model"
	"github.com/katalvlaran/phedge/tree"
)

// ProbaTol is the absolute tolerance on Σ p_s = 1.
const ProbaTol = 1e-9

var (
	// ErrBadProbabilities is returned when probabilities are negative, the wrong count, or do not sum to 1.
	ErrBadProbabilities = errors.New("problem: invalid scenario probabilities")

	// ErrBadStages is returned when stage ranges are empty, not contiguous or do not match the stage count.
	ErrBadStages = errors.New("problem: invalid stage to dimension ranges")

	// ErrScenarioCount is returned when scenario, tree and probability counts disagree.
	ErrScenarioCount = errors.New("problem: scenario count mismatch")

	// ErrNilBuilder is returned when no subproblem builder is given.
	ErrNilBuilder = errors.New("problem: nil builder")

	// ErrDimensionMismatch is returned when a builder's decision vector does not match Dim().
	ErrDimensionMismatch = errors.New("problem: decision vector dimension mismatch")

	// ErrAuxiliaryObjective is returned when a scenario objective references variables outside its decision vector.
	ErrAuxiliaryObjective = errors.New("problem: objective references non-decision variables")

	// ErrScenarioID is returned for scenario ids outside [0, NScenarios).
	ErrScenarioID = errors.New("problem: scenario id out of range")
)

// Scenario is opaque user data describing one realization of the uncertainty.
type Scenario interface {
	// NStages is the horizon the scenario spans.
	NStages() int
}

// Subproblem is what a Builder returns: the decision vector (flattened in stage
// order, matching Problem.StageToDim), the scenario's objective, and the
// constraint rows it added.
type Subproblem struct {
	Vars        []model.Var
	Objective   model.QuadExpr
	Constraints []model.ConstraintRef
}

// Builder declares the variables, constraints and objective of one scenario
// into m. It must be a pure function of (s, id): drivers call it concurrently
// for distinct scenarios and may call it several times for the same one.
// Build must not set m's objective; the caller composes it from Subproblem.Objective.
type Builder interface {
	Build(m *model.Model, s Scenario, id int) (Subproblem, error)
}

// BuilderFunc adapts a plain function to Builder.
type BuilderFunc func(m *model.Model, s Scenario, id int) (Subproblem, error)

// Build calls f(m, s, id).
func (f BuilderFunc) Build(m *model.Model, s Scenario, id int) (Subproblem, error) {
	return f(m, s, id)
}

// Range is the half-open coordinate range [Lo, Hi) of one stage in the decision vector.
type Range struct {
	Lo, Hi int
}

// Len returns Hi - Lo.
func (r Range) Len() int { return r.Hi - r.Lo }

// Problem bundles everything the drivers need.
type Problem struct {
	Scenarios  []Scenario
	Builder    Builder
	Probas     []float64
	NScenarios int
	NStages    int
	StageToDim []Range
	Tree       *tree.Tree

	dim  int
	objs []objectiveCache
}

type objectiveCache struct {
	once sync.Once
	eval func(y []float64) float64
	err  error
}

// New validates its arguments and returns a read-only Problem.
//
// Errors:
//   - ErrScenarioCount when len(scenarios), nscenarios and the tree disagree,
//     or a scenario spans a different number of stages;
//   - ErrBadProbabilities for a wrong length, negative value or |Σp - 1| > ProbaTol;
//   - ErrBadStages when stageToDim does not partition [0, n) contiguously in stage order;
//   - ErrNilBuilder.
func New(scenarios []Scenario, b Builder, probas []float64, nscenarios, nstages int, stageToDim []Range, tr *tree.Tree) (*Problem, error) {
	if b == nil {
		return nil, ErrNilBuilder
	}
	if nscenarios <= 0 || len(scenarios) != nscenarios {
		return nil, fmt.Errorf("%d scenarios for nscenarios=%d: %w", len(scenarios), nscenarios, ErrScenarioCount)
	}
	if tr == nil || tr.NScenarios() != nscenarios || tr.NStages() != nstages {
		return nil, fmt.Errorf("tree does not match %d scenarios over %d stages: %w", nscenarios, nstages, ErrScenarioCount)
	}
	for id, s := range scenarios {
		if s == nil || s.NStages() != nstages {
			return nil, fmt.Errorf("scenario %d: %w", id, ErrScenarioCount)
		}
	}
	if err := ValidateProbabilities(probas, nscenarios); err != nil {
		return nil, err
	}
	if len(stageToDim) != nstages {
		return nil, fmt.Errorf("%d ranges for %d stages: %w", len(stageToDim), nstages, ErrBadStages)
	}
	next := 0
	for t, r := range stageToDim {
		if r.Lo != next || r.Hi <= r.Lo {
			return nil, fmt.Errorf("stage %d range [%d,%d): %w", t, r.Lo, r.Hi, ErrBadStages)
		}
		next = r.Hi
	}

	return &Problem{
		Scenarios:  append([]Scenario(nil), scenarios...),
		Builder:    b,
		Probas:     append([]float64(nil), probas...),
		NScenarios: nscenarios,
		NStages:    nstages,
		StageToDim: append([]Range(nil), stageToDim...),
		Tree:       tr,
		dim:        next,
		objs:       make([]objectiveCache, nscenarios),
	}, nil
}

// ValidateProbabilities checks that w is a probability vector of length n.
func ValidateProbabilities(w []float64, n int) error {
	if len(w) != n {
		return fmt.Errorf("%d weights for %d scenarios: %w", len(w), n, ErrBadProbabilities)
	}
	var sum float64
	for i, p := range w {
		if math.IsNaN(p) || p < 0 {
			return fmt.Errorf("weight %d = %g: %w", i, p, ErrBadProbabilities)
		}
		sum += p
	}
	if math.Abs(sum-1) > ProbaTol {
		return fmt.Errorf("weights sum to %.12g: %w", sum, ErrBadProbabilities)
	}

	return nil
}

// Dim returns n, the length of one scenario's decision vector.
func (pb *Problem) Dim() int { return pb.dim }

// NewTable allocates a zero N×n iterate table.
func (pb *Problem) NewTable() *matrix.Dense {
	m, err := matrix.NewDense(pb.NScenarios, pb.dim)
	if err != nil {
		// New guarantees NScenarios > 0 and dim > 0.
		panic(err)
	}

	return m
}

// Build creates a fresh model holding scenario id and checks the returned decision vector.
func (pb *Problem) Build(id int) (*model.Model, Subproblem, error) {
	if id < 0 || id >= pb.NScenarios {
		return nil, Subproblem{}, fmt.Errorf("scenario %d: %w", id, ErrScenarioID)
	}
	m := model.New()
	sp, err := pb.Builder.Build(m, pb.Scenarios[id], id)
	if err != nil {
		return nil, Subproblem{}, fmt.Errorf("build scenario %d: %w", id, err)
	}
	if len(sp.Vars) != pb.dim {
		return nil, Subproblem{}, fmt.Errorf("scenario %d: %d decision vars, want %d: %w", id, len(sp.Vars), pb.dim, ErrDimensionMismatch)
	}
	for _, v := range sp.Vars {
		if v < 0 || int(v) >= m.NumVars() {
			return nil, Subproblem{}, fmt.Errorf("scenario %d: decision var %d: %w", id, v, model.ErrUnknownVar)
		}
	}

	return m, sp, nil
}

// ScenarioObjective evaluates f_id at the decision vector y.
func (pb *Problem) ScenarioObjective(id int, y []float64) (float64, error) {
	if id < 0 || id >= pb.NScenarios {
		return 0, fmt.Errorf("scenario %d: %w", id, ErrScenarioID)
	}
	if err := matrix.ValidateVecLen(y, pb.dim); err != nil {
		return 0, err
	}
	c := &pb.objs[id]
	c.once.Do(func() { c.eval, c.err = pb.compileObjective(id) })
	if c.err != nil {
		return 0, c.err
	}

	return c.eval(y), nil
}

// ObjectiveValue returns Σ_s p_s f_s(x[s]) for an N×n table x.
func (pb *Problem) ObjectiveValue(x *matrix.Dense) (float64, error) {
	if err := matrix.ValidateShape(x, pb.NScenarios, pb.dim); err != nil {
		return 0, err
	}
	var total float64
	for s := 0; s < pb.NScenarios; s++ {
		if pb.Probas[s] == 0 {
			continue
		}
		v, err := pb.ScenarioObjective(s, x.RowView(s))
		if err != nil {
			return 0, err
		}
		total += pb.Probas[s] * v
	}

	return total, nil
}

// compileObjective rewrites f_id over decision coordinates so it can be evaluated without the model.
func (pb *Problem) compileObjective(id int) (func([]float64) float64, error) {
	m, sp, err := pb.Build(id)
	if err != nil {
		return nil, err
	}
	col := make(map[model.Var]int, len(sp.Vars)) // model var -> decision coordinate
	for d, v := range sp.Vars {
		col[v] = d
	}
	for _, v := range sp.Objective.Vars() {
		if _, ok := col[v]; !ok {
			return nil, fmt.Errorf("scenario %d: %s: %w", id, m.Name(v), ErrAuxiliaryObjective)
		}
	}

	obj := sp.Objective
	return func(y []float64) float64 {
		val := obj.Lin.Constant
		for _, t := range obj.Lin.Terms {
			val += t.Coef * y[col[t.Var]]
		}
		for _, q := range obj.Quad {
			val += q.Coef * y[col[q.I]] * y[col[q.J]]
		}
		return val
	}, nil
}
