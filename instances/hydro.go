// SPDX-License-Identifier: MIT

package instances

import (
	"fmt"

	"github.com/katalvlaran/phedge/model"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/tree"
)

// HydroParams describes the hydro-thermal scheduling instance.
//
// Each stage t has a turbined flow q_t >= 0, a thermal production y_t >= 0 and a
// reservoir level 0 <= l_t <= Capacity, with
//
//	l_t = l_{t-1} + rain_t − q_t   (l_{-1} = InitialLevel)
//	q_t + y_t >= Demand
//
// and cost ThermalCost·Σ y_t. First-stage rain is Rain[0]; every later stage
// draws Rain[k] with probability RainProba[k].
type HydroParams struct {
	Stages       int
	ThermalCost  float64
	Capacity     float64
	Demand       float64
	InitialLevel float64
	Rain         []float64
	RainProba    []float64
}

// DefaultHydroParams is the 5-stage, 16-scenario instance.
func DefaultHydroParams() HydroParams {
	return HydroParams{
		Stages:      5,
		ThermalCost: 5,
		Capacity:    8,
		Demand:      6,
		Rain:        []float64{2, 10},
		RainProba:   []float64{0.5, 0.5},
	}
}

// HydroScenario is one rain trajectory.
type HydroScenario struct {
	Rain   []float64
	params HydroParams
}

// NStages implements problem.Scenario.
func (s HydroScenario) NStages() int { return len(s.Rain) }

// hydroVarsPerStage is (q, y, l).
const hydroVarsPerStage = 3

// HydroThermal builds the instance on the complete tree with len(Rain) branches per stage.
func HydroThermal(p HydroParams) (*problem.Problem, error) {
	if p.Stages <= 0 || len(p.Rain) == 0 || len(p.Rain) != len(p.RainProba) || p.Capacity < 0 || p.InitialLevel < 0 || p.InitialLevel > p.Capacity {
		return nil, fmt.Errorf("hydro: %w", ErrBadParams)
	}
	if err := problem.ValidateProbabilities(p.RainProba, len(p.RainProba)); err != nil {
		return nil, fmt.Errorf("hydro: rain: %w", err)
	}
	b := len(p.Rain)
	tr, err := tree.Uniform(p.Stages, b)
	if err != nil {
		return nil, err
	}
	nscen := tr.NScenarios()

	scenarios := make([]problem.Scenario, nscen)
	probas := make([]float64, nscen)
	for s := 0; s < nscen; s++ {
		rain := make([]float64, p.Stages)
		rain[0] = p.Rain[0]
		proba := 1.0
		code := s
		for t := p.Stages - 1; t >= 1; t-- { // last stage is the least significant digit
			k := code % b
			code /= b
			rain[t] = p.Rain[k]
			proba *= p.RainProba[k]
		}
		scenarios[s] = HydroScenario{Rain: rain, params: p}
		probas[s] = proba
	}

	ranges := make([]problem.Range, p.Stages)
	for t := range ranges {
		ranges[t] = problem.Range{Lo: t * hydroVarsPerStage, Hi: (t + 1) * hydroVarsPerStage}
	}

	return problem.New(scenarios, problem.BuilderFunc(buildHydro), probas, nscen, p.Stages, ranges, tr)
}

func buildHydro(m *model.Model, s problem.Scenario, id int) (problem.Subproblem, error) {
	sc, ok := s.(HydroScenario)
	if !ok {
		return problem.Subproblem{}, fmt.Errorf("hydro: unexpected scenario %T: %w", s, ErrBadParams)
	}
	p := sc.params

	var (
		sp   problem.Subproblem
		prev model.Var = -1
	)
	for t, rain := range sc.Rain {
		q := m.AddVar(0, model.Inf, fmt.Sprintf("q[%d,%d]", id, t))
		y := m.AddVar(0, model.Inf, fmt.Sprintf("y[%d,%d]", id, t))
		l := m.AddVar(0, p.Capacity, fmt.Sprintf("l[%d,%d]", id, t))

		// l_t − l_{t−1} + q_t = rain_t
		balance := model.Sum(l, q)
		rhs := rain
		if prev >= 0 {
			balance.AddTerm(prev, -1)
		} else {
			rhs += p.InitialLevel
		}
		sp.Constraints = append(sp.Constraints,
			m.AddEq(balance, rhs),
			m.AddGe(model.Sum(q, y), p.Demand),
		)
		sp.Objective.AddTerm(y, p.ThermalCost)
		sp.Vars = append(sp.Vars, q, y, l)
		prev = l
	}

	return sp, nil
}
