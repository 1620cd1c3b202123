// SPDX-License-Identifier: MIT

package ph

import (
	"context"
	"fmt"
	"math"

	"github.com/katalvlaran/phedge/model"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/qp"
	"github.com/katalvlaran/phedge/simplex"
)

// SolveDirect solves the extensive form of pb: every scenario is built into a
// single model, the objective is Σ_s p_s f_s and, for every stage t, class C
// and coordinate d of stage t,
//
//	x[s,d] − x[rep(C),d] = 0   for s ∈ C \ {rep(C)},
//
// rep(C) being the first scenario of the class. The LP backend is used for
// linear objectives unless Options.Backend says otherwise.
//
// Result.Iterations is 1 for the simplex backend and the ADMM iteration count
// for the QP backend. Budgets other than ctx do not apply.
func SolveDirect(ctx context.Context, pb *problem.Problem, opts ...Option) (Result, error) {
	o, err := resolve(pb, opts)
	if err != nil {
		return Result{}, phErrorf("SolveDirect", err)
	}
	m := newMonitor(ctx, "direct", pb, &o)

	mdl := model.New()
	var obj model.QuadExpr
	cols := make([][]model.Var, pb.NScenarios)
	for s := 0; s < pb.NScenarios; s++ {
		sp, err := pb.Builder.Build(mdl, pb.Scenarios[s], s)
		if err != nil {
			return Result{}, phErrorf("SolveDirect", fmt.Errorf("build scenario %d: %w", s, err))
		}
		if len(sp.Vars) != pb.Dim() {
			return Result{}, phErrorf("SolveDirect", fmt.Errorf("scenario %d: %d decision vars, want %d: %w",
				s, len(sp.Vars), pb.Dim(), problem.ErrDimensionMismatch))
		}
		obj.AddScaled(pb.Probas[s], sp.Objective)
		cols[s] = sp.Vars
	}
	for t, r := range pb.StageToDim {
		for _, class := range pb.Tree.Classes(t) {
			rep := class[0]
			for _, s := range class[1:] {
				for d := r.Lo; d < r.Hi; d++ {
					mdl.AddEq(model.Lin(model.Term{Var: cols[s][d], Coef: 1}, model.Term{Var: cols[rep][d], Coef: -1}), 0)
				}
			}
		}
	}
	mdl.SetObjective(obj)
	std, err := mdl.Compile()
	if err != nil {
		return Result{}, phErrorf("SolveDirect", err)
	}

	backend := o.Backend
	if backend == BackendAuto {
		backend = BackendQP
		if std.IsLinear() {
			backend = BackendSimplex
		}
	}
	m.log.Info("extensive form built", "vars", std.NumVars, "rows", std.NumRows, "backend", backend.String())

	var (
		sol   []float64
		iters = 1
	)
	switch backend {
	case BackendSimplex:
		res, err := simplex.Solve(std)
		if err != nil {
			return Result{}, phErrorf("SolveDirect", fmt.Errorf("%w: %w", ErrDirectFailed, err))
		}
		sol = res.X
	default:
		res, err := qp.Solve(ctx, qp.FromStandard(std), o.QP)
		if err != nil {
			if ctx.Err() != nil {
				m.next(0, false)
				return m.finish(pb.NewTable(), 0, math.NaN(), math.NaN()), nil
			}
			return Result{}, phErrorf("SolveDirect", err)
		}
		if res.Status != qp.StatusSolved {
			return Result{}, phErrorf("SolveDirect", fmt.Errorf("%w: %s", ErrDirectFailed, res.Status))
		}
		sol, iters = res.X, res.Iterations
	}

	x := pb.NewTable()
	for s, vars := range cols {
		row := x.RowView(s)
		for d, v := range vars {
			row[d] = sol[v]
		}
	}
	m.state = StateConverged

	return m.finish(x, iters, 0, 0), nil
}
