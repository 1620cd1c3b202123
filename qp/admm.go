// SPDX-License-Identifier: MIT

package qp

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// rhoLoose is the penalty applied to rows with both bounds infinite.
const rhoLoose = 1e-6

// Solve runs ADMM on p.
//
// Implementation:
//   - Stage 1: validate shapes, bounds and options; build per-row penalties ρ_i.
//   - Stage 2: factorize K = P + σI + AᵀRA once (Cholesky).
//   - Stage 3: iterate
//     x̃ = K⁻¹(σx − q + Aᵀ(Rz − y)),  z̃ = Ax̃,
//     x ← αx̃ + (1−α)x,  ẑ = αz̃ + (1−α)z,
//     z ← Π[l,u](ẑ + R⁻¹y),  y ← y + R(ẑ − z),
//     checking termination and infeasibility every CheckEvery iterations.
//
// Errors:
//   - ErrDimensionMismatch, ErrBadBounds, ErrBadOptions, ErrNotConvex;
//   - ctx.Err() when the context ends before termination.
//
// Complexity:
//   - Factorization O(n³ + n²m); each iteration O(n² + nm).
func Solve(ctx context.Context, p Problem, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	n, m, err := dims(p)
	if err != nil {
		return Result{}, err
	}

	rho := make([]float64, m)
	for i := range rho {
		switch {
		case math.IsInf(p.L[i], -1) && math.IsInf(p.U[i], 1):
			rho[i] = rhoLoose
		case p.L[i] == p.U[i]:
			rho[i] = opts.EqScale * opts.Rho
		default:
			rho[i] = opts.Rho
		}
	}

	// K = P + σI + AᵀRA.
	kkt := mat.NewSymDense(n, nil)
	var ata mat.SymDense
	if m > 0 {
		ra := mat.DenseCopyOf(p.A)
		for i := 0; i < m; i++ {
			row := ra.RawRowView(i)
			s := math.Sqrt(rho[i])
			for j := range row {
				row[j] *= s
			}
		}
		ata.SymOuterK(1, ra.T())
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.0
			if p.P != nil {
				v += p.P.At(i, j)
			}
			if m > 0 {
				v += ata.At(i, j)
			}
			if i == j {
				v += opts.Sigma
			}
			kkt.SetSym(i, j, v)
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(kkt); !ok {
		return Result{}, ErrNotConvex
	}

	var (
		x     = make([]float64, n)
		xPrev = make([]float64, n)
		z     = make([]float64, m)
		y     = make([]float64, m)
		yPrev = make([]float64, m)
		w     = make([]float64, m)
		rhs   = mat.NewVecDense(n, nil)
		xt    = mat.NewVecDense(n, nil)
		zt    *mat.VecDense
	)
	if m > 0 {
		zt = mat.NewVecDense(m, nil)
	}
	if len(opts.WarmX) == n {
		copy(x, opts.WarmX)
	}
	if len(opts.WarmY) == m {
		copy(y, opts.WarmY)
	}
	if m > 0 {
		zt.MulVec(p.A, mat.NewVecDense(n, x))
		for i := range z {
			z[i] = clamp(zt.AtVec(i), p.L[i], p.U[i])
		}
	}

	res := Result{Status: StatusMaxIter}
	for k := 1; k <= opts.MaxIter; k++ {
		copy(xPrev, x)
		copy(yPrev, y)

		// rhs = σx − q + Aᵀ(Rz − y)
		if m > 0 {
			for i := range w {
				w[i] = rho[i]*z[i] - y[i]
			}
			rhs.MulVec(p.A.T(), mat.NewVecDense(m, w))
		} else {
			rhs.Zero()
		}
		for j := 0; j < n; j++ {
			rhs.SetVec(j, rhs.AtVec(j)+opts.Sigma*x[j]-p.Q[j])
		}
		if err := chol.SolveVecTo(xt, rhs); err != nil {
			return Result{}, fmt.Errorf("qp: solve: %w", err)
		}
		for j := 0; j < n; j++ {
			x[j] = opts.Alpha*xt.AtVec(j) + (1-opts.Alpha)*x[j]
		}
		if m > 0 {
			zt.MulVec(p.A, xt)
			for i := 0; i < m; i++ {
				zr := opts.Alpha*zt.AtVec(i) + (1-opts.Alpha)*z[i]
				zn := clamp(zr+y[i]/rho[i], p.L[i], p.U[i])
				y[i] += rho[i] * (zr - zn)
				z[i] = zn
			}
		}

		if k%opts.CheckEvery != 0 && k != opts.MaxIter {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res.Iterations = k
		prim, dual, converged := residuals(p, x, y, z, opts)
		res.PrimalResidual, res.DualResidual = prim, dual
		if converged {
			res.Status = StatusSolved
			break
		}
		if m > 0 && primalInfeasible(p, y, yPrev, opts.EpsPrimInf) {
			res.Status = StatusPrimalInfeasible
			break
		}
		if dualInfeasible(p, x, xPrev, opts.EpsDualInf) {
			res.Status = StatusDualInfeasible
			break
		}
	}

	res.X, res.Y, res.Z = x, y, z
	res.Objective = objective(p, x)

	return res, nil
}

// dims validates the shapes of p and returns (n, m).
func dims(p Problem) (int, int, error) {
	n := len(p.Q)
	if n == 0 {
		return 0, 0, fmt.Errorf("empty q: %w", ErrDimensionMismatch)
	}
	if p.P != nil && p.P.SymmetricDim() != n {
		return 0, 0, fmt.Errorf("P is %d, q is %d: %w", p.P.SymmetricDim(), n, ErrDimensionMismatch)
	}
	m := 0
	if p.A != nil {
		r, c := p.A.Dims()
		if c != n {
			return 0, 0, fmt.Errorf("A has %d columns, q has %d: %w", c, n, ErrDimensionMismatch)
		}
		m = r
	}
	if len(p.L) != m || len(p.U) != m {
		return 0, 0, fmt.Errorf("bounds %d/%d for %d rows: %w", len(p.L), len(p.U), m, ErrDimensionMismatch)
	}
	for i := 0; i < m; i++ {
		if math.IsNaN(p.L[i]) || math.IsNaN(p.U[i]) || p.L[i] > p.U[i] {
			return 0, 0, fmt.Errorf("row %d [%g, %g]: %w", i, p.L[i], p.U[i], ErrBadBounds)
		}
	}

	return n, m, nil
}

// residuals returns ‖Ax − z‖∞, ‖Px + q + Aᵀy‖∞ and whether both meet their tolerances.
func residuals(p Problem, x, y, z []float64, o Options) (float64, float64, bool) {
	n, m := len(x), len(z)
	xv := mat.NewVecDense(n, x)

	var prim, normAx, normZ float64
	if m > 0 {
		var ax mat.VecDense
		ax.MulVec(p.A, xv)
		for i := 0; i < m; i++ {
			prim = math.Max(prim, math.Abs(ax.AtVec(i)-z[i]))
			normAx = math.Max(normAx, math.Abs(ax.AtVec(i)))
			normZ = math.Max(normZ, math.Abs(z[i]))
		}
	}

	px := make([]float64, n)
	if p.P != nil {
		var v mat.VecDense
		v.MulVec(p.P, xv)
		for j := range px {
			px[j] = v.AtVec(j)
		}
	}
	aty := make([]float64, n)
	if m > 0 {
		var v mat.VecDense
		v.MulVec(p.A.T(), mat.NewVecDense(m, y))
		for j := range aty {
			aty[j] = v.AtVec(j)
		}
	}
	var dual, normPx, normAty, normQ float64
	for j := 0; j < n; j++ {
		dual = math.Max(dual, math.Abs(px[j]+p.Q[j]+aty[j]))
		normPx = math.Max(normPx, math.Abs(px[j]))
		normAty = math.Max(normAty, math.Abs(aty[j]))
		normQ = math.Max(normQ, math.Abs(p.Q[j]))
	}

	epsPrim := o.EpsAbs + o.EpsRel*math.Max(normAx, normZ)
	epsDual := o.EpsAbs + o.EpsRel*math.Max(normPx, math.Max(normAty, normQ))

	return prim, dual, prim <= epsPrim && dual <= epsDual
}

// primalInfeasible tests δy = y − yPrev as a certificate:
// ‖Aᵀδy‖∞ <= ε‖δy‖∞ and uᵀδy₊ + lᵀδy₋ < −ε‖δy‖∞.
func primalInfeasible(p Problem, y, yPrev []float64, eps float64) bool {
	m := len(y)
	dy := make([]float64, m)
	var norm float64
	for i := range dy {
		dy[i] = y[i] - yPrev[i]
		norm = math.Max(norm, math.Abs(dy[i]))
	}
	if norm < 1e-12 {
		return false
	}
	tol := eps * norm

	var support float64
	for i, d := range dy {
		switch {
		case d > tol:
			if math.IsInf(p.U[i], 1) {
				return false
			}
			support += p.U[i] * d
		case d < -tol:
			if math.IsInf(p.L[i], -1) {
				return false
			}
			support += p.L[i] * d
		}
	}
	if support >= -tol {
		return false
	}

	var aty mat.VecDense
	aty.MulVec(p.A.T(), mat.NewVecDense(m, dy))
	for j := 0; j < aty.Len(); j++ {
		if math.Abs(aty.AtVec(j)) > tol {
			return false
		}
	}

	return true
}

// dualInfeasible tests δx = x − xPrev as a certificate of unboundedness:
// ‖Pδx‖∞ <= ε‖δx‖∞, qᵀδx < −ε‖δx‖∞ and Aδx compatible with the bound directions.
func dualInfeasible(p Problem, x, xPrev []float64, eps float64) bool {
	n := len(x)
	dx := make([]float64, n)
	var norm float64
	for j := range dx {
		dx[j] = x[j] - xPrev[j]
		norm = math.Max(norm, math.Abs(dx[j]))
	}
	if norm < 1e-12 {
		return false
	}
	tol := eps * norm

	var qdx float64
	for j := range dx {
		qdx += p.Q[j] * dx[j]
	}
	if qdx >= -tol {
		return false
	}

	dv := mat.NewVecDense(n, dx)
	if p.P != nil {
		var pdx mat.VecDense
		pdx.MulVec(p.P, dv)
		for j := 0; j < n; j++ {
			if math.Abs(pdx.AtVec(j)) > tol {
				return false
			}
		}
	}
	if p.A != nil {
		var adx mat.VecDense
		adx.MulVec(p.A, dv)
		for i := 0; i < adx.Len(); i++ {
			v := adx.AtVec(i)
			loFinite, hiFinite := !math.IsInf(p.L[i], -1), !math.IsInf(p.U[i], 1)
			if hiFinite && v > tol {
				return false
			}
			if loFinite && v < -tol {
				return false
			}
		}
	}

	return true
}

// objective returns ½ xᵀPx + qᵀx.
func objective(p Problem, x []float64) float64 {
	var val float64
	for j, q := range p.Q {
		val += q * x[j]
	}
	if p.P != nil {
		xv := mat.NewVecDense(len(x), x)
		val += 0.5 * mat.Inner(xv, p.P, xv)
	}

	return val
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}
