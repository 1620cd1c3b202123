// SPDX-License-Identifier: MIT

package model

// Var is a column handle inside one Model.
type Var int

// Term is coef * x[Var].
type Term struct {
	Var  Var
	Coef float64
}

// LinExpr is Σ coef_k x[v_k] + Constant. Repeated variables are allowed and summed on Compile.
type LinExpr struct {
	Terms    []Term
	Constant float64
}

// Lin builds a LinExpr from the given terms.
func Lin(terms ...Term) LinExpr {
	return LinExpr{Terms: append([]Term(nil), terms...)}
}

// Sum returns Σ x[v] over vars with unit coefficients.
func Sum(vars ...Var) LinExpr {
	e := LinExpr{Terms: make([]Term, len(vars))}
	for k, v := range vars {
		e.Terms[k] = Term{Var: v, Coef: 1}
	}

	return e
}

// AddTerm appends coef * x[v].
func (e *LinExpr) AddTerm(v Var, coef float64) {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
}

// Eval returns the value of e at x (x indexed by Var).
func (e LinExpr) Eval(x []float64) float64 {
	val := e.Constant
	for _, t := range e.Terms {
		val += t.Coef * x[t.Var]
	}

	return val
}

// QuadTerm is Coef * x[I] * x[J].
type QuadTerm struct {
	I, J Var
	Coef float64
}

// QuadExpr is Σ Coef x[I] x[J] + Lin.
type QuadExpr struct {
	Lin  LinExpr
	Quad []QuadTerm
}

// AddTerm appends the linear term coef * x[v].
func (e *QuadExpr) AddTerm(v Var, coef float64) {
	e.Lin.AddTerm(v, coef)
}

// AddQuad appends coef * x[i] * x[j].
func (e *QuadExpr) AddQuad(i, j Var, coef float64) {
	e.Quad = append(e.Quad, QuadTerm{I: i, J: j, Coef: coef})
}

// AddConstant adds c to the constant part.
func (e *QuadExpr) AddConstant(c float64) {
	e.Lin.Constant += c
}

// AddScaled appends scale * other to e.
func (e *QuadExpr) AddScaled(scale float64, other QuadExpr) {
	for _, t := range other.Lin.Terms {
		e.Lin.AddTerm(t.Var, scale*t.Coef)
	}
	e.Lin.Constant += scale * other.Lin.Constant
	for _, q := range other.Quad {
		e.AddQuad(q.I, q.J, scale*q.Coef)
	}
}

// IsLinear reports whether e carries no quadratic term with a non-zero coefficient.
func (e QuadExpr) IsLinear() bool {
	for _, q := range e.Quad {
		if q.Coef != 0 {
			return false
		}
	}

	return true
}

// Eval returns the value of e at x (x indexed by Var).
func (e QuadExpr) Eval(x []float64) float64 {
	val := e.Lin.Eval(x)
	for _, q := range e.Quad {
		val += q.Coef * x[q.I] * x[q.J]
	}

	return val
}

// Vars returns every variable referenced by e, in first-seen order, without duplicates.
func (e QuadExpr) Vars() []Var {
	seen := make(map[Var]struct{})
	var out []Var
	add := func(v Var) {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	for _, t := range e.Lin.Terms {
		add(t.Var)
	}
	for _, q := range e.Quad {
		add(q.I)
		add(q.J)
	}

	return out
}
