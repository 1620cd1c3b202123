// SPDX-License-Identifier: MIT

package qp

import (
	"math"

	"github.com/katalvlaran/phedge/model"
	"gonum.org/v1/gonum/mat"
)

// FromStandard converts a compiled model into a QP. Constraint rows come first,
// followed by one identity row per column with at least one finite bound.
// P is nil when the objective is linear; A is nil when there are no rows.
func FromStandard(std *model.Standard) Problem {
	n := std.NumVars
	p := Problem{Q: append([]float64(nil), std.Cost...)}

	if len(std.Hessian) > 0 {
		sym := mat.NewSymDense(n, nil)
		for _, e := range std.Hessian {
			if e.Row <= e.Col {
				sym.SetSym(e.Row, e.Col, e.Val)
			}
		}
		p.P = sym
	}

	var boundCols []int
	for j := 0; j < n; j++ {
		if !math.IsInf(std.ColLo[j], -1) || !math.IsInf(std.ColHi[j], 1) {
			boundCols = append(boundCols, j)
		}
	}
	rows := std.NumRows + len(boundCols)
	if rows == 0 {
		return p
	}

	p.A = mat.NewDense(rows, n, nil)
	p.L = make([]float64, rows)
	p.U = make([]float64, rows)
	for _, e := range std.A {
		p.A.Set(e.Row, e.Col, e.Val)
	}
	copy(p.L, std.RowLo)
	copy(p.U, std.RowHi)
	for k, j := range boundCols {
		r := std.NumRows + k
		p.A.Set(r, j, 1)
		p.L[r], p.U[r] = std.ColLo[j], std.ColHi[j]
	}

	return p
}
