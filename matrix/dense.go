// SPDX-License-Identifier: MIT

// Package matrix - Dense storage (row-major) & safe accessors.
//
// Purpose:
//   - Provide a cache-friendly row-major buffer with the explicit index formula i*cols + j.
//   - Guarantee safety at the public surface: At/Set return errors instead of panicking.
//   - Enforce the numeric policy (rejection of NaN/Inf) from a single place.
//
// AI-Hints:
//   - Drivers mutate rows in place through RowView; everything else should prefer Row (copy).
//   - Clone before handing a table to observers that may keep it.

package matrix

import (
	"fmt"
	"math"
	"strings"
)

// ---------- error context tags ----------

const (
	ctxAt     = "At"     // method tag used in error wrappers
	ctxSet    = "Set"    // method tag used in error wrappers
	ctxRow    = "Row"    // method tag used in error wrappers
	ctxSetRow = "SetRow" // method tag used in error wrappers
	ctxApply  = "Apply"  // method tag used in error wrappers
)

// ---------- Formatting literals ----------
const (
	_fmtRowOpen  = "["
	_fmtRowClose = "]\n"
	_fmtSep      = ", "
)

// denseErrorf wraps an error with a uniform Dense context and callsite indices.
// Format: "Dense.<method>(row,col): %w"; the sentinel stays matchable via errors.Is.
func denseErrorf(method string, row, col int, err error) error {
	return fmt.Errorf("Dense.%s(%d,%d): %w", method, row, col, err)
}

// Dense is a concrete row-major matrix.
//   - r,c hold dimensions (rows, cols).
//   - data is a flat buffer of length r*c in row-major order (offset = i*c + j).
type Dense struct {
	r, c int       // row and column counts (>0)
	data []float64 // contiguous row-major storage (len == r*c)
}

var _ fmt.Stringer = (*Dense)(nil)

// NewDense creates an r×c zero matrix using row-major storage.
//
// Errors:
//   - ErrInvalidDimensions when rows <= 0 or cols <= 0.
//
// Complexity:
//   - Time O(r*c), Space O(r*c).
func NewDense(rows, cols int) (*Dense, error) {
	// Validate shape.
	if rows <= 0 || cols <= 0 {
		return nil, ErrInvalidDimensions
	}

	return &Dense{
		r:    rows,
		c:    cols,
		data: make([]float64, rows*cols), // make() zero-fills deterministically
	}, nil
}

// NewDenseFromRows builds a matrix from a slice of equally sized rows (copied).
//
// Errors:
//   - ErrInvalidDimensions when rows is empty or the first row is empty.
//   - ErrDimensionMismatch when rows are ragged.
//   - ErrNaNInf when a value is not finite.
func NewDenseFromRows(rows [][]float64) (*Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrInvalidDimensions
	}
	m, err := NewDense(len(rows), len(rows[0]))
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if err = m.SetRow(i, row); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Rows returns the number of rows.
func (m *Dense) Rows() int { return m.r }

// Cols returns the number of columns.
func (m *Dense) Cols() int { return m.c }

// Shape returns (rows, cols).
func (m *Dense) Shape() (int, int) { return m.r, m.c }

// indexOf maps (i,j) into the flat offset or reports ErrOutOfRange.
func (m *Dense) indexOf(i, j int) (int, error) {
	if i < 0 || i >= m.r || j < 0 || j >= m.c {
		return 0, ErrOutOfRange
	}

	return i*m.c + j, nil
}

// At returns the element at (i,j).
//
// Errors: ErrOutOfRange on invalid indices.
// Complexity: O(1).
func (m *Dense) At(i, j int) (float64, error) {
	k, err := m.indexOf(i, j)
	if err != nil {
		return 0, denseErrorf(ctxAt, i, j, err)
	}

	return m.data[k], nil
}

// Set assigns v at (i,j).
//
// Errors: ErrOutOfRange on invalid indices, ErrNaNInf on non-finite v.
// Complexity: O(1).
func (m *Dense) Set(i, j int, v float64) error {
	k, err := m.indexOf(i, j)
	if err != nil {
		return denseErrorf(ctxSet, i, j, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return denseErrorf(ctxSet, i, j, ErrNaNInf)
	}
	m.data[k] = v

	return nil
}

// Row returns a copy of row i.
//
// Errors: ErrOutOfRange on invalid i.
// Complexity: O(c).
func (m *Dense) Row(i int) ([]float64, error) {
	if i < 0 || i >= m.r {
		return nil, denseErrorf(ctxRow, i, 0, ErrOutOfRange)
	}
	out := make([]float64, m.c)
	copy(out, m.data[i*m.c:(i+1)*m.c])

	return out, nil
}

// RowView returns row i aliased onto the backing buffer; writes are visible in m.
// The caller guarantees 0 <= i < Rows(); an invalid index panics like a slice
// expression would. Used in the drivers' inner loops where ids are validated once.
func (m *Dense) RowView(i int) []float64 {
	return m.data[i*m.c : (i+1)*m.c : (i+1)*m.c]
}

// SetRow overwrites row i with v.
//
// Errors:
//   - ErrOutOfRange on invalid i.
//   - ErrDimensionMismatch when len(v) != Cols().
//   - ErrNaNInf when v holds a non-finite value (row left untouched).
func (m *Dense) SetRow(i int, v []float64) error {
	if i < 0 || i >= m.r {
		return denseErrorf(ctxSetRow, i, 0, ErrOutOfRange)
	}
	if len(v) != m.c {
		return denseErrorf(ctxSetRow, i, len(v), ErrDimensionMismatch)
	}
	for j, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return denseErrorf(ctxSetRow, i, j, ErrNaNInf)
		}
	}
	copy(m.data[i*m.c:(i+1)*m.c], v)

	return nil
}

// Clone returns a deep copy of m.
// Complexity: O(r*c).
func (m *Dense) Clone() *Dense {
	data := make([]float64, len(m.data))
	copy(data, m.data)

	return &Dense{r: m.r, c: m.c, data: data}
}

// CopyFrom overwrites m with the contents of src.
//
// Errors: ErrNilMatrix for nil src, ErrDimensionMismatch on shape mismatch.
func (m *Dense) CopyFrom(src *Dense) error {
	if err := ValidateNotNil(src); err != nil {
		return err
	}
	if err := ValidateSameShape(m, src); err != nil {
		return err
	}
	copy(m.data, src.data)

	return nil
}

// Zero resets every entry to 0.
func (m *Dense) Zero() {
	for k := range m.data {
		m.data[k] = 0
	}
}

// Do calls fn(i, j, v) for every element in row-major order.
// Iteration stops early when fn returns false.
func (m *Dense) Do(fn func(i, j int, v float64) bool) {
	for i := 0; i < m.r; i++ {
		base := i * m.c // cache the base offset for row i
		for j := 0; j < m.c; j++ {
			if !fn(i, j, m.data[base+j]) {
				return
			}
		}
	}
}

// Apply replaces every element with fn(i, j, v).
//
// Errors: ErrNaNInf when fn produces a non-finite value; entries before the
// offending one have already been replaced.
func (m *Dense) Apply(fn func(i, j int, v float64) float64) error {
	for i := 0; i < m.r; i++ {
		base := i * m.c
		for j := 0; j < m.c; j++ {
			v := fn(i, j, m.data[base+j])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return denseErrorf(ctxApply, i, j, ErrNaNInf)
			}
			m.data[base+j] = v
		}
	}

	return nil
}

// String renders one bracketed line per row.
func (m *Dense) String() string {
	var sb strings.Builder
	for i := 0; i < m.r; i++ {
		sb.WriteString(_fmtRowOpen)
		for j := 0; j < m.c; j++ {
			if j > 0 {
				sb.WriteString(_fmtSep)
			}
			fmt.Fprintf(&sb, "%g", m.data[i*m.c+j])
		}
		sb.WriteString(_fmtRowClose)
	}

	return sb.String()
}
