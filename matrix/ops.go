// SPDX-License-Identifier: MIT
// Package: matrix
//
// Purpose:
//   - Small element-wise kernels shared by the drivers: difference, distance,
//     approximate equality. Loops run over the flat buffer in a fixed order.

package matrix

import (
	"fmt"
	"math"
)

// matrixErrorf tags an error with the public operation name.
func matrixErrorf(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// Sub returns a - b as a new matrix.
//
// Errors: ErrNilMatrix, ErrDimensionMismatch.
// Complexity: O(r*c).
func Sub(a, b *Dense) (*Dense, error) {
	if err := validateBinary(a, b); err != nil {
		return nil, matrixErrorf("Sub", err)
	}
	out := a.Clone()
	for k := range out.data {
		out.data[k] -= b.data[k]
	}

	return out, nil
}

// MaxAbsDiff returns max_{i,j} |a[i,j] - b[i,j]|.
//
// Errors: ErrNilMatrix, ErrDimensionMismatch.
func MaxAbsDiff(a, b *Dense) (float64, error) {
	if err := validateBinary(a, b); err != nil {
		return 0, matrixErrorf("MaxAbsDiff", err)
	}
	var worst float64
	for k, v := range a.data {
		if d := math.Abs(v - b.data[k]); d > worst {
			worst = d
		}
	}

	return worst, nil
}

// AllClose reports whether |a-b| <= atol + rtol*|b| holds element-wise.
//
// Errors: ErrNilMatrix, ErrDimensionMismatch.
func AllClose(a, b *Dense, rtol, atol float64) (bool, error) {
	if err := validateBinary(a, b); err != nil {
		return false, matrixErrorf("AllClose", err)
	}
	for k, v := range a.data {
		w := b.data[k]
		if math.Abs(v-w) > atol+rtol*math.Abs(w) {
			return false, nil
		}
	}

	return true, nil
}

// validateBinary runs the composite NotNil → SameShape sequence for two operands.
func validateBinary(a, b *Dense) error {
	if err := ValidateNotNil(a); err != nil {
		return err
	}
	if err := ValidateNotNil(b); err != nil {
		return err
	}

	return ValidateSameShape(a, b)
}
