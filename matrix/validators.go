// SPDX-License-Identifier: MIT
// Package: matrix
//
// Purpose:
//  - Single source of truth for nil/shape/length/finiteness checks.
//  - Return sentinels wrapped with a validator tag so call sites can wrap uniformly.
//
// Note:
//  - Composite validators follow a fixed sequence (NotNil → Shape).

package matrix

import (
	"fmt"
	"math"
)

// validatorErrorf wraps an underlying error with the given validator tag.
func validatorErrorf(tag string, err error) error {
	return fmt.Errorf("%s: %w", tag, err)
}

// ValidateNotNil ensures the matrix reference is non-nil.
func ValidateNotNil(m *Dense) error {
	if m == nil {
		return validatorErrorf("ValidateNotNil", ErrNilMatrix)
	}

	return nil
}

// ValidateSameShape ensures a and b have equal dimensions.
// Assumes a and b are not nil.
func ValidateSameShape(a, b *Dense) error {
	if a.r != b.r {
		return validatorErrorf("ValidateSameShape: Rows", ErrDimensionMismatch)
	}
	if a.c != b.c {
		return validatorErrorf("ValidateSameShape: Columns", ErrDimensionMismatch)
	}

	return nil
}

// ValidateShape ensures m is non-nil and exactly rows×cols.
func ValidateShape(m *Dense, rows, cols int) error {
	if err := ValidateNotNil(m); err != nil {
		return err
	}
	if m.r != rows || m.c != cols {
		return validatorErrorf(fmt.Sprintf("ValidateShape: want %dx%d, got %dx%d", rows, cols, m.r, m.c), ErrDimensionMismatch)
	}

	return nil
}

// ValidateVecLen ensures len(v) == n.
func ValidateVecLen(v []float64, n int) error {
	if len(v) != n {
		return validatorErrorf(fmt.Sprintf("ValidateVecLen: want %d, got %d", n, len(v)), ErrDimensionMismatch)
	}

	return nil
}

// ValidateFinite ensures every value of v is finite.
func ValidateFinite(v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return validatorErrorf(fmt.Sprintf("ValidateFinite[%d]", i), ErrNaNInf)
		}
	}

	return nil
}
