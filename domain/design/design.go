// Package design holds the general-linear-model inputs: the design matrix,
// the hypotheses tested against it, and element-wise extra covariate
// columns. All of these are loaded once per run and immutable afterwards.
package design

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"edgestat/domain/cohort"
	"edgestat/domain/core"
)

// Matrix is the subjects x factors design matrix. Rows correspond 1:1 to
// subjects in cohort order.
type Matrix struct {
	data     *mat.Dense
	subjects int
	factors  int
}

// NewMatrix validates and wraps a design matrix.
func NewMatrix(data *mat.Dense) (*Matrix, error) {
	r, c := data.Dims()
	if r == 0 || c == 0 {
		return nil, core.NewShapeError("design matrix rows x columns", r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := data.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: design matrix entry (%d,%d) is non-finite", core.ErrShapeMismatch, i, j)
			}
		}
	}
	return &Matrix{data: data, subjects: r, factors: c}, nil
}

// Subjects returns the design row count.
func (m *Matrix) Subjects() int { return m.subjects }

// Factors returns the design column count, excluding extra columns.
func (m *Matrix) Factors() int { return m.factors }

// Dense exposes the backing matrix for the solver. Read-only by convention.
func (m *Matrix) Dense() *mat.Dense { return m.data }

// HasConstantColumn reports whether any column is a constant non-zero
// regressor. A model without one usually means the user forgot the global
// intercept; callers surface this as a warning, not an error.
func (m *Matrix) HasConstantColumn() bool {
	for j := 0; j < m.factors; j++ {
		first := m.data.At(0, j)
		if first == 0 {
			continue
		}
		constant := true
		for i := 1; i < m.subjects; i++ {
			if m.data.At(i, j) != first {
				constant = false
				break
			}
		}
		if constant {
			return true
		}
	}
	return false
}

// ExtraColumn is one element-wise covariate: a full subjects x elements
// table whose column e augments the design matrix when fitting element e.
// Non-finite entries exclude that subject's row for the affected elements
// only.
type ExtraColumn struct {
	Name string
	Data *cohort.Table
}

// Validate checks a set of extra columns against the base design.
func ValidateExtraColumns(m *Matrix, elements int, extras []ExtraColumn) error {
	for i, ec := range extras {
		if ec.Data.Subjects() != m.subjects {
			return fmt.Errorf("%w: extra column %d (%s) has %d subjects, design has %d",
				core.ErrSubjectCount, i, ec.Name, ec.Data.Subjects(), m.subjects)
		}
		if ec.Data.Elements() != elements {
			return fmt.Errorf("%w: extra column %d (%s) has %d elements, observations have %d",
				core.ErrElementCount, i, ec.Name, ec.Data.Elements(), elements)
		}
	}
	return nil
}

// AnyExtraNonFinite reports whether any extra column carries missing values.
func AnyExtraNonFinite(extras []ExtraColumn) bool {
	for _, ec := range extras {
		if !ec.Data.AllFinite() {
			return true
		}
	}
	return false
}
