package design

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"edgestat/domain/core"
)

// Kind tags a hypothesis as a t-test or an F-test. The set is closed: the
// engine dispatches exhaustively on it.
type Kind string

const (
	TTest Kind = "t"
	FTest Kind = "F"
)

// Hypothesis is one tested contrast: a single row over the total factor
// count for a t-test, or several rows tested jointly for an F-test. The
// column count must equal design factors plus extra columns.
type Hypothesis struct {
	name     string
	kind     Kind
	contrast *mat.Dense
}

// NewT builds a t-hypothesis from one contrast row.
func NewT(name string, row []float64) (Hypothesis, error) {
	if len(row) == 0 {
		return Hypothesis{}, core.NewShapeError("contrast length", 0, 1)
	}
	c := mat.NewDense(1, len(row), append([]float64(nil), row...))
	return Hypothesis{name: name, kind: TTest, contrast: c}, nil
}

// NewF builds an F-hypothesis from one or more contrast rows tested jointly.
func NewF(name string, rows [][]float64) (Hypothesis, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Hypothesis{}, core.NewShapeError("contrast rows", len(rows), 1)
	}
	cols := len(rows[0])
	c := mat.NewDense(len(rows), cols, nil)
	for i, r := range rows {
		if len(r) != cols {
			return Hypothesis{}, core.NewShapeError(fmt.Sprintf("contrast row %d length", i), len(r), cols)
		}
		c.SetRow(i, r)
	}
	return Hypothesis{name: name, kind: FTest, contrast: c}, nil
}

// Name returns the label used to suffix per-hypothesis outputs.
func (h Hypothesis) Name() string { return h.name }

// Kind returns the hypothesis kind.
func (h Hypothesis) Kind() Kind { return h.kind }

// IsF reports whether this is a joint F-test.
func (h Hypothesis) IsF() bool { return h.kind == FTest }

// Rows returns the number of contrast rows (1 for a t-test).
func (h Hypothesis) Rows() int {
	r, _ := h.contrast.Dims()
	return r
}

// Columns returns the contrast width, which must match the total factor
// count of the fitted model.
func (h Hypothesis) Columns() int {
	_, c := h.contrast.Dims()
	return c
}

// Contrast exposes the contrast matrix. Read-only by convention.
func (h Hypothesis) Contrast() *mat.Dense { return h.contrast }

// CheckAgainst validates the contrast width against the total factor count
// (design columns plus extra columns).
func (h Hypothesis) CheckAgainst(totalFactors int) error {
	if h.Columns() != totalFactors {
		return fmt.Errorf("%w: hypothesis %q has %d columns, model has %d factors",
			core.ErrFactorCount, h.name, h.Columns(), totalFactors)
	}
	return nil
}

// CheckHypotheses validates a full hypothesis set at once, so shape problems
// surface before any fitting starts.
func CheckHypotheses(hs []Hypothesis, totalFactors int) error {
	if len(hs) == 0 {
		return fmt.Errorf("%w: at least one hypothesis required", core.ErrShapeMismatch)
	}
	for _, h := range hs {
		if err := h.CheckAgainst(totalFactors); err != nil {
			return err
		}
	}
	return nil
}
