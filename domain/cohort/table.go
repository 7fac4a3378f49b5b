// Package cohort assembles per-subject measurement vectors into the dense
// subjects x elements tables consumed by the statistics engine. Non-finite
// entries are legal and mean "missing for this subject at this element";
// downstream code decides per element which subject rows remain usable.
package cohort

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"edgestat/domain/core"
)

// Table is an immutable subjects x elements measurement matrix. One row per
// subject in cohort order, one column per tested element.
type Table struct {
	data      *mat.Dense
	subjects  int
	elements  int
	allFinite bool
}

// FromVectors builds a Table from one measurement vector per subject. All
// vectors must have the same length; the first subject fixes the element
// count for the run.
func FromVectors(vectors [][]float64) (*Table, error) {
	if len(vectors) == 0 {
		return nil, core.NewShapeError("subject count", 0, 1)
	}
	elements := len(vectors[0])
	if elements == 0 {
		return nil, core.NewShapeError("element count", 0, 1)
	}
	data := mat.NewDense(len(vectors), elements, nil)
	finite := true
	for s, v := range vectors {
		if len(v) != elements {
			return nil, core.NewSubjectShapeError(s, len(v), elements)
		}
		for e, x := range v {
			if !isFinite(x) {
				finite = false
			}
			data.Set(s, e, x)
		}
	}
	return &Table{data: data, subjects: len(vectors), elements: elements, allFinite: finite}, nil
}

// FromDense wraps an existing subjects x elements matrix. The matrix is not
// copied; callers must not mutate it afterwards.
func FromDense(data *mat.Dense) *Table {
	s, e := data.Dims()
	t := &Table{data: data, subjects: s, elements: e, allFinite: true}
	for i := 0; i < s && t.allFinite; i++ {
		for j := 0; j < e; j++ {
			if !isFinite(data.At(i, j)) {
				t.allFinite = false
				break
			}
		}
	}
	return t
}

// Subjects returns the row count.
func (t *Table) Subjects() int { return t.subjects }

// Elements returns the column count.
func (t *Table) Elements() int { return t.elements }

// At returns the measurement for one subject at one element.
func (t *Table) At(subject, element int) float64 { return t.data.At(subject, element) }

// AllFinite reports whether the table holds no missing values. The engine
// uses this to pick the fixed or variable GLM code path.
func (t *Table) AllFinite() bool { return t.allFinite }

// Dense exposes the backing matrix for bulk linear algebra. Read-only by
// convention.
func (t *Table) Dense() *mat.Dense { return t.data }

// CopyColumn copies element e's per-subject values into dst, which must
// have length Subjects().
func (t *Table) CopyColumn(dst []float64, element int) {
	for s := 0; s < t.subjects; s++ {
		dst[s] = t.data.At(s, element)
	}
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
