package run

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Result bundles every output surface of a finished run. Per-element
// matrices are hypotheses x elements: row h is the element vector for
// hypothesis h. Betas is factors x elements. The statistic matrix carries
// the output transform already applied, so F rows hold F values rather
// than the internal square root.
type Result struct {
	Manifest *Manifest

	Statistic *mat.Dense
	Enhanced  *mat.Dense
	// Empirical is the non-stationarity baseline. Nil unless the run was
	// configured with the correction enabled.
	Empirical *mat.Dense

	Betas     *mat.Dense
	AbsEffect *mat.Dense
	StdEffect *mat.Dense
	Stdev     []float64
	// Cond holds per-element design condition numbers. Nil when the
	// design is shared across elements and conditioning is uniform.
	Cond []float64

	// Permutation outputs. All nil when the run skipped testing.
	// NullDist is permutations x hypotheses, or permutations x 1 when the
	// null was pooled across hypotheses.
	NullDist          *mat.Dense
	NullContributions *mat.Dense
	UncorrectedP      *mat.Dense
	FWEP              *mat.Dense
}

// Tested reports whether the permutation phase ran.
func (r *Result) Tested() bool { return r.FWEP != nil }

// MinFWEP returns the smallest corrected p-value across all hypotheses and
// elements, or NaN when the run skipped testing.
func (r *Result) MinFWEP() float64 {
	if r.FWEP == nil {
		return math.NaN()
	}
	min := math.Inf(1)
	rows, cols := r.FWEP.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := r.FWEP.At(i, j); v < min {
				min = v
			}
		}
	}
	return min
}

// HypothesisRow extracts one hypothesis row of a per-element matrix as a
// fresh slice. Returns nil when the matrix is absent.
func HypothesisRow(m *mat.Dense, h int) []float64 {
	if m == nil {
		return nil
	}
	_, cols := m.Dims()
	out := make([]float64, cols)
	mat.Row(out, h, m)
	return out
}
