package ports

import "gonum.org/v1/gonum/mat"

// StatisticPort computes per-element test statistics for one label
// arrangement. The result matrix is hypotheses x elements. F statistics are
// carried as their square root so t and F values share one enhancement and
// null-accumulation path; OutputTransform undoes that on export.
type StatisticPort interface {
	// Statistic evaluates every hypothesis at every element under the
	// given arrangement.
	Statistic(a Assignment) (*mat.Dense, error)

	// Elements returns the number of measurement elements per subject.
	Elements() int

	// Hypotheses returns the number of contrast rows under test.
	Hypotheses() int
}

// AuxiliaryStats carries the model-fit outputs computed once from the
// unpermuted data. Matrices are rows x elements with rows noted per field;
// vectors hold one value per element.
type AuxiliaryStats struct {
	// Betas holds one fitted coefficient row per design factor.
	Betas *mat.Dense
	// AbsEffect holds one absolute effect size row per hypothesis.
	// F-test rows are NaN.
	AbsEffect *mat.Dense
	// StdEffect holds one standardised effect size row per hypothesis.
	// F-test rows are NaN.
	StdEffect *mat.Dense
	// Stdev holds the residual standard deviation per element.
	Stdev []float64
	// Cond holds the design condition number per element. Nil when the
	// design is shared across elements and conditioning is uniform.
	Cond []float64
}

// AuxiliaryPort is implemented by statistic backends that can report
// model-fit outputs alongside the test statistic.
type AuxiliaryPort interface {
	Auxiliary() (*AuxiliaryStats, error)
}
