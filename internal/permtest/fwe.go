package permtest

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// correctedP ranks each observed enhanced value within its null column:
// p = (count of null values >= observed) / permutations. The identity
// arrangement sits in the null, so every p lands in [1/N, 1]. Under
// pooled control every hypothesis ranks against the single null column.
func correctedP(null, enhanced *mat.Dense, strong bool) *mat.Dense {
	hyps, elems := enhanced.Dims()
	n, cols := null.Dims()

	sorted := make([][]float64, cols)
	for c := 0; c < cols; c++ {
		col := make([]float64, n)
		mat.Col(col, c, null)
		sort.Float64s(col)
		sorted[c] = col
	}

	out := mat.NewDense(hyps, elems, nil)
	for h := 0; h < hyps; h++ {
		col := sorted[0]
		if !strong {
			col = sorted[h]
		}
		obs := enhanced.RawRowView(h)
		dst := out.RawRowView(h)
		for e, v := range obs {
			idx := sort.SearchFloat64s(col, v)
			dst[e] = float64(n-idx) / float64(n)
		}
	}
	return out
}

// uncorrectedP divides per-element exceedance counts by the permutation
// count. Exceedance compares each element only against itself, so these
// never exceed the corrected values.
func uncorrectedP(exceed []int, hyps, elems, n int) *mat.Dense {
	out := mat.NewDense(hyps, elems, nil)
	flat := out.RawMatrix().Data
	for i, c := range exceed {
		flat[i] = float64(c) / float64(n)
	}
	return out
}
