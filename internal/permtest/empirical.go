package permtest

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"edgestat/ports"
)

// estimateEmpirical builds the per-element non-stationarity baseline: the
// skew-corrected mean of nonzero enhancement values over the baseline
// shuffle stream. Elements that never enhance keep a neutral baseline of
// 1 so the later division is a no-op for them.
func (r *Runner) estimateEmpirical(ctx context.Context) (*mat.Dense, error) {
	hyps := r.stat.Hypotheses()
	elems := r.stat.Elements()
	inv := 1.0 / r.cfg.Skew

	sums := make([][]float64, r.workers)
	counts := make([][]int, r.workers)
	for w := 0; w < r.workers; w++ {
		sums[w] = make([]float64, hyps*elems)
		counts[w] = make([]int, hyps*elems)
	}

	err := r.forEach(ctx, r.baseline, func(w int, a ports.Assignment) error {
		raw, err := r.stat.Statistic(a)
		if err != nil {
			return err
		}
		for h := 0; h < hyps; h++ {
			enh, err := r.enhancer.Enhance(raw.RawRowView(h))
			if err != nil {
				return err
			}
			base := h * elems
			for e, v := range enh {
				if v > 0 {
					sums[w][base+e] += math.Pow(v, inv)
					counts[w][base+e]++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(hyps, elems, nil)
	flat := out.RawMatrix().Data
	for i := range flat {
		var sum float64
		var n int
		for w := 0; w < r.workers; w++ {
			sum += sums[w][i]
			n += counts[w][i]
		}
		if n == 0 {
			flat[i] = 1
			continue
		}
		flat[i] = math.Pow(sum/float64(n), r.cfg.Skew)
	}
	return out, nil
}
