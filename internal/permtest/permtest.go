// Package permtest drives the permutation loop: repeated statistic and
// enhancement evaluation over a shuffle stream, accumulation of the
// maximal-statistic null distribution, and conversion to corrected and
// uncorrected p-values.
package permtest

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"edgestat/domain/core"
	"edgestat/domain/run"
	"edgestat/internal"
	"edgestat/ports"
)

// Runner wires a statistic port, an enhancer, and the shuffle streams for
// one run. The zero value is not usable; construct with NewRunner.
type Runner struct {
	stat     ports.StatisticPort
	enhancer ports.EnhancerPort
	shuffles ports.ShufflerPort
	baseline ports.ShufflerPort
	cfg      run.Config
	workers  int
	logger   *internal.Logger
}

// NewRunner creates a permutation test runner. The baseline stream feeds
// the empirical non-stationarity estimate and may be nil when the config
// does not enable the correction. workers <= 0 selects one worker per
// available CPU.
func NewRunner(stat ports.StatisticPort, enhancer ports.EnhancerPort, shuffles, baseline ports.ShufflerPort, cfg run.Config, workers int) *Runner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{
		stat:     stat,
		enhancer: enhancer,
		shuffles: shuffles,
		baseline: baseline,
		cfg:      cfg,
		workers:  workers,
		logger:   internal.NewDefaultLogger(),
	}
}

// Outcome carries every statistical output of the permutation phase.
// Per-element matrices are hypotheses x elements. Statistic holds the
// internal scale, so F rows hold sqrt(F); reporting layers square them.
type Outcome struct {
	Statistic *mat.Dense
	Enhanced  *mat.Dense
	// Empirical is the non-stationarity baseline. Nil unless the
	// correction was enabled.
	Empirical *mat.Dense

	// Permutation outputs. All nil when the config skipped testing.
	// NullDist is permutations x hypotheses, or permutations x 1 when
	// the null was pooled across hypotheses.
	NullDist      *mat.Dense
	Contributions *mat.Dense
	UncorrectedP  *mat.Dense
	FWEP          *mat.Dense
}

// Run executes the full test: optional empirical baseline, observed pass,
// then the permutation loop. The observed arrangement always occupies
// index 0 of the shuffle stream, so the null distribution contains the
// observed statistic and corrected p-values can never reach zero.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	hyps := r.stat.Hypotheses()

	strong := r.cfg.Strong
	if strong && hyps == 1 {
		r.logger.Warn("strong FWE control has no effect when testing a single hypothesis only")
		strong = false
	}

	out := &Outcome{}

	if r.cfg.Nonstationarity {
		if r.baseline == nil {
			return nil, core.NewMissingParameterError("non-stationarity correction", "an empirical shuffle stream")
		}
		r.logger.Info("estimating empirical statistic from %d arrangements", r.baseline.Count())
		emp, err := r.estimateEmpirical(ctx)
		if err != nil {
			return nil, err
		}
		out.Empirical = emp
	}

	observed, err := r.stat.Statistic(ports.Assignment{})
	if err != nil {
		return nil, err
	}
	enhanced, err := r.enhanceAll(observed, out.Empirical)
	if err != nil {
		return nil, err
	}
	out.Statistic = observed
	out.Enhanced = enhanced

	if r.cfg.NoTest {
		return out, nil
	}

	count := r.shuffles.Count()
	r.logger.Info("permutation phase: %d arrangements across %d workers", count, r.workers)
	null, exceed, contrib, err := r.permute(ctx, enhanced, out.Empirical, strong)
	if err != nil {
		return nil, err
	}

	elems := r.stat.Elements()
	out.NullDist = null
	out.Contributions = countsToDense(contrib, hyps, elems)
	out.UncorrectedP = uncorrectedP(exceed, hyps, elems, count)
	out.FWEP = correctedP(null, enhanced, strong)
	return out, nil
}

// permute drains the main shuffle stream through the worker pool. Null
// rows are index-disjoint writes; exceedance and contribution counts are
// kept per worker and merged once after the pool finishes.
func (r *Runner) permute(ctx context.Context, enhanced, empirical *mat.Dense, strong bool) (*mat.Dense, []int, []int, error) {
	hyps, elems := enhanced.Dims()
	cols := hyps
	if strong {
		cols = 1
	}
	null := mat.NewDense(r.shuffles.Count(), cols, nil)

	exceed := make([][]int, r.workers)
	contrib := make([][]int, r.workers)
	for w := 0; w < r.workers; w++ {
		exceed[w] = make([]int, hyps*elems)
		contrib[w] = make([]int, hyps*elems)
	}

	err := r.forEach(ctx, r.shuffles, func(w int, a ports.Assignment) error {
		raw, err := r.stat.Statistic(a)
		if err != nil {
			return err
		}
		enh, err := r.enhanceAll(raw, empirical)
		if err != nil {
			return err
		}
		score(a.Index, enh, enhanced, strong, null, exceed[w], contrib[w])
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return null, mergeCounts(exceed), mergeCounts(contrib), nil
}

// score records one arrangement: row maxima into the null distribution,
// a contribution count for the element attaining each maximum, and an
// exceedance count for every element at or above its observed value.
// Ties resolve to the first element in index order.
func score(index int, enh, observed *mat.Dense, strong bool, null *mat.Dense, exceed, contrib []int) {
	hyps, elems := enh.Dims()

	if strong {
		best := math.Inf(-1)
		bestH, bestE := 0, 0
		for h := 0; h < hyps; h++ {
			row := enh.RawRowView(h)
			for e, v := range row {
				if v > best {
					best, bestH, bestE = v, h, e
				}
			}
		}
		null.Set(index, 0, best)
		contrib[bestH*elems+bestE]++
	} else {
		for h := 0; h < hyps; h++ {
			row := enh.RawRowView(h)
			best, bestE := row[0], 0
			for e := 1; e < elems; e++ {
				if row[e] > best {
					best, bestE = row[e], e
				}
			}
			null.Set(index, h, best)
			contrib[h*elems+bestE]++
		}
	}

	for h := 0; h < hyps; h++ {
		row := enh.RawRowView(h)
		obs := observed.RawRowView(h)
		for e, v := range row {
			if v >= obs[e] {
				exceed[h*elems+e]++
			}
		}
	}
}

// enhanceAll applies the enhancer to each hypothesis row, dividing by the
// empirical baseline when one is present.
func (r *Runner) enhanceAll(raw, empirical *mat.Dense) (*mat.Dense, error) {
	hyps, elems := raw.Dims()
	out := mat.NewDense(hyps, elems, nil)
	for h := 0; h < hyps; h++ {
		enh, err := r.enhancer.Enhance(raw.RawRowView(h))
		if err != nil {
			return nil, err
		}
		dst := out.RawRowView(h)
		copy(dst, enh)
		if empirical != nil {
			base := empirical.RawRowView(h)
			for e := range dst {
				dst[e] /= base[e]
			}
		}
	}
	return out, nil
}

// forEach feeds assignments from src to a pool of workers. The producer
// consumes the stream serially so shuffle randomness stays in index
// order; fn receives the worker slot so callers can accumulate without
// locks. The first error cancels the group and aborts the drain.
func (r *Runner) forEach(ctx context.Context, src ports.ShufflerPort, fn func(worker int, a ports.Assignment) error) error {
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan ports.Assignment, r.workers)

	g.Go(func() error {
		defer close(jobs)
		for {
			a, ok := src.Next()
			if !ok {
				return src.Err()
			}
			select {
			case jobs <- a:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	for w := 0; w < r.workers; w++ {
		g.Go(func() error {
			for a := range jobs {
				if err := fn(w, a); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

func mergeCounts(locals [][]int) []int {
	total := make([]int, len(locals[0]))
	for _, local := range locals {
		for i, c := range local {
			total[i] += c
		}
	}
	return total
}

func countsToDense(counts []int, rows, cols int) *mat.Dense {
	out := mat.NewDense(rows, cols, nil)
	flat := out.RawMatrix().Data
	for i, c := range counts {
		flat[i] = float64(c)
	}
	return out
}
