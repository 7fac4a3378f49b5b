package glm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"edgestat/domain/cohort"
	"edgestat/domain/design"
	"edgestat/ports"
)

// Fixed is the fast path: every subject has finite data and the design is
// shared across elements, so the factorization happens once and each
// arrangement costs two matrix products over all elements.
type Fixed struct {
	data  *cohort.Table
	x     *mat.Dense
	s     *solved
	parts []*partition
}

// NewFixed fits the shared-design variant. The caller is responsible for
// only using it when the observation table is fully finite; non-finite
// entries would poison every element they touch.
func NewFixed(data *cohort.Table, dm *design.Matrix, hyps []design.Hypothesis) (*Fixed, error) {
	if err := validateShapes(data, dm, nil, hyps); err != nil {
		return nil, err
	}
	s, err := solveDesign(dm.Dense())
	if err != nil {
		return nil, err
	}
	parts := make([]*partition, len(hyps))
	for i, h := range hyps {
		parts[i] = newPartition(h, s)
	}
	return &Fixed{data: data, x: dm.Dense(), s: s, parts: parts}, nil
}

func (f *Fixed) Elements() int   { return f.data.Elements() }
func (f *Fixed) Hypotheses() int { return len(f.parts) }

// Statistic computes the hypotheses x elements statistic matrix for one
// arrangement. Pure function of the arrangement: safe to call from
// concurrent workers.
func (f *Fixed) Statistic(a ports.Assignment) (*mat.Dense, error) {
	n := f.data.Subjects()
	elems := f.data.Elements()
	_, p := f.x.Dims()

	shuffled := mat.NewDense(n, elems, nil)
	shuffleInto(shuffled, f.data.Dense(), a)

	var betas mat.Dense
	betas.Mul(f.s.pinv, shuffled)
	var fitted mat.Dense
	fitted.Mul(f.x, &betas)
	var resid mat.Dense
	resid.Sub(shuffled, &fitted)

	out := mat.NewDense(len(f.parts), elems, nil)
	bcol := make([]float64, p)
	beta := mat.NewVecDense(p, bcol)
	for e := 0; e < elems; e++ {
		mat.Col(bcol, e, &betas)
		sigma2 := colSumSq(&resid, e) / f.s.dof
		for h, pt := range f.parts {
			out.Set(h, e, pt.statistic(beta, sigma2))
		}
	}
	return out, nil
}

// Auxiliary reports the one-shot model fit over the unpermuted data.
func (f *Fixed) Auxiliary() (*ports.AuxiliaryStats, error) {
	elems := f.data.Elements()
	_, p := f.x.Dims()

	y := f.data.Dense()
	betas := mat.NewDense(p, elems, nil)
	betas.Mul(f.s.pinv, y)
	var fitted mat.Dense
	fitted.Mul(f.x, betas)
	var resid mat.Dense
	resid.Sub(y, &fitted)

	stdev := make([]float64, elems)
	absE := mat.NewDense(len(f.parts), elems, nil)
	stdE := mat.NewDense(len(f.parts), elems, nil)
	bcol := make([]float64, p)
	beta := mat.NewVecDense(p, bcol)
	for e := 0; e < elems; e++ {
		mat.Col(bcol, e, betas)
		stdev[e] = math.Sqrt(colSumSq(&resid, e) / f.s.dof)
		for h, pt := range f.parts {
			if pt.hyp.IsF() {
				absE.Set(h, e, math.NaN())
				stdE.Set(h, e, math.NaN())
				continue
			}
			eff := pt.effect(beta)
			absE.Set(h, e, eff)
			stdE.Set(h, e, eff/stdev[e])
		}
	}

	// Cond stays nil: the design is shared, so per-element conditioning
	// carries no information here.
	return &ports.AuxiliaryStats{
		Betas:     betas,
		AbsEffect: absE,
		StdEffect: stdE,
		Stdev:     stdev,
	}, nil
}
