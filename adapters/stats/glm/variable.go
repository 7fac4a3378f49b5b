package glm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"edgestat/domain/cohort"
	"edgestat/domain/core"
	"edgestat/domain/design"
	"edgestat/ports"
)

// Variable tolerates missing observations and per-element covariates. Each
// element rebuilds its own design: subjects whose observation or covariate
// value is non-finite at that element drop out of that element's regression
// only, and the remaining rows are factorized from scratch.
type Variable struct {
	data   *cohort.Table
	dm     *design.Matrix
	extras []design.ExtraColumn
	hyps   []design.Hypothesis
	total  int
}

// NewVariable fits the per-element variant.
func NewVariable(data *cohort.Table, dm *design.Matrix, extras []design.ExtraColumn, hyps []design.Hypothesis) (*Variable, error) {
	if err := validateShapes(data, dm, extras, hyps); err != nil {
		return nil, err
	}
	return &Variable{
		data:   data,
		dm:     dm,
		extras: extras,
		hyps:   hyps,
		total:  dm.Factors() + len(extras),
	}, nil
}

func (v *Variable) Elements() int   { return v.data.Elements() }
func (v *Variable) Hypotheses() int { return len(v.hyps) }

// Statistic computes the hypotheses x elements statistic matrix for one
// arrangement, refitting every element. A degenerate element aborts the
// whole evaluation: a null distribution with holes is not a null
// distribution.
func (v *Variable) Statistic(a ports.Assignment) (*mat.Dense, error) {
	elems := v.data.Elements()
	out := mat.NewDense(len(v.hyps), elems, nil)
	for e := 0; e < elems; e++ {
		s, beta, sigma2, err := v.fitElement(e, a)
		if err != nil {
			return nil, err
		}
		for h, hyp := range v.hyps {
			out.Set(h, e, newPartition(hyp, s).statistic(beta, sigma2))
		}
	}
	return out, nil
}

// fitElement assembles the element's effective design under the given
// arrangement and solves it. The response is arranged first, then rows with
// a non-finite response or covariate value are excluded, so missing data
// travels with the shuffle while design rows stay put.
func (v *Variable) fitElement(e int, a ports.Assignment) (*solved, *mat.VecDense, float64, error) {
	n := v.data.Subjects()
	base := v.dm.Factors()

	yfull := make([]float64, n)
	for i := 0; i < n; i++ {
		yfull[i] = a.Sign(i) * v.data.At(a.Source(i), e)
	}

	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !isFinite(yfull[i]) {
			continue
		}
		ok := true
		for _, ex := range v.extras {
			if !isFinite(ex.Data.At(i, e)) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	m := len(keep)
	if m <= v.total {
		return nil, nil, 0, core.NewDegenerateDesignError(e, m, v.total)
	}

	xe := mat.NewDense(m, v.total, nil)
	ye := mat.NewVecDense(m, nil)
	dmat := v.dm.Dense()
	for r, i := range keep {
		for j := 0; j < base; j++ {
			xe.Set(r, j, dmat.At(i, j))
		}
		for k, ex := range v.extras {
			xe.Set(r, base+k, ex.Data.At(i, e))
		}
		ye.SetVec(r, yfull[i])
	}

	s, err := solveDesign(xe)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("element %d: %w", e, err)
	}
	var beta mat.VecDense
	beta.MulVec(s.pinv, ye)
	var fit mat.VecDense
	fit.MulVec(xe, &beta)
	resid := make([]float64, m)
	for r := 0; r < m; r++ {
		resid[r] = ye.AtVec(r) - fit.AtVec(r)
	}
	return s, &beta, residualVariance(resid, s.dof), nil
}

// Auxiliary reports the one-shot model fit over the unpermuted data,
// including the per-element condition number the shared-design variant has
// no use for.
func (v *Variable) Auxiliary() (*ports.AuxiliaryStats, error) {
	elems := v.data.Elements()

	betas := mat.NewDense(v.total, elems, nil)
	absE := mat.NewDense(len(v.hyps), elems, nil)
	stdE := mat.NewDense(len(v.hyps), elems, nil)
	stdev := make([]float64, elems)
	cond := make([]float64, elems)

	for e := 0; e < elems; e++ {
		s, beta, sigma2, err := v.fitElement(e, ports.Assignment{})
		if err != nil {
			return nil, err
		}
		for j := 0; j < v.total; j++ {
			betas.Set(j, e, beta.AtVec(j))
		}
		stdev[e] = math.Sqrt(sigma2)
		cond[e] = s.cond
		for h, hyp := range v.hyps {
			if hyp.IsF() {
				absE.Set(h, e, math.NaN())
				stdE.Set(h, e, math.NaN())
				continue
			}
			eff := newPartition(hyp, s).effect(beta)
			absE.Set(h, e, eff)
			stdE.Set(h, e, eff/stdev[e])
		}
	}

	return &ports.AuxiliaryStats{
		Betas:     betas,
		AbsEffect: absE,
		StdEffect: stdE,
		Stdev:     stdev,
		Cond:      cond,
	}, nil
}
