// Package glm fits general linear models per element and produces the test
// statistic consumed by the permutation loop. Two variants exist: Fixed
// factorizes the shared design once and reuses it across elements, Variable
// rebuilds the design per element to tolerate missing data and per-element
// covariates. New selects between them from the data.
//
// F statistics are carried internally as their square root so that t and F
// values travel the same enhancement path; callers square F rows on output.
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

// New picks the variant the inputs require: Fixed when every observation is
// finite and no per-element covariates exist, Variable otherwise.
func New(data *cohort.Table, dm *design.Matrix, extras []design.ExtraColumn, hyps []design.Hypothesis) (ports.StatisticPort, error) {
	if len(extras) == 0 && data.AllFinite() {
		return NewFixed(data, dm, hyps)
	}
	return NewVariable(data, dm, extras, hyps)
}

// OutputStatistic copies the internal statistic matrix with F rows squared
// back to F values. t rows pass through unchanged.
func OutputStatistic(internal *mat.Dense, hyps []design.Hypothesis) *mat.Dense {
	rows, cols := internal.Dims()
	out := mat.NewDense(rows, cols, nil)
	out.Copy(internal)
	for h, hyp := range hyps {
		if !hyp.IsF() {
			continue
		}
		row := out.RawRowView(h)
		for e, v := range row {
			row[e] = v * v
		}
	}
	return out
}

// validateShapes runs the cross-input checks shared by both variants.
func validateShapes(data *cohort.Table, dm *design.Matrix, extras []design.ExtraColumn, hyps []design.Hypothesis) error {
	if dm.Subjects() != data.Subjects() {
		return core.NewShapeError("design matrix rows", dm.Subjects(), data.Subjects())
	}
	if err := design.ValidateExtraColumns(dm, data.Elements(), extras); err != nil {
		return err
	}
	total := dm.Factors() + len(extras)
	if err := design.CheckHypotheses(hyps, total); err != nil {
		return err
	}
	if len(hyps) == 0 {
		return fmt.Errorf("%w: no hypotheses to test", core.ErrUnsupportedConfig)
	}
	if data.Subjects() <= total {
		return fmt.Errorf("%w: %d subjects cannot fit %d factors", core.ErrDegenerateDesign, data.Subjects(), total)
	}
	return nil
}

// solved holds the reusable factorization products of one design matrix.
type solved struct {
	pinv   *mat.Dense // factors x subjects, Moore-Penrose pseudo-inverse
	xtxInv *mat.Dense // factors x factors, pseudo-inverse of X'X
	rank   int
	dof    float64
	cond   float64
}

// solveDesign factorizes X by SVD. Rank-deficient designs are handled by
// truncating singular values below the standard tolerance, matching the
// pseudo-inverse a least-squares solver would apply.
func solveDesign(x mat.Matrix) (*solved, error) {
	n, p := x.Dims()
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return nil, fmt.Errorf("%w: SVD of %dx%d design did not converge", core.ErrDegenerateDesign, n, p)
	}
	vals := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := float64(max(n, p)) * eps * vals[0]
	rank := 0
	for _, sv := range vals {
		if sv > tol {
			rank++
		}
	}
	if rank == 0 {
		return nil, fmt.Errorf("%w: design matrix is zero", core.ErrDegenerateDesign)
	}

	// Scale the leading rank columns of V by the reciprocal singular
	// values; the rest contribute nothing to the pseudo-inverse.
	vs := mat.NewDense(p, len(vals), nil)
	for j := 0; j < rank; j++ {
		for i := 0; i < p; i++ {
			vs.Set(i, j, v.At(i, j)/vals[j])
		}
	}

	pinv := mat.NewDense(p, n, nil)
	pinv.Mul(vs, u.T())
	xtxInv := mat.NewDense(p, p, nil)
	xtxInv.Mul(vs, vs.T())

	cond := math.Inf(1)
	if small := vals[len(vals)-1]; small > 0 {
		cond = vals[0] / small
	}
	return &solved{pinv: pinv, xtxInv: xtxInv, rank: rank, dof: float64(n - rank), cond: cond}, nil
}

const eps = 2.220446049250313e-16

// partition precomputes the per-hypothesis terms of a solved design.
type partition struct {
	hyp design.Hypothesis

	// t hypotheses: contrast vector and its scalar variance factor.
	c     *mat.VecDense
	denom float64

	// F hypotheses: contrast matrix and (C (X'X)+ C')^-1. A nil inverse
	// marks a contrast left untestable by this design; its statistics
	// are zeroed rather than fabricated.
	cm   *mat.Dense
	mInv *mat.Dense
	q    float64
}

func newPartition(h design.Hypothesis, s *solved) *partition {
	pt := &partition{hyp: h}
	if h.IsF() {
		pt.cm = h.Contrast()
		pt.q = float64(h.Rows())
		var cxc mat.Dense
		cxc.Product(pt.cm, s.xtxInv, pt.cm.T())
		var inv mat.Dense
		if err := inv.Inverse(&cxc); err == nil {
			pt.mInv = &inv
		}
		return pt
	}
	row := h.Contrast().RawRowView(0)
	pt.c = mat.NewVecDense(len(row), append([]float64(nil), row...))
	var tmp mat.VecDense
	tmp.MulVec(s.xtxInv, pt.c)
	pt.denom = mat.Dot(pt.c, &tmp)
	return pt
}

// statistic evaluates the partition at one element given the fitted betas
// and residual variance. Returns t, or sqrt(F) for F hypotheses.
func (pt *partition) statistic(beta *mat.VecDense, sigma2 float64) float64 {
	if pt.hyp.IsF() {
		if pt.mInv == nil {
			return 0
		}
		var cb, tmp mat.VecDense
		cb.MulVec(pt.cm, beta)
		tmp.MulVec(pt.mInv, &cb)
		f := mat.Dot(&cb, &tmp) / (pt.q * sigma2)
		return finiteOrZero(math.Sqrt(f))
	}
	t := mat.Dot(pt.c, beta) / math.Sqrt(sigma2*pt.denom)
	return finiteOrZero(t)
}

// effect computes the absolute effect size of a t hypothesis at one
// element. F hypotheses have no signed effect; callers record NaN.
func (pt *partition) effect(beta *mat.VecDense) float64 {
	return mat.Dot(pt.c, beta)
}

// finiteOrZero substitutes zero for statistics that degenerate to NaN or
// infinity, such as a perfect fit with zero residual variance. A zero keeps
// the null distribution finite without favoring the element.
func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// shuffleInto writes the arranged response matrix: row i of dst receives
// sign(i) times row Source(i) of src.
func shuffleInto(dst, src *mat.Dense, a ports.Assignment) {
	n, _ := src.Dims()
	for i := 0; i < n; i++ {
		d := dst.RawRowView(i)
		copy(d, src.RawRowView(a.Source(i)))
		if a.Sign(i) == -1 {
			for k := range d {
				d[k] = -d[k]
			}
		}
	}
}

// residualVariance returns e'e / dof for one element column.
func residualVariance(resid []float64, dof float64) float64 {
	var ss float64
	for _, r := range resid {
		ss += r * r
	}
	return ss / dof
}

// colSumSq returns the sum of squares of column j.
func colSumSq(m *mat.Dense, j int) float64 {
	rows, _ := m.Dims()
	var ss float64
	for i := 0; i < rows; i++ {
		v := m.At(i, j)
		ss += v * v
	}
	return ss
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
