// Package report summarises a finished run as a document: null-distribution
// statistics and the strongest edges per hypothesis, with permutation
// p-values set against their complete-data parametric references. The
// markdown rendering backs both the CLI report file and the results API's
// HTML view.
package report

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"edgestat/domain/connectome"
	"edgestat/domain/design"
	"edgestat/domain/run"
)

const defaultTopEdges = 10

// FWEThreshold is the corrected significance level the report counts
// discoveries against.
const FWEThreshold = 0.05

// Builder renders run reports. Construct with NewBuilder.
type Builder struct {
	topEdges int
}

// NewBuilder creates a builder listing the strongest topEdges edges per
// hypothesis, or a default when topEdges <= 0.
func NewBuilder(topEdges int) *Builder {
	if topEdges <= 0 {
		topEdges = defaultTopEdges
	}
	return &Builder{topEdges: topEdges}
}

// RunReport is the render-ready summary of one run.
type RunReport struct {
	RunID        string `json:"run_id"`
	CreatedAt    string `json:"created_at"`
	Fingerprint  string `json:"fingerprint"`
	Algorithm    string `json:"algorithm"`
	ErrorModel   string `json:"error_model"`
	Permutations int    `json:"permutations"`

	Subjects int  `json:"subjects"`
	Nodes    int  `json:"nodes"`
	Elements int  `json:"elements"`
	Factors  int  `json:"factors"`
	Tested   bool `json:"tested"`

	Hypotheses []HypothesisReport `json:"hypotheses"`
}

// HypothesisReport summarises one hypothesis of the run.
type HypothesisReport struct {
	Name string `json:"name"`
	// Kind is "t" or "F", or empty when the contrast definitions were
	// not available to the builder.
	Kind string `json:"kind,omitempty"`
	// Significant counts edges with corrected p below FWEThreshold.
	Significant int          `json:"significant"`
	Null        *NullSummary `json:"null,omitempty"`
	Top         []EdgeFinding `json:"top"`
}

// NullSummary describes the maximal-statistic null distribution one
// hypothesis was corrected against.
type NullSummary struct {
	// Pooled marks a null shared across hypotheses under strong FWE
	// control.
	Pooled bool    `json:"pooled,omitempty"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	Q95    float64 `json:"q95"`
	Max    float64 `json:"max"`
}

// EdgeFinding is one row of a hypothesis's strongest-edges table.
// P-values are NaN when the run skipped testing; ParametricP is the
// complete-data parametric reference and is NaN when degrees of freedom
// were unknown.
type EdgeFinding struct {
	Edge         int     `json:"edge"`
	NodeA        int     `json:"node_a"`
	NodeB        int     `json:"node_b"`
	Statistic    float64 `json:"statistic"`
	Enhanced     float64 `json:"enhanced"`
	UncorrectedP float64 `json:"-"`
	FWEP         float64 `json:"-"`
	ParametricP  float64 `json:"-"`
}

// Build assembles the report for a result. The hypothesis slice supplies
// contrast kinds and F degrees of freedom; it may be nil when the caller
// only holds the stored result, at the cost of the parametric column.
func (b *Builder) Build(res *run.Result, hyps []design.Hypothesis) (*RunReport, error) {
	if res == nil || res.Manifest == nil || res.Statistic == nil {
		return nil, fmt.Errorf("report needs a result with manifest and statistics")
	}
	m := res.Manifest
	if hyps != nil && len(hyps) != m.Shape.Hypotheses {
		return nil, fmt.Errorf("%d contrast definitions for a run with %d hypotheses", len(hyps), m.Shape.Hypotheses)
	}
	topo := connectome.NewMat2Vec(m.Shape.Nodes)
	if topo.Edges() != m.Shape.Elements {
		return nil, fmt.Errorf("%d nodes cannot produce %d elements", m.Shape.Nodes, m.Shape.Elements)
	}

	rep := &RunReport{
		RunID:        m.RunID.String(),
		CreatedAt:    m.CreatedAt.String(),
		Fingerprint:  m.Fingerprint,
		Algorithm:    string(m.Config.Algorithm),
		ErrorModel:   string(m.Config.Errors),
		Permutations: m.Config.Permutations,
		Subjects:     m.Shape.Subjects,
		Nodes:        m.Shape.Nodes,
		Elements:     m.Shape.Elements,
		Factors:      m.Shape.Factors,
		Tested:       res.Tested(),
	}

	for h := 0; h < m.Shape.Hypotheses; h++ {
		hr := HypothesisReport{Name: m.HypothesisNames[h]}
		var hyp *design.Hypothesis
		if hyps != nil {
			hyp = &hyps[h]
			if hyp.IsF() {
				hr.Kind = "F"
			} else {
				hr.Kind = "t"
			}
		}
		if res.Tested() {
			hr.Null = nullSummary(res.NullDist, h)
			hr.Significant = countBelow(res.FWEP, h, FWEThreshold)
		}
		hr.Top = b.strongestEdges(res, topo, h, hyp)
		rep.Hypotheses = append(rep.Hypotheses, hr)
	}
	return rep, nil
}

// nullSummary describes column h of the null distribution, falling back to
// the single pooled column when strong control collapsed them.
func nullSummary(null *mat.Dense, h int) *NullSummary {
	rows, cols := null.Dims()
	col := h
	pooled := false
	if col >= cols {
		col = 0
		pooled = true
	}
	values := make([]float64, rows)
	mat.Col(values, col, null)

	mean, _ := stats.Mean(values)
	sd, _ := stats.StandardDeviation(values)
	median, _ := stats.Median(values)
	q95, _ := stats.Percentile(values, 95)
	max, _ := stats.Max(values)

	return &NullSummary{
		Pooled: pooled,
		Mean:   mean,
		StdDev: sd,
		Median: median,
		Q95:    q95,
		Max:    max,
	}
}

func countBelow(p *mat.Dense, h int, threshold float64) int {
	_, cols := p.Dims()
	n := 0
	for e := 0; e < cols; e++ {
		if p.At(h, e) < threshold {
			n++
		}
	}
	return n
}

// strongestEdges ranks every edge for hypothesis h and keeps the top of
// the table: by corrected p when tested, by the statistic itself when not.
func (b *Builder) strongestEdges(res *run.Result, topo *connectome.Mat2Vec, h int, hyp *design.Hypothesis) []EdgeFinding {
	shape := res.Manifest.Shape
	findings := make([]EdgeFinding, shape.Elements)
	for e := 0; e < shape.Elements; e++ {
		f := EdgeFinding{
			Edge:         e,
			Statistic:    res.Statistic.At(h, e),
			Enhanced:     res.Enhanced.At(h, e),
			UncorrectedP: math.NaN(),
			FWEP:         math.NaN(),
		}
		f.NodeA, f.NodeB = topo.Pair(e)
		if res.Tested() {
			f.UncorrectedP = res.UncorrectedP.At(h, e)
			f.FWEP = res.FWEP.At(h, e)
		}
		f.ParametricP = parametricP(f.Statistic, hyp, shape)
		findings[e] = f
	}

	sort.SliceStable(findings, func(i, j int) bool {
		a, c := findings[i], findings[j]
		if res.Tested() && a.FWEP != c.FWEP {
			return a.FWEP < c.FWEP
		}
		return a.Statistic > c.Statistic
	})
	if len(findings) > b.topEdges {
		findings = findings[:b.topEdges]
	}
	return findings
}

// parametricP computes the classical p-value for a statistic under the
// complete-data degrees of freedom. With missing data the per-element
// degrees of freedom shrink, so this is a reference column, not an
// inference.
func parametricP(value float64, hyp *design.Hypothesis, shape run.Shape) float64 {
	if hyp == nil {
		return math.NaN()
	}
	residual := float64(shape.Subjects - shape.Factors)
	if residual <= 0 || math.IsNaN(value) {
		return math.NaN()
	}
	if hyp.IsF() {
		dist := distuv.F{D1: float64(hyp.Rows()), D2: residual}
		return 1 - dist.CDF(value)
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: residual}
	return 2 * dist.CDF(-math.Abs(value))
}
