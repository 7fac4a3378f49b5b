package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Markdown renders the report as a markdown document.
func (r *RunReport) Markdown() []byte {
	var b strings.Builder

	b.WriteString("# Permutation test report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", r.RunID)
	fmt.Fprintf(&b, "- Created: %s\n", r.CreatedAt)
	fmt.Fprintf(&b, "- Algorithm: %s, %s errors, %d permutations\n", r.Algorithm, r.ErrorModel, r.Permutations)
	fmt.Fprintf(&b, "- Cohort: %d subjects over %d nodes (%d edges)\n", r.Subjects, r.Nodes, r.Elements)
	fmt.Fprintf(&b, "- Model: %d factors, %d hypotheses\n", r.Factors, len(r.Hypotheses))
	if !r.Tested {
		b.WriteString("\nPermutation testing was skipped; only model-fit outputs are available.\n")
	}

	for _, h := range r.Hypotheses {
		title := h.Name
		if h.Kind != "" {
			title = fmt.Sprintf("%s (%s)", h.Name, h.Kind)
		}
		fmt.Fprintf(&b, "\n## Hypothesis %s\n\n", title)

		if h.Null != nil {
			label := "Null distribution"
			if h.Null.Pooled {
				label = "Null distribution (pooled across hypotheses)"
			}
			fmt.Fprintf(&b, "%s: mean %s, sd %s, median %s, 95th percentile %s, max %s\n\n",
				label, fmtG(h.Null.Mean), fmtG(h.Null.StdDev), fmtG(h.Null.Median),
				fmtG(h.Null.Q95), fmtG(h.Null.Max))
			fmt.Fprintf(&b, "Edges at FWE p < %g: %d of %d\n\n", FWEThreshold, h.Significant, r.Elements)
		}

		b.WriteString("| Edge | Nodes | Statistic | Enhanced | p (uncorrected) | p (FWE) | p (parametric) |\n")
		b.WriteString("|---:|:---:|---:|---:|---:|---:|---:|\n")
		for _, f := range h.Top {
			fmt.Fprintf(&b, "| %d | (%d, %d) | %s | %s | %s | %s | %s |\n",
				f.Edge, f.NodeA, f.NodeB,
				fmtG(f.Statistic), fmtG(f.Enhanced),
				fmtG(f.UncorrectedP), fmtG(f.FWEP), fmtG(f.ParametricP))
		}
	}

	return []byte(b.String())
}

// ToHTML converts a markdown rendering to an HTML fragment for the results
// API.
func ToHTML(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse(md)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.Render(doc, renderer)
}

func fmtG(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', 4, 64)
}
