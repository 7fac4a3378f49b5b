package matrixfile

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"edgestat/domain/connectome"
	"edgestat/domain/core"
	"edgestat/domain/design"
	"edgestat/domain/run"
)

// Writer persists the artifact set of a run under a shared path prefix.
// Per-edge vectors are expanded back to square node x node CSV matrices;
// null distributions are written as plain one-value-per-line text. The
// prefix applies to every file, auxiliary outputs included.
type Writer struct {
	prefix string
}

// NewWriter prepares a writer for the given path prefix, creating the
// parent directory when the prefix names one.
func NewWriter(prefix string) (*Writer, error) {
	if dir := filepath.Dir(prefix); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	return &Writer{prefix: prefix}, nil
}

// WriteManifest records the run manifest as JSON before any result
// artifact exists.
func (w *Writer) WriteManifest(ctx context.Context, m *run.Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := w.prefix + "manifest.json"
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// WriteResults writes the full output file set:
//
//	beta<j>.csv                    per design factor
//	abs_effect[_name].csv          per t-hypothesis
//	std_effect[_name].csv          per t-hypothesis
//	cond.csv                       when per-element conditioning was tracked
//	std_dev.csv
//	empirical[_name].csv           when non-stationarity correction ran
//	tvalue[_name].csv or Fvalue[_name].csv
//	enhanced[_name].csv
//	null_dist[_name].txt           single unsuffixed file when pooled
//	fwe_pvalue[_name].csv
//	uncorrected_pvalue[_name].csv
//	null_contributions[_name].csv
//
// The _name suffix appears only when more than one hypothesis was tested.
func (w *Writer) WriteResults(ctx context.Context, res *run.Result, hyps []design.Hypothesis) error {
	if len(hyps) != res.Manifest.Shape.Hypotheses {
		return core.NewShapeError("hypothesis count", len(hyps), res.Manifest.Shape.Hypotheses)
	}
	m2v := connectome.NewMat2Vec(res.Manifest.Shape.Nodes)
	suffix := func(h int) string {
		if len(hyps) == 1 {
			return ""
		}
		return "_" + hyps[h].Name()
	}

	factors, _ := res.Betas.Dims()
	for j := 0; j < factors; j++ {
		if err := w.writeEdgeCSV(ctx, m2v, fmt.Sprintf("beta%d", j), run.HypothesisRow(res.Betas, j)); err != nil {
			return err
		}
	}
	for h, hyp := range hyps {
		if hyp.IsF() {
			continue
		}
		if err := w.writeEdgeCSV(ctx, m2v, "abs_effect"+suffix(h), run.HypothesisRow(res.AbsEffect, h)); err != nil {
			return err
		}
		if err := w.writeEdgeCSV(ctx, m2v, "std_effect"+suffix(h), run.HypothesisRow(res.StdEffect, h)); err != nil {
			return err
		}
	}
	if res.Cond != nil {
		if err := w.writeEdgeCSV(ctx, m2v, "cond", res.Cond); err != nil {
			return err
		}
	}
	if err := w.writeEdgeCSV(ctx, m2v, "std_dev", res.Stdev); err != nil {
		return err
	}

	for h, hyp := range hyps {
		if res.Empirical != nil {
			if err := w.writeEdgeCSV(ctx, m2v, "empirical"+suffix(h), run.HypothesisRow(res.Empirical, h)); err != nil {
				return err
			}
		}
		stat := "tvalue"
		if hyp.IsF() {
			stat = "Fvalue"
		}
		if err := w.writeEdgeCSV(ctx, m2v, stat+suffix(h), run.HypothesisRow(res.Statistic, h)); err != nil {
			return err
		}
		if err := w.writeEdgeCSV(ctx, m2v, "enhanced"+suffix(h), run.HypothesisRow(res.Enhanced, h)); err != nil {
			return err
		}
	}

	if !res.Tested() {
		return nil
	}

	_, nullCols := res.NullDist.Dims()
	if nullCols == 1 && len(hyps) > 1 {
		if err := w.writeVector(ctx, "null_dist", nullColumn(res, 0)); err != nil {
			return err
		}
	} else {
		for h := range hyps {
			if err := w.writeVector(ctx, "null_dist"+suffix(h), nullColumn(res, h)); err != nil {
				return err
			}
		}
	}
	for h := range hyps {
		if err := w.writeEdgeCSV(ctx, m2v, "fwe_pvalue"+suffix(h), run.HypothesisRow(res.FWEP, h)); err != nil {
			return err
		}
		if err := w.writeEdgeCSV(ctx, m2v, "uncorrected_pvalue"+suffix(h), run.HypothesisRow(res.UncorrectedP, h)); err != nil {
			return err
		}
		if err := w.writeEdgeCSV(ctx, m2v, "null_contributions"+suffix(h), run.HypothesisRow(res.NullContributions, h)); err != nil {
			return err
		}
	}
	return nil
}

// writeEdgeCSV expands a per-edge vector to its square matrix form and
// writes it as <prefix><name>.csv.
func (w *Writer) writeEdgeCSV(ctx context.Context, m2v *connectome.Mat2Vec, name string, vec []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sq, err := m2v.VectorToMatrix(vec)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	path := w.prefix + name + ".csv"
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	cw := csv.NewWriter(f)
	rows, cols := sq.Dims()
	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = formatValue(sq.At(i, j))
		}
		if err := cw.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// writeVector writes one value per line as <prefix><name>.txt.
func (w *Writer) writeVector(ctx context.Context, name string, vec []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := w.prefix + name + ".txt"
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	for _, v := range vec {
		if _, err := fmt.Fprintln(f, formatValue(v)); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// nullColumn extracts one column of the null distribution.
func nullColumn(res *run.Result, col int) []float64 {
	rows, _ := res.NullDist.Dims()
	out := make([]float64, rows)
	for i := range out {
		out[i] = res.NullDist.At(i, col)
	}
	return out
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
