package matrixfile

import (
	"context"
	"fmt"

	"edgestat/domain/core"
	"edgestat/domain/design"
)

// HypothesisFile reads the contrast matrix and optional F-test
// definitions. Each contrast row is tested as a t-hypothesis named t1,
// t2, ... in row order. Each row of the F-test matrix is a 0/1 mask over
// contrast rows whose selected rows are tested jointly as F1, F2, ...
// FOnly drops the per-row t-hypotheses and keeps only the F-tests.
type HypothesisFile struct {
	path       string
	ftestsPath string
	fOnly      bool
}

// NewHypothesisFile builds a reader for the contrast matrix at path.
// ftestsPath may be empty; fOnly without F-tests is rejected at read
// time.
func NewHypothesisFile(path, ftestsPath string, fOnly bool) *HypothesisFile {
	return &HypothesisFile{path: path, ftestsPath: ftestsPath, fOnly: fOnly}
}

// ReadHypotheses loads the contrasts and checks their width against the
// total factor count: design factors plus element-wise columns.
func (h *HypothesisFile) ReadHypotheses(ctx context.Context, totalFactors int) ([]design.Hypothesis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	contrasts, err := LoadMatrix(h.path)
	if err != nil {
		return nil, fmt.Errorf("contrast matrix: %w", err)
	}
	rows, cols := contrasts.Dims()
	if cols != totalFactors {
		return nil, fmt.Errorf("contrast matrix %s: %w", h.path,
			core.NewShapeError("contrast columns", cols, totalFactors))
	}
	if h.fOnly && h.ftestsPath == "" {
		return nil, core.NewMissingParameterError("F-tests only", "an F-test definition file")
	}

	var out []design.Hypothesis
	if !h.fOnly {
		for i := 0; i < rows; i++ {
			hyp, err := design.NewT(fmt.Sprintf("t%d", i+1), contrasts.RawRowView(i))
			if err != nil {
				return nil, fmt.Errorf("contrast row %d: %w", i, err)
			}
			out = append(out, hyp)
		}
	}
	if h.ftestsPath == "" {
		return out, nil
	}

	ftests, err := LoadMatrix(h.ftestsPath)
	if err != nil {
		return nil, fmt.Errorf("F-test matrix: %w", err)
	}
	frows, fcols := ftests.Dims()
	if fcols != rows {
		return nil, fmt.Errorf("F-test matrix %s: %w", h.ftestsPath,
			core.NewShapeError("F-test columns", fcols, rows))
	}
	for j := 0; j < frows; j++ {
		var selected [][]float64
		for i := 0; i < rows; i++ {
			switch ftests.At(j, i) {
			case 0:
			case 1:
				selected = append(selected, contrasts.RawRowView(i))
			default:
				return nil, fmt.Errorf("F-test matrix %s: row %d entry %d is %g, want 0 or 1",
					h.ftestsPath, j, i, ftests.At(j, i))
			}
		}
		if len(selected) == 0 {
			return nil, fmt.Errorf("F-test matrix %s: row %d does not select any contrast", h.ftestsPath, j)
		}
		hyp, err := design.NewF(fmt.Sprintf("F%d", j+1), selected)
		if err != nil {
			return nil, fmt.Errorf("F-test row %d: %w", j, err)
		}
		out = append(out, hyp)
	}
	return out, nil
}
