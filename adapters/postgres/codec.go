// Package postgres stores run manifests and result matrices in
// PostgreSQL. The runs table carries the manifest plus the summary
// columns listings filter on; result matrices live in a JSONB document
// keyed by run id.
package postgres

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"edgestat/domain/run"
)

// jsonFloats is a float slice whose JSON form tolerates non-finite
// values: finite entries encode as numbers, NaN and the infinities as
// strings. Effect-size matrices carry NaN for F-hypotheses, which plain
// encoding/json refuses.
type jsonFloats []float64

func (f jsonFloats) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, len(f)*8+2)
	buf = append(buf, '[')
	for i, v := range f {
		if i > 0 {
			buf = append(buf, ',')
		}
		switch {
		case math.IsNaN(v):
			buf = append(buf, `"NaN"`...)
		case math.IsInf(v, 1):
			buf = append(buf, `"+Inf"`...)
		case math.IsInf(v, -1):
			buf = append(buf, `"-Inf"`...)
		default:
			buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
		}
	}
	return append(buf, ']'), nil
}

func (f *jsonFloats) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]float64, len(raw))
	for i, r := range raw {
		if len(r) > 0 && r[0] == '"' {
			var s string
			if err := json.Unmarshal(r, &s); err != nil {
				return err
			}
			switch s {
			case "NaN":
				out[i] = math.NaN()
			case "+Inf", "Inf":
				out[i] = math.Inf(1)
			case "-Inf":
				out[i] = math.Inf(-1)
			default:
				return fmt.Errorf("entry %d: unknown float literal %q", i, s)
			}
			continue
		}
		if err := json.Unmarshal(r, &out[i]); err != nil {
			return err
		}
	}
	*f = out
	return nil
}

// matrixRecord is the stored form of a dense matrix.
type matrixRecord struct {
	Rows int        `json:"rows"`
	Cols int        `json:"cols"`
	Data jsonFloats `json:"data"`
}

func newMatrixRecord(m *mat.Dense) *matrixRecord {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return &matrixRecord{Rows: r, Cols: c, Data: data}
}

func (rec *matrixRecord) dense() (*mat.Dense, error) {
	if rec == nil {
		return nil, nil
	}
	if len(rec.Data) != rec.Rows*rec.Cols {
		return nil, fmt.Errorf("matrix record %dx%d holds %d values", rec.Rows, rec.Cols, len(rec.Data))
	}
	return mat.NewDense(rec.Rows, rec.Cols, append([]float64(nil), rec.Data...)), nil
}

// resultRecord is the stored form of a run result minus its manifest,
// which lives on the runs row.
type resultRecord struct {
	Statistic *matrixRecord `json:"statistic"`
	Enhanced  *matrixRecord `json:"enhanced"`
	Empirical *matrixRecord `json:"empirical,omitempty"`

	Betas     *matrixRecord `json:"betas"`
	AbsEffect *matrixRecord `json:"abs_effect"`
	StdEffect *matrixRecord `json:"std_effect"`
	Stdev     jsonFloats    `json:"std_dev"`
	Cond      jsonFloats    `json:"cond,omitempty"`

	NullDist          *matrixRecord `json:"null_dist,omitempty"`
	NullContributions *matrixRecord `json:"null_contributions,omitempty"`
	UncorrectedP      *matrixRecord `json:"uncorrected_pvalues,omitempty"`
	FWEP              *matrixRecord `json:"fwe_pvalues,omitempty"`
}

func newResultRecord(res *run.Result) *resultRecord {
	return &resultRecord{
		Statistic:         newMatrixRecord(res.Statistic),
		Enhanced:          newMatrixRecord(res.Enhanced),
		Empirical:         newMatrixRecord(res.Empirical),
		Betas:             newMatrixRecord(res.Betas),
		AbsEffect:         newMatrixRecord(res.AbsEffect),
		StdEffect:         newMatrixRecord(res.StdEffect),
		Stdev:             append(jsonFloats(nil), res.Stdev...),
		Cond:              append(jsonFloats(nil), res.Cond...),
		NullDist:          newMatrixRecord(res.NullDist),
		NullContributions: newMatrixRecord(res.NullContributions),
		UncorrectedP:      newMatrixRecord(res.UncorrectedP),
		FWEP:              newMatrixRecord(res.FWEP),
	}
}

func (rec *resultRecord) result(manifest *run.Manifest) (*run.Result, error) {
	res := &run.Result{
		Manifest: manifest,
		Stdev:    append([]float64(nil), rec.Stdev...),
	}
	if len(rec.Cond) > 0 {
		res.Cond = append([]float64(nil), rec.Cond...)
	}
	var err error
	assign := func(dst **mat.Dense, src *matrixRecord, what string) {
		if err != nil {
			return
		}
		var m *mat.Dense
		if m, err = src.dense(); err != nil {
			err = fmt.Errorf("%s: %w", what, err)
			return
		}
		*dst = m
	}
	assign(&res.Statistic, rec.Statistic, "statistic")
	assign(&res.Enhanced, rec.Enhanced, "enhanced")
	assign(&res.Empirical, rec.Empirical, "empirical")
	assign(&res.Betas, rec.Betas, "betas")
	assign(&res.AbsEffect, rec.AbsEffect, "abs_effect")
	assign(&res.StdEffect, rec.StdEffect, "std_effect")
	assign(&res.NullDist, rec.NullDist, "null_dist")
	assign(&res.NullContributions, rec.NullContributions, "null_contributions")
	assign(&res.UncorrectedP, rec.UncorrectedP, "uncorrected_pvalues")
	assign(&res.FWEP, rec.FWEP, "fwe_pvalues")
	if err != nil {
		return nil, err
	}
	return res, nil
}
