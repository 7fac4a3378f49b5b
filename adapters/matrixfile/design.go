package matrixfile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"edgestat/domain/design"
	"edgestat/ports"
)

// ColumnSpec names one element-wise covariate and the subject list file
// its per-subject matrices are read from.
type ColumnSpec struct {
	Name string
	Path string
}

// DesignFile reads a design matrix from a numeric text file plus any
// number of element-wise covariate imports. Each covariate is a subject
// list in the same format as the cohort input: one connectome matrix per
// subject, vectorized edge by edge.
type DesignFile struct {
	path    string
	columns []ColumnSpec
}

// NewDesignFile builds a reader for the design at path. Columns with an
// empty Name are named after their list file.
func NewDesignFile(path string, columns []ColumnSpec) *DesignFile {
	return &DesignFile{path: path, columns: normalizeSpecs(columns)}
}

// ReadDesign loads the design matrix and every element-wise covariate
// table. Covariate shape validation against the cohort happens at run
// setup, not here.
func (d *DesignFile) ReadDesign(ctx context.Context) (*design.Matrix, []design.ExtraColumn, error) {
	raw, err := LoadMatrix(d.path)
	if err != nil {
		return nil, nil, fmt.Errorf("design matrix: %w", err)
	}
	dm, err := design.NewMatrix(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("design matrix %s: %w", d.path, err)
	}
	extras, err := loadColumns(ctx, d.columns)
	if err != nil {
		return nil, nil, err
	}
	return dm, extras, nil
}

// WithColumns wraps any design reader, appending element-wise covariate
// imports to whatever the inner reader produces. Used when the design
// matrix itself comes from a spreadsheet.
func WithColumns(inner ports.DesignReader, columns []ColumnSpec) ports.DesignReader {
	if len(columns) == 0 {
		return inner
	}
	return &columnAugmenter{inner: inner, columns: normalizeSpecs(columns)}
}

type columnAugmenter struct {
	inner   ports.DesignReader
	columns []ColumnSpec
}

func (c *columnAugmenter) ReadDesign(ctx context.Context) (*design.Matrix, []design.ExtraColumn, error) {
	dm, extras, err := c.inner.ReadDesign(ctx)
	if err != nil {
		return nil, nil, err
	}
	loaded, err := loadColumns(ctx, c.columns)
	if err != nil {
		return nil, nil, err
	}
	return dm, append(extras, loaded...), nil
}

// normalizeSpecs fills empty column names from their list file names.
func normalizeSpecs(columns []ColumnSpec) []ColumnSpec {
	specs := make([]ColumnSpec, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			base := filepath.Base(c.Path)
			c.Name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		specs[i] = c
	}
	return specs
}

// loadColumns imports every covariate as a subjects x elements table.
func loadColumns(ctx context.Context, columns []ColumnSpec) ([]design.ExtraColumn, error) {
	extras := make([]design.ExtraColumn, 0, len(columns))
	for _, spec := range columns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := NewCohortFiles(spec.Path)
		if err != nil {
			return nil, fmt.Errorf("element-wise column %s: %w", spec.Name, err)
		}
		table, _, err := files.ReadCohort(ctx)
		if err != nil {
			return nil, fmt.Errorf("element-wise column %s: %w", spec.Name, err)
		}
		extras = append(extras, design.ExtraColumn{Name: spec.Name, Data: table})
	}
	return extras, nil
}
