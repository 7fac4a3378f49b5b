package excel

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"edgestat/domain/design"
	"edgestat/internal"
)

// idColumnNames are header names treated as subject identifiers rather
// than model factors when no explicit factor selection is given.
var idColumnNames = []string{
	"id", "subject", "subject_id", "subjectid", "participant",
	"participant_id", "session", "session_id",
}

// DesignSheet adapts a phenotype table to the design matrix reader port.
// Factor columns can be selected by header name; without a selection
// every column is used, minus any recognized subject identifier column.
// Element-wise covariates come from subject-list imports, never from
// spreadsheets, so the extra column slice is always empty.
type DesignSheet struct {
	reader  *TableReader
	factors []string
	logger  *internal.Logger
}

// NewDesignSheet builds a design reader over the table at path. The
// optional factors select and order the columns to fit.
func NewDesignSheet(path string, factors ...string) *DesignSheet {
	return &DesignSheet{
		reader:  NewTableReader(path),
		factors: factors,
		logger:  internal.NewDefaultLogger(),
	}
}

// ReadDesign reads the table and coerces the selected columns to the
// subjects x factors matrix. Boolean cells coerce to 1 and 0; anything
// else must parse as a number.
func (d *DesignSheet) ReadDesign(ctx context.Context) (*design.Matrix, []design.ExtraColumn, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	sheet, err := d.reader.ReadTable()
	if err != nil {
		return nil, nil, err
	}
	cols, err := d.selectColumns(sheet)
	if err != nil {
		return nil, nil, err
	}

	data := mat.NewDense(sheet.Rows(), len(cols), nil)
	for i, rec := range sheet.Records {
		for j, col := range cols {
			v, err := parseCell(rec[col])
			if err != nil {
				return nil, nil, fmt.Errorf("column %q row %d: %w", sheet.Headers[col], i+1, err)
			}
			data.Set(i, j, v)
		}
	}
	dm, err := design.NewMatrix(data)
	if err != nil {
		return nil, nil, err
	}
	d.logger.Info("design table: %d subjects, %d factors", dm.Subjects(), dm.Factors())
	return dm, nil, nil
}

// selectColumns resolves the factor selection to column indices.
func (d *DesignSheet) selectColumns(sheet *Sheet) ([]int, error) {
	if len(d.factors) > 0 {
		cols := make([]int, len(d.factors))
		for i, name := range d.factors {
			col, ok := sheet.Column(name)
			if !ok {
				return nil, fmt.Errorf("factor %q not found, table has columns %s",
					name, strings.Join(sheet.Headers, ", "))
			}
			cols[i] = col
		}
		return cols, nil
	}

	var cols []int
	for j, header := range sheet.Headers {
		if sheet.HasHeader && isIDColumn(header) {
			d.logger.Debug("skipping identifier column %q", header)
			continue
		}
		cols = append(cols, j)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no factor columns left after skipping identifier columns")
	}
	return cols, nil
}

func isIDColumn(header string) bool {
	for _, name := range idColumnNames {
		if strings.EqualFold(header, name) {
			return true
		}
	}
	return false
}

// parseCell coerces one cell to a float64.
func parseCell(cell string) (float64, error) {
	if cell == "" {
		return 0, fmt.Errorf("cell is empty")
	}
	switch strings.ToLower(cell) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("cell %q is not numeric", cell)
	}
	return v, nil
}
