// Package excel reads tabular design inputs from spreadsheet and CSV
// files. Phenotype tables exported from a spreadsheet are a common way
// cohort covariates arrive; this adapter turns one into the numeric
// design matrix the model fits against.
package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"edgestat/internal"
)

// sheetName is the worksheet read from xlsx workbooks.
const sheetName = "Sheet1"

// TableReader reads a raw string grid from an Excel or CSV file.
type TableReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	logger   *internal.Logger
}

// NewTableReader builds a reader that dispatches on the file extension.
// Anything that is not .csv is treated as a spreadsheet.
func NewTableReader(filePath string) *TableReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" || ext == ".txt" {
		fileType = "csv"
	}
	return &TableReader{filePath: filePath, fileType: fileType, logger: internal.NewDefaultLogger()}
}

// ReadTable reads the grid and detects whether the first row is a header.
func (r *TableReader) ReadTable() (*Sheet, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var (
		records [][]string
		err     error
	)
	switch r.fileType {
	case "csv":
		records, err = r.readCSVRecords()
	default:
		records, err = r.readExcelRecords()
	}
	if err != nil {
		return nil, err
	}
	sheet, err := newSheet(records)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.filePath, err)
	}
	r.logger.Debug("read %s table %s: %d columns, %d rows, header=%t",
		r.fileType, r.filePath, sheet.Columns(), sheet.Rows(), sheet.HasHeader)
	return sheet, nil
}

func (r *TableReader) readExcelRecords() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheetName, err)
	}
	return rows, nil
}

func (r *TableReader) readCSVRecords() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return records, nil
}

// newSheet trims cells, pads short rows, and splits off a header row when
// the first row carries any non-numeric cell.
func newSheet(records [][]string) (*Sheet, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("table is empty")
	}
	width := 0
	for _, rec := range records {
		if len(rec) > width {
			width = len(rec)
		}
	}
	if width == 0 {
		return nil, fmt.Errorf("table has no columns")
	}

	grid := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, width)
		for j := range rec {
			row[j] = strings.TrimSpace(rec[j])
		}
		grid[i] = row
	}

	hasHeader := false
	for _, cell := range grid[0] {
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			hasHeader = true
			break
		}
	}

	var headers []string
	var data [][]string
	if hasHeader {
		headers = grid[0]
		data = grid[1:]
		if len(data) == 0 {
			return nil, fmt.Errorf("table has a header row but no data rows")
		}
	} else {
		headers = make([]string, width)
		for j := range headers {
			headers[j] = fmt.Sprintf("f%d", j)
		}
		data = grid
	}
	return &Sheet{Headers: headers, Records: data, HasHeader: hasHeader}, nil
}
