package excel

import "strings"

// Sheet is a raw string grid read from a spreadsheet or CSV file.
// Records hold the data rows only. When the source had no header row,
// Headers carry synthesized names f0, f1, ... and HasHeader is false.
type Sheet struct {
	Headers   []string
	Records   [][]string
	HasHeader bool
}

// Rows returns the number of data rows.
func (s *Sheet) Rows() int { return len(s.Records) }

// Columns returns the column count.
func (s *Sheet) Columns() int { return len(s.Headers) }

// Column finds a header by case-insensitive name.
func (s *Sheet) Column(name string) (int, bool) {
	for i, h := range s.Headers {
		if strings.EqualFold(h, name) {
			return i, true
		}
	}
	return 0, false
}
