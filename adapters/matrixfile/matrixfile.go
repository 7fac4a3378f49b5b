// Package matrixfile reads and writes the plain-text numeric formats the
// command line tools exchange: whitespace or comma separated matrices with
// optional # comment lines, subject list files, and the output file set of
// a finished run.
package matrixfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"edgestat/domain/core"
)

// LoadMatrix parses a numeric text matrix. Fields split on commas or
// whitespace; lines starting with # and blank lines are skipped; every
// row must carry the same number of fields. Accepts nan and inf spellings
// recognized by strconv.ParseFloat.
func LoadMatrix(path string) (*mat.Dense, error) {
	rows, err := loadRows(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty matrix file", path)
	}
	cols := len(rows[0])
	flat := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%s: row %d has %d fields, row 0 has %d: %w",
				path, i, len(row), cols, core.ErrShapeMismatch)
		}
		flat = append(flat, row...)
	}
	return mat.NewDense(len(rows), cols, flat), nil
}

// LoadVector parses a numeric file holding a single row or a single
// column and returns it as a flat slice.
func LoadVector(path string) ([]float64, error) {
	rows, err := loadRows(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty vector file", path)
	}
	if len(rows) == 1 {
		return rows[0], nil
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != 1 {
			return nil, fmt.Errorf("%s: row %d has %d fields, want a single row or column: %w",
				path, i, len(row), core.ErrShapeMismatch)
		}
		out[i] = row[0]
	}
	return out, nil
}

// LoadIntVector parses a vector file of whole numbers, used for
// exchangeability block labels.
func LoadIntVector(path string) ([]int, error) {
	vals, err := LoadVector(path)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		n := int(v)
		if float64(n) != v {
			return nil, fmt.Errorf("%s: entry %d is %g, want an integer label", path, i, v)
		}
		out[i] = n
	}
	return out, nil
}

// loadRows reads the numeric rows of a text file.
func loadRows(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open matrix file: %w", err)
	}
	defer f.Close()

	var rows [][]float64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := splitFields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		row := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: line %d: parse %q: %w", path, line, field, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read matrix file %s: %w", path, err)
	}
	return rows, nil
}

// splitFields tokenizes one line, treating commas as separators and
// stripping # comments.
func splitFields(line string) []string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return strings.Fields(strings.ReplaceAll(line, ",", " "))
}

// checkExists reports an error when path is missing or is a directory.
func checkExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s: is a directory, not a matrix file", path)
	}
	return nil
}

// readList returns the non-comment, non-blank lines of a list file, with
// relative entries resolved against the list file's directory.
func readList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list file: %w", err)
	}
	defer f.Close()

	dir := filepath.Dir(path)
	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		if !filepath.IsAbs(entry) {
			entry = filepath.Join(dir, entry)
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read list file %s: %w", path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no entries in list file", path)
	}
	return out, nil
}
