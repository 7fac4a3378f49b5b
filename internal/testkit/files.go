package testkit

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// FileSet names the files of a generated on-disk dataset, with paths ready
// to hand to the command line flags.
type FileSet struct {
	Dir        string `json:"dir"`
	CohortList string `json:"cohort_list"`
	Design     string `json:"design"`
	Contrasts  string `json:"contrasts"`
	FTests     string `json:"ftests"`
}

// WriteFiles materialises the cohort in the text formats the reader
// adapters consume: one symmetric connectome matrix per subject under
// subjects/, a cohort list with relative entries, the design matrix, a
// two-row contrast file covering the group and age factors, and an F-test
// definition combining both rows.
func (g *CohortGenerator) WriteFiles(dir string) (*FileSet, error) {
	subjectDir := filepath.Join(dir, "subjects")
	if err := os.MkdirAll(subjectDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	edges := g.topo.Edges()
	names := make([]string, g.config.Subjects)
	row := make([]float64, edges)
	for s := 0; s < g.config.Subjects; s++ {
		mat.Row(row, s, g.table.Dense())
		cm, err := g.topo.VectorToMatrix(row)
		if err != nil {
			return nil, err
		}
		name := filepath.Join("subjects", fmt.Sprintf("subject_%03d.csv", s))
		if err := writeDense(filepath.Join(dir, name), cm, ","); err != nil {
			return nil, err
		}
		names[s] = name
	}

	fs := &FileSet{
		Dir:        dir,
		CohortList: filepath.Join(dir, "cohort.txt"),
		Design:     filepath.Join(dir, "design.txt"),
		Contrasts:  filepath.Join(dir, "contrasts.txt"),
		FTests:     filepath.Join(dir, "ftests.txt"),
	}

	list := strings.Join(names, "\n") + "\n"
	if err := os.WriteFile(fs.CohortList, []byte(list), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write cohort list: %w", err)
	}

	dm, err := g.Design()
	if err != nil {
		return nil, err
	}
	if err := writeDense(fs.Design, dm.Dense(), " "); err != nil {
		return nil, err
	}

	if err := os.WriteFile(fs.Contrasts, []byte("0 1 0\n0 0 1\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write contrasts: %w", err)
	}
	if err := os.WriteFile(fs.FTests, []byte("1 1\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write F-test definitions: %w", err)
	}
	return fs, nil
}

func writeDense(path string, m *mat.Dense, sep string) error {
	rows, cols := m.Dims()
	var b strings.Builder
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if j > 0 {
				b.WriteString(sep)
			}
			b.WriteString(strconv.FormatFloat(m.At(i, j), 'g', -1, 64))
		}
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
