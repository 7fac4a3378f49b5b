package matrixfile

import (
	"context"
	"fmt"

	"edgestat/domain/cohort"
	"edgestat/domain/connectome"
)

// CohortFiles reads a cohort from a subject list file: one connectome
// matrix path per line, one line per subject. Each matrix is checked for
// shape and symmetry and reduced to its upper triangle; every subject
// must match the node count of the first.
type CohortFiles struct {
	listPath string
	paths    []string
}

// NewCohortFiles opens the subject list at path and verifies the listed
// files exist before any matrix is parsed.
func NewCohortFiles(path string) (*CohortFiles, error) {
	paths, err := readList(path)
	if err != nil {
		return nil, fmt.Errorf("subject list %s: %w", path, err)
	}
	for _, p := range paths {
		if err := checkExists(p); err != nil {
			return nil, fmt.Errorf("subject list %s: %w", path, err)
		}
	}
	return &CohortFiles{listPath: path, paths: paths}, nil
}

// Subjects returns the number of entries in the list file.
func (c *CohortFiles) Subjects() int { return len(c.paths) }

// Paths returns the resolved per-subject matrix paths.
func (c *CohortFiles) Paths() []string { return append([]string(nil), c.paths...) }

// ReadCohort loads every subject matrix and assembles the subjects by
// edges measurement table together with the edge index mapping.
func (c *CohortFiles) ReadCohort(ctx context.Context) (*cohort.Table, *connectome.Mat2Vec, error) {
	var (
		m2v     *connectome.Mat2Vec
		vectors [][]float64
	)
	for i, p := range c.paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		cm, err := LoadMatrix(p)
		if err != nil {
			return nil, nil, fmt.Errorf("subject %d: %w", i, err)
		}
		rows, _ := cm.Dims()
		if m2v == nil {
			if err := connectome.Check(cm, rows); err != nil {
				return nil, nil, fmt.Errorf("subject 0 (%s): %w", p, err)
			}
			m2v = connectome.NewMat2Vec(rows)
		} else if rows != m2v.Nodes() {
			return nil, nil, fmt.Errorf("size of connectome for subject %d (%s) does not match that of first subject: %d vs %d nodes",
				i, p, rows, m2v.Nodes())
		}
		v, err := m2v.MatrixToVector(cm)
		if err != nil {
			return nil, nil, fmt.Errorf("subject %d (%s): %w", i, p, err)
		}
		vectors = append(vectors, v)
	}
	table, err := cohort.FromVectors(vectors)
	if err != nil {
		return nil, nil, err
	}
	return table, m2v, nil
}
