package matrixfile

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"edgestat/domain/core"
	"edgestat/domain/design"
	"edgestat/ports"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", name, err)
	}
	return path
}

// writeSubjectMatrix writes a symmetric nodes x nodes CSV where entry
// (i, j) is base + i + j.
func writeSubjectMatrix(t *testing.T, dir, name string, nodes int, base float64) string {
	t.Helper()
	var sb strings.Builder
	for i := 0; i < nodes; i++ {
		for j := 0; j < nodes; j++ {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.FormatFloat(base+float64(i+j), 'g', -1, 64))
		}
		sb.WriteByte('\n')
	}
	return writeFile(t, dir, name, sb.String())
}

func TestLoadMatrix_Formats(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		rows    int
		cols    int
		at      [3]float64 // row, col, want
	}{
		{
			name:    "comma separated",
			content: "1,2,3\n4,5,6\n",
			rows:    2, cols: 3,
			at: [3]float64{1, 2, 6},
		},
		{
			name:    "whitespace separated",
			content: "1 2 3\n4\t5\t6\n",
			rows:    2, cols: 3,
			at: [3]float64{0, 1, 2},
		},
		{
			name:    "comments and blank lines",
			content: "# header\n\n1 2\n3 4 # trailing\n",
			rows:    2, cols: 2,
			at: [3]float64{1, 1, 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, strings.ReplaceAll(tt.name, " ", "_")+".txt", tt.content)
			m, err := LoadMatrix(path)
			if err != nil {
				t.Fatalf("LoadMatrix failed: %v", err)
			}
			r, c := m.Dims()
			if r != tt.rows || c != tt.cols {
				t.Fatalf("Dims = %dx%d, want %dx%d", r, c, tt.rows, tt.cols)
			}
			if got := m.At(int(tt.at[0]), int(tt.at[1])); got != tt.at[2] {
				t.Errorf("At(%g,%g) = %g, want %g", tt.at[0], tt.at[1], got, tt.at[2])
			}
		})
	}
}

func TestLoadMatrix_ParsesNaN(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "nan.csv", "1,nan\nNaN,4\n")
	m, err := LoadMatrix(path)
	if err != nil {
		t.Fatalf("LoadMatrix failed: %v", err)
	}
	if !math.IsNaN(m.At(0, 1)) || !math.IsNaN(m.At(1, 0)) {
		t.Errorf("expected NaN entries, got %g and %g", m.At(0, 1), m.At(1, 0))
	}
}

func TestLoadMatrix_RaggedRows(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ragged.csv", "1,2,3\n4,5\n")
	if _, err := LoadMatrix(path); !errors.Is(err, core.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func TestLoadMatrix_Empty(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.csv", "# only a comment\n")
	if _, err := LoadMatrix(path); err == nil {
		t.Fatal("expected error for empty matrix file")
	}
}

func TestLoadVector_RowAndColumn(t *testing.T) {
	dir := t.TempDir()
	want := []float64{1, 2.5, 3}

	row, err := LoadVector(writeFile(t, dir, "row.txt", "1 2.5 3\n"))
	if err != nil {
		t.Fatalf("LoadVector row failed: %v", err)
	}
	col, err := LoadVector(writeFile(t, dir, "col.txt", "1\n2.5\n3\n"))
	if err != nil {
		t.Fatalf("LoadVector column failed: %v", err)
	}
	for i := range want {
		if row[i] != want[i] || col[i] != want[i] {
			t.Fatalf("entry %d: row %g, col %g, want %g", i, row[i], col[i], want[i])
		}
	}

	if _, err := LoadVector(writeFile(t, dir, "wide.txt", "1 2\n3 4\n")); !errors.Is(err, core.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch for 2x2 vector file, got %v", err)
	}
}

func TestLoadIntVector(t *testing.T) {
	dir := t.TempDir()
	got, err := LoadIntVector(writeFile(t, dir, "blocks.txt", "1\n1\n2\n2\n"))
	if err != nil {
		t.Fatalf("LoadIntVector failed: %v", err)
	}
	want := []int{1, 1, 2, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %d, want %d", i, got[i], want[i])
		}
	}

	if _, err := LoadIntVector(writeFile(t, dir, "frac.txt", "1\n1.5\n")); err == nil {
		t.Fatal("expected error for fractional block label")
	}
}

func TestCohortFiles_ReadCohort(t *testing.T) {
	dir := t.TempDir()
	writeSubjectMatrix(t, dir, "s0.csv", 4, 10)
	writeSubjectMatrix(t, dir, "s1.csv", 4, 20)
	writeSubjectMatrix(t, dir, "s2.csv", 4, 30)
	list := writeFile(t, dir, "subjects.txt", "s0.csv\ns1.csv\n# third subject\ns2.csv\n")

	files, err := NewCohortFiles(list)
	if err != nil {
		t.Fatalf("NewCohortFiles failed: %v", err)
	}
	if files.Subjects() != 3 {
		t.Fatalf("Subjects = %d, want 3", files.Subjects())
	}

	table, m2v, err := files.ReadCohort(context.Background())
	if err != nil {
		t.Fatalf("ReadCohort failed: %v", err)
	}
	if m2v.Nodes() != 4 || m2v.Edges() != 10 {
		t.Fatalf("topology = %d nodes %d edges, want 4 and 10", m2v.Nodes(), m2v.Edges())
	}
	if table.Subjects() != 3 || table.Elements() != 10 {
		t.Fatalf("table = %dx%d, want 3x10", table.Subjects(), table.Elements())
	}
	// Subject 1 edge (1, 2) carries 20 + 1 + 2.
	if got := table.At(1, m2v.Index(1, 2)); got != 23 {
		t.Errorf("table.At(1, edge(1,2)) = %g, want 23", got)
	}
}

func TestCohortFiles_SizeMismatch(t *testing.T) {
	dir := t.TempDir()
	writeSubjectMatrix(t, dir, "s0.csv", 4, 10)
	writeSubjectMatrix(t, dir, "s1.csv", 5, 20)
	list := writeFile(t, dir, "subjects.txt", "s0.csv\ns1.csv\n")

	files, err := NewCohortFiles(list)
	if err != nil {
		t.Fatalf("NewCohortFiles failed: %v", err)
	}
	_, _, err = files.ReadCohort(context.Background())
	if err == nil || !strings.Contains(err.Error(), "subject 1") {
		t.Fatalf("expected size mismatch naming subject 1, got %v", err)
	}
}

func TestCohortFiles_RejectsDirected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "directed.csv", "0,1,2\n9,0,3\n2,3,0\n")
	list := writeFile(t, dir, "subjects.txt", "directed.csv\n")

	files, err := NewCohortFiles(list)
	if err != nil {
		t.Fatalf("NewCohortFiles failed: %v", err)
	}
	if _, _, err := files.ReadCohort(context.Background()); !errors.Is(err, core.ErrDirectedMatrix) {
		t.Fatalf("expected directed matrix rejection, got %v", err)
	}
}

func TestCohortFiles_MissingFile(t *testing.T) {
	dir := t.TempDir()
	list := writeFile(t, dir, "subjects.txt", "absent.csv\n")
	if _, err := NewCohortFiles(list); err == nil {
		t.Fatal("expected error for missing subject file")
	}
}

func TestDesignFile_ReadDesign(t *testing.T) {
	dir := t.TempDir()
	designPath := writeFile(t, dir, "design.txt", "1 0\n1 0\n1 1\n")
	writeSubjectMatrix(t, dir, "m0.csv", 4, 1)
	writeSubjectMatrix(t, dir, "m1.csv", 4, 2)
	writeSubjectMatrix(t, dir, "m2.csv", 4, 3)
	colList := writeFile(t, dir, "motion.txt", "m0.csv\nm1.csv\nm2.csv\n")

	reader := NewDesignFile(designPath, []ColumnSpec{{Path: colList}})
	dm, extras, err := reader.ReadDesign(context.Background())
	if err != nil {
		t.Fatalf("ReadDesign failed: %v", err)
	}
	if dm.Subjects() != 3 || dm.Factors() != 2 {
		t.Fatalf("design = %dx%d, want 3x2", dm.Subjects(), dm.Factors())
	}
	if len(extras) != 1 {
		t.Fatalf("extras = %d, want 1", len(extras))
	}
	if extras[0].Name != "motion" {
		t.Errorf("column name = %q, want %q from the list file name", extras[0].Name, "motion")
	}
	if extras[0].Data.Subjects() != 3 || extras[0].Data.Elements() != 10 {
		t.Errorf("column table = %dx%d, want 3x10", extras[0].Data.Subjects(), extras[0].Data.Elements())
	}
}

func TestHypothesisFile_TContrasts(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "contrasts.txt", "0 1\n0 -1\n")

	hyps, err := NewHypothesisFile(path, "", false).ReadHypotheses(context.Background(), 2)
	if err != nil {
		t.Fatalf("ReadHypotheses failed: %v", err)
	}
	if len(hyps) != 2 {
		t.Fatalf("hypotheses = %d, want 2", len(hyps))
	}
	if hyps[0].Name() != "t1" || hyps[1].Name() != "t2" {
		t.Errorf("names = %q, %q, want t1, t2", hyps[0].Name(), hyps[1].Name())
	}
	if hyps[0].IsF() || hyps[1].IsF() {
		t.Error("contrast rows should load as t-hypotheses")
	}
	if got := hyps[1].Contrast().At(0, 1); got != -1 {
		t.Errorf("t2 contrast entry = %g, want -1", got)
	}
}

func TestHypothesisFile_FTests(t *testing.T) {
	dir := t.TempDir()
	contrasts := writeFile(t, dir, "contrasts.txt", "0 1\n0 -1\n")
	ftests := writeFile(t, dir, "ftests.txt", "1 1\n")

	hyps, err := NewHypothesisFile(contrasts, ftests, false).ReadHypotheses(context.Background(), 2)
	if err != nil {
		t.Fatalf("ReadHypotheses failed: %v", err)
	}
	if len(hyps) != 3 {
		t.Fatalf("hypotheses = %d, want t1, t2 and F1", len(hyps))
	}
	f := hyps[2]
	if f.Name() != "F1" || !f.IsF() || f.Rows() != 2 {
		t.Fatalf("F hypothesis = %s kind %s rows %d, want F1/F/2", f.Name(), f.Kind(), f.Rows())
	}

	only, err := NewHypothesisFile(contrasts, ftests, true).ReadHypotheses(context.Background(), 2)
	if err != nil {
		t.Fatalf("ReadHypotheses fonly failed: %v", err)
	}
	if len(only) != 1 || only[0].Name() != "F1" {
		t.Fatalf("fonly hypotheses = %v, want just F1", len(only))
	}
}

func TestHypothesisFile_WidthMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "contrasts.txt", "0 1\n")
	if _, err := NewHypothesisFile(path, "", false).ReadHypotheses(context.Background(), 3); !errors.Is(err, core.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch for contrast width, got %v", err)
	}
}

func TestHypothesisFile_FTestValidation(t *testing.T) {
	dir := t.TempDir()
	contrasts := writeFile(t, dir, "contrasts.txt", "0 1\n0 -1\n")

	if _, err := NewHypothesisFile(contrasts, "", true).ReadHypotheses(context.Background(), 2); !errors.Is(err, core.ErrMissingParameter) {
		t.Fatalf("expected missing parameter for fonly without ftests, got %v", err)
	}

	bad := writeFile(t, dir, "bad.txt", "1 2\n")
	if _, err := NewHypothesisFile(contrasts, bad, false).ReadHypotheses(context.Background(), 2); err == nil {
		t.Fatal("expected error for non-binary F-test entry")
	}

	empty := writeFile(t, dir, "none.txt", "0 0\n")
	if _, err := NewHypothesisFile(contrasts, empty, false).ReadHypotheses(context.Background(), 2); err == nil {
		t.Fatal("expected error for F-test selecting no contrasts")
	}

	narrow := writeFile(t, dir, "narrow.txt", "1\n")
	if _, err := NewHypothesisFile(contrasts, narrow, false).ReadHypotheses(context.Background(), 2); !errors.Is(err, core.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch for F-test width, got %v", err)
	}
}

func TestSplitFields(t *testing.T) {
	tests := []struct {
		line string
		want int
	}{
		{"1,2,3", 3},
		{"1 2\t3", 3},
		{"1, 2, 3 # comment", 3},
		{"# all comment", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := splitFields(tt.line); len(got) != tt.want {
			t.Errorf("splitFields(%q) = %v, want %d fields", tt.line, got, tt.want)
		}
	}
}

type staticDesign struct{ dm *design.Matrix }

func (s staticDesign) ReadDesign(context.Context) (*design.Matrix, []design.ExtraColumn, error) {
	return s.dm, nil, nil
}

func TestWithColumns(t *testing.T) {
	dir := t.TempDir()
	writeSubjectMatrix(t, dir, "m0.csv", 3, 1)
	writeSubjectMatrix(t, dir, "m1.csv", 3, 2)
	colList := writeFile(t, dir, "motion.txt", "m0.csv\nm1.csv\n")

	dm, err := design.NewMatrix(mat.NewDense(2, 1, []float64{1, 1}))
	if err != nil {
		t.Fatalf("Failed to build design: %v", err)
	}
	inner := staticDesign{dm: dm}

	if got := WithColumns(inner, nil); got != ports.DesignReader(inner) {
		t.Fatal("WithColumns without specs should return the inner reader")
	}

	wrapped := WithColumns(inner, []ColumnSpec{{Path: colList}})
	gotDM, extras, err := wrapped.ReadDesign(context.Background())
	if err != nil {
		t.Fatalf("ReadDesign failed: %v", err)
	}
	if gotDM != dm {
		t.Error("wrapped reader should pass the inner design through")
	}
	if len(extras) != 1 || extras[0].Name != "motion" {
		t.Fatalf("extras = %+v, want one column named motion", extras)
	}
	if extras[0].Data.Subjects() != 2 || extras[0].Data.Elements() != 6 {
		t.Errorf("column table = %dx%d, want 2x6", extras[0].Data.Subjects(), extras[0].Data.Elements())
	}
}

func matrixRow(m *mat.Dense, i int) []float64 {
	_, cols := m.Dims()
	out := make([]float64, cols)
	mat.Row(out, i, m)
	return out
}
