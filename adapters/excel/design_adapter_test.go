package excel

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	return path
}

func TestTableReader_HeaderDetection(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		hasHeader bool
		rows      int
		firstName string
	}{
		{
			name:      "named columns",
			content:   "age,group\n20,0\n30,1\n",
			hasHeader: true,
			rows:      2,
			firstName: "age",
		},
		{
			name:      "pure numeric",
			content:   "1,0\n1,1\n",
			hasHeader: false,
			rows:      2,
			firstName: "f0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, "design.csv", tt.content)
			sheet, err := NewTableReader(path).ReadTable()
			if err != nil {
				t.Fatalf("ReadTable failed: %v", err)
			}
			if sheet.HasHeader != tt.hasHeader {
				t.Errorf("HasHeader = %t, want %t", sheet.HasHeader, tt.hasHeader)
			}
			if sheet.Rows() != tt.rows {
				t.Errorf("Rows = %d, want %d", sheet.Rows(), tt.rows)
			}
			if sheet.Headers[0] != tt.firstName {
				t.Errorf("first header = %q, want %q", sheet.Headers[0], tt.firstName)
			}
		})
	}
}

func TestDesignSheet_CSV(t *testing.T) {
	path := writeCSV(t, "pheno.csv", strings.Join([]string{
		"subject_id,intercept,group",
		"sub-01,1,0",
		"sub-02,1,0",
		"sub-03,1,1",
	}, "\n")+"\n")

	dm, extras, err := NewDesignSheet(path).ReadDesign(context.Background())
	if err != nil {
		t.Fatalf("ReadDesign failed: %v", err)
	}
	if len(extras) != 0 {
		t.Fatalf("extras = %d, want none from a spreadsheet", len(extras))
	}
	if dm.Subjects() != 3 || dm.Factors() != 2 {
		t.Fatalf("design = %dx%d, want 3x2 after dropping the id column", dm.Subjects(), dm.Factors())
	}
	if got := dm.Dense().At(2, 1); got != 1 {
		t.Errorf("design(2,1) = %g, want 1", got)
	}
}

func TestDesignSheet_BooleanCoercion(t *testing.T) {
	path := writeCSV(t, "pheno.csv", "treated\nfalse\ntrue\n")
	dm, _, err := NewDesignSheet(path).ReadDesign(context.Background())
	if err != nil {
		t.Fatalf("ReadDesign failed: %v", err)
	}
	if dm.Dense().At(0, 0) != 0 || dm.Dense().At(1, 0) != 1 {
		t.Errorf("boolean column = [%g %g], want [0 1]",
			dm.Dense().At(0, 0), dm.Dense().At(1, 0))
	}
}

func TestDesignSheet_FactorSelection(t *testing.T) {
	path := writeCSV(t, "pheno.csv", "age,group,iq\n20,0,100\n30,1,110\n")

	dm, _, err := NewDesignSheet(path, "group", "age").ReadDesign(context.Background())
	if err != nil {
		t.Fatalf("ReadDesign failed: %v", err)
	}
	if dm.Factors() != 2 {
		t.Fatalf("factors = %d, want 2 selected", dm.Factors())
	}
	// Selection order wins: group first, then age.
	if dm.Dense().At(1, 0) != 1 || dm.Dense().At(1, 1) != 30 {
		t.Errorf("row 1 = [%g %g], want [1 30]", dm.Dense().At(1, 0), dm.Dense().At(1, 1))
	}

	if _, _, err := NewDesignSheet(path, "dose").ReadDesign(context.Background()); err == nil {
		t.Fatal("expected error for unknown factor name")
	} else if !strings.Contains(err.Error(), "dose") {
		t.Errorf("error should name the missing factor: %v", err)
	}
}

func TestDesignSheet_BadCell(t *testing.T) {
	path := writeCSV(t, "pheno.csv", "age,group\n20,0\nunknown,1\n")
	_, _, err := NewDesignSheet(path).ReadDesign(context.Background())
	if err == nil {
		t.Fatal("expected error for non-numeric cell")
	}
	if !strings.Contains(err.Error(), "age") || !strings.Contains(err.Error(), "row 2") {
		t.Errorf("error should address the cell: %v", err)
	}
}

func TestDesignSheet_Workbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pheno.xlsx")
	f := excelize.NewFile()
	cells := map[string]interface{}{
		"A1": "subject", "B1": "intercept", "C1": "score",
		"A2": "sub-01", "B2": 1, "C2": 2.5,
		"A3": "sub-02", "B3": 1, "C3": 3.5,
	}
	for ref, v := range cells {
		if err := f.SetCellValue(sheetName, ref, v); err != nil {
			t.Fatalf("Failed to set cell %s: %v", ref, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("Failed to save workbook: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close workbook: %v", err)
	}

	dm, _, err := NewDesignSheet(path).ReadDesign(context.Background())
	if err != nil {
		t.Fatalf("ReadDesign failed: %v", err)
	}
	if dm.Subjects() != 2 || dm.Factors() != 2 {
		t.Fatalf("design = %dx%d, want 2x2 after dropping the subject column", dm.Subjects(), dm.Factors())
	}
	if dm.Dense().At(1, 1) != 3.5 {
		t.Errorf("design(1,1) = %g, want 3.5", dm.Dense().At(1, 1))
	}
}
