package testkit

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"edgestat/adapters/matrixfile"
)

func TestCohortGenerator_Deterministic(t *testing.T) {
	a, err := NewCohortGenerator(DefaultCohortConfig())
	if err != nil {
		t.Fatalf("NewCohortGenerator: %v", err)
	}
	b, err := NewCohortGenerator(DefaultCohortConfig())
	if err != nil {
		t.Fatalf("NewCohortGenerator: %v", err)
	}

	ta, _ := a.Cohort()
	tb, _ := b.Cohort()
	if !mat.Equal(ta.Dense(), tb.Dense()) {
		t.Error("same seed produced different cohorts")
	}

	pa, pb := a.PlantedEdges(), b.PlantedEdges()
	if len(pa) != len(pb) {
		t.Fatalf("planted edge counts differ: %d vs %d", len(pa), len(pb))
	}
	for i := range pa {
		if pa[i] != pb[i] {
			t.Errorf("planted edge %d differs: %d vs %d", i, pa[i], pb[i])
		}
	}

	c := DefaultCohortConfig()
	c.Seed = 7
	other, err := NewCohortGenerator(c)
	if err != nil {
		t.Fatalf("NewCohortGenerator: %v", err)
	}
	to, _ := other.Cohort()
	if mat.Equal(ta.Dense(), to.Dense()) {
		t.Error("different seeds produced identical cohorts")
	}
}

func TestCohortGenerator_PlantedEffect(t *testing.T) {
	g, err := NewCohortGenerator(DefaultCohortConfig())
	if err != nil {
		t.Fatalf("NewCohortGenerator: %v", err)
	}

	planted := make(map[int]bool)
	var plantedSum float64
	for _, e := range g.PlantedEdges() {
		planted[e] = true
		s, err := g.Summarise(e)
		if err != nil {
			t.Fatalf("Summarise(%d): %v", e, err)
		}
		if s.ObservedEffect <= 0 {
			t.Errorf("planted edge %d has effect %g, want positive", e, s.ObservedEffect)
		}
		plantedSum += s.ObservedEffect
	}
	plantedAvg := plantedSum / float64(len(g.PlantedEdges()))

	_, topo := g.Cohort()
	var nullSum float64
	nullCount := 0
	for e := 0; e < topo.Edges(); e++ {
		if planted[e] {
			continue
		}
		s, err := g.Summarise(e)
		if err != nil {
			t.Fatalf("Summarise(%d): %v", e, err)
		}
		nullSum += math.Abs(s.ObservedEffect)
		nullCount++
	}
	nullAvg := nullSum / float64(nullCount)

	if plantedAvg <= nullAvg {
		t.Errorf("planted average effect %g not above null average %g", plantedAvg, nullAvg)
	}
}

func TestCohortGenerator_Design(t *testing.T) {
	g, err := NewCohortGenerator(DefaultCohortConfig())
	if err != nil {
		t.Fatalf("NewCohortGenerator: %v", err)
	}

	dm, err := g.Design()
	if err != nil {
		t.Fatalf("Design: %v", err)
	}
	if dm.Subjects() != 24 || dm.Factors() != 3 {
		t.Fatalf("design is %dx%d, want 24x3", dm.Subjects(), dm.Factors())
	}
	if !dm.HasConstantColumn() {
		t.Error("design lost its intercept column")
	}
	groups := g.Groups()
	for s, want := range groups {
		if got := dm.Dense().At(s, 1); got != want {
			t.Errorf("group factor for subject %d = %g, want %g", s, got, want)
		}
	}

	if _, err := g.GroupContrast(); err != nil {
		t.Errorf("GroupContrast: %v", err)
	}
	f, err := g.OmnibusContrast()
	if err != nil {
		t.Fatalf("OmnibusContrast: %v", err)
	}
	if !f.IsF() {
		t.Error("omnibus contrast is not an F test")
	}
}

func TestCohortGenerator_MissingData(t *testing.T) {
	cfg := DefaultCohortConfig()
	cfg.MissingRate = 0.2
	g, err := NewCohortGenerator(cfg)
	if err != nil {
		t.Fatalf("NewCohortGenerator: %v", err)
	}

	table, topo := g.Cohort()
	if table.AllFinite() {
		t.Fatal("missing rate produced a fully finite cohort")
	}

	limit := cfg.Subjects/4 + 1
	for e := 0; e < topo.Edges(); e++ {
		missing := 0
		for s := 0; s < cfg.Subjects; s++ {
			if math.IsNaN(table.At(s, e)) {
				missing++
			}
		}
		if missing > limit {
			t.Errorf("edge %d has %d missing values, cap is %d", e, missing, limit)
		}
	}
}

func TestCohortGenerator_RejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CohortConfig)
	}{
		{"too few subjects", func(c *CohortConfig) { c.Subjects = 3 }},
		{"one node", func(c *CohortConfig) { c.Nodes = 1 }},
		{"split at zero", func(c *CohortConfig) { c.GroupSplit = 0 }},
		{"split at one", func(c *CohortConfig) { c.GroupSplit = 1 }},
		{"zero noise", func(c *CohortConfig) { c.Noise = 0 }},
		{"too many effect edges", func(c *CohortConfig) { c.EffectEdges = 1000 }},
		{"negative missing rate", func(c *CohortConfig) { c.MissingRate = -0.1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultCohortConfig()
			tc.mutate(&cfg)
			if _, err := NewCohortGenerator(cfg); err == nil {
				t.Error("expected a config error")
			}
		})
	}
}

// The written file set must read back through the file adapters into the
// exact cohort the generator holds in memory.
func TestWriteFiles_RoundTrip(t *testing.T) {
	cfg := DefaultCohortConfig()
	cfg.MissingRate = 0.1
	g, err := NewCohortGenerator(cfg)
	if err != nil {
		t.Fatalf("NewCohortGenerator: %v", err)
	}

	fs, err := g.WriteFiles(t.TempDir())
	if err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}

	ctx := context.Background()
	files, err := matrixfile.NewCohortFiles(fs.CohortList)
	if err != nil {
		t.Fatalf("NewCohortFiles: %v", err)
	}
	table, topo, err := files.ReadCohort(ctx)
	if err != nil {
		t.Fatalf("ReadCohort: %v", err)
	}

	want, wantTopo := g.Cohort()
	if topo.Nodes() != wantTopo.Nodes() {
		t.Fatalf("reloaded %d nodes, want %d", topo.Nodes(), wantTopo.Nodes())
	}
	if table.Subjects() != want.Subjects() || table.Elements() != want.Elements() {
		t.Fatalf("reloaded %dx%d, want %dx%d",
			table.Subjects(), table.Elements(), want.Subjects(), want.Elements())
	}
	for s := 0; s < want.Subjects(); s++ {
		for e := 0; e < want.Elements(); e++ {
			a, b := table.At(s, e), want.At(s, e)
			if a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
				t.Fatalf("value at (%d, %d) = %g, want %g", s, e, a, b)
			}
		}
	}

	dm, extras, err := matrixfile.NewDesignFile(fs.Design, nil).ReadDesign(ctx)
	if err != nil {
		t.Fatalf("ReadDesign: %v", err)
	}
	if len(extras) != 0 {
		t.Errorf("unexpected extra columns: %d", len(extras))
	}
	wantDM, err := g.Design()
	if err != nil {
		t.Fatalf("Design: %v", err)
	}
	if !mat.EqualApprox(dm.Dense(), wantDM.Dense(), 1e-12) {
		t.Error("reloaded design differs from generated design")
	}

	hyps, err := matrixfile.NewHypothesisFile(fs.Contrasts, fs.FTests, false).ReadHypotheses(ctx, 3)
	if err != nil {
		t.Fatalf("ReadHypotheses: %v", err)
	}
	if len(hyps) != 3 {
		t.Fatalf("got %d hypotheses, want t1, t2 and F1", len(hyps))
	}
	if hyps[0].IsF() || hyps[1].IsF() || !hyps[2].IsF() {
		t.Error("hypothesis kinds are wrong")
	}
}
