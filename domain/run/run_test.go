package run

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"edgestat/domain/core"
)

func TestParseAlgorithm(t *testing.T) {
	for _, s := range []string{"nbs", "tfce", "none"} {
		alg, err := ParseAlgorithm(s)
		if err != nil {
			t.Errorf("ParseAlgorithm(%q): %v", s, err)
		}
		if string(alg) != s {
			t.Errorf("ParseAlgorithm(%q) = %q", s, alg)
		}
	}
	if _, err := ParseAlgorithm("cluster"); !errors.Is(err, core.ErrUnsupportedConfig) {
		t.Errorf("ParseAlgorithm(cluster) = %v, want ErrUnsupportedConfig", err)
	}
}

func TestParseErrorModel(t *testing.T) {
	for _, s := range []string{"ee", "ise", "both"} {
		if _, err := ParseErrorModel(s); err != nil {
			t.Errorf("ParseErrorModel(%q): %v", s, err)
		}
	}
	if _, err := ParseErrorModel("iid"); !errors.Is(err, core.ErrUnsupportedConfig) {
		t.Errorf("ParseErrorModel(iid) = %v, want ErrUnsupportedConfig", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"unknown algorithm", func(c *Config) { c.Algorithm = "cluster" }, false},
		{"unknown error model", func(c *Config) { c.Errors = "iid" }, false},
		{"zero permutations", func(c *Config) { c.Permutations = 0 }, false},
		{"nonstationarity zero skew", func(c *Config) {
			c.Nonstationarity = true
			c.Skew = 0
		}, false},
		{"nonstationarity zero shuffles", func(c *Config) {
			c.Nonstationarity = true
			c.PermutationsNonstationarity = 0
		}, false},
		{"both block schemes", func(c *Config) {
			c.ExchangeWithin = []int{0, 0, 1, 1}
			c.ExchangeWhole = []int{0, 0, 1, 1}
		}, false},
		{"within blocks alone", func(c *Config) {
			c.ExchangeWithin = []int{0, 0, 1, 1}
		}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("Validate accepted a bad config")
				}
				if !errors.Is(err, core.ErrUnsupportedConfig) {
					t.Fatalf("Validate = %v, want ErrUnsupportedConfig", err)
				}
			}
		})
	}
}

func TestNewManifest_Fingerprint(t *testing.T) {
	shape := Shape{Subjects: 10, Elements: 6, Nodes: 3, Factors: 2, Hypotheses: 1}
	cfg := DefaultConfig()
	names := []string{"group"}

	a := NewManifest(shape, names, cfg, "1.0.0")
	b := NewManifest(shape, names, cfg, "1.0.0")

	if a.RunID == b.RunID {
		t.Error("two manifests share a run id")
	}
	if a.Fingerprint != b.Fingerprint {
		t.Errorf("equal inputs produced fingerprints %s and %s", a.Fingerprint, b.Fingerprint)
	}
	if len(a.Fingerprint) != 64 {
		t.Errorf("fingerprint length %d, want 64 hex chars", len(a.Fingerprint))
	}

	// Any determinism parameter must move the fingerprint.
	seeded := cfg
	seeded.Seed = 7
	if NewManifest(shape, names, seeded, "1.0.0").Fingerprint == a.Fingerprint {
		t.Error("seed change did not move the fingerprint")
	}
	if NewManifest(shape, []string{"age"}, cfg, "1.0.0").Fingerprint == a.Fingerprint {
		t.Error("hypothesis rename did not move the fingerprint")
	}
	if NewManifest(shape, names, cfg, "2.0.0").Fingerprint == a.Fingerprint {
		t.Error("code version change did not move the fingerprint")
	}
}

func TestManifest_Validate(t *testing.T) {
	shape := Shape{Subjects: 10, Elements: 6, Nodes: 3, Factors: 2, Hypotheses: 2}
	m := NewManifest(shape, []string{"group", "age"}, DefaultConfig(), "1.0.0")
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	short := NewManifest(shape, []string{"group"}, DefaultConfig(), "1.0.0")
	if err := short.Validate(); !errors.Is(err, core.ErrUnsupportedConfig) {
		t.Errorf("Validate with short name list = %v, want ErrUnsupportedConfig", err)
	}

	m.Fingerprint = ""
	if err := m.Validate(); err == nil {
		t.Error("Validate accepted a manifest without a fingerprint")
	}
}

func TestResult_MinFWEP(t *testing.T) {
	untested := &Result{}
	if untested.Tested() {
		t.Error("Tested() true without corrected p-values")
	}
	if !math.IsNaN(untested.MinFWEP()) {
		t.Errorf("MinFWEP on untested run = %g, want NaN", untested.MinFWEP())
	}

	res := &Result{FWEP: mat.NewDense(2, 3, []float64{
		0.9, 0.4, 0.7,
		0.5, 0.02, 1.0,
	})}
	if !res.Tested() {
		t.Error("Tested() false with corrected p-values present")
	}
	if got := res.MinFWEP(); got != 0.02 {
		t.Errorf("MinFWEP = %g, want 0.02", got)
	}
}

func TestHypothesisRow(t *testing.T) {
	if HypothesisRow(nil, 0) != nil {
		t.Error("HypothesisRow(nil) != nil")
	}
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	row := HypothesisRow(m, 1)
	want := []float64{4, 5, 6}
	for i, v := range want {
		if row[i] != v {
			t.Fatalf("HypothesisRow(1) = %v, want %v", row, want)
		}
	}
	// The slice is a copy, not a view.
	row[0] = 99
	if m.At(1, 0) != 4 {
		t.Error("HypothesisRow aliases the matrix backing store")
	}
}
