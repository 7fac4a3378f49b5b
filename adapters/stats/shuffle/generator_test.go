package shuffle

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"edgestat/domain/core"
	"edgestat/domain/run"
	"edgestat/ports"
)

func testConfig(mode run.ErrorModel, permutations int, seed int64) run.Config {
	cfg := run.DefaultConfig()
	cfg.Errors = mode
	cfg.Permutations = permutations
	cfg.Seed = seed
	return cfg
}

func drain(t *testing.T, g *Generator) []ports.Assignment {
	t.Helper()
	var out []ports.Assignment
	for {
		a, ok := g.Next()
		if !ok {
			break
		}
		out = append(out, a)
	}
	if err := g.Err(); err != nil {
		t.Fatalf("generator failed: %v", err)
	}
	return out
}

func TestGenerator_IdentityFirst(t *testing.T) {
	for _, mode := range []run.ErrorModel{run.ErrorsExchangeable, run.ErrorsSymmetric, run.ErrorsBoth} {
		t.Run(string(mode), func(t *testing.T) {
			g, err := NewGenerator(testConfig(mode, 10, 42), 6)
			if err != nil {
				t.Fatalf("NewGenerator: %v", err)
			}
			first, ok := g.Next()
			if !ok {
				t.Fatalf("empty sequence")
			}
			if first.Index != 0 || !first.IsIdentity() {
				t.Errorf("first arrangement index %d, identity %v", first.Index, first.IsIdentity())
			}
		})
	}
}

func TestGenerator_UniqueWithinRun(t *testing.T) {
	const subjects, count = 10, 200
	g, err := NewGenerator(testConfig(run.ErrorsExchangeable, count, 7), subjects)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if g.Count() != count {
		t.Fatalf("Count = %d, want %d", g.Count(), count)
	}

	all := drain(t, g)
	if len(all) != count {
		t.Fatalf("drained %d arrangements, want %d", len(all), count)
	}
	seen := make(map[string]struct{}, count)
	for i, a := range all {
		if a.Index != i {
			t.Errorf("arrangement %d carries index %d", i, a.Index)
		}
		if a.Order != nil {
			sorted := append([]int(nil), a.Order...)
			sort.Ints(sorted)
			for j, v := range sorted {
				if v != j {
					t.Fatalf("arrangement %d order is not a permutation: %v", i, a.Order)
				}
			}
		}
		k := g.key(a)
		if _, dup := seen[k]; dup {
			t.Fatalf("arrangement %d repeats an earlier arrangement", i)
		}
		seen[k] = struct{}{}
	}
}

func TestGenerator_ExhaustiveSmallSpaces(t *testing.T) {
	tests := []struct {
		name      string
		mode      run.ErrorModel
		subjects  int
		requested int
		wantCount int
	}{
		{"three subjects permuted", run.ErrorsExchangeable, 3, 100, 6},
		{"three subjects flipped", run.ErrorsSymmetric, 3, 100, 8},
		{"two subjects both", run.ErrorsBoth, 2, 100, 8},
		{"exact fit", run.ErrorsExchangeable, 3, 6, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGenerator(testConfig(tt.mode, tt.requested, 1), tt.subjects)
			if err != nil {
				t.Fatalf("NewGenerator: %v", err)
			}
			if g.Count() != tt.wantCount {
				t.Fatalf("Count = %d, want %d", g.Count(), tt.wantCount)
			}
			all := drain(t, g)
			if len(all) != tt.wantCount {
				t.Fatalf("drained %d, want %d", len(all), tt.wantCount)
			}
			if !all[0].IsIdentity() {
				t.Errorf("first arrangement is not the identity")
			}
			seen := make(map[string]struct{})
			for _, a := range all {
				seen[g.key(a)] = struct{}{}
			}
			if len(seen) != tt.wantCount {
				t.Errorf("space of %d arrangements contains %d distinct", tt.wantCount, len(seen))
			}
		})
	}
}

func TestGenerator_WithinBlocks(t *testing.T) {
	cfg := testConfig(run.ErrorsExchangeable, 100, 3)
	cfg.ExchangeWithin = []int{0, 0, 1, 1}
	g, err := NewGenerator(cfg, 4)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	// Two blocks of two permute independently: 2! * 2! arrangements.
	if g.Count() != 4 {
		t.Fatalf("Count = %d, want 4", g.Count())
	}
	for _, a := range drain(t, g) {
		for i := 0; i < 4; i++ {
			src := a.Source(i)
			if (i < 2) != (src < 2) {
				t.Errorf("arrangement %d moves subject %d across blocks to %d", a.Index, src, i)
			}
		}
	}
}

func TestGenerator_WholeBlocks(t *testing.T) {
	cfg := testConfig(run.ErrorsExchangeable, 100, 3)
	cfg.ExchangeWhole = []int{0, 0, 1, 1, 2, 2}
	g, err := NewGenerator(cfg, 6)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	// Three rigid blocks: 3! arrangements.
	if g.Count() != 6 {
		t.Fatalf("Count = %d, want 6", g.Count())
	}
	for _, a := range drain(t, g) {
		for b := 0; b < 3; b++ {
			first, second := a.Source(2*b), a.Source(2*b+1)
			if second != first+1 || first%2 != 0 {
				t.Errorf("arrangement %d tears block apart: positions %d,%d read %d,%d",
					a.Index, 2*b, 2*b+1, first, second)
			}
		}
	}
}

func TestGenerator_WholeBlocksUnequal(t *testing.T) {
	cfg := testConfig(run.ErrorsExchangeable, 10, 3)
	cfg.ExchangeWhole = []int{0, 0, 1}
	if _, err := NewGenerator(cfg, 3); !errors.Is(err, core.ErrUnequalBlocks) {
		t.Errorf("got %v, want unequal blocks error", err)
	}
}

func TestGenerator_SignFlipsRespectWholeBlocks(t *testing.T) {
	cfg := testConfig(run.ErrorsSymmetric, 100, 5)
	cfg.ExchangeWhole = []int{0, 0, 1, 1}
	g, err := NewGenerator(cfg, 4)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	// Two flip groups: 2^2 arrangements.
	if g.Count() != 4 {
		t.Fatalf("Count = %d, want 4", g.Count())
	}
	for _, a := range drain(t, g) {
		if a.Sign(0) != a.Sign(1) || a.Sign(2) != a.Sign(3) {
			t.Errorf("arrangement %d flips inside a rigid block", a.Index)
		}
	}
}

func TestGenerator_WithinBlocksRejectedForSignFlips(t *testing.T) {
	cfg := testConfig(run.ErrorsSymmetric, 10, 5)
	cfg.ExchangeWithin = []int{0, 0, 1, 1}
	if _, err := NewGenerator(cfg, 4); !errors.Is(err, core.ErrUnsupportedConfig) {
		t.Errorf("got %v, want unsupported configuration", err)
	}
}

func TestGenerator_SeedDeterminism(t *testing.T) {
	const subjects, count = 10, 50

	sequence := func(seed int64) []string {
		t.Helper()
		g, err := NewGenerator(testConfig(run.ErrorsExchangeable, count, seed), subjects)
		if err != nil {
			t.Fatalf("NewGenerator: %v", err)
		}
		keys := make([]string, 0, count)
		for _, a := range drain(t, g) {
			keys = append(keys, g.key(a))
		}
		return keys
	}

	first := sequence(99)
	second := sequence(99)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed diverged at arrangement %d", i)
		}
	}

	other := sequence(100)
	same := true
	for i := 1; i < len(first); i++ {
		if first[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Errorf("different seeds produced an identical sequence")
	}
}

func TestGenerator_EmpiricalStreamIsDistinct(t *testing.T) {
	cfg := testConfig(run.ErrorsExchangeable, 50, 21)
	cfg.PermutationsNonstationarity = 50

	main, err := NewGenerator(cfg, 10)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	emp, err := NewEmpiricalGenerator(cfg, 10)
	if err != nil {
		t.Fatalf("NewEmpiricalGenerator: %v", err)
	}

	mainSeq := drain(t, main)
	empSeq := drain(t, emp)
	diverged := false
	for i := 1; i < len(mainSeq) && i < len(empSeq); i++ {
		if main.key(mainSeq[i]) != main.key(empSeq[i]) {
			diverged = true
			break
		}
	}
	if !diverged {
		t.Errorf("empirical stream repeats the main test stream")
	}
}

func TestGenerator_RetryBudgetFails(t *testing.T) {
	// Bypass the constructor's exhaustive switch to prove the sampler
	// fails closed when asked for more arrangements than exist.
	g := &Generator{
		subjects: 4,
		count:    25, // space is only 4! = 24
		mode:     run.ErrorsExchangeable,
		rng:      rand.New(rand.NewSource(13)),
		seen:     make(map[string]struct{}),
		budget:   50,
	}
	for {
		if _, ok := g.Next(); !ok {
			break
		}
	}
	if !errors.Is(g.Err(), core.ErrShuffleSpace) {
		t.Errorf("got %v, want shuffle space exhausted", g.Err())
	}
}
