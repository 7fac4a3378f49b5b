package enhance

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"edgestat/domain/connectome"
	"edgestat/domain/core"
	"edgestat/domain/run"
)

func TestPassThrough_Identity(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	raw := make([]float64, 64)
	for i := range raw {
		raw[i] = rng.NormFloat64()
	}

	got, err := PassThrough{}.Enhance(raw)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	for i := range raw {
		if got[i] != raw[i] {
			t.Fatalf("element %d: %v != %v", i, got[i], raw[i])
		}
	}

	// The result is a copy, not an alias.
	got[0] = math.Inf(1)
	if math.IsInf(raw[0], 1) {
		t.Errorf("Enhance aliased its input")
	}
}

func TestNBS_ComponentExtents(t *testing.T) {
	topo := connectome.NewMat2Vec(4)
	raw := make([]float64, topo.Edges())
	for i := range raw {
		raw[i] = 1.0
	}
	// Chain 0-1-2 with two supra-threshold edges, plus an isolated
	// supra-threshold self-connection at node 3.
	raw[topo.Index(0, 1)] = 4.0
	raw[topo.Index(1, 2)] = 3.5
	raw[topo.Index(3, 3)] = 5.0

	nbs, err := NewNBS(topo, 3.0)
	if err != nil {
		t.Fatalf("NewNBS: %v", err)
	}
	got, err := nbs.Enhance(raw)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}

	want := make([]float64, topo.Edges())
	want[topo.Index(0, 1)] = 2
	want[topo.Index(1, 2)] = 2
	want[topo.Index(3, 3)] = 1
	for e := range want {
		if got[e] != want[e] {
			i, j := topo.Pair(e)
			t.Errorf("edge (%d,%d): got %v, want %v", i, j, got[e], want[e])
		}
	}
}

func TestNBS_SubThresholdVectorIsZero(t *testing.T) {
	topo := connectome.NewMat2Vec(3)
	raw := make([]float64, topo.Edges())
	for i := range raw {
		raw[i] = 0.5
	}
	nbs, err := NewNBS(topo, 1.0)
	if err != nil {
		t.Fatalf("NewNBS: %v", err)
	}
	got, err := nbs.Enhance(raw)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	for e, v := range got {
		if v != 0 {
			t.Errorf("edge %d enhanced to %v below threshold", e, v)
		}
	}
}

func TestTFCE_SingleEdgeClosedForm(t *testing.T) {
	topo := connectome.NewMat2Vec(3)

	tests := []struct {
		name string
		v    float64
		want float64
	}{
		// With dh=0.5, E=1, H=1 a lone edge integrates h*dh over the
		// levels it survives.
		{"one level", 1.0, 0.5 * 0.5},
		{"two levels", 1.1, 0.5*0.5 + 1.0*0.5},
		{"three levels", 1.6, 0.5*0.5 + 1.0*0.5 + 1.5*0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tfce, err := NewTFCE(topo, 0.5, 1, 1)
			if err != nil {
				t.Fatalf("NewTFCE: %v", err)
			}
			raw := make([]float64, topo.Edges())
			raw[topo.Index(0, 1)] = tt.v
			got, err := tfce.Enhance(raw)
			if err != nil {
				t.Fatalf("Enhance: %v", err)
			}
			if math.Abs(got[topo.Index(0, 1)]-tt.want) > 1e-12 {
				t.Errorf("enhanced = %v, want %v", got[topo.Index(0, 1)], tt.want)
			}
			for e, v := range got {
				if e != topo.Index(0, 1) && v != 0 {
					t.Errorf("edge %d enhanced to %v with zero statistic", e, v)
				}
			}
		})
	}
}

func TestTFCE_MonotoneInRawValue(t *testing.T) {
	topo := connectome.NewMat2Vec(5)
	tfce, err := NewTFCE(topo, 0.1, 0.4, 3.0)
	if err != nil {
		t.Fatalf("NewTFCE: %v", err)
	}

	rng := rand.New(rand.NewSource(17))
	base := make([]float64, topo.Edges())
	for i := range base {
		base[i] = rng.Float64() * 2
	}
	probe := topo.Index(1, 3)

	prev := -1.0
	for _, v := range []float64{0.0, 0.5, 1.0, 1.7, 2.5, 4.0} {
		raw := append([]float64(nil), base...)
		raw[probe] = v
		got, err := tfce.Enhance(raw)
		if err != nil {
			t.Fatalf("Enhance: %v", err)
		}
		if got[probe] < prev {
			t.Fatalf("enhanced value decreased from %v to %v as raw rose to %v", prev, got[probe], v)
		}
		prev = got[probe]
	}
}

func TestTFCE_NonPositiveStatisticIsZero(t *testing.T) {
	topo := connectome.NewMat2Vec(4)
	tfce, err := NewTFCE(topo, 0.1, 0.4, 3.0)
	if err != nil {
		t.Fatalf("NewTFCE: %v", err)
	}
	raw := make([]float64, topo.Edges())
	for i := range raw {
		raw[i] = -float64(i)
	}
	got, err := tfce.Enhance(raw)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	for e, v := range got {
		if v != 0 {
			t.Errorf("edge %d enhanced to %v from non-positive input", e, v)
		}
	}
}

func TestNew_Dispatch(t *testing.T) {
	topo := connectome.NewMat2Vec(3)

	t.Run("nbs without threshold", func(t *testing.T) {
		cfg := run.DefaultConfig()
		cfg.Algorithm = run.AlgorithmNBS
		if _, err := New(cfg, topo); !errors.Is(err, core.ErrMissingParameter) {
			t.Errorf("got %v, want missing parameter", err)
		}
	})

	t.Run("nbs with threshold", func(t *testing.T) {
		cfg := run.DefaultConfig()
		cfg.Algorithm = run.AlgorithmNBS
		cfg.Threshold = 3.0
		cfg.ThresholdSet = true
		enh, err := New(cfg, topo)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, ok := enh.(*NBS); !ok {
			t.Errorf("got %T, want *NBS", enh)
		}
	})

	t.Run("tfce", func(t *testing.T) {
		enh, err := New(run.DefaultConfig(), topo)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, ok := enh.(*TFCE); !ok {
			t.Errorf("got %T, want *TFCE", enh)
		}
	})

	t.Run("none", func(t *testing.T) {
		cfg := run.DefaultConfig()
		cfg.Algorithm = run.AlgorithmNone
		enh, err := New(cfg, topo)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, ok := enh.(PassThrough); !ok {
			t.Errorf("got %T, want PassThrough", enh)
		}
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		cfg := run.DefaultConfig()
		cfg.Algorithm = "cluster"
		if _, err := New(cfg, topo); !errors.Is(err, core.ErrUnsupportedConfig) {
			t.Errorf("got %v, want unsupported configuration", err)
		}
	})
}
