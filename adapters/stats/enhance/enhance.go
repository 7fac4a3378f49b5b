// Package enhance transforms raw per-edge statistics into enhanced scores
// that reward connected structure. Three strategies exist: NBS (connected
// component extent above a fixed threshold), TFCE (extent and height
// integrated over a threshold sweep) and pass-through. The strategy set is
// closed; New dispatches on the run configuration.
package enhance

import (
	"fmt"

	"edgestat/domain/connectome"
	"edgestat/domain/core"
	"edgestat/domain/run"
	"edgestat/ports"
)

// New builds the enhancer the configuration selects. NBS and TFCE need the
// edge topology; pass-through ignores it.
func New(cfg run.Config, topo *connectome.Mat2Vec) (ports.EnhancerPort, error) {
	switch cfg.Algorithm {
	case run.AlgorithmNBS:
		if !cfg.ThresholdSet {
			return nil, core.NewMissingParameterError("nbs enhancement", "a statistic threshold")
		}
		return NewNBS(topo, cfg.Threshold)
	case run.AlgorithmTFCE:
		return NewTFCE(topo, cfg.TFCEDH, cfg.TFCEExtent, cfg.TFCEHeight)
	case run.AlgorithmNone:
		return PassThrough{}, nil
	}
	return nil, fmt.Errorf("%w: enhancement algorithm %q", core.ErrUnsupportedConfig, cfg.Algorithm)
}

// unionFind is a disjoint-set forest over node indices with path
// compression and union by rank.
type unionFind struct {
	parent []int
	rank   []uint8
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{parent: make([]int, n), rank: make([]uint8, n)}
	u.reset()
	return u
}

func (u *unionFind) reset() {
	for i := range u.parent {
		u.parent[i] = i
		u.rank[i] = 0
	}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

// componentExtents joins nodes across every edge whose statistic exceeds
// the threshold and counts surviving edges per component. After the call,
// extents[root] holds the edge count of the component rooted there.
func componentExtents(topo *connectome.Mat2Vec, raw []float64, threshold float64, uf *unionFind, extents []float64) {
	uf.reset()
	for e, v := range raw {
		if v > threshold {
			a, b := topo.Pair(e)
			uf.union(a, b)
		}
	}
	for i := range extents {
		extents[i] = 0
	}
	for e, v := range raw {
		if v > threshold {
			a, _ := topo.Pair(e)
			extents[uf.find(a)]++
		}
	}
}
