package enhance

import (
	"edgestat/domain/connectome"
	"edgestat/domain/core"
)

// NBS is the network-based statistic: every edge above the fixed threshold
// receives the supra-threshold edge count of its connected component, and
// everything below the threshold receives zero.
type NBS struct {
	topo      *connectome.Mat2Vec
	threshold float64
}

// NewNBS builds the NBS enhancer over the given edge topology.
func NewNBS(topo *connectome.Mat2Vec, threshold float64) (*NBS, error) {
	if topo == nil {
		return nil, core.NewMissingParameterError("nbs enhancement", "edge topology")
	}
	return &NBS{topo: topo, threshold: threshold}, nil
}

// Enhance maps raw statistics to component extents. Safe for concurrent
// calls: all state is local to the call.
func (n *NBS) Enhance(raw []float64) ([]float64, error) {
	if len(raw) != n.topo.Edges() {
		return nil, core.NewShapeError("statistic length", len(raw), n.topo.Edges())
	}
	uf := newUnionFind(n.topo.Nodes())
	extents := make([]float64, n.topo.Nodes())
	componentExtents(n.topo, raw, n.threshold, uf, extents)

	out := make([]float64, len(raw))
	for e, v := range raw {
		if v > n.threshold {
			a, _ := n.topo.Pair(e)
			out[e] = extents[uf.find(a)]
		}
	}
	return out, nil
}
