// Package connectome maps between symmetric connectivity matrices and the
// flat edge vectors the statistics engine operates on. One "element" of the
// engine is one edge: an unordered node pair (i, j) with i <= j, so an
// n-node connectome carries n*(n+1)/2 elements including self-connections.
package connectome

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"edgestat/domain/core"
)

// symmetryTol is the maximum absolute difference tolerated between M(i,j)
// and M(j,i) before the matrix is treated as directed.
const symmetryTol = 1e-10

// Mat2Vec converts between node-pair and edge-index addressing for a fixed
// node count. It is immutable once built and safe for concurrent use.
type Mat2Vec struct {
	nodes int
	pairs [][2]int // edge index -> (i, j), i <= j
	index [][]int  // (i, j) -> edge index
}

// NewMat2Vec builds the lookup tables for an n-node connectome.
func NewMat2Vec(nodes int) *Mat2Vec {
	m := &Mat2Vec{
		nodes: nodes,
		pairs: make([][2]int, 0, nodes*(nodes+1)/2),
		index: make([][]int, nodes),
	}
	for i := 0; i < nodes; i++ {
		m.index[i] = make([]int, nodes)
	}
	e := 0
	for i := 0; i < nodes; i++ {
		for j := i; j < nodes; j++ {
			m.pairs = append(m.pairs, [2]int{i, j})
			m.index[i][j] = e
			m.index[j][i] = e
			e++
		}
	}
	return m
}

// Nodes returns the node count.
func (m *Mat2Vec) Nodes() int { return m.nodes }

// Edges returns the element count: nodes*(nodes+1)/2.
func (m *Mat2Vec) Edges() int { return len(m.pairs) }

// Pair returns the node pair for edge e.
func (m *Mat2Vec) Pair(e int) (int, int) {
	return m.pairs[e][0], m.pairs[e][1]
}

// Index returns the edge index for node pair (i, j) in either order.
func (m *Mat2Vec) Index(i, j int) int {
	return m.index[i][j]
}

// MatrixToVector flattens the upper triangle (diagonal included) of a
// symmetric connectome matrix into an edge vector.
func (m *Mat2Vec) MatrixToVector(c *mat.Dense) ([]float64, error) {
	if err := Check(c, m.nodes); err != nil {
		return nil, err
	}
	v := make([]float64, m.Edges())
	for e, p := range m.pairs {
		v[e] = c.At(p[0], p[1])
	}
	return v, nil
}

// VectorToMatrix expands an edge vector back into a symmetric nodes x nodes
// matrix. Used when writing per-edge results in matrix form.
func (m *Mat2Vec) VectorToMatrix(v []float64) (*mat.Dense, error) {
	if len(v) != m.Edges() {
		return nil, core.NewShapeError("edge vector length", len(v), m.Edges())
	}
	c := mat.NewDense(m.nodes, m.nodes, nil)
	for e, p := range m.pairs {
		c.Set(p[0], p[1], v[e])
		c.Set(p[1], p[0], v[e])
	}
	return c, nil
}

// Check validates that c is a square, undirected connectome over the
// expected node count. Asymmetry beyond tolerance means the matrix encodes
// a directed graph, which the engine does not model.
func Check(c *mat.Dense, nodes int) error {
	r, cols := c.Dims()
	if r != cols {
		return core.NewShapeError("connectome columns", cols, r)
	}
	if nodes > 0 && r != nodes {
		return core.NewShapeError("connectome nodes", r, nodes)
	}
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			if math.Abs(c.At(i, j)-c.At(j, i)) > symmetryTol {
				return core.ErrDirectedMatrix
			}
		}
	}
	return nil
}

// NodesForEdges inverts e = n*(n+1)/2, recovering the node count from an
// edge vector length. Errors when e is not a valid triangular count.
func NodesForEdges(edges int) (int, error) {
	n := int(math.Round((math.Sqrt(float64(8*edges+1)) - 1) / 2))
	if n*(n+1)/2 != edges {
		return 0, core.NewShapeError("edge count", edges, n*(n+1)/2)
	}
	return n, nil
}
