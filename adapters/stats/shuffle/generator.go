// Package shuffle generates the label arrangements the permutation loop
// consumes: subject permutations, sign flips, or both, optionally
// constrained by exchangeability blocks. The sequence always starts with
// the identity arrangement and never repeats an arrangement within a run.
package shuffle

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"

	"edgestat/domain/core"
	"edgestat/domain/run"
	"edgestat/ports"
)

// Generator is a lazy arrangement sequence. It is not safe for concurrent
// use: one goroutine drains it and fans the arrangements out.
type Generator struct {
	subjects int
	count    int
	mode     run.ErrorModel
	within   [][]int // member positions per block, nil when unblocked
	whole    [][]int
	rng      *rand.Rand

	next   int
	seen   map[string]struct{}
	budget int
	all    []ports.Assignment // exhaustive enumeration, nil when sampling
	err    error
}

// NewGenerator builds the main test sequence from the run configuration:
// cfg.Permutations arrangements seeded by cfg.Seed. When the feasible
// space is smaller than the request, the sequence is the whole space and
// Count reports the reduced size.
func NewGenerator(cfg run.Config, subjects int) (*Generator, error) {
	return newGenerator(cfg, subjects, cfg.Permutations, cfg.Seed)
}

// NewEmpiricalGenerator builds the separate sequence used to estimate the
// non-stationarity baseline. It draws from a distinct stream so the main
// test never reuses its arrangements.
func NewEmpiricalGenerator(cfg run.Config, subjects int) (*Generator, error) {
	return newGenerator(cfg, subjects, cfg.PermutationsNonstationarity, cfg.Seed+1)
}

func newGenerator(cfg run.Config, subjects, count int, seed int64) (*Generator, error) {
	if subjects < 1 {
		return nil, core.NewShapeError("subject count", subjects, 1)
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: arrangement count %d, need at least 1", core.ErrUnsupportedConfig, count)
	}
	mode, err := run.ParseErrorModel(string(cfg.Errors))
	if err != nil {
		return nil, err
	}

	g := &Generator{
		subjects: subjects,
		count:    count,
		mode:     mode,
		rng:      rand.New(rand.NewSource(seed)),
		seen:     make(map[string]struct{}, count),
		budget:   max(1000, 10*count),
	}
	if len(cfg.ExchangeWithin) > 0 {
		if mode == run.ErrorsSymmetric {
			return nil, fmt.Errorf("%w: within-block constraints do not apply to sign flips, use whole-block exchange", core.ErrUnsupportedConfig)
		}
		g.within, err = labelBlocks(cfg.ExchangeWithin, subjects)
		if err != nil {
			return nil, err
		}
	}
	if len(cfg.ExchangeWhole) > 0 {
		if g.within != nil {
			return nil, fmt.Errorf("%w: within-block and whole-block exchangeability are mutually exclusive", core.ErrUnsupportedConfig)
		}
		g.whole, err = labelBlocks(cfg.ExchangeWhole, subjects)
		if err != nil {
			return nil, err
		}
		for _, b := range g.whole[1:] {
			if len(b) != len(g.whole[0]) {
				return nil, fmt.Errorf("%w: block sizes %d and %d", core.ErrUnequalBlocks, len(g.whole[0]), len(b))
			}
		}
	}

	if space := g.feasibleSpace(count); space <= count {
		g.enumerateAll()
	}
	return g, nil
}

// labelBlocks groups subject positions by block label, blocks ordered by
// label and positions ascending inside each block.
func labelBlocks(labels []int, subjects int) ([][]int, error) {
	if len(labels) != subjects {
		return nil, core.NewShapeError("block label count", len(labels), subjects)
	}
	byLabel := make(map[int][]int)
	for pos, l := range labels {
		byLabel[l] = append(byLabel[l], pos)
	}
	keys := make([]int, 0, len(byLabel))
	for l := range byLabel {
		keys = append(keys, l)
	}
	sort.Ints(keys)
	blocks := make([][]int, 0, len(keys))
	for _, l := range keys {
		blocks = append(blocks, byLabel[l])
	}
	return blocks, nil
}

// Next returns the next arrangement in index order.
func (g *Generator) Next() (ports.Assignment, bool) {
	if g.err != nil || g.next >= g.count {
		return ports.Assignment{}, false
	}
	if g.all != nil {
		a := g.all[g.next]
		g.next++
		return a, true
	}
	if g.next == 0 {
		id := ports.Assignment{}
		g.seen[g.key(id)] = struct{}{}
		g.next++
		return id, true
	}
	for attempt := 0; attempt < g.budget; attempt++ {
		a := g.draw()
		k := g.key(a)
		if _, dup := g.seen[k]; dup {
			continue
		}
		g.seen[k] = struct{}{}
		a.Index = g.next
		g.next++
		return a, true
	}
	g.err = fmt.Errorf("%w: %d consecutive duplicate draws at arrangement %d of %d",
		core.ErrShuffleSpace, g.budget, g.next, g.count)
	return ports.Assignment{}, false
}

// Err returns the first generation failure, nil after a clean end.
func (g *Generator) Err() error { return g.err }

// Count returns the number of arrangements the sequence yields.
func (g *Generator) Count() int { return g.count }

// Subjects returns the label count every arrangement covers.
func (g *Generator) Subjects() int { return g.subjects }

// draw samples one random arrangement respecting mode and blocks. The RNG
// is consumed in a fixed order per call, so a seed fully determines the
// sequence.
func (g *Generator) draw() ports.Assignment {
	var order []int
	var signs []float64

	if g.mode != run.ErrorsSymmetric {
		switch {
		case g.whole != nil:
			order = identityOrder(g.subjects)
			q := g.rng.Perm(len(g.whole))
			for b, members := range g.whole {
				src := g.whole[q[b]]
				for j, pos := range members {
					order[pos] = src[j]
				}
			}
		case g.within != nil:
			order = identityOrder(g.subjects)
			for _, members := range g.within {
				p := g.rng.Perm(len(members))
				for j, pos := range members {
					order[pos] = members[p[j]]
				}
			}
		default:
			order = g.rng.Perm(g.subjects)
		}
	}

	if g.mode != run.ErrorsExchangeable {
		signs = make([]float64, g.subjects)
		for i := range signs {
			signs[i] = 1
		}
		if g.whole != nil {
			for _, members := range g.whole {
				if g.rng.Intn(2) == 1 {
					for _, pos := range members {
						signs[pos] = -1
					}
				}
			}
		} else {
			for i := range signs {
				if g.rng.Intn(2) == 1 {
					signs[i] = -1
				}
			}
		}
	}

	return ports.Assignment{Order: order, Signs: signs}
}

// key encodes an arrangement for duplicate detection. Source and Sign
// normalize implicit identity, so a sampled identity collides with the
// reserved index 0 as it must.
func (g *Generator) key(a ports.Assignment) string {
	buf := make([]byte, 0, 5*g.subjects)
	for i := 0; i < g.subjects; i++ {
		buf = binary.AppendVarint(buf, int64(a.Source(i)))
	}
	for i := 0; i < g.subjects; i++ {
		if a.Sign(i) < 0 {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return string(buf)
}

// feasibleSpace sizes the arrangement space, saturating at limit+1 since
// the caller only needs to know whether the space fits inside limit.
func (g *Generator) feasibleSpace(limit int) int {
	space := 1
	mul := func(f int) {
		if f < 1 {
			return
		}
		if space > (limit+1)/f {
			space = limit + 1
			return
		}
		space *= f
	}

	if g.mode != run.ErrorsSymmetric {
		switch {
		case g.whole != nil:
			for k := 2; k <= len(g.whole); k++ {
				mul(k)
			}
		case g.within != nil:
			for _, members := range g.within {
				for k := 2; k <= len(members); k++ {
					mul(k)
				}
			}
		default:
			for k := 2; k <= g.subjects; k++ {
				mul(k)
			}
		}
	}
	if g.mode != run.ErrorsExchangeable {
		groups := g.subjects
		if g.whole != nil {
			groups = len(g.whole)
		}
		for i := 0; i < groups; i++ {
			mul(2)
		}
	}
	return space
}

func identityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}
