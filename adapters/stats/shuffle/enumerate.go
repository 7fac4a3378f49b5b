package shuffle

import (
	"edgestat/domain/run"
	"edgestat/ports"
)

// enumerateAll materializes the whole feasible space in deterministic
// order, identity first, and shrinks the sequence count to match. Only
// called when the space fits inside the requested count, so the slices
// stay small.
func (g *Generator) enumerateAll() {
	orders := [][]int{nil}
	if g.mode != run.ErrorsSymmetric {
		orders = g.orderChoices()
	}
	signs := [][]float64{nil}
	if g.mode != run.ErrorsExchangeable {
		signs = g.signChoices()
	}

	all := make([]ports.Assignment, 0, len(orders)*len(signs))
	for _, o := range orders {
		for _, s := range signs {
			all = append(all, ports.Assignment{Index: len(all), Order: o, Signs: s})
		}
	}
	g.all = all
	g.count = len(all)
}

// orderChoices enumerates every order vector the block structure allows,
// in lexicographic odometer order so the identity comes first.
func (g *Generator) orderChoices() [][]int {
	if g.whole != nil {
		var out [][]int
		for _, q := range permutationsOf(len(g.whole)) {
			order := identityOrder(g.subjects)
			for b, members := range g.whole {
				src := g.whole[q[b]]
				for j, pos := range members {
					order[pos] = src[j]
				}
			}
			out = append(out, order)
		}
		return out
	}

	blocks := g.within
	if blocks == nil {
		blocks = [][]int{identityOrder(g.subjects)}
	}
	lists := make([][][]int, len(blocks))
	for b, members := range blocks {
		lists[b] = permutationsOf(len(members))
	}

	idx := make([]int, len(blocks))
	var out [][]int
	for {
		order := identityOrder(g.subjects)
		for b, members := range blocks {
			p := lists[b][idx[b]]
			for j, pos := range members {
				order[pos] = members[p[j]]
			}
		}
		out = append(out, order)

		b := len(idx) - 1
		for b >= 0 {
			idx[b]++
			if idx[b] < len(lists[b]) {
				break
			}
			idx[b] = 0
			b--
		}
		if b < 0 {
			return out
		}
	}
}

// signChoices enumerates every sign vector: one independent flip per
// subject, or one per block under whole-block exchange. Mask zero, the
// all-positive identity, comes first.
func (g *Generator) signChoices() [][]float64 {
	groups := make([][]int, 0, g.subjects)
	if g.whole != nil {
		groups = g.whole
	} else {
		for i := 0; i < g.subjects; i++ {
			groups = append(groups, []int{i})
		}
	}

	out := make([][]float64, 0, 1<<len(groups))
	for mask := 0; mask < 1<<len(groups); mask++ {
		signs := make([]float64, g.subjects)
		for i := range signs {
			signs[i] = 1
		}
		for gi, members := range groups {
			if mask&(1<<gi) != 0 {
				for _, pos := range members {
					signs[pos] = -1
				}
			}
		}
		out = append(out, signs)
	}
	return out
}

// permutationsOf lists the permutations of 0..k-1 in lexicographic order.
func permutationsOf(k int) [][]int {
	cur := identityOrder(k)
	out := [][]int{append([]int(nil), cur...)}
	for {
		// Standard lexicographic successor: pivot, swap, reverse suffix.
		i := k - 2
		for i >= 0 && cur[i] >= cur[i+1] {
			i--
		}
		if i < 0 {
			return out
		}
		j := k - 1
		for cur[j] <= cur[i] {
			j--
		}
		cur[i], cur[j] = cur[j], cur[i]
		for l, r := i+1, k-1; l < r; l, r = l+1, r-1 {
			cur[l], cur[r] = cur[r], cur[l]
		}
		out = append(out, append([]int(nil), cur...))
	}
}
