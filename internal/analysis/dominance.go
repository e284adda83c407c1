// Package analysis computes the CFG analyses the optimization pipeline
// and MIPS lowering depend on: predecessors, dominators, dominance
// frontier, natural loops, and (on the MIPS side) liveness.
package analysis

import "sysyc/internal/ir"

// BuildPredecessors recomputes every block's Preds list from the
// current successor edges of fn.Blocks.
func BuildPredecessors(fn *ir.Function) {
	for _, b := range fn.Blocks {
		b.Preds = nil
	}
	for _, b := range fn.Blocks {
		for _, s := range b.Succs() {
			if s == nil {
				continue
			}
			s.Preds = append(s.Preds, b)
		}
	}
}

// BuildDominators computes, for every reachable block, its immediate
// dominator, dominator-tree children, and tree depth, from dominator
// sets found by the naive O(N^2 * E) fixed point: w dominates u iff
// removing w disconnects entry from u. Unreachable blocks are left with
// a nil Idom.
func BuildDominators(fn *ir.Function) {
	entry := fn.Entry()
	blocks := fn.Blocks

	dom := make(map[*ir.BasicBlock]map[*ir.BasicBlock]bool, len(blocks))
	reachableFrom := func(skip *ir.BasicBlock) map[*ir.BasicBlock]bool {
		seen := map[*ir.BasicBlock]bool{}
		var stack []*ir.BasicBlock
		if entry != skip {
			stack = append(stack, entry)
			seen[entry] = true
		}
		for len(stack) > 0 {
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, s := range b.Succs() {
				if s == nil || s == skip || seen[s] {
					continue
				}
				seen[s] = true
				stack = append(stack, s)
			}
		}
		return seen
	}

	for _, u := range blocks {
		dom[u] = map[*ir.BasicBlock]bool{}
	}
	for _, w := range blocks {
		reach := reachableFrom(w)
		for _, u := range blocks {
			if u == w {
				dom[u][w] = true
				continue
			}
			if !reach[u] {
				dom[u][w] = true
			}
		}
	}

	for _, u := range blocks {
		u.Idom = nil
		u.Children = nil
		u.Depth = 0
	}

	reachable := reachableFrom(nil)
	for _, u := range blocks {
		if u == entry {
			continue
		}
		if !reachable[u] {
			continue // unreachable
		}
		// immediate dominator: the unique w != u dominating u with no
		// intermediate dominator w' (w' dominates u, w dominates w', w' != w).
		for w := range dom[u] {
			if w == u {
				continue
			}
			isImmediate := true
			for wp := range dom[u] {
				if wp == u || wp == w {
					continue
				}
				if dom[wp][w] {
					isImmediate = false
					break
				}
			}
			if isImmediate {
				u.Idom = w
				break
			}
		}
	}

	for _, u := range blocks {
		if u.Idom != nil {
			u.Idom.Children = append(u.Idom.Children, u)
		}
	}

	var assignDepth func(b *ir.BasicBlock, depth int)
	assignDepth = func(b *ir.BasicBlock, depth int) {
		b.Depth = depth
		for _, c := range b.Children {
			assignDepth(c, depth+1)
		}
	}
	assignDepth(entry, 0)
}

// Dominates reports whether a dominates b (reflexively: a dominates
// itself).
func Dominates(a, b *ir.BasicBlock) bool {
	for c := b; c != nil; c = c.Idom {
		if c == a {
			return true
		}
	}
	return false
}

// BuildDominanceFrontier computes each block's dominance frontier: for
// every block u with >= 2 predecessors, walk each predecessor p up the
// dominator tree until u's immediate dominator, adding u to p.DF at
// every step.
func BuildDominanceFrontier(fn *ir.Function) {
	for _, b := range fn.Blocks {
		b.DF = nil
	}
	for _, u := range fn.Blocks {
		if len(u.Preds) < 2 {
			continue
		}
		for _, p := range u.Preds {
			runner := p
			for runner != nil && runner != u.Idom {
				runner.DF = append(runner.DF, u)
				runner = runner.Idom
			}
		}
	}
}

// LCA returns the lowest common ancestor of a and b in the dominator
// tree (the deepest block dominating both).
func LCA(a, b *ir.BasicBlock) *ir.BasicBlock {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	for a.Depth > b.Depth {
		a = a.Idom
	}
	for b.Depth > a.Depth {
		b = b.Idom
	}
	for a != b {
		a = a.Idom
		b = b.Idom
	}
	return a
}
