package analysis

import "sysyc/internal/ir"

// BuildLoops finds every natural loop, assigns each block its innermost
// containing Loop, and sets loop nesting Depth. Requires dominators to
// already be built. Back-edges are predecessor edges v -> u where u
// dominates v; u is the loop header. The body is the transitive set of
// predecessors of v bounded by u (a standard backward CFG walk from the
// latch that stops at the header). Loops sharing a header are merged;
// loops discovered while walking one header's latches that turn out to
// nest inside another are attached via Parent.
func BuildLoops(fn *ir.Function) {
	for _, b := range fn.Blocks {
		b.Loop = nil
	}

	order := postOrder(fn)
	loopsByHeader := map[*ir.BasicBlock]*ir.Loop{}

	for _, u := range order {
		var latches []*ir.BasicBlock
		for _, v := range u.Preds {
			if Dominates(u, v) {
				latches = append(latches, v)
			}
		}
		if len(latches) == 0 {
			continue
		}
		loop := loopsByHeader[u]
		if loop == nil {
			loop = &ir.Loop{Header: u, Body: map[*ir.BasicBlock]bool{u: true}}
			loopsByHeader[u] = loop
		}
		visited := map[*ir.BasicBlock]bool{}
		var stack []*ir.BasicBlock
		for _, l := range latches {
			stack = append(stack, l)
		}
		for len(stack) > 0 {
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[b] || loop.Body[b] {
				continue
			}
			visited[b] = true
			loop.Body[b] = true
			for _, p := range b.Preds {
				stack = append(stack, p)
			}
		}
	}

	// Merge nested loops: a block belonging to more than one loop's body
	// is governed by its innermost (smallest-body) loop; outer loops get
	// that inner loop as a child by setting the inner loop's Parent.
	headers := make([]*ir.Loop, 0, len(loopsByHeader))
	for _, l := range loopsByHeader {
		headers = append(headers, l)
	}
	for i, inner := range headers {
		for j, outer := range headers {
			if i == j {
				continue
			}
			if outer.Body[inner.Header] && len(outer.Body) > len(inner.Body) {
				if inner.Parent == nil || len(inner.Parent.Body) > len(outer.Body) {
					inner.Parent = outer
				}
			}
		}
	}

	for b, loop := range innermostLoopPerBlock(headers) {
		b.Loop = loop
	}

	var assignDepth func(l *ir.Loop) int
	depthCache := map[*ir.Loop]int{}
	assignDepth = func(l *ir.Loop) int {
		if l == nil {
			return 0
		}
		if d, ok := depthCache[l]; ok {
			return d
		}
		d := assignDepth(l.Parent) + 1
		depthCache[l] = d
		return d
	}
	for _, b := range fn.Blocks {
		b.Depth = assignDepth(b.Loop)
	}
}

// innermostLoopPerBlock resolves, for every block appearing in any
// loop body, the smallest-body (innermost) loop containing it.
func innermostLoopPerBlock(loops []*ir.Loop) map[*ir.BasicBlock]*ir.Loop {
	out := map[*ir.BasicBlock]*ir.Loop{}
	for _, l := range loops {
		for b := range l.Body {
			cur, ok := out[b]
			if !ok || len(l.Body) < len(cur.Body) {
				out[b] = l
			}
		}
	}
	return out
}

// postOrder walks the dominator tree in post-order (children before
// parent), which visits a loop's body before its header, matching the
// source compiler's traversal order for back-edge discovery.
func postOrder(fn *ir.Function) []*ir.BasicBlock {
	var order []*ir.BasicBlock
	visited := map[*ir.BasicBlock]bool{}
	var walk func(b *ir.BasicBlock)
	walk = func(b *ir.BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, c := range b.Children {
			walk(c)
		}
		order = append(order, b)
	}
	walk(fn.Entry())
	return order
}

// LoopDepthOf returns the loop nesting depth of b (0 outside any loop).
func LoopDepthOf(b *ir.BasicBlock) int {
	d := 0
	for l := b.Loop; l != nil; l = l.Parent {
		d++
	}
	return d
}
