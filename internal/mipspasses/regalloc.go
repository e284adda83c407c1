package mipspasses

import "sysyc/internal/mips"

// node is one interference-graph vertex: a virtual register pending a
// color, or a physical register pinned to a fixed color so it can
// still conflict with virtuals that must avoid it. Mirrors the
// `Node` struct of the reference allocator (build/make_wl/simplify/
// coalesce/freeze/select_spill/assign_colors), restructured into the
// node-plus-worklists shape idiomatic Go register allocators use
// (see the vslc-derived grounding note in DESIGN.md).
type node struct {
	reg     mips.Operand
	degree  int
	adj     map[mips.Operand]*node
	moves   map[*mips.MoveInst]bool
	alias   *node
	colored bool
	color   int
}

var invAllocatable = func() map[mips.Reg]int {
	m := make(map[mips.Reg]int, len(mips.Allocatable))
	for i, r := range mips.Allocatable {
		m[r] = i
	}
	return m
}()

// opQueue is an insertion-ordered worklist of operands with O(1)
// membership testing; nodes leave it in the order they were pushed.
// That push order comes from walks over the live sets and adjacency
// sets, which are Go maps, so when several nodes are tied the one
// picked next (and hence which physical register a virtual ends up
// with) can differ between runs on identical input.
type opQueue struct {
	items []mips.Operand
	in    map[mips.Operand]bool
}

func newOpQueue() *opQueue { return &opQueue{in: map[mips.Operand]bool{}} }

func (q *opQueue) push(o mips.Operand) {
	if q.in[o] {
		return
	}
	q.in[o] = true
	q.items = append(q.items, o)
}

func (q *opQueue) remove(o mips.Operand) {
	if !q.in[o] {
		return
	}
	delete(q.in, o)
	for i, x := range q.items {
		if x == o {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
}

func (q *opQueue) pop() mips.Operand {
	o := q.items[0]
	q.items = q.items[1:]
	delete(q.in, o)
	return o
}

func (q *opQueue) empty() bool { return len(q.items) == 0 }

// moveQueue is the same idea for worklistMoves: a FIFO of candidate
// coalesces, checked for membership before a pass reconsiders one.
type moveQueue struct {
	items []*mips.MoveInst
	in    map[*mips.MoveInst]bool
}

func newMoveQueue() *moveQueue { return &moveQueue{in: map[*mips.MoveInst]bool{}} }

func (q *moveQueue) push(m *mips.MoveInst) {
	if q.in[m] {
		return
	}
	q.in[m] = true
	q.items = append(q.items, m)
}

func (q *moveQueue) remove(m *mips.MoveInst) {
	if !q.in[m] {
		return
	}
	delete(q.in, m)
	for i, x := range q.items {
		if x == m {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
}

func (q *moveQueue) pop() *mips.MoveInst {
	m := q.items[0]
	q.items = q.items[1:]
	delete(q.in, m)
	return m
}

func (q *moveQueue) empty() bool { return len(q.items) == 0 }

// allocator holds one run of iterated register coalescing over a
// single function. A fresh allocator is built for every outer
// iteration (Allocate restarts after a spill rewrite), matching the
// reference implementation's clear()-and-rebuild loop.
type allocator struct {
	mf    *mips.MFunc
	nodes map[mips.Operand]*node
	order []mips.Operand // virtuals, in the order build first reached them

	srcOf, dstOf map[*mips.MoveInst]mips.Operand
	active       map[*mips.MoveInst]bool
	worklist     *moveQueue

	selectStack []*node
	onStack     map[mips.Operand]bool

	simplifyWL, freezeWL, spillWL *opQueue
	coalesced, spilled            map[mips.Operand]bool

	loopDepth map[mips.Operand]int
}

func newAllocator(mf *mips.MFunc) *allocator {
	return &allocator{
		mf:         mf,
		nodes:      map[mips.Operand]*node{},
		srcOf:      map[*mips.MoveInst]mips.Operand{},
		dstOf:      map[*mips.MoveInst]mips.Operand{},
		active:     map[*mips.MoveInst]bool{},
		worklist:   newMoveQueue(),
		onStack:    map[mips.Operand]bool{},
		simplifyWL: newOpQueue(),
		freezeWL:   newOpQueue(),
		spillWL:    newOpQueue(),
		coalesced:  map[mips.Operand]bool{},
		spilled:    map[mips.Operand]bool{},
		loopDepth:  map[mips.Operand]int{},
	}
}

func (a *allocator) getNode(r mips.Operand) *node {
	n, ok := a.nodes[r]
	if !ok {
		n = &node{reg: r, adj: map[mips.Operand]*node{}, moves: map[*mips.MoveInst]bool{}}
		a.nodes[r] = n
		if r.IsVirtual() {
			a.order = append(a.order, r)
		}
	}
	return n
}

func (a *allocator) addEdge(u, v *node) {
	if u == v {
		return
	}
	if _, ok := u.adj[v.reg]; ok {
		return
	}
	if !u.reg.IsPhysical() {
		u.adj[v.reg] = v
		u.degree++
	}
	if !v.reg.IsPhysical() {
		v.adj[u.reg] = u
		v.degree++
	}
}

// build walks every block backward from its live-out set, recording
// an interference edge between each instruction's defs and every
// value live at that point, and cataloguing register-register moves
// as coalescing candidates (§4.5's "Interference graph").
func (a *allocator) build() {
	liveOut := blockLiveOut(a.mf, uncoloredReg)
	for _, b := range a.mf.Blocks {
		live := cloneSet(liveOut[b])
		for _, inst := range reverse(b.Instructions()) {
			def := filterOperands(inst.Defs(), uncoloredReg)
			use := filterOperands(inst.Uses(), uncoloredReg)

			if mv, ok := inst.(*mips.MoveInst); ok && !mv.Src.IsConst() &&
				uncoloredReg(mv.Src) && uncoloredReg(mv.Dst) {
				delete(live, mv.Src)
				a.srcOf[mv] = mv.Src
				a.dstOf[mv] = mv.Dst
				a.getNode(mv.Src).moves[mv] = true
				a.getNode(mv.Dst).moves[mv] = true
				a.worklist.push(mv)
			}

			for _, d := range def {
				live[d] = true
			}
			for _, d := range def {
				for l := range live {
					if d != l {
						a.addEdge(a.getNode(l), a.getNode(d))
					}
				}
			}
			for _, d := range def {
				delete(live, d)
			}
			for _, u := range use {
				live[u] = true
			}

			for _, d := range def {
				a.bumpDepth(d, b.LoopDepth)
			}
			for _, u := range use {
				a.bumpDepth(u, b.LoopDepth)
			}
		}
	}
}

func (a *allocator) bumpDepth(op mips.Operand, depth int) {
	if !op.IsVirtual() {
		return
	}
	if cur, ok := a.loopDepth[op]; !ok || depth > cur {
		a.loopDepth[op] = depth
	}
}

// makeWorklist buckets every virtual register node into simplify,
// freeze, or spill, in a.order: the order build first reached each
// vreg, which follows its iteration over the live-set map and so is
// not fixed across runs.
func (a *allocator) makeWorklist() {
	for _, op := range a.order {
		n := a.nodes[op]
		switch {
		case n.degree >= mips.K:
			a.spillWL.push(op)
		case a.moveRelated(n):
			a.freezeWL.push(op)
		default:
			a.simplifyWL.push(op)
		}
	}
}

func (a *allocator) nodeMoves(n *node) []*mips.MoveInst {
	var out []*mips.MoveInst
	for m := range n.moves {
		if a.active[m] || a.worklist.in[m] {
			out = append(out, m)
		}
	}
	return out
}

func (a *allocator) moveRelated(n *node) bool { return len(a.nodeMoves(n)) > 0 }

// adjacent returns n's neighbors that have not already been pushed to
// the select stack or coalesced away.
func (a *allocator) adjacent(n *node) []*node {
	var out []*node
	for _, v := range n.adj {
		if a.onStack[v.reg] || a.coalesced[v.reg] {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (a *allocator) simplify() {
	op := a.simplifyWL.pop()
	n := a.nodes[op]
	a.selectStack = append(a.selectStack, n)
	a.onStack[op] = true
	for _, v := range a.adjacent(n) {
		a.decrementDegree(v)
	}
}

func (a *allocator) decrementDegree(n *node) {
	if n.reg.IsPhysical() {
		return
	}
	wasK := n.degree == mips.K
	n.degree--
	if wasK {
		a.enableMoves(n)
		for _, v := range a.adjacent(n) {
			a.enableMoves(v)
		}
		a.spillWL.remove(n.reg)
		if a.moveRelated(n) {
			a.freezeWL.push(n.reg)
		} else {
			a.simplifyWL.push(n.reg)
		}
	}
}

func (a *allocator) enableMoves(n *node) {
	for _, m := range a.nodeMoves(n) {
		if a.active[m] {
			a.active[m] = false
			a.worklist.remove(m)
			a.worklist.push(m)
		}
	}
}

func (a *allocator) getAlias(n *node) *node {
	for a.coalesced[n.reg] {
		n = n.alias
	}
	return n
}

func (a *allocator) coalesce() {
	m := a.worklist.pop()
	u := a.getAlias(a.nodes[a.dstOf[m]])
	v := a.getAlias(a.nodes[a.srcOf[m]])
	if a.srcOf[m].IsPhysical() {
		u, v = v, u
	}
	if u == v {
		a.addWorklist(u)
		return
	}
	if v.reg.IsPhysical() || a.interferes(u, v) {
		a.addWorklist(u)
		a.addWorklist(v)
		return
	}
	uPrecolored := u.reg.IsPhysical()
	ok := false
	if uPrecolored {
		ok = true
		for _, t := range a.adjacent(v) {
			if !a.george(t, u) {
				ok = false
				break
			}
		}
	} else {
		merged := map[*node]bool{}
		for _, t := range a.adjacent(u) {
			merged[t] = true
		}
		for _, t := range a.adjacent(v) {
			merged[t] = true
		}
		ok = a.briggs(merged)
	}
	if ok {
		a.combine(u, v)
		a.addWorklist(u)
		return
	}
	a.active[m] = true
}

func (a *allocator) interferes(u, v *node) bool {
	_, uv := u.adj[v.reg]
	_, vu := v.adj[u.reg]
	return uv || vu
}

func (a *allocator) addWorklist(n *node) {
	if !n.reg.IsPhysical() && n.degree < mips.K && !a.moveRelated(n) {
		a.freezeWL.remove(n.reg)
		a.simplifyWL.push(n.reg)
	}
}

// george is the George test: safe to coalesce a non-precolored t into
// precolored r if t is already low-degree, precolored itself, or
// already interferes with r.
func (a *allocator) george(t, r *node) bool {
	return t.degree < mips.K || t.reg.IsPhysical() || a.interferes(t, r)
}

// briggs is the conservative coalescing test: safe if fewer than K of
// the combined neighbor set have high (>=K) degree.
func (a *allocator) briggs(neighbors map[*node]bool) bool {
	k := 0
	for n := range neighbors {
		if n.degree >= mips.K {
			k++
			if k >= mips.K {
				return false
			}
		}
	}
	return true
}

func (a *allocator) combine(u, v *node) {
	if a.freezeWL.in[v.reg] {
		a.freezeWL.remove(v.reg)
	} else {
		a.spillWL.remove(v.reg)
	}
	a.coalesced[v.reg] = true
	v.alias = u
	for m := range v.moves {
		u.moves[m] = true
	}
	for _, t := range a.adjacent(v) {
		a.addEdge(t, u)
		a.decrementDegree(t)
	}
	if u.degree >= mips.K && a.freezeWL.in[u.reg] {
		a.freezeWL.remove(u.reg)
		a.spillWL.push(u.reg)
	}
}

func (a *allocator) freeze() {
	op := a.freezeWL.pop()
	n := a.nodes[op]
	a.simplifyWL.push(op)
	a.freezeMoves(n)
}

func (a *allocator) freezeMoves(n *node) {
	for _, m := range a.nodeMoves(n) {
		if a.active[m] {
			a.active[m] = false
		} else {
			a.worklist.remove(m)
		}
		other := a.srcOf[m]
		if other == n.reg {
			other = a.dstOf[m]
		}
		v := a.nodes[other]
		if !a.moveRelated(v) && v.degree < mips.K {
			a.freezeWL.remove(v.reg)
			a.simplifyWL.push(v.reg)
		}
	}
}

// selectSpill picks the spill candidate maximizing degree/2^depth
// (§4.5: "so loop-bodies are preferred to keep") and moves it to
// simplify -- it may yet be colored; only assignColors decides it is
// an actual spill.
func (a *allocator) selectSpill() {
	var best mips.Operand
	bestScore := -1.0
	for _, op := range a.spillWL.items {
		n := a.nodes[op]
		score := float64(n.degree) / pow2(a.loopDepth[op])
		if score > bestScore {
			bestScore = score
			best = op
		}
	}
	a.spillWL.remove(best)
	a.simplifyWL.push(best)
	a.freezeMoves(a.nodes[best])
}

func pow2(n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= 2
	}
	return r
}

// assignColors pops the select stack and colors each node with the
// least-index allocatable register unused by any already-resolved
// neighbor, falling back to recording a spill.
func (a *allocator) assignColors() {
	for len(a.selectStack) > 0 {
		n := a.selectStack[len(a.selectStack)-1]
		a.selectStack = a.selectStack[:len(a.selectStack)-1]

		used := make([]bool, mips.K)
		for _, v := range n.adj {
			c := a.colorOf(a.getAlias(v))
			if c >= 0 && c < mips.K {
				used[c] = true
			}
		}
		picked := -1
		for i, taken := range used {
			if !taken {
				picked = i
				break
			}
		}
		if picked < 0 {
			a.spilled[n.reg] = true
			continue
		}
		n.colored = true
		n.color = picked
	}

	for reg := range a.coalesced {
		n := a.nodes[reg]
		alias := a.getAlias(n)
		c := a.colorOf(alias)
		if c < 0 || c >= mips.K {
			continue
		}
		n.colored = true
		n.color = c
	}
}

// colorOf returns a node's resolved color index into mips.Allocatable,
// or -1 if it has none yet (a physical node's color is always its own
// fixed register).
func (a *allocator) colorOf(n *node) int {
	if n.reg.IsPhysical() {
		if idx, ok := invAllocatable[mips.Reg(n.reg.Val)]; ok {
			return idx
		}
		return -1
	}
	if n.colored {
		return n.color
	}
	return -1
}

// run executes one build/worklist/assign attempt, returning the set
// of virtuals that still need spilling.
func (a *allocator) run() map[mips.Operand]bool {
	a.build()
	a.makeWorklist()
	for {
		switch {
		case !a.simplifyWL.empty():
			a.simplify()
		case !a.worklist.empty():
			a.coalesce()
		case !a.freezeWL.empty():
			a.freeze()
		case !a.spillWL.empty():
			a.selectSpill()
		default:
			a.assignColors()
			return a.spilled
		}
	}
}

// applyColors rewrites every colored virtual operand, anywhere it
// appears as a def or use, into its assigned physical register.
func (a *allocator) applyColors(mf *mips.MFunc) {
	for _, b := range mf.Blocks {
		for _, inst := range b.Instructions() {
			for _, p := range append(inst.Defs(), inst.Uses()...) {
				if !p.IsVirtual() {
					continue
				}
				n, ok := a.nodes[*p]
				if !ok {
					continue
				}
				n = a.getAlias(n)
				if n.colored {
					*p = mips.MReg(mips.Allocatable[n.color])
				}
			}
		}
	}
}

// Allocate runs the iterated register-coalescing allocator to
// completion, rewriting spills and restarting until every virtual in
// mf is colored (§4.5).
func Allocate(mf *mips.MFunc) {
	for {
		EliminateDeadCode(mf)
		a := newAllocator(mf)
		spilled := a.run()
		if len(spilled) == 0 {
			a.applyColors(mf)
			return
		}
		for _, op := range sortedOperands(spilled) {
			spillVReg(mf, op)
		}
	}
}

// sortedOperands returns the spilled set in a fixed order (by
// register id) so a run's spill-slot assignment is reproducible.
func sortedOperands(set map[mips.Operand]bool) []mips.Operand {
	out := make([]mips.Operand, 0, len(set))
	for op := range set {
		out = append(out, op)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Val < out[j-1].Val; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// spillWindow bounds how many instructions a single reload/store pair
// can span, so a spilled value's live range -- and the interference
// it would otherwise add back to the next build() -- stays short.
const spillWindow = 30

// spillVReg rewrites every block's appearances of the spilled virtual
// v: within each window of up to spillWindow instructions, a single
// fresh local vreg stands in for v, reloaded just before its first
// use in the window and stored just after its last def, unless a def
// already precedes that first use (then the freshly computed value is
// still in the local and a reload would clobber it with stale data).
func spillVReg(mf *mips.MFunc, v mips.Operand) {
	off := int32(mf.MaxCallArgNum+mf.AllocaNum+mf.SpillNum) * 4
	for _, b := range mf.Blocks {
		rewriteSpillBlock(mf, b, v, off)
	}
	mf.SpillNum++
}

func rewriteSpillBlock(mf *mips.MFunc, b *mips.MBlock, v mips.Operand, off int32) {
	insts := b.Instructions()
	var local mips.Operand
	var localSet, haveValue bool
	var loadBefore, storeAfter mips.MInst
	count := 0

	localVReg := func() mips.Operand {
		if !localSet {
			local = mf.NewVReg()
			localSet = true
		}
		return local
	}

	for _, inst := range insts {
		if count >= spillWindow {
			flushWindow(b, loadBefore, storeAfter, local, off)
			loadBefore, storeAfter = nil, nil
			haveValue, localSet, count = false, false, 0
		}
		count++

		for _, p := range inst.Uses() {
			if *p != v {
				continue
			}
			if !haveValue {
				loadBefore = inst
				haveValue = true
			}
			*p = localVReg()
		}
		for _, p := range inst.Defs() {
			if *p != v {
				continue
			}
			*p = localVReg()
			storeAfter = inst
			haveValue = true
		}
	}
	flushWindow(b, loadBefore, storeAfter, local, off)
}

// flushWindow inserts the pending reload/store for the window just
// finished, if either was needed.
func flushWindow(b *mips.MBlock, loadBefore, storeAfter mips.MInst, local mips.Operand, off int32) {
	if loadBefore != nil {
		b.InsertBefore(loadBefore, mips.NewLoad(local, mips.MReg(mips.RegSp), off))
	}
	if storeAfter != nil {
		insertAfter(b, storeAfter, mips.NewStore(local, mips.MReg(mips.RegSp), off))
	}
}

// insertAfter splices inst immediately after mark in b. mark is
// always a real def site, never a terminator (no MIPS terminator has
// a Defs()), so it is never the block's last instruction in a way
// that would require appending past the terminator.
func insertAfter(b *mips.MBlock, mark, inst mips.MInst) {
	insts := b.Instructions()
	for i, x := range insts {
		if x == mark {
			if i+1 < len(insts) {
				b.InsertBefore(insts[i+1], inst)
			} else {
				b.Push(inst)
			}
			return
		}
	}
	b.Push(inst)
}
