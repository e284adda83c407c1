package passes

import (
	"sysyc/internal/analysis"
	"sysyc/internal/ir"
)

// DeadLoopElim deletes a natural loop outright when it provably does
// nothing observable: a single block outside the loop enters it (the
// pre-header), a single edge leaves it (the exit edge), no instruction
// in the body has a side effect, no instruction in the body returns
// from the function, and nothing outside the loop uses a value the
// body defines except through the phis of the exit block itself (which
// survive, keeping only their non-body incoming edges). Processed
// bottom-up: innermost loops are tried first, so a nested dead loop is
// already gone by the time its parent is evaluated.
type DeadLoopElim struct{}

func (DeadLoopElim) Name() string { return "dle" }

func (DeadLoopElim) Apply(prog *ir.Program) bool {
	changed := false
	for _, fn := range prog.Funcs {
		if fn.IsExternal() {
			continue
		}
		for eliminateOneLoop(fn) {
			changed = true
		}
	}
	return changed
}

// eliminateOneLoop recomputes loop analysis and deletes at most one
// dead loop, since deleting a loop invalidates the rest of the
// analysis. Apply calls it repeatedly until it reports no change.
func eliminateOneLoop(fn *ir.Function) bool {
	analysis.BuildPredecessors(fn)
	analysis.BuildDominators(fn)
	analysis.BuildLoops(fn)

	for _, loop := range loopsInnermostFirst(fn) {
		if tryEliminate(fn, loop) {
			return true
		}
	}
	return false
}

func loopsInnermostFirst(fn *ir.Function) []*ir.Loop {
	seen := map[*ir.Loop]bool{}
	var loops []*ir.Loop
	for _, b := range fn.Blocks {
		if b.Loop != nil && !seen[b.Loop] {
			seen[b.Loop] = true
			loops = append(loops, b.Loop)
		}
	}
	depth := func(l *ir.Loop) int {
		d := 0
		for p := l.Parent; p != nil; p = p.Parent {
			d++
		}
		return d
	}
	for i := 1; i < len(loops); i++ {
		for j := i; j > 0 && depth(loops[j]) > depth(loops[j-1]); j-- {
			loops[j], loops[j-1] = loops[j-1], loops[j]
		}
	}
	return loops
}

func tryEliminate(fn *ir.Function, loop *ir.Loop) bool {
	preheader := findPreheader(loop)
	if preheader == nil {
		return false
	}
	exitFrom, exitTo := findUniqueExit(loop)
	if exitTo == nil {
		return false
	}
	if hasInternalReturn(loop) || hasSideEffectInLoop(loop) {
		return false
	}
	if usedOutsideLoop(loop, exitTo) {
		return false
	}

	redirectTerminator(preheader, loop.Header, exitTo)
	for _, phi := range exitTo.Phis() {
		phi.RemoveIncoming(exitFrom)
	}
	for b := range loop.Body {
		for _, inst := range b.Instructions() {
			ir.ReplaceAllUsesWith(inst, ir.TheUndef())
		}
	}

	var survivors []*ir.BasicBlock
	for _, b := range fn.Blocks {
		if !loop.Body[b] {
			survivors = append(survivors, b)
		}
	}
	fn.Blocks = survivors
	return true
}

// findPreheader returns the loop header's sole predecessor outside the
// loop body, or nil if there is more than one (or none).
func findPreheader(loop *ir.Loop) *ir.BasicBlock {
	var out *ir.BasicBlock
	for _, p := range loop.Header.Preds {
		if loop.Body[p] {
			continue
		}
		if out != nil {
			return nil
		}
		out = p
	}
	return out
}

// findUniqueExit returns the single (from, to) edge leaving the loop
// body, or (nil, nil) if the body has zero or more than one such edge.
func findUniqueExit(loop *ir.Loop) (*ir.BasicBlock, *ir.BasicBlock) {
	var from, to *ir.BasicBlock
	for b := range loop.Body {
		for _, s := range b.Succs() {
			if s == nil || loop.Body[s] {
				continue
			}
			if to != nil {
				return nil, nil
			}
			from, to = b, s
		}
	}
	return from, to
}

func hasInternalReturn(loop *ir.Loop) bool {
	for b := range loop.Body {
		if _, ok := b.Terminator().(*ir.ReturnInst); ok {
			return true
		}
	}
	return false
}

func hasSideEffectInLoop(loop *ir.Loop) bool {
	for b := range loop.Body {
		for _, inst := range b.Instructions() {
			switch v := inst.(type) {
			case *ir.StoreInst:
				return true
			case *ir.CallInst:
				if !v.IsPure() {
					return true
				}
			}
		}
	}
	return false
}

// usedOutsideLoop reports whether any value the loop body defines is
// used anywhere outside the body, other than as an incoming value on a
// phi in the exit block (those incoming edges are about to be dropped
// along with the body, not kept).
func usedOutsideLoop(loop *ir.Loop, exitTo *ir.BasicBlock) bool {
	for b := range loop.Body {
		for _, inst := range b.Instructions() {
			if instUsedOutside(inst, loop, exitTo) {
				return true
			}
		}
	}
	return false
}

func instUsedOutside(inst ir.Instruction, loop *ir.Loop, exitTo *ir.BasicBlock) bool {
	found := false
	ir.EachUse(inst, func(u *ir.Use) {
		user := u.User()
		ub := user.Block()
		if ub != nil && loop.Body[ub] {
			return
		}
		if phi, ok := user.(*ir.PhiInst); ok && phi.Block() == exitTo {
			return
		}
		found = true
	})
	return found
}

// redirectTerminator rewrites from's terminator so any successor
// pointer equal to oldTarget now points to newTarget.
func redirectTerminator(from *ir.BasicBlock, oldTarget, newTarget *ir.BasicBlock) {
	switch t := from.Terminator().(type) {
	case *ir.JumpInst:
		if t.To == oldTarget {
			t.To = newTarget
		}
	case *ir.BranchInst:
		if t.Then == oldTarget {
			t.Then = newTarget
		}
		if t.Else == oldTarget {
			t.Else = newTarget
		}
	case *ir.BinaryBranchInst:
		if t.Then == oldTarget {
			t.Then = newTarget
		}
		if t.Else == oldTarget {
			t.Else = newTarget
		}
	}
}
