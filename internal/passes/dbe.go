package passes

import "sysyc/internal/ir"

const (
	int32Min = -2147483648
	int32Max = 2147483647
)

// DeadBranchElim deletes instructions past a block's first control
// instruction, folds constant branches to jumps (and range-bound
// relational comparisons to constants), and removes unreachable
// blocks, repairing the phis of blocks that lose a predecessor.
type DeadBranchElim struct{}

func (DeadBranchElim) Name() string { return "dbe" }

func (DeadBranchElim) Apply(prog *ir.Program) bool {
	changed := false
	for _, fn := range prog.Funcs {
		if fn.IsExternal() {
			continue
		}
		if truncatePastFirstTerminator(fn) {
			changed = true
		}
		if foldConstantBranches(prog, fn) {
			changed = true
		}
		if pruneUnreachable(fn) {
			changed = true
		}
	}
	return changed
}

func truncatePastFirstTerminator(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions() {
			if !inst.IsTerminator() {
				continue
			}
			// erase everything after the first terminator found
			for after := firstAfter(b, inst); after != nil; {
				nxt := nextInst(b, after)
				if ir.HasUses(after) {
					ir.ReplaceAllUsesWith(after, ir.TheUndef())
				}
				b.Erase(after)
				changed = true
				after = nxt
			}
			break
		}
	}
	return changed
}

// firstAfter / nextInst are small helpers since BasicBlock does not
// expose raw list pointers outside the package.
func firstAfter(b *ir.BasicBlock, after ir.Instruction) ir.Instruction {
	insts := b.Instructions()
	for idx, inst := range insts {
		if inst == after {
			if idx+1 < len(insts) {
				return insts[idx+1]
			}
			return nil
		}
	}
	return nil
}

func nextInst(b *ir.BasicBlock, cur ir.Instruction) ir.Instruction {
	insts := b.Instructions()
	for idx, inst := range insts {
		if inst == cur {
			if idx+1 < len(insts) {
				return insts[idx+1]
			}
			return nil
		}
	}
	return nil
}

func foldConstantBranches(prog *ir.Program, fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		br, ok := b.Terminator().(*ir.BranchInst)
		if !ok {
			continue
		}
		cond := foldedConst(br.Cond.Value())
		if cond == nil {
			continue
		}
		target, dead := br.Then, br.Else
		if cond.Val == 0 {
			target, dead = br.Else, br.Then
		}
		jmp := ir.NewJump(0, target)
		b.EraseWith(br, ir.TheUndef())
		b.Push(jmp)
		detachPredecessor(dead, b)
		changed = true
	}
	return changed
}

// foldedConst returns v as a Const if it already is one, or if it is a
// relational Binary whose non-const side is unconstrained but whose
// const side sits at an INT32 extreme that makes the comparison's
// result independent of the other operand (x < INT_MIN -> false,
// x <= INT_MAX -> true, and their mirrors).
func foldedConst(v ir.Value) *ir.Const {
	if c, ok := v.(*ir.Const); ok {
		return c
	}
	bin, ok := v.(*ir.BinaryInst)
	if !ok || !bin.Op.IsRelational() {
		return nil
	}
	lc, lok := bin.LHS.Value().(*ir.Const)
	rc, rok := bin.RHS.Value().(*ir.Const)
	switch {
	case rok && bin.Op == ir.Lt && rc.Val == int32Min:
		return &ir.Const{Val: 0}
	case rok && bin.Op == ir.Le && rc.Val == int32Max:
		return &ir.Const{Val: 1}
	case rok && bin.Op == ir.Gt && rc.Val == int32Max:
		return &ir.Const{Val: 0}
	case rok && bin.Op == ir.Ge && rc.Val == int32Min:
		return &ir.Const{Val: 1}
	case lok && bin.Op == ir.Gt && lc.Val == int32Min:
		return &ir.Const{Val: 0}
	case lok && bin.Op == ir.Ge && lc.Val == int32Max:
		return &ir.Const{Val: 1}
	case lok && bin.Op == ir.Lt && lc.Val == int32Max:
		return &ir.Const{Val: 0}
	case lok && bin.Op == ir.Le && lc.Val == int32Min:
		return &ir.Const{Val: 1}
	}
	return nil
}

func detachPredecessor(succ, pred *ir.BasicBlock) {
	for _, phi := range succ.Phis() {
		phi.RemoveIncoming(pred)
	}
}

func pruneUnreachable(fn *ir.Function) bool {
	entry := fn.Entry()
	reachable := map[*ir.BasicBlock]bool{entry: true}
	stack := []*ir.BasicBlock{entry}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range b.Succs() {
			if s == nil || reachable[s] {
				continue
			}
			reachable[s] = true
			stack = append(stack, s)
		}
	}

	changed := false
	var survivors []*ir.BasicBlock
	for _, b := range fn.Blocks {
		if reachable[b] {
			survivors = append(survivors, b)
			continue
		}
		for _, s := range b.Succs() {
			if s != nil && reachable[s] {
				detachPredecessor(s, b)
			}
		}
		for _, inst := range b.Instructions() {
			ir.ReplaceAllUsesWith(inst, ir.TheUndef())
		}
		changed = true
	}
	fn.Blocks = survivors
	return changed
}
