package passes

import "sysyc/internal/ir"

// BranchInduce fuses a Branch with a relational condition used nowhere
// else into a single BinaryBranch, so the MIPS lowerer emits one
// compare-and-branch instead of materializing a 0/1 boolean and then
// testing it. Runs once, after the last cd round and right before
// build_loop, since earlier rounds of gg may still rewrite the
// relational Binary (constant folding, value numbering) and a fused
// BinaryBranch is no longer eligible for that.
type BranchInduce struct{}

func (BranchInduce) Name() string { return "br_induce" }

func (BranchInduce) Apply(prog *ir.Program) bool {
	changed := false
	for _, fn := range prog.Funcs {
		if fn.IsExternal() {
			continue
		}
		for _, b := range fn.Blocks {
			if induceBlock(b) {
				changed = true
			}
		}
	}
	return changed
}

func induceBlock(b *ir.BasicBlock) bool {
	br, ok := b.Terminator().(*ir.BranchInst)
	if !ok {
		return false
	}
	bin, ok := br.Cond.Value().(*ir.BinaryInst)
	if !ok || !bin.Op.IsRelational() {
		return false
	}
	if soleUser(bin) != ir.Instruction(br) {
		return false
	}
	rel, ok := ir.BinOpToRel(bin.Op)
	if !ok {
		return false
	}

	bb := ir.NewBinaryBranch(0, rel, bin.LHS.Value(), bin.RHS.Value(), br.Then, br.Else)
	b.Erase(br)
	b.Erase(bin)
	b.Push(bb)
	return true
}

// soleUser returns v's only user, or nil if it has zero or more than
// one remaining use.
func soleUser(v ir.Value) ir.Instruction {
	var user ir.Instruction
	count := 0
	ir.EachUse(v, func(u *ir.Use) {
		count++
		user = u.User()
	})
	if count != 1 {
		return nil
	}
	return user
}
