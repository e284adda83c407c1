package mipspasses

import "sysyc/internal/mips"

// RestoreFrames finalizes every function's stack frame after register
// allocation has settled (§4.5 "reg_restore"). It decides which
// callee-saved registers (and $ra) the prologue actually has to
// preserve, computes the final frame size now that call-arg, alloca,
// and spill slot counts are all known, patches the offsets builder.go
// left pending in ArgLoads/AllocaAdds, and splices in the prologue and
// every epilogue. main is left with no prologue or epilogue at all:
// it never returns to a caller, so it has nothing to restore.
func RestoreFrames(mp *mips.MProgram) {
	for _, mf := range mp.Funcs {
		restoreFrame(mf)
	}
}

func restoreFrame(mf *mips.MFunc) {
	if mf.IsMain {
		return
	}

	mf.SavedRegs = definedCalleeSaved(mf)
	mf.UsesRA = callsAnything(mf)
	saved := len(mf.SavedRegs)
	if mf.UsesRA {
		saved++
	}
	frameSize := int32(mf.MaxCallArgNum+mf.AllocaNum+mf.SpillNum+saved) * 4
	if frameSize == 0 {
		return
	}

	for _, ld := range mf.ArgLoads {
		ld.Offset += frameSize
	}
	callArgOff := int32(mf.MaxCallArgNum) * 4
	for _, add := range mf.AllocaAdds {
		add.Rhs.Val += callArgOff
	}

	saveBase := int32(mf.MaxCallArgNum+mf.AllocaNum+mf.SpillNum) * 4
	prologue(mf, frameSize, saveBase)
	for _, b := range mf.Blocks {
		for _, inst := range b.Instructions() {
			if ret, ok := inst.(*mips.ReturnInst); ok {
				epilogue(b, ret, frameSize, saveBase, mf.SavedRegs, mf.UsesRA)
			}
		}
	}
}

// definedCalleeSaved returns every callee-saved register the function
// actually defines anywhere, in mips.Allocatable order, so save/restore
// order is deterministic.
func definedCalleeSaved(mf *mips.MFunc) []mips.Reg {
	defined := map[mips.Reg]bool{}
	for _, b := range mf.Blocks {
		for _, inst := range b.Instructions() {
			for _, d := range inst.Defs() {
				if d.IsPhysical() && mips.IsCalleeSaved(mips.Reg(d.Val)) {
					defined[mips.Reg(d.Val)] = true
				}
			}
		}
	}
	var out []mips.Reg
	for _, r := range mips.Allocatable {
		if defined[r] {
			out = append(out, r)
		}
	}
	return out
}

// callsAnything reports whether mf contains a CallInst anywhere -- a
// leaf function never clobbers $ra, so it needs no save/restore for it.
func callsAnything(mf *mips.MFunc) bool {
	for _, b := range mf.Blocks {
		for _, inst := range b.Instructions() {
			if _, ok := inst.(*mips.CallInst); ok {
				return true
			}
		}
	}
	return false
}

// prologue prepends `subu $sp, $sp, frameSize` and a store for every
// saved register (callee-saved regs first, $ra last) to mf's entry
// block, in reverse so PushFront leaves them in forward order.
func prologue(mf *mips.MFunc, frameSize, saveBase int32) {
	entry := mf.Entry()
	off := saveBase
	if mf.UsesRA {
		entry.PushFront(mips.NewStore(mips.MReg(mips.RegRa), mips.MReg(mips.RegSp), off+int32(len(mf.SavedRegs))*4))
	}
	for i := len(mf.SavedRegs) - 1; i >= 0; i-- {
		entry.PushFront(mips.NewStore(mips.MReg(mf.SavedRegs[i]), mips.MReg(mips.RegSp), off+int32(i)*4))
	}
	entry.PushFront(mips.NewBinary(mips.OpSub, mips.MReg(mips.RegSp), mips.MReg(mips.RegSp), mips.Imm(frameSize)))
}

// epilogue inserts, immediately before ret, the matching register
// restores and the $sp restore, in the saved registers' own order
// (order does not matter for correctness, since each slot is
// independent, but matching the prologue's order reads naturally).
func epilogue(b *mips.MBlock, ret *mips.ReturnInst, frameSize, saveBase int32, savedRegs []mips.Reg, usesRA bool) {
	for i, r := range savedRegs {
		b.InsertBefore(ret, mips.NewLoad(mips.MReg(r), mips.MReg(mips.RegSp), saveBase+int32(i)*4))
	}
	if usesRA {
		b.InsertBefore(ret, mips.NewLoad(mips.MReg(mips.RegRa), mips.MReg(mips.RegSp), saveBase+int32(len(savedRegs))*4))
	}
	b.InsertBefore(ret, mips.NewBinary(mips.OpAdd, mips.MReg(mips.RegSp), mips.MReg(mips.RegSp), mips.Imm(frameSize)))
}
