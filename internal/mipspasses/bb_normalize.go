// Package mipspasses transforms internal/mips's virtual-register MIPS
// IR in place: normalizing blocks, coalescing moves, eliminating dead
// code, allocating registers, and restoring stack frames (§4.5).
// internal/emit consumes the result.
package mipspasses

import "sysyc/internal/mips"

// Normalize repairs the "one terminator per block, as its last
// instruction" invariant that phi resolution (§4.4) deliberately
// breaks: a block can transiently end in a conditional branch
// immediately followed by an unconditional jump (the lowerer's
// defensive fallback when neither successor is the positional
// fallthrough). It also rebuilds every block's Preds/Succs from the
// actual final terminator, since lowering's Succs reflect the
// originating SSA block rather than any splits this pass performs.
func Normalize(mf *mips.MFunc) {
	mf.Blocks = splitAll(mf)
	wireSuccessors(mf)
}

// splitAll walks every block in the function's current layout order
// and returns the (possibly longer) replacement layout: each original
// block, immediately followed by whatever new block splitAtFirstTerm
// split off it.
func splitAll(mf *mips.MFunc) []*mips.MBlock {
	out := make([]*mips.MBlock, 0, len(mf.Blocks))
	for _, b := range mf.Blocks {
		out = append(out, b)
		for {
			extra := splitAtFirstTerm(mf, b)
			if extra == nil {
				break
			}
			out = append(out, extra)
			b = extra
		}
	}
	return out
}

// splitAtFirstTerm finds the first terminator in b and deals with
// whatever follows it. An unconditional terminator (Jump, Return)
// makes everything after it dead code, so it is simply erased. A
// conditional terminator (Branch, BranchZero) cannot be last-truncated
// that way -- the instructions after it are still reachable via the
// fallthrough edge -- so they are moved into a new block appended
// right after b in layout order (preserving the fallthrough
// positionally) and returned for the caller to keep splitting.
func splitAtFirstTerm(mf *mips.MFunc, b *mips.MBlock) *mips.MBlock {
	insts := b.Instructions()
	cut := -1
	for i, inst := range insts {
		if inst.IsTerminator() {
			cut = i
			break
		}
	}
	if cut == -1 || cut == len(insts)-1 {
		return nil
	}
	rest := insts[cut+1:]
	if isUnconditional(insts[cut]) {
		for _, inst := range rest {
			b.Erase(inst)
		}
		return nil
	}
	nb := mf.NewBlock()
	nb.LoopDepth = b.LoopDepth
	for _, inst := range rest {
		b.Erase(inst)
		nb.Push(inst)
	}
	return nb
}

func isUnconditional(inst mips.MInst) bool {
	switch inst.(type) {
	case *mips.JumpInst, *mips.ReturnInst:
		return true
	default:
		return false
	}
}

// wireSuccessors recomputes Preds/Succs for every block in the
// function from its actual terminator (or the positional fallthrough,
// for a block with none), discarding whatever the lowerer or an
// earlier split left behind.
func wireSuccessors(mf *mips.MFunc) {
	for _, b := range mf.Blocks {
		b.Succs = nil
	}
	for i, b := range mf.Blocks {
		var fallthroughBlk *mips.MBlock
		if i+1 < len(mf.Blocks) {
			fallthroughBlk = mf.Blocks[i+1]
		}
		switch term := b.Terminator().(type) {
		case *mips.JumpInst:
			b.Succs = []*mips.MBlock{term.To}
		case *mips.BranchInst:
			b.Succs = appendUnique(b.Succs, term.To)
			if fallthroughBlk != nil {
				b.Succs = appendUnique(b.Succs, fallthroughBlk)
			}
		case *mips.BranchZeroInst:
			b.Succs = appendUnique(b.Succs, term.To)
			if fallthroughBlk != nil {
				b.Succs = appendUnique(b.Succs, fallthroughBlk)
			}
		case *mips.ReturnInst:
			// no successors: the function exits here.
		default:
			if fallthroughBlk != nil {
				b.Succs = []*mips.MBlock{fallthroughBlk}
			}
		}
	}
	for _, b := range mf.Blocks {
		b.Preds = nil
	}
	for _, b := range mf.Blocks {
		for _, s := range b.Succs {
			s.Preds = appendUnique(s.Preds, b)
		}
	}
}

func appendUnique(list []*mips.MBlock, b *mips.MBlock) []*mips.MBlock {
	for _, x := range list {
		if x == b {
			return list
		}
	}
	return append(list, b)
}
