package mipspasses

import "sysyc/internal/mips"

// CoalesceMoves folds away trivially redundant moves before the
// allocator runs (§4.5 "move_coalesce"): `move r,r` disappears
// outright, and `add/sub/xor r, x, 0` becomes a plain move of x (or
// nothing, if it would just move x onto itself). It then runs
// liCoalesce to thread repeated constant loads through whichever
// register already holds that value in this block.
func CoalesceMoves(mf *mips.MFunc) {
	for _, b := range mf.Blocks {
		for _, inst := range b.Instructions() {
			switch x := inst.(type) {
			case *mips.BinaryInst:
				if !isIdentityArith(x) {
					continue
				}
				if x.Dst.Equiv(x.Lhs) {
					b.Erase(inst)
				} else {
					mv := mips.NewMove(x.Dst, x.Lhs)
					b.InsertBefore(inst, mv)
					b.Erase(inst)
				}
			case *mips.MoveInst:
				if x.Dst.Equiv(x.Src) {
					b.Erase(inst)
				}
			}
		}
	}
	liCoalesce(mf)
}

func isIdentityArith(x *mips.BinaryInst) bool {
	switch x.Op {
	case mips.OpAdd, mips.OpSub, mips.OpXor:
	default:
		return false
	}
	return x.Rhs.IsConst() && x.Rhs.Val == 0
}

// constHolders tracks, within one block, which register currently
// holds which 32-bit constant -- the per-block state li_coalesce
// needs to recognize "this value is already sitting in a register".
type constHolders struct {
	heldBy map[mips.Operand]int32
	ownsOf map[int32][]mips.Operand
}

func newConstHolders() *constHolders {
	return &constHolders{heldBy: map[mips.Operand]int32{}, ownsOf: map[int32][]mips.Operand{}}
}

func (s *constHolders) pop(r mips.Operand) {
	c, ok := s.heldBy[r]
	if !ok {
		return
	}
	delete(s.heldBy, r)
	owners := s.ownsOf[c]
	for i, x := range owners {
		if x == r {
			s.ownsOf[c] = append(owners[:i], owners[i+1:]...)
			break
		}
	}
}

func (s *constHolders) push(r mips.Operand, c int32) {
	s.pop(r)
	s.heldBy[r] = c
	s.ownsOf[c] = append(s.ownsOf[c], r)
}

func (s *constHolders) holds(r mips.Operand, c int32) bool {
	held, ok := s.heldBy[r]
	return ok && held == c
}

func (s *constHolders) find(c int32) (mips.Operand, bool) {
	owners := s.ownsOf[c]
	if len(owners) == 0 {
		return mips.Operand{}, false
	}
	return owners[len(owners)-1], true
}

// liCoalesce walks each block forward, remembering which register
// last loaded which constant: a repeat `li dst, c` either disappears
// (dst already holds c) or is rewritten to copy from whichever
// register still holds c, instead of re-materializing the immediate.
func liCoalesce(mf *mips.MFunc) {
	for _, b := range mf.Blocks {
		s := newConstHolders()
		for _, inst := range b.Instructions() {
			if mv, ok := inst.(*mips.MoveInst); ok {
				if mv.Src.IsConst() {
					c := mv.Src.Val
					if s.holds(mv.Dst, c) {
						b.Erase(inst)
						continue
					}
					if r, ok := s.find(c); ok {
						mv.Src = r
					}
					s.push(mv.Dst, c)
					continue
				}
				s.pop(mv.Dst)
				continue
			}
			for _, r := range redefinedRegs(inst) {
				s.pop(r)
			}
		}
	}
}

// redefinedRegs names every register an instruction other than a
// plain Move can be considered to clobber, for li-tracking purposes:
// its ordinary defs, plus -- for a Call -- every caller-saved
// register, since the callee may trash any of them.
func redefinedRegs(inst mips.MInst) []mips.Operand {
	if _, ok := inst.(*mips.CallInst); ok {
		var regs []mips.Operand
		for _, r := range mips.Allocatable {
			if mips.IsCallerSaved(r) {
				regs = append(regs, mips.MReg(r))
			}
		}
		return regs
	}
	var out []mips.Operand
	for _, p := range inst.Defs() {
		out = append(out, *p)
	}
	return out
}
