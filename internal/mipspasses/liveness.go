package mipspasses

import "sysyc/internal/mips"

// operandFilter decides whether an operand participates in a given
// liveness computation. DCE tracks every register a def/use names,
// while the allocator's interference-graph liveness only tracks
// virtuals and allocatable physical registers (§4.5's "uncolored"
// operands) -- $0/$at/$sp/$gp/$ra/$k0/$k1 and immediates never enter
// the graph.
type operandFilter func(mips.Operand) bool

func anyReg(o mips.Operand) bool { return o.IsReg() }

func uncoloredReg(o mips.Operand) bool {
	return o.IsVirtual() || (o.IsPhysical() && mips.IsAllocatable(mips.Reg(o.Val)))
}

func filterOperands(ops []*mips.Operand, keep operandFilter) []mips.Operand {
	var out []mips.Operand
	for _, p := range ops {
		if keep(*p) {
			out = append(out, *p)
		}
	}
	return out
}

// blockLiveOut computes, for every block in mf, the set of operands
// live immediately after its last instruction, via the standard
// backward dataflow fixpoint over Preds/Succs (mirrors the reference
// allocator's liveness_analysis / dce's own inline variant, unified
// here behind a filter since the two differ only in which operands
// they track).
func blockLiveOut(mf *mips.MFunc, keep operandFilter) map[*mips.MBlock]map[mips.Operand]bool {
	use := make(map[*mips.MBlock]map[mips.Operand]bool, len(mf.Blocks))
	def := make(map[*mips.MBlock]map[mips.Operand]bool, len(mf.Blocks))
	liveIn := make(map[*mips.MBlock]map[mips.Operand]bool, len(mf.Blocks))
	liveOut := make(map[*mips.MBlock]map[mips.Operand]bool, len(mf.Blocks))

	for _, b := range mf.Blocks {
		u, d := map[mips.Operand]bool{}, map[mips.Operand]bool{}
		for _, inst := range b.Instructions() {
			for _, x := range filterOperands(inst.Uses(), keep) {
				if !d[x] {
					u[x] = true
				}
			}
			for _, x := range filterOperands(inst.Defs(), keep) {
				if !u[x] {
					d[x] = true
				}
			}
		}
		use[b], def[b] = u, d
		liveIn[b] = cloneSet(u)
		liveOut[b] = map[mips.Operand]bool{}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range mf.Blocks {
			out := map[mips.Operand]bool{}
			for _, s := range b.Succs {
				for x := range liveIn[s] {
					out[x] = true
				}
			}
			if !setEqual(out, liveOut[b]) {
				changed = true
				liveOut[b] = out
				in := cloneSet(use[b])
				for x := range out {
					if !def[b][x] {
						in[x] = true
					}
				}
				liveIn[b] = in
			}
		}
	}
	return liveOut
}

func cloneSet(s map[mips.Operand]bool) map[mips.Operand]bool {
	out := make(map[mips.Operand]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func setEqual(a, b map[mips.Operand]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// reverse returns insts in back-to-front order, for the backward
// instruction walks liveness and DCE both perform.
func reverse(insts []mips.MInst) []mips.MInst {
	out := make([]mips.MInst, len(insts))
	for i, inst := range insts {
		out[len(insts)-1-i] = inst
	}
	return out
}
