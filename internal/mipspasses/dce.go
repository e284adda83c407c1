package mipspasses

import "sysyc/internal/mips"

// EliminateDeadCode removes pure instructions whose single virtual
// def is never live afterward (§4.5 "DCE (MIPS)": the same mark-and-
// sweep DCE internal/passes runs on SSA, reusing the MIPS def-use
// walker and IsPure predicate instead). It reports whether anything
// was removed.
func EliminateDeadCode(mf *mips.MFunc) bool {
	liveOut := blockLiveOut(mf, anyReg)
	changed := false
	for _, b := range mf.Blocks {
		live := cloneSet(liveOut[b])
		for _, inst := range reverse(b.Instructions()) {
			defs := inst.Defs()
			if len(defs) == 1 && defs[0].IsVirtual() && !live[*defs[0]] && inst.IsPure() {
				b.Erase(inst)
				changed = true
				continue
			}
			for _, d := range defs {
				delete(live, *d)
			}
			for _, u := range inst.Uses() {
				live[*u] = true
			}
		}
	}
	return changed
}
