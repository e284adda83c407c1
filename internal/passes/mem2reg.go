package passes

import (
	"sysyc/internal/analysis"
	"sysyc/internal/ir"
)

// Mem2Reg promotes scalar Allocas to SSA values via the classical
// Cytron et al. algorithm: place phis at the iterated dominance
// frontier of each alloca's defining blocks, then rewrite loads/stores
// in a dominator-tree-order walk carrying a per-alloca current-value
// stack seeded with Undef. Array Allocas are left untouched (only
// scalars are ever promotable per the external contract).
type Mem2Reg struct{}

func (Mem2Reg) Name() string { return "mem2reg" }

func (Mem2Reg) Apply(prog *ir.Program) bool {
	changed := false
	for _, fn := range prog.Funcs {
		if fn.IsExternal() {
			continue
		}
		if promoteFunction(fn) {
			changed = true
		}
	}
	return changed
}

func promoteFunction(fn *ir.Function) bool {
	analysis.BuildPredecessors(fn)
	analysis.BuildDominators(fn)
	analysis.BuildDominanceFrontier(fn)

	allocas := collectPromotable(fn)
	if len(allocas) == 0 {
		return false
	}

	placePhis(fn, allocas)

	stacks := map[*ir.AllocaInst][]ir.Value{}
	for _, al := range allocas {
		stacks[al] = []ir.Value{ir.TheUndef()}
	}
	rewrite(fn.Entry(), allocas, stacks)

	for _, al := range allocas {
		if !ir.HasUses(al) {
			al.Block().Erase(al)
		}
	}
	return true
}

// collectPromotable returns every scalar Alloca in fn whose base is
// never taken (i.e. every use of it is a direct Load/Store with a
// constant-zero offset performed by this function's own builder
// output — always true for scalars in this front end).
func collectPromotable(fn *ir.Function) []*ir.AllocaInst {
	var out []*ir.AllocaInst
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions() {
			al, ok := inst.(*ir.AllocaInst)
			if !ok {
				continue
			}
			if len(al.Var.Dims) == 0 {
				out = append(out, al)
			}
		}
	}
	return out
}

func placePhis(fn *ir.Function, allocas []*ir.AllocaInst) {
	for _, al := range allocas {
		defBlocks := defBlocksOf(fn, al)
		hasPhi := map[*ir.BasicBlock]bool{}
		worklist := append([]*ir.BasicBlock{}, defBlocks...)
		for len(worklist) > 0 {
			b := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, d := range b.DF {
				if hasPhi[d] {
					continue
				}
				hasPhi[d] = true
				phi := ir.NewPhi(0)
				phi.Alloca = al
				d.PushFront(phi)
				worklist = append(worklist, d)
			}
		}
	}
}

func defBlocksOf(fn *ir.Function, al *ir.AllocaInst) []*ir.BasicBlock {
	seen := map[*ir.BasicBlock]bool{}
	var out []*ir.BasicBlock
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions() {
			st, ok := inst.(*ir.StoreInst)
			if !ok || st.Base.Value() != ir.Value(al) {
				continue
			}
			if !seen[b] {
				seen[b] = true
				out = append(out, b)
			}
		}
	}
	return out
}

func rewrite(b *ir.BasicBlock, allocas []*ir.AllocaInst, stacks map[*ir.AllocaInst][]ir.Value) {
	pushed := map[*ir.AllocaInst]int{}

	for _, phi := range b.Phis() {
		if phi.Alloca == nil {
			continue
		}
		stacks[phi.Alloca] = append(stacks[phi.Alloca], phi)
		pushed[phi.Alloca]++
	}

	for _, inst := range b.Instructions() {
		switch v := inst.(type) {
		case *ir.LoadInst:
			al, ok := v.Base.Value().(*ir.AllocaInst)
			if !ok || len(al.Var.Dims) != 0 {
				continue
			}
			top := stacks[al][len(stacks[al])-1]
			b.EraseWith(v, top)
		case *ir.StoreInst:
			al, ok := v.Base.Value().(*ir.AllocaInst)
			if !ok || len(al.Var.Dims) != 0 {
				continue
			}
			val := v.Val.Value()
			stacks[al] = append(stacks[al], val)
			pushed[al]++
			v.Val.Release()
			b.Erase(v)
		}
	}

	for _, s := range b.Succs() {
		if s == nil {
			continue
		}
		for _, phi := range s.Phis() {
			if phi.Alloca == nil {
				continue
			}
			if hasIncomingFrom(phi, b) {
				continue
			}
			top := stacks[phi.Alloca][len(stacks[phi.Alloca])-1]
			phi.Push(top, b)
		}
	}

	for _, c := range b.Children {
		rewrite(c, allocas, stacks)
	}

	for al, n := range pushed {
		s := stacks[al]
		stacks[al] = s[:len(s)-n]
	}
}

func hasIncomingFrom(phi *ir.PhiInst, from *ir.BasicBlock) bool {
	for _, inc := range phi.Incoming {
		if inc.From == from {
			return true
		}
	}
	return false
}
