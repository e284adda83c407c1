package passes

import "sysyc/internal/ir"

// DeadCodeElim is mark-and-sweep: every instruction with an observable
// side effect (a Store, a call to an impure function, any control
// instruction) seeds the mark set; producers of any operand read by a
// marked instruction are transitively marked; everything unmarked is
// erased (the use-list invariant guarantees it has no remaining users
// once its own producers are also swept, since sweeping proceeds after
// the full transitive closure is known).
type DeadCodeElim struct{}

func (DeadCodeElim) Name() string { return "dce" }

func (DeadCodeElim) Apply(prog *ir.Program) bool {
	changed := false
	for _, fn := range prog.Funcs {
		if fn.IsExternal() {
			continue
		}
		if sweepFunction(fn) {
			changed = true
		}
	}
	return changed
}

func hasSideEffect(i ir.Instruction) bool {
	if i.IsTerminator() {
		return true
	}
	switch v := i.(type) {
	case *ir.StoreInst:
		return true
	case *ir.CallInst:
		return !v.IsPure()
	}
	return false
}

func sweepFunction(fn *ir.Function) bool {
	marked := map[ir.Instruction]bool{}
	var worklist []ir.Instruction

	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions() {
			if hasSideEffect(inst) {
				marked[inst] = true
				worklist = append(worklist, inst)
			}
		}
	}

	for len(worklist) > 0 {
		inst := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, u := range inst.Operands() {
			if producer, ok := u.Value().(ir.Instruction); ok {
				if !marked[producer] {
					marked[producer] = true
					worklist = append(worklist, producer)
				}
			}
		}
	}

	changed := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions() {
			if marked[inst] {
				continue
			}
			for _, u := range inst.Operands() {
				u.Release()
			}
			b.Erase(inst)
			changed = true
		}
	}
	return changed
}
