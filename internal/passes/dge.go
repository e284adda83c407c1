package passes

import (
	"sysyc/internal/analysis"
	"sysyc/internal/ast"
	"sysyc/internal/diag"
	"sysyc/internal/ir"
)

// DeadGlobalElim drops globals with no remaining access and promotes a
// scalar global used by exactly one function that is reachable "at
// most once" from main into a local Alloca of that function, where
// reachable-at-most-once is the is_once dataflow: seed main as
// reached-once, propagate "once" to a callee only while it has exactly
// one call site discovered so far and its caller is itself "once";
// any function reached by a second call site anywhere (including via
// recursion) becomes "many" and is never eligible, permanently.
type DeadGlobalElim struct{}

func (DeadGlobalElim) Name() string { return "dge" }

func (DeadGlobalElim) Apply(prog *ir.Program) bool {
	changed := false
	accesses := globalAccesses(prog)

	var survivors []*ast.Decl
	for _, decl := range prog.Globals {
		if len(accesses[decl]) == 0 {
			changed = true
			continue
		}
		survivors = append(survivors, decl)
	}
	prog.Globals = survivors

	once := computeIsOnce(prog)
	for _, decl := range prog.Globals {
		if len(decl.Dims) != 0 {
			continue // only scalar globals are privatizable
		}
		owner := soleOwner(accesses[decl])
		if owner == nil || !once[owner] {
			continue
		}
		promoteGlobalToLocal(prog, decl, owner, accesses[decl])
		changed = true
	}
	if changed {
		prog.Globals = pruneEmpty(prog.Globals, globalAccesses(prog))
	}
	return changed
}

// globalAccesses maps each global Decl to every instruction in the
// program that reads or writes it through its Global value.
func globalAccesses(prog *ir.Program) map[*ast.Decl][]ir.Instruction {
	out := map[*ast.Decl][]ir.Instruction{}
	for _, decl := range prog.Globals {
		out[decl] = nil
	}
	for _, fn := range prog.Funcs {
		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions() {
				switch v := inst.(type) {
				case *ir.LoadInst:
					if g, ok := v.Base.Value().(*ir.Global); ok {
						out[g.Decl] = append(out[g.Decl], inst)
					}
				case *ir.StoreInst:
					if g, ok := v.Base.Value().(*ir.Global); ok {
						out[g.Decl] = append(out[g.Decl], inst)
					}
				case *ir.GEPInst:
					if g, ok := v.Base.Value().(*ir.Global); ok {
						out[g.Decl] = append(out[g.Decl], inst)
					}
				}
			}
		}
	}
	return out
}

// soleOwner returns the single function owning every access, or nil if
// accesses span more than one function.
func soleOwner(accesses []ir.Instruction) *ir.Function {
	var owner *ir.Function
	for _, inst := range accesses {
		b := inst.Block()
		if b == nil {
			return nil
		}
		if owner == nil {
			owner = b.Func
		} else if owner != b.Func {
			return nil
		}
	}
	return owner
}

// computeIsOnce returns, for every function, whether it is reachable
// from main along a chain of call sites that are each individually
// "once": the callee's sole static call site in the whole program,
// sitting in a block that is itself intra-procedurally is_once within
// its caller. Mirrors the original's build_once in two stages:
// blockIsOnce first computes each function's own is_once blocks (a
// forward dataflow from the entry block that a loop body can never
// satisfy, since a loop header's back-edge predecessor depends
// circularly on the header's own is_once status), then a single
// program-wide "sole call site" map and a fixed-point spread from main
// decide which functions inherit is_once through those sites.
func computeIsOnce(prog *ir.Program) map[*ir.Function]bool {
	once := map[*ir.Function]bool{}

	var main *ir.Function
	blockOnce := map[*ir.Function]map[*ir.BasicBlock]bool{}
	for _, fn := range prog.Funcs {
		if fn.Name == "main" {
			main = fn
		}
		if fn.IsExternal() {
			continue
		}
		blockOnce[fn] = blockIsOnce(fn)
	}
	if main == nil {
		return once
	}
	once[main] = true

	// soleCall holds the one call site to each callee that has exactly
	// one in the whole program; a callee found a second time is deleted
	// and never reconsidered, matching the original's uniq_call erase.
	soleCall := map[*ir.Function]*ir.CallInst{}
	multiCalled := map[*ir.Function]bool{}
	for _, fn := range prog.Funcs {
		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions() {
				call, ok := inst.(*ir.CallInst)
				if !ok || call.Func.Kind != ir.UserFunc {
					continue
				}
				if multiCalled[call.Func] {
					continue
				}
				if soleCall[call.Func] != nil {
					multiCalled[call.Func] = true
					delete(soleCall, call.Func)
					continue
				}
				soleCall[call.Func] = call
			}
		}
	}

	// unlocks[f] lists every callee whose sole call site sits in one of
	// f's is_once blocks -- f becoming once therefore makes that callee
	// once too.
	unlocks := map[*ir.Function][]*ir.Function{}
	for callee, call := range soleCall {
		site := call.Block()
		caller := site.Func
		if blockOnce[caller][site] {
			unlocks[caller] = append(unlocks[caller], callee)
		}
	}

	wl := []*ir.Function{main}
	for len(wl) > 0 {
		var next []*ir.Function
		for _, f := range wl {
			for _, g := range unlocks[f] {
				if !once[g] {
					once[g] = true
					next = append(next, g)
				}
			}
		}
		wl = next
	}
	return once
}

// blockIsOnce computes one function's intra-procedural is_once blocks:
// the entry block qualifies when it has no predecessors (always true
// for a well-formed function), and any other block qualifies only once
// every one of its predecessors already does -- a condition no block
// inside a loop ever reaches, since a loop header's back-edge
// predecessor's own qualification depends circularly on the header's.
func blockIsOnce(fn *ir.Function) map[*ir.BasicBlock]bool {
	analysis.BuildPredecessors(fn)
	isOnce := map[*ir.BasicBlock]bool{}

	entry := fn.Entry()
	if len(entry.Preds) != 0 {
		return isOnce
	}
	isOnce[entry] = true

	wl := []*ir.BasicBlock{entry}
	for len(wl) > 0 {
		var next []*ir.BasicBlock
		for _, u := range wl {
			for _, v := range u.Succs() {
				if v == nil || isOnce[v] {
					continue
				}
				allPredsOnce := true
				for _, p := range v.Preds {
					if !isOnce[p] {
						allPredsOnce = false
						break
					}
				}
				if allPredsOnce {
					isOnce[v] = true
					next = append(next, v)
				}
			}
		}
		wl = next
	}
	return isOnce
}

// promoteGlobalToLocal rewrites every access of decl within owner to
// reference a fresh Alloca placed at the top of owner's entry block,
// seeded with decl's declared initial value (0 if it has none) the
// same way buildLocalDecl seeds an ordinary local's alloca -- without
// this store, mem2reg's value-stack starts every read of the slot at
// Undef, which is fatal the moment that Undef reaches the MIPS lowerer.
func promoteGlobalToLocal(prog *ir.Program, decl *ast.Decl, owner *ir.Function, accesses []ir.Instruction) {
	entry := owner.Entry()

	var initVal int32
	if decl.HasInit {
		v, ok := ast.EvalConst(decl.Init[0])
		if !ok {
			diag.Fatalf("dge: global %s has a non-constant initializer", decl.Name)
		}
		initVal = v
	}

	al := ir.NewAlloca(owner.NextInstID(), decl)
	store := ir.NewStore(owner.NextInstID(), decl, al, prog.Zero(), prog.ConstOf(initVal))
	entry.PushFront(store)
	entry.PushFront(al)

	for _, inst := range accesses {
		switch v := inst.(type) {
		case *ir.LoadInst:
			v.Base.Set(al)
		case *ir.StoreInst:
			v.Base.Set(al)
		case *ir.GEPInst:
			v.Base.Set(al)
		}
	}
}

func pruneEmpty(globals []*ast.Decl, accesses map[*ast.Decl][]ir.Instruction) []*ast.Decl {
	var out []*ast.Decl
	for _, d := range globals {
		if len(accesses[d]) == 0 {
			continue
		}
		out = append(out, d)
	}
	return out
}
