package passes

import "sysyc/internal/ir"

// CallGraph computes, per function, has_side_effects (a Store to a
// global or an array parameter, or a call to anything impure),
// has_global_loads, and has_param_loads, then propagates
// has_side_effects to callers to a fixed point (and has_global_loads
// along the same used-caller edges). A function is pure iff all three
// flags are false; only pure calls are GVN/GCM hoisting candidates.
type CallGraph struct{}

func (CallGraph) Name() string { return "cg" }

func (CallGraph) Apply(prog *ir.Program) bool {
	for _, fn := range prog.Funcs {
		fn.Callers = nil
		fn.Callees = nil
		fn.HasSideEffects = false
		fn.HasGlobalLoads = false
		fn.HasParamLoads = false
	}

	paramDecls := map[*ir.Function]map[*ir.Argument]bool{}
	for _, fn := range prog.Funcs {
		params := map[*ir.Argument]bool{}
		for _, a := range fn.Params {
			params[a] = true
		}
		paramDecls[fn] = params

		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions() {
				switch v := inst.(type) {
				case *ir.StoreInst:
					if isGlobalBase(v.Base.Value()) || isParamBase(v.Base.Value(), params) {
						fn.HasSideEffects = true
					}
				case *ir.LoadInst:
					if isGlobalBase(v.Base.Value()) {
						fn.HasGlobalLoads = true
					}
					if isParamBase(v.Base.Value(), params) {
						fn.HasParamLoads = true
					}
				case *ir.CallInst:
					fn.Callees = append(fn.Callees, v.Func)
					v.Func.Callers = append(v.Func.Callers, fn)
					if v.Func.Kind != ir.UserFunc {
						fn.HasSideEffects = true // printf/getint are conservatively impure
					}
				}
			}
		}
	}

	// propagate has_side_effects / has_global_loads from callees to
	// callers to a fixed point.
	changed := true
	for changed {
		changed = false
		for _, fn := range prog.Funcs {
			for _, callee := range fn.Callees {
				if callee.Kind != ir.UserFunc {
					continue
				}
				if callee.HasSideEffects && !fn.HasSideEffects {
					fn.HasSideEffects = true
					changed = true
				}
				if callee.HasGlobalLoads && !fn.HasGlobalLoads {
					fn.HasGlobalLoads = true
					changed = true
				}
			}
		}
	}

	for _, fn := range prog.Funcs {
		fn.IsPureCached = !fn.HasSideEffects && !fn.HasGlobalLoads && !fn.HasParamLoads
	}
	return false
}

func isGlobalBase(v ir.Value) bool {
	_, ok := v.(*ir.Global)
	return ok
}

func isParamBase(v ir.Value, params map[*ir.Argument]bool) bool {
	if a, ok := v.(*ir.Argument); ok {
		return params[a]
	}
	return false
}
