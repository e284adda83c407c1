package passes

import (
	"io"

	"sysyc/internal/analysis"
	"sysyc/internal/ir"
)

// buildLoopPass wraps the final build_loop step (natural loop
// discovery) as a Pass so it reports through the same progress banner
// as every pass before it, even though it only refreshes block
// metadata rather than rewriting the instruction stream.
type buildLoopPass struct{}

func (buildLoopPass) Name() string { return "build_loop" }

func (buildLoopPass) Apply(prog *ir.Program) bool {
	for _, fn := range prog.Funcs {
		if fn.IsExternal() {
			continue
		}
		analysis.BuildPredecessors(fn)
		analysis.BuildDominators(fn)
		analysis.BuildLoops(fn)
	}
	return false
}

// Optimize runs the full optimization pipeline in the fixed order:
// cg, dbe, dce, dge, mem2reg, two rounds of (dbe, dce, gg, dle), one
// final dbe+dce, br_induce, then build_loop. The group is repeated
// exactly twice (not iterated to a fixed point): GVN/GCM and dead-loop
// elimination each expose new opportunities for the other, and two
// rounds already captures the overwhelming majority of that interplay
// for programs of the size this compiler targets, the same tradeoff
// the source compiler's own pipeline makes.
func Optimize(prog *ir.Program, out io.Writer, quiet bool) {
	pipe := &Pipeline{Out: out, Quiet: quiet}
	pipe.add(CallGraph{})
	pipe.add(DeadBranchElim{})
	pipe.add(DeadCodeElim{})
	pipe.add(DeadGlobalElim{})
	pipe.add(Mem2Reg{})
	for i := 0; i < 2; i++ {
		pipe.add(DeadBranchElim{})
		pipe.add(DeadCodeElim{})
		pipe.add(GVNGCM{})
		pipe.add(DeadLoopElim{})
	}
	pipe.add(DeadBranchElim{})
	pipe.add(DeadCodeElim{})
	pipe.add(BranchInduce{})
	pipe.add(buildLoopPass{})
	pipe.Run(prog)
}

// OptimizeDisabled runs only the passes later stages structurally
// depend on when optimization is turned off: cg (dce's side-effect test
// reads the call purity it computes), one dbe+dce round
// (the lowerer assumes every block is reachable and ends in exactly
// one terminator), and build_loop (the register allocator's spill
// heuristic reads loop depth unconditionally).
func OptimizeDisabled(prog *ir.Program, out io.Writer, quiet bool) {
	pipe := &Pipeline{Out: out, Quiet: quiet}
	pipe.add(CallGraph{})
	pipe.add(DeadBranchElim{})
	pipe.add(DeadCodeElim{})
	pipe.add(buildLoopPass{})
	pipe.Run(prog)
}
