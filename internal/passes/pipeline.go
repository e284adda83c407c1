// Package passes implements the SSA IR optimization pipeline: call-graph
// & purity analysis, dead-block/dead-code elimination, dead/privatizable
// global elimination, mem2reg, GVN+GCM, dead-loop elimination, and branch
// induction, run in the fixed order the external interface specifies.
package passes

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"sysyc/internal/ir"
)

// Pass is one optimization pass over the whole program. Apply returns
// whether it changed anything, the way the donor's OptimizationPass
// interface does, so the pipeline runner can report progress and
// RunToFixedPoint can detect a round with no change.
type Pass interface {
	Name() string
	Apply(prog *ir.Program) bool
}

// Pipeline runs an ordered list of passes, printing a progress banner
// per pass the way the donor's OptimizationPipeline.Run does (there
// with plain fmt.Printf; here upgraded to colored ✓/- markers since
// fatih/color is already part of the ambient stack).
type Pipeline struct {
	Passes []Pass
	Out    io.Writer
	Quiet  bool
}

func (p *Pipeline) add(pass Pass) { p.Passes = append(p.Passes, pass) }

// Run applies every pass once, in order, reporting per-pass whether it
// changed the program.
func (p *Pipeline) Run(prog *ir.Program) {
	for _, pass := range p.Passes {
		changed := pass.Apply(prog)
		if p.Quiet || p.Out == nil {
			continue
		}
		mark := color.New(color.FgGreen).Sprint("✓")
		if !changed {
			mark = color.New(color.Faint).Sprint("-")
		}
		fmt.Fprintf(p.Out, "%s %s\n", mark, pass.Name())
	}
}

// RunToFixedPoint repeatedly applies every pass in passes until a full
// round makes no change or maxRounds rounds have run. Optimize does not
// use it: it repeats its (dbe, dce, gg, dle) group exactly twice.
func RunToFixedPoint(prog *ir.Program, passes []Pass, maxRounds int) {
	for round := 0; round < maxRounds; round++ {
		changed := false
		for _, pass := range passes {
			if pass.Apply(prog) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}
