package ir

import (
	"fmt"
	"strings"
)

// String renders the whole program in a debug-dump format (the `ir.txt`
// / `ir2.txt` dumps of the external interface). It is not a parseable
// format; it exists purely for human inspection between pipeline stages.
func (p *Program) String() string {
	var b strings.Builder
	for _, g := range p.Globals {
		fmt.Fprintf(&b, "global %s dims=%v const=%v\n", g.Name, g.Dims, g.IsConst)
	}
	for _, fn := range p.Funcs {
		b.WriteString(fn.String())
	}
	return b.String()
}

func (f *Function) String() string {
	var b strings.Builder
	kind := "int"
	if !f.ReturnsInt {
		kind = "void"
	}
	fmt.Fprintf(&b, "func %s -> %s {\n", f.Name, kind)
	for _, blk := range f.Blocks {
		b.WriteString(blk.String())
	}
	b.WriteString("}\n")
	return b.String()
}

func (blk *BasicBlock) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  bb%d:\n", blk.ID)
	for _, inst := range blk.Instructions() {
		fmt.Fprintf(&b, "    %s\n", instLine(inst))
	}
	return b.String()
}

func instLine(i Instruction) string {
	switch v := i.(type) {
	case *BranchInst:
		return fmt.Sprintf("br -> bb%d, bb%d", v.Then.ID, v.Else.ID)
	case *BinaryBranchInst:
		return fmt.Sprintf("br.%s -> bb%d, bb%d", v.Op, v.Then.ID, v.Else.ID)
	case *JumpInst:
		return fmt.Sprintf("jump -> bb%d", v.To.ID)
	default:
		return i.String()
	}
}
