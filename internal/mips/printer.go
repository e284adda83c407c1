package mips

import (
	"fmt"
	"strings"
)

// String renders the lowered program in the debug-dump format used for
// the `mr.asm`/`mr2.asm` intermediate dumps (§6, §2.8) -- not the real
// assembly syntax internal/emit produces, just a human-readable trace
// of the virtual-register IR between mipspasses stages.
func (p *MProgram) String() string {
	var b strings.Builder
	for i, s := range p.strings {
		fmt.Fprintf(&b, "str %d = %q\n", i, s)
	}
	for _, fn := range p.Funcs {
		b.WriteString(fn.String())
	}
	return b.String()
}

func (f *MFunc) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "func %s main=%v vregs=%d {\n", f.Name, f.IsMain, f.vregCnt)
	for _, blk := range f.Blocks {
		b.WriteString(blk.String())
	}
	b.WriteString("}\n")
	return b.String()
}

func (b *MBlock) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "  bb%d: preds=%s\n", b.ID, blockIDs(b.Preds))
	for _, inst := range b.Instructions() {
		fmt.Fprintf(&sb, "    %s\n", inst.String())
	}
	return sb.String()
}

func blockIDs(blocks []*MBlock) string {
	var parts []string
	for _, b := range blocks {
		parts = append(parts, "bb"+itoa(b.ID))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
