package passes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/ast"
	"sysyc/internal/ir"
)

// branchOnGetintProgram builds `int main(){ int x; x=getint();
// if (x<10) return 1; else return 0; }`, whose condition is a relational
// Binary used only by the if's Branch -- exactly what br_induce fuses.
func branchOnGetintProgram() *ast.Program {
	x := &ast.Decl{Name: "x"}
	xLVal := &ast.LVal{Var: x}
	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.DeclStmt{Vars: []*ast.Decl{x}},
		&ast.GetIntStmt{LHS: xLVal},
		&ast.If{
			Cond: &ast.Binary{Op: ast.Lt, LHS: xLVal, RHS: &ast.Number{Val: 10}},
			Then: &ast.Return{Val: &ast.Number{Val: 1}},
			Else: &ast.Return{Val: &ast.Number{Val: 0}},
		},
	}}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: body}
	return &ast.Program{Funcs: []*ast.Func{main}}
}

func TestBranchInduceFusesSoleUseCompare(t *testing.T) {
	prog, err := ir.Build(branchOnGetintProgram())
	require.NoError(t, err)
	fn := prog.Funcs[0]
	Mem2Reg{}.Apply(prog)

	changed := BranchInduce{}.Apply(prog)
	require.True(t, changed)

	var sawBinaryBranch bool
	var sawPlainBranch bool
	for _, b := range fn.Blocks {
		switch term := b.Terminator().(type) {
		case *ir.BinaryBranchInst:
			sawBinaryBranch = true
			require.Equal(t, ir.RLt, term.Op)
		case *ir.BranchInst:
			sawPlainBranch = true
		}
	}
	require.True(t, sawBinaryBranch)
	require.False(t, sawPlainBranch)
}

// TestBranchInduceLeavesMultiUseCompareAlone builds a block whose
// relational Binary feeds both a Branch and a Return directly (a shape
// the AST builder itself never produces, since it re-evaluates an
// expression at every use site, but one the MIPS lowerer must still
// handle correctly after an earlier GVN round dedups two identical
// comparisons into one shared instruction).
func TestBranchInduceLeavesMultiUseCompareAlone(t *testing.T) {
	prog := ir.NewProgram()
	fn := &ir.Function{Kind: ir.UserFunc, Name: "f", ReturnsInt: true}
	prog.AddFunc(fn)

	b0 := fn.NewBlock()
	fn.AddBlock(b0)
	b1 := fn.NewBlock()
	fn.AddBlock(b1)
	b2 := fn.NewBlock()
	fn.AddBlock(b2)

	bin := ir.NewBinary(0, ir.Lt, prog.ConstOf(1), prog.ConstOf(10))
	b0.Push(bin)
	b0.Push(ir.NewBranch(0, bin, b1, b2))
	b1.Push(ir.NewReturn(0, bin))
	b2.Push(ir.NewReturn(0, prog.Zero()))

	require.False(t, BranchInduce{}.Apply(prog), "bin has two users, so it must not be fused into the branch")
}
