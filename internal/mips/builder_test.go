package mips

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/analysis"
	"sysyc/internal/ast"
	"sysyc/internal/ir"
)

func buildAndLower(t *testing.T, prog *ast.Program) *MProgram {
	t.Helper()
	irProg, err := ir.Build(prog)
	require.NoError(t, err)
	return Lower(irProg)
}

func mfunc(t *testing.T, mp *MProgram, name string) *MFunc {
	t.Helper()
	for _, fn := range mp.Funcs {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("no lowered function named %q", name)
	return nil
}

func allInsts(mf *MFunc) []MInst {
	var out []MInst
	for _, b := range mf.Blocks {
		out = append(out, b.Instructions()...)
	}
	return out
}

// TestLowerReturnConst builds `int f(){ return 42; }` and checks the
// return value is moved into $v0 before the bare ReturnInst.
func TestLowerReturnConst(t *testing.T) {
	fn := &ast.Func{Name: "f", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.Return{Val: &ast.Number{Val: 42}},
	}}}
	mp := buildAndLower(t, &ast.Program{Funcs: []*ast.Func{fn}})
	mf := mfunc(t, mp, "f")
	require.False(t, mf.IsMain)

	insts := allInsts(mf)
	require.Len(t, insts, 2)
	mv, ok := insts[0].(*MoveInst)
	require.True(t, ok)
	require.Equal(t, MReg(RegV0), mv.Dst)
	require.Equal(t, Imm(42), mv.Src)
	_, ok = insts[1].(*ReturnInst)
	require.True(t, ok)
}

// TestAssignGlobalAddresses checks globals get sequential, word-aligned
// addresses starting at DataBase, in declaration order.
func TestAssignGlobalAddresses(t *testing.T) {
	a := &ast.Decl{Name: "a", HasInit: true, Init: []ast.Expr{&ast.Number{Val: 1}}}
	b := &ast.Decl{Name: "b", Dims: []int{4}, HasInit: true, Init: []ast.Expr{
		&ast.Number{Val: 0}, &ast.Number{Val: 0}, &ast.Number{Val: 0}, &ast.Number{Val: 0},
	}}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.Return{Val: &ast.Number{Val: 0}},
	}}}
	irProg, err := ir.Build(&ast.Program{Globals: []*ast.Decl{a, b}, Funcs: []*ast.Func{main}})
	require.NoError(t, err)
	Lower(irProg)

	require.Equal(t, int(DataBase), a.Addr)
	require.Equal(t, int(DataBase)+4, b.Addr)
}

// TestLowerGlobalLoadUsesGpRelativeOffset checks that reading a global
// scalar (a Const base+offset address, once assigned) lowers to a load
// off $gp with the address's offset *from DataBase*, not the absolute
// address itself -- $gp is only ever loaded with DataBase's upper 16
// bits (internal/emit's `lui $gp, DataBase>>16`), so an lw/sw can only
// reach it via a small relative displacement.
func TestLowerGlobalLoadUsesGpRelativeOffset(t *testing.T) {
	a := &ast.Decl{Name: "a", HasInit: true, Init: []ast.Expr{&ast.Number{Val: 1}}}
	b := &ast.Decl{Name: "b", HasInit: true, Init: []ast.Expr{&ast.Number{Val: 2}}}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.Return{Val: &ast.LVal{Var: b}},
	}}}
	mp := buildAndLower(t, &ast.Program{Globals: []*ast.Decl{a, b}, Funcs: []*ast.Func{main}})
	require.True(t, mp.GpUsed)

	mf := mfunc(t, mp, "main")
	var ld *LoadInst
	for _, inst := range allInsts(mf) {
		if l, ok := inst.(*LoadInst); ok {
			ld = l
		}
	}
	require.NotNil(t, ld)
	require.Equal(t, MReg(RegGp), ld.Base)
	require.Equal(t, int32(4), ld.Offset) // b sits one word past DataBase
}

// TestLowerCallSpillsArgsBeyondFour checks a 5-argument call places the
// first four in $a0-$a3 and spills the fifth to [sp+0], and that
// MaxCallArgNum reflects it.
func TestLowerCallSpillsArgsBeyondFour(t *testing.T) {
	callee := &ast.Func{Name: "f", ReturnsInt: true, Params: []*ast.Decl{
		{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}, {Name: "e"},
	}, Body: &ast.Block{Stmts: []ast.Stmt{&ast.Return{Val: &ast.Number{Val: 0}}}}}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.ExprStmt{X: &ast.Call{Func: callee, Args: []ast.Expr{
			&ast.Number{Val: 1}, &ast.Number{Val: 2}, &ast.Number{Val: 3},
			&ast.Number{Val: 4}, &ast.Number{Val: 5},
		}}},
		&ast.Return{Val: &ast.Number{Val: 0}},
	}}}
	mp := buildAndLower(t, &ast.Program{Funcs: []*ast.Func{callee, main}})
	mainF := mfunc(t, mp, "main")
	require.Equal(t, 1, mainF.MaxCallArgNum)

	var sawStore bool
	for _, inst := range allInsts(mainF) {
		if st, ok := inst.(*StoreInst); ok {
			sawStore = true
			require.Equal(t, MReg(RegSp), st.Base)
			require.Equal(t, int32(0), st.Offset)
			require.Equal(t, Imm(5), st.Src)
		}
	}
	require.True(t, sawStore, "expected the 5th argument to be spilled to the stack")
}

// TestLowerDivByPowerOfTwo checks division by a power of two lowers to
// the sign-correction shift sequence, never a DivInst.
func TestLowerDivByPowerOfTwo(t *testing.T) {
	x := &ast.Decl{Name: "x"}
	xLVal := &ast.LVal{Var: x}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.DeclStmt{Vars: []*ast.Decl{x}},
		&ast.GetIntStmt{LHS: xLVal},
		&ast.Return{Val: &ast.Binary{Op: ast.Div, LHS: xLVal, RHS: &ast.Number{Val: 8}}},
	}}}
	mp := buildAndLower(t, &ast.Program{Funcs: []*ast.Func{main}})
	mainF := mfunc(t, mp, "main")

	var sra, srl int
	for _, inst := range allInsts(mainF) {
		switch s := inst.(type) {
		case *ShiftInst:
			if s.Op == OpSra {
				sra++
			}
			if s.Op == OpSrl {
				srl++
			}
		case *DivInst:
			t.Fatalf("power-of-two divide must not use div/mflo")
		}
	}
	require.Equal(t, 2, sra) // the 31-bit sign-splat shift, and the final shift
	require.Equal(t, 1, srl)
}

// TestLowerMulByConstant checks a non-power-of-two constant multiply
// materializes the constant and uses a register-register mul, and a
// power-of-two one lowers to a single shift.
func TestLowerMulByConstant(t *testing.T) {
	x := &ast.Decl{Name: "x"}
	xLVal := &ast.LVal{Var: x}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.DeclStmt{Vars: []*ast.Decl{x}},
		&ast.GetIntStmt{LHS: xLVal},
		&ast.Return{Val: &ast.Binary{Op: ast.Mul, LHS: xLVal, RHS: &ast.Number{Val: 6}}},
	}}}
	mp := buildAndLower(t, &ast.Program{Funcs: []*ast.Func{main}})
	mainF := mfunc(t, mp, "main")

	var sawMul bool
	for _, inst := range allInsts(mainF) {
		if b, ok := inst.(*BinaryInst); ok && b.Op == OpMul {
			sawMul = true
		}
	}
	require.True(t, sawMul, "6 is not a power of two, so lowering must fall back to mul")
}

// TestLowerPrintfSyscalls checks a "%d\n" format lowers to a syscall 1
// (the %d) followed by a syscall 11 (the lone trailing newline), not a
// syscall 4 string print.
func TestLowerPrintfSyscalls(t *testing.T) {
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.PrintfStmt{Fmt: "%d\n", Args: []ast.Expr{&ast.Number{Val: 7}}},
		&ast.Return{Val: &ast.Number{Val: 0}},
	}}}
	mp := buildAndLower(t, &ast.Program{Funcs: []*ast.Func{main}})
	mainF := mfunc(t, mp, "main")

	var syscalls []int32
	for _, inst := range allInsts(mainF) {
		if s, ok := inst.(*SysInst); ok {
			syscalls = append(syscalls, s.No)
		}
	}
	require.Equal(t, []int32{1, 11}, syscalls)

	for _, inst := range allInsts(mainF) {
		if _, ok := inst.(*LoadStrInst); ok {
			t.Fatalf("a bare trailing newline must not go through the string table")
		}
	}
}

// TestLowerPrintfLiteralString checks a literal run mixed with text
// (not a bare "\n") goes through the interned string table and a
// syscall 4, not syscall 11.
func TestLowerPrintfLiteralString(t *testing.T) {
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.PrintfStmt{Fmt: "result: %d\n", Args: []ast.Expr{&ast.Number{Val: 1}}},
		&ast.Return{Val: &ast.Number{Val: 0}},
	}}}
	mp := buildAndLower(t, &ast.Program{Funcs: []*ast.Func{main}})
	mainF := mfunc(t, mp, "main")

	require.Equal(t, []string{"result: "}, mp.Strings())

	var syscalls []int32
	for _, inst := range allInsts(mainF) {
		if s, ok := inst.(*SysInst); ok {
			syscalls = append(syscalls, s.No)
		}
	}
	require.Equal(t, []int32{4, 1, 11}, syscalls)
}

// TestLowerAllocaCatalogued checks a local array's Alloca is recorded
// in AllocaAdds for reg_restore's later offset patch, and AllocaNum
// accounts for its full element count.
func TestLowerAllocaCatalogued(t *testing.T) {
	arr := &ast.Decl{Name: "arr", Dims: []int{4}}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.DeclStmt{Vars: []*ast.Decl{arr}},
		&ast.Return{Val: &ast.Number{Val: 0}},
	}}}
	mp := buildAndLower(t, &ast.Program{Funcs: []*ast.Func{main}})
	mainF := mfunc(t, mp, "main")

	require.Equal(t, 4, mainF.AllocaNum)
	require.Len(t, mainF.AllocaAdds, 1)
	require.Equal(t, RegSp, Reg(mainF.AllocaAdds[0].Lhs.Val))
}

// TestLowerGetInt checks getint() lowers to syscall 5 and a move out
// of $v0 into a fresh result vreg.
func TestLowerGetInt(t *testing.T) {
	x := &ast.Decl{Name: "x"}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.DeclStmt{Vars: []*ast.Decl{x}},
		&ast.GetIntStmt{LHS: &ast.LVal{Var: x}},
		&ast.Return{Val: &ast.LVal{Var: x}},
	}}}
	mp := buildAndLower(t, &ast.Program{Funcs: []*ast.Func{main}})
	mainF := mfunc(t, mp, "main")

	var sawSys5 bool
	for _, inst := range allInsts(mainF) {
		if s, ok := inst.(*SysInst); ok && s.No == 5 {
			sawSys5 = true
		}
	}
	require.True(t, sawSys5)
}

// TestLowerPropagatesLoopDepth checks a while-loop body's SSA loop
// depth (computed by internal/analysis.BuildLoops, as build_loop's pass
// leaves it before MIPS lowering runs) survives onto the corresponding
// MBlock, since the register allocator's select_spill heuristic reads
// it.
func TestLowerPropagatesLoopDepth(t *testing.T) {
	i := &ast.Decl{Name: "i"}
	iLVal := &ast.LVal{Var: i}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.DeclStmt{Vars: []*ast.Decl{i}},
		&ast.Assign{LHS: iLVal, RHS: &ast.Number{Val: 0}},
		&ast.While{
			Cond: &ast.Binary{Op: ast.Lt, LHS: iLVal, RHS: &ast.Number{Val: 10}},
			Body: &ast.Assign{LHS: iLVal, RHS: &ast.Binary{Op: ast.Add, LHS: iLVal, RHS: &ast.Number{Val: 1}}},
		},
		&ast.Return{Val: &ast.Number{Val: 0}},
	}}}
	irProg, err := ir.Build(&ast.Program{Funcs: []*ast.Func{main}})
	require.NoError(t, err)
	for _, fn := range irProg.Funcs {
		if fn.IsExternal() {
			continue
		}
		analysis.BuildPredecessors(fn)
		analysis.BuildDominators(fn)
		analysis.BuildLoops(fn)
	}

	mp := Lower(irProg)
	mainF := mfunc(t, mp, "main")

	var sawLoopDepth bool
	for idx, ssaB := range mainF.SSA.Blocks {
		if ssaB.Depth > 0 {
			sawLoopDepth = true
			require.Equal(t, ssaB.Depth, mainF.Blocks[idx].LoopDepth)
		}
	}
	require.True(t, sawLoopDepth, "expected the while-loop body to have loop depth > 0")
}

// TestLowerBinaryBranchFallthrough checks a fused relational branch
// whose Then block is the immediate fallthrough inverts the comparison
// instead of emitting a redundant jump.
func TestLowerBinaryBranchFallthrough(t *testing.T) {
	prog := ir.NewProgram()
	fn := &ir.Function{Kind: ir.UserFunc, Name: "f", ReturnsInt: true}
	prog.AddFunc(fn)

	b0 := fn.NewBlock()
	fn.AddBlock(b0)
	b1 := fn.NewBlock() // then, and the fallthrough target
	fn.AddBlock(b1)
	b2 := fn.NewBlock() // else
	fn.AddBlock(b2)

	b0.Push(ir.NewBinaryBranch(0, ir.RLt, prog.ConstOf(1), prog.ConstOf(2), b1, b2))
	b1.Push(ir.NewReturn(0, prog.One()))
	b2.Push(ir.NewReturn(0, prog.Zero()))

	mf := lowerFunction(NewMProgram(), fn)

	term := mf.Blocks[0].Terminator()
	bz, ok := term.(*BranchZeroInst)
	require.True(t, ok, "expected the slt result to branch on zero, not a register-register branch")
	require.Equal(t, BzEq, bz.Op, "fallthrough is Then, so the branch must invert to jump to Else on false")
}
