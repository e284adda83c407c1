package emit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/ast"
	"sysyc/internal/ir"
	"sysyc/internal/mips"
	"sysyc/internal/mipspasses"
)

// compile runs prog through the full ir/mips/mipspasses pipeline and
// renders the result, the way internal/driver will.
func compile(t *testing.T, prog *ast.Program) string {
	t.Helper()
	irProg, err := ir.Build(prog)
	require.NoError(t, err)
	mp := mips.Lower(irProg)
	for _, fn := range mp.Funcs {
		mipspasses.Normalize(fn)
		mipspasses.CoalesceMoves(fn)
		for mipspasses.EliminateDeadCode(fn) {
		}
		mipspasses.Allocate(fn)
	}
	mipspasses.RestoreFrames(mp)

	var b strings.Builder
	Write(&b, irProg, mp)
	return b.String()
}

// TestWriteSimpleMainShape checks the overall segment shape for a
// trivial `int main(){ return 0; }`: a `.data` header even with no
// globals, a `.text` segment whose sole function is `__FUN_main`, and
// the trailing `__END` label. Since nothing follows main's return and
// there is only one function, the `jr $ra`/`j __END` rewrite rule means
// no jump is emitted at all for it.
func TestWriteSimpleMainShape(t *testing.T) {
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.Return{Val: &ast.Number{Val: 0}},
	}}}
	out := compile(t, &ast.Program{Funcs: []*ast.Func{main}})

	require.True(t, strings.HasPrefix(out, ".data\n"))
	require.Contains(t, out, "\n.text\n")
	require.Contains(t, out, "__FUN_main:\n")
	require.Contains(t, out, "\n__END:\n")
	require.True(t, strings.HasSuffix(out, "__END:\n"))
	require.NotContains(t, out, "j __END")
	require.NotContains(t, out, "jr $ra")
}

// TestWriteGlobalsEmitWordAndSpace checks an initialized global gets a
// `.word` list with its initializer folded to a literal, and an
// uninitialized one gets `.space` sized by element count.
func TestWriteGlobalsEmitWordAndSpace(t *testing.T) {
	init := &ast.Decl{Name: "n", HasInit: true, Init: []ast.Expr{&ast.Number{Val: 7}}}
	uninit := &ast.Decl{Name: "buf", Dims: []int{4}}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.Return{Val: &ast.LVal{Var: init}},
	}}}
	out := compile(t, &ast.Program{Globals: []*ast.Decl{init, uninit}, Funcs: []*ast.Func{main}})

	require.Contains(t, out, "__GLO_n: .word 7\n")
	require.Contains(t, out, "__GLO_buf: .space 16\n")
}

// TestWriteMultiFuncCallShape checks a second (non-main) function gets
// its own __FUN_ label, a call from main lowers to `jal __FUN_add`, and
// main's return now does emit `j __END` since another function's code
// follows it in the file.
func TestWriteMultiFuncCallShape(t *testing.T) {
	paramA := &ast.Decl{Name: "a"}
	paramB := &ast.Decl{Name: "b"}
	addFn := &ast.Func{Name: "add", ReturnsInt: true, Params: []*ast.Decl{paramA, paramB}, Body: &ast.Block{
		Stmts: []ast.Stmt{&ast.Return{Val: &ast.Binary{Op: ast.Add, LHS: &ast.LVal{Var: paramA}, RHS: &ast.LVal{Var: paramB}}}},
	}}

	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.Return{Val: &ast.Call{Func: addFn, Args: []ast.Expr{&ast.Number{Val: 1}, &ast.Number{Val: 2}}}},
	}}}
	out := compile(t, &ast.Program{Funcs: []*ast.Func{addFn, main}})

	require.Contains(t, out, "__FUN_add:\n")
	require.Contains(t, out, "jal __FUN_add")
	require.Contains(t, out, "j __END")
	require.Contains(t, out, "jr $ra")
	require.Contains(t, out, "_add_bb_0:\n")
}

// TestWriteStringTableAddressesAreSequential checks two distinct printf
// literals get their own __STR_n entries and that LoadStr expands to a
// plain li/lui (never `la`), since the emitter resolves string
// addresses itself (§4.6).
func TestWriteStringTableAddressesAreSequential(t *testing.T) {
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.PrintfStmt{Fmt: "a"},
		&ast.PrintfStmt{Fmt: "bb"},
		&ast.Return{Val: &ast.Number{Val: 0}},
	}}}
	out := compile(t, &ast.Program{Funcs: []*ast.Func{main}})

	require.Contains(t, out, `__STR_0: .asciiz "a"`)
	require.Contains(t, out, `__STR_1: .asciiz "bb"`)
	require.NotContains(t, out, " la $")
}
