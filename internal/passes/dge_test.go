package passes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/ast"
	"sysyc/internal/ir"
)

// buildGlobalProgram returns a program with a single scalar global g, a
// function bump that increments it, and a main that calls bump once or
// twice depending on callTwice.
func buildGlobalProgram(callTwice bool) *ast.Program {
	g := &ast.Decl{Name: "g"}
	gLVal := &ast.LVal{Var: g}

	bump := &ast.Func{
		Name: "bump",
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Assign{LHS: gLVal, RHS: &ast.Binary{Op: ast.Add, LHS: gLVal, RHS: &ast.Number{Val: 1}}},
			&ast.Return{},
		}},
	}

	mainStmts := []ast.Stmt{&ast.ExprStmt{X: &ast.Call{Func: bump}}}
	if callTwice {
		mainStmts = append(mainStmts, &ast.ExprStmt{X: &ast.Call{Func: bump}})
	}
	mainStmts = append(mainStmts, &ast.Return{Val: &ast.Number{Val: 0}})
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: mainStmts}}

	return &ast.Program{Globals: []*ast.Decl{g}, Funcs: []*ast.Func{bump, main}}
}

func findFunc(prog *ir.Program, name string) *ir.Function {
	for _, fn := range prog.Funcs {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

func TestDeadGlobalElimDropsUnusedGlobal(t *testing.T) {
	unused := &ast.Decl{Name: "unused"}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: &ast.Block{Stmts: []ast.Stmt{
		&ast.Return{Val: &ast.Number{Val: 0}},
	}}}
	astProg := &ast.Program{Globals: []*ast.Decl{unused}, Funcs: []*ast.Func{main}}

	prog, err := ir.Build(astProg)
	require.NoError(t, err)
	require.Len(t, prog.Globals, 1)

	changed := DeadGlobalElim{}.Apply(prog)
	require.True(t, changed)
	require.Empty(t, prog.Globals)
}

func TestDeadGlobalElimPromotesSingleOwnerGlobal(t *testing.T) {
	prog, err := ir.Build(buildGlobalProgram(false))
	require.NoError(t, err)
	require.Len(t, prog.Globals, 1)

	changed := DeadGlobalElim{}.Apply(prog)
	require.True(t, changed)
	require.Empty(t, prog.Globals, "g has exactly one call-site owner reached once, so it is privatized")

	bump := findFunc(prog, "bump")
	var sawAlloca, sawGlobalStore bool
	for _, b := range bump.Blocks {
		for _, inst := range b.Instructions() {
			switch v := inst.(type) {
			case *ir.AllocaInst:
				sawAlloca = true
			case *ir.StoreInst:
				if _, ok := v.Base.Value().(*ir.Global); ok {
					sawGlobalStore = true
				}
			}
		}
	}
	require.True(t, sawAlloca, "promotion inserts an Alloca into bump's entry block")
	require.False(t, sawGlobalStore, "every access should have been rewritten off the Global")
}

func TestDeadGlobalElimKeepsGlobalCalledTwice(t *testing.T) {
	prog, err := ir.Build(buildGlobalProgram(true))
	require.NoError(t, err)

	DeadGlobalElim{}.Apply(prog)
	require.Len(t, prog.Globals, 1, "bump is reached by two call sites from main, so g is never privatized")
}
