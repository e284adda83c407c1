package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/ast"
	"sysyc/internal/ir"
)

// sumLoopProgram builds a small while-loop summing 1..10, reused by
// several tests that need a CFG with an actual back edge.
func sumLoopProgram() *ast.Program {
	iDecl := &ast.Decl{Name: "i"}
	sDecl := &ast.Decl{Name: "s"}
	iLVal := &ast.LVal{Var: iDecl}
	sLVal := &ast.LVal{Var: sDecl}

	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.DeclStmt{Vars: []*ast.Decl{iDecl, sDecl}},
		&ast.Assign{LHS: iLVal, RHS: &ast.Number{Val: 1}},
		&ast.Assign{LHS: sLVal, RHS: &ast.Number{Val: 0}},
		&ast.While{
			Cond: &ast.Binary{Op: ast.Le, LHS: iLVal, RHS: &ast.Number{Val: 10}},
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Assign{LHS: sLVal, RHS: &ast.Binary{Op: ast.Add, LHS: sLVal, RHS: iLVal}},
				&ast.Assign{LHS: iLVal, RHS: &ast.Binary{Op: ast.Add, LHS: iLVal, RHS: &ast.Number{Val: 1}}},
			}},
		},
		&ast.Return{Val: &ast.Number{Val: 0}},
	}}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: body}
	return &ast.Program{Funcs: []*ast.Func{main}}
}

func TestBuildDominatorsLinear(t *testing.T) {
	prog, err := ir.Build(sumLoopProgram())
	require.NoError(t, err)
	fn := prog.Funcs[0]

	BuildPredecessors(fn)
	BuildDominators(fn)

	require.Equal(t, 0, fn.Entry().Depth)
	for _, b := range fn.Blocks {
		if b == fn.Entry() {
			continue
		}
		require.True(t, Dominates(fn.Entry(), b), "entry must dominate block %d", b.ID)
	}
}

func TestBuildLoopsFindsWhile(t *testing.T) {
	prog, err := ir.Build(sumLoopProgram())
	require.NoError(t, err)
	fn := prog.Funcs[0]

	BuildPredecessors(fn)
	BuildDominators(fn)
	BuildLoops(fn)

	var sawLoop bool
	for _, b := range fn.Blocks {
		if b.Loop != nil {
			sawLoop = true
		}
	}
	require.True(t, sawLoop, "the while loop body should be tagged with a Loop")
}

func TestDominanceFrontierOfMerge(t *testing.T) {
	prog, err := ir.Build(sumLoopProgram())
	require.NoError(t, err)
	fn := prog.Funcs[0]

	BuildPredecessors(fn)
	BuildDominators(fn)
	BuildDominanceFrontier(fn)

	var anyDF bool
	for _, b := range fn.Blocks {
		if len(b.DF) > 0 {
			anyDF = true
		}
	}
	require.True(t, anyDF)
}
