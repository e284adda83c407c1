package passes

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/ast"
	"sysyc/internal/ir"
)

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
		&ast.PrintfStmt{Fmt: "%d\\n", Args: []ast.Expr{sLVal}},
		&ast.Return{Val: &ast.Number{Val: 0}},
	}}
	main := &ast.Func{Name: "main", ReturnsInt: true, Body: body}
	return &ast.Program{Funcs: []*ast.Func{main}}
}

func TestOptimizeRunsFullPipeline(t *testing.T) {
	prog, err := ir.Build(sumLoopProgram())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NotPanics(t, func() { Optimize(prog, &out, false) })

	fn := prog.Funcs[0]
	var sawLoop bool
	for _, b := range fn.Blocks {
		if b.Loop != nil {
			sawLoop = true
		}
	}
	require.True(t, sawLoop, "build_loop must run last and tag the surviving loop")
	require.NotEmpty(t, out.String(), "each pass should print a progress line")
}

func TestOptimizeDisabledRunsMinimalPipeline(t *testing.T) {
	prog, err := ir.Build(sumLoopProgram())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NotPanics(t, func() { OptimizeDisabled(prog, &out, true) })
	require.Empty(t, out.String(), "quiet mode prints nothing")

	fn := prog.Funcs[0]
	require.NotNil(t, fn.Entry().Terminator())
}
