package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/ast"
	"sysyc/internal/errors"
)

func mustParse(t *testing.T, src string) (*ast.Program, *errors.Reporter) {
	t.Helper()
	prog, rep, err := ParseProgram("t.c", src)
	require.NoError(t, err)
	return prog, rep
}

func kinds(rep *errors.Reporter) []errors.Kind {
	var out []errors.Kind
	for _, d := range rep.Diagnostics() {
		out = append(out, d.Kind)
	}
	return out
}

func TestParseMinimalMain(t *testing.T) {
	prog, rep := mustParse(t, `int main(){ return 0; }`)
	require.False(t, rep.HasErrors())
	require.Len(t, prog.Funcs, 1)
	require.Equal(t, "main", prog.Funcs[0].Name)
	require.True(t, prog.Funcs[0].ReturnsInt)
	require.Len(t, prog.Funcs[0].Body.Stmts, 1)
	ret, ok := prog.Funcs[0].Body.Stmts[0].(*ast.Return)
	require.True(t, ok)
	num, ok := ret.Val.(*ast.Number)
	require.True(t, ok)
	require.Equal(t, int32(0), num.Val)
}

func TestParseGlobalsAndExpression(t *testing.T) {
	prog, rep := mustParse(t, `
		const int n = 3;
		int buf[2] = {1, 2};
		int main(){
			int a;
			a = n + buf[1] * 2 - 1;
			printf("a=%d\n", a);
			return 0;
		}
	`)
	require.False(t, rep.HasErrors())
	require.Len(t, prog.Globals, 2)
	require.True(t, prog.Globals[0].IsConst)
	require.Equal(t, []int{2}, prog.Globals[1].Dims)
	require.Len(t, prog.Globals[1].Init, 2)

	body := prog.Funcs[0].Body.Stmts
	require.Len(t, body, 4) // decl, assign, printf, return

	pf, ok := body[2].(*ast.PrintfStmt)
	require.True(t, ok)
	require.Equal(t, "a=%d\n", pf.Fmt)
	require.Len(t, pf.Args, 1)
}

func TestParseConstArrayInitFoldsViaEvalConst(t *testing.T) {
	prog, rep := mustParse(t, `const int a[2][3] = {{1,2,3},{4,5,6}};
		int main(){ return a[1][2]; }`)
	require.False(t, rep.HasErrors())
	decl := prog.Globals[0]
	require.Equal(t, []int{2, 3}, decl.Dims)
	require.Len(t, decl.Init, 6)

	ret := prog.Funcs[0].Body.Stmts[0].(*ast.Return)
	lv := ret.Val.(*ast.LVal)
	require.Same(t, decl, lv.Var)
	v, ok := ast.EvalConst(lv)
	require.True(t, ok)
	require.Equal(t, int32(6), v)
}

func TestParseWhileBreakContinue(t *testing.T) {
	prog, rep := mustParse(t, `
		int main(){
			int i;
			i = 0;
			while (i < 10) {
				if (i == 5) break;
				i = i + 1;
				continue;
			}
			return i;
		}
	`)
	require.False(t, rep.HasErrors())
	wh, ok := prog.Funcs[0].Body.Stmts[2].(*ast.While)
	require.True(t, ok)
	blk := wh.Body.(*ast.Block)
	require.Len(t, blk.Stmts, 3)
}

func TestParseBreakOutsideLoopReportsKind(t *testing.T) {
	_, rep := mustParse(t, `int main(){ break; return 0; }`)
	require.Contains(t, kinds(rep), errors.BreakContinueOutsideLoop)
}

func TestParseRedefinitionReportsKind(t *testing.T) {
	_, rep := mustParse(t, `int main(){ int a; int a; return 0; }`)
	require.Contains(t, kinds(rep), errors.Redefinition)
}

func TestParseUndeclaredIdentReportsKind(t *testing.T) {
	_, rep := mustParse(t, `int main(){ return x; }`)
	require.Contains(t, kinds(rep), errors.UndeclaredIdent)
}

func TestParseAssignToConstReportsKind(t *testing.T) {
	_, rep := mustParse(t, `const int n = 1; int main(){ n = 2; return 0; }`)
	require.Contains(t, kinds(rep), errors.AssignToConst)
}

func TestParseMissingSemicolonRecoversAndReportsKind(t *testing.T) {
	prog, rep := mustParse(t, `int main(){ int a a = 1; return a; }`)
	require.Contains(t, kinds(rep), errors.MissingSemicolon)
	require.Len(t, prog.Funcs, 1)
}

func TestParseReturnFromVoidReportsKind(t *testing.T) {
	_, rep := mustParse(t, `void f(){ return 1; } int main(){ f(); return 0; }`)
	require.Contains(t, kinds(rep), errors.ReturnFromVoid)
}

func TestParseMissingReturnReportsKind(t *testing.T) {
	_, rep := mustParse(t, `int f(){ int a; a = 1; } int main(){ return f(); }`)
	require.Contains(t, kinds(rep), errors.MissingReturn)
}

func TestParseArgCountMismatchReportsKind(t *testing.T) {
	_, rep := mustParse(t, `int f(int a){ return a; } int main(){ return f(1, 2); }`)
	require.Contains(t, kinds(rep), errors.ArgCountMismatch)
}

func TestParseIllegalFormatCharReportsKind(t *testing.T) {
	_, rep := mustParse(t, `int main(){ printf("bad#char\n"); return 0; }`)
	require.Contains(t, kinds(rep), errors.IllegalFormatChar)
}

func TestParsePrintfArgMismatchReportsKind(t *testing.T) {
	_, rep := mustParse(t, `int main(){ printf("%d %d\n", 1); return 0; }`)
	require.Contains(t, kinds(rep), errors.PrintfArgMismatch)
}

func TestParseGetIntStmt(t *testing.T) {
	prog, rep := mustParse(t, `int main(){ int a; a = getint(); return a; }`)
	require.False(t, rep.HasErrors())
	_, ok := prog.Funcs[0].Body.Stmts[1].(*ast.GetIntStmt)
	require.True(t, ok)
}

func TestParseRecursiveCallResolvesSelf(t *testing.T) {
	prog, rep := mustParse(t, `
		int fib(int n){
			if (n <= 1) return n;
			return fib(n - 1) + fib(n - 2);
		}
		int main(){ return fib(10); }
	`)
	require.False(t, rep.HasErrors())
	fib := prog.Funcs[0]
	require.Equal(t, "fib", fib.Name)

	ret := fib.Body.Stmts[1].(*ast.Return)
	bin := ret.Val.(*ast.Binary)
	call := bin.LHS.(*ast.Call)
	require.Same(t, fib, call.Func)
}

func TestParseArrayParamUnsizedFirstDim(t *testing.T) {
	prog, rep := mustParse(t, `
		int sum(int a[], int n){
			int i;
			int s;
			i = 0;
			s = 0;
			while (i < n) {
				s = s + a[i];
				i = i + 1;
			}
			return s;
		}
		int main(){
			int xs[3] = {1, 2, 3};
			return sum(xs, 3);
		}
	`)
	require.False(t, rep.HasErrors())
	sum := prog.Funcs[0]
	require.Equal(t, []int{-1}, sum.Params[0].Dims)
}

func TestParseUnaryNegAndNot(t *testing.T) {
	prog, rep := mustParse(t, `int main(){ return -(!0) + +5; }`)
	require.False(t, rep.HasErrors())
	ret := prog.Funcs[0].Body.Stmts[0].(*ast.Return)
	bin := ret.Val.(*ast.Binary)
	require.Equal(t, ast.Add, bin.Op)

	neg := bin.LHS.(*ast.Unary)
	require.Equal(t, ast.Neg, neg.Op)
	not := neg.X.(*ast.Unary)
	require.Equal(t, ast.Not, not.Op)

	// `+5` folds away to a bare Number, never wrapped in a Unary.
	five, ok := bin.RHS.(*ast.Number)
	require.True(t, ok)
	require.Equal(t, int32(5), five.Val)
}
