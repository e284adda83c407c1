package ast

import "testing"

func requireConst(t *testing.T, e Expr, want int32) {
	t.Helper()
	got, ok := EvalConst(e)
	if !ok {
		t.Fatalf("EvalConst(%#v) = not ok, want %d", e, want)
	}
	if got != want {
		t.Fatalf("EvalConst(%#v) = %d, want %d", e, got, want)
	}
}

func requireNotConst(t *testing.T, e Expr) {
	t.Helper()
	if _, ok := EvalConst(e); ok {
		t.Fatalf("EvalConst(%#v) = ok, want not ok", e)
	}
}

func TestEvalConstNumber(t *testing.T) {
	requireConst(t, &Number{Val: 42}, 42)
}

func TestEvalConstUnary(t *testing.T) {
	requireConst(t, &Unary{Op: Neg, X: &Number{Val: 3}}, -3)
	requireConst(t, &Unary{Op: Not, X: &Number{Val: 0}}, 1)
	requireConst(t, &Unary{Op: Not, X: &Number{Val: 5}}, 0)
}

func TestEvalConstBinaryArithmetic(t *testing.T) {
	e := &Binary{Op: Add, LHS: &Number{Val: 2}, RHS: &Binary{Op: Mul, LHS: &Number{Val: 3}, RHS: &Number{Val: 4}}}
	requireConst(t, e, 14)
}

func TestEvalConstDivModByZeroNotConst(t *testing.T) {
	requireNotConst(t, &Binary{Op: Div, LHS: &Number{Val: 1}, RHS: &Number{Val: 0}})
	requireNotConst(t, &Binary{Op: Mod, LHS: &Number{Val: 1}, RHS: &Number{Val: 0}})
}

func TestEvalConstComparisonAndLogic(t *testing.T) {
	requireConst(t, &Binary{Op: Lt, LHS: &Number{Val: 1}, RHS: &Number{Val: 2}}, 1)
	requireConst(t, &Binary{Op: LAnd, LHS: &Number{Val: 1}, RHS: &Number{Val: 0}}, 0)
}

func TestEvalConstLValScalarConst(t *testing.T) {
	c := &Decl{Name: "N", IsConst: true, HasInit: true, Init: []Expr{&Number{Val: 7}}}
	requireConst(t, &LVal{Var: c}, 7)
}

func TestEvalConstLValNonConstVar(t *testing.T) {
	v := &Decl{Name: "x", HasInit: true, Init: []Expr{&Number{Val: 7}}}
	requireNotConst(t, &LVal{Var: v})
}

func TestEvalConstLValIndexedArrayConst(t *testing.T) {
	// const int a[2][3] = {0,1,2,3,4,5}; a[1][2] == 5
	c := &Decl{
		Name: "a", IsConst: true, HasInit: true, Dims: []int{2, 3},
		Init: []Expr{
			&Number{Val: 0}, &Number{Val: 1}, &Number{Val: 2},
			&Number{Val: 3}, &Number{Val: 4}, &Number{Val: 5},
		},
	}
	requireConst(t, &LVal{Var: c, Dims: []Expr{&Number{Val: 1}, &Number{Val: 2}}}, 5)
}
