// Package ast defines the accepted input contract: a Program built of
// global declarations, functions, and printf call sites. The lexer and
// parser that produce it live in internal/parser; this package only
// carries the shape the rest of the compiler consumes.
package ast

import "github.com/alecthomas/participle/v2/lexer"

// Pos is a source position, carried for diagnostics only.
type Pos = lexer.Position

// Decl is a scalar or array variable declaration: a global, a local, or
// a function parameter. Dims holds the declared dimensions; an array
// parameter's first dimension is unsized and recorded as -1.
type Decl struct {
	Pos Pos

	Name    string
	IsConst bool
	Dims    []int // nil for scalars
	HasInit bool
	Init    []Expr // flattened initializer list, row-major

	Addr int // assigned by the builder for globals; unused for locals/params
}

// Size returns the element count of the declared type (1 for scalars).
func (d *Decl) Size() int {
	if len(d.Dims) == 0 {
		return 1
	}
	n := 1
	for _, dim := range d.Dims {
		if dim < 0 {
			continue // unsized leading dimension of an array parameter
		}
		n *= dim
	}
	return n
}

// Expr is any SysY-subset expression.
type Expr interface {
	exprNode()
	Position() Pos
}

// LVal references a declared variable, optionally indexed.
type LVal struct {
	Pos  Pos
	Var  *Decl
	Dims []Expr // index expressions, empty for a bare scalar reference
}

func (e *LVal) exprNode()        {}
func (e *LVal) Position() Pos    { return e.Pos }

// Number is an integer literal.
type Number struct {
	Pos Pos
	Val int32
}

func (e *Number) exprNode()     {}
func (e *Number) Position() Pos { return e.Pos }

// BinOp enumerates the source-level binary operators.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	Lt
	Gt
	Le
	Ge
	Eq
	Ne
	LAnd
	LOr
)

// Binary is a binary expression; And/Or are lowered to control flow
// during IR construction and never survive past the builder.
type Binary struct {
	Pos      Pos
	Op       BinOp
	LHS, RHS Expr
}

func (e *Binary) exprNode()     {}
func (e *Binary) Position() Pos { return e.Pos }

// Unary negation / logical not; `+x` is folded away by the parser.
type UnaryOp int

const (
	Neg UnaryOp = iota
	Not
)

type Unary struct {
	Pos Pos
	Op  UnaryOp
	X   Expr
}

func (e *Unary) exprNode()     {}
func (e *Unary) Position() Pos { return e.Pos }

// Call is a call to a user function.
type Call struct {
	Pos  Pos
	Func *Func
	Args []Expr
}

func (e *Call) exprNode()     {}
func (e *Call) Position() Pos { return e.Pos }

// Stmt is any SysY-subset statement.
type Stmt interface {
	stmtNode()
	Position() Pos
}

type Assign struct {
	Pos      Pos
	LHS      *LVal
	RHS      Expr
}

func (s *Assign) stmtNode()      {}
func (s *Assign) Position() Pos { return s.Pos }

type DeclStmt struct {
	Pos  Pos
	Vars []*Decl
}

func (s *DeclStmt) stmtNode()      {}
func (s *DeclStmt) Position() Pos { return s.Pos }

type ExprStmt struct {
	Pos Pos
	X   Expr
}

func (s *ExprStmt) stmtNode()      {}
func (s *ExprStmt) Position() Pos { return s.Pos }

// Dummy is an empty statement (a bare `;`).
type Dummy struct{ Pos Pos }

func (s *Dummy) stmtNode()      {}
func (s *Dummy) Position() Pos { return s.Pos }

type Block struct {
	Pos   Pos
	Stmts []Stmt
}

func (s *Block) stmtNode()      {}
func (s *Block) Position() Pos { return s.Pos }

type If struct {
	Pos        Pos
	Cond       Expr
	Then, Else Stmt // Else is nil when absent
}

func (s *If) stmtNode()      {}
func (s *If) Position() Pos { return s.Pos }

type While struct {
	Pos  Pos
	Cond Expr
	Body Stmt
}

func (s *While) stmtNode()      {}
func (s *While) Position() Pos { return s.Pos }

type Break struct{ Pos Pos }

func (s *Break) stmtNode()      {}
func (s *Break) Position() Pos { return s.Pos }

type Continue struct{ Pos Pos }

func (s *Continue) stmtNode()      {}
func (s *Continue) Position() Pos { return s.Pos }

type Return struct {
	Pos Pos
	Val Expr // nil for a bare return
}

func (s *Return) stmtNode()      {}
func (s *Return) Position() Pos { return s.Pos }

type GetIntStmt struct {
	Pos Pos
	LHS *LVal
}

func (s *GetIntStmt) stmtNode()      {}
func (s *GetIntStmt) Position() Pos { return s.Pos }

type PrintfStmt struct {
	Pos  Pos
	Fmt  string // raw format text, quotes stripped, escapes resolved
	Args []Expr
}

func (s *PrintfStmt) stmtNode()      {}
func (s *PrintfStmt) Position() Pos { return s.Pos }

// Func is a user-defined function. ReturnsInt is false only for `void`
// functions (the only two return kinds the subset allows).
type Func struct {
	Pos        Pos
	Name       string
	ReturnsInt bool
	Params     []*Decl
	Body       *Block
}

// Program is the whole parsed translation unit.
type Program struct {
	Globals []*Decl
	Funcs   []*Func
}
