// Package parser lexes and parses a SysY-subset translation unit into
// an internal/ast.Program, collecting source-language diagnostics into
// an internal/errors.Reporter rather than aborting on the first one.
// Grammar and recovery follow the original reference compiler's
// hand-written recursive-descent parser; its speculative try/catch
// disambiguation between an assignment and an expression statement is
// replaced with an unbounded, non-consuming lookahead to the next `;`
// or `=`, per the redesign that drops exceptions from this layer.
package parser

import (
	"fmt"

	"github.com/alecthomas/participle/v2/lexer"

	"sysyc/internal/ast"
	"sysyc/internal/errors"
	"sysyc/token"
)

// Parser is a single compilation's parsing state: a flat token vector
// (built in full up front, mirroring the donor's own Token vector),
// a cursor into it, the diagnostic sink, and the identifier scope.
type Parser struct {
	toks []Token
	pos  int

	rep   *errors.Reporter
	scope *scope

	curFuncReturnsInt bool
	whileDepth        int
}

// parseError signals input so malformed that no recoverable diagnostic
// kind applies (e.g. a missing mandatory identifier or keyword); it is
// never an internal invariant failure, so it is reported back to the
// caller as a plain error rather than via diag.Fatalf.
type parseError struct {
	pos lexer.Position
	msg string
}

func (e *parseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.pos.Filename, e.pos.Line, e.pos.Column, e.msg)
}

// ParseProgram lexes and parses source in full. The returned Reporter
// may hold diagnostics even on a nil error; per §6/§7 the caller must
// check rep.HasErrors() and skip IR construction/emission if so. A
// non-nil error means the input was too malformed to recover from at
// all (not one of the thirteen lettered source-error kinds).
func ParseProgram(filename, source string) (prog *ast.Program, rep *errors.Reporter, err error) {
	toks, lexErr := Lex(filename, source)
	if lexErr != nil {
		return nil, nil, lexErr
	}

	rep = errors.NewReporter(filename)
	p := &Parser{toks: toks, rep: rep, scope: newScope()}

	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*parseError)
			if !ok {
				panic(r)
			}
			err = pe
		}
	}()

	prog = p.compUnit()
	return prog, rep, nil
}

func (p *Parser) fatalf(pos lexer.Position, format string, args ...any) {
	panic(&parseError{pos: pos, msg: fmt.Sprintf(format, args...)})
}

func (p *Parser) report(kind errors.Kind, line int) {
	p.rep.Report(kind, line, "")
}

// --- token-stream primitives ---

func (p *Parser) peek() Token { return p.toks[p.pos] }

func (p *Parser) peekAt(n int) Token {
	i := p.pos + n
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *Parser) advance() Token {
	tk := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return tk
}

func (p *Parser) tokIsA(t token.Type) bool { return p.peek().Type == t }

func (p *Parser) tryGet(t token.Type) (Token, bool) {
	if p.tokIsA(t) {
		return p.advance(), true
	}
	return Token{}, false
}

func (p *Parser) prevLine() int {
	if p.pos == 0 {
		return p.toks[0].Pos.Line
	}
	return p.toks[p.pos-1].Pos.Line
}

// expect consumes a token of kind t or reports the appropriate
// diagnostic and proceeds as though it had been there. Only the three
// kinds the external interface's error reporter names a letter for
// (`;`, `)`, `]`) are recoverable this way -- a missing identifier,
// keyword, or opening bracket is unparseable input with no source-error
// kind of its own, so it raises a parseError instead (matching the
// original compiler's bare fatal() for those same cases).
func (p *Parser) expect(t token.Type) Token {
	if p.tokIsA(t) {
		return p.advance()
	}
	switch t {
	case token.SEMICOLON:
		p.report(errors.MissingSemicolon, p.prevLine())
	case token.RPAREN:
		p.report(errors.MissingRParen, p.prevLine())
	case token.RBRACKET:
		p.report(errors.MissingRBracket, p.prevLine())
	default:
		p.fatalf(p.peek().Pos, "expected %s but got %s %q", t, p.peek().Type, p.peek().Text)
	}
	return Token{Type: t, Pos: p.peek().Pos}
}

// --- grammar: CompUnit ---

func (p *Parser) compUnit() *ast.Program {
	prog := &ast.Program{}

globals:
	for {
		switch {
		case p.tokIsA(token.CONST):
			p.constDecl(&prog.Globals)
		case p.peekAt(2).Type == token.LPAREN:
			break globals
		default:
			p.varDecl(&prog.Globals)
		}
	}

	for {
		if p.peekAt(1).Type == token.MAIN {
			prog.Funcs = append(prog.Funcs, p.mainFuncDef())
			break
		}
		prog.Funcs = append(prog.Funcs, p.funcDef())
	}
	return prog
}

func (p *Parser) constDecl(out *[]*ast.Decl) {
	p.expect(token.CONST)
	p.expect(token.INT_KW)
	*out = append(*out, p.constDef())
	for {
		if _, ok := p.tryGet(token.COMMA); !ok {
			break
		}
		*out = append(*out, p.constDef())
	}
	p.expect(token.SEMICOLON)
}

func (p *Parser) constDef() *ast.Decl {
	ident := p.expect(token.IDENT)
	d := &ast.Decl{Pos: ident.Pos, Name: ident.Text, IsConst: true, HasInit: true}
	for {
		if _, ok := p.tryGet(token.LBRACKET); !ok {
			break
		}
		d.Dims = append(d.Dims, int(p.constExpr()))
		p.expect(token.RBRACKET)
	}
	p.expect(token.ASSIGN)
	p.constInit(&d.Init)

	if !p.scope.insert(d.Name, d) {
		p.report(errors.Redefinition, ident.Pos.Line)
	}
	return d
}

// constInit recursively flattens a brace-nested initializer list into
// row-major leaf expressions, the same shape const_init builds in the
// original.
func (p *Parser) constInit(out *[]ast.Expr) {
	if _, ok := p.tryGet(token.LBRACE); ok {
		if _, ok := p.tryGet(token.RBRACE); !ok {
			for {
				p.constInit(out)
				if _, ok := p.tryGet(token.COMMA); !ok {
					break
				}
			}
			p.expect(token.RBRACE)
		}
		return
	}
	*out = append(*out, &ast.Number{Pos: p.peek().Pos, Val: p.constExpr()})
}

func (p *Parser) varDecl(out *[]*ast.Decl) {
	p.expect(token.INT_KW)
	for {
		*out = append(*out, p.varDef())
		if _, ok := p.tryGet(token.COMMA); !ok {
			break
		}
	}
	p.expect(token.SEMICOLON)
}

func (p *Parser) varDef() *ast.Decl {
	ident := p.expect(token.IDENT)
	d := &ast.Decl{Pos: ident.Pos, Name: ident.Text}
	for {
		if _, ok := p.tryGet(token.LBRACKET); !ok {
			break
		}
		d.Dims = append(d.Dims, int(p.constExpr()))
		p.expect(token.RBRACKET)
	}
	if _, ok := p.tryGet(token.ASSIGN); ok {
		d.HasInit = true
		p.initVal(&d.Init)
	}

	if !p.scope.insert(d.Name, d) {
		p.report(errors.Redefinition, ident.Pos.Line)
	}
	return d
}

func (p *Parser) initVal(out *[]ast.Expr) {
	if _, ok := p.tryGet(token.LBRACE); ok {
		if _, ok := p.tryGet(token.RBRACE); !ok {
			for {
				p.initVal(out)
				if _, ok := p.tryGet(token.COMMA); !ok {
					break
				}
			}
			p.expect(token.RBRACE)
		}
		return
	}
	*out = append(*out, p.exp())
}

// --- grammar: functions ---

func (p *Parser) funcDef() *ast.Func {
	returnsInt := p.funcType()
	p.curFuncReturnsInt = returnsInt
	ident := p.expect(token.IDENT)
	fn := &ast.Func{Pos: ident.Pos, Name: ident.Text, ReturnsInt: returnsInt}

	p.expect(token.LPAREN)
	if _, ok := p.tryGet(token.RPAREN); !ok {
		fn.Params = p.funcFormalParams()
		p.expect(token.RPAREN)
	}

	// Inserted before the body so a recursive call resolves.
	if !p.scope.insert(fn.Name, fn) {
		p.report(errors.Redefinition, ident.Pos.Line)
	}

	p.scope.push()
	for _, prm := range fn.Params {
		if !p.scope.insert(prm.Name, prm) {
			p.report(errors.Redefinition, prm.Pos.Line)
		}
	}
	fn.Body = p.block(false)
	p.scope.pop()

	if returnsInt && !endsInReturn(fn.Body) {
		p.report(errors.MissingReturn, p.prevLine())
	}
	return fn
}

func (p *Parser) mainFuncDef() *ast.Func {
	p.curFuncReturnsInt = true
	mainTok := p.expect(token.INT_KW)
	p.expect(token.MAIN)
	p.expect(token.LPAREN)
	p.expect(token.RPAREN)
	body := p.block(true)

	if !endsInReturn(body) {
		p.report(errors.MissingReturn, p.prevLine())
	}
	return &ast.Func{Pos: mainTok.Pos, Name: "main", ReturnsInt: true, Body: body}
}

func endsInReturn(b *ast.Block) bool {
	if len(b.Stmts) == 0 {
		return false
	}
	_, ok := b.Stmts[len(b.Stmts)-1].(*ast.Return)
	return ok
}

func (p *Parser) funcType() bool {
	if _, ok := p.tryGet(token.INT_KW); ok {
		return true
	}
	p.expect(token.VOID)
	return false
}

func (p *Parser) funcFormalParams() []*ast.Decl {
	var out []*ast.Decl
	for {
		out = append(out, p.funcFormalParam())
		if _, ok := p.tryGet(token.COMMA); !ok {
			break
		}
	}
	return out
}

func (p *Parser) funcFormalParam() *ast.Decl {
	p.expect(token.INT_KW)
	ident := p.expect(token.IDENT)
	d := &ast.Decl{Pos: ident.Pos, Name: ident.Text}

	if _, ok := p.tryGet(token.LBRACKET); ok {
		d.Dims = append(d.Dims, -1) // unsized leading dimension
		p.expect(token.RBRACKET)
		for {
			if _, ok := p.tryGet(token.LBRACKET); !ok {
				break
			}
			d.Dims = append(d.Dims, int(p.constExpr()))
			p.expect(token.RBRACKET)
		}
	}
	return d
}

// --- grammar: statements ---

func (p *Parser) block(push bool) *ast.Block {
	lb := p.expect(token.LBRACE)
	blk := &ast.Block{Pos: lb.Pos}
	if push {
		p.scope.push()
	}
	for {
		if _, ok := p.tryGet(token.RBRACE); ok {
			break
		}
		blk.Stmts = append(blk.Stmts, p.blockItem())
	}
	if push {
		p.scope.pop()
	}
	return blk
}

func (p *Parser) blockItem() ast.Stmt {
	tk := p.peek()
	switch tk.Type {
	case token.CONST:
		ds := &ast.DeclStmt{Pos: tk.Pos}
		p.constDecl(&ds.Vars)
		return ds
	case token.INT_KW:
		ds := &ast.DeclStmt{Pos: tk.Pos}
		p.varDecl(&ds.Vars)
		return ds
	default:
		return p.statement()
	}
}

func (p *Parser) statement() ast.Stmt {
	tk := p.peek()
	switch tk.Type {
	case token.IF:
		p.advance()
		p.expect(token.LPAREN)
		cond := p.cond()
		p.expect(token.RPAREN)
		then := p.statement()
		var els ast.Stmt
		if _, ok := p.tryGet(token.ELSE); ok {
			els = p.statement()
		}
		return &ast.If{Pos: tk.Pos, Cond: cond, Then: then, Else: els}

	case token.WHILE:
		p.advance()
		p.expect(token.LPAREN)
		cond := p.cond()
		p.expect(token.RPAREN)
		p.whileDepth++
		body := p.statement()
		p.whileDepth--
		return &ast.While{Pos: tk.Pos, Cond: cond, Body: body}

	case token.LBRACE:
		return p.block(true)

	case token.SEMICOLON:
		p.advance()
		return &ast.Dummy{Pos: tk.Pos}
	}

	var res ast.Stmt
	switch tk.Type {
	case token.BREAK:
		if p.whileDepth == 0 {
			p.report(errors.BreakContinueOutsideLoop, tk.Pos.Line)
		}
		p.advance()
		res = &ast.Break{Pos: tk.Pos}

	case token.CONTINUE:
		if p.whileDepth == 0 {
			p.report(errors.BreakContinueOutsideLoop, tk.Pos.Line)
		}
		p.advance()
		res = &ast.Continue{Pos: tk.Pos}

	case token.RETURN:
		p.advance()
		var val ast.Expr
		if !p.tokIsA(token.SEMICOLON) {
			val = p.exp()
			if !p.curFuncReturnsInt {
				p.report(errors.ReturnFromVoid, tk.Pos.Line)
			}
		}
		res = &ast.Return{Pos: tk.Pos, Val: val}

	case token.PRINTF:
		res = p.printfStmt(tk)

	case token.IDENT:
		if p.isAssignAhead() {
			lhs := p.lvalueNonConst()
			p.expect(token.ASSIGN)
			if _, ok := p.tryGet(token.GETINT); ok {
				p.expect(token.LPAREN)
				p.expect(token.RPAREN)
				res = &ast.GetIntStmt{Pos: tk.Pos, LHS: lhs}
			} else {
				res = &ast.Assign{Pos: tk.Pos, LHS: lhs, RHS: p.exp()}
			}
			break
		}
		fallthrough

	default:
		res = &ast.ExprStmt{Pos: tk.Pos, X: p.exp()}
	}

	p.expect(token.SEMICOLON)
	return res
}

// isAssignAhead scans forward from the current token, without
// consuming anything, to see whether an `=` appears before the
// statement's terminating `;`. This replaces the original compiler's
// speculative try/catch disambiguation between an assignment and a
// bare expression statement, per the redesign flag dropping exceptions
// from this layer.
func (p *Parser) isAssignAhead() bool {
	for i := p.pos; i < len(p.toks); i++ {
		switch p.toks[i].Type {
		case token.SEMICOLON, token.EOF:
			return false
		case token.ASSIGN:
			return true
		}
	}
	return false
}

func (p *Parser) printfStmt(tk Token) *ast.PrintfStmt {
	p.advance() // 'printf'
	p.expect(token.LPAREN)
	fmtTok := p.expect(token.STRING)

	r := &ast.PrintfStmt{Pos: tk.Pos}
	for {
		if _, ok := p.tryGet(token.COMMA); !ok {
			break
		}
		r.Args = append(r.Args, p.exp())
	}

	p.validateFormat(fmtTok)
	r.Fmt = resolveFormatEscapes(fmtTok.Text)
	if countFormatSlots(fmtTok.Text) != len(r.Args) {
		p.report(errors.PrintfArgMismatch, tk.Pos.Line)
	}

	p.expect(token.RPAREN)
	return r
}

// validateFormat walks the raw quoted format text (quotes still
// included in fmtTok.Text) and reports IllegalFormatChar the first
// time it finds a character outside the legal set: space, '!',
// printable ASCII 40-126, `\n` as the sole legal backslash escape, and
// `%d` as the sole legal percent escape. Grounded exactly on the
// original parser's character-class loop.
func (p *Parser) validateFormat(tok Token) {
	s := tok.Text
	n := len(s)
	for i := 1; i < n-1; i++ {
		c := s[i]
		legal := (c == ' ' || c == '!' || (c >= 40 && c <= 126)) &&
			(c != '\\' || (i+1 < n-1 && s[i+1] == 'n'))
		legal = legal || (c == '%' && i+1 < n-1 && s[i+1] == 'd')
		if !legal {
			p.report(errors.IllegalFormatChar, tok.Pos.Line)
			return
		}
	}
}

func countFormatSlots(s string) int {
	n := len(s)
	cnt := 0
	for i := 1; i < n-1; i++ {
		if s[i] == '%' && i+1 < n-1 && s[i+1] == 'd' {
			cnt++
		}
	}
	return cnt
}

// resolveFormatEscapes strips the surrounding quotes and resolves the
// one legal escape (`\n`) to a real newline byte, matching
// ast.PrintfStmt.Fmt's documented contract.
func resolveFormatEscapes(s string) string {
	inner := s[1 : len(s)-1]
	var b []byte
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) && inner[i+1] == 'n' {
			b = append(b, '\n')
			i++
			continue
		}
		b = append(b, inner[i])
	}
	return string(b)
}

// --- grammar: expressions ---

var binLevel = map[token.Type]int{
	token.ASTERISK: 1, token.SLASH: 1, token.PERCENT: 1,
	token.PLUS: 2, token.MINUS: 2,
	token.LT: 3, token.GT: 3, token.LE: 3, token.GE: 3,
	token.EQ: 4, token.NEQ: 4,
	token.AND: 5,
	token.OR:  6,
}

var binOpOf = map[token.Type]ast.BinOp{
	token.PLUS: ast.Add, token.MINUS: ast.Sub, token.ASTERISK: ast.Mul, token.SLASH: ast.Div, token.PERCENT: ast.Mod,
	token.LT: ast.Lt, token.GT: ast.Gt, token.LE: ast.Le, token.GE: ast.Ge,
	token.EQ: ast.Eq, token.NEQ: ast.Ne,
	token.AND: ast.LAnd,
	token.OR:  ast.LOr,
}

const levelAdd = 2
const levelOr = 6

// binExp implements the original's bin_exp<L> level-climbing template
// as a runtime parameter, since Go has no compile-time integer
// template non-type parameters: UnaryExp -> MulExp -> AddExp -> RelExp
// -> EqExp -> LAndExp -> LOrExp.
func (p *Parser) binExp(level int) ast.Expr {
	if level == 0 {
		return p.unaryExp()
	}
	lhs := p.binExp(level - 1)
	for {
		lvl, ok := binLevel[p.peek().Type]
		if !ok || lvl != level {
			break
		}
		opTok := p.advance()
		rhs := p.binExp(level - 1)
		lhs = &ast.Binary{Pos: opTok.Pos, Op: binOpOf[opTok.Type], LHS: lhs, RHS: rhs}
	}
	return lhs
}

func (p *Parser) exp() ast.Expr  { return p.binExp(levelAdd) }
func (p *Parser) cond() ast.Expr { return p.binExp(levelOr) }

// constExpr parses a constant expression and folds it via
// ast.EvalConst -- the grammar only calls this where the original
// requires a compile-time constant (array dimensions, const
// initializers), so a fold failure here means the input violates that
// requirement in a way no lettered diagnostic covers.
func (p *Parser) constExpr() int32 {
	tk := p.peek()
	e := p.binExp(levelAdd)
	v, ok := ast.EvalConst(e)
	if !ok {
		p.fatalf(tk.Pos, "expression is not a compile-time constant")
	}
	return v
}

func (p *Parser) unaryExp() ast.Expr {
	tk := p.peek()
	switch tk.Type {
	case token.PLUS:
		p.advance()
		return p.unaryExp() // `+x` folds away

	case token.MINUS:
		p.advance()
		return &ast.Unary{Pos: tk.Pos, Op: ast.Neg, X: p.unaryExp()}

	case token.BANG:
		p.advance()
		return &ast.Unary{Pos: tk.Pos, Op: ast.Not, X: p.unaryExp()}

	case token.IDENT:
		if p.peekAt(1).Type == token.LPAREN {
			return p.callExpr(tk)
		}
	}
	return p.primaryExp()
}

func (p *Parser) callExpr(identTok Token) ast.Expr {
	p.advance() // ident
	p.advance() // '('
	call := &ast.Call{Pos: identTok.Pos, Func: p.findFunc(identTok)}

	if _, ok := p.tryGet(token.RPAREN); !ok {
		call.Args = p.funcRealParams()
		p.expect(token.RPAREN)
	}

	if call.Func != nil {
		if len(call.Func.Params) != len(call.Args) {
			p.report(errors.ArgCountMismatch, identTok.Pos.Line)
		} else if !checkArgs(call.Args, call.Func.Params) {
			p.report(errors.ArgTypeMismatch, identTok.Pos.Line)
		}
	}
	return call
}

func (p *Parser) funcRealParams() []ast.Expr {
	var out []ast.Expr
	for {
		out = append(out, p.exp())
		if _, ok := p.tryGet(token.COMMA); !ok {
			break
		}
	}
	return out
}

// checkArgs mirrors the original compiler's array-shape compatibility
// check: a scalar parameter demands a scalar (or fully-indexed)
// argument; an array parameter demands an lvalue whose remaining
// dimensionality and row length match the parameter's.
func checkArgs(args []ast.Expr, params []*ast.Decl) bool {
	for i, arg := range args {
		par := params[i]
		if lv, ok := arg.(*ast.LVal); ok {
			if lv.Var == nil {
				return false
			}
			if len(lv.Var.Dims) != len(lv.Dims)+len(par.Dims) {
				return false
			}
			if len(par.Dims) == 2 && par.Dims[1] != lv.Var.Dims[1] {
				return false
			}
			continue
		}
		if len(par.Dims) != 0 {
			return false
		}
		if c, ok := arg.(*ast.Call); ok {
			if c.Func != nil && !c.Func.ReturnsInt {
				return false
			}
		}
	}
	return true
}

func (p *Parser) primaryExp() ast.Expr {
	tk := p.peek()
	switch tk.Type {
	case token.LPAREN:
		p.advance()
		e := p.exp()
		p.expect(token.RPAREN)
		return e
	case token.INT:
		return p.number()
	default:
		return p.lvalue()
	}
}

func (p *Parser) number() ast.Expr {
	tk := p.expect(token.INT)
	var v int32
	for i := 0; i < len(tk.Text); i++ {
		v = v*10 + int32(tk.Text[i]-'0')
	}
	return &ast.Number{Pos: tk.Pos, Val: v}
}

func (p *Parser) lvalue() *ast.LVal {
	ident := p.expect(token.IDENT)
	lv := &ast.LVal{Pos: ident.Pos, Var: p.findDecl(ident)}
	for {
		if _, ok := p.tryGet(token.LBRACKET); !ok {
			break
		}
		lv.Dims = append(lv.Dims, p.exp())
		p.expect(token.RBRACKET)
	}
	return lv
}

func (p *Parser) lvalueNonConst() *ast.LVal {
	ident := p.expect(token.IDENT)
	d := p.findDecl(ident)
	if d != nil && d.IsConst {
		p.report(errors.AssignToConst, ident.Pos.Line)
	}
	lv := &ast.LVal{Pos: ident.Pos, Var: d}
	for {
		if _, ok := p.tryGet(token.LBRACKET); !ok {
			break
		}
		lv.Dims = append(lv.Dims, p.exp())
		p.expect(token.RBRACKET)
	}
	return lv
}

// findDecl and findFunc mirror the original's ctx_find<T>: an entirely
// unbound name reports UndeclaredIdent, but a name bound to the other
// kind (a variable used as a function or vice versa) silently resolves
// to nil, matching the original's own unresolved TODO on that case
// rather than inventing a new diagnostic for it.
func (p *Parser) findDecl(ident Token) *ast.Decl {
	sym := p.scope.find(ident.Text)
	if sym == nil {
		p.report(errors.UndeclaredIdent, ident.Pos.Line)
		return nil
	}
	d, _ := sym.(*ast.Decl)
	return d
}

func (p *Parser) findFunc(ident Token) *ast.Func {
	sym := p.scope.find(ident.Text)
	if sym == nil {
		p.report(errors.UndeclaredIdent, ident.Pos.Line)
		return nil
	}
	fn, _ := sym.(*ast.Func)
	return fn
}
