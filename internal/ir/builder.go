package ir

import (
	"fmt"

	"sysyc/internal/ast"
)

// Builder walks an ast.Program and produces the corresponding SSA
// Program. Scalar locals and parameters are emitted as Alloca+Load/
// Store (mem2reg promotes them later); array locals, array parameters,
// and globals are read and written by Load/Store at an element offset
// from their base, with a GEP only for a partially-indexed array
// reference that decays to an address. Short-circuit && / || lower
// to control flow and a Phi, exactly as specified.
type Builder struct {
	prog *Program

	fn       *Function
	cur      *BasicBlock
	allocaOf map[*ast.Decl]*AllocaInst
	globalOf map[*ast.Decl]*Global

	// loop context for break/continue, innermost last
	loops []loopCtx
}

type loopCtx struct {
	cond *BasicBlock
	end  *BasicBlock
}

// Build constructs a whole-program SSA representation from prog.
func Build(prog *ast.Program) (*Program, error) {
	b := &Builder{
		prog:     NewProgram(),
		allocaOf: make(map[*ast.Decl]*AllocaInst),
		globalOf: make(map[*ast.Decl]*Global),
	}
	if err := b.buildGlobals(prog.Globals); err != nil {
		return nil, err
	}
	for _, fn := range prog.Funcs {
		if err := b.buildFunction(fn); err != nil {
			return nil, err
		}
	}
	return b.prog, nil
}

func (b *Builder) buildGlobals(globals []*ast.Decl) error {
	for _, d := range globals {
		if d.IsConst && !d.HasInit {
			return fmt.Errorf("global %s: const requires an initializer", d.Name)
		}
		b.prog.Globals = append(b.prog.Globals, d)
		b.globalOf[d] = &Global{valueBase: valueBase{id: b.prog.NextValueID()}, Decl: d}
	}
	return nil
}

func (b *Builder) buildFunction(astFn *ast.Func) error {
	fn := b.prog.lookupUserFunc(astFn.Name)
	fn.ReturnsInt = astFn.ReturnsInt
	fn.Decl = astFn
	b.fn = fn
	b.allocaOf = make(map[*ast.Decl]*AllocaInst)

	entry := fn.NewBlock()
	fn.AddBlock(entry)
	b.cur = entry

	for pos, p := range astFn.Params {
		arg := &Argument{valueBase: valueBase{id: b.prog.NextValueID()}, Decl: p, Pos: pos}
		fn.Params = append(fn.Params, arg)
		if len(p.Dims) == 0 {
			// scalar parameter: materialize Alloca + Store so mem2reg can promote it
			al := &AllocaInst{instBase: instBase{id: b.nextInstID()}, Var: p}
			b.cur.Push(al)
			b.allocaOf[p] = al
			st := NewStore(b.nextInstID(), p, al, b.prog.Zero(), arg)
			b.cur.Push(st)
		}
		// array parameters bind directly to the Argument value; buildLVal
		// below looks it up as a base when it finds no Alloca/Global.
	}

	b.buildBlock(astFn.Body)
	b.ensureTerminator(astFn.ReturnsInt && astFn.Name != "main")

	return nil
}

func (b *Builder) nextInstID() int {
	// instruction ids are per-function and printing-only; reuse the
	// function's block counter space is wrong, so track separately.
	b.fn.instCnt++
	return b.fn.instCnt
}

func (b *Builder) buildBlock(blk *ast.Block) {
	for _, s := range blk.Stmts {
		if b.cur == nil {
			return // unreachable code after a terminator; drop it (DBE would anyway)
		}
		b.buildStmt(s)
	}
}

func (b *Builder) ensureTerminator(mainSpecialization bool) {
	if b.cur == nil {
		return
	}
	if b.cur.Terminator() != nil {
		return
	}
	_ = mainSpecialization
	b.cur.Push(NewReturn(b.nextInstID(), nil))
}

func (b *Builder) buildStmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.DeclStmt:
		for _, d := range s.Vars {
			b.buildLocalDecl(d)
		}
	case *ast.Assign:
		val := b.buildExpr(s.RHS)
		b.buildStoreLVal(s.LHS, val)
	case *ast.ExprStmt:
		b.buildExpr(s.X)
	case *ast.Dummy:
	case *ast.Block:
		b.buildBlock(s)
	case *ast.If:
		b.buildIf(s)
	case *ast.While:
		b.buildWhile(s)
	case *ast.Break:
		if len(b.loops) > 0 {
			l := b.loops[len(b.loops)-1]
			b.terminateJump(l.end)
		}
	case *ast.Continue:
		if len(b.loops) > 0 {
			l := b.loops[len(b.loops)-1]
			b.terminateJump(l.cond)
		}
	case *ast.Return:
		b.buildReturn(s)
	case *ast.GetIntStmt:
		call := NewCall(b.nextInstID(), b.prog.GetInt, nil)
		b.cur.Push(call)
		b.buildStoreLVal(s.LHS, call)
	case *ast.PrintfStmt:
		args := make([]Value, len(s.Args))
		for i, a := range s.Args {
			args[i] = b.buildExpr(a)
		}
		fn := b.prog.PrintfFuncFor(s.Fmt)
		b.cur.Push(NewCall(b.nextInstID(), fn, args))
	}
}

// terminateJump emits a Jump to target and marks the current block
// closed (subsequent statements in the same source block are dead).
func (b *Builder) terminateJump(target *BasicBlock) {
	b.cur.Push(NewJump(b.nextInstID(), target))
	b.cur = nil
}

func (b *Builder) buildReturn(s *ast.Return) {
	if b.fn.Name == "main" {
		// main is treated as returning void internally regardless of the
		// source's declared return type; the value expression is still
		// built so that any call inside it runs.
		if s.Val != nil {
			b.buildExpr(s.Val)
		}
		b.cur.Push(NewReturn(b.nextInstID(), nil))
		b.cur = nil
		return
	}
	var val Value
	if s.Val != nil {
		val = b.buildExpr(s.Val)
	}
	b.cur.Push(NewReturn(b.nextInstID(), val))
	b.cur = nil
}

func (b *Builder) buildLocalDecl(d *ast.Decl) {
	al := &AllocaInst{instBase: instBase{id: b.nextInstID()}, Var: d}
	b.cur.Push(al)
	b.allocaOf[d] = al
	if !d.HasInit {
		return
	}
	if len(d.Dims) == 0 {
		val := b.buildExpr(d.Init[0])
		b.cur.Push(NewStore(b.nextInstID(), d, al, b.prog.Zero(), val))
		return
	}
	for idx, e := range d.Init {
		val := b.buildExpr(e)
		off := b.prog.ConstOf(int32(idx))
		b.cur.Push(NewStore(b.nextInstID(), d, al, off, val))
	}
}

func (b *Builder) buildIf(s *ast.If) {
	thenBB := b.fn.NewBlock()
	endBB := b.fn.NewBlock()
	var elseBB *BasicBlock
	if s.Else != nil {
		elseBB = b.fn.NewBlock()
	} else {
		elseBB = endBB
	}
	b.buildCond(s.Cond, thenBB, elseBB)

	b.fn.AddBlock(thenBB)
	b.cur = thenBB
	b.buildStmt(s.Then)
	if b.cur != nil {
		b.terminateJump(endBB)
	}

	if s.Else != nil {
		b.fn.AddBlock(elseBB)
		b.cur = elseBB
		b.buildStmt(s.Else)
		if b.cur != nil {
			b.terminateJump(endBB)
		}
	}

	b.fn.AddBlock(endBB)
	b.cur = endBB
}

func (b *Builder) buildWhile(s *ast.While) {
	condBB := b.fn.NewBlock()
	bodyBB := b.fn.NewBlock()
	endBB := b.fn.NewBlock()

	b.terminateJump(condBB)

	b.fn.AddBlock(condBB)
	b.cur = condBB
	b.buildCond(s.Cond, bodyBB, endBB)

	b.fn.AddBlock(bodyBB)
	b.cur = bodyBB
	b.loops = append(b.loops, loopCtx{cond: condBB, end: endBB})
	b.buildStmt(s.Body)
	b.loops = b.loops[:len(b.loops)-1]
	if b.cur != nil {
		b.terminateJump(condBB)
	}

	b.fn.AddBlock(endBB)
	b.cur = endBB
}

// buildCond lowers a boolean-context expression directly to a Branch,
// handling && / || by short-circuiting into extra blocks rather than
// materializing an intermediate 0/1 value.
func (b *Builder) buildCond(e ast.Expr, then, els *BasicBlock) {
	if bin, ok := e.(*ast.Binary); ok {
		switch bin.Op {
		case ast.LAnd:
			mid := b.fn.NewBlock()
			b.buildCond(bin.LHS, mid, els)
			b.fn.AddBlock(mid)
			b.cur = mid
			b.buildCond(bin.RHS, then, els)
			return
		case ast.LOr:
			mid := b.fn.NewBlock()
			b.buildCond(bin.LHS, then, mid)
			b.fn.AddBlock(mid)
			b.cur = mid
			b.buildCond(bin.RHS, then, els)
			return
		}
	}
	cond := b.buildExpr(e)
	b.cur.Push(NewBranch(b.nextInstID(), cond, then, els))
	b.cur = nil
}

func (b *Builder) buildExpr(e ast.Expr) Value {
	switch e := e.(type) {
	case *ast.Number:
		return b.prog.ConstOf(e.Val)
	case *ast.LVal:
		return b.buildLoadLVal(e)
	case *ast.Unary:
		return b.buildUnary(e)
	case *ast.Binary:
		return b.buildBinary(e)
	case *ast.Call:
		args := make([]Value, len(e.Args))
		for i, a := range e.Args {
			args[i] = b.buildExpr(a)
		}
		fn := b.prog.lookupUserFunc(e.Func.Name)
		call := NewCall(b.nextInstID(), fn, args)
		b.cur.Push(call)
		return call
	}
	panic("ir: unhandled expression node")
}

func (b *Builder) buildUnary(e *ast.Unary) Value {
	x := b.buildExpr(e.X)
	switch e.Op {
	case ast.Neg:
		if c, ok := x.(*Const); ok {
			return b.prog.ConstOf(-c.Val)
		}
		bin := NewBinary(b.nextInstID(), Sub, b.prog.Zero(), x)
		b.cur.Push(bin)
		return bin
	case ast.Not:
		bin := NewBinary(b.nextInstID(), Eq, x, b.prog.Zero())
		b.cur.Push(bin)
		return bin
	}
	panic("ir: unhandled unary operator")
}

var binOpMap = map[ast.BinOp]BinOp{
	ast.Add: Add, ast.Sub: Sub, ast.Mul: Mul, ast.Div: Div, ast.Mod: Mod,
	ast.Lt: Lt, ast.Gt: Gt, ast.Le: Le, ast.Ge: Ge, ast.Eq: Eq, ast.Ne: Ne,
}

func (b *Builder) buildBinary(e *ast.Binary) Value {
	if e.Op == ast.LAnd || e.Op == ast.LOr {
		return b.buildShortCircuit(e)
	}
	lhs := b.buildExpr(e.LHS)
	rhs := b.buildExpr(e.RHS)
	op := binOpMap[e.Op]

	if lc, ok := lhs.(*Const); ok {
		if rc, ok := rhs.(*Const); ok {
			return b.prog.ConstOf(foldConst(op, lc.Val, rc.Val))
		}
	}
	if v, ok := identitySimplify(b.prog, op, lhs, rhs); ok {
		return v
	}

	bin := NewBinary(b.nextInstID(), op, lhs, rhs)
	b.cur.Push(bin)
	return bin
}

// buildShortCircuit materializes a 0/1 value for `a && b` / `a || b`
// used in a non-boolean context (e.g. assigned to a variable), via the
// two-block-plus-phi shape specified for boolean-context lowering.
func (b *Builder) buildShortCircuit(e *ast.Binary) Value {
	evalB := b.fn.NewBlock()
	end := b.fn.NewBlock()

	lhs := b.buildExpr(e.LHS)
	startBB := b.cur
	var shortCircuitVal int32
	if e.Op == ast.LAnd {
		shortCircuitVal = 0
		b.cur.Push(NewBranch(b.nextInstID(), lhs, evalB, end))
	} else {
		shortCircuitVal = 1
		b.cur.Push(NewBranch(b.nextInstID(), lhs, end, evalB))
	}
	b.cur = nil

	b.fn.AddBlock(evalB)
	b.cur = evalB
	rhs := b.buildExpr(e.RHS)
	// normalize rhs to 0/1 via `rhs != 0`
	norm := NewBinary(b.nextInstID(), Ne, rhs, b.prog.Zero())
	b.cur.Push(norm)
	rhsBB := b.cur
	b.terminateJump(end)

	b.fn.AddBlock(end)
	b.cur = end
	phi := NewPhi(b.nextInstID())
	phi.Push(b.prog.ConstOf(shortCircuitVal), startBB)
	phi.Push(norm, rhsBB)
	b.cur.PushFront(phi)
	return phi
}

// buildLoadLVal reads the current value of an LVal, indexing through
// GEP for arrays.
func (b *Builder) buildLoadLVal(lv *ast.LVal) Value {
	base, off, decl := b.lvalAddress(lv)
	if len(lv.Dims) < len(lv.Var.Dims) {
		// a partially-indexed array reference decays to its address
		// (e.g. passing `a[i]` of a 2-D array as a row pointer argument)
		gep := NewGEP(b.nextInstID(), decl, base, off, rowStride(lv.Var, len(lv.Dims)))
		b.cur.Push(gep)
		return gep
	}
	ld := NewLoad(b.nextInstID(), decl, base, off)
	b.cur.Push(ld)
	return ld
}

func (b *Builder) buildStoreLVal(lv *ast.LVal, val Value) {
	base, off, decl := b.lvalAddress(lv)
	b.cur.Push(NewStore(b.nextInstID(), decl, base, off, val))
}

// lvalAddress computes the (base, elementOffset) pair addressing lv,
// folding nested dimensions into a single element offset via repeated
// multiply-add against each dimension's row stride.
func (b *Builder) lvalAddress(lv *ast.LVal) (Value, Value, *ast.Decl) {
	d := lv.Var
	base := b.baseOf(d)
	if len(d.Dims) == 0 {
		return base, b.prog.Zero(), d
	}
	var off Value = b.prog.Zero()
	for i, idxExpr := range lv.Dims {
		idx := b.buildExpr(idxExpr)
		stride := rowStride(d, i)
		term := idx
		if stride != 1 {
			term = b.mulConst(idx, int32(stride))
		}
		off = b.addValues(off, term)
	}
	return base, off, d
}

func rowStride(d *ast.Decl, dimIndex int) int {
	stride := 1
	for i := dimIndex + 1; i < len(d.Dims); i++ {
		if d.Dims[i] > 0 {
			stride *= d.Dims[i]
		}
	}
	return stride
}

func (b *Builder) mulConst(v Value, k int32) Value {
	if c, ok := v.(*Const); ok {
		return b.prog.ConstOf(c.Val * k)
	}
	bin := NewBinary(b.nextInstID(), Mul, v, b.prog.ConstOf(k))
	b.cur.Push(bin)
	return bin
}

func (b *Builder) addValues(a, c Value) Value {
	if ac, ok := a.(*Const); ok {
		if cc, ok := c.(*Const); ok {
			return b.prog.ConstOf(ac.Val + cc.Val)
		}
		if ac.Val == 0 {
			return c
		}
	}
	bin := NewBinary(b.nextInstID(), Add, a, c)
	b.cur.Push(bin)
	return bin
}

func (b *Builder) baseOf(d *ast.Decl) Value {
	if al, ok := b.allocaOf[d]; ok {
		return al
	}
	if g, ok := b.globalOf[d]; ok {
		return g
	}
	for _, arg := range b.fn.Params {
		if arg.Decl == d {
			return arg
		}
	}
	panic("ir: reference to undeclared variable " + d.Name)
}

// lookupUserFunc is a placeholder resolved by the parser's symbol
// table; builder callers pass an ast.Call whose Func field is already
// resolved, so this simply looks the matching ir.Function up by name,
// creating the mapping lazily on first call (functions are built in
// source order, but forward calls are legal).
func (p *Program) lookupUserFunc(name string) *Function {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	// forward reference to a function not yet built: create a stub that
	// buildFunction will populate in place once it runs.
	f := &Function{Kind: UserFunc, Name: name}
	p.Funcs = append(p.Funcs, f)
	return f
}

func foldConst(op BinOp, l, r int32) int32 {
	switch op {
	case Add:
		return l + r
	case Sub:
		return l - r
	case Mul:
		return l * r
	case Div:
		if r == 0 {
			return 0
		}
		return l / r
	case Mod:
		if r == 0 {
			return 0
		}
		return l % r
	case Lt:
		return boolInt(l < r)
	case Gt:
		return boolInt(l > r)
	case Le:
		return boolInt(l <= r)
	case Ge:
		return boolInt(l >= r)
	case Eq:
		return boolInt(l == r)
	case Ne:
		return boolInt(l != r)
	}
	return 0
}

func boolInt(v bool) int32 {
	if v {
		return 1
	}
	return 0
}

// identitySimplify applies the build-time algebraic identities named
// in the external interface: x+0, x-0, 0*x/1*x, x/1, 0/y, x%1 -> 0.
// Side effects are ignored because the source subset has none in
// expression position.
func identitySimplify(prog *Program, op BinOp, lhs, rhs Value) (Value, bool) {
	rc, rConst := rhs.(*Const)
	lc, lConst := lhs.(*Const)
	switch op {
	case Add:
		if rConst && rc.Val == 0 {
			return lhs, true
		}
		if lConst && lc.Val == 0 {
			return rhs, true
		}
	case Sub:
		if rConst && rc.Val == 0 {
			return lhs, true
		}
	case Mul:
		if rConst && rc.Val == 1 {
			return lhs, true
		}
		if lConst && lc.Val == 1 {
			return rhs, true
		}
		if (rConst && rc.Val == 0) || (lConst && lc.Val == 0) {
			return prog.Zero(), true
		}
	case Div:
		if rConst && rc.Val == 1 {
			return lhs, true
		}
		if lConst && lc.Val == 0 {
			return prog.Zero(), true
		}
	case Mod:
		if rConst && rc.Val == 1 {
			return prog.Zero(), true
		}
	}
	return nil, false
}
