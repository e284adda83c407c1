package mips

import (
	"math"

	"sysyc/internal/diag"
	"sysyc/internal/ir"
)

// DataBase is the MARS default `.data` segment origin; global addresses
// are assigned starting here (§4.6's "data base 0x10010000").
const DataBase int32 = 0x10010000

// Lower builds the MIPS virtual-register program for prog (§4.4). It
// assumes prog has already been through internal/passes.Optimize (or
// OptimizeDisabled) so every function is reachable, every block ends
// in exactly one terminator, and (when optimization ran) relational
// branches have already been fused by br_induce.
func Lower(prog *ir.Program) *MProgram {
	mp := NewMProgram()
	assignGlobalAddresses(prog)
	for _, fn := range prog.Funcs {
		if fn.IsExternal() {
			continue
		}
		mp.AddFunc(lowerFunction(mp, fn))
	}
	return mp
}

// assignGlobalAddresses stamps every global Decl's Addr field (declared
// for exactly this purpose, unused until now) with its byte offset into
// the `.data` segment, in declaration order.
func assignGlobalAddresses(prog *ir.Program) {
	var offset int32
	for _, g := range prog.Globals {
		g.Addr = int(DataBase + offset)
		offset += int32(g.Size()) * 4
	}
}

// funcCtx holds the per-function lowering state: the value map from
// every SSA Value the builder has already lowered to its Operand, the
// cache of loaded-argument vregs (by parameter position), and the
// block-correspondence map needed to resolve branch/jump targets and
// phi-incoming edges.
type funcCtx struct {
	mf       *MFunc
	mp       *MProgram
	vals     map[ir.Value]Operand
	argVregs map[int]Operand
	blockOf  map[*ir.BasicBlock]*MBlock
	curBlock *MBlock
}

func lowerFunction(mp *MProgram, fn *ir.Function) *MFunc {
	mf := &MFunc{Name: fn.Name, IsMain: fn.Name == "main", ReturnsInt: fn.ReturnsInt, SSA: fn}
	ctx := &funcCtx{
		mf:       mf,
		mp:       mp,
		vals:     make(map[ir.Value]Operand),
		argVregs: make(map[int]Operand),
		blockOf:  make(map[*ir.BasicBlock]*MBlock, len(fn.Blocks)),
	}

	for _, b := range fn.Blocks {
		mb := mf.NewBlock()
		mb.SSA = b
		mb.LoopDepth = b.Depth
		mf.AddBlock(mb)
		ctx.blockOf[b] = mb
	}

	// Pre-pass: every phi gets its rendezvous vreg up front, so a use
	// that is lowered before the phi's own incoming-edge Moves are
	// inserted (any use in a block laid out before the phi's block, or
	// within the phi's own block) still resolves correctly.
	for _, b := range fn.Blocks {
		for _, phi := range b.Phis() {
			ctx.vals[phi] = mf.NewVReg()
		}
	}

	entry := ctx.blockOf[fn.Entry()]
	for pos := 0; pos < len(fn.Params) && pos < 4; pos++ {
		dst := mf.NewVReg()
		entry.Push(NewMove(dst, MReg(ArgRegs[pos])))
		ctx.argVregs[pos] = dst
	}

	for _, b := range fn.Blocks {
		mb := ctx.blockOf[b]
		ctx.curBlock = mb
		lowerBlockBody(ctx, mb, b)
	}

	resolvePhis(ctx, fn)
	wireSuccessors(fn, ctx.blockOf)
	return mf
}

func wireSuccessors(fn *ir.Function, blockOf map[*ir.BasicBlock]*MBlock) {
	for _, b := range fn.Blocks {
		mb := blockOf[b]
		for _, s := range b.Succs() {
			if s == nil {
				continue
			}
			ms := blockOf[s]
			mb.Succs = append(mb.Succs, ms)
			ms.Preds = append(ms.Preds, mb)
		}
	}
}

// resolvePhis implements §4.4's phi-resolution step. Every phi's
// result was already given a rendezvous vreg in lowerFunction's
// pre-pass; a literal identity Move at the top of the phi's own block
// would just be deleted by move_coalesce's `move r,r` rule, so it is
// never emitted -- every later read of the phi's value reads the
// rendezvous vreg directly.
func resolvePhis(ctx *funcCtx, fn *ir.Function) {
	for _, b := range fn.Blocks {
		for _, phi := range b.Phis() {
			dst := ctx.vals[phi]
			for _, inc := range phi.Incoming {
				if _, ok := inc.Val.Value().(*ir.Undef); ok {
					continue
				}
				src := resolve(ctx, inc.Val.Value())
				fromMB := ctx.blockOf[inc.From]
				move := NewMove(dst, src)
				if term := fromMB.Terminator(); term != nil {
					fromMB.InsertBefore(term, move)
				} else {
					fromMB.Push(move)
				}
			}
		}
	}
}

func fallthroughOf(mf *MFunc, mb *MBlock) *MBlock {
	idx := mb.ID + 1
	if idx < len(mf.Blocks) {
		return mf.Blocks[idx]
	}
	return nil
}

// resolve looks up the Operand a previously-lowered SSA Value now maps
// to, computing it directly for the Value kinds that need no
// instruction of their own (constants, globals).
func resolve(ctx *funcCtx, val ir.Value) Operand {
	switch v := val.(type) {
	case *ir.Const:
		return Imm(v.Val)
	case *ir.Global:
		return Imm(int32(v.Decl.Addr))
	case *ir.Argument:
		return ctx.resolveArgument(v)
	case *ir.Undef:
		diag.Fatalf("mips: read of Undef value outside phi resolution")
	case ir.Instruction:
		if op, ok := ctx.vals[v]; ok {
			return op
		}
		diag.Fatalf("mips: use of instruction before it was lowered: %s", v.String())
	default:
		diag.Fatalf("mips: unresolvable SSA value")
	}
	return Operand{}
}

// resolveArgument returns the vreg caching parameter pos's value,
// loading it from the stack on first use if it is beyond the first
// four (which were moved out of $a0-$a3 eagerly in the entry block).
func (ctx *funcCtx) resolveArgument(arg *ir.Argument) Operand {
	if op, ok := ctx.argVregs[arg.Pos]; ok {
		return op
	}
	dst := ctx.mf.NewVReg()
	// the offset starts relative to the caller's spill area (pos-4
	// words past the callee's own frame, matching how the caller lays
	// out args beyond the first four -- see lowerCall); reg_restore
	// (§4.5) patches in the callee's frame size once known.
	ld := NewLoad(dst, MReg(RegSp), int32((arg.Pos-4)*4))
	ctx.curBlock.Push(ld)
	ctx.mf.ArgLoads = append(ctx.mf.ArgLoads, ld)
	ctx.argVregs[arg.Pos] = dst
	return dst
}

// ensureReg materializes a Const operand into a fresh vreg via `li`;
// registers pass through unchanged. Used wherever a MIPS instruction
// has no immediate form for the operand's position (the first operand
// of slt/sltu, the dividend/divisor of mult/div, ...).
func ensureReg(ctx *funcCtx, mb *MBlock, op Operand) Operand {
	if !op.IsConst() {
		return op
	}
	reg := ctx.mf.NewVReg()
	mb.Push(NewMove(reg, op))
	return reg
}

func lowerBlockBody(ctx *funcCtx, mb *MBlock, b *ir.BasicBlock) {
	for _, inst := range b.Instructions() {
		switch v := inst.(type) {
		case *ir.PhiInst:
			// resolved by resolvePhis once every block has been lowered
		case *ir.AllocaInst:
			lowerAlloca(ctx, mb, v)
		case *ir.BinaryInst:
			lowerBinary(ctx, mb, v)
		case *ir.LoadInst:
			lowerLoad(ctx, mb, v)
		case *ir.StoreInst:
			lowerStore(ctx, mb, v)
		case *ir.GEPInst:
			lowerGEP(ctx, mb, v)
		case *ir.CallInst:
			lowerCall(ctx, mb, v)
		case *ir.BranchInst:
			lowerBranch(ctx, mb, v)
		case *ir.BinaryBranchInst:
			lowerBinaryBranch(ctx, mb, v)
		case *ir.JumpInst:
			lowerJump(ctx, mb, v)
		case *ir.ReturnInst:
			lowerReturn(ctx, mb, v)
		default:
			diag.Fatalf("mips: unhandled SSA instruction kind")
		}
	}
}

func lowerAlloca(ctx *funcCtx, mb *MBlock, inst *ir.AllocaInst) {
	dst := ctx.mf.NewVReg()
	add := NewBinary(OpAdd, dst, MReg(RegSp), Imm(int32(ctx.mf.AllocaNum*4)))
	mb.Push(add)
	ctx.mf.AllocaAdds = append(ctx.mf.AllocaAdds, add)
	ctx.mf.AllocaNum += inst.Var.Size()
	ctx.vals[inst] = dst
}

func lowerLoad(ctx *funcCtx, mb *MBlock, inst *ir.LoadInst) {
	base, off := lowerAddr(ctx, mb, inst.Base.Value(), inst.Off.Value(), 4)
	dst := ctx.mf.NewVReg()
	mb.Push(NewLoad(dst, base, off))
	ctx.vals[inst] = dst
}

func lowerStore(ctx *funcCtx, mb *MBlock, inst *ir.StoreInst) {
	val := resolve(ctx, inst.Val.Value())
	base, off := lowerAddr(ctx, mb, inst.Base.Value(), inst.Off.Value(), 4)
	mb.Push(NewStore(val, base, off))
}

func lowerGEP(ctx *funcCtx, mb *MBlock, inst *ir.GEPInst) {
	baseOp := resolve(ctx, inst.Base.Value())
	offOp := resolve(ctx, inst.Off.Value())
	unit := int32(inst.Size) * 4
	if baseOp.IsConst() && offOp.IsConst() {
		ctx.vals[inst] = Imm(baseOp.Val + offOp.Val*unit)
		return
	}
	ctx.vals[inst] = materializeAddr(ctx, mb, baseOp, offOp, unit)
}

// lowerAddr implements §4.4's Load/Store addressing contract: a
// both-Const address folds to a $gp-relative (or, failing that,
// `li`-materialized) immediate; anything else is fully precomputed
// into a single base register with offset 0. $gp, when loaded at all,
// holds DataBase exactly (internal/emit emits `lui $gp, DataBase>>16`,
// and DataBase's low 16 bits are zero), so the field an lw/sw can
// actually use as a $gp-relative offset is `total - DataBase`, not the
// absolute address itself.
func lowerAddr(ctx *funcCtx, mb *MBlock, baseVal, offVal ir.Value, unit int32) (Operand, int32) {
	baseOp := resolve(ctx, baseVal)
	offOp := resolve(ctx, offVal)
	if baseOp.IsConst() && offOp.IsConst() {
		total := baseOp.Val + offOp.Val*unit
		rel := total - DataBase
		if (Operand{Kind: Const, Val: rel}).IsImm() {
			ctx.mp.GpUsed = true
			return MReg(RegGp), rel
		}
		reg := ctx.mf.NewVReg()
		mb.Push(NewMove(reg, Imm(total)))
		return reg, 0
	}
	return materializeAddr(ctx, mb, baseOp, offOp, unit), 0
}

func materializeAddr(ctx *funcCtx, mb *MBlock, baseOp, offOp Operand, unit int32) Operand {
	var scaled Operand
	switch {
	case offOp.IsConst():
		scaled = Imm(offOp.Val * unit)
	default:
		if log, ok := isPowerOfTwo(unit); ok {
			shifted := ctx.mf.NewVReg()
			mb.Push(NewShift(OpSll, shifted, offOp, Imm(log)))
			scaled = shifted
		} else {
			unitReg := ctx.mf.NewVReg()
			mb.Push(NewMove(unitReg, Imm(unit)))
			tmp := ctx.mf.NewVReg()
			mb.Push(NewBinary(OpMul, tmp, offOp, unitReg))
			scaled = tmp
		}
	}
	if scaled.IsConst() && !scaled.IsImm() {
		reg := ctx.mf.NewVReg()
		mb.Push(NewMove(reg, scaled))
		scaled = reg
	}
	baseReg := baseOp
	if baseOp.IsConst() {
		baseReg = ctx.mf.NewVReg()
		mb.Push(NewMove(baseReg, baseOp))
	}
	dst := ctx.mf.NewVReg()
	mb.Push(NewBinary(OpAdd, dst, baseReg, scaled))
	return dst
}

func lowerJump(ctx *funcCtx, mb *MBlock, inst *ir.JumpInst) {
	target := ctx.blockOf[inst.To]
	if fallthroughOf(ctx.mf, mb) == target {
		return
	}
	mb.Push(NewJump(target))
}

func lowerReturn(ctx *funcCtx, mb *MBlock, inst *ir.ReturnInst) {
	if inst.Val != nil {
		val := resolve(ctx, inst.Val.Value())
		mb.Push(NewMove(MReg(RegV0), val))
	}
	mb.Push(NewReturn(VoidOperand))
}

func lowerBranch(ctx *funcCtx, mb *MBlock, inst *ir.BranchInst) {
	cond := ensureReg(ctx, mb, resolve(ctx, inst.Cond.Value()))
	thenB := ctx.blockOf[inst.Then]
	elseB := ctx.blockOf[inst.Else]
	switch fallthroughOf(ctx.mf, mb) {
	case elseB:
		mb.Push(NewBranchZero(BzNe, cond, thenB))
	case thenB:
		mb.Push(NewBranchZero(BzEq, cond, elseB))
	default:
		mb.Push(NewBranchZero(BzNe, cond, thenB))
		mb.Push(NewJump(elseB))
	}
}

func lowerBinaryBranch(ctx *funcCtx, mb *MBlock, inst *ir.BinaryBranchInst) {
	lhs := resolve(ctx, inst.LHS.Value())
	rhs := resolve(ctx, inst.RHS.Value())
	thenB := ctx.blockOf[inst.Then]
	elseB := ctx.blockOf[inst.Else]
	lowerRelBranch(ctx, mb, inst.Op, lhs, rhs, thenB, elseB)
}

// lowerRelBranch emits a fused compare-and-branch for a relational
// condition, choosing whichever of beq/bne (both operands are
// registers) or a slt-then-branch-on-zero sequence (Lt/Ge/Le/Gt, which
// MIPS has no two-register branch form for) is needed, and inverting
// the sense when doing so lets the branch fall through instead of
// jumping (§4.4's "Branch / Jump" contract).
func lowerRelBranch(ctx *funcCtx, mb *MBlock, relOp ir.RelOp, lhs, rhs Operand, thenB, elseB *MBlock) {
	ft := fallthroughOf(ctx.mf, mb)

	if relOp == ir.REq || relOp == ir.RNe {
		op := BrEq
		if relOp == ir.RNe {
			op = BrNe
		}
		lhs = ensureReg(ctx, mb, lhs)
		rhs = ensureReg(ctx, mb, rhs)
		switch ft {
		case elseB:
			mb.Push(NewBranch(op, lhs, rhs, thenB))
		case thenB:
			mb.Push(NewBranch(op.Invert(), lhs, rhs, elseB))
		default:
			mb.Push(NewBranch(op, lhs, rhs, thenB))
			mb.Push(NewJump(elseB))
		}
		return
	}

	temp := ctx.mf.NewVReg()
	nonZeroMeansTrue := true
	switch relOp {
	case ir.RLt:
		mb.Push(NewBinary(OpLt, temp, ensureReg(ctx, mb, lhs), rhs))
	case ir.RGe:
		mb.Push(NewBinary(OpLt, temp, ensureReg(ctx, mb, lhs), rhs))
		nonZeroMeansTrue = false
	case ir.RLe:
		mb.Push(NewBinary(OpLt, temp, ensureReg(ctx, mb, rhs), lhs))
		nonZeroMeansTrue = false
	case ir.RGt:
		mb.Push(NewBinary(OpLt, temp, ensureReg(ctx, mb, rhs), lhs))
	}
	bz := BzNe
	if !nonZeroMeansTrue {
		bz = BzEq
	}
	switch ft {
	case elseB:
		mb.Push(NewBranchZero(bz, temp, thenB))
	case thenB:
		mb.Push(NewBranchZero(bz.Invert(), temp, elseB))
	default:
		mb.Push(NewBranchZero(bz, temp, thenB))
		mb.Push(NewJump(elseB))
	}
}

func lowerCall(ctx *funcCtx, mb *MBlock, inst *ir.CallInst) {
	switch inst.Func.Kind {
	case ir.GetIntFunc:
		lowerGetInt(ctx, mb, inst)
	case ir.PrintfFunc:
		lowerPrintf(ctx, mb, inst)
	default:
		lowerUserCall(ctx, mb, inst)
	}
}

func lowerGetInt(ctx *funcCtx, mb *MBlock, inst *ir.CallInst) {
	mb.Push(NewMove(MReg(RegV0), Imm(5)))
	mb.Push(NewSys(5))
	dst := ctx.mf.NewVReg()
	mb.Push(NewMove(dst, MReg(RegV0)))
	ctx.vals[inst] = dst
}

func lowerUserCall(ctx *funcCtx, mb *MBlock, inst *ir.CallInst) {
	for i, a := range inst.Args {
		val := resolve(ctx, a.Value())
		if i < 4 {
			mb.Push(NewMove(MReg(ArgRegs[i]), val))
		} else {
			mb.Push(NewStore(val, MReg(RegSp), int32((i-4)*4)))
		}
	}
	if extra := len(inst.Args) - 4; extra > ctx.mf.MaxCallArgNum {
		ctx.mf.MaxCallArgNum = extra
	}
	mb.Push(NewCall(inst.Func.Name, VoidOperand))
	if inst.Func.ReturnsInt {
		dst := ctx.mf.NewVReg()
		mb.Push(NewMove(dst, MReg(RegV0)))
		ctx.vals[inst] = dst
	}
}

// lowerPrintf scans the call's literal format string (already
// escape-resolved by the parser, per ast.PrintfStmt's Fmt field, so a
// "\n" here is one real newline byte, not two raw characters; printf's
// argument list was already built in source order by internal/ir, so
// Args[i] is the i-th %d's value) emitting a run of syscalls: 11 for a
// bare "\n" segment, 4 for any other non-empty literal run via the
// interned string table, 1 for each %d.
func lowerPrintf(ctx *funcCtx, mb *MBlock, inst *ir.CallInst) {
	runes := []rune(inst.Func.Fmt)
	argIdx := 0
	var lit []rune

	flush := func() {
		if len(lit) == 0 {
			return
		}
		s := string(lit)
		lit = lit[:0]
		if s == "\n" {
			mb.Push(NewMove(MReg(RegA0), Imm(int32('\n'))))
			mb.Push(NewMove(MReg(RegV0), Imm(11)))
			mb.Push(NewSys(11))
			return
		}
		id := ctx.mp.InternString(s)
		mb.Push(NewLoadStr(MReg(RegA0), id))
		mb.Push(NewMove(MReg(RegV0), Imm(4)))
		mb.Push(NewSys(4))
	}

	for i := 0; i < len(runes); i++ {
		if runes[i] == '%' && i+1 < len(runes) && runes[i+1] == 'd' {
			flush()
			val := resolve(ctx, inst.Args[argIdx].Value())
			argIdx++
			mb.Push(NewMove(MReg(RegA0), val))
			mb.Push(NewMove(MReg(RegV0), Imm(1)))
			mb.Push(NewSys(1))
			i++
			continue
		}
		lit = append(lit, runes[i])
	}
	flush()
}

func lowerBinary(ctx *funcCtx, mb *MBlock, inst *ir.BinaryInst) {
	lhs := resolve(ctx, inst.LHS.Value())
	rhs := resolve(ctx, inst.RHS.Value())

	if lhs.IsConst() && rhs.IsConst() {
		ctx.vals[inst] = Imm(foldBinOp(inst.Op, lhs.Val, rhs.Val))
		return
	}

	switch inst.Op {
	case ir.Add:
		ctx.vals[inst] = lowerAddSub(ctx, mb, OpAdd, lhs, rhs, true)
	case ir.Sub:
		ctx.vals[inst] = lowerAddSub(ctx, mb, OpSub, lhs, rhs, false)
	case ir.Mul:
		ctx.vals[inst] = lowerMul(ctx, mb, lhs, rhs)
	case ir.Div:
		ctx.vals[inst] = lowerDiv(ctx, mb, lhs, rhs)
	case ir.Mod:
		ctx.vals[inst] = lowerMod(ctx, mb, lhs, rhs)
	default:
		ctx.vals[inst] = lowerRelValue(ctx, mb, inst.Op, lhs, rhs)
	}
}

func foldBinOp(op ir.BinOp, l, r int32) int32 {
	switch op {
	case ir.Add:
		return l + r
	case ir.Sub:
		return l - r
	case ir.Mul:
		return l * r
	case ir.Div:
		if r == 0 {
			return 0
		}
		return l / r
	case ir.Mod:
		if r == 0 {
			return 0
		}
		return l % r
	case ir.Lt:
		return boolInt(l < r)
	case ir.Gt:
		return boolInt(l > r)
	case ir.Le:
		return boolInt(l <= r)
	case ir.Ge:
		return boolInt(l >= r)
	case ir.Eq:
		return boolInt(l == r)
	case ir.Ne:
		return boolInt(l != r)
	}
	return 0
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// lowerAddSub lowers Add/Sub, putting a Const on the right when the op
// is commutative (Add) and materializing whichever operand still ends
// up Const where it is (a non-imm constant, or a Const left operand of
// Sub) into a register first.
func lowerAddSub(ctx *funcCtx, mb *MBlock, op BinOp, lhs, rhs Operand, commutative bool) Operand {
	if commutative && lhs.IsConst() && !rhs.IsConst() {
		lhs, rhs = rhs, lhs
	}
	dst := ctx.mf.NewVReg()

	if rhs.IsConst() {
		if op == OpSub {
			// x - INT_MIN: -INT_MIN does not fit in int32, so this can
			// never be folded into an add-the-negation; materialize
			// INT_MIN itself and subtract it directly.
			if rhs.Val == math.MinInt32 {
				reg := ctx.mf.NewVReg()
				mb.Push(NewMove(reg, rhs))
				mb.Push(NewBinary(OpSub, dst, ensureReg(ctx, mb, lhs), reg))
				return dst
			}
			neg := Imm(-rhs.Val)
			if neg.IsImm() {
				mb.Push(NewBinary(OpAdd, dst, ensureReg(ctx, mb, lhs), neg))
				return dst
			}
			reg := ctx.mf.NewVReg()
			mb.Push(NewMove(reg, rhs))
			mb.Push(NewBinary(OpSub, dst, ensureReg(ctx, mb, lhs), reg))
			return dst
		}
		if rhs.IsImm() {
			mb.Push(NewBinary(OpAdd, dst, ensureReg(ctx, mb, lhs), rhs))
			return dst
		}
		reg := ctx.mf.NewVReg()
		mb.Push(NewMove(reg, rhs))
		mb.Push(NewBinary(OpAdd, dst, ensureReg(ctx, mb, lhs), reg))
		return dst
	}

	mb.Push(NewBinary(op, dst, ensureReg(ctx, mb, lhs), rhs))
	return dst
}

func lowerMul(ctx *funcCtx, mb *MBlock, lhs, rhs Operand) Operand {
	if lhs.IsConst() && !rhs.IsConst() {
		lhs, rhs = rhs, lhs
	}
	dst := ctx.mf.NewVReg()
	if rhs.IsConst() {
		lhs = ensureReg(ctx, mb, lhs)
		switch rhs.Val {
		case 0:
			mb.Push(NewMove(dst, Imm(0)))
			return dst
		case 1:
			mb.Push(NewMove(dst, lhs))
			return dst
		case -1:
			mb.Push(NewBinary(OpSub, dst, Zero, lhs))
			return dst
		}
		if log, ok := isPowerOfTwo(rhs.Val); ok {
			mb.Push(NewShift(OpSll, dst, lhs, Imm(log)))
			return dst
		}
		if log, ok := isPowerOfTwo(-rhs.Val); ok {
			shifted := ctx.mf.NewVReg()
			mb.Push(NewShift(OpSll, shifted, lhs, Imm(log)))
			mb.Push(NewBinary(OpSub, dst, Zero, shifted))
			return dst
		}
		reg := ctx.mf.NewVReg()
		mb.Push(NewMove(reg, rhs))
		mb.Push(NewBinary(OpMul, dst, lhs, reg))
		return dst
	}
	mb.Push(NewBinary(OpMul, dst, ensureReg(ctx, mb, lhs), rhs))
	return dst
}

func lowerDiv(ctx *funcCtx, mb *MBlock, lhs, rhs Operand) Operand {
	dst := ctx.mf.NewVReg()
	if rhs.IsConst() {
		lhs = ensureReg(ctx, mb, lhs)
		switch rhs.Val {
		case 1:
			mb.Push(NewMove(dst, lhs))
			return dst
		case -1:
			mb.Push(NewBinary(OpSub, dst, Zero, lhs))
			return dst
		}
		if log, ok := isPowerOfTwo(rhs.Val); ok {
			lowerDivPow2(ctx, mb, dst, lhs, log)
			return dst
		}
		if log, ok := isPowerOfTwo(-rhs.Val); ok {
			tmp := ctx.mf.NewVReg()
			lowerDivPow2(ctx, mb, tmp, lhs, log)
			mb.Push(NewBinary(OpSub, dst, Zero, tmp))
			return dst
		}
		lowerDivMagic(ctx, mb, dst, lhs, rhs.Val)
		return dst
	}
	mb.Push(NewDiv(ensureReg(ctx, mb, lhs), rhs))
	mb.Push(NewMFLo(dst))
	return dst
}

// lowerDivPow2 computes the round-toward-zero correction signed
// division by 2^log requires: negative dividends need 2^log-1 added
// before the arithmetic shift, positive ones need nothing.
func lowerDivPow2(ctx *funcCtx, mb *MBlock, dst, lhs Operand, log int32) {
	if log == 0 {
		mb.Push(NewMove(dst, lhs))
		return
	}
	sign := ctx.mf.NewVReg()
	mb.Push(NewShift(OpSra, sign, lhs, Imm(31)))
	mb.Push(NewShift(OpSrl, sign, sign, Imm(32-log)))
	adj := ctx.mf.NewVReg()
	mb.Push(NewBinary(OpAdd, adj, lhs, sign))
	mb.Push(NewShift(OpSra, dst, adj, Imm(log)))
}

func lowerDivMagic(ctx *funcCtx, mb *MBlock, dst, lhs Operand, divisor int32) {
	m, shift := magicSigned(divisor)
	mReg := ctx.mf.NewVReg()
	mb.Push(NewMove(mReg, Imm(m)))
	mb.Push(NewMult(lhs, mReg))
	hi := ctx.mf.NewVReg()
	mb.Push(NewMFHi(hi))
	switch {
	case divisor > 0 && m < 0:
		mb.Push(NewBinary(OpAdd, hi, hi, lhs))
	case divisor < 0 && m > 0:
		mb.Push(NewBinary(OpSub, hi, hi, lhs))
	}
	if shift > 0 {
		mb.Push(NewShift(OpSra, hi, hi, Imm(shift)))
	}
	signBit := ctx.mf.NewVReg()
	mb.Push(NewShift(OpSrl, signBit, hi, Imm(31)))
	mb.Push(NewBinary(OpAdd, dst, hi, signBit))
}

func lowerMod(ctx *funcCtx, mb *MBlock, lhs, rhs Operand) Operand {
	dst := ctx.mf.NewVReg()
	if rhs.IsConst() {
		q := lowerDiv(ctx, mb, lhs, rhs)
		prod := lowerMul(ctx, mb, q, rhs)
		mb.Push(NewBinary(OpSub, dst, ensureReg(ctx, mb, lhs), prod))
		return dst
	}
	mb.Push(NewDiv(ensureReg(ctx, mb, lhs), rhs))
	mb.Push(NewMFHi(dst))
	return dst
}

// lowerRelValue materializes a relational comparison's 0/1 result
// (used when the Binary is not fused into a Branch by br_induce --
// either optimization is disabled, or the value genuinely has more
// than one use, e.g. `int c = a < b; if (c) ... use(c) ...`).
func lowerRelValue(ctx *funcCtx, mb *MBlock, op ir.BinOp, lhs, rhs Operand) Operand {
	dst := ctx.mf.NewVReg()
	switch op {
	case ir.Lt:
		mb.Push(NewBinary(OpLt, dst, ensureReg(ctx, mb, lhs), rhs))
	case ir.Gt:
		mb.Push(NewBinary(OpLt, dst, ensureReg(ctx, mb, rhs), lhs))
	case ir.Le:
		mb.Push(NewBinary(OpLt, dst, ensureReg(ctx, mb, rhs), lhs))
		mb.Push(NewBinary(OpXor, dst, dst, Imm(1)))
	case ir.Ge:
		mb.Push(NewBinary(OpLt, dst, ensureReg(ctx, mb, lhs), rhs))
		mb.Push(NewBinary(OpXor, dst, dst, Imm(1)))
	case ir.Ne:
		t := ctx.mf.NewVReg()
		mb.Push(NewBinary(OpXor, t, ensureReg(ctx, mb, lhs), rhs))
		mb.Push(NewBinary(OpLtu, dst, Zero, t))
	case ir.Eq:
		t := ctx.mf.NewVReg()
		mb.Push(NewBinary(OpXor, t, ensureReg(ctx, mb, lhs), rhs))
		mb.Push(NewBinary(OpLtu, dst, Zero, t))
		mb.Push(NewBinary(OpXor, dst, dst, Imm(1)))
	}
	return dst
}
