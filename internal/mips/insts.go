package mips

import "strconv"

// MInst is any MIPS instruction. Unlike internal/ir.Instruction it
// carries no use-list: register operands are plain mutable fields, and
// Defs/Uses return pointers directly into them so internal/mipspasses
// (coalescing, the interference-graph builder, spill rewriting) can
// rewrite a register assignment in place without a RAUW-style walk.
type MInst interface {
	Block() *MBlock
	setBlock(*MBlock)
	// Defs returns pointers to every operand this instruction writes.
	Defs() []*Operand
	// Uses returns pointers to every operand this instruction reads.
	Uses() []*Operand
	IsTerminator() bool
	// IsPure mirrors internal/ir's notion for the MIPS-level DCE pass
	// (§4.5): Binary, Shift, Move, MFLo/MFHi, Load, LoadStr are pure.
	IsPure() bool
	String() string

	next() MInst
	prev() MInst
	setNext(MInst)
	setPrev(MInst)
}

type instBase struct {
	bb           *MBlock
	prevI, nextI MInst
}

func (i *instBase) Block() *MBlock      { return i.bb }
func (i *instBase) setBlock(b *MBlock)  { i.bb = b }
func (i *instBase) next() MInst         { return i.nextI }
func (i *instBase) prev() MInst         { return i.prevI }
func (i *instBase) setNext(n MInst)     { i.nextI = n }
func (i *instBase) setPrev(p MInst)     { i.prevI = p }
func (i *instBase) IsTerminator() bool  { return false }
func (i *instBase) IsPure() bool        { return false }

// BinOp is a MIPS register-register (or register-immediate) ALU op.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpLt  // slt
	OpLtu // sltu
	OpXor
	OpMul
)

func (op BinOp) String() string {
	return [...]string{"add", "sub", "slt", "sltu", "xor", "mul"}[op]
}

// BinaryInst computes Dst = Lhs op Rhs. Rhs may be a Const (emitted as
// the immediate form, e.g. addi/slti) when it fits 16 bits; the
// lowerer never produces a non-imm Const here (it precomputes into a
// register first, per §4.4's Load/Store/GEP contracts applied
// uniformly to Binary).
type BinaryInst struct {
	instBase
	Op       BinOp
	Dst      Operand
	Lhs, Rhs Operand
}

func NewBinary(op BinOp, dst, lhs, rhs Operand) *BinaryInst {
	return &BinaryInst{Op: op, Dst: dst, Lhs: lhs, Rhs: rhs}
}

func (i *BinaryInst) Defs() []*Operand { return []*Operand{&i.Dst} }
func (i *BinaryInst) Uses() []*Operand {
	if i.Rhs.IsConst() {
		return []*Operand{&i.Lhs}
	}
	return []*Operand{&i.Lhs, &i.Rhs}
}
func (i *BinaryInst) IsPure() bool { return true }
func (i *BinaryInst) String() string {
	return i.Op.String() + " " + opStr(i.Dst) + ", " + opStr(i.Lhs) + ", " + opStr(i.Rhs)
}

// ShiftOp is a MIPS shift.
type ShiftOp int

const (
	OpSll ShiftOp = iota // logical left
	OpSrl                // logical right
	OpSra                // arithmetic right
)

func (op ShiftOp) String() string { return [...]string{"sll", "srl", "sra"}[op] }

// ShiftInst computes Dst = Src op Amt; Amt is a Const shift count or a
// register (sllv/srlv/srav), chosen by the emitter from Amt.Kind.
type ShiftInst struct {
	instBase
	Op       ShiftOp
	Dst, Src Operand
	Amt      Operand
}

func NewShift(op ShiftOp, dst, src, amt Operand) *ShiftInst {
	return &ShiftInst{Op: op, Dst: dst, Src: src, Amt: amt}
}

func (i *ShiftInst) Defs() []*Operand { return []*Operand{&i.Dst} }
func (i *ShiftInst) Uses() []*Operand {
	if i.Amt.IsConst() {
		return []*Operand{&i.Src}
	}
	return []*Operand{&i.Src, &i.Amt}
}
func (i *ShiftInst) IsPure() bool   { return true }
func (i *ShiftInst) String() string { return i.Op.String() + " " + opStr(i.Dst) + ", " + opStr(i.Src) + ", " + opStr(i.Amt) }

// MoveInst is either a register-register move or a load-immediate
// (`li`), distinguished by Src.Kind.
type MoveInst struct {
	instBase
	Dst, Src Operand
}

func NewMove(dst, src Operand) *MoveInst { return &MoveInst{Dst: dst, Src: src} }

func (i *MoveInst) Defs() []*Operand { return []*Operand{&i.Dst} }
func (i *MoveInst) Uses() []*Operand {
	if i.Src.IsConst() {
		return nil
	}
	return []*Operand{&i.Src}
}
func (i *MoveInst) IsPure() bool { return true }
func (i *MoveInst) String() string {
	if i.Src.IsConst() {
		return "li " + opStr(i.Dst) + ", " + opStr(i.Src)
	}
	return "move " + opStr(i.Dst) + ", " + opStr(i.Src)
}

// MultInst computes the 64-bit product of Lhs*Rhs into hi/lo, read out
// by a following MFLoInst, or by MFHiInst where magic-number division
// takes the high word.
type MultInst struct {
	instBase
	Lhs, Rhs Operand
}

func NewMult(lhs, rhs Operand) *MultInst { return &MultInst{Lhs: lhs, Rhs: rhs} }
func (i *MultInst) Defs() []*Operand     { return nil }
func (i *MultInst) Uses() []*Operand     { return []*Operand{&i.Lhs, &i.Rhs} }
func (i *MultInst) String() string       { return "mult " + opStr(i.Lhs) + ", " + opStr(i.Rhs) }

// DivInst computes Lhs/Rhs (quotient in lo, remainder in hi).
type DivInst struct {
	instBase
	Lhs, Rhs Operand
}

func NewDiv(lhs, rhs Operand) *DivInst { return &DivInst{Lhs: lhs, Rhs: rhs} }
func (i *DivInst) Defs() []*Operand    { return nil }
func (i *DivInst) Uses() []*Operand    { return []*Operand{&i.Lhs, &i.Rhs} }
func (i *DivInst) String() string      { return "div " + opStr(i.Lhs) + ", " + opStr(i.Rhs) }

// MFHiInst and MFLoInst read the implicit hi/lo registers left by Mult
// or Div into a normal register.
type MFHiInst struct {
	instBase
	Dst Operand
}
type MFLoInst struct {
	instBase
	Dst Operand
}

func NewMFHi(dst Operand) *MFHiInst { return &MFHiInst{Dst: dst} }
func NewMFLo(dst Operand) *MFLoInst { return &MFLoInst{Dst: dst} }

func (i *MFHiInst) Defs() []*Operand { return []*Operand{&i.Dst} }
func (i *MFHiInst) Uses() []*Operand { return nil }
func (i *MFHiInst) IsPure() bool     { return true }
func (i *MFHiInst) String() string   { return "mfhi " + opStr(i.Dst) }

func (i *MFLoInst) Defs() []*Operand { return []*Operand{&i.Dst} }
func (i *MFLoInst) Uses() []*Operand { return nil }
func (i *MFLoInst) IsPure() bool     { return true }
func (i *MFLoInst) String() string   { return "mflo " + opStr(i.Dst) }

// CallInst calls a user function by name. Args have already been
// placed into $a0-$a3 (and, for args beyond 4, spilled to
// [sp+(i-4)*4]) by Move/Store instructions the lowerer emitted just
// before this one; Dst is VoidOperand for a void callee.
type CallInst struct {
	instBase
	Target string
	Dst    Operand
}

func NewCall(target string, dst Operand) *CallInst { return &CallInst{Target: target, Dst: dst} }

func (i *CallInst) Defs() []*Operand {
	if i.Dst.IsVoid() {
		return nil
	}
	return []*Operand{&i.Dst}
}
func (i *CallInst) Uses() []*Operand { return nil }
func (i *CallInst) String() string   { return "jal " + i.Target }

// BranchOp is a register-register conditional branch relation; Invert
// flips it via XOR 1, matching internal/ir.RelOp's encoding.
type BranchOp int

const (
	BrEq BranchOp = iota
	BrNe
)

func (op BranchOp) Invert() BranchOp { return op ^ 1 }
func (op BranchOp) String() string   { return [...]string{"beq", "bne"}[op] }

// BranchInst is `if Lhs op Rhs goto To` (register-register compare).
type BranchInst struct {
	instBase
	Op       BranchOp
	Lhs, Rhs Operand
	To       *MBlock
}

func NewBranch(op BranchOp, lhs, rhs Operand, to *MBlock) *BranchInst {
	return &BranchInst{Op: op, Lhs: lhs, Rhs: rhs, To: to}
}

func (i *BranchInst) Defs() []*Operand  { return nil }
func (i *BranchInst) Uses() []*Operand  { return []*Operand{&i.Lhs, &i.Rhs} }
func (i *BranchInst) IsTerminator() bool { return true }
func (i *BranchInst) String() string {
	return i.Op.String() + " " + opStr(i.Lhs) + ", " + opStr(i.Rhs) + ", bb" + itoa(i.To.ID)
}

// BranchZeroOp is a single-register compare-against-zero branch.
// Ordered so op^1 inverts (Eq/Ne, Lt/Ge, Le/Gt), matching
// internal/ir.RelOp.
type BranchZeroOp int

const (
	BzEq BranchZeroOp = iota
	BzNe
	BzLt
	BzGe
	BzLe
	BzGt
)

func (op BranchZeroOp) Invert() BranchZeroOp { return op ^ 1 }
func (op BranchZeroOp) String() string {
	return [...]string{"beqz", "bnez", "bltz", "bgez", "blez", "bgtz"}[op]
}

// BranchZeroInst is `if Reg op 0 goto To`.
type BranchZeroInst struct {
	instBase
	Op  BranchZeroOp
	Reg Operand
	To  *MBlock
}

func NewBranchZero(op BranchZeroOp, reg Operand, to *MBlock) *BranchZeroInst {
	return &BranchZeroInst{Op: op, Reg: reg, To: to}
}

func (i *BranchZeroInst) Defs() []*Operand  { return nil }
func (i *BranchZeroInst) Uses() []*Operand  { return []*Operand{&i.Reg} }
func (i *BranchZeroInst) IsTerminator() bool { return true }
func (i *BranchZeroInst) String() string {
	return i.Op.String() + " " + opStr(i.Reg) + ", bb" + itoa(i.To.ID)
}

// JumpInst is an unconditional branch to another block in this
// function.
type JumpInst struct {
	instBase
	To *MBlock
}

func NewJump(to *MBlock) *JumpInst { return &JumpInst{To: to} }

func (i *JumpInst) Defs() []*Operand   { return nil }
func (i *JumpInst) Uses() []*Operand   { return nil }
func (i *JumpInst) IsTerminator() bool { return true }
func (i *JumpInst) String() string     { return "j bb" + itoa(i.To.ID) }

// ReturnInst marks the function's return point. For an ordinary
// function, reg_restore (§4.5) inserts the callee-saved-register
// restores and the $sp adjustment just before it, and internal/emit
// prints it as `jr $ra`; in main, emit prints it as a jump to the
// program-final label instead, or nothing when no code follows (main
// never executes `jr $ra`, since it has no caller to return to within
// the simulated program).
type ReturnInst struct {
	instBase
	Val Operand // VoidOperand for a bare return
}

func NewReturn(val Operand) *ReturnInst { return &ReturnInst{Val: val} }

func (i *ReturnInst) Defs() []*Operand { return nil }
func (i *ReturnInst) Uses() []*Operand {
	if i.Val.IsVoid() {
		return nil
	}
	return []*Operand{&i.Val}
}
func (i *ReturnInst) IsTerminator() bool { return true }
func (i *ReturnInst) String() string     { return "ret" }

// LoadInst loads a word from [Base + Offset] into Dst. For a
// constant-folded global access Base is $gp and Offset is the address
// minus DataBase (§4.4).
type LoadInst struct {
	instBase
	Dst    Operand
	Base   Operand
	Offset int32
}

func NewLoad(dst, base Operand, offset int32) *LoadInst {
	return &LoadInst{Dst: dst, Base: base, Offset: offset}
}

func (i *LoadInst) Defs() []*Operand { return []*Operand{&i.Dst} }
func (i *LoadInst) Uses() []*Operand { return []*Operand{&i.Base} }
func (i *LoadInst) IsPure() bool     { return true }
func (i *LoadInst) String() string {
	return "lw " + opStr(i.Dst) + ", " + strconv.Itoa(int(i.Offset)) + "(" + opStr(i.Base) + ")"
}

// StoreInst stores Src to [Base + Offset].
type StoreInst struct {
	instBase
	Src    Operand
	Base   Operand
	Offset int32
}

func NewStore(src, base Operand, offset int32) *StoreInst {
	return &StoreInst{Src: src, Base: base, Offset: offset}
}

func (i *StoreInst) Defs() []*Operand { return nil }
func (i *StoreInst) Uses() []*Operand { return []*Operand{&i.Src, &i.Base} }
func (i *StoreInst) String() string {
	return "sw " + opStr(i.Src) + ", " + strconv.Itoa(int(i.Offset)) + "(" + opStr(i.Base) + ")"
}

// SysInst is a MARS syscall (`li $v0, No` has already been emitted
// separately by the lowerer; this instruction is the `syscall` itself).
type SysInst struct {
	instBase
	No int32
}

func NewSys(no int32) *SysInst { return &SysInst{No: no} }

func (i *SysInst) Defs() []*Operand { return nil }
func (i *SysInst) Uses() []*Operand { return nil }
func (i *SysInst) String() string   { return "syscall # " + strconv.Itoa(int(i.No)) }

// LoadStrInst loads the address of interned string StrID into Dst
// (`la Dst, __STR_<StrID>`).
type LoadStrInst struct {
	instBase
	Dst   Operand
	StrID int
}

func NewLoadStr(dst Operand, strID int) *LoadStrInst { return &LoadStrInst{Dst: dst, StrID: strID} }

func (i *LoadStrInst) Defs() []*Operand { return []*Operand{&i.Dst} }
func (i *LoadStrInst) Uses() []*Operand { return nil }
func (i *LoadStrInst) IsPure() bool     { return true }
func (i *LoadStrInst) String() string   { return "la " + opStr(i.Dst) + ", __STR_" + itoa(i.StrID) }

func opStr(o Operand) string {
	switch o.Kind {
	case Machine:
		return Reg(o.Val).Name()
	case Virtual:
		return "%v" + itoa(int(o.Val))
	case Const:
		return itoa(int(o.Val))
	default:
		return "void"
	}
}

func itoa(v int) string { return strconv.Itoa(v) }
