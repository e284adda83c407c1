package ir

import "sysyc/internal/ast"

// accessBase is shared by Load/Store/GEP: all three address a variable
// at base + offset, where offset is in elements until MIPS lowering
// scales it by 4.
type accessBase struct {
	instBase
	Decl       *ast.Decl
	Base, Off *Use
}

// LoadInst loads the value at Decl[Base + Off].
type LoadInst struct{ accessBase }

func NewLoad(id int, decl *ast.Decl, base, off Value) *LoadInst {
	i := &LoadInst{accessBase{instBase: instBase{id: id}, Decl: decl}}
	i.Base = NewUse(base, i)
	i.Off = NewUse(off, i)
	return i
}

func (i *LoadInst) Operands() []*Use { return []*Use{i.Base, i.Off} }
func (i *LoadInst) IsPure() bool     { return true }
func (i *LoadInst) String() string   { return "%" + itoaInt(i.id) + " = load " + i.Decl.Name }

// StoreInst stores Val into Decl[Base + Off].
type StoreInst struct {
	accessBase
	Val *Use
}

func NewStore(id int, decl *ast.Decl, base, off, val Value) *StoreInst {
	i := &StoreInst{accessBase: accessBase{instBase: instBase{id: id}, Decl: decl}}
	i.Base = NewUse(base, i)
	i.Off = NewUse(off, i)
	i.Val = NewUse(val, i)
	return i
}

func (i *StoreInst) Operands() []*Use { return []*Use{i.Base, i.Off, i.Val} }
func (i *StoreInst) String() string   { return "store " + i.Decl.Name }

// GEPInst computes Base + Off*Size (a raw address, not a load/store).
type GEPInst struct {
	accessBase
	Size int
}

func NewGEP(id int, decl *ast.Decl, base, off Value, size int) *GEPInst {
	i := &GEPInst{accessBase: accessBase{instBase: instBase{id: id}, Decl: decl}, Size: size}
	i.Base = NewUse(base, i)
	i.Off = NewUse(off, i)
	return i
}

func (i *GEPInst) Operands() []*Use { return []*Use{i.Base, i.Off} }
func (i *GEPInst) IsPure() bool     { return true }
func (i *GEPInst) String() string   { return "%" + itoaInt(i.id) + " = gep " + i.Decl.Name }

// PhiIncoming is one (value, predecessor) pair of a Phi.
type PhiIncoming struct {
	Val  *Use
	From *BasicBlock
}

// PhiInst selects among incoming values based on the predecessor
// control arrived from. Placed by mem2reg (for promoted scalars) and
// consulted by GVN's phi-collapse rule.
type PhiInst struct {
	instBase
	Incoming []PhiIncoming
	// Alloca is the promotable Alloca this Phi replaces, set by mem2reg
	// so later passes (and the printer) can trace provenance; nil for
	// phis that are not mem2reg-introduced, such as the one the builder
	// creates for a short-circuit && / || value (the field mirrors the
	// source compiler's `aid`).
	Alloca *AllocaInst
}

func NewPhi(id int) *PhiInst { return &PhiInst{instBase: instBase{id: id}} }

// Push adds one incoming (value, predecessor) entry.
func (i *PhiInst) Push(val Value, from *BasicBlock) {
	u := NewUse(val, i)
	i.Incoming = append(i.Incoming, PhiIncoming{Val: u, From: from})
}

// RemoveIncoming drops the entry associated with block from, releasing
// its use. Used when a predecessor edge is removed (DBE, DLE).
func (i *PhiInst) RemoveIncoming(from *BasicBlock) {
	out := i.Incoming[:0]
	for _, inc := range i.Incoming {
		if inc.From == from {
			inc.Val.Release()
			continue
		}
		out = append(out, inc)
	}
	i.Incoming = out
}

func (i *PhiInst) Operands() []*Use {
	uses := make([]*Use, len(i.Incoming))
	for k, inc := range i.Incoming {
		uses[k] = inc.Val
	}
	return uses
}
func (i *PhiInst) IsPure() bool   { return true }
func (i *PhiInst) String() string { return "%" + itoaInt(i.id) + " = phi" }

// BinaryBranchInst fuses a relational compare with a two-way branch;
// introduced by br_induce, expected by the MIPS lowerer so it can emit
// a single compare-and-branch instruction.
type BinaryBranchInst struct {
	instBase
	Op             RelOp
	LHS, RHS       *Use
	Then, Else     *BasicBlock
}

func NewBinaryBranch(id int, op RelOp, lhs, rhs Value, then, els *BasicBlock) *BinaryBranchInst {
	i := &BinaryBranchInst{instBase: instBase{id: id}, Op: op, Then: then, Else: els}
	i.LHS = NewUse(lhs, i)
	i.RHS = NewUse(rhs, i)
	return i
}

func (i *BinaryBranchInst) Operands() []*Use   { return []*Use{i.LHS, i.RHS} }
func (i *BinaryBranchInst) IsTerminator() bool { return true }
func (i *BinaryBranchInst) String() string     { return "br." + i.Op.String() }
