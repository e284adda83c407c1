package ir

import "sysyc/internal/ast"

// BasicBlock is an ordered list of instructions terminated by exactly
// one control instruction. Analysis caches (predecessors, dominator
// set, loop info) are recomputed on demand by internal/analysis and
// stored directly on the block so passes can read them without a side
// table.
type BasicBlock struct {
	ID   int
	Func *Function

	head, tail Instruction
	count      int

	Preds []*BasicBlock

	// Dominator analysis, written by internal/analysis.BuildDominators.
	// internal/analysis.BuildLoops later overwrites Depth with the
	// block's loop nesting depth, which is what MIPS lowering reads.
	Idom     *BasicBlock
	Children []*BasicBlock
	Depth    int
	DF       []*BasicBlock // dominance frontier

	// Loop analysis, written by internal/analysis.BuildLoops.
	Loop *Loop

	Visited bool // scratch flag reused by every traversal pass

	MBB *MachBlockLink // set during MIPS lowering
}

// MachBlockLink is an opaque forward reference to the lowered MIPS
// block; internal/mips fills in its concrete type via SetMachBlock.
type MachBlockLink struct {
	Ptr any
}

// Loop describes one natural loop.
type Loop struct {
	Header *BasicBlock
	Body   map[*BasicBlock]bool
	Parent *Loop
	Depth  int
}

// NewBlock creates an empty block owned by fn; the caller links it
// into fn.Blocks via Func.AddBlock when ready.
func NewBlock(id int, fn *Function) *BasicBlock {
	return &BasicBlock{ID: id, Func: fn}
}

// Push appends inst as the new last instruction of the block.
func (b *BasicBlock) Push(inst Instruction) Instruction {
	inst.setBlock(b)
	if b.tail == nil {
		b.head, b.tail = inst, inst
	} else {
		b.tail.setNext(inst)
		inst.setPrev(b.tail)
		b.tail = inst
	}
	b.count++
	return inst
}

// PushFront prepends inst (used to place Phis at the block head).
func (b *BasicBlock) PushFront(inst Instruction) Instruction {
	inst.setBlock(b)
	if b.head == nil {
		b.head, b.tail = inst, inst
	} else {
		b.head.setPrev(inst)
		inst.setNext(b.head)
		b.head = inst
	}
	b.count++
	return inst
}

// Erase unlinks inst from the block. The caller must have already
// released or redirected every use inst held (its own operands) and
// verified it has no remaining users itself.
func (b *BasicBlock) Erase(inst Instruction) {
	p, n := inst.prev(), inst.next()
	if p != nil {
		p.setNext(n)
	} else {
		b.head = n
	}
	if n != nil {
		n.setPrev(p)
	} else {
		b.tail = p
	}
	inst.setPrev(nil)
	inst.setNext(nil)
	inst.setBlock(nil)
	b.count--
}

// EraseWith erases inst after replacing all of its uses with v.
func (b *BasicBlock) EraseWith(inst Instruction, v Value) {
	ReplaceAllUsesWith(inst, v)
	b.Erase(inst)
}

// Instructions returns every instruction in the block, head to tail.
func (b *BasicBlock) Instructions() []Instruction {
	out := make([]Instruction, 0, b.count)
	for i := b.head; i != nil; i = i.next() {
		out = append(out, i)
	}
	return out
}

// Len returns the instruction count.
func (b *BasicBlock) Len() int { return b.count }

// Terminator returns the block's control instruction, or nil if the
// block is (transiently) missing one.
func (b *BasicBlock) Terminator() Instruction {
	if b.tail == nil || !b.tail.IsTerminator() {
		return nil
	}
	return b.tail
}

// Succs returns the successor blocks named by the terminator.
func (b *BasicBlock) Succs() []*BasicBlock {
	switch t := b.Terminator().(type) {
	case *BranchInst:
		return []*BasicBlock{t.Then, t.Else}
	case *BinaryBranchInst:
		return []*BasicBlock{t.Then, t.Else}
	case *JumpInst:
		return []*BasicBlock{t.To}
	default:
		return nil
	}
}

// Phis returns the contiguous run of Phi instructions at the block head.
func (b *BasicBlock) Phis() []*PhiInst {
	var out []*PhiInst
	for i := b.head; i != nil; i = i.next() {
		p, ok := i.(*PhiInst)
		if !ok {
			break
		}
		out = append(out, p)
	}
	return out
}

// FuncKind distinguishes a user-defined function from the two
// pseudo-external functions the runtime contract provides.
type FuncKind int

const (
	UserFunc FuncKind = iota
	GetIntFunc
	PrintfFunc
)

// Function is a list of blocks in layout order (the first is entry),
// together with the source parameter declarations and the return-kind
// flag. GetIntFunc/PrintfFunc pseudo-functions carry no blocks; their
// behavior is fixed by the runtime contract and only their Kind (and,
// for PrintfFunc, Fmt) matters to the lowerer.
type Function struct {
	Kind       FuncKind
	Name       string
	ReturnsInt bool
	Params     []*Argument
	Blocks     []*BasicBlock
	Decl       *ast.Func // nil for pseudo-functions

	Fmt string // PrintfFunc's literal format string

	blockCnt int
	instCnt  int

	// Call-graph / purity analysis results, written by internal/passes.CallGraph.
	HasSideEffects bool
	HasGlobalLoads bool
	HasParamLoads  bool
	IsPureCached   bool
	Callers        []*Function
	Callees        []*Function
}

// Entry returns the function's first block.
func (f *Function) Entry() *BasicBlock { return f.Blocks[0] }

// NewBlock allocates a fresh block with the next sequential id within
// this function; the caller still must append it to f.Blocks.
func (f *Function) NewBlock() *BasicBlock {
	b := NewBlock(f.blockCnt, f)
	f.blockCnt++
	return b
}

// AddBlock appends b to the function's layout order.
func (f *Function) AddBlock(b *BasicBlock) { f.Blocks = append(f.Blocks, b) }

// NextInstID returns a fresh per-function instruction id (printing
// only), for passes that synthesize new instructions after the AST
// builder has run (e.g. dge privatizing a global into a local Alloca).
func (f *Function) NextInstID() int {
	f.instCnt++
	return f.instCnt
}

// RemoveBlock deletes b from the layout order (used by DBE once a
// block has been proven unreachable).
func (f *Function) RemoveBlock(b *BasicBlock) {
	for i, blk := range f.Blocks {
		if blk == b {
			f.Blocks = append(f.Blocks[:i], f.Blocks[i+1:]...)
			return
		}
	}
}

// IsExternal reports whether this is a pseudo-function with no body.
func (f *Function) IsExternal() bool { return f.Kind != UserFunc }

// Program is the whole compilation unit: globals, user functions, and
// the two runtime-provided pseudo-functions.
type Program struct {
	Globals []*ast.Decl
	Funcs   []*Function
	GetInt  *Function
	Printfs []*Function

	constCache map[int32]*Const
	valueCnt   int
}

// NewProgram creates an empty program with the GetInt pseudo-function
// already installed (every SysY program may call it).
func NewProgram() *Program {
	p := &Program{constCache: make(map[int32]*Const)}
	p.GetInt = &Function{Kind: GetIntFunc, Name: "getint", ReturnsInt: true}
	return p
}

// NextValueID returns a fresh program-wide value id (printing only).
func (p *Program) NextValueID() int {
	id := p.valueCnt
	p.valueCnt++
	return id
}

// ConstOf returns the interned Const for val, creating it on first use.
// 0 and 1 go through the same cache, so Zero/One always return the
// same pointer.
func (p *Program) ConstOf(val int32) *Const {
	if c, ok := p.constCache[val]; ok {
		return c
	}
	c := &Const{valueBase: valueBase{id: p.NextValueID()}, Val: val}
	p.constCache[val] = c
	return c
}

// Zero and One return the canonical interned constants.
func (p *Program) Zero() *Const { return p.ConstOf(0) }
func (p *Program) One() *Const  { return p.ConstOf(1) }

// AddFunc appends fn to the program's user-function list.
func (p *Program) AddFunc(fn *Function) { p.Funcs = append(p.Funcs, fn) }

// PrintfFuncFor returns the (possibly newly created) pseudo-function
// for the exact format fragment fmt, matching the source compiler's
// de-duplication of identical printf call sites by literal text.
func (p *Program) PrintfFuncFor(fmt string) *Function {
	for _, f := range p.Printfs {
		if f.Fmt == fmt {
			return f
		}
	}
	f := &Function{Kind: PrintfFunc, Name: "printf", Fmt: fmt}
	p.Printfs = append(p.Printfs, f)
	return f
}
