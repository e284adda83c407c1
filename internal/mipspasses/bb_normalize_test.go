package mipspasses

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mips"
)

func newTestFunc() *mips.MFunc { return &mips.MFunc{Name: "f"} }

// TestNormalizeSplitsAfterConditionalBranch builds a single block that
// (as phi resolution can transiently leave behind) holds a BranchZero
// followed by more real instructions instead of ending there. Normalize
// must split it into two blocks and wire the branch's target plus the
// new block as its successors.
func TestNormalizeSplitsAfterConditionalBranch(t *testing.T) {
	mf := newTestFunc()
	b0 := mf.NewBlock()
	mf.AddBlock(b0)
	target := mf.NewBlock()
	mf.AddBlock(target)

	v := mf.NewVReg()
	br := mips.NewBranchZero(mips.BzEq, v, target)
	b0.Push(br)
	tail := mips.NewMove(mf.NewVReg(), mips.Imm(7))
	b0.Push(tail)
	b0.Push(mips.NewReturn(mips.VoidOperand))

	Normalize(mf)

	// the split-off tail lands right after b0 in layout order -- it is
	// b0's own fallthrough continuation, not wherever target happened
	// to sit originally.
	require.Len(t, mf.Blocks, 3)
	require.Same(t, b0, mf.Blocks[0])
	split := mf.Blocks[1]
	require.Same(t, target, mf.Blocks[2])
	require.Equal(t, []mips.MInst{br}, b0.Instructions())
	require.Len(t, split.Instructions(), 2)
	require.Same(t, tail, split.Instructions()[0])

	require.Equal(t, []*mips.MBlock{target, split}, b0.Succs)
	require.Contains(t, target.Preds, b0)
	require.Contains(t, split.Preds, b0)
}

// TestNormalizeDropsCodeAfterUnconditionalJump checks that instructions
// trailing an unconditional Jump (dead by construction) are erased
// rather than split into a new, unreachable block.
func TestNormalizeDropsCodeAfterUnconditionalJump(t *testing.T) {
	mf := newTestFunc()
	b0 := mf.NewBlock()
	mf.AddBlock(b0)
	target := mf.NewBlock()
	mf.AddBlock(target)

	b0.Push(mips.NewJump(target))
	b0.Push(mips.NewMove(mf.NewVReg(), mips.Imm(1)))

	Normalize(mf)

	require.Len(t, mf.Blocks, 2)
	require.Len(t, b0.Instructions(), 1)
	require.Equal(t, []*mips.MBlock{target}, b0.Succs)
}

// TestNormalizeWiresFallthrough checks a block with no explicit
// terminator gets the next block in layout order as its sole
// successor.
func TestNormalizeWiresFallthrough(t *testing.T) {
	mf := newTestFunc()
	b0 := mf.NewBlock()
	mf.AddBlock(b0)
	b1 := mf.NewBlock()
	mf.AddBlock(b1)

	b0.Push(mips.NewMove(mf.NewVReg(), mips.Imm(1)))
	b1.Push(mips.NewReturn(mips.VoidOperand))

	Normalize(mf)

	require.Equal(t, []*mips.MBlock{b1}, b0.Succs)
	require.Contains(t, b1.Preds, b0)
}
