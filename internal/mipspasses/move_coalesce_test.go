package mipspasses

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mips"
)

// TestCoalesceMovesRemovesSelfMove checks `move r,r` disappears.
func TestCoalesceMovesRemovesSelfMove(t *testing.T) {
	mf := newTestFunc()
	b0 := mf.NewBlock()
	mf.AddBlock(b0)

	r := mips.MReg(mips.RegT0)
	mv := mips.NewMove(r, r)
	ret := mips.NewReturn(mips.VoidOperand)
	b0.Push(mv)
	b0.Push(ret)

	CoalesceMoves(mf)

	require.Equal(t, []mips.MInst{ret}, b0.Instructions())
}

// TestCoalesceMovesRewritesIdentityAdd checks `add dst, x, 0` becomes
// `move dst, x` (or disappears, if dst already is x).
func TestCoalesceMovesRewritesIdentityAdd(t *testing.T) {
	mf := newTestFunc()
	b0 := mf.NewBlock()
	mf.AddBlock(b0)

	x := mips.MReg(mips.RegT0)
	dst := mips.MReg(mips.RegT1)
	add := mips.NewBinary(mips.OpAdd, dst, x, mips.Imm(0))
	ret := mips.NewReturn(mips.VoidOperand)
	b0.Push(add)
	b0.Push(ret)

	CoalesceMoves(mf)

	insts := b0.Instructions()
	require.Len(t, insts, 2)
	mv, ok := insts[0].(*mips.MoveInst)
	require.True(t, ok)
	require.Equal(t, dst, mv.Dst)
	require.Equal(t, x, mv.Src)
}

// TestCoalesceMovesDropsIdentityAddOntoItself checks `add x, x, 0`
// vanishes outright rather than becoming a redundant `move x,x`.
func TestCoalesceMovesDropsIdentityAddOntoItself(t *testing.T) {
	mf := newTestFunc()
	b0 := mf.NewBlock()
	mf.AddBlock(b0)

	x := mips.MReg(mips.RegT0)
	add := mips.NewBinary(mips.OpAdd, x, x, mips.Imm(0))
	ret := mips.NewReturn(mips.VoidOperand)
	b0.Push(add)
	b0.Push(ret)

	CoalesceMoves(mf)

	require.Equal(t, []mips.MInst{ret}, b0.Instructions())
}

// TestCoalesceMovesDedupsRepeatedConstantLoad checks a second `li`
// loading the same constant already sitting in another register is
// rewritten to copy from that register instead of re-materializing the
// immediate, and a third load of the same constant into the same
// destination vanishes outright.
func TestCoalesceMovesDedupsRepeatedConstantLoad(t *testing.T) {
	mf := newTestFunc()
	b0 := mf.NewBlock()
	mf.AddBlock(b0)

	a := mips.MReg(mips.RegT0)
	b := mips.MReg(mips.RegT1)
	first := mips.NewMove(a, mips.Imm(5))
	second := mips.NewMove(b, mips.Imm(5))
	third := mips.NewMove(b, mips.Imm(5))
	ret := mips.NewReturn(mips.VoidOperand)
	b0.Push(first)
	b0.Push(second)
	b0.Push(third)
	b0.Push(ret)

	CoalesceMoves(mf)

	insts := b0.Instructions()
	require.Len(t, insts, 3)
	require.Same(t, first, insts[0])
	require.Equal(t, a, second.Src, "second load of the same constant should copy from a instead of re-materializing it")
	require.Same(t, second, insts[1])
	require.Same(t, ret, insts[2])
}

// TestCoalesceMovesForgetsConstantAfterRedefine checks that once a
// register holding a tracked constant is redefined by something other
// than a move, a later `li` of the same constant into the same
// register is not wrongly dropped as redundant.
func TestCoalesceMovesForgetsConstantAfterRedefine(t *testing.T) {
	mf := newTestFunc()
	b0 := mf.NewBlock()
	mf.AddBlock(b0)

	a := mips.MReg(mips.RegT0)
	first := mips.NewMove(a, mips.Imm(5))
	clobber := mips.NewBinary(mips.OpAdd, a, a, mips.Imm(1))
	second := mips.NewMove(a, mips.Imm(5))
	ret := mips.NewReturn(mips.VoidOperand)
	b0.Push(first)
	b0.Push(clobber)
	b0.Push(second)
	b0.Push(ret)

	CoalesceMoves(mf)

	insts := b0.Instructions()
	require.Len(t, insts, 4)
	require.Same(t, second, insts[2])
}
