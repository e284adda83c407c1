package mipspasses

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mips"
)

// TestEliminateDeadCodeRemovesUnusedPureDef builds `v0 := 1 (dead);
// v1 := 2; return v1` and checks only the dead move disappears.
func TestEliminateDeadCodeRemovesUnusedPureDef(t *testing.T) {
	mf := newTestFunc()
	b0 := mf.NewBlock()
	mf.AddBlock(b0)

	dead := mips.NewMove(mf.NewVReg(), mips.Imm(1))
	live := mips.NewMove(mf.NewVReg(), mips.Imm(2))
	ret := mips.NewReturn(live.Dst)
	b0.Push(dead)
	b0.Push(live)
	b0.Push(ret)

	changed := EliminateDeadCode(mf)
	require.True(t, changed)
	require.Equal(t, []mips.MInst{live, ret}, b0.Instructions())
}

// TestEliminateDeadCodeKeepsCallEvenIfResultUnused checks a CallInst's
// def is never removed, since Call is not IsPure -- the callee's side
// effects must survive even when the caller ignores its return value.
func TestEliminateDeadCodeKeepsCallEvenIfResultUnused(t *testing.T) {
	mf := newTestFunc()
	b0 := mf.NewBlock()
	mf.AddBlock(b0)

	call := mips.NewCall("f", mips.MReg(mips.RegV0))
	b0.Push(call)
	b0.Push(mips.NewReturn(mips.VoidOperand))

	changed := EliminateDeadCode(mf)
	require.False(t, changed)
	require.Len(t, b0.Instructions(), 2)
}

// TestEliminateDeadCodeChainReaction checks that removing a dead def
// can make an earlier instruction it used dead in turn, within the
// same pass (the backward walk naturally handles this without a
// fixpoint loop around EliminateDeadCode itself).
func TestEliminateDeadCodeChainReaction(t *testing.T) {
	mf := newTestFunc()
	b0 := mf.NewBlock()
	mf.AddBlock(b0)

	a := mips.NewMove(mf.NewVReg(), mips.Imm(1))
	b := mips.NewBinary(mips.OpAdd, mf.NewVReg(), a.Dst, mips.Imm(1))
	b0.Push(a)
	b0.Push(b)
	b0.Push(mips.NewReturn(mips.VoidOperand))

	changed := EliminateDeadCode(mf)
	require.True(t, changed)
	require.Len(t, b0.Instructions(), 1)
	_, ok := b0.Instructions()[0].(*mips.ReturnInst)
	require.True(t, ok)
}
