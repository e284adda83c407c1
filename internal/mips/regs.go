package mips

// Reg is a physical MIPS register number in the standard O32 layout
// ($0 = zero ... $31 = ra).
type Reg int32

const (
	RegZero Reg = 0
	RegAt   Reg = 1
	RegV0   Reg = 2
	RegV1   Reg = 3
	RegA0   Reg = 4
	RegA1   Reg = 5
	RegA2   Reg = 6
	RegA3   Reg = 7
	RegT0   Reg = 8
	RegT1   Reg = 9
	RegT2   Reg = 10
	RegT3   Reg = 11
	RegT4   Reg = 12
	RegT5   Reg = 13
	RegT6   Reg = 14
	RegT7   Reg = 15
	RegS0   Reg = 16
	RegS1   Reg = 17
	RegS2   Reg = 18
	RegS3   Reg = 19
	RegS4   Reg = 20
	RegS5   Reg = 21
	RegS6   Reg = 22
	RegS7   Reg = 23
	RegT8   Reg = 24
	RegT9   Reg = 25
	RegK0   Reg = 26
	RegK1   Reg = 27
	RegGp   Reg = 28
	RegSp   Reg = 29
	RegFp   Reg = 30
	RegRa   Reg = 31
)

var regNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

// Name renders r the way the emitter writes it into assembly text.
func (r Reg) Name() string { return "$" + regNames[r] }

// ArgRegs are the first four integer argument registers.
var ArgRegs = [4]Reg{RegA0, RegA1, RegA2, RegA3}

// Allocatable lists the K=25 registers the coloring allocator may
// assign to a virtual. Caller-saved registers come first so the
// allocator's stack-pop coloring (internal/mipspasses, AssignColors)
// prefers them when either choice is free, since a caller-saved
// assignment costs nothing extra unless the value is live across a
// call -- the allocator itself does not reason about this, but a
// consistent preference order means the common leaf-heavy case in
// SysY programs tends not to touch reg_restore's save/restore set.
var Allocatable = []Reg{
	RegV0, RegV1, RegA0, RegA1, RegA2, RegA3,
	RegT0, RegT1, RegT2, RegT3, RegT4, RegT5, RegT6, RegT7,
	RegS0, RegS1, RegS2, RegS3, RegS4, RegS5, RegS6, RegS7, RegT8, RegT9, RegFp,
}

// K is the allocatable register count (§4.5).
const K = 25

var calleeSavedSet = map[Reg]bool{
	RegS0: true, RegS1: true, RegS2: true, RegS3: true,
	RegS4: true, RegS5: true, RegS6: true, RegS7: true,
	RegT8: true, RegT9: true, RegFp: true,
}

var allocatableSet = func() map[Reg]bool {
	m := make(map[Reg]bool, len(Allocatable))
	for _, r := range Allocatable {
		m[r] = true
	}
	return m
}()

var reservedSet = map[Reg]bool{
	RegZero: true, RegAt: true, RegK0: true, RegK1: true,
	RegSp: true, RegRa: true, RegGp: true,
}

// IsAllocatable reports whether r is one of the K registers the
// allocator may assign to a virtual.
func IsAllocatable(r Reg) bool { return allocatableSet[r] }

// IsCalleeSaved reports whether r must be saved/restored by any
// function whose body defines it (§4.5 reg_restore).
func IsCalleeSaved(r Reg) bool { return calleeSavedSet[r] }

// IsCallerSaved reports whether r is allocatable but not callee-saved.
func IsCallerSaved(r Reg) bool { return allocatableSet[r] && !calleeSavedSet[r] }

// IsReserved reports whether r is one of the hardwired registers the
// allocator must never touch: $0, $at, $k0, $k1, $sp, $ra, $gp. Note
// $v0 is allocatable (it is also the syscall-number/return-value
// register, but only transiently around a Call/Sys instruction, which
// the lowerer pins directly rather than reserving the register
// globally).
func IsReserved(r Reg) bool { return reservedSet[r] }
