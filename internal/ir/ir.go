// Package ir implements the SSA control-flow-graph intermediate
// representation: values with tracked use-lists, basic blocks,
// functions, and the whole-program container. See builder.go for the
// AST-to-IR construction, optimizations and analyses live in
// internal/passes and internal/analysis.
package ir

import "sysyc/internal/ast"

// Value is anything an instruction operand can reference: a constant,
// a global, an incoming argument, the Undef singleton, or another
// instruction's result. Every Value owns an intrusive list of the Uses
// that reference it, so replacing all uses of a Value is O(number of
// uses) and never leaves a dangling reference.
type Value interface {
	valueID() int
	useList() *useList
}

// valueBase is embedded by every concrete Value to supply identity and
// the use-list; it is never constructed directly outside this package.
type valueBase struct {
	id    int
	uses  useList
}

func (v *valueBase) valueID() int      { return v.id }
func (v *valueBase) useList() *useList { return &v.uses }

// Use links one operand slot of a user instruction to the Value it
// reads. Uses form a doubly linked list rooted at the referenced
// Value's useList, which is how ReplaceAllUsesWith and dead-value
// detection both work in O(1) amortized per use.
type Use struct {
	value Value
	user  Instruction

	prev, next *Use
	list       *useList // the list this Use is currently linked into, nil if detached
}

// Value returns the operand this use currently reads.
func (u *Use) Value() Value { return u.value }

// User returns the instruction that owns this operand slot.
func (u *Use) User() Instruction { return u.user }

// NewUse creates and registers a use of v by user. v may be nil, in
// which case the use starts detached (used while constructing an
// instruction before its first operand is known).
func NewUse(v Value, user Instruction) *Use {
	u := &Use{user: user}
	if v != nil {
		u.Set(v)
	}
	return u
}

// Set repoints this use at n, unregistering from the previous value
// (if any) and registering on n's use-list. Passing nil detaches the
// use without attaching it to anything.
func (u *Use) Set(n Value) {
	u.unlink()
	u.value = n
	if n != nil {
		n.useList().push(u)
	}
}

// Release detaches this use from its value's use-list, returning the
// value it used to reference.
func (u *Use) Release() Value {
	old := u.value
	u.unlink()
	u.value = nil
	return old
}

func (u *Use) unlink() {
	if u.list == nil {
		return
	}
	u.list.remove(u)
	u.list = nil
}

// useList is the intrusive doubly linked list of Uses referencing one
// Value, implemented as a circular sentinel list so push/remove are
// both O(1) without special-casing the empty list.
type useList struct {
	sentinel Use
	init     bool
}

func (l *useList) ensureInit() {
	if !l.init {
		l.sentinel.next = &l.sentinel
		l.sentinel.prev = &l.sentinel
		l.init = true
	}
}

func (l *useList) push(u *Use) {
	l.ensureInit()
	u.list = l
	u.prev = l.sentinel.prev
	u.next = &l.sentinel
	l.sentinel.prev.next = u
	l.sentinel.prev = u
}

func (l *useList) remove(u *Use) {
	u.prev.next = u.next
	u.next.prev = u.prev
	u.prev, u.next = nil, nil
}

func (l *useList) empty() bool {
	l.ensureInit()
	return l.sentinel.next == &l.sentinel
}

// Each calls fn for every Use currently on the list. fn may call
// Set/Release on the use it is given (that is exactly how
// ReplaceAllUsesWith and RAUW-style rewrites work), but must not touch
// other uses on the same list.
func (l *useList) Each(fn func(*Use)) {
	l.ensureInit()
	u := l.sentinel.next
	for u != &l.sentinel {
		next := u.next
		fn(u)
		u = next
	}
}

// ReplaceAllUsesWith repoints every use of v to n, leaving v with an
// empty use-list.
func ReplaceAllUsesWith(v, n Value) {
	if v == n {
		return
	}
	v.useList().Each(func(u *Use) {
		u.Set(n)
	})
}

// HasUses reports whether v's use-list is non-empty.
func HasUses(v Value) bool { return !v.useList().empty() }

// EachUse calls fn for every remaining use of v. Like useList.Each, fn
// may Set/Release the use it is handed but must not touch sibling uses.
func EachUse(v Value, fn func(*Use)) { v.useList().Each(fn) }

// Const is an interned 32-bit signed integer constant.
type Const struct {
	valueBase
	Val int32
}

func (c *Const) String() string { return itoa(c.Val) }

// Global is the address of a program-scope variable.
type Global struct {
	valueBase
	Decl *ast.Decl
}

// Argument is the i-th incoming parameter of the enclosing function.
type Argument struct {
	valueBase
	Decl *ast.Decl
	Pos  int
}

// Undef is the singleton "any value" operand; legal to appear in, and
// to be dropped from, phi incoming lists.
type Undef struct{ valueBase }

var undefSingleton = &Undef{}

// TheUndef returns the single Undef value shared by every Program in
// the process.
func TheUndef() *Undef { return undefSingleton }

func itoa(v int32) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	var buf [16]byte
	i := len(buf)
	u := uint32(v)
	if neg {
		u = uint32(-int64(v))
	}
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
