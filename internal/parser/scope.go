package parser

// scope is the parser's identifier table: a flat "currently visible"
// map plus a stack of per-scope shadow records. This is the same
// scheme the donor compiler's SymbolTable uses -- entering a block
// pushes the current bindings aside into a fresh shadow record, and
// leaving it restores exactly what that record shadowed, so lookup
// never has to walk a chain of scopes.
type scope struct {
	all    map[string]any // name -> currently-visible *ast.Decl or *ast.Func
	local  map[string]any // names bound or shadowed in the current scope; nil value means "no enclosing binding"
	scopes []map[string]any
}

func newScope() *scope {
	return &scope{all: map[string]any{}, local: map[string]any{}}
}

// insert binds name to sym in the current scope. It reports false when
// name already has a binding introduced in this same scope (a
// redefinition); a binding inherited from an enclosing scope is
// shadowed silently.
func (s *scope) insert(name string, sym any) bool {
	if _, redefined := s.local[name]; redefined {
		return false
	}
	if prev, ok := s.all[name]; ok {
		s.local[name] = prev
	} else {
		s.local[name] = nil
	}
	s.all[name] = sym
	return true
}

// find returns the currently-visible binding for name, or nil.
func (s *scope) find(name string) any {
	return s.all[name]
}

func (s *scope) push() {
	s.scopes = append(s.scopes, s.local)
	s.local = map[string]any{}
}

func (s *scope) pop() {
	for name, prev := range s.local {
		if prev == nil {
			delete(s.all, name)
		} else {
			s.all[name] = prev
		}
	}
	s.local = s.scopes[len(s.scopes)-1]
	s.scopes = s.scopes[:len(s.scopes)-1]
}
