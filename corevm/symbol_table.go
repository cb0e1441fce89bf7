package corevm

import "sync"

// SymbolTable interns symbol strings to unique ids and back, so the
// Preparer can resolve a literal-pool symbol operand to the method,
// constant, or ivar name it names. Adapted from the host object
// model's own append-only, RWMutex-guarded interning table.
type SymbolTable struct {
	mu     sync.RWMutex
	byName map[string]uint32
	byID   []string
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]uint32), byID: make([]string, 0, 256)}
}

func (t *SymbolTable) Intern(name string) uint32 {
	t.mu.RLock()
	if id, ok := t.byName[name]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[name]; ok {
		return id
	}
	id := uint32(len(t.byID))
	t.byName[name] = id
	t.byID = append(t.byID, name)
	return id
}

func (t *SymbolTable) Name(id uint32) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.byID) {
		return ""
	}
	return t.byID[id]
}

// SymbolValue creates a Value from a symbol name, interning it first.
func (t *SymbolTable) SymbolValue(name string) Value {
	return FromSymbolID(t.Intern(name))
}

// NameOf resolves a symbol Value back to its string, or "" if v is
// not a symbol.
func (t *SymbolTable) NameOf(v Value) string {
	if !v.IsSymbol() {
		return ""
	}
	return t.Name(v.SymbolID())
}
