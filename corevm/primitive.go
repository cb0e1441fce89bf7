package corevm

import "sync"

// InvokePrimitive is the function pointer invoke_primitive resolves a
// symbol to during preparation. It is not a reference slot: function
// pointers are not traced by the collector.
type InvokePrimitive func(state *State, frame *CallFrame, args Arguments) (Value, error)

// PrimitiveRegistry maps a primitive name to its invoker, the one
// external collaborator the Preparer consults for invoke_primitive.
// Grounded on the host's arity-specialized primitive method wrappers
// (vm/method.go): a name-keyed registry the core never adds names to;
// Prepare only looks names up and appends the resolved stubs to the
// installed list.
type PrimitiveRegistry struct {
	mu        sync.RWMutex
	stubs     map[string]InvokePrimitive
	installed []InvokePrimitive
}

func NewPrimitiveRegistry() *PrimitiveRegistry {
	return &PrimitiveRegistry{stubs: make(map[string]InvokePrimitive)}
}

// Register installs name's invoker. Primitive implementations
// themselves are out of scope for this core; callers populate the
// registry from whatever primitive library is wired into the host.
func (r *PrimitiveRegistry) Register(name string, fn InvokePrimitive) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stubs[name] = fn
}

// GetInvokeStub resolves name to its invoker. Invoked during
// preparation only (SPEC_FULL.md §6).
func (r *PrimitiveRegistry) GetInvokeStub(name string) (InvokePrimitive, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.stubs[name]
	return fn, ok
}

// Install appends fn to the installed-stub slice and returns its
// index. invoke_primitive sites store this index rather than the
// function pointer itself, so the stream word stays a plain integer.
func (r *PrimitiveRegistry) Install(fn InvokePrimitive) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installed = append(r.installed, fn)
	return len(r.installed) - 1
}

// At resolves an installed-stub index back to its function pointer.
func (r *PrimitiveRegistry) At(idx int) InvokePrimitive {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.installed) {
		return nil
	}
	return r.installed[idx]
}
