package corevm

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// Method is the executable a lookup resolves to. The core never
// interprets a method body itself (that is the object model's job);
// it only invokes Method.Invoke and inspects the returned value.
type Method interface {
	Invoke(state *State, frame *CallFrame, args Arguments) (Value, error)
}

// GoMethod adapts a plain Go function to Method, the same shape as the
// host's primitive method wrappers.
type GoMethod func(state *State, frame *CallFrame, args Arguments) (Value, error)

func (f GoMethod) Invoke(state *State, frame *CallFrame, args Arguments) (Value, error) {
	return f(state, frame, args)
}

// Dispatch is the record a full method lookup produces: the module the
// method was found in, the resolved executable, and a method-missing
// reason when no ordinary method was found.
type Dispatch struct {
	Module        *Class
	Method        Method
	MethodMissing MethodMissingReason
}

// Class is the minimal method-table-bearing entity the call-site
// protocol needs: method lookup with an inheritance-chain walk and a
// generation counter bumped on every mutation, so inline caches can
// detect that a cached method has gone stale.
type Class struct {
	ID         uint32
	Name       string
	Superclass *Class

	mu        sync.RWMutex
	methods   map[string]Method
	private   map[string]bool
	protected map[string]bool

	generation atomic.Uint32
}

// NewClass creates a class with the given identity and superclass.
// classID is normally minted via NewClassIdentity (see identity.go).
func NewClass(classID uint32, name string, superclass *Class) *Class {
	return &Class{
		ID:         classID,
		Name:       name,
		Superclass: superclass,
		methods:    make(map[string]Method),
		private:    make(map[string]bool),
		protected:  make(map[string]bool),
	}
}

// Generation returns the current method-table generation, used as the
// stability half of a receiver descriptor.
func (c *Class) Generation() uint32 { return c.generation.Load() }

// bumpGeneration is called by every method-table mutation. The
// mutation is not bracketed here by the JIT queue's
// StartMethodUpdate/EndMethodUpdate pair, and compile requests already
// pending are not invalidated by it.
func (c *Class) bumpGeneration() { c.generation.Add(1) }

// AddMethod installs method under name, optionally marked private or
// protected, and bumps the generation so existing inline caches fall
// through to Update on their next check.
func (c *Class) AddMethod(name string, method Method, private, protected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[name] = method
	if private {
		c.private[name] = true
	}
	if protected {
		c.protected[name] = true
	}
	c.bumpGeneration()
}

// LookupMethod walks the superclass chain for name, honoring privacy
// and super-send rules, and returns a Dispatch recording why lookup
// failed when it does. isVcall distinguishes an implicit-receiver,
// no-argument send (SPEC_FULL.md §3's method-missing reason enum) from
// an ordinary explicit send when nothing answers name.
func (c *Class) LookupMethod(name string, allowPrivate, isSuper, isVcall bool) Dispatch {
	search := c
	if isSuper && c.Superclass != nil {
		search = c.Superclass
	}

	for cls := search; cls != nil; cls = cls.Superclass {
		cls.mu.RLock()
		method, ok := cls.methods[name]
		isPrivate := cls.private[name]
		isProtected := cls.protected[name]
		cls.mu.RUnlock()

		if !ok {
			continue
		}

		if isPrivate && !allowPrivate {
			if isSuper {
				return Dispatch{Module: cls, MethodMissing: MissingSuper}
			}
			return Dispatch{Module: cls, MethodMissing: MissingPrivate}
		}
		if isProtected && !allowPrivate {
			return Dispatch{Module: cls, MethodMissing: MissingProtected}
		}
		return Dispatch{Module: cls, Method: method, MethodMissing: MissingNone}
	}

	if isSuper {
		return Dispatch{MethodMissing: MissingSuper}
	}
	if isVcall {
		return Dispatch{MethodMissing: MissingVcall}
	}
	return Dispatch{MethodMissing: MissingNormal}
}

// ClassTable resolves a Value to its Class, the mapping the check
// function needs on every send.
type ClassTable struct {
	Integer   *Class
	Symbol    *Class
	NilClass  *Class
	TrueClass *Class
	FalseClass *Class
	Object    *Class

	mu      sync.RWMutex
	byName  map[string]*Class
	nextID  atomic.Uint32
}

// NewClassTable bootstraps the small set of built-in classes every
// Value tag needs, so ClassOf never returns nil.
func NewClassTable() *ClassTable {
	t := &ClassTable{byName: make(map[string]*Class)}
	t.Object = t.Register("Object", nil)
	t.Integer = t.Register("Integer", t.Object)
	t.Symbol = t.Register("Symbol", t.Object)
	t.NilClass = t.Register("NilClass", t.Object)
	t.TrueClass = t.Register("TrueClass", t.Object)
	t.FalseClass = t.Register("FalseClass", t.Object)
	return t
}

// Register mints a fresh class identity and adds name to the table.
func (t *ClassTable) Register(name string, superclass *Class) *Class {
	id := NewClassIdentity()
	cls := NewClass(id, name, superclass)
	t.mu.Lock()
	t.byName[name] = cls
	t.mu.Unlock()
	return cls
}

func (t *ClassTable) Lookup(name string) (*Class, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cls, ok := t.byName[name]
	return cls, ok
}

// HeapObject is the generic heap object a Value of object tag points
// at: a class pointer plus an opaque payload the primitive layer
// understands. The core only needs the class pointer, for ClassOf.
type HeapObject struct {
	Class   *Class
	Payload any
}

// ClassOf resolves v's class, covering every Value tag: small
// integers, symbols, the three special values, and heap objects
// carrying their own class pointer.
func (t *ClassTable) ClassOf(v Value) *Class {
	switch {
	case v.IsSmallInt():
		return t.Integer
	case v.IsSymbol():
		return t.Symbol
	case v == Nil:
		return t.NilClass
	case v == True:
		return t.TrueClass
	case v == False:
		return t.FalseClass
	case v.IsObject():
		obj := (*HeapObject)(v.ObjectPtr())
		if obj != nil {
			return obj.Class
		}
		return t.Object
	default:
		return t.Object
	}
}

// NewHeapObjectValue boxes a HeapObject as a Value, keeping it alive
// via the same registry every object-pointer Value relies on.
func NewHeapObjectValue(obj *HeapObject) Value {
	return FromObjectPtr(unsafe.Pointer(obj), obj)
}
