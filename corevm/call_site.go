package corevm

import "sync/atomic"

// MethodMissingReason enumerates why a lookup failed to find an
// ordinary method, recorded on the cache so a repeat miss does not
// redo the lookup.
type MethodMissingReason int

const (
	MissingNone MethodMissingReason = iota
	MissingPrivate
	MissingProtected
	MissingVcall
	MissingSuper
	MissingNormal
)

func (r MethodMissingReason) String() string {
	switch r {
	case MissingNone:
		return "none"
	case MissingPrivate:
		return "private"
	case MissingProtected:
		return "protected"
	case MissingVcall:
		return "vcall"
	case MissingSuper:
		return "super"
	case MissingNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// CacheState tags the call-site family member currently installed at a
// site. The check/update function pointers remain the primary
// dispatch mechanism; the tag exists for reflection and GC marking,
// per the tagged-sum design note.
type CacheState int

const (
	CacheEmpty CacheState = iota
	CacheMonomorphic
	CacheMonomorphicMM // monomorphic cache in method-missing fast path
	CachePolymorphic
	CacheMegamorphic
)

// Arguments is the minimal send-time argument view a check/update
// function needs: the receiver plus the positional arguments.
type Arguments struct {
	Receiver Value
	Args     []Value
}

// CheckFunc is consulted on every send through a call site.
type CheckFunc func(state *State, site *CallSite, frame *CallFrame, args Arguments) (Value, error)

// UpdateFunc is invoked by a CheckFunc on a cache miss; it performs the
// full method lookup and reshapes the site in place.
type UpdateFunc func(state *State, site *CallSite, frame *CallFrame, args Arguments) (Value, error)

// CallSite is the polymorphic entity installed at a (compiled code,
// instruction pointer) pair and consulted by every send. Concrete cache
// variants (MonomorphicCache et al.) hold a pointer back to their
// CallSite.
type CallSite struct {
	name          string // method name; debug/reporting only, independent of Dispatch.Name
	serialAtInstall uint64
	ip              int
	codeHint        *CompiledCode // the compiled code this site belongs to, for JIT request keys

	IsPrivate bool
	IsSuper   bool
	IsVcall   bool

	state atomic.Int32 // CacheState, read for reflection/GC marking

	// check/update are the dispatch mechanism. update is swapped in
	// last, after every other field of a freshly-built cache has been
	// written, so readers never observe a torn cache (release-store
	// publication).
	check atomic.Pointer[CheckFunc]
	update atomic.Pointer[UpdateFunc]

	// variant holds the concrete cache struct (e.g. *MonomorphicCache)
	// currently installed, for reflection and GC marking. The tag in
	// state is the cheap discriminant; variant is the payload.
	variant atomic.Pointer[any]
}

// Variant returns the concrete cache struct installed at s, or nil if
// s is still empty.
func (s *CallSite) Variant() any {
	p := s.variant.Load()
	if p == nil {
		return nil
	}
	return *p
}

// NewEmptyCallSite creates a call site bound to (name, serial, ip) with
// no cache installed yet; its check function always falls through to
// update.
func NewEmptyCallSite(name string, serial uint64, ip int) *CallSite {
	return newEmptyCallSiteFor(name, serial, ip, nil)
}

func newEmptyCallSiteFor(name string, serial uint64, ip int, code *CompiledCode) *CallSite {
	site := &CallSite{name: name, serialAtInstall: serial, ip: ip, codeHint: code}
	site.state.Store(int32(CacheEmpty))
	check := CheckFunc(emptyCheck)
	site.check.Store(&check)
	update := UpdateFunc(defaultUpdate)
	site.update.Store(&update)
	return site
}

func (s *CallSite) Name() string           { return s.name }
func (s *CallSite) SerialAtInstall() uint64 { return s.serialAtInstall }
func (s *CallSite) IP() int                 { return s.ip }
func (s *CallSite) State() CacheState       { return CacheState(s.state.Load()) }

// Check invokes the currently installed check function. This is the
// single entry point the send handler uses; it never branches on the
// cache variant directly.
func (s *CallSite) Check(state *State, frame *CallFrame, args Arguments) (Value, error) {
	fn := s.check.Load()
	return (*fn)(state, s, frame, args)
}

// Update invokes the currently installed update function.
func (s *CallSite) Update(state *State, frame *CallFrame, args Arguments) (Value, error) {
	fn := s.update.Load()
	return (*fn)(state, s, frame, args)
}

// emptyCheck is installed on a freshly prepared call site: every call
// is a miss until the first successful lookup installs a real cache.
func emptyCheck(state *State, site *CallSite, frame *CallFrame, args Arguments) (Value, error) {
	return site.Update(state, frame, args)
}

// defaultUpdate performs the full method lookup and installs a
// monomorphic cache. If the site already carries a monomorphic cache,
// promotion to polymorphic is out of scope here (see SPEC_FULL.md §4.3);
// defaultUpdate always installs monomorphic.
func defaultUpdate(state *State, site *CallSite, frame *CallFrame, args Arguments) (Value, error) {
	class := state.Classes.ClassOf(args.Receiver)
	dispatch := class.LookupMethod(site.name, site.IsPrivate, site.IsSuper, site.IsVcall)

	installMonomorphicCache(state, site, class, dispatch)

	if dispatch.MethodMissing != MissingNone {
		return invokeMethodMissing(state, frame, args, site.name, dispatch.MethodMissing)
	}
	return dispatch.Method.Invoke(state, frame, args)
}
