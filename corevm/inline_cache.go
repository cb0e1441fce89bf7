package corevm

import "sync/atomic"

// ReceiverDescriptor is a compact class-identity token: the class's
// object id paired with a stability generation, packed into one
// machine word so the check function can compare it with a single
// atomic load and equality test.
type ReceiverDescriptor uint64

// NewReceiverDescriptor packs a class identity and the method-table
// generation it was observed at.
func NewReceiverDescriptor(classID uint32, generation uint32) ReceiverDescriptor {
	return ReceiverDescriptor(uint64(classID)<<32 | uint64(generation))
}

func (d ReceiverDescriptor) ClassID() uint32   { return uint32(uint64(d) >> 32) }
func (d ReceiverDescriptor) Generation() uint32 { return uint32(uint64(d)) }

// MonomorphicCache extends CallSite with the one (receiver class,
// method) pair it has memoized, a hit counter, and the method-missing
// reason recorded the one time lookup determined the site is a
// method-missing site.
type MonomorphicCache struct {
	site *CallSite

	receiver      atomic.Uint64 // ReceiverDescriptor, compared as one word
	storedModule  *Class
	method        Method
	methodMissing MethodMissingReason

	hits atomic.Uint64
}

func (c *MonomorphicCache) Site() *CallSite                { return c.site }
func (c *MonomorphicCache) Receiver() ReceiverDescriptor    { return ReceiverDescriptor(c.receiver.Load()) }
func (c *MonomorphicCache) StoredModule() *Class            { return c.storedModule }
func (c *MonomorphicCache) Method() Method                  { return c.method }
func (c *MonomorphicCache) MethodMissing() MethodMissingReason { return c.methodMissing }
func (c *MonomorphicCache) Hits() uint64                    { return c.hits.Load() }

// installMonomorphicCache builds a fresh MonomorphicCache from a
// completed Dispatch and rewrites site in place. Every field is
// written before the check/update function pointers are swapped, and
// the update function pointer is swapped last of the two, so a
// concurrent reader either sees the prior stable state or the fully
// initialized new one (release-store publication; see SPEC_FULL.md §5).
func installMonomorphicCache(state *State, site *CallSite, class *Class, dispatch Dispatch) *MonomorphicCache {
	cache := &MonomorphicCache{
		site:          site,
		storedModule:  dispatch.Module,
		method:        dispatch.Method,
		methodMissing: dispatch.MethodMissing,
	}
	cache.receiver.Store(uint64(NewReceiverDescriptor(class.ID, class.Generation())))
	cache.hits.Store(1) // the send that installs the cache counts as its first hit

	variant := any(cache)
	site.variant.Store(&variant)

	var check CheckFunc
	var newState CacheState
	if dispatch.MethodMissing != MissingNone {
		check = monomorphicCheckMM
		newState = CacheMonomorphicMM
	} else {
		check = monomorphicCheck
		newState = CacheMonomorphic
	}

	site.state.Store(int32(newState))
	site.check.Store(&check)

	update := UpdateFunc(defaultUpdate)
	site.update.Store(&update) // published last: release store

	return cache
}

// monomorphicCheck is the steady-state check function for a populated
// monomorphic cache: a single-word receiver-descriptor comparison,
// falling through to Update on mismatch or on stale method generation.
func monomorphicCheck(state *State, site *CallSite, frame *CallFrame, args Arguments) (Value, error) {
	cache, _ := site.Variant().(*MonomorphicCache)
	if cache == nil {
		return site.Update(state, frame, args)
	}

	class := state.Classes.ClassOf(args.Receiver)
	current := NewReceiverDescriptor(class.ID, class.Generation())

	if uint64(current) != cache.receiver.Load() {
		return site.Update(state, frame, args)
	}

	cache.hits.Add(1)
	state.JIT.noteHit(cache)

	return cache.method.Invoke(state, frame, args)
}

// monomorphicCheckMM is installed once lookup has determined the site
// is a method-missing site, so a repeat call skips the lookup and goes
// straight to the language-level method_missing hook.
func monomorphicCheckMM(state *State, site *CallSite, frame *CallFrame, args Arguments) (Value, error) {
	cache, _ := site.Variant().(*MonomorphicCache)
	if cache == nil {
		return site.Update(state, frame, args)
	}

	class := state.Classes.ClassOf(args.Receiver)
	current := NewReceiverDescriptor(class.ID, class.Generation())
	if uint64(current) != cache.receiver.Load() {
		return site.Update(state, frame, args)
	}

	cache.hits.Add(1)
	return invokeMethodMissing(state, frame, args, site.name, cache.methodMissing)
}
