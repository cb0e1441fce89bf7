package corevm

import (
	"testing"

	"github.com/tliron/commonlog"
)

// fakeMethod counts its invocations so tests can assert hit counts
// without stubbing the dispatcher.
type fakeMethod struct{ calls int }

func (m *fakeMethod) Invoke(state *State, frame *CallFrame, args Arguments) (Value, error) {
	m.calls++
	return FromSmallInt(int64(m.calls)), nil
}

func newTestState(t *testing.T) *State {
	t.Helper()
	return NewState(DefaultConfig(), commonlog.GetLogger("corevm.test"))
}

func TestMonomorphicCacheInstallAndHit(t *testing.T) {
	state := newTestState(t)
	site := NewEmptyCallSite("+", 1, 0)

	class := state.Classes.Integer
	method := &fakeMethod{}
	class.AddMethod("+", method, false, false)

	args := Arguments{Receiver: FromSmallInt(1)}
	if _, err := site.Check(state, nil, args); err != nil {
		t.Fatalf("first check: %v", err)
	}

	cache, ok := site.Variant().(*MonomorphicCache)
	if !ok {
		t.Fatalf("site variant = %T, want *MonomorphicCache", site.Variant())
	}
	if cache.Hits() != 1 {
		t.Errorf("hits after first call = %d, want 1", cache.Hits())
	}
	if site.State() != CacheMonomorphic {
		t.Errorf("state = %v, want CacheMonomorphic", site.State())
	}

	for i := 0; i < 999; i++ {
		if _, err := site.Check(state, nil, args); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}

	if cache.Hits() != 1000 {
		t.Errorf("hits after 1000 calls = %d, want 1000", cache.Hits())
	}
	if method.calls != 1000 {
		t.Errorf("method invoked %d times, want 1000 (every send invokes the cached method)", method.calls)
	}
	if site.Variant() != cache {
		t.Error("cache was reinstalled; a hit should not repeat the lookup")
	}
}

func TestMonomorphicCacheFallsThroughOnClassChange(t *testing.T) {
	state := newTestState(t)
	site := NewEmptyCallSite("describe", 1, 0)

	intMethod := &fakeMethod{}
	symMethod := &fakeMethod{}
	state.Classes.Integer.AddMethod("describe", intMethod, false, false)
	state.Classes.Symbol.AddMethod("describe", symMethod, false, false)

	if _, err := site.Check(state, nil, Arguments{Receiver: FromSmallInt(1)}); err != nil {
		t.Fatalf("check on Integer: %v", err)
	}
	if _, err := site.Check(state, nil, Arguments{Receiver: FromSymbolID(0)}); err != nil {
		t.Fatalf("check on Symbol: %v", err)
	}

	if intMethod.calls != 1 || symMethod.calls != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1) after a receiver class change", intMethod.calls, symMethod.calls)
	}
}

func TestMonomorphicCacheMethodMissingInstallsMMVariant(t *testing.T) {
	state := newTestState(t)
	site := NewEmptyCallSite("bogus", 1, 0)

	hook := &fakeMethod{}
	state.Classes.Object.AddMethod("method_missing", hook, false, false)

	args := Arguments{Receiver: FromSmallInt(1)}
	if _, err := site.Check(state, nil, args); err != nil {
		t.Fatalf("first check: %v", err)
	}

	cache, ok := site.Variant().(*MonomorphicCache)
	if !ok {
		t.Fatalf("site variant = %T, want *MonomorphicCache", site.Variant())
	}
	if site.State() != CacheMonomorphicMM {
		t.Errorf("state = %v, want CacheMonomorphicMM", site.State())
	}
	if cache.MethodMissing() != MissingNormal {
		t.Errorf("method missing reason = %v, want MissingNormal", cache.MethodMissing())
	}
	if hook.calls != 1 {
		t.Errorf("method_missing invoked %d times, want 1", hook.calls)
	}

	if _, err := site.Check(state, nil, args); err != nil {
		t.Fatalf("second check: %v", err)
	}
	if cache.Hits() != 2 {
		t.Errorf("hits after second check = %d, want 2 (the mm fast path still counts hits)", cache.Hits())
	}
	if hook.calls != 2 {
		t.Errorf("method_missing invoked %d times, want 2 (no repeated lookup, but the hook runs every time)", hook.calls)
	}
}

func TestMonomorphicCacheMethodMissingClassifiesVcall(t *testing.T) {
	state := newTestState(t)
	site := NewEmptyCallSite("bogus", 1, 0)
	site.IsVcall = true

	hook := &fakeMethod{}
	state.Classes.Object.AddMethod("method_missing", hook, false, false)

	if _, err := site.Check(state, nil, Arguments{Receiver: FromSmallInt(1)}); err != nil {
		t.Fatalf("check: %v", err)
	}

	cache, ok := site.Variant().(*MonomorphicCache)
	if !ok {
		t.Fatalf("site variant = %T, want *MonomorphicCache", site.Variant())
	}
	if cache.MethodMissing() != MissingVcall {
		t.Errorf("method missing reason = %v, want MissingVcall", cache.MethodMissing())
	}
}
