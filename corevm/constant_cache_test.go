package corevm

import "testing"

type fakeResolver struct {
	calls int
	value Value
}

func (r *fakeResolver) ResolveConstant(state *State, name string, scope *LexicalScope) (Value, error) {
	r.calls++
	return r.value, nil
}

func TestConstantCacheHitAvoidsResolve(t *testing.T) {
	state := newTestState(t)
	resolver := &fakeResolver{value: FromSmallInt(7)}
	cache := NewEmptyConstantCache("PI", 1, 0)

	v, err := cache.Get(state, resolver, nil)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if v.SmallInt() != 7 {
		t.Errorf("value = %d, want 7", v.SmallInt())
	}

	if _, err := cache.Get(state, resolver, nil); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1 (second Get should hit the cache)", resolver.calls)
	}
}

func TestConstantCacheInvalidatesOnGenerationBump(t *testing.T) {
	state := newTestState(t)
	resolver := &fakeResolver{value: FromSmallInt(1)}
	cache := NewEmptyConstantCache("COUNT", 1, 0)

	if _, err := cache.Get(state, resolver, nil); err != nil {
		t.Fatalf("first Get: %v", err)
	}

	state.BumpConstantGeneration()
	resolver.value = FromSmallInt(2)

	v, err := cache.Get(state, resolver, nil)
	if err != nil {
		t.Fatalf("Get after generation bump: %v", err)
	}
	if v.SmallInt() != 2 {
		t.Errorf("value after invalidation = %d, want 2", v.SmallInt())
	}
	if resolver.calls != 2 {
		t.Errorf("resolver called %d times, want 2", resolver.calls)
	}
}
