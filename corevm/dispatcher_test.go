package corevm

import "testing"

func TestExecutePushLiteralReturnsTop(t *testing.T) {
	state := newTestState(t)
	env := newTestEnv()
	code := &CompiledCode{
		Opcodes:   []int64{int64(OpPushLiteral), 0, int64(OpRet)},
		Literals:  []Value{FromSmallInt(42)},
		StackSize: 1,
		Name:      "lit",
		Serial:    1,
	}

	mc, err := Prepare(code, env)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	frame := NewCallFrame(mc, 0)
	result, err := Execute(state, frame)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.SmallInt() != 42 {
		t.Errorf("result = %d, want 42", result.SmallInt())
	}
}

func TestExecuteSendDispatchesThroughCallSite(t *testing.T) {
	state := newTestState(t)
	env := newTestEnv()

	method := &fakeMethod{}
	state.Classes.Integer.AddMethod("next", method, false, false)

	plusSym := env.Symbols.SymbolValue("next")
	code := &CompiledCode{
		Opcodes:   []int64{int64(OpPushInt), 1, int64(OpSendMethod), 0, int64(OpRet)},
		Literals:  []Value{plusSym},
		StackSize: 2,
		Name:      "send",
		Serial:    1,
	}

	mc, err := Prepare(code, env)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	frame := NewCallFrame(mc, 0)
	if _, err := Execute(state, frame); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if method.calls != 1 {
		t.Errorf("method invoked %d times, want 1", method.calls)
	}
}

func TestExecuteTranslatesHostTypeError(t *testing.T) {
	state := newTestState(t)

	raiser := GoMethod(func(state *State, frame *CallFrame, args Arguments) (Value, error) {
		RaiseHostTypeError("Array", FromSmallInt(3), "no implicit conversion")
		return Nil, nil
	})
	state.Classes.Integer.AddMethod("boom", raiser, false, false)

	env := newTestEnv()
	sym := env.Symbols.SymbolValue("boom")
	code := &CompiledCode{
		Opcodes:   []int64{int64(OpPushInt), 1, int64(OpSendMethod), 0, int64(OpRet)},
		Literals:  []Value{sym},
		StackSize: 2,
		Name:      "boom",
		Serial:    1,
	}

	mc, err := Prepare(code, env)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	frame := NewCallFrame(mc, 0)
	_, err = Execute(state, frame)
	if err == nil {
		t.Fatal("expected a translated type error")
	}

	exc, ok := err.(*LanguageException)
	if !ok {
		t.Fatalf("err = %T, want *LanguageException", err)
	}
	if exc.Kind != "type_error" {
		t.Errorf("Kind = %q, want type_error", exc.Kind)
	}
	if !exc.HasLocation() {
		t.Error("translated exception should carry a location snapshot")
	}
	if !frame.Scope.Flushed() {
		t.Error("frame scope should be flushed to heap on a trapped host failure")
	}
	if !state.HasRaisedException() {
		t.Error("state should record the raised exception")
	}
}

func TestExecuteRescueSiteResumesDispatch(t *testing.T) {
	state := newTestState(t)
	env := newTestEnv()
	env.Primitives = state.Primitives // preparation and dispatch share one registry

	env.Primitives.Register("raise_type_error", func(state *State, frame *CallFrame, args Arguments) (Value, error) {
		RaiseHostTypeError("Array", args.Receiver, "no implicit conversion")
		return Nil, nil
	})

	primSym := env.Symbols.SymbolValue("raise_type_error")
	rescuedSym := env.Symbols.SymbolValue("rescued")

	code := &CompiledCode{
		Opcodes: []int64{
			int64(OpSetupUnwind), 7, int64(UnwindRescue), // ip 0-2: rescue resumes at ip 7
			int64(OpPushInt), 9, // ip 3-4: receiver for the primitive
			int64(OpInvokePrimitive), 0, // ip 5-6: raises a host type error
			int64(OpPushLiteral), 1, // ip 7-8: the rescue handler
			int64(OpRet), // ip 9
		},
		Literals:  []Value{primSym, rescuedSym},
		StackSize: 2,
		Name:      "rescue",
		Serial:    1,
	}

	mc, err := Prepare(code, env)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	frame := NewCallFrame(mc, 0)
	result, err := Execute(state, frame)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != rescuedSym {
		t.Errorf("result = %v, want the rescue handler's literal %v", result, rescuedSym)
	}
	if state.HasRaisedException() {
		t.Error("a recovered rescue should leave no pending exception on state")
	}
}

func TestExecuteEnsureRunsDuringUnwind(t *testing.T) {
	state := newTestState(t)
	env := newTestEnv()
	env.Primitives = state.Primitives // preparation and dispatch share one registry

	env.Primitives.Register("raise_type_error", func(state *State, frame *CallFrame, args Arguments) (Value, error) {
		RaiseHostTypeError("Array", args.Receiver, "no implicit conversion")
		return Nil, nil
	})

	primSym := env.Symbols.SymbolValue("raise_type_error")

	code := &CompiledCode{
		Opcodes: []int64{
			int64(OpSetupUnwind), 0, int64(UnwindEnsure), // ip 0-2: no rescue, ensure only
			int64(OpPushInt), 9, // ip 3-4
			int64(OpInvokePrimitive), 0, // ip 5-6: raises, unrescued
			int64(OpRet), // ip 7
		},
		Literals:  []Value{primSym},
		StackSize: 2,
		Name:      "ensure",
		Serial:    1,
	}

	mc, err := Prepare(code, env)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	frame := NewCallFrame(mc, 0)
	_, err = Execute(state, frame)
	if err == nil {
		t.Fatal("expected the unrescued type error to propagate")
	}
	if !state.HasRaisedException() {
		t.Error("an ensure-only unwind with no rescue should still surface the exception")
	}
}
