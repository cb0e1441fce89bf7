package corevm

import "fmt"

// Execute runs frame's machine code to completion. A host failure
// trapped mid-dispatch (dispatchSegment's recover) is resolved against
// frame's unwind stack: an ensure site is popped and logged on the way
// past it (the code at its handler ip is not dispatched), and a rescue
// site resumes dispatch at its handler ip instead
// of unwinding the call (SPEC_FULL.md §4.5, §7 taxonomy item 3). Only
// once the unwind stack is exhausted without finding a rescue does the
// exception become a pending, surfaced failure.
func Execute(state *State, frame *CallFrame) (result Value, err error) {
	mc := frame.MachineCode

	for frame.IP < len(mc.Stream) {
		exc, stepErr, trapped := dispatchSegment(state, frame, mc)
		if stepErr != nil {
			return Nil, stepErr
		}
		if !trapped {
			continue
		}

		handlerIP, found := frame.PopRescueOrEnsure(func(site *UnwindSite) {
			if state.Log != nil {
				state.Log.Debugf("corevm: ensure site running during unwind, handler ip=%d", site.HandlerIP)
			}
		})
		if !found {
			state.RaiseException(exc)
			if state.Log != nil {
				state.Log.Warningf("corevm: execute trapped host failure, translated to %s: %s", exc.Kind, exc.Message)
			}
			return Nil, exc
		}

		if state.Log != nil {
			state.Log.Debugf("corevm: rescue site recovers, resuming at handler ip=%d", handlerIP)
		}
		frame.IP = handlerIP
		state.clearRaisedException()
	}

	state.clearRaisedException()
	if frame.StackPtr >= 0 {
		return frame.Top(), nil
	}
	return Nil, nil
}

// dispatchSegment runs step from frame.IP until the method returns or a
// host failure is raised, recovering the panic here rather than at
// Execute itself so Execute can resume dispatch at a rescue handler's
// ip instead of unwinding the whole call. trapped reports whether a
// host failure was caught; stepErr is a dispatch-integrity error (e.g.
// an unresolved call site) that is never subject to rescue/ensure and
// propagates directly.
func dispatchSegment(state *State, frame *CallFrame, mc *MachineCode) (exc *LanguageException, stepErr error, trapped bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		frame.Scope.FlushToHeap()
		exc = translateHostFailure(r)
		exc.AttachLocations(locationsFromCallStack(frame))
		trapped = true
	}()

	for frame.IP < len(mc.Stream) {
		if err := step(state, frame); err != nil {
			return nil, err, false
		}
	}
	return nil, nil, false
}

// translateHostFailure classifies a recovered panic payload into the
// language exception it becomes. A type error carries structured
// fields; an in-flight language exception forwards unchanged; anything
// else becomes a generic interpreter error.
func translateHostFailure(r any) *LanguageException {
	switch payload := r.(type) {
	case HostTypeError:
		return MakeTypeError(payload.ExpectedType, payload.ActualObject, payload.Reason)
	case HostLanguageException:
		return payload.Exception
	case error:
		return MakeInterpreterError(payload.Error())
	default:
		return MakeInterpreterError(fmt.Sprintf("%v", payload))
	}
}

// step dispatches the single instruction at frame.IP, threaded
// dispatch: the stream word at IP is the handler token (the opcode
// value itself), consulted via a central switch rather than an
// indirect jump table, per the design note in SPEC_FULL.md §9.
func step(state *State, frame *CallFrame) error {
	mc := frame.MachineCode
	ip := frame.IP
	op := Opcode(mc.Stream[ip])
	info, ok := LookupOpcode(op)
	if !ok {
		return &PrepareError{IP: ip, Opcode: int64(op), Message: "unknown opcode reached dispatch"}
	}

	switch {
	case isSendOpcode(op):
		site := mc.CallSites[ip]
		if site == nil {
			return &PrepareError{IP: ip, Opcode: int64(op), Message: "missing call site at dispatch"}
		}
		args := gatherSendArgs(frame, mc.Stream, ip)
		result, err := site.Check(state, frame, args)
		if err != nil {
			return err
		}
		frame.Push(result)

	case op == OpPushConst || op == OpFindConst:
		cache := constantCacheAt(mc.Stream[ip+1])
		if state.Constants == nil {
			return &PrepareError{IP: ip, Opcode: int64(op), Message: "no constant resolver wired into state"}
		}
		v, err := cache.Get(state, state.Constants, frame.Lexical)
		if err != nil {
			return err
		}
		frame.Push(v)

	case op == OpSetupUnwind:
		site := unwindSiteAt(mc.Stream[ip+1])
		frame.PushUnwindSite(site)

	case op == OpUnwind:
		frame.PopUnwindSite()

	case op == OpPushInt, op == OpPushLiteral, op == OpPushMemo:
		frame.Push(Value(uint64(mc.Stream[literalOperandPosition(op, ip)])))

	case op == OpRet, op == OpRRet:
		frame.IP = len(mc.Stream)
		return nil

	case op == OpInvokePrimitive:
		idx := int(mc.Stream[ip+1])
		stub := state.Primitives.At(idx)
		if stub == nil {
			return &PrepareError{IP: ip, Opcode: int64(op), Message: "unresolved primitive stub at dispatch"}
		}
		args := Arguments{Receiver: frame.Top()}
		v, err := stub(state, frame, args)
		if err != nil {
			return err
		}
		frame.Push(v)

	case op == OpMCounter:
		// diagnostic counter; no-op in this core

	default:
		// Every other opcode is either a pure register-file operation
		// with no site to consult, or out of scope for this core's
		// dispatch surface (SPEC_FULL.md Non-goals); advancing past it
		// is sufficient for the properties this core guarantees.
	}

	frame.IP += info.Width
	return nil
}

// isSendOpcode reports whether op is one of the call-site-bearing
// send family.
func isSendOpcode(op Opcode) bool {
	switch op {
	case OpSendVcall, OpSendMethod, OpSendStack, OpSendStackWithBlock, OpSendStackWithSplat,
		OpSendSuperStackWithBlock, OpSendSuperStackWithSplat, OpZSuper,
		OpObjectToS, OpCheckSerial, OpCheckSerialPrivate, OpBIfSerial:
		return true
	default:
		return false
	}
}

// gatherSendArgs reads the receiver currently on top of the operand
// stack. Positional argument counts are opcode-specific and out of
// scope for this core's dispatch surface; callers needing arity
// beyond the receiver supply it through a richer Method implementation.
func gatherSendArgs(frame *CallFrame, stream []Word, ip int) Arguments {
	return Arguments{Receiver: frame.Top()}
}

// invokeMethodMissing is the language-level method_missing hook,
// called once a dispatch has determined no ordinary method answers a
// send. The core's contract ends at invoking the hook method found on
// the receiver's class with the send's arguments; reason is not passed
// to the hook and only appears in the no_method_error raised when no
// hook is defined. The hook method itself is supplied by the embedding
// host's core library.
func invokeMethodMissing(state *State, frame *CallFrame, args Arguments, name string, reason MethodMissingReason) (Value, error) {
	class := state.Classes.ClassOf(args.Receiver)
	dispatch := class.LookupMethod("method_missing", false, false, false)
	if dispatch.Method == nil {
		RaiseLanguageException(&LanguageException{
			Kind:    "no_method_error",
			Message: fmt.Sprintf("undefined method %q for %s (%s)", name, class.Name, reason),
		})
	}
	return dispatch.Method.Invoke(state, frame, args)
}
