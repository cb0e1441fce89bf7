package corevm

import (
	"fmt"
	"unsafe"

	"github.com/tliron/commonlog"
)

// PrepareError reports a malformed compiled code. Preparation errors
// are fatal for that compiled code and propagate to the loader; they
// are plain errors, not panics, because preparation is off the hot
// dispatch path.
type PrepareError struct {
	IP      int
	Opcode  int64
	Message string
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare: ip=%d opcode=%d: %s", e.IP, e.Opcode, e.Message)
}

// PrepareEnv carries the Preparer's external collaborators: the
// symbol table resolving literal-pool symbol operands to names, and
// the primitive registry invoke_primitive resolves through. The symbol
// table is only read; the primitive registry gains one installed-stub
// entry per invoke_primitive site Prepare rewrites.
type PrepareEnv struct {
	Symbols    *SymbolTable
	Primitives *PrimitiveRegistry
	// NilID seeds every load_nil site's nil tag for this compiled
	// code; callers typically mint one per compiled code.
	NilID uint32

	// Log, if set, receives one debug-level entry per prepared
	// compiled code (serial, site counts).
	Log commonlog.Logger
}

// literalOperandPosition returns the stream index of op's
// literal-index operand, which is ip+1 for every literal-bearing
// instruction except r_load_literal, whose literal index sits at
// ip+2 (its ip+1 is the destination register).
func literalOperandPosition(op Opcode, ip int) int {
	if op == OpRLoadLiteral {
		return ip + 2
	}
	return ip + 1
}

// Prepare runs the two-pass loader/linker algorithm: pass 1 measures
// widths and installs handler tokens while counting reference slots;
// pass 2 rewrites operands in place and installs call sites, constant
// caches, and unwind sites. The machine code is built atomically: on
// any failure Prepare returns nil and an error, with no partially
// rewritten stream escaping (the partially built stream is a local
// that is simply discarded).
func Prepare(code *CompiledCode, env *PrepareEnv) (*MachineCode, error) {
	total := len(code.Opcodes)
	stream := make([]Word, total)

	rcount := 0

	// Pass 1 — measurement and handler installation.
	for ip := 0; ip < total; {
		opWord := code.Opcodes[ip]
		op := Opcode(opWord)
		info, ok := LookupOpcode(op)
		if !ok {
			return nil, &PrepareError{IP: ip, Opcode: opWord, Message: "unknown opcode id"}
		}
		if info.Width < 1 || info.Width > 4 {
			return nil, &PrepareError{IP: ip, Opcode: opWord, Message: "width out of range"}
		}
		if ip+info.Width > total {
			return nil, &PrepareError{IP: ip, Opcode: opWord, Message: "width mismatch: instruction runs past end of stream"}
		}

		stream[ip] = Word(op) // handler token: the opcode id itself, dispatched via a central switch (SPEC_FULL.md §9)
		for k := 1; k < info.Width; k++ {
			stream[ip+k] = Word(code.Opcodes[ip+k])
		}

		if info.Ref != RefNone {
			rcount++
		}

		ip += info.Width
	}

	references := make([]int, 0, rcount)
	callSites := make(map[int]*CallSite)
	constantCaches := make(map[int]*ConstantCache)
	unwindSites := make(map[int]*UnwindSite)

	callsCount, constantsCount, unwindCount := 0, 0, 0
	allowPrivate := false
	isSuper := false
	stackSize := Word(code.StackSize)

	// Pass 2 — operand rewriting and site installation.
	for ip := 0; ip < total; {
		op := Opcode(stream[ip])
		info := opcodeTable[op] // validated in pass 1

		switch info.Bias {
		case BiasOne:
			stream[ip+1] += stackSize
		case BiasTwo:
			stream[ip+1] += stackSize
			stream[ip+2] += stackSize
		case BiasThree:
			stream[ip+1] += stackSize
			stream[ip+2] += stackSize
			stream[ip+3] += stackSize
		case BiasLoadNil:
			stream[ip+1] += stackSize
			stream[ip+2] = Word(int64(ApplyNilTag(env.NilID, ip)))
		case BiasSerial:
			stream[ip+2] += stackSize
		}

		switch op {
		case OpPushInt:
			stream[ip+1] = Word(int64(FromSmallInt(int64(stream[ip+1]))))

		case OpAllowPrivate:
			allowPrivate = true

		case OpSendSuperStackWithBlock, OpSendSuperStackWithSplat, OpZSuper:
			isSuper = true
			site, pos, err := installCallSite(code, stream, env, ip, op, allowPrivate, isSuper)
			if err != nil {
				return nil, err
			}
			callSites[ip] = site
			references = append(references, pos)
			callsCount++
			allowPrivate, isSuper = false, false

		case OpSendVcall, OpSendMethod, OpSendStack, OpSendStackWithBlock, OpSendStackWithSplat,
			OpObjectToS, OpCheckSerial, OpCheckSerialPrivate, OpBIfSerial:
			site, pos, err := installCallSite(code, stream, env, ip, op, allowPrivate, isSuper)
			if err != nil {
				return nil, err
			}
			callSites[ip] = site
			references = append(references, pos)
			callsCount++
			allowPrivate, isSuper = false, false

		case OpPushConst, OpFindConst:
			pos := ip + 1
			idx := int(stream[pos])
			if idx < 0 || idx >= len(code.Literals) {
				return nil, &PrepareError{IP: ip, Opcode: int64(op), Message: "constant symbol literal index out of range"}
			}
			name := env.Symbols.NameOf(code.Literals[idx])
			cache := NewEmptyConstantCache(name, code.Serial, ip)
			stream[pos] = wordFromPtr(unsafe.Pointer(cache), cache)
			constantCaches[ip] = cache
			references = append(references, pos)
			constantsCount++

		case OpSetupUnwind:
			handlerIP := int(stream[ip+1])
			unwindType := UnwindType(stream[ip+2])
			site := NewUnwindSite(handlerIP, unwindType)
			stream[ip+1] = wordFromPtr(unsafe.Pointer(site), site)
			unwindSites[ip] = site
			references = append(references, ip+1)
			unwindCount++

		case OpUnwind:
			// See SPEC_FULL.md §9, "data_unwind reference slot": a
			// reference slot is recorded here even though the bare
			// unwind opcode's own operand is not meaningful data,
			// because the installed unwind-site pointer written into
			// it is itself a heap reference. Preserved as-is.
			site := NewUnwindSite(0, UnwindNone)
			stream[ip+1] = wordFromPtr(unsafe.Pointer(site), site)
			unwindSites[ip] = site
			references = append(references, ip+1)
			unwindCount++

		case OpPushLiteral, OpPushMemo, OpRLoadLiteral, OpCreateBlock,
			OpSetIvar, OpPushIvar, OpSetConst, OpSetConstAt:
			pos := literalOperandPosition(op, ip)
			idx := int(stream[pos])
			if idx < 0 || idx >= len(code.Literals) {
				return nil, &PrepareError{IP: ip, Opcode: int64(op), Message: "literal index out of range"}
			}
			// create_block tolerates either a compiled-code literal or
			// a string literal; both are already opaque Values here,
			// so no further type discrimination is needed.
			stream[pos] = Word(int64(code.Literals[idx]))
			references = append(references, pos)

		case OpInvokePrimitive:
			pos := ip + 1
			idx := int(stream[pos])
			if idx < 0 || idx >= len(code.Literals) {
				return nil, &PrepareError{IP: ip, Opcode: int64(op), Message: "primitive symbol literal index out of range"}
			}
			name := env.Symbols.NameOf(code.Literals[idx])
			stub, ok := env.Primitives.GetInvokeStub(name)
			if !ok {
				return nil, &PrepareError{IP: ip, Opcode: int64(op), Message: fmt.Sprintf("unknown primitive %q", name)}
			}
			stream[pos] = Word(env.Primitives.Install(stub))
			// No reference slot: function pointers are not traced.

		case OpMCounter:
			// Diagnostic counter: no counter is installed and no
			// reference slot is recorded.
		}

		ip += info.Width
	}

	mc := &MachineCode{
		Source:             code,
		Stream:             stream,
		References:         references,
		CallSites:          callSites,
		ConstantCaches:     constantCaches,
		UnwindSites:        unwindSites,
		CallSiteCount:      callsCount,
		ConstantCacheCount: constantsCount,
		UnwindSiteCount:    unwindCount,
		NilID:              env.NilID,
	}

	if env.Log != nil {
		env.Log.Debugf("corevm: prepared %q serial=%d call_sites=%d constant_caches=%d unwind_sites=%d",
			code.Name, code.Serial, callsCount, constantsCount, unwindCount)
	}

	return mc, nil
}

// installCallSite resolves the send's method-name operand and creates
// a fresh empty call site bound to (name, serial, ip), with its
// privacy/super/vcall flags set from the locals the preceding
// allow_private/super opcode left behind.
func installCallSite(code *CompiledCode, stream []Word, env *PrepareEnv, ip int, op Opcode, allowPrivate, isSuper bool) (*CallSite, int, error) {
	pos := ip + 1
	idx := int(stream[pos])
	if idx < 0 || idx >= len(code.Literals) {
		return nil, 0, &PrepareError{IP: ip, Opcode: int64(op), Message: "send symbol literal index out of range"}
	}
	name := env.Symbols.NameOf(code.Literals[idx])

	isVcall := op == OpSendVcall
	private := allowPrivate
	if isVcall || op == OpObjectToS || op == OpBIfSerial {
		private = true
	}

	site := newEmptyCallSiteFor(name, code.Serial, ip, code)
	site.IsPrivate = private
	site.IsSuper = isSuper
	site.IsVcall = isVcall

	stream[pos] = wordFromPtr(unsafe.Pointer(site), site)
	return site, pos, nil
}
