package corevm

// InterpreterState is the scratch block each dispatch threads through;
// handlers may stash transient flags here (allow_private/is_super are
// resolved at preparation time and do not need one, but a handler
// implementing e.g. exception unwinding bookkeeping does).
type InterpreterState struct {
	AllowPrivate bool
	IsSuper      bool
}

// Scope owns the frame's local-variable storage. flush_to_heap moves
// any register-resident values that a surviving closure might capture
// into heap-visible storage, so a failure mid-dispatch still leaves
// closures observing consistent values.
type Scope struct {
	Locals  []Value
	flushed bool
}

// FlushToHeap marks the scope's locals visible to surviving closures.
// Idempotent.
func (s *Scope) FlushToHeap() { s.flushed = true }

// Flushed reports whether FlushToHeap has run, for tests asserting the
// failure-translation contract.
func (s *Scope) Flushed() bool { return s.flushed }

// CallFrame is the per-invocation structure: the operand stack, the
// instruction pointer, a pointer to the machine code being executed,
// and the scratch interpreter state. The stack pointer starts "one
// before the base" so every push pre-increments.
type CallFrame struct {
	Stack    []Value
	StackPtr int
	IP       int

	MachineCode *MachineCode
	IS          *InterpreterState
	Scope       *Scope
	Lexical     *LexicalScope

	unwindStack []*UnwindSite

	Caller *CallFrame
}

// NewCallFrame allocates a frame over machineCode with an operand
// stack sized for stack_size plus the register file, stack pointer
// initialized one before the base.
func NewCallFrame(mc *MachineCode, registerCount int) *CallFrame {
	size := mc.StackSize() + registerCount
	return &CallFrame{
		Stack:       make([]Value, size),
		StackPtr:    -1,
		MachineCode: mc,
		IS:          &InterpreterState{},
		Scope:       &Scope{Locals: make([]Value, registerCount)},
	}
}

// Push pre-increments the stack pointer and stores v.
func (f *CallFrame) Push(v Value) {
	f.StackPtr++
	f.Stack[f.StackPtr] = v
}

// Pop returns the top of stack and post-decrements the pointer.
func (f *CallFrame) Pop() Value {
	v := f.Stack[f.StackPtr]
	f.StackPtr--
	return v
}

// Top returns the top of stack without popping it.
func (f *CallFrame) Top() Value { return f.Stack[f.StackPtr] }
