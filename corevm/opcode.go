package corevm

// Opcode identifies an instruction in a compiled code's opcode word
// stream. Ids are stable integers; width and handling are looked up
// through opcodeTable, never decoded from the stream itself.
type Opcode int

// RefKind classifies how an opcode's preparation touches the
// reference-slot array: whether its rewritten operand becomes a heap
// reference the collector must trace, and which installer (if any)
// allocates the site that reference points at.
type RefKind int

const (
	RefNone    RefKind = iota // no reference produced
	RefLiteral                // resolves a literal-pool index to a reference
	RefCall                   // installs a call site
	RefConst                  // installs a constant cache
	RefUnwind                 // installs an unwind site
)

// BiasClass classifies which operand words a register/stack-bearing
// instruction needs biased by stack_size during pass 2.
type BiasClass int

const (
	BiasNone    BiasClass = iota
	BiasOne               // bias operand 1
	BiasTwo               // bias operands 1 and 2
	BiasThree             // bias operands 1, 2 and 3
	BiasLoadNil           // bias operand 1; operand 2 becomes a nil tag
	BiasSerial            // bias operand 2 only (b_if_serial's register field)
)

// OpcodeInfo holds the static metadata the Preparer consults for a
// given opcode: how many words the instruction occupies, how its
// operands are biased, and what kind of reference (if any) it installs.
type OpcodeInfo struct {
	Name    string
	Width   int // header + operand words, 1..4
	Bias    BiasClass
	Ref     RefKind
	IsSend  bool // send/serial-check variants: install a call site
	IsSuper bool // super-opcodes: set the sticky is_super flag
}

// Opcode ids. Mirrors the instruction set named throughout the loader
// pass: enough of the real table to exercise every rewrite rule the
// Preparer implements, plus a representative spread of the generic
// register-bearing arithmetic classes.
const (
	OpRet Opcode = iota + 1
	OpPushLiteral
	OpPushMemo
	OpRLoadLiteral
	OpCreateBlock
	OpSetIvar
	OpPushIvar
	OpSetConst
	OpSetConstAt
	OpInvokePrimitive
	OpPushInt
	OpAllowPrivate
	OpSendSuperStackWithBlock
	OpSendSuperStackWithSplat
	OpZSuper
	OpSendVcall
	OpSendMethod
	OpSendStack
	OpSendStackWithBlock
	OpSendStackWithSplat
	OpObjectToS
	OpCheckSerial
	OpCheckSerialPrivate
	OpBIfSerial
	OpPushConst
	OpFindConst
	OpSetupUnwind
	OpUnwind
	OpMCounter

	// Generic register-bearing instructions, grounded on the one/two/
	// three-operand classes named in the loader pass.
	OpRLoadLocal
	OpRStoreLocal
	OpRLoadLocalDepth
	OpRStoreLocalDepth
	OpRLoadStack
	OpRStoreStack
	OpRLoadSelf
	OpRLoadNeg1
	OpRLoad0
	OpRLoad1
	OpRLoad2
	OpRLoadFalse
	OpRLoadTrue
	OpRRet
	OpMLog
	OpRLoadNil
	OpBIf
	OpACopy  // two-operand: dst, src
	OpAEqual // two-operand: lhs, rhs
	OpNIAdd  // three-operand: dst, lhs, rhs
	OpNISub  // three-operand: dst, lhs, rhs
	OpPushSelf
)

var opcodeTable = map[Opcode]OpcodeInfo{
	OpRet:             {Name: "ret", Width: 1},
	OpPushLiteral:     {Name: "push_literal", Width: 2, Ref: RefLiteral},
	OpPushMemo:        {Name: "push_memo", Width: 2, Ref: RefLiteral},
	OpRLoadLiteral:    {Name: "r_load_literal", Width: 3, Bias: BiasOne, Ref: RefLiteral},
	OpCreateBlock:     {Name: "create_block", Width: 2, Ref: RefLiteral},
	OpSetIvar:         {Name: "set_ivar", Width: 2, Ref: RefLiteral},
	OpPushIvar:        {Name: "push_ivar", Width: 2, Ref: RefLiteral},
	OpSetConst:        {Name: "set_const", Width: 2, Ref: RefLiteral},
	OpSetConstAt:      {Name: "set_const_at", Width: 2, Ref: RefLiteral},
	OpInvokePrimitive: {Name: "invoke_primitive", Width: 2, Ref: RefNone},
	OpPushInt:         {Name: "push_int", Width: 2},
	OpAllowPrivate:    {Name: "allow_private", Width: 1},

	OpSendSuperStackWithBlock: {Name: "send_super_stack_with_block", Width: 2, Ref: RefCall, IsSend: true, IsSuper: true},
	OpSendSuperStackWithSplat: {Name: "send_super_stack_with_splat", Width: 2, Ref: RefCall, IsSend: true, IsSuper: true},
	OpZSuper:                  {Name: "zsuper", Width: 2, Ref: RefCall, IsSend: true, IsSuper: true},
	OpSendVcall:                {Name: "send_vcall", Width: 2, Ref: RefCall, IsSend: true},
	OpSendMethod:                {Name: "send_method", Width: 2, Ref: RefCall, IsSend: true},
	OpSendStack:                  {Name: "send_stack", Width: 2, Ref: RefCall, IsSend: true},
	OpSendStackWithBlock:         {Name: "send_stack_with_block", Width: 2, Ref: RefCall, IsSend: true},
	OpSendStackWithSplat:         {Name: "send_stack_with_splat", Width: 2, Ref: RefCall, IsSend: true},
	OpObjectToS:                  {Name: "object_to_s", Width: 2, Ref: RefCall, IsSend: true},
	OpCheckSerial:                {Name: "check_serial", Width: 2, Ref: RefCall, IsSend: true},
	OpCheckSerialPrivate:         {Name: "check_serial_private", Width: 2, Ref: RefCall, IsSend: true},
	OpBIfSerial:                  {Name: "b_if_serial", Width: 3, Bias: BiasSerial, Ref: RefCall, IsSend: true},

	OpPushConst:   {Name: "push_const", Width: 2, Ref: RefConst},
	OpFindConst:   {Name: "find_const", Width: 2, Ref: RefConst},
	OpSetupUnwind: {Name: "setup_unwind", Width: 3, Ref: RefUnwind},
	OpUnwind:      {Name: "unwind", Width: 2, Ref: RefUnwind},
	OpMCounter:    {Name: "m_counter", Width: 1},

	OpRLoadLocal:      {Name: "r_load_local", Width: 2, Bias: BiasOne},
	OpRStoreLocal:      {Name: "r_store_local", Width: 2, Bias: BiasOne},
	OpRLoadLocalDepth:   {Name: "r_load_local_depth", Width: 3, Bias: BiasOne},
	OpRStoreLocalDepth:   {Name: "r_store_local_depth", Width: 3, Bias: BiasOne},
	OpRLoadStack:          {Name: "r_load_stack", Width: 2, Bias: BiasOne},
	OpRStoreStack:          {Name: "r_store_stack", Width: 2, Bias: BiasOne},
	OpRLoadSelf:            {Name: "r_load_self", Width: 2, Bias: BiasOne},
	OpRLoadNeg1:            {Name: "r_load_neg1", Width: 2, Bias: BiasOne},
	OpRLoad0:               {Name: "r_load_0", Width: 2, Bias: BiasOne},
	OpRLoad1:               {Name: "r_load_1", Width: 2, Bias: BiasOne},
	OpRLoad2:               {Name: "r_load_2", Width: 2, Bias: BiasOne},
	OpRLoadFalse:           {Name: "r_load_false", Width: 2, Bias: BiasOne},
	OpRLoadTrue:            {Name: "r_load_true", Width: 2, Bias: BiasOne},
	OpRRet:                 {Name: "r_ret", Width: 2, Bias: BiasOne},
	OpMLog:                 {Name: "m_log", Width: 2, Bias: BiasOne},
	OpRLoadNil:             {Name: "r_load_nil", Width: 3, Bias: BiasLoadNil},
	OpBIf:                  {Name: "b_if", Width: 2, Bias: BiasOne},
	OpACopy:                {Name: "a_copy", Width: 3, Bias: BiasTwo},
	OpAEqual:                {Name: "a_equal", Width: 3, Bias: BiasTwo},
	OpNIAdd:                 {Name: "n_iadd", Width: 4, Bias: BiasThree},
	OpNISub:                 {Name: "n_isub", Width: 4, Bias: BiasThree},
	OpPushSelf:              {Name: "push_self", Width: 1},
}

// LookupOpcode returns the metadata for op, or false if op is unknown.
func LookupOpcode(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}
