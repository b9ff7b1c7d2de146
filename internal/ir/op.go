package ir

// Op is the kind of a node. The set of kinds is closed; per-kind behavior lives in
// switch-based dispatch tables rather than in per-kind types.
type Op uint8

const (
	OpInvalid Op = iota

	// floating nodes
	OpParam
	OpConstant
	OpPhi
	OpPi
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpNeg
	OpAbs
	OpNot
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpUShr
	OpMin
	OpMax
	OpUMin
	OpUMax
	OpSignExtend
	OpZeroExtend
	OpNarrow
	OpCompare
	OpIsNull
	OpInstanceOf
	OpIntegerTest
	OpLogicNegation
	OpConditional
	OpArrayLength
	OpFloatingReadField
	OpGuard
	OpOpaque

	// fixed nodes
	OpStart
	OpBegin
	OpIf
	OpEnd
	OpMerge
	OpLoopBegin
	OpLoopEnd
	OpLoopExit
	OpReturn
	OpDeoptimize
	OpFixedGuard
	OpLoadField
	OpStoreField
	OpLoadIndexed
	OpStoreIndexed
	OpNewInstance
	OpNewArray
	OpInvoke
	OpBlackHole
	OpControlFlowAnchor

	numOps
)

type opFlags uint16

const (
	flagFixed opFlags = 1 << iota
	// fixed node with a single successor
	flagNext
	// floating node interned by value
	flagGVN
	// produces a condition rather than a value
	flagLogic
	// two value inputs
	flagBinary
	flagCommutative
	flagUnary
	// starts a block
	flagBegin
	flagTerminal
)

type opInfo struct {
	name  string
	flags opFlags
}

var opTable = [numOps]opInfo{
	OpInvalid: {"Invalid", 0},

	OpParam:             {"Param", 0},
	OpConstant:          {"Constant", flagGVN},
	OpPhi:               {"Phi", 0},
	OpPi:                {"Pi", flagGVN},
	OpAdd:               {"Add", flagGVN | flagBinary | flagCommutative},
	OpSub:               {"Sub", flagGVN | flagBinary},
	OpMul:               {"Mul", flagGVN | flagBinary | flagCommutative},
	OpDiv:               {"Div", flagGVN | flagBinary},
	OpRem:               {"Rem", flagGVN | flagBinary},
	OpNeg:               {"Neg", flagGVN | flagUnary},
	OpAbs:               {"Abs", flagGVN | flagUnary},
	OpNot:               {"Not", flagGVN | flagUnary},
	OpAnd:               {"And", flagGVN | flagBinary | flagCommutative},
	OpOr:                {"Or", flagGVN | flagBinary | flagCommutative},
	OpXor:               {"Xor", flagGVN | flagBinary | flagCommutative},
	OpShl:               {"Shl", flagGVN | flagBinary},
	OpShr:               {"Shr", flagGVN | flagBinary},
	OpUShr:              {"UShr", flagGVN | flagBinary},
	OpMin:               {"Min", flagGVN | flagBinary | flagCommutative},
	OpMax:               {"Max", flagGVN | flagBinary | flagCommutative},
	OpUMin:              {"UMin", flagGVN | flagBinary | flagCommutative},
	OpUMax:              {"UMax", flagGVN | flagBinary | flagCommutative},
	OpSignExtend:        {"SignExtend", flagGVN | flagUnary},
	OpZeroExtend:        {"ZeroExtend", flagGVN | flagUnary},
	OpNarrow:            {"Narrow", flagGVN | flagUnary},
	OpCompare:           {"Compare", flagGVN | flagLogic},
	OpIsNull:            {"IsNull", flagGVN | flagLogic},
	OpInstanceOf:        {"InstanceOf", flagGVN | flagLogic},
	OpIntegerTest:       {"IntegerTest", flagGVN | flagLogic | flagCommutative},
	OpLogicNegation:     {"LogicNegation", flagGVN | flagLogic},
	OpConditional:       {"Conditional", flagGVN},
	OpArrayLength:       {"ArrayLength", flagGVN},
	OpFloatingReadField: {"FloatingReadField", flagGVN},
	OpGuard:             {"Guard", flagGVN},
	OpOpaque:            {"Opaque", 0},

	OpStart:             {"Start", flagFixed | flagNext | flagBegin},
	OpBegin:             {"Begin", flagFixed | flagNext | flagBegin},
	OpIf:                {"If", flagFixed},
	OpEnd:               {"End", flagFixed | flagTerminal},
	OpMerge:             {"Merge", flagFixed | flagNext | flagBegin},
	OpLoopBegin:         {"LoopBegin", flagFixed | flagNext | flagBegin},
	OpLoopEnd:           {"LoopEnd", flagFixed | flagTerminal},
	OpLoopExit:          {"LoopExit", flagFixed | flagNext},
	OpReturn:            {"Return", flagFixed | flagTerminal},
	OpDeoptimize:        {"Deoptimize", flagFixed | flagTerminal},
	OpFixedGuard:        {"FixedGuard", flagFixed | flagNext},
	OpLoadField:         {"LoadField", flagFixed | flagNext},
	OpStoreField:        {"StoreField", flagFixed | flagNext},
	OpLoadIndexed:       {"LoadIndexed", flagFixed | flagNext},
	OpStoreIndexed:      {"StoreIndexed", flagFixed | flagNext},
	OpNewInstance:       {"NewInstance", flagFixed | flagNext},
	OpNewArray:          {"NewArray", flagFixed | flagNext},
	OpInvoke:            {"Invoke", flagFixed | flagNext},
	OpBlackHole:         {"BlackHole", flagFixed | flagNext},
	OpControlFlowAnchor: {"ControlFlowAnchor", flagFixed | flagNext},
}

func (op Op) String() string {
	if op < numOps {
		return opTable[op].name
	}
	return "Op?"
}

func (op Op) has(f opFlags) bool {
	return op < numOps && opTable[op].flags&f != 0
}

// IsFixed reports whether nodes of this kind have a position in the control flow
func (op Op) IsFixed() bool { return op.has(flagFixed) }

// IsFloating reports whether nodes of this kind are pure data flow
func (op Op) IsFloating() bool { return op != OpInvalid && !op.has(flagFixed) }

// HasNext reports whether nodes of this kind continue to a single successor
func (op Op) HasNext() bool { return op.has(flagNext) }

// IsLogic reports whether the node is a condition
func (op Op) IsLogic() bool { return op.has(flagLogic) }

// IsGVN reports whether equal nodes of this kind are shared
func (op Op) IsGVN() bool { return op.has(flagGVN) }

func (op Op) IsBinary() bool      { return op.has(flagBinary) }
func (op Op) IsUnary() bool       { return op.has(flagUnary) }
func (op Op) IsCommutative() bool { return op.has(flagCommutative) }

// IsBegin reports whether the node starts a basic block
func (op Op) IsBegin() bool { return op.has(flagBegin) }

// IsTerminal reports whether control does not continue past the node in its block
func (op Op) IsTerminal() bool { return op.has(flagTerminal) }

// IsAbstractBegin reports whether floating guards and Pis may be anchored at the node
func (op Op) IsAbstractBegin() bool {
	return op.IsBegin() || op == OpLoopExit || op == OpControlFlowAnchor
}

// IsGuard reports whether the node checks a condition and deoptimizes on failure
func (op Op) IsGuard() bool {
	return op == OpGuard || op == OpFixedGuard
}

// ParseOp looks up a kind by name
func ParseOp(name string) (Op, bool) {
	for i := Op(1); i < numOps; i++ {
		if opTable[i].name == name {
			return i, true
		}
	}
	return OpInvalid, false
}
