// Package op defines the guest opcodes understood by the translator and the
// version policy that says which dialects define each of them.
package op

// Code identifies a guest instruction kind. The numbering is the translator's
// own; decoders map each dialect's native opcode numbers onto it.
type Code uint8

const (
	Invalid Code = 0

	// Execution
	Nop    Code = 1
	Resume Code = 2
	Cache  Code = 3

	// Stack
	PopTop   Code = 10
	RotTwo   Code = 11
	DupTop   Code = 12
	Copy     Code = 13
	Swap     Code = 14
	PushNull Code = 15

	// Load
	LoadConst  Code = 20
	LoadFast   Code = 21
	LoadGlobal Code = 22
	LoadAttr   Code = 23

	// Store
	StoreFast   Code = 30
	StoreGlobal Code = 31
	StoreAttr   Code = 32
	DeleteFast  Code = 33

	// Operations
	UnaryNot       Code = 40
	UnaryNegative  Code = 41
	BinaryAdd      Code = 42
	BinarySubtract Code = 43
	BinaryMultiply Code = 44
	BinaryOp       Code = 45
	CompareOp      Code = 46
	IsOp           Code = 47
	ContainsOp     Code = 48

	// Build
	BuildTuple Code = 50
	BuildList  Code = 51

	// Calls
	CallFunction Code = 60
	Call         Code = 61
	ReturnValue  Code = 62

	// Iteration
	GetIter Code = 70
	ForIter Code = 71

	// Jump
	JumpForward    Code = 80
	JumpAbsolute   Code = 81
	JumpBackward   Code = 82
	PopJumpIfFalse Code = 83
	PopJumpIfTrue  Code = 84

	// Exception handling
	SetupFinally      Code = 90
	PopBlock          Code = 91
	PopExcept         Code = 92
	Reraise           Code = 93
	RaiseVarargs      Code = 94
	JumpIfNotExcMatch Code = 95
	PushExcInfo       Code = 96
	CheckExcMatch     Code = 97
)

// BinaryOpType is the operand of BINARY_OP. The values follow the guest's
// NB_* numbering; in-place variants add InplaceOffset.
type BinaryOpType int

const (
	Add         BinaryOpType = 0
	And         BinaryOpType = 1
	FloorDivide BinaryOpType = 2
	LShift      BinaryOpType = 3
	Multiply    BinaryOpType = 5
	Remainder   BinaryOpType = 6
	Or          BinaryOpType = 7
	Power       BinaryOpType = 8
	RShift      BinaryOpType = 9
	Subtract    BinaryOpType = 10
	TrueDivide  BinaryOpType = 11
	Xor         BinaryOpType = 12

	InplaceOffset BinaryOpType = 13
)

// String returns the operator symbol, for example "+" for Add.
func (bop BinaryOpType) String() string {
	inplace := ""
	if bop >= InplaceOffset {
		bop -= InplaceOffset
		inplace = "="
	}
	var s string
	switch bop {
	case Add:
		s = "+"
	case And:
		s = "&"
	case FloorDivide:
		s = "//"
	case LShift:
		s = "<<"
	case Multiply:
		s = "*"
	case Remainder:
		s = "%"
	case Or:
		s = "|"
	case Power:
		s = "**"
	case RShift:
		s = ">>"
	case Subtract:
		s = "-"
	case TrueDivide:
		s = "/"
	case Xor:
		s = "^"
	default:
		return ""
	}
	return s + inplace
}

// CompareOpType is the decoded operand of COMPARE_OP.
type CompareOpType int

const (
	LessThan           CompareOpType = 0
	LessThanOrEqual    CompareOpType = 1
	Equal              CompareOpType = 2
	NotEqual           CompareOpType = 3
	GreaterThan        CompareOpType = 4
	GreaterThanOrEqual CompareOpType = 5
)

// String returns a string representation of the comparison operation.
// For example "<" for less than.
func (cop CompareOpType) String() string {
	switch cop {
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case Equal:
		return "=="
	case NotEqual:
		return "!="
	case GreaterThan:
		return ">"
	case GreaterThanOrEqual:
		return ">="
	default:
		return ""
	}
}

// Info contains information about an opcode.
type Info struct {
	Code Code
	Name string
	// HasArg is true when the operand is meaningful.
	HasArg bool
	// Jump is true when the operand is an absolute target offset.
	Jump bool
	// Conditional is true when control may also fall through after a jump.
	Conditional bool
	// Terminator is true when control never falls through.
	Terminator bool
}

var (
	infos  = make([]Info, 256)
	byName = map[string]Code{}
)

func init() {
	type opInfo struct {
		op          Code
		name        string
		hasArg      bool
		jump        bool
		conditional bool
		terminator  bool
	}
	ops := []opInfo{
		{Nop, "NOP", false, false, false, false},
		{Resume, "RESUME", true, false, false, false},
		{Cache, "CACHE", false, false, false, false},
		{PopTop, "POP_TOP", false, false, false, false},
		{RotTwo, "ROT_TWO", false, false, false, false},
		{DupTop, "DUP_TOP", false, false, false, false},
		{Copy, "COPY", true, false, false, false},
		{Swap, "SWAP", true, false, false, false},
		{PushNull, "PUSH_NULL", false, false, false, false},
		{LoadConst, "LOAD_CONST", true, false, false, false},
		{LoadFast, "LOAD_FAST", true, false, false, false},
		{LoadGlobal, "LOAD_GLOBAL", true, false, false, false},
		{LoadAttr, "LOAD_ATTR", true, false, false, false},
		{StoreFast, "STORE_FAST", true, false, false, false},
		{StoreGlobal, "STORE_GLOBAL", true, false, false, false},
		{StoreAttr, "STORE_ATTR", true, false, false, false},
		{DeleteFast, "DELETE_FAST", true, false, false, false},
		{UnaryNot, "UNARY_NOT", false, false, false, false},
		{UnaryNegative, "UNARY_NEGATIVE", false, false, false, false},
		{BinaryAdd, "BINARY_ADD", false, false, false, false},
		{BinarySubtract, "BINARY_SUBTRACT", false, false, false, false},
		{BinaryMultiply, "BINARY_MULTIPLY", false, false, false, false},
		{BinaryOp, "BINARY_OP", true, false, false, false},
		{CompareOp, "COMPARE_OP", true, false, false, false},
		{IsOp, "IS_OP", true, false, false, false},
		{ContainsOp, "CONTAINS_OP", true, false, false, false},
		{BuildTuple, "BUILD_TUPLE", true, false, false, false},
		{BuildList, "BUILD_LIST", true, false, false, false},
		{CallFunction, "CALL_FUNCTION", true, false, false, false},
		{Call, "CALL", true, false, false, false},
		{ReturnValue, "RETURN_VALUE", false, false, false, true},
		{GetIter, "GET_ITER", false, false, false, false},
		{ForIter, "FOR_ITER", true, true, true, false},
		{JumpForward, "JUMP_FORWARD", true, true, false, true},
		{JumpAbsolute, "JUMP_ABSOLUTE", true, true, false, true},
		{JumpBackward, "JUMP_BACKWARD", true, true, false, true},
		{PopJumpIfFalse, "POP_JUMP_IF_FALSE", true, true, true, false},
		{PopJumpIfTrue, "POP_JUMP_IF_TRUE", true, true, true, false},
		{SetupFinally, "SETUP_FINALLY", true, true, true, false},
		{PopBlock, "POP_BLOCK", false, false, false, false},
		{PopExcept, "POP_EXCEPT", false, false, false, false},
		{Reraise, "RERAISE", true, false, false, true},
		{RaiseVarargs, "RAISE_VARARGS", true, false, false, true},
		{JumpIfNotExcMatch, "JUMP_IF_NOT_EXC_MATCH", true, true, true, false},
		{PushExcInfo, "PUSH_EXC_INFO", false, false, false, false},
		{CheckExcMatch, "CHECK_EXC_MATCH", false, false, false, false},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Code:        o.op,
			Name:        o.name,
			HasArg:      o.hasArg,
			Jump:        o.jump,
			Conditional: o.conditional,
			Terminator:  o.terminator,
		}
		byName[o.name] = o.op
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(op Code) Info {
	return infos[op]
}

// Defined reports whether op is a known opcode.
func Defined(op Code) bool {
	return infos[op].Name != ""
}

// String returns the opcode name, or "INVALID" for unknown opcodes.
func (op Code) String() string {
	if name := infos[op].Name; name != "" {
		return name
	}
	return "INVALID"
}

// Lookup returns the opcode with the given name.
func Lookup(name string) (Code, bool) {
	code, ok := byName[name]
	return code, ok
}

// All returns every defined opcode in numeric order.
func All() []Code {
	var codes []Code
	for i := range infos {
		if infos[i].Name != "" {
			codes = append(codes, Code(i))
		}
	}
	return codes
}
